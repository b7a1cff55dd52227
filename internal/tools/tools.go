// Package tools declares the Langfuse operation catalog: one descriptor per
// operation, each translating validated arguments into Langfuse API calls or
// analytics queries.
package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alecgard/langfuse-mcp/internal/analytics"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

// API is the part of the Langfuse client the operations call.
type API interface {
	Endpoint() langfuse.Endpoint
	Health(ctx context.Context) (*langfuse.HealthResponse, error)
	ListProjects(ctx context.Context) ([]langfuse.Project, error)

	ListTraces(ctx context.Context, q langfuse.TraceQuery) (*langfuse.Page[langfuse.Trace], error)
	GetTrace(ctx context.Context, id string) (json.RawMessage, error)
	ListObservations(ctx context.Context, q langfuse.ObservationQuery) (*langfuse.Page[map[string]any], error)
	GetObservation(ctx context.Context, id string) (map[string]any, error)
	ListSessions(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetSession(ctx context.Context, id string) (json.RawMessage, error)

	ListModels(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetModel(ctx context.Context, id string) (json.RawMessage, error)

	ListPrompts(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetPrompt(ctx context.Context, name string, version int, label string) (json.RawMessage, error)
	CreatePrompt(ctx context.Context, req langfuse.CreatePromptRequest) (json.RawMessage, error)
	UpdatePromptLabels(ctx context.Context, name string, version int, labels []string) (json.RawMessage, error)

	ListDatasets(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetDataset(ctx context.Context, name string) (json.RawMessage, error)
	CreateDataset(ctx context.Context, req langfuse.CreateDatasetRequest) (json.RawMessage, error)
	ListDatasetItems(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetDatasetItem(ctx context.Context, id string) (json.RawMessage, error)
	CreateDatasetItem(ctx context.Context, req langfuse.CreateDatasetItemRequest) (json.RawMessage, error)
	DeleteDatasetItem(ctx context.Context, id string) (json.RawMessage, error)

	ListComments(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	GetComment(ctx context.Context, id string) (json.RawMessage, error)
	CreateComment(ctx context.Context, req langfuse.CreateCommentRequest) (json.RawMessage, error)

	ListScores(ctx context.Context, q langfuse.ListQuery) (json.RawMessage, error)
	CreateScore(ctx context.Context, req langfuse.CreateScoreRequest) (json.RawMessage, error)
	DeleteScore(ctx context.Context, id string) (json.RawMessage, error)
}

// Deps holds what the operations need.
type Deps struct {
	API       API
	Analytics *analytics.Service
	// Version and Mode are reported by health_check.
	Version string
	Mode    string
}

// Set builds the descriptors once so state shared between operations, such
// as the resolved project, lives for the whole process.
type Set struct {
	deps    Deps
	project projectCache
}

// New returns the operation set for deps.
func New(deps Deps) *Set {
	return &Set{deps: deps}
}

// Descriptors returns every operation in catalog order: reads first, then
// mutating operations, grouped by resource.
func (s *Set) Descriptors() []dispatch.Descriptor {
	var out []dispatch.Descriptor
	out = append(out, s.projectTools()...)
	out = append(out, s.traceTools()...)
	out = append(out, s.usageTools()...)
	out = append(out, s.modelTools()...)
	out = append(out, s.promptTools()...)
	out = append(out, s.datasetTools()...)
	out = append(out, s.commentTools()...)
	out = append(out, s.scoreTools()...)
	return out
}

// Register adds every operation to c.
func (s *Set) Register(c *dispatch.Catalog) error {
	for _, d := range s.Descriptors() {
		if err := c.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// projectCache remembers the project the credentials belong to. Only a
// successful lookup is cached.
type projectCache struct {
	mu      sync.Mutex
	project *langfuse.Project
}

func (s *Set) resolveProject(ctx context.Context) (*langfuse.Project, error) {
	s.project.mu.Lock()
	defer s.project.mu.Unlock()
	if s.project.project != nil {
		return s.project.project, nil
	}
	projects, err := s.deps.API.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, errNoProject
	}
	p := projects[0]
	s.project.project = &p
	return s.project.project, nil
}
