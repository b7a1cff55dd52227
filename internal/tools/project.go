package tools

import (
	"context"
	"errors"
	"time"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

type healthResult struct {
	Status         string `json:"status"`
	Host           string `json:"host"`
	ProjectID      string `json:"projectId"`
	Mode           string `json:"mode"`
	ServerVersion  string `json:"serverVersion,omitempty"`
	BackendVersion string `json:"backendVersion,omitempty"`
	LatencyMS      int64  `json:"latencyMs"`
	Authenticated  bool   `json:"authenticated"`
	Error          string `json:"error,omitempty"`
}

type projectInfo struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Host     string         `json:"host"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Set) projectTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "health_check",
			Description: "Check that the Langfuse backend is reachable and the configured credentials are accepted.",
			Handler:     s.healthCheck,
		},
		{
			Name:        "get_project_info",
			Description: "Describe the Langfuse project the configured credentials belong to.",
			Handler: func(ctx context.Context, _ dispatch.Args) (any, error) {
				p, err := s.resolveProject(ctx)
				if err != nil {
					return nil, err
				}
				return projectInfo{
					ID:       p.ID,
					Name:     p.Name,
					Host:     s.deps.API.Endpoint().Host(),
					Metadata: p.Metadata,
				}, nil
			},
		},
	}
}

// healthCheck reports backend problems in its payload rather than failing
// the call, so a caller can always tell liveness from authentication.
func (s *Set) healthCheck(ctx context.Context, _ dispatch.Args) (any, error) {
	ep := s.deps.API.Endpoint()
	res := healthResult{
		Status:        "ok",
		Host:          ep.Host(),
		ProjectID:     ep.ProjectID,
		Mode:          s.deps.Mode,
		ServerVersion: s.deps.Version,
	}

	start := time.Now()
	h, err := s.deps.API.Health(ctx)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = "unreachable"
		res.Error = healthError(err)
		return res, nil
	}
	res.BackendVersion = h.Version

	if _, err := s.resolveProject(ctx); err != nil {
		res.Status = "degraded"
		res.Error = healthError(err)
		return res, nil
	}
	res.Authenticated = true
	return res, nil
}

func healthError(err error) string {
	var te *langfuse.TransportError
	switch {
	case errors.As(err, &te):
		return te.Error()
	case errors.Is(err, errNoProject):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "request failed"
	}
}
