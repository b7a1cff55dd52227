package langfuse

import (
	"encoding/json"
	"time"
)

// Meta is the pagination block of list responses.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Page is a generic paginated list response.
type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// HealthResponse is returned by the unauthenticated health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Project is one entry of the projects endpoint.
type Project struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Trace is the list representation of a trace.
type Trace struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	UserID      string          `json:"userId,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	Release     string          `json:"release,omitempty"`
	Version     string          `json:"version,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	TotalCost   float64         `json:"totalCost"`
	Latency     float64         `json:"latency"`
	HTMLPath    string          `json:"htmlPath,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// DailyMetric is one per-day row of the daily metrics endpoint.
type DailyMetric struct {
	Date              string       `json:"date"`
	CountTraces       int64        `json:"countTraces"`
	CountObservations int64        `json:"countObservations"`
	TotalCost         float64      `json:"totalCost"`
	Usage             []DailyUsage `json:"usage"`
}

// DailyUsage is the nested per-model usage of a daily row. Model is empty
// when the backend reports null.
type DailyUsage struct {
	Model             string  `json:"model"`
	InputUsage        int64   `json:"inputUsage"`
	OutputUsage       int64   `json:"outputUsage"`
	TotalUsage        int64   `json:"totalUsage"`
	CountTraces       int64   `json:"countTraces"`
	CountObservations int64   `json:"countObservations"`
	TotalCost         float64 `json:"totalCost"`
}

// MetricsQuery is the JSON document sent in the query parameter of the
// general metrics endpoint.
type MetricsQuery struct {
	View          string         `json:"view"`
	Dimensions    []Dimension    `json:"dimensions,omitempty"`
	Metrics       []Metric       `json:"metrics"`
	Filters       []Filter       `json:"filters"`
	TimeDimension *TimeDimension `json:"timeDimension,omitempty"`
	FromTimestamp string         `json:"fromTimestamp"`
	ToTimestamp   string         `json:"toTimestamp"`
	OrderBy       []OrderBy      `json:"orderBy,omitempty"`
}

type Dimension struct {
	Field string `json:"field"`
}

type Metric struct {
	Measure     string `json:"measure"`
	Aggregation string `json:"aggregation"`
}

// FieldName is the key the backend uses for this metric in result rows:
// the measure suffixed with the aggregation function.
func (m Metric) FieldName() string {
	return m.Measure + "_" + m.Aggregation
}

type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Type     string `json:"type"`
}

type TimeDimension struct {
	Granularity string `json:"granularity"`
}

type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// MetricsResponse holds rows whose keys depend on the requested dimensions
// and metrics.
type MetricsResponse struct {
	Data []map[string]any `json:"data"`
}

// CreatePromptRequest creates a new prompt version.
type CreatePromptRequest struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"` // "text" or "chat"
	Prompt        any      `json:"prompt"`
	Config        any      `json:"config,omitempty"`
	Labels        []string `json:"labels,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CommitMessage string   `json:"commitMessage,omitempty"`
}

type CreateDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Metadata    any    `json:"metadata,omitempty"`
}

type CreateDatasetItemRequest struct {
	DatasetName         string `json:"datasetName"`
	ID                  string `json:"id,omitempty"`
	Input               any    `json:"input,omitempty"`
	ExpectedOutput      any    `json:"expectedOutput,omitempty"`
	Metadata            any    `json:"metadata,omitempty"`
	SourceTraceID       string `json:"sourceTraceId,omitempty"`
	SourceObservationID string `json:"sourceObservationId,omitempty"`
	Status              string `json:"status,omitempty"`
}

type CreateCommentRequest struct {
	ProjectID    string `json:"projectId"`
	ObjectType   string `json:"objectType"` // TRACE, OBSERVATION, SESSION, PROMPT
	ObjectID     string `json:"objectId"`
	Content      string `json:"content"`
	AuthorUserID string `json:"authorUserId,omitempty"`
}

type CreateScoreRequest struct {
	TraceID       string `json:"traceId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	ObservationID string `json:"observationId,omitempty"`
	Name          string `json:"name"`
	Value         any    `json:"value"`
	DataType      string `json:"dataType,omitempty"`
	Comment       string `json:"comment,omitempty"`
}
