package langfuse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TraceSortFields are the fields the traces endpoint accepts in orderBy.
var TraceSortFields = []string{"timestamp", "name", "totalCost"}

// TraceQuery filters the traces list.
type TraceQuery struct {
	Page      int
	Limit     int
	Name      string
	UserID    string
	SessionID string
	Tags      []string
	From      *time.Time
	To        *time.Time
	OrderBy   string // "field.asc" or "field.desc"
}

func (q TraceQuery) values() url.Values {
	v := url.Values{}
	setPaging(v, q.Page, q.Limit)
	setString(v, "name", q.Name)
	setString(v, "userId", q.UserID)
	setString(v, "sessionId", q.SessionID)
	for _, tag := range q.Tags {
		v.Add("tags", tag)
	}
	setTime(v, "fromTimestamp", q.From)
	setTime(v, "toTimestamp", q.To)
	setString(v, "orderBy", q.OrderBy)
	return v
}

// SortDirective builds an orderBy value, rejecting fields outside
// TraceSortFields.
func SortDirective(field, direction string) (string, error) {
	if field == "" {
		return "", nil
	}
	allowed := false
	for _, f := range TraceSortFields {
		if f == field {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("unsupported sort field %q", field)
	}
	switch direction {
	case "", "desc":
		return field + ".desc", nil
	case "asc":
		return field + ".asc", nil
	default:
		return "", fmt.Errorf("unsupported sort direction %q", direction)
	}
}

// ObservationQuery filters the observations list.
type ObservationQuery struct {
	Page                int
	Limit               int
	Name                string
	UserID              string
	Type                string
	TraceID             string
	ParentObservationID string
	From                *time.Time
	To                  *time.Time
}

func (q ObservationQuery) values() url.Values {
	v := url.Values{}
	setPaging(v, q.Page, q.Limit)
	setString(v, "name", q.Name)
	setString(v, "userId", q.UserID)
	setString(v, "type", q.Type)
	setString(v, "traceId", q.TraceID)
	setString(v, "parentObservationId", q.ParentObservationID)
	setTime(v, "fromStartTime", q.From)
	setTime(v, "toStartTime", q.To)
	return v
}

// DailyQuery filters the daily metrics endpoint.
type DailyQuery struct {
	Page      int
	Limit     int
	TraceName string
	UserID    string
	Tags      []string
	From      *time.Time
	To        *time.Time
}

func (q DailyQuery) values() url.Values {
	v := url.Values{}
	setPaging(v, q.Page, q.Limit)
	setString(v, "traceName", q.TraceName)
	setString(v, "userId", q.UserID)
	for _, tag := range q.Tags {
		v.Add("tags", tag)
	}
	setTime(v, "fromTimestamp", q.From)
	setTime(v, "toTimestamp", q.To)
	return v
}

// ListQuery is the generic filter used by the simpler list endpoints. Extra
// holds endpoint specific filters.
type ListQuery struct {
	Page  int
	Limit int
	From  *time.Time
	To    *time.Time
	Extra map[string]string
}

func (q ListQuery) values(fromKey, toKey string) url.Values {
	v := url.Values{}
	setPaging(v, q.Page, q.Limit)
	setTime(v, fromKey, q.From)
	setTime(v, toKey, q.To)
	for k, val := range q.Extra {
		setString(v, k, val)
	}
	return v
}

// Health calls the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, "health", http.MethodGet, "/api/public/health", nil, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out struct {
		Data []Project `json:"data"`
	}
	if err := c.Do(ctx, "list_projects", http.MethodGet, "/api/public/projects", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) ListTraces(ctx context.Context, q TraceQuery) (*Page[Trace], error) {
	var out Page[Trace]
	if err := c.Do(ctx, "list_traces", http.MethodGet, "/api/public/traces", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTrace(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_trace", "/api/public/traces/"+escape(id), nil)
}

func (c *Client) ListObservations(ctx context.Context, q ObservationQuery) (*Page[map[string]any], error) {
	var out Page[map[string]any]
	if err := c.Do(ctx, "list_observations", http.MethodGet, "/api/public/observations", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetObservation(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.Do(ctx, "get_observation", http.MethodGet, "/api/public/observations/"+escape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSessions(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_sessions", "/api/public/sessions", q.values("fromTimestamp", "toTimestamp"))
}

func (c *Client) GetSession(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_session", "/api/public/sessions/"+escape(id), nil)
}

// Metrics runs a general aggregation query. Result row keys are the
// dimension field names and Metric.FieldName of each requested metric.
func (c *Client) Metrics(ctx context.Context, q MetricsQuery) (*MetricsResponse, error) {
	if q.Filters == nil {
		q.Filters = []Filter{}
	}
	doc, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encoding metrics query: %w", err)
	}
	var out MetricsResponse
	v := url.Values{"query": []string{string(doc)}}
	if err := c.Do(ctx, "metrics", http.MethodGet, "/api/public/metrics", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DailyMetrics(ctx context.Context, q DailyQuery) (*Page[DailyMetric], error) {
	var out Page[DailyMetric]
	if err := c.Do(ctx, "daily_metrics", http.MethodGet, "/api/public/metrics/daily", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListModels(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_models", "/api/public/models", q.values("", ""))
}

func (c *Client) GetModel(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_model", "/api/public/models/"+escape(id), nil)
}

func (c *Client) ListPrompts(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_prompts", "/api/public/v2/prompts", q.values("fromUpdatedAt", "toUpdatedAt"))
}

// GetPrompt fetches a prompt by name, optionally pinned to a version or label.
func (c *Client) GetPrompt(ctx context.Context, name string, version int, label string) (json.RawMessage, error) {
	v := url.Values{}
	if version > 0 {
		v.Set("version", strconv.Itoa(version))
	}
	setString(v, "label", label)
	return c.getRaw(ctx, "get_prompt", "/api/public/v2/prompts/"+escape(name), v)
}

func (c *Client) CreatePrompt(ctx context.Context, req CreatePromptRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "create_prompt", http.MethodPost, "/api/public/v2/prompts", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdatePromptLabels(ctx context.Context, name string, version int, labels []string) (json.RawMessage, error) {
	if labels == nil {
		labels = []string{}
	}
	body := map[string]any{"newLabels": labels}
	path := fmt.Sprintf("/api/public/v2/prompts/%s/versions/%d", escape(name), version)
	var out json.RawMessage
	if err := c.Do(ctx, "update_prompt_labels", http.MethodPatch, path, nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListDatasets(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_datasets", "/api/public/v2/datasets", q.values("", ""))
}

func (c *Client) GetDataset(ctx context.Context, name string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_dataset", "/api/public/v2/datasets/"+escape(name), nil)
}

func (c *Client) CreateDataset(ctx context.Context, req CreateDatasetRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "create_dataset", http.MethodPost, "/api/public/v2/datasets", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListDatasetItems(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_dataset_items", "/api/public/dataset-items", q.values("", ""))
}

func (c *Client) GetDatasetItem(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_dataset_item", "/api/public/dataset-items/"+escape(id), nil)
}

func (c *Client) CreateDatasetItem(ctx context.Context, req CreateDatasetItemRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "create_dataset_item", http.MethodPost, "/api/public/dataset-items", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteDatasetItem(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "delete_dataset_item", http.MethodDelete, "/api/public/dataset-items/"+escape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListComments(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_comments", "/api/public/comments", q.values("", ""))
}

func (c *Client) GetComment(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "get_comment", "/api/public/comments/"+escape(id), nil)
}

func (c *Client) CreateComment(ctx context.Context, req CreateCommentRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "create_comment", http.MethodPost, "/api/public/comments", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListScores(ctx context.Context, q ListQuery) (json.RawMessage, error) {
	return c.getRaw(ctx, "list_scores", "/api/public/v2/scores", q.values("fromTimestamp", "toTimestamp"))
}

func (c *Client) CreateScore(ctx context.Context, req CreateScoreRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "create_score", http.MethodPost, "/api/public/scores", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteScore(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, "delete_score", http.MethodDelete, "/api/public/scores/"+escape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getRaw(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, op, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// escape encodes a single path segment, including any slash in it.
func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "/", "%2F")
}

func setPaging(v url.Values, page, limit int) {
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
}

func setString(v url.Values, key, val string) {
	if key != "" && val != "" {
		v.Set(key, val)
	}
}

func setTime(v url.Values, key string, t *time.Time) {
	if key != "" && t != nil && !t.IsZero() {
		v.Set(key, t.UTC().Format(time.RFC3339))
	}
}
