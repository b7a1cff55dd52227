package tools

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

const (
	defaultTruncateLength = 1000
	maxTruncateLength     = 100000
)

// observationContentFields are trimmed or dropped by list_observations and
// get_observation.
var observationContentFields = []string{"input", "output"}

var observationTypes = []string{"GENERATION", "SPAN", "EVENT"}

// expensiveTrace is the slim row returned by get_top_expensive_traces.
type expensiveTrace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	TotalCost float64   `json:"totalCost"`
	Latency   float64   `json:"latency"`
}

func (s *Set) traceTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name:        "list_traces",
			Description: "List traces, newest first unless orderBy says otherwise. Supports filtering by name, user, session, tags and time range.",
			Options: withOptions(
				pagingOptions(),
				rangeOptions("traces"),
				[]mcp.ToolOption{
					mcp.WithString("name", mcp.Description("Trace name")),
					mcp.WithString("userId", mcp.Description("User id")),
					mcp.WithString("sessionId", mcp.Description("Session id")),
					mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags the trace must carry")),
					mcp.WithString("orderBy", mcp.Enum(langfuse.TraceSortFields...), mcp.Description("Sort field")),
					mcp.WithString("order", mcp.Enum("asc", "desc"), mcp.Description("Sort direction (default desc)")),
				},
			),
			Handler: s.listTraces,
		},
		{
			Name:        "get_trace",
			Description: "Get one trace with its observations and scores.",
			Options: []mcp.ToolOption{
				mcp.WithString("traceId", mcp.Required(), mcp.Description("Trace id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "traceId")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetTrace(ctx, id))
			},
		},
		{
			Name:        "get_top_expensive_traces",
			Description: "List the most expensive traces in a time window, highest cost first.",
			Options: withOptions(
				windowOptions(),
				[]mcp.ToolOption{
					mcp.WithString("name", mcp.Description("Trace name")),
					mcp.WithString("userId", mcp.Description("User id")),
					limitOption(10),
				},
			),
			Handler: s.topExpensiveTraces,
		},
		{
			Name:        "list_observations",
			Description: "List observations (generations, spans, events). Input and output are truncated to truncateLength characters, or dropped when includeContent is false.",
			Options: withOptions(
				pagingOptions(),
				rangeOptions("observations starting"),
				[]mcp.ToolOption{
					mcp.WithString("traceId", mcp.Description("Parent trace id")),
					mcp.WithString("name", mcp.Description("Observation name")),
					mcp.WithString("userId", mcp.Description("User id")),
					mcp.WithString("type", mcp.Enum(observationTypes...), mcp.Description("Observation type")),
					mcp.WithString("parentObservationId", mcp.Description("Parent observation id")),
				},
				contentOptions(),
			),
			Handler: s.listObservations,
		},
		{
			Name:        "get_observation",
			Description: "Get one observation.",
			Options: withOptions(
				[]mcp.ToolOption{
					mcp.WithString("observationId", mcp.Required(), mcp.Description("Observation id")),
				},
				contentOptions(),
			),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "observationId")
				if err != nil {
					return nil, err
				}
				obs, err := s.deps.API.GetObservation(ctx, id)
				if err != nil {
					return nil, err
				}
				trimContent(obs, includeContent(a), truncateLength(a))
				return obs, nil
			},
		},
		{
			Name:        "list_sessions",
			Description: "List sessions created in a time range.",
			Options:     withOptions(pagingOptions(), rangeOptions("sessions created")),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				q, err := listQuery(a, nil)
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.ListSessions(ctx, q))
			},
		},
		{
			Name:        "get_session",
			Description: "Get one session with its traces.",
			Options: []mcp.ToolOption{
				mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id")),
			},
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				id, err := required(a, "sessionId")
				if err != nil {
					return nil, err
				}
				return raw(s.deps.API.GetSession(ctx, id))
			},
		},
	}
}

func contentOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithBoolean("includeContent", mcp.Description("Include input and output (default true)")),
		mcp.WithNumber("truncateLength", dispatch.Integer(), mcp.Min(1), mcp.Max(maxTruncateLength),
			mcp.Description("Maximum characters kept of input and output (default 1000)")),
	}
}

func (s *Set) listTraces(ctx context.Context, a dispatch.Args) (any, error) {
	page, limit := paging(a)
	q := langfuse.TraceQuery{
		Page:      page,
		Limit:     limit,
		Name:      a.String("name"),
		UserID:    a.String("userId"),
		SessionID: a.String("sessionId"),
		Tags:      a.Strings("tags"),
	}
	var err error
	if q.From, q.To, err = timeRange(a); err != nil {
		return nil, err
	}
	if q.OrderBy, err = langfuse.SortDirective(a.String("orderBy"), a.String("order")); err != nil {
		return nil, dispatch.InvalidArgument("orderBy", "%v", err)
	}
	return s.deps.API.ListTraces(ctx, q)
}

func (s *Set) topExpensiveTraces(ctx context.Context, a dispatch.Args) (any, error) {
	w, err := window(a)
	if err != nil {
		return nil, err
	}
	limit := a.Int("limit", 10)
	page, err := s.deps.API.ListTraces(ctx, langfuse.TraceQuery{
		Page:    1,
		Limit:   limit,
		Name:    a.String("name"),
		UserID:  a.String("userId"),
		From:    &w.From,
		To:      &w.To,
		OrderBy: "totalCost.desc",
	})
	if err != nil {
		return nil, err
	}

	rows := make([]expensiveTrace, 0, len(page.Data))
	for _, t := range page.Data {
		rows = append(rows, expensiveTrace{
			ID:        t.ID,
			Name:      t.Name,
			Timestamp: t.Timestamp,
			UserID:    t.UserID,
			SessionID: t.SessionID,
			Tags:      t.Tags,
			TotalCost: t.TotalCost,
			Latency:   t.Latency,
		})
	}
	return map[string]any{
		"window": w,
		"traces": rows,
	}, nil
}

func (s *Set) listObservations(ctx context.Context, a dispatch.Args) (any, error) {
	page, limit := paging(a)
	q := langfuse.ObservationQuery{
		Page:                page,
		Limit:               limit,
		Name:                a.String("name"),
		UserID:              a.String("userId"),
		Type:                a.String("type"),
		TraceID:             a.String("traceId"),
		ParentObservationID: a.String("parentObservationId"),
	}
	var err error
	if q.From, q.To, err = timeRange(a); err != nil {
		return nil, err
	}

	res, err := s.deps.API.ListObservations(ctx, q)
	if err != nil {
		return nil, err
	}
	include, n := includeContent(a), truncateLength(a)
	for _, obs := range res.Data {
		trimContent(obs, include, n)
	}
	return res, nil
}

func includeContent(a dispatch.Args) bool {
	return !a.Has("includeContent") || a.Bool("includeContent")
}

func truncateLength(a dispatch.Args) int {
	return a.Int("truncateLength", defaultTruncateLength)
}

// trimContent drops the content fields when include is false and otherwise
// shortens string content, or the JSON encoding of structured content, to n
// runes.
func trimContent(obs map[string]any, include bool, n int) {
	for _, field := range observationContentFields {
		v, ok := obs[field]
		if !ok || v == nil {
			continue
		}
		if !include {
			delete(obs, field)
			continue
		}
		obs[field] = truncateValue(v, n)
	}
}

func truncateValue(v any, n int) any {
	s, isString := v.(string)
	if !isString {
		data, err := jsonString(v)
		if err != nil || utf8.RuneCountInString(data) <= n {
			return v
		}
		s = data
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("%s... [truncated %d chars]", string(runes[:n]), len(runes)-n)
}
