package tools

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/analytics"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	// defaultSpan is the analytics window when neither bound is given.
	defaultSpan = 7 * 24 * time.Hour
)

var errNoProject = errors.New("no project is visible to the configured credentials")

// pagingOptions adds the page and limit arguments shared by list operations.
func pagingOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("page", dispatch.Integer(), mcp.Min(1),
			mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("limit", dispatch.Integer(), mcp.Min(1), mcp.Max(maxLimit),
			mcp.Description("Items per page (1-100, default 20)")),
	}
}

// rangeOptions adds optional from/to timestamps.
func rangeOptions(what string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("from", mcp.Description("Only "+what+" at or after this ISO-8601 timestamp")),
		mcp.WithString("to", mcp.Description("Only "+what+" before this ISO-8601 timestamp")),
	}
}

// windowOptions adds the analytics window arguments.
func windowOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("from", mcp.Description("Window start, ISO-8601 (default: 7 days before 'to')")),
		mcp.WithString("to", mcp.Description("Window end, ISO-8601 (default: now)")),
	}
}

// filterOptions adds the trace filters understood by the analytics sources.
func filterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("traceName", mcp.Description("Only traces with this name")),
		mcp.WithString("userId", mcp.Description("Only traces of this user")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Only traces carrying all of these tags")),
	}
}

func withOptions(groups ...[]mcp.ToolOption) []mcp.ToolOption {
	var out []mcp.ToolOption
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func paging(a dispatch.Args) (page, limit int) {
	return a.Int("page", 1), a.Int("limit", defaultLimit)
}

// listQuery builds the generic list query. extra maps argument names to the
// query parameters they are sent as; empty arguments are skipped.
func listQuery(a dispatch.Args, extra map[string]string) (langfuse.ListQuery, error) {
	page, limit := paging(a)
	q := langfuse.ListQuery{Page: page, Limit: limit}
	var err error
	if q.From, q.To, err = timeRange(a); err != nil {
		return q, err
	}
	for arg, param := range extra {
		if v := a.String(arg); v != "" {
			if q.Extra == nil {
				q.Extra = map[string]string{}
			}
			q.Extra[param] = v
		}
	}
	return q, nil
}

// timeRange parses the optional from/to arguments of list operations.
func timeRange(a dispatch.Args) (from, to *time.Time, err error) {
	if from, err = a.Time("from"); err != nil {
		return nil, nil, err
	}
	if to, err = a.Time("to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, dispatch.InvalidArgument("from", "must not be after to")
	}
	return from, to, nil
}

func window(a dispatch.Args) (analytics.Window, error) {
	from, to, err := a.Window("from", "to", defaultSpan)
	return analytics.Window{From: from, To: to}, err
}

func filter(a dispatch.Args) analytics.Filter {
	return analytics.Filter{
		TraceName: a.String("traceName"),
		UserID:    a.String("userId"),
		Tags:      a.Strings("tags"),
	}
}

// limitOption adds a breakdown row limit.
func limitOption(def int) mcp.ToolOption {
	return mcp.WithNumber("limit", dispatch.Integer(), mcp.Min(1), mcp.Max(maxLimit),
		mcp.Description("Maximum rows per breakdown"), mcp.DefaultNumber(float64(def)))
}

// required returns the trimmed string argument or an error naming it. The
// schema already rejects a missing key; this catches blank strings.
func required(a dispatch.Args, key string) (string, error) {
	v := a.String(key)
	if v == "" {
		return "", dispatch.InvalidArgument(key, "must not be empty")
	}
	return v, nil
}

func ref(kind, key string) func(dispatch.Args) string {
	return func(a dispatch.Args) string {
		if v := a.String(key); v != "" {
			return kind + ":" + v
		}
		return kind
	}
}

// raw passes a backend document through without re-encoding it.
func raw(b json.RawMessage, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
