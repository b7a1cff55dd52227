package tools

import (
	"context"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/analytics"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

var groupByValues = []string{analytics.ByModel, analytics.ByUser, analytics.ByDay}

func (s *Set) usageTools() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{
			Name: "get_cost_analysis",
			Description: "Total cost and tokens for a time window with breakdowns by model, user and day. " +
				"Totals come from daily aggregates; the user breakdown is best effort and reported as a warning when unavailable.",
			Options: withOptions(
				windowOptions(),
				filterOptions(),
				[]mcp.ToolOption{
					mcp.WithArray("groupBy",
						mcp.WithStringEnumItems(groupByValues),
						mcp.Description("Breakdowns to compute (default: model, user and day)")),
					limitOption(20),
				},
			),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				w, err := window(a)
				if err != nil {
					return nil, err
				}
				groups := a.Strings("groupBy")
				for _, g := range groups {
					if !slices.Contains(groupByValues, g) {
						return nil, dispatch.InvalidArgument("groupBy", "must only contain model, user or day")
					}
				}
				return s.deps.Analytics.CostAnalysis(ctx, analytics.CostQuery{
					Window:  w,
					Filter:  filter(a),
					GroupBy: groups,
					Limit:   a.Int("limit", 20),
				})
			},
		},
		{
			Name:        "get_usage_by_model",
			Description: "Cost, tokens and observation count per model for a time window, highest cost first.",
			Options:     withOptions(windowOptions(), filterOptions(), []mcp.ToolOption{limitOption(20)}),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				w, err := window(a)
				if err != nil {
					return nil, err
				}
				return s.deps.Analytics.ModelUsage(ctx, w, filter(a), a.Int("limit", 20))
			},
		},
		{
			Name:        "get_usage_by_user",
			Description: "Cost, tokens and trace count per user for a time window, highest cost first.",
			Options:     withOptions(windowOptions(), filterOptions(), []mcp.ToolOption{limitOption(20)}),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				w, err := window(a)
				if err != nil {
					return nil, err
				}
				return s.deps.Analytics.UserUsage(ctx, w, filter(a), a.Int("limit", 20))
			},
		},
		{
			Name:        "get_daily_metrics",
			Description: "Per-day cost, tokens, trace and observation counts for a time window, oldest day first.",
			Options:     withOptions(windowOptions(), filterOptions()),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				w, err := window(a)
				if err != nil {
					return nil, err
				}
				return s.deps.Analytics.DailyMetrics(ctx, w, filter(a))
			},
		},
		{
			Name:        "get_project_overview",
			Description: "Headline numbers for a time window: total cost, tokens, traces, observations and the top models.",
			Options: withOptions(windowOptions(), []mcp.ToolOption{
				mcp.WithNumber("topModels", dispatch.Integer(), mcp.Min(1), mcp.Max(maxLimit),
					mcp.Description("Number of models to list (default 5)")),
			}),
			Handler: func(ctx context.Context, a dispatch.Args) (any, error) {
				w, err := window(a)
				if err != nil {
					return nil, err
				}
				return s.deps.Analytics.Overview(ctx, w, a.Int("topModels", 5))
			},
		},
		{
			Name: "query_metrics",
			Description: "Run an aggregation over traces, observations or scores. Metrics are written measure:aggregation, " +
				"for example totalCost:sum or latency:p95.",
			Options: withOptions(windowOptions(), []mcp.ToolOption{
				mcp.WithString("view", mcp.Required(), mcp.Enum(analytics.QueryViews...),
					mcp.Description("Data set to aggregate")),
				mcp.WithArray("metrics", mcp.Required(), mcp.WithStringItems(),
					mcp.Description("Metrics as measure:aggregation")),
				mcp.WithArray("dimensions", mcp.WithStringItems(),
					mcp.Description("Fields to group by, for example name or providedModelName")),
				mcp.WithString("granularity", mcp.Enum(analytics.QueryGranularity...),
					mcp.Description("Also group by time bucket")),
				mcp.WithArray("filters", mcp.Items(map[string]any{"type": "object"}),
					mcp.Description("Filters as {column, operator, value, type}")),
				mcp.WithString("orderBy", mcp.Description("Field to sort by, usually a dimension or measure_aggregation")),
				mcp.WithString("order", mcp.Enum("asc", "desc"), mcp.Description("Sort direction (default desc)")),
			}),
			Handler: s.queryMetrics,
		},
	}
}

func (s *Set) queryMetrics(ctx context.Context, a dispatch.Args) (any, error) {
	w, err := window(a)
	if err != nil {
		return nil, err
	}
	q := langfuse.MetricsQuery{View: a.String("view")}

	names := a.Strings("metrics")
	if len(names) == 0 {
		return nil, dispatch.InvalidArgument("metrics", "must name at least one metric")
	}
	for _, name := range names {
		m, err := analytics.ParseMetric(name)
		if err != nil {
			return nil, dispatch.InvalidArgument("metrics", "%v", err)
		}
		q.Metrics = append(q.Metrics, m)
	}
	for _, d := range a.Strings("dimensions") {
		q.Dimensions = append(q.Dimensions, langfuse.Dimension{Field: d})
	}
	if g := a.String("granularity"); g != "" {
		q.TimeDimension = &langfuse.TimeDimension{Granularity: g}
	}
	if q.Filters, err = metricFilters(a.Raw("filters")); err != nil {
		return nil, err
	}
	if field := a.String("orderBy"); field != "" {
		dir := a.String("order")
		if dir == "" {
			dir = "desc"
		}
		q.OrderBy = []langfuse.OrderBy{{Field: field, Direction: dir}}
	}
	return s.deps.Analytics.QueryMetrics(ctx, w, q)
}

func metricFilters(v any) ([]langfuse.Filter, error) {
	items, _ := v.([]any)
	out := make([]langfuse.Filter, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, dispatch.InvalidArgument("filters", "item %d must be an object", i)
		}
		f := langfuse.Filter{Value: m["value"]}
		f.Column, _ = m["column"].(string)
		f.Operator, _ = m["operator"].(string)
		f.Type, _ = m["type"].(string)
		if f.Column == "" || f.Operator == "" {
			return nil, dispatch.InvalidArgument("filters", "item %d needs column and operator", i)
		}
		if f.Type == "" {
			f.Type = "string"
		}
		out = append(out, f)
	}
	return out, nil
}
