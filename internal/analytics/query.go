package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

// Views, aggregations and granularities the general metrics endpoint accepts.
var (
	QueryViews        = []string{"traces", "observations", "scores-numeric", "scores-categorical"}
	QueryAggregations = []string{"sum", "avg", "count", "max", "min", "p50", "p75", "p90", "p95", "p99", "histogram"}
	QueryGranularity  = []string{"auto", "minute", "hour", "day", "week", "month"}
)

// MetricValue is one aggregate of a result row, split back into the measure
// and aggregation the backend joined into its field name.
type MetricValue struct {
	Measure     string  `json:"measure"`
	Aggregation string  `json:"aggregation"`
	Value       float64 `json:"value"`
}

// QueryRow is one normalized result row.
type QueryRow struct {
	Dimensions map[string]any `json:"dimensions"`
	Values     []MetricValue  `json:"values"`
}

// QueryResult is the normalized answer of a general metrics query.
type QueryResult struct {
	View string     `json:"view"`
	Rows []QueryRow `json:"rows"`
}

// QueryMetrics runs a general aggregation query. Every key of a result row
// that is not a requested metric is treated as a dimension.
func (s *Service) QueryMetrics(ctx context.Context, w Window, q langfuse.MetricsQuery) (*QueryResult, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if len(q.Metrics) == 0 {
		return nil, errors.New("at least one metric is required")
	}
	q.FromTimestamp = w.From.UTC().Format(time.RFC3339)
	q.ToTimestamp = w.To.UTC().Format(time.RFC3339)

	resp, err := s.metrics.Metrics(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("running metrics query: %w", err)
	}
	return &QueryResult{View: q.View, Rows: normalizeQueryRows(resp.Data, q.Metrics)}, nil
}

func normalizeQueryRows(data []map[string]any, metrics []langfuse.Metric) []QueryRow {
	fields := make(map[string]langfuse.Metric, len(metrics))
	for _, m := range metrics {
		fields[m.FieldName()] = m
	}

	rows := make([]QueryRow, 0, len(data))
	for _, d := range data {
		row := QueryRow{Dimensions: map[string]any{}, Values: make([]MetricValue, 0, len(metrics))}
		for _, m := range metrics {
			row.Values = append(row.Values, MetricValue{
				Measure:     m.Measure,
				Aggregation: m.Aggregation,
				Value:       number(d[m.FieldName()]),
			})
		}
		for k, v := range d {
			if _, isMetric := fields[k]; isMetric {
				continue
			}
			row.Dimensions[k] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// ParseMetric splits "measure_aggregation" or "measure:aggregation" into a
// Metric, validating the aggregation.
func ParseMetric(s string) (langfuse.Metric, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexAny(s, ":_")
	if i <= 0 || i == len(s)-1 {
		return langfuse.Metric{}, fmt.Errorf("metric %q must look like measure:aggregation", s)
	}
	m := langfuse.Metric{Measure: s[:i], Aggregation: s[i+1:]}
	for _, a := range QueryAggregations {
		if a == m.Aggregation {
			return m, nil
		}
	}
	return langfuse.Metric{}, fmt.Errorf("metric %q has unsupported aggregation %q", s, m.Aggregation)
}
