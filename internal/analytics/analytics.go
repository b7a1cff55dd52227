// Package analytics derives cost and usage breakdowns from the Langfuse
// metrics endpoints.
//
// The daily endpoint is the source of truth for totals, model and day
// breakdowns. The general metrics endpoint names its result fields after the
// aggregation (totalCost_sum, count_count, ...) and is only used where no
// daily source exists, which today means the per-user breakdown.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

// UnknownKey replaces missing model names and user ids.
const UnknownKey = "unknown"

const (
	dailyPageSize = 100
	maxDailyPages = 50
)

// ErrInvalidWindow is returned when From is after To.
var ErrInvalidWindow = errors.New("invalid time window")

// DailySource serves pre-aggregated per-day rows.
type DailySource interface {
	DailyMetrics(ctx context.Context, q langfuse.DailyQuery) (*langfuse.Page[langfuse.DailyMetric], error)
}

// MetricsSource serves general aggregation queries.
type MetricsSource interface {
	Metrics(ctx context.Context, q langfuse.MetricsQuery) (*langfuse.MetricsResponse, error)
}

// Window is a closed time range.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (w Window) Validate() error {
	if w.From.After(w.To) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidWindow,
			w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// containsDate reports whether a day starting at d overlaps the window.
func (w Window) containsDate(d time.Time) bool {
	fromDay := w.From.UTC().Truncate(24 * time.Hour)
	return !d.Before(fromDay) && !d.After(w.To)
}

// Filter narrows the traces considered by an aggregate.
type Filter struct {
	TraceName string
	UserID    string
	Tags      []string
}

// Row is one dimension-keyed aggregate. All numbers are non-negative and
// Percentage lies in [0, 100].
type Row struct {
	Key        string  `json:"key"`
	Cost       float64 `json:"cost"`
	Tokens     int64   `json:"tokens"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Day is one normalized row of the daily source.
type Day struct {
	Date         string  `json:"date"`
	Cost         float64 `json:"cost"`
	Tokens       int64   `json:"tokens"`
	Traces       int64   `json:"traces"`
	Observations int64   `json:"observations"`
	Models       []Row   `json:"models,omitempty"`
}

// Service computes derived metrics. It holds no state between calls.
type Service struct {
	daily   DailySource
	metrics MetricsSource
	logger  *slog.Logger
}

// NewService creates a Service. *langfuse.Client satisfies both sources.
func NewService(daily DailySource, metrics MetricsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{daily: daily, metrics: metrics, logger: logger}
}

// Percentage is cost's share of total rounded half-up to two decimals, or 0
// when total is not positive.
func Percentage(cost, total float64) float64 {
	if total <= 0 || cost <= 0 {
		return 0
	}
	p := math.Round(cost/total*10000) / 100
	return math.Min(p, 100)
}

// rank sorts rows by cost descending, keeping arrival order for equal costs,
// fills in percentages and truncates to limit when limit > 0.
func rank(rows []Row, total float64, limit int) []Row {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Cost > rows[j].Cost })
	for i := range rows {
		rows[i].Percentage = Percentage(rows[i].Cost, total)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// fetchDays pages through the daily source and returns the in-window days
// sorted by date ascending.
func (s *Service) fetchDays(ctx context.Context, w Window, f Filter) ([]Day, []string, error) {
	from, to := w.From, w.To
	var raw []langfuse.DailyMetric
	var warnings []string

	for page := 1; page <= maxDailyPages; page++ {
		resp, err := s.daily.DailyMetrics(ctx, langfuse.DailyQuery{
			Page:      page,
			Limit:     dailyPageSize,
			TraceName: f.TraceName,
			UserID:    f.UserID,
			Tags:      f.Tags,
			From:      &from,
			To:        &to,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("fetching daily metrics: %w", err)
		}
		raw = append(raw, resp.Data...)
		// A response without meta reports zero pages; only a short page ends it.
		if len(resp.Data) < dailyPageSize || (resp.Meta.TotalPages > 0 && page >= resp.Meta.TotalPages) {
			break
		}
		if page == maxDailyPages {
			warnings = append(warnings, fmt.Sprintf("daily metrics truncated after %d pages", maxDailyPages))
		}
	}

	days, skipped := normalizeDaily(raw, w)
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("skipped %d daily rows with unparseable dates", skipped))
	}
	return days, warnings, nil
}

// totals sums days in the order given so the result equals a sequential sum
// over the same slice.
func totals(days []Day) (cost float64, tokens, traces, observations int64) {
	for _, d := range days {
		cost += d.Cost
		tokens += d.Tokens
		traces += d.Traces
		observations += d.Observations
	}
	return cost, tokens, traces, observations
}

// modelRows merges the per-model usage of every day, keyed by model name in
// first-seen order.
func modelRows(days []Day) []Row {
	index := make(map[string]int)
	var rows []Row
	for _, d := range days {
		for _, m := range d.Models {
			i, ok := index[m.Key]
			if !ok {
				i = len(rows)
				index[m.Key] = i
				rows = append(rows, Row{Key: m.Key})
			}
			rows[i].Cost += m.Cost
			rows[i].Tokens += m.Tokens
			rows[i].Count += m.Count
		}
	}
	return rows
}
