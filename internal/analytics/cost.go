package analytics

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

// Breakdown dimensions accepted by CostAnalysis.
const (
	ByModel = "model"
	ByUser  = "user"
	ByDay   = "day"
)

// CostQuery parameterizes CostAnalysis. An empty GroupBy means all three
// breakdowns.
type CostQuery struct {
	Window  Window
	Filter  Filter
	GroupBy []string
	Limit   int
}

// CostAnalysis is the combined cost result. A breakdown that was not
// requested is nil. ByDay is never truncated so its costs always add up to
// TotalCost.
type CostAnalysis struct {
	Window      Window   `json:"window"`
	TotalCost   float64  `json:"totalCost"`
	TotalTokens int64    `json:"totalTokens"`
	ByModel     []Row    `json:"byModel"`
	ByUser      []Row    `json:"byUser"`
	ByDay       []Day    `json:"byDay"`
	Warnings    []string `json:"warnings,omitempty"`
}

// CostAnalysis fetches the daily source and, when requested, the per-user
// breakdown concurrently. A failed user breakdown degrades to an empty slice
// plus a warning; a failed daily fetch fails the call.
func (s *Service) CostAnalysis(ctx context.Context, q CostQuery) (*CostAnalysis, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}
	groups := q.GroupBy
	if len(groups) == 0 {
		groups = []string{ByModel, ByUser, ByDay}
	}

	var (
		days      []Day
		warnings  []string
		users     []Row
		userErr   error
		wantUsers = slices.Contains(groups, ByUser)
	)

	// A plain group: the user fetch must never cancel the daily fetch.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		days, warnings, err = s.fetchDays(ctx, q.Window, q.Filter)
		return err
	})
	if wantUsers {
		g.Go(func() error {
			users, userErr = s.fetchUsers(ctx, q.Window, q.Filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total, tokens, _, _ := totals(days)
	res := &CostAnalysis{
		Window:      q.Window,
		TotalCost:   total,
		TotalTokens: tokens,
		Warnings:    warnings,
	}
	if slices.Contains(groups, ByModel) {
		res.ByModel = rank(modelRows(days), total, q.Limit)
		if res.ByModel == nil {
			res.ByModel = []Row{}
		}
	}
	if slices.Contains(groups, ByDay) {
		res.ByDay = days
	}
	if wantUsers {
		res.ByUser = []Row{}
		if userErr != nil {
			s.logger.Warn("user breakdown unavailable", "error", userErr)
			res.Warnings = append(res.Warnings, "user breakdown unavailable: "+userErr.Error())
		} else {
			res.ByUser = rank(users, total, q.Limit)
		}
	}
	return res, nil
}

// ModelUsage is the per-model breakdown for a window.
type ModelUsage struct {
	Window      Window   `json:"window"`
	TotalCost   float64  `json:"totalCost"`
	TotalTokens int64    `json:"totalTokens"`
	Models      []Row    `json:"models"`
	Warnings    []string `json:"warnings,omitempty"`
}

func (s *Service) ModelUsage(ctx context.Context, w Window, f Filter, limit int) (*ModelUsage, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	days, warnings, err := s.fetchDays(ctx, w, f)
	if err != nil {
		return nil, err
	}
	total, tokens, _, _ := totals(days)
	models := rank(modelRows(days), total, limit)
	if models == nil {
		models = []Row{}
	}
	return &ModelUsage{Window: w, TotalCost: total, TotalTokens: tokens, Models: models, Warnings: warnings}, nil
}

// DailySummary is the day-by-day view of a window.
type DailySummary struct {
	Window            Window   `json:"window"`
	TotalCost         float64  `json:"totalCost"`
	TotalTokens       int64    `json:"totalTokens"`
	TotalTraces       int64    `json:"totalTraces"`
	TotalObservations int64    `json:"totalObservations"`
	Days              []Day    `json:"days"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (s *Service) DailyMetrics(ctx context.Context, w Window, f Filter) (*DailySummary, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	days, warnings, err := s.fetchDays(ctx, w, f)
	if err != nil {
		return nil, err
	}
	cost, tokens, traces, observations := totals(days)
	return &DailySummary{
		Window:            w,
		TotalCost:         cost,
		TotalTokens:       tokens,
		TotalTraces:       traces,
		TotalObservations: observations,
		Days:              days,
		Warnings:          warnings,
	}, nil
}

// UserUsage is the per-user breakdown for a window. Percentages are relative
// to the sum over the returned users.
type UserUsage struct {
	Window    Window  `json:"window"`
	TotalCost float64 `json:"totalCost"`
	Users     []Row   `json:"users"`
}

// UserUsage fails when the metrics query fails; only CostAnalysis degrades.
func (s *Service) UserUsage(ctx context.Context, w Window, f Filter, limit int) (*UserUsage, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	users, err := s.fetchUsers(ctx, w, f)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, u := range users {
		total += u.Cost
	}
	return &UserUsage{Window: w, TotalCost: total, Users: rank(users, total, limit)}, nil
}

// Overview summarizes a window for a dashboard-style answer.
type Overview struct {
	Window            Window   `json:"window"`
	TotalCost         float64  `json:"totalCost"`
	TotalTokens       int64    `json:"totalTokens"`
	TotalTraces       int64    `json:"totalTraces"`
	TotalObservations int64    `json:"totalObservations"`
	ActiveDays        int      `json:"activeDays"`
	AvgDailyCost      float64  `json:"avgDailyCost"`
	AvgCostPerTrace   float64  `json:"avgCostPerTrace"`
	TopModels         []Row    `json:"topModels"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (s *Service) Overview(ctx context.Context, w Window, topModels int) (*Overview, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	days, warnings, err := s.fetchDays(ctx, w, Filter{})
	if err != nil {
		return nil, err
	}
	cost, tokens, traces, observations := totals(days)
	o := &Overview{
		Window:            w,
		TotalCost:         cost,
		TotalTokens:       tokens,
		TotalTraces:       traces,
		TotalObservations: observations,
		ActiveDays:        len(days),
		TopModels:         rank(modelRows(days), cost, topModels),
		Warnings:          warnings,
	}
	if o.TopModels == nil {
		o.TopModels = []Row{}
	}
	if len(days) > 0 {
		o.AvgDailyCost = cost / float64(len(days))
	}
	if traces > 0 {
		o.AvgCostPerTrace = cost / float64(traces)
	}
	return o, nil
}

func (s *Service) fetchUsers(ctx context.Context, w Window, f Filter) ([]Row, error) {
	resp, err := s.metrics.Metrics(ctx, langfuse.MetricsQuery{
		View:          "traces",
		Dimensions:    []langfuse.Dimension{{Field: userIDField}},
		Metrics:       userMetrics,
		Filters:       traceFilters(f),
		FromTimestamp: w.From.UTC().Format(time.RFC3339),
		ToTimestamp:   w.To.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching user breakdown: %w", err)
	}
	return normalizeUserRows(resp.Data), nil
}

func traceFilters(f Filter) []langfuse.Filter {
	filters := []langfuse.Filter{}
	if f.TraceName != "" {
		filters = append(filters, langfuse.Filter{Column: "name", Operator: "=", Value: f.TraceName, Type: "string"})
	}
	if f.UserID != "" {
		filters = append(filters, langfuse.Filter{Column: "userId", Operator: "=", Value: f.UserID, Type: "string"})
	}
	if len(f.Tags) > 0 {
		filters = append(filters, langfuse.Filter{Column: "tags", Operator: "any of", Value: f.Tags, Type: "arrayOptions"})
	}
	return filters
}
