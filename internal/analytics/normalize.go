package analytics

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alecgard/langfuse-mcp/internal/langfuse"
)

// Field names the metrics endpoint uses for the per-user query. Each is the
// measure suffixed with its aggregation.
const (
	userIDField     = "userId"
	userCostField   = "totalCost_sum"
	userTokensField = "totalTokens_sum"
	userCountField  = "count_count"
	dailyDateLayout = "2006-01-02"
)

// userMetrics is the metric list normalizeUserRows expects in result rows.
var userMetrics = []langfuse.Metric{
	{Measure: "totalCost", Aggregation: "sum"},
	{Measure: "totalTokens", Aggregation: "sum"},
	{Measure: "count", Aggregation: "count"},
}

// normalizeDaily maps daily rows into Days inside w, sorted by date
// ascending. Token totals are re-summed from the nested usage rows. Rows
// whose date cannot be parsed are counted and dropped.
func normalizeDaily(raw []langfuse.DailyMetric, w Window) ([]Day, int) {
	days := make([]Day, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		date, ok := parseDay(r.Date)
		if !ok {
			skipped++
			continue
		}
		if !w.containsDate(date) {
			continue
		}

		day := Day{
			Date:         date.Format(dailyDateLayout),
			Cost:         nonNegative(r.TotalCost),
			Traces:       max(r.CountTraces, 0),
			Observations: max(r.CountObservations, 0),
		}
		for _, u := range r.Usage {
			model := strings.TrimSpace(u.Model)
			if model == "" {
				model = UnknownKey
			}
			tokens := usageTokens(u)
			day.Tokens += tokens
			day.Models = append(day.Models, Row{
				Key:    model,
				Cost:   nonNegative(u.TotalCost),
				Tokens: tokens,
				Count:  max(u.CountObservations, 0),
			})
		}
		days = append(days, day)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, skipped
}

// normalizeUserRows maps per-user metrics rows into Rows in response order.
func normalizeUserRows(data []map[string]any) []Row {
	rows := make([]Row, 0, len(data))
	for _, d := range data {
		key, _ := d[userIDField].(string)
		if strings.TrimSpace(key) == "" {
			key = UnknownKey
		}
		rows = append(rows, Row{
			Key:    key,
			Cost:   nonNegative(number(d[userCostField])),
			Tokens: toInt64(number(d[userTokensField])),
			Count:  toInt64(number(d[userCountField])),
		})
	}
	return rows
}

func usageTokens(u langfuse.DailyUsage) int64 {
	if u.TotalUsage > 0 {
		return u.TotalUsage
	}
	return max(u.InputUsage, 0) + max(u.OutputUsage, 0)
}

func parseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(dailyDateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// number reads a metric value. The backend returns numbers, numeric strings
// or null depending on the store behind it.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// toInt64 converts a non-negative count, saturating at math.MaxInt64.
func toInt64(f float64) int64 {
	f = nonNegative(f)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
