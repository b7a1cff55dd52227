package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP       httpSummary      `json:"http"`
	Operations operationSummary `json:"operations"`
	Upstream   upstreamSummary  `json:"upstream"`
	RateLimit  rateLimitInfo    `json:"rateLimit"`
	Audit      auditInfo        `json:"audit"`
	Auth       authInfo         `json:"auth"`
	DB         dbInfo           `json:"db"`
	Server     serverInfo       `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type operationSummary struct {
	Total      float64            `json:"total"`
	ByOutcome  map[string]float64 `json:"byOutcome"`
	P50Latency float64            `json:"p50Latency"`
	P95Latency float64            `json:"p95Latency"`
}

type upstreamSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	Errors        float64 `json:"errors"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type auditInfo struct {
	Records      float64 `json:"records"`
	Failures     float64 `json:"failures"`
	BufferSize   float64 `json:"bufferSize"`
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Flushed      float64 `json:"flushed"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
}

// PrometheusHandler serves the private registry in the exposition format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Handler returns an http.HandlerFunc that serves a JSON summary of the
// live metrics.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summary()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summary gathers the registry and condenses it.
func (m *Metrics) Summary() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	start := gaugeValue(fam["langfuse_mcp_server_start_time_seconds"])
	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["langfuse_mcp_http_requests_total"]),
			ErrorRate:     errorRate(fam["langfuse_mcp_http_requests_total"], '4'),
			P50Latency:    histogramPercentile(fam["langfuse_mcp_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["langfuse_mcp_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["langfuse_mcp_http_request_duration_seconds"], 0.99),
		},
		Operations: operationSummary{
			Total:      sumCounter(fam["langfuse_mcp_operations_total"]),
			ByOutcome:  counterByLabel(fam["langfuse_mcp_operations_total"], "outcome"),
			P50Latency: histogramPercentile(fam["langfuse_mcp_operation_duration_seconds"], 0.50),
			P95Latency: histogramPercentile(fam["langfuse_mcp_operation_duration_seconds"], 0.95),
		},
		Upstream: upstreamSummary{
			TotalRequests: sumCounter(fam["langfuse_mcp_upstream_requests_total"]),
			ErrorRate:     errorRate(fam["langfuse_mcp_upstream_requests_total"], '4'),
			Errors:        sumCounter(fam["langfuse_mcp_upstream_errors_total"]),
			P50Latency:    histogramPercentile(fam["langfuse_mcp_upstream_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["langfuse_mcp_upstream_duration_seconds"], 0.95),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["langfuse_mcp_ratelimit_rejections_total"]),
		},
		Audit: auditInfo{
			Records:      sumCounter(fam["langfuse_mcp_audit_records_total"]),
			Failures:     sumCounter(fam["langfuse_mcp_audit_failures_total"]),
			BufferSize:   gaugeValue(fam["langfuse_mcp_audit_buffer_size"]),
			TotalFlushes: sumCounter(fam["langfuse_mcp_audit_flushes_total"]),
			FlushErrors:  counterWithLabel(fam["langfuse_mcp_audit_flushes_total"], "status", "error"),
			Flushed:      sumCounter(fam["langfuse_mcp_audit_flushed_records_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["langfuse_mcp_auth_failures_total"]),
			Successes: sumCounter(fam["langfuse_mcp_auth_successes_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["langfuse_mcp_audit_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["langfuse_mcp_audit_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["langfuse_mcp_audit_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["langfuse_mcp_audit_db_pool_max_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// counterByLabel sums a counter family grouped by one label's values.
func counterByLabel(f *dto.MetricFamily, labelName string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// errorRate is the share of a counter family whose status_code label starts
// at or above the given digit. Status "0" (no response) counts as an error.
func errorRate(f *dto.MetricFamily, from byte) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() != "status_code" {
				continue
			}
			code := lp.GetValue()
			if len(code) > 0 && (code[0] >= from || code == "0") {
				errors += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Aggregate all histogram metrics in the family.
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
