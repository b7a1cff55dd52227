package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Operation metrics.
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Langfuse upstream metrics.
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec
	UpstreamErrorsTotal   *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Audit metrics.
	AuditRecordsTotal        *prometheus.CounterVec
	AuditFailuresTotal       *prometheus.CounterVec
	AuditBufferSize          prometheus.Gauge
	AuditFlushesTotal        *prometheus.CounterVec
	AuditFlushDuration       prometheus.Histogram
	AuditFlushedRecordsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
	ServerInfo      *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "langfuse_mcp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_operations_total",
			Help: "Total number of dispatched operations by outcome.",
		}, []string{"operation", "outcome"}),

		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "langfuse_mcp_operation_duration_seconds",
			Help:    "Operation duration in seconds, including all upstream calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_upstream_requests_total",
			Help: "Total number of requests sent to the Langfuse API.",
		}, []string{"operation", "status_code"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "langfuse_mcp_upstream_duration_seconds",
			Help:    "Langfuse API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_upstream_errors_total",
			Help: "Total number of Langfuse API errors by error type.",
		}, []string{"error_type", "operation"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		AuditRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_audit_records_total",
			Help: "Total number of audit records written, by outcome.",
		}, []string{"outcome"}),

		AuditFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_audit_failures_total",
			Help: "Total number of audit records that could not be written.",
		}, []string{"sink"}),

		AuditBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "langfuse_mcp_audit_buffer_size",
			Help: "Current number of buffered audit records.",
		}),

		AuditFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_audit_flushes_total",
			Help: "Total number of audit buffer flushes.",
		}, []string{"status"}),

		AuditFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "langfuse_mcp_audit_flush_duration_seconds",
			Help:    "Duration of audit flush operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		AuditFlushedRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "langfuse_mcp_audit_flushed_records_total",
			Help: "Total number of audit records flushed to the database.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "langfuse_mcp_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "langfuse_mcp_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),

		ServerInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "langfuse_mcp_server_info",
			Help: "Static server information; always 1.",
		}, []string{"version", "mode", "transport", "project"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamDuration,
		m.UpstreamErrorsTotal,
		m.RateLimitRejectionsTotal,
		m.AuditRecordsTotal,
		m.AuditFailuresTotal,
		m.AuditBufferSize,
		m.AuditFlushesTotal,
		m.AuditFlushDuration,
		m.AuditFlushedRecordsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
		m.ServerInfo,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterAuditPoolCollector exposes the audit database pool, read on every
// scrape.
func (m *Metrics) RegisterAuditPoolCollector(stats func() AuditPoolStats) {
	m.registry.MustRegister(newAuditPoolCollector(stats))
}

// SetServerInfo publishes the static server labels.
func (m *Metrics) SetServerInfo(version, mode, transport, project string) {
	m.ServerInfo.WithLabelValues(version, mode, transport, project).Set(1)
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// ObserveOperation records one dispatched operation.
func (m *Metrics) ObserveOperation(op, outcome string, seconds float64) {
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// ObserveUpstream records one Langfuse API call. statusCode is 0 when no
// response was received.
func (m *Metrics) ObserveUpstream(op string, statusCode int, seconds float64) {
	m.UpstreamRequestsTotal.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	m.UpstreamDuration.WithLabelValues(op).Observe(seconds)
}

// IncUpstreamError increments the upstream error counter with error type classification.
func (m *Metrics) IncUpstreamError(errorType, op string) {
	m.UpstreamErrorsTotal.WithLabelValues(errorType, op).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncAuditRecord(outcome string) {
	m.AuditRecordsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAuditFailure(sink string) {
	m.AuditFailuresTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetAuditBufferSize(n int) {
	m.AuditBufferSize.Set(float64(n))
}

// ObserveAuditFlush records one collector flush.
func (m *Metrics) ObserveAuditFlush(status string, seconds float64, records int) {
	m.AuditFlushesTotal.WithLabelValues(status).Inc()
	m.AuditFlushDuration.Observe(seconds)
	if status == "success" {
		m.AuditFlushedRecordsTotal.Add(float64(records))
	}
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}
