package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSummaryReflectsRecordedValues(t *testing.T) {
	m := New()

	m.ObserveHTTP("POST", "/mcp", 200, 0.01)
	m.ObserveHTTP("POST", "/mcp", 401, 0.01)
	m.ObserveOperation("get_trace", "success", 0.2)
	m.ObserveOperation("get_trace", "success", 0.3)
	m.ObserveOperation("create_prompt", "denied", 0.001)
	m.ObserveUpstream("get_trace", 200, 0.1)
	m.ObserveUpstream("get_trace", 0, 0.1)
	m.IncUpstreamError("network", "get_trace")
	m.IncRateLimitRejection("ip")
	m.IncAuditRecord("denied")
	m.IncAuditFailure("file")
	m.SetAuditBufferSize(7)
	m.ObserveAuditFlush("success", 0.05, 3)
	m.ObserveAuditFlush("error", 0.05, 2)
	m.IncAuthFailure("bearer")
	m.IncAuthSuccess("bearer")
	m.IncAuthSuccess("bearer")
	m.RegisterAuditPoolCollector(func() AuditPoolStats {
		return AuditPoolStats{Total: 4, Idle: 3, Acquired: 1, Max: 8}
	})

	s, err := m.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if s.HTTP.TotalRequests != 2 {
		t.Errorf("http total = %v, want 2", s.HTTP.TotalRequests)
	}
	if s.HTTP.ErrorRate != 0.5 {
		t.Errorf("http error rate = %v, want 0.5", s.HTTP.ErrorRate)
	}
	if s.Operations.Total != 3 {
		t.Errorf("operations total = %v, want 3", s.Operations.Total)
	}
	if s.Operations.ByOutcome["success"] != 2 || s.Operations.ByOutcome["denied"] != 1 {
		t.Errorf("by outcome = %v", s.Operations.ByOutcome)
	}
	if s.Upstream.TotalRequests != 2 || s.Upstream.ErrorRate != 0.5 || s.Upstream.Errors != 1 {
		t.Errorf("upstream = %+v", s.Upstream)
	}
	if s.RateLimit.Rejections != 1 {
		t.Errorf("rejections = %v, want 1", s.RateLimit.Rejections)
	}
	if s.Audit.Records != 1 || s.Audit.Failures != 1 || s.Audit.BufferSize != 7 {
		t.Errorf("audit = %+v", s.Audit)
	}
	if s.Audit.TotalFlushes != 2 || s.Audit.FlushErrors != 1 || s.Audit.Flushed != 3 {
		t.Errorf("audit flushes = %+v", s.Audit)
	}
	if s.Auth.Failures != 1 || s.Auth.Successes != 2 {
		t.Errorf("auth = %+v", s.Auth)
	}
	if s.DB.TotalConns != 4 || s.DB.IdleConns != 3 || s.DB.AcquiredConns != 1 || s.DB.MaxConns != 8 {
		t.Errorf("db = %+v", s.DB)
	}
	if s.Server.StartTime == 0 {
		t.Error("expected start time to be set")
	}
}

func TestHandlerServesJSON(t *testing.T) {
	m := New()
	m.ObserveOperation("list_traces", "success", 0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var s Summary
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Operations.Total != 1 {
		t.Errorf("operations total = %v, want 1", s.Operations.Total)
	}
}

func TestPrometheusHandlerExposesPrivateRegistry(t *testing.T) {
	m := New()
	m.SetServerInfo("v1", "readonly", "http", "proj")
	m.IncUpstreamError("timeout", "get_trace")

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"langfuse_mcp_upstream_errors_total",
		`langfuse_mcp_server_info{mode="readonly"`,
		"langfuse_mcp_server_start_time_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestHistogramPercentileEmpty(t *testing.T) {
	if got := histogramPercentile(nil, 0.5); got != 0 {
		t.Errorf("nil family percentile = %v, want 0", got)
	}
	if got := errorRate(nil, '4'); got != 0 {
		t.Errorf("nil family error rate = %v, want 0", got)
	}
}

func TestAuditPoolReadOnScrape(t *testing.T) {
	m := New()
	acquired := int32(0)
	m.RegisterAuditPoolCollector(func() AuditPoolStats {
		return AuditPoolStats{Total: 2, Idle: 2 - acquired, Acquired: acquired, Max: 4}
	})

	acquired = 2
	s, err := m.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.DB.AcquiredConns != 2 || s.DB.IdleConns != 0 {
		t.Errorf("db = %+v, want current pool numbers", s.DB)
	}
}
