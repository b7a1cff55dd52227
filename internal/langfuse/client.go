package langfuse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	unreadableBody   = "<unreadable body>"
	maxLoggedBodyLen = 512
)

// MetricsRecorder is an optional interface for recording upstream metrics.
type MetricsRecorder interface {
	ObserveUpstream(op string, statusCode int, seconds float64)
	IncUpstreamError(errorType, op string)
}

// TransportError is returned for every failed call. Its message carries only
// the operation label and the status code or error class; the URL, query
// string and response body stay in server-side logs.
type TransportError struct {
	Op         string
	StatusCode int    // 0 when no response was received
	Kind       string // "status", "timeout", "canceled", "dns", "connection_refused", "network", "decode", "other"
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("langfuse %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("langfuse %s failed: %s", e.Op, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether a caller may reasonably retry. The client itself
// never retries.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case "timeout", "network", "connection_refused", "dns":
		return true
	case "status":
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// Client performs authenticated calls against one Langfuse project.
type Client struct {
	endpoint Endpoint
	http     *http.Client
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped for tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client bound to ep.
func NewClient(ep Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint: ep,
		http:     &http.Client{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.http
	hc.Transport = otelhttp.NewTransport(base)
	c.http = &hc

	return c
}

// SetMetrics sets the optional metrics recorder.
func (c *Client) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Endpoint returns the resolved endpoint the client is bound to.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Do performs an authenticated call and decodes the JSON response into out
// (when out is non-nil).
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.do(ctx, op, method, path, query, body, out, true)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, authenticated bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.endpoint.Timeout)
	defer cancel()

	target := c.endpoint.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Kind: "other", Err: fmt.Errorf("encoding request body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return &TransportError{Op: op, Kind: "other", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", c.authorization())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)

	if err != nil {
		kind := classifyError(err)
		if c.metrics != nil {
			c.metrics.ObserveUpstream(op, 0, latency.Seconds())
			c.metrics.IncUpstreamError(kind, op)
		}
		c.logger.Warn("langfuse request error",
			"operation", op,
			"method", method,
			"url", SanitizeURL(target),
			"error_type", kind,
			"duration_ms", latency.Milliseconds(),
		)
		return &TransportError{Op: op, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.ObserveUpstream(op, resp.StatusCode, latency.Seconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody := readErrorBody(resp.Body)
		if c.metrics != nil {
			c.metrics.IncUpstreamError("status", op)
		}
		c.logger.Warn("langfuse request failed",
			"operation", op,
			"method", method,
			"status", resp.StatusCode,
			"url", SanitizeURL(target),
			"duration_ms", latency.Milliseconds(),
		)
		c.logger.Debug("langfuse error body", "operation", op, "body", errBody)
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Kind: "status"}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.endpoint.MaxResponseBytes))
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, c.endpoint.MaxResponseBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		if c.metrics != nil {
			c.metrics.IncUpstreamError("decode", op)
		}
		c.logger.Warn("langfuse response decode failed", "operation", op, "error", err)
		return &TransportError{Op: op, Kind: "decode", Err: err}
	}
	return nil
}

// authorization is computed per call and never stored.
func (c *Client) authorization() string {
	creds := c.endpoint.PublicKey + ":" + c.endpoint.SecretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxLoggedBodyLen))
	if err != nil {
		return unreadableBody
	}
	return string(data)
}

// classifyError categorizes an HTTP client error.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return "connection_refused"
		}
		return "network"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}
	return "other"
}
