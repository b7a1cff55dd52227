package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/langfuse-mcp/internal/auth"
	"github.com/alecgard/langfuse-mcp/internal/metrics"
	"github.com/alecgard/langfuse-mcp/internal/ratelimit"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the HTTP router.
type RouterDeps struct {
	// MCP is the streamable HTTP handler. When nil the router only serves
	// health and metrics, which is how the stdio transport exposes them.
	MCP            http.Handler
	Metrics        *metrics.Metrics
	Verifier       *auth.Verifier
	Limiter        *ratelimit.Limiter
	AuditDB        Pinger
	AllowedOrigins []string
	Logger         *slog.Logger
	Manifest       Manifest
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	var hm HTTPMetrics
	if deps.Metrics != nil {
		hm = deps.Metrics
	}
	r.Use(requestLogger(logger, hm))

	r.Get("/health", healthHandler(deps.AuditDB, deps.Manifest))
	r.Get("/.well-known/langfuse-mcp.json", wellKnownHandler(deps.Manifest, deps.Verifier.Enabled(), deps.MCP != nil))

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.PrometheusHandler())
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	if deps.MCP != nil {
		var onReject []func()
		var am auth.MetricsRecorder
		if deps.Metrics != nil {
			m := deps.Metrics
			am = m
			onReject = append(onReject, func() { m.IncRateLimitRejection("client") })
		}

		r.Group(func(mr chi.Router) {
			mr.Use(auth.BearerMiddleware(deps.Verifier, am))
			mr.Use(ratelimit.Middleware(deps.Limiter, clientKey, onReject...))
			mr.Use(actorMiddleware)

			mr.Handle(MCPPath, deps.MCP)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, r.Method+" is not supported on "+r.URL.Path)
	})

	return r
}

// MCPPath is where the streamable HTTP transport is mounted.
const MCPPath = "/mcp"

func healthHandler(db Pinger, m Manifest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"status":  "ok",
			"version": m.Version,
			"mode":    m.Mode,
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				body["status"] = "degraded"
				body["audit_database"] = "unreachable"
				writeJSON(w, http.StatusServiceUnavailable, body)
				return
			}
			body["audit_database"] = "connected"
		}
		writeJSON(w, http.StatusOK, body)
	}
}
