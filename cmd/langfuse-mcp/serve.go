package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alecgard/langfuse-mcp/internal/analytics"
	"github.com/alecgard/langfuse-mcp/internal/api"
	"github.com/alecgard/langfuse-mcp/internal/audit"
	"github.com/alecgard/langfuse-mcp/internal/auth"
	"github.com/alecgard/langfuse-mcp/internal/config"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/langfuse"
	"github.com/alecgard/langfuse-mcp/internal/mcpserver"
	"github.com/alecgard/langfuse-mcp/internal/metrics"
	"github.com/alecgard/langfuse-mcp/internal/mode"
	"github.com/alecgard/langfuse-mcp/internal/ratelimit"
	"github.com/alecgard/langfuse-mcp/internal/tools"
)

const (
	serverName      = "langfuse-mcp"
	shutdownTimeout = 10 * time.Second
	pruneInterval   = 5 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Langfuse tools over stdio or streamable HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ep, err := langfuse.NewEndpoint(cfg.Langfuse)
	if err != nil {
		return err
	}
	m, err := mode.Parse(cfg.Mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.SetServerInfo(version, string(m), cfg.Server.Transport, ep.ProjectID)

	client := langfuse.NewClient(ep, langfuse.WithLogger(logger))
	client.SetMetrics(reg)

	sink, auditDB, closeSink, err := openAuditSink(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	recorder := audit.NewRecorder(sink, cfg.Audit.Sink, audit.Actor{Transport: mcpserver.TransportStdio}, logger)
	recorder.SetMetrics(reg)

	catalog := dispatch.New(mode.NewGate(m),
		dispatch.WithAuditor(recorder),
		dispatch.WithLogger(logger),
		dispatch.WithMaxResponseBytes(cfg.Response.MaxBytes),
	)
	catalog.SetMetrics(reg)

	set := tools.New(tools.Deps{
		API:       client,
		Analytics: analytics.NewService(client, client, logger),
		Version:   version,
		Mode:      string(m),
	})
	if err := set.Register(catalog); err != nil {
		return err
	}

	srv := mcpserver.NewServer(mcpserver.ServerConfig{
		Name:         serverName,
		Version:      version,
		Instructions: instructions(m),
		EndpointPath: api.MCPPath,
	}, catalog, logger)

	logger.Info("starting langfuse-mcp",
		"version", version,
		"langfuse", ep,
		"mode", m,
		"transport", cfg.Server.Transport,
		"audit_sink", cfg.Audit.Sink,
		"tools", len(srv.ToolNames()),
	)

	manifest := api.Manifest{
		Name:    serverName,
		Version: version,
		Mode:    string(m),
		Project: ep.ProjectID,
		Tools:   srv.ToolNames,
	}

	if cfg.Server.Transport == mcpserver.TransportHTTP {
		verifier, err := auth.NewVerifier(cfg.Server.APIKeyHash)
		if err != nil {
			return err
		}
		if !verifier.Enabled() {
			logger.Warn("http transport has no api_key_hash; /mcp is unauthenticated")
		}
		limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
		router := api.NewRouter(api.RouterDeps{
			MCP:            srv.HTTPHandler(),
			Metrics:        reg,
			Verifier:       verifier,
			Limiter:        limiter,
			AuditDB:        auditDB,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger,
			Manifest:       manifest,
		})
		return serveHTTP(ctx, cfg, cfg.Addr(), router, limiter, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.MetricsAddr != "" {
		router := api.NewRouter(api.RouterDeps{
			Metrics:  reg,
			AuditDB:  auditDB,
			Logger:   logger,
			Manifest: manifest,
		})
		g.Go(func() error {
			return serveHTTP(gctx, cfg, cfg.Server.MetricsAddr, router, nil, logger)
		})
	}
	g.Go(func() error {
		// Closing stdin ends the session; stop the side listener with it.
		defer stop()
		return srv.ServeStdio(gctx, os.Stdin, os.Stdout)
	})
	return g.Wait()
}

// serveHTTP runs handler on addr until ctx is done, then shuts down
// gracefully. The limiter, when set, is pruned in the background.
func serveHTTP(ctx context.Context, cfg *config.Config, addr string, handler http.Handler, limiter *ratelimit.Limiter, logger *slog.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if limiter.Enabled() {
		g.Go(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := limiter.Prune(pruneInterval); n > 0 {
						logger.Debug("pruned idle rate limit buckets", "count", n)
					}
				}
			}
		})
	}
	return g.Wait()
}

// openAuditSink builds the configured sink. The returned Pinger is non-nil
// only for the postgres sink and feeds the health endpoint.
func openAuditSink(ctx context.Context, cfg *config.Config, reg *metrics.Metrics, logger *slog.Logger) (audit.Sink, api.Pinger, func(), error) {
	switch cfg.Audit.Sink {
	case "file":
		fs, err := audit.OpenFileSink(cfg.Audit.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("audit records appended to file", "path", cfg.Audit.Path)
		return fs, nil, func() {
			if err := fs.Close(); err != nil {
				logger.Error("closing audit file", "error", err)
			}
		}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening audit database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("connecting to audit database: %w", err)
		}
		logger.Info("connected to audit database")
		reg.RegisterAuditPoolCollector(func() metrics.AuditPoolStats {
			s := pool.Stat()
			return metrics.AuditPoolStats{
				Total:    s.TotalConns(),
				Idle:     s.IdleConns(),
				Acquired: s.AcquiredConns(),
				Max:      s.MaxConns(),
			}
		})

		collector := audit.NewCollector(audit.NewStore(pool), cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
		collector.SetMetrics(reg)
		go collector.Start(ctx)
		return collector, pool, func() {
			collector.Stop()
			pool.Close()
		}, nil

	default:
		return audit.NewLogSink(logger), nil, func() {}, nil
	}
}

func instructions(m mode.Mode) string {
	s := "Tools for a Langfuse project: traces, observations, sessions, cost and usage analytics, " +
		"models, prompts, datasets, comments and scores. Time arguments are ISO-8601; analytics " +
		"default to the last 7 days."
	if m == mode.ReadWrite {
		s += " Tools prefixed " + mode.WritePrefix + " modify data; deletions also need confirm=true."
	}
	return s
}
