// Package mcpserver exposes the operation catalog over the Model Context
// Protocol, on stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alecgard/langfuse-mcp/internal/audit"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/mode"
)

// Transport names recorded on audit actors.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig holds the identity advertised during initialization.
type ServerConfig struct {
	Name         string
	Version      string
	Instructions string
	// EndpointPath is where the streamable HTTP handler expects requests.
	EndpointPath string
}

// unknownTool receives calls whose name matches no registered tool. It is
// never listed.
const unknownTool = "_unknown_operation"

// Server adapts a dispatch.Catalog to an mcp-go server. Every operation is
// registered under its base and write_ names so the catalog, not mcp-go,
// rejects calls the mode forbids; tools/list only shows the visible ones.
type Server struct {
	cfg        ServerConfig
	catalog    *dispatch.Catalog
	mcpServer  *mcpserver.MCPServer
	logger     *slog.Logger
	visible    map[string]bool
	registered map[string]bool
}

// NewServer builds the MCP server and registers the visible catalog.
func NewServer(cfg ServerConfig, catalog *dispatch.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}

	s := &Server{
		cfg:        cfg,
		catalog:    catalog,
		logger:     logger,
		visible:    make(map[string]bool),
		registered: map[string]bool{unknownTool: true},
	}

	hooks := &mcpserver.Hooks{}
	hooks.AddBeforeCallTool(s.rerouteUnknown)

	opts := []mcpserver.ServerOption{
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
		mcpserver.WithToolFilter(s.filterVisible),
	}
	if cfg.Instructions != "" {
		opts = append(opts, mcpserver.WithInstructions(cfg.Instructions))
	}

	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version, opts...)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// registerTools adds every name a caller might use. Hidden names still reach
// the dispatcher, which reports the mode violation and audits it.
func (s *Server) registerTools() {
	byName := make(map[string]mcplib.Tool)
	var order []string
	add := func(t mcplib.Tool) {
		if _, seen := byName[t.Name]; !seen {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}
	for _, op := range s.catalog.All() {
		add(op.Tool)
		prefixed := op.Tool
		prefixed.Name = mode.WritePrefix + op.Name
		add(prefixed)
	}
	for _, op := range s.catalog.List() {
		add(op.Tool)
		s.visible[op.Name] = true
	}

	tools := make([]mcpserver.ServerTool, 0, len(order)+1)
	for _, name := range order {
		tools = append(tools, mcpserver.ServerTool{Tool: byName[name], Handler: s.handleCall})
		s.registered[name] = true
	}
	tools = append(tools, mcpserver.ServerTool{
		Tool:    mcplib.NewTool(unknownTool, mcplib.WithDescription("Reports calls to unknown operations")),
		Handler: s.handleUnknown,
	})
	s.mcpServer.AddTools(tools...)
	s.logger.Info("mcp tools registered",
		"count", len(s.visible),
		"mode", string(s.catalog.Gate().Mode()),
	)
}

// filterVisible hides names the current mode does not expose.
func (s *Server) filterVisible(_ context.Context, tools []mcplib.Tool) []mcplib.Tool {
	out := make([]mcplib.Tool, 0, len(s.visible))
	for _, t := range tools {
		if s.visible[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// rerouteUnknown sends calls for unregistered names to unknownTool, carrying
// the requested name, so they get an error result instead of a protocol
// error.
func (s *Server) rerouteUnknown(_ context.Context, _ any, req *mcplib.CallToolRequest) {
	if s.registered[req.Params.Name] {
		return
	}
	req.Params.Arguments = map[string]any{
		"name":      req.Params.Name,
		"arguments": req.GetArguments(),
	}
	req.Params.Name = unknownTool
}

func (s *Server) handleUnknown(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	name, _ := args["name"].(string)
	inner, _ := args["arguments"].(map[string]any)
	if name == "" {
		name = unknownTool
	}
	return s.catalog.Dispatch(withSession(ctx), name, inner), nil
}

// ToolNames returns the visible tool names in catalog order.
func (s *Server) ToolNames() []string {
	ops := s.catalog.List()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	return names
}

// handleCall never returns a Go error: every failure is already an error
// result built by the dispatcher.
func (s *Server) handleCall(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return s.catalog.Dispatch(withSession(ctx), req.Params.Name, req.GetArguments()), nil
}

// withSession makes sure the audit actor carries the MCP session id. Calls
// arriving on stdio have no actor yet and get a stdio one.
func withSession(ctx context.Context) context.Context {
	a, ok := audit.ActorFromContext(ctx)
	if !ok {
		a = audit.Actor{Transport: TransportStdio}
	}
	if a.SessionID == "" {
		if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
			a.SessionID = cs.SessionID()
		}
	}
	return audit.WithActor(ctx, a)
}

// ServeStdio serves the protocol on in/out until ctx is canceled or in is
// closed. Diagnostics go to the logger, never to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving mcp over stdio")
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// HTTPHandler returns the streamable HTTP transport. Mount it at
// ServerConfig.EndpointPath.
func (s *Server) HTTPHandler() *mcpserver.StreamableHTTPServer {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(s.cfg.EndpointPath),
		mcpserver.WithHTTPContextFunc(httpContext),
	)
}

// httpContext fills in an actor for requests that reached the transport
// without passing the router's actor middleware.
func httpContext(ctx context.Context, r *http.Request) context.Context {
	a, ok := audit.ActorFromContext(ctx)
	if !ok {
		a = audit.Actor{Transport: TransportHTTP, RemoteAddr: r.RemoteAddr}
	}
	if a.SessionID == "" {
		a.SessionID = r.Header.Get("Mcp-Session-Id")
	}
	return audit.WithActor(ctx, a)
}
