package mcpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/alecgard/langfuse-mcp/internal/audit"
	"github.com/alecgard/langfuse-mcp/internal/dispatch"
	"github.com/alecgard/langfuse-mcp/internal/mcpserver"
	"github.com/alecgard/langfuse-mcp/internal/mode"
)

// --- Fakes ---

type capturedEntry struct {
	entry audit.Entry
	actor audit.Actor
}

type capturingAuditor struct {
	mu      sync.Mutex
	entries []capturedEntry
}

func (c *capturingAuditor) Record(ctx context.Context, e audit.Entry) {
	a, _ := audit.ActorFromContext(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, capturedEntry{entry: e, actor: a})
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalog(m mode.Mode, aud dispatch.Auditor) *dispatch.Catalog {
	c := dispatch.New(mode.NewGate(m), dispatch.WithAuditor(aud), dispatch.WithLogger(quiet()))
	c.MustRegister(
		dispatch.Descriptor{
			Name:        "get_trace",
			Description: "Get a trace",
			Options: []mcplib.ToolOption{
				mcplib.WithString("traceId", mcplib.Required()),
			},
			Handler: func(_ context.Context, args dispatch.Args) (any, error) {
				return map[string]any{"id": args.String("traceId")}, nil
			},
		},
		dispatch.Descriptor{
			Name:        "create_comment",
			Description: "Create a comment",
			Mutating:    true,
			Options: []mcplib.ToolOption{
				mcplib.WithString("content", mcplib.Required()),
			},
			Handler: func(context.Context, dispatch.Args) (any, error) {
				return map[string]any{"id": "c-1"}, nil
			},
			AuditRef: func(dispatch.Args) string { return "comment:new" },
		},
	)
	return c
}

// rpc sends one JSON-RPC request through the server's message handler and
// returns the decoded response.
func rpc(t *testing.T, s *mcpserver.Server, ctx context.Context, method string, params any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp := s.MCPServer().HandleMessage(ctx, raw)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if e, ok := out["error"]; ok {
		t.Fatalf("%s returned protocol error: %v", method, e)
	}
	return out
}

func toolNames(t *testing.T, s *mcpserver.Server) []string {
	t.Helper()
	res, _ := rpc(t, s, context.Background(), "tools/list", map[string]any{})["result"].(map[string]any)
	list, _ := res["tools"].([]any)
	var names []string
	for _, item := range list {
		tool, _ := item.(map[string]any)
		name, _ := tool["name"].(string)
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wireCall invokes a tool over JSON-RPC and returns the result's error flag
// and text.
func wireCall(t *testing.T, s *mcpserver.Server, name string, args map[string]any) (bool, string) {
	t.Helper()
	res, ok := rpc(t, s, context.Background(), "tools/call", map[string]any{"name": name, "arguments": args})["result"].(map[string]any)
	if !ok {
		t.Fatalf("tools/call %s: no result", name)
	}
	isErr, _ := res["isError"].(bool)
	content, _ := res["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("tools/call %s: %d content blocks", name, len(content))
	}
	block, _ := content[0].(map[string]any)
	text, _ := block["text"].(string)
	return isErr, text
}

func call(t *testing.T, s *mcpserver.Server, ctx context.Context, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	res, err := tool.Handler(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return res
}

func textOf(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	return tc.Text
}

// --- Tests ---

func TestReadOnlyListsOnlyReadTools(t *testing.T) {
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadOnly, &capturingAuditor{}), quiet())

	got := toolNames(t, s)
	if len(got) != 1 || got[0] != "get_trace" {
		t.Fatalf("tools = %v, want [get_trace]", got)
	}
}

func TestReadWriteListsPrefixedWriteTools(t *testing.T) {
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadWrite, &capturingAuditor{}), quiet())

	got := toolNames(t, s)
	want := []string{"get_trace", "write_create_comment"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v, want %v", got, want)
	}
	if names := s.ToolNames(); len(names) != 2 || names[0] != "get_trace" {
		t.Errorf("ToolNames = %v", names)
	}

	tool := s.MCPServer().ListTools()["write_create_comment"].Tool
	if tool.Annotations.ReadOnlyHint == nil || *tool.Annotations.ReadOnlyHint {
		t.Error("write tool should carry readOnlyHint=false")
	}
}

func TestCallDispatchesThroughCatalog(t *testing.T) {
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadOnly, &capturingAuditor{}), quiet())

	res := call(t, s, context.Background(), "get_trace", map[string]any{"traceId": "t-1"})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", textOf(t, res))
	}
	if !strings.Contains(textOf(t, res), `"id": "t-1"`) {
		t.Errorf("payload = %s", textOf(t, res))
	}

	res = call(t, s, context.Background(), "get_trace", map[string]any{})
	if !res.IsError || !strings.Contains(textOf(t, res), "traceId") {
		t.Errorf("missing argument should be an error result, got %s", textOf(t, res))
	}
}

func TestStdioCallsGetStdioActor(t *testing.T) {
	aud := &capturingAuditor{}
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadWrite, aud), quiet())

	res := call(t, s, context.Background(), "write_create_comment", map[string]any{"content": "hi"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", textOf(t, res))
	}
	if len(aud.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(aud.entries))
	}
	got := aud.entries[0]
	if got.actor.Transport != mcpserver.TransportStdio {
		t.Errorf("actor transport = %q, want stdio", got.actor.Transport)
	}
	if got.entry.ObjectRef != "comment:new" || got.entry.Outcome != dispatch.OutcomeSuccess {
		t.Errorf("entry = %+v", got.entry)
	}
}

func TestHTTPActorIsPreserved(t *testing.T) {
	aud := &capturingAuditor{}
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadWrite, aud), quiet())

	ctx := audit.WithActor(context.Background(), audit.Actor{
		Transport: mcpserver.TransportHTTP,
		SessionID: "sess-9",
		KeyPrefix: "lfmcp_abcdef",
	})
	call(t, s, ctx, "write_create_comment", map[string]any{"content": "hi"})

	if len(aud.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(aud.entries))
	}
	a := aud.entries[0].actor
	if a.Transport != "http" || a.SessionID != "sess-9" || a.KeyPrefix != "lfmcp_abcdef" {
		t.Errorf("actor = %+v", a)
	}
}

func TestServeStdioStopsOnClosedInput(t *testing.T) {
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadOnly, &capturingAuditor{}), quiet())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.ServeStdio(ctx, strings.NewReader(""), io.Discard); err != nil {
		t.Fatalf("ServeStdio on canceled context: %v", err)
	}
}

func TestHiddenAndUnknownNamesReachDispatcher(t *testing.T) {
	tests := []struct {
		mode      mode.Mode
		name      string
		wantText  string
		wantAudit string
	}{
		{mode.ReadOnly, "create_comment", "mode violation", dispatch.OutcomeDenied},
		{mode.ReadOnly, "write_create_comment", "mode violation", dispatch.OutcomeDenied},
		{mode.ReadWrite, "create_comment", "mode violation", dispatch.OutcomeDenied},
		{mode.ReadWrite, "write_get_trace", "mode violation", dispatch.OutcomeDenied},
		{mode.ReadOnly, "no_such_tool", "unknown operation", ""},
		{mode.ReadWrite, "_unknown_operation", "unknown operation", ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.mode, tt.name), func(t *testing.T) {
			aud := &capturingAuditor{}
			s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
				newCatalog(tt.mode, aud), quiet())

			isErr, text := wireCall(t, s, tt.name, map[string]any{"content": "hi", "traceId": "t-1"})
			if !isErr || !strings.Contains(text, tt.wantText) {
				t.Fatalf("result = (%v, %q), want error containing %q", isErr, text, tt.wantText)
			}

			if tt.wantAudit == "" {
				if len(aud.entries) != 0 {
					t.Errorf("unexpected audit entries: %+v", aud.entries)
				}
				return
			}
			if len(aud.entries) != 1 {
				t.Fatalf("expected one audit entry, got %d", len(aud.entries))
			}
			got := aud.entries[0]
			if got.entry.Outcome != tt.wantAudit || got.entry.RequestedName != tt.name {
				t.Errorf("entry = %+v", got.entry)
			}
			if got.actor.Transport != mcpserver.TransportStdio {
				t.Errorf("actor transport = %q", got.actor.Transport)
			}
		})
	}
}

func TestVisibleCallOverWire(t *testing.T) {
	s := mcpserver.NewServer(mcpserver.ServerConfig{Name: "langfuse-mcp", Version: "test"},
		newCatalog(mode.ReadOnly, &capturingAuditor{}), quiet())

	isErr, text := wireCall(t, s, "get_trace", map[string]any{"traceId": "t-7"})
	if isErr || !strings.Contains(text, `"t-7"`) {
		t.Fatalf("result = (%v, %q)", isErr, text)
	}
}
