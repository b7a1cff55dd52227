// Package dispatch holds the operation catalog and routes calls through the
// mode gate, argument validation and the audit log into a uniform result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alecgard/langfuse-mcp/internal/audit"
	"github.com/alecgard/langfuse-mcp/internal/mode"
)

const tracerName = "github.com/alecgard/langfuse-mcp/internal/dispatch"

// Handler executes one operation with validated arguments.
type Handler func(ctx context.Context, args Args) (any, error)

// Descriptor declares an operation.
type Descriptor struct {
	Name        string
	Description string
	Options     []mcp.ToolOption
	Mutating    bool
	Destructive bool
	Handler     Handler
	// AuditRef names the object a mutating call targets, e.g. "prompt:summarizer".
	AuditRef func(Args) string
}

// Operation is one entry of the visible catalog.
type Operation struct {
	Name        string
	Description string
	Mutating    bool
	Destructive bool
	Tool        mcp.Tool
}

// Auditor receives one entry per audited call.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// MetricsRecorder is an optional interface for recording operation metrics.
type MetricsRecorder interface {
	ObserveOperation(op, outcome string, seconds float64)
}

type entry struct {
	desc   Descriptor
	tool   mcp.Tool
	schema *jsonschema.Schema
}

func (e *entry) capability() mode.Capability {
	return mode.Capability{Name: e.desc.Name, Mutating: e.desc.Mutating, Destructive: e.desc.Destructive}
}

// Catalog is populated at startup and read-only afterwards.
type Catalog struct {
	gate     *mode.Gate
	ops      map[string]*entry
	order    []string
	auditor  Auditor
	metrics  MetricsRecorder
	logger   *slog.Logger
	maxBytes int
	tracer   trace.Tracer
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithAuditor(a Auditor) Option {
	return func(c *Catalog) { c.auditor = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxResponseBytes bounds the text of successful results.
func WithMaxResponseBytes(n int) Option {
	return func(c *Catalog) { c.maxBytes = n }
}

// New creates an empty catalog bound to gate.
func New(gate *mode.Gate, opts ...Option) *Catalog {
	c := &Catalog{
		gate:   gate,
		ops:    make(map[string]*entry),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMetrics sets the optional metrics recorder.
func (c *Catalog) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Gate returns the mode gate the catalog enforces.
func (c *Catalog) Gate() *mode.Gate {
	return c.gate
}

// Register adds d to the catalog.
func (c *Catalog) Register(d Descriptor) error {
	switch {
	case d.Name == "":
		return errors.New("operation name is required")
	case strings.HasPrefix(d.Name, mode.WritePrefix):
		return fmt.Errorf("operation %s: names must not start with %q", d.Name, mode.WritePrefix)
	case d.Handler == nil:
		return fmt.Errorf("operation %s: handler is required", d.Name)
	case d.Destructive && !d.Mutating:
		return fmt.Errorf("operation %s: destructive operations must be mutating", d.Name)
	}
	if _, dup := c.ops[d.Name]; dup {
		return fmt.Errorf("operation %s already registered", d.Name)
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(d.Description),
		mcp.WithReadOnlyHintAnnotation(!d.Mutating),
		mcp.WithDestructiveHintAnnotation(d.Destructive),
	}
	opts = append(opts, d.Options...)
	if d.Destructive {
		opts = append(opts, mcp.WithBoolean(mode.ConfirmArg,
			mcp.Description("Must be true to confirm this irreversible deletion"),
		))
	}

	tool := mcp.NewTool(d.Name, opts...)
	schema, err := compileSchema(d.Name, tool.InputSchema)
	if err != nil {
		return fmt.Errorf("operation %s: %w", d.Name, err)
	}

	c.ops[d.Name] = &entry{desc: d, tool: tool, schema: schema}
	c.order = append(c.order, d.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := c.Register(d); err != nil {
			panic(err)
		}
	}
}

// List returns the operations visible in the gate's mode, in registration
// order, each under its visible name.
func (c *Catalog) List() []Operation {
	caps := make([]mode.Capability, 0, len(c.order))
	for _, name := range c.order {
		caps = append(caps, c.ops[name].capability())
	}

	visible := c.gate.Visible(caps)
	out := make([]Operation, 0, len(visible))
	for _, vc := range visible {
		e := c.ops[c.gate.BaseName(vc.Name)]
		tool := e.tool
		tool.Name = vc.Name
		out = append(out, Operation{
			Name:        vc.Name,
			Description: e.desc.Description,
			Mutating:    e.desc.Mutating,
			Destructive: e.desc.Destructive,
			Tool:        tool,
		})
	}
	return out
}

// All returns every registered operation under its base name, whatever the
// mode. Transports use it to route calls the gate will reject.
func (c *Catalog) All() []Operation {
	out := make([]Operation, 0, len(c.order))
	for _, name := range c.order {
		e := c.ops[name]
		out = append(out, Operation{
			Name:        name,
			Description: e.desc.Description,
			Mutating:    e.desc.Mutating,
			Destructive: e.desc.Destructive,
			Tool:        e.tool,
		})
	}
	return out
}

// Dispatch runs the operation requested by name. It always returns a result
// and never panics; every failure becomes an error result.
func (c *Catalog) Dispatch(ctx context.Context, requested string, raw map[string]any) *mcp.CallToolResult {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "dispatch "+requested,
		trace.WithAttributes(
			attribute.String("mcp.tool.name", requested),
			attribute.String("langfuse_mcp.mode", string(c.gate.Mode())),
		),
	)
	defer span.End()

	args := Args(raw)
	if args == nil {
		args = Args{}
	}

	e, ok := c.ops[c.gate.BaseName(requested)]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownOperation, requested)
		c.finish(ctx, span, requested, nil, args, err, start)
		return Err(err.Error())
	}

	payload, err := c.run(ctx, requested, e, args)
	msg := c.finish(ctx, span, requested, e, args, err, start)
	if err != nil {
		return Err(msg)
	}
	return OK(payload, c.maxBytes)
}

func (c *Catalog) run(ctx context.Context, requested string, e *entry, args Args) (payload any, err error) {
	capability := e.capability()
	if err := c.gate.Authorize(requested, capability); err != nil {
		return nil, err
	}
	if err := validate(e.schema, e.tool.InputSchema.Required, args); err != nil {
		return nil, err
	}
	if err := c.gate.Confirm(capability, args); err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("operation panicked", "operation", e.desc.Name, "panic", p)
			err = fmt.Errorf("operation %s panicked: %v", e.desc.Name, p)
		}
	}()
	return e.desc.Handler(ctx, args)
}

// finish records the outcome and returns the caller-visible error message.
func (c *Catalog) finish(ctx context.Context, span trace.Span, requested string, e *entry, args Args, err error, start time.Time) string {
	elapsed := time.Since(start)
	outcome, kind := classify(err)
	span.SetAttributes(attribute.String("langfuse_mcp.outcome", outcome))

	name := requested
	if e != nil {
		name = e.desc.Name
	}

	var msg string
	if err != nil {
		var passthrough bool
		msg, passthrough = message(name, err)
		span.SetStatus(codes.Error, kind)
		level := slog.LevelInfo
		if !passthrough || outcome == OutcomeFailed {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "operation failed",
			"operation", name,
			"requested_name", requested,
			"outcome", outcome,
			"error_kind", kind,
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		c.logger.Debug("operation completed", "operation", name, "duration_ms", elapsed.Milliseconds())
	}

	if c.metrics != nil {
		c.metrics.ObserveOperation(name, outcome, elapsed.Seconds())
	}

	if e != nil && c.auditor != nil && (e.desc.Mutating || outcome == OutcomeDenied) {
		ref := ""
		if e.desc.AuditRef != nil {
			ref = e.desc.AuditRef(args)
		}
		c.auditor.Record(ctx, audit.Entry{
			Operation:     e.desc.Name,
			RequestedName: requested,
			Mode:          string(c.gate.Mode()),
			Outcome:       outcome,
			ObjectRef:     ref,
			ErrorKind:     kind,
			Duration:      elapsed,
		})
	}
	return msg
}
