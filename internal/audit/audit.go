// Package audit records every mutating call, and every denied call, to an
// append-only sink.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entry is what the dispatcher reports after a call completes.
type Entry struct {
	Operation     string
	RequestedName string
	Mode          string
	Outcome       string
	ObjectRef     string
	ErrorKind     string
	Duration      time.Duration
}

// Record is one persisted audit line.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Operation     string    `json:"operation"`
	RequestedName string    `json:"requested_name"`
	Actor         Actor     `json:"actor"`
	Mode          string    `json:"mode"`
	Outcome       string    `json:"outcome"`
	ObjectRef     string    `json:"object_ref,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	ErrorKind     string    `json:"error_kind,omitempty"`
}

// Actor describes who made the call as far as the transport can tell.
type Actor struct {
	Transport  string `json:"transport"`
	SessionID  string `json:"session_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	KeyPrefix  string `json:"key_prefix,omitempty"`
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored by WithActor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Sink persists records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// MetricsRecorder is an optional interface for recording audit metrics.
type MetricsRecorder interface {
	IncAuditRecord(outcome string)
	IncAuditFailure(sink string)
}

// Recorder turns entries into records and hands them to a sink. Record never
// returns an error and never panics.
type Recorder struct {
	sink     Sink
	sinkName string
	logger   *slog.Logger
	metrics  MetricsRecorder
	clock    func() time.Time
	actor    Actor
}

// NewRecorder creates a recorder. fallback is the actor used when the call
// context carries none, typically {Transport: "stdio"}.
func NewRecorder(sink Sink, sinkName string, fallback Actor, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:     sink,
		sinkName: sinkName,
		logger:   logger,
		clock:    time.Now,
		actor:    fallback,
	}
}

// SetMetrics sets the optional metrics recorder.
func (r *Recorder) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// Record appends one record for e.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(e, "panic", p)
		}
	}()

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = r.actor
	}

	rec := Record{
		ID:            uuid.NewString(),
		Timestamp:     r.clock().UTC(),
		Operation:     e.Operation,
		RequestedName: e.RequestedName,
		Actor:         actor,
		Mode:          e.Mode,
		Outcome:       e.Outcome,
		ObjectRef:     e.ObjectRef,
		DurationMs:    e.Duration.Milliseconds(),
		ErrorKind:     e.ErrorKind,
	}

	// The call may have been canceled; the record is still owed.
	if err := r.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		r.fail(e, "write", err)
		return
	}
	if r.metrics != nil {
		r.metrics.IncAuditRecord(e.Outcome)
	}
}

func (r *Recorder) fail(e Entry, stage string, cause any) {
	if r.metrics != nil {
		r.metrics.IncAuditFailure(r.sinkName)
	}
	r.logger.Error("audit record dropped",
		"sink", r.sinkName,
		"stage", stage,
		"operation", e.Operation,
		"outcome", e.Outcome,
		"error", cause,
	)
}
