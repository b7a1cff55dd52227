package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// LogSink emits each record as a structured "audit" log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, r Record) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("audit_id", r.ID),
		slog.String("operation", r.Operation),
		slog.String("requested_name", r.RequestedName),
		slog.String("mode", r.Mode),
		slog.String("outcome", r.Outcome),
		slog.String("object_ref", r.ObjectRef),
		slog.Int64("duration_ms", r.DurationMs),
		slog.String("error_kind", r.ErrorKind),
		slog.String("transport", r.Actor.Transport),
		slog.String("session_id", r.Actor.SessionID),
		slog.String("request_id", r.Actor.RequestID),
		slog.String("remote_addr", r.Actor.RemoteAddr),
	)
	return nil
}

// FileSink appends JSON lines to a file. Each record is written with a single
// write call under a mutex so lines never interleave.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFileSink opens path for appending, creating it with 0600 permissions.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Write(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
