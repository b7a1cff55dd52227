package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is the subset of *pgxpool.Pool the store needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store writes audit records to the audit_records table.
type Store struct {
	db execer
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

const recordColumns = 13

// BatchInsert writes records in a single multi-row INSERT statement. It is a
// no-op when records is empty. Rows already present are skipped so a retried
// batch never duplicates a record.
func (s *Store) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	args := make([]any, 0, len(records)*recordColumns)
	rows := make([]string, 0, len(records))

	for i, r := range records {
		base := i * recordColumns
		placeholders := make([]string, recordColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.ID,
			r.Timestamp,
			r.Operation,
			r.RequestedName,
			r.Mode,
			r.Outcome,
			r.ObjectRef,
			r.DurationMs,
			r.ErrorKind,
			r.Actor.Transport,
			r.Actor.SessionID,
			r.Actor.RequestID,
			r.Actor.RemoteAddr,
		)
	}

	query := `INSERT INTO audit_records
		(id, timestamp, operation, requested_name, mode, outcome, object_ref,
		 duration_ms, error_kind, transport, session_id, request_id, remote_addr)
		VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting audit records: %w", err)
	}
	return nil
}
