// Package sqlite provides a SQLite-backed core.ExecutionStore using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/hupe1980/opmesh/core"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id    TEXT PRIMARY KEY,
	workflow_name   TEXT NOT NULL,
	session_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at_unix INTEGER NOT NULL DEFAULT 0,
	payload_json    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_id);
`

// ErrLocked is returned by Open when another process holds the database.
var ErrLocked = errors.New("history database is locked by another process")

// Store persists executions as JSON documents keyed by execution id.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// Open opens (or creates) the database at path with the recommended pragmas
// and runs the schema migration. The store holds an exclusive lock on
// path + ".lock" until Close.
func Open(path string) (*Store, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock database: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, lock: lock}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

// Close releases the database handle and the lock file.
func (s *Store) Close() error {
	err := s.db.Close()
	return errors.Join(err, s.lock.Unlock())
}

// Save inserts exec or replaces the stored execution with the same id.
func (s *Store) Save(ctx context.Context, exec *core.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return errors.New("save execution: missing id")
	}
	payload, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}

	const q = `INSERT INTO executions (execution_id, workflow_name, session_id, status, started_at_unix, payload_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(execution_id) DO UPDATE SET
	workflow_name = excluded.workflow_name,
	session_id = excluded.session_id,
	status = excluded.status,
	started_at_unix = excluded.started_at_unix,
	payload_json = excluded.payload_json`

	_, err = s.db.ExecContext(ctx, q,
		exec.ID,
		exec.WorkflowName,
		exec.SessionID,
		string(exec.Status),
		exec.StartedAt.UnixNano(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}
	return nil
}

// Get retrieves an execution by id. Unknown ids yield core.ErrExecutionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*core.WorkflowExecution, error) {
	const q = `SELECT payload_json FROM executions WHERE execution_id = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return decode(payload)
}

// ListBySession returns the executions of a session, most recently inserted
// first. A non-positive limit returns all of them.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]*core.WorkflowExecution, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `SELECT payload_json FROM executions WHERE session_id = ? ORDER BY rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*core.WorkflowExecution
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		exec, err := decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// DeleteBefore removes executions started before t and returns how many rows
// were deleted.
func (s *Store) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at_unix < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete executions: %w", err)
	}
	return res.RowsAffected()
}

func decode(payload string) (*core.WorkflowExecution, error) {
	var exec core.WorkflowExecution
	if err := json.Unmarshal([]byte(payload), &exec); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &exec, nil
}

var _ core.ExecutionStore = (*Store)(nil)
