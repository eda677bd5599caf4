// Package sqlitebroker implements the broker and result backend on a local
// sqlite database. It exists for single-node deployments and development:
// the web and worker tiers share one file instead of a Redis. The
// cross-process contract is identical to the redis driver.
package sqlitebroker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
)

// pollInterval is how often Dequeue re-checks for work.
const pollInterval = 50 * time.Millisecond

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL,
	name     TEXT NOT NULL,
	args     TEXT NOT NULL,
	consumed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS results (
	task_id TEXT PRIMARY KEY,
	state   TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS revoked (
	task_id TEXT PRIMARY KEY
);
`

// Store is a sqlite-backed broker and result backend.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (and initializes) the database at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// sqlite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Enqueue appends a task, assigning an id when none is set.
func (s *Store) Enqueue(ctx context.Context, task outbound.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	args, err := json.Marshal(task.Args)
	if err != nil {
		return "", fmt.Errorf("marshaling task args: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, name, args) VALUES (?, ?, ?)`,
		task.ID, task.Name, string(args))
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return task.ID, nil
}

// Dequeue polls for the oldest unconsumed task.
func (s *Store) Dequeue(ctx context.Context) (*outbound.Task, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		task, err := s.tryDequeue(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryDequeue claims one task inside a transaction, or returns nil when the
// queue is empty.
func (s *Store) tryDequeue(ctx context.Context) (*outbound.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning dequeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq      int64
		task     outbound.Task
		argsJSON string
	)
	row := tx.QueryRowContext(ctx,
		`SELECT seq, id, name, args FROM tasks WHERE consumed = 0 ORDER BY seq LIMIT 1`)
	if err := row.Scan(&seq, &task.ID, &task.Name, &argsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("selecting task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET consumed = 1 WHERE seq = ?`, seq); err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing dequeue: %w", err)
	}
	if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
		s.logger.Error("dropping undecodable task", "task_id", task.ID, "error", err)
		return nil, nil
	}
	return &task, nil
}

// Revoke marks the task cancelled unless it already reached a terminal
// state, and records it in the revocation table either way.
func (s *Store) Revoke(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked (task_id) VALUES (?)`, taskID); err != nil {
		return fmt.Errorf("recording revocation: %w", err)
	}
	return s.StoreResult(ctx, taskID, outbound.TaskRevoked, "")
}

// IsRevoked reports whether the task has been revoked.
func (s *Store) IsRevoked(ctx context.Context, taskID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM revoked WHERE task_id = ?`, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return true, nil
}

// StoreResult writes the state and payload for a task. Terminal states are
// immutable.
func (s *Store) StoreResult(ctx context.Context, taskID string, state outbound.TaskState, payload string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning result tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM results WHERE task_id = ?`, taskID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading current state: %w", err)
	}
	if outbound.TaskState(current).Terminal() {
		return nil
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (task_id, state, payload) VALUES (?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET state = excluded.state, payload = excluded.payload`,
		taskID, string(state), payload)
	if err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing result: %w", err)
	}
	return nil
}

// GetResult reads the current state for a task. Unknown ids are pending.
func (s *Store) GetResult(ctx context.Context, taskID string) (*outbound.Result, error) {
	var result outbound.Result
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, payload FROM results WHERE task_id = ?`, taskID).
		Scan(&state, &result.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return &outbound.Result{State: outbound.TaskPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	result.State = outbound.TaskState(state)
	return &result, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time interface checks.
var (
	_ outbound.Broker        = (*Store)(nil)
	_ outbound.ResultBackend = (*Store)(nil)
)
