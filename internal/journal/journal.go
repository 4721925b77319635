// Package journal persists an append-only audit trail of commands the daemon
// has served. It backs the debug-status command and the monitor TUI; it is
// not a durability layer for watch state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values recorded per served command.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry is one served command.
type Entry struct {
	ID          string
	Command     string
	Outcome     string
	Error       string
	ReceivedAt  time.Time
	CompletedAt time.Time
}

// Store is a SQLite-backed command journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and creates if needed) the journal database at path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS command_log (
  id           TEXT PRIMARY KEY,
  command      TEXT NOT NULL,
  outcome      TEXT NOT NULL,
  error        TEXT,
  received_at  TEXT NOT NULL,
  completed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS command_log_received_at_idx ON command_log(received_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one entry. A zero CompletedAt is stamped with the current
// time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("journal entry id is empty")
	}
	if e.Outcome != OutcomeOK && e.Outcome != OutcomeError {
		return fmt.Errorf("invalid journal outcome: %q", e.Outcome)
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO command_log(id, command, outcome, error, received_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?);
`, e.ID, e.Command, e.Outcome, nullIfEmpty(e.Error),
		e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the most recently received entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, outcome, COALESCE(error, ''), received_at, completed_at
FROM command_log
ORDER BY received_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedS, completedS string
		if err := rows.Scan(&e.ID, &e.Command, &e.Outcome, &e.Error, &receivedS, &completedS); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedS); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completedS); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

// Counts returns the number of served commands per outcome.
func (s *Store) Counts(ctx context.Context) (ok int64, failed int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT outcome, COUNT(*) FROM command_log GROUP BY outcome;
`)
	if err != nil {
		return 0, 0, fmt.Errorf("count journal entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return 0, 0, fmt.Errorf("scan journal count: %w", err)
		}
		switch outcome {
		case OutcomeOK:
			ok = n
		case OutcomeError:
			failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate journal counts: %w", err)
	}
	return ok, failed, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
