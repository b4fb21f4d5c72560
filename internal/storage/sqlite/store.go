package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/CortexDesk/models"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusError     = "error"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases and WAL writers consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL,
    task TEXT NOT NULL,
    status TEXT NOT NULL,
    rounds INTEGER NOT NULL DEFAULT 0,
    transcript TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    interrupt_id TEXT NOT NULL,
    action TEXT NOT NULL DEFAULT '',
    decision TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_approvals_run ON approvals(run_id, id);

CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    updated_at DATETIME NOT NULL
);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a run in the running state.
func (s *Store) CreateRun(ctx context.Context, id, threadID, task string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("run id is required")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, thread_id, task, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, id, threadID, task, StatusRunning, now, now)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status, transcript and error of a run.
func (s *Store) FinishRun(ctx context.Context, id, status string, rounds int, transcript, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, rounds = ?, transcript = ?, error = ?, updated_at = ?
WHERE id = ?
`, status, rounds, transcript, errMsg, s.now(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

func (s *Store) RecordApproval(ctx context.Context, row models.ApprovalRow) error {
	if strings.TrimSpace(row.RunID) == "" {
		return fmt.Errorf("approval run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO approvals (run_id, round, interrupt_id, action, decision, message, mode, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, row.RunID, row.Round, row.InterruptID, row.Action, row.Decision, row.Message, row.Mode, s.now())
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, thread_id, task, status, rounds, error, created_at, updated_at
FROM runs
ORDER BY rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		if err := rows.Scan(&rec.ID, &rec.ThreadID, &rec.Task, &rec.Status, &rec.Rounds, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its approvals. A missing run yields ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, []models.ApprovalRow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, thread_id, task, status, rounds, transcript, error, created_at, updated_at
FROM runs
WHERE id = ?
LIMIT 1
`, id)

	var rec models.RunRecord
	if err := row.Scan(&rec.ID, &rec.ThreadID, &rec.Task, &rec.Status, &rec.Rounds, &rec.Transcript, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
		}
		return nil, nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, round, interrupt_id, action, decision, message, mode, created_at
FROM approvals
WHERE run_id = ?
ORDER BY id ASC
`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []models.ApprovalRow
	for rows.Next() {
		var a models.ApprovalRow
		if err := rows.Scan(&a.RunID, &a.Round, &a.InterruptID, &a.Action, &a.Decision, &a.Message, &a.Mode, &a.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list approvals rows: %w", err)
	}
	return &rec, approvals, nil
}
