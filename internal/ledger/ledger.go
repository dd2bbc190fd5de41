// Package ledger persists run history in sqlite: pipeline runs, their step
// outcomes, and per-state fetch results. The status command reads it back.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"firstpull/internal/fetch"
	"firstpull/internal/pipeline"
)

// Store is the sqlite-backed run ledger.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens the ledger database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		exit_code INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		state_id INTEGER NOT NULL,
		state_name TEXT NOT NULL,
		file TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		fetched_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fetches_time ON fetches(fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RunStarted opens a run row.
func (s *Store) RunStarted(runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, at)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// StepFinished stores one step outcome.
func (s *Store) StepFinished(runID string, seq int, step pipeline.StepReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO steps (run_id, seq, name, status, exit_code, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			exit_code = excluded.exit_code,
			error = excluded.error,
			duration_ms = excluded.duration_ms
	`, runID, seq, step.Name, string(step.Status), step.Code, step.Err,
		step.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RunFinished closes a run row with its exit code.
func (s *Store) RunFinished(runID string, at time.Time, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, exit_code = ? WHERE id = ?`,
		at, exitCode, runID)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecordFetch stores one state's fetch outcome.
func (s *Store) RecordFetch(ctx context.Context, rec fetch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetches (state_id, state_name, file, bytes, duration_ms, error, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.StateID, rec.StateName, rec.File, rec.Bytes,
		rec.Duration.Milliseconds(), rec.Error, rec.FetchedAt)
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	return nil
}

// RunSummary is a stored run with its step reports.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Finished   bool
	ExitCode   int
	Steps      []pipeline.StepReport
}

// LatestRun returns the most recent run, or nil when the ledger is empty.
func (s *Store) LatestRun() (*RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run RunSummary
	var finishedAt sql.NullTime
	var exitCode sql.NullInt64

	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, exit_code
		FROM runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&run.ID, &run.StartedAt, &finishedAt, &exitCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
		run.Finished = true
	}
	if exitCode.Valid {
		run.ExitCode = int(exitCode.Int64)
	}

	rows, err := s.db.Query(`
		SELECT name, status, exit_code, error, duration_ms
		FROM steps WHERE run_id = ? ORDER BY seq
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load run steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step pipeline.StepReport
		var status string
		var errText sql.NullString
		var durationMs int64
		if err := rows.Scan(&step.Name, &status, &step.Code, &errText, &durationMs); err != nil {
			continue
		}
		step.Status = pipeline.Status(status)
		step.Err = errText.String
		step.Duration = time.Duration(durationMs) * time.Millisecond
		run.Steps = append(run.Steps, step)
	}

	return &run, nil
}

// RecentFetches returns the newest fetch outcomes, newest first.
func (s *Store) RecentFetches(limit int) ([]fetch.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT state_id, state_name, file, bytes, duration_ms, error, fetched_at
		FROM fetches ORDER BY fetched_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load fetches: %w", err)
	}
	defer rows.Close()

	var records []fetch.Record
	for rows.Next() {
		var rec fetch.Record
		var file, errText sql.NullString
		var durationMs int64
		if err := rows.Scan(&rec.StateID, &rec.StateName, &file, &rec.Bytes,
			&durationMs, &errText, &rec.FetchedAt); err != nil {
			continue
		}
		rec.File = file.String
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, nil
}
