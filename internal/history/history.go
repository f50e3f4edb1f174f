// Package history maintains a supplementary queryable SQLite index over
// completed and failed subtask runs. The canonical record of a session
// stays the per-session tasks.json/checkpoints.json files the Session
// Manager and Checkpoint Manager own; this index exists only to make
// "forge report" queries (run counts by terminal status and total cost)
// fast without re-parsing every checkpoint file on disk.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded subtask run outcome.
type Entry struct {
	SubtaskID  string
	Status     string
	Attempt    int
	Gate       string
	GateResult string
	CostUSD    float64
	RecordedAt time.Time
}

// Summary aggregates Entry rows by terminal status.
type Summary struct {
	TotalRuns    int
	CompleteRuns int
	FailedRuns   int
	TotalCostUSD float64
}

// DB wraps the history index's SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the history index at path and ensures its
// schema exists. The DSN mirrors the pragma set the pack's mote storage
// layer uses: WAL journaling, a generous busy timeout, and immediate
// transaction locking, since "forge report" may run concurrently with a
// live orchestrator run writing history entries.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

func buildDSN(path string) string {
	v := url.Values{}
	v.Set("_pragma", "journal_mode=WAL")
	v.Add("_pragma", "busy_timeout=30000")
	v.Add("_pragma", "synchronous=NORMAL")
	v.Add("_txlock", "immediate")
	return path + "?" + v.Encode()
}

const schema = `
CREATE TABLE IF NOT EXISTS subtask_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subtask_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	gate        TEXT NOT NULL DEFAULT '',
	gate_result TEXT NOT NULL DEFAULT '',
	cost_usd    REAL NOT NULL DEFAULT 0,
	recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subtask_runs_subtask_id ON subtask_runs(subtask_id);
CREATE INDEX IF NOT EXISTS idx_subtask_runs_status ON subtask_runs(status);
`

// Record inserts one subtask run outcome.
func (db *DB) Record(ctx context.Context, e Entry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO subtask_runs (subtask_id, status, attempt, gate, gate_result, cost_usd, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SubtaskID, e.Status, e.Attempt, e.Gate, e.GateResult, e.CostUSD, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.SubtaskID, err)
	}
	return nil
}

// RunsForSubtask returns every recorded run for subtaskID, oldest first.
func (db *DB) RunsForSubtask(ctx context.Context, subtaskID string) ([]Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT subtask_id, status, attempt, gate, gate_result, cost_usd, recorded_at
		 FROM subtask_runs WHERE subtask_id = ? ORDER BY id ASC`,
		subtaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query %s: %w", subtaskID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SubtaskID, &e.Status, &e.Attempt, &e.Gate, &e.GateResult, &e.CostUSD, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Report summarizes every recorded run, for forge report's totals section.
func (db *DB) Report(ctx context.Context) (Summary, error) {
	var s Summary
	row := db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM subtask_runs
	`)
	if err := row.Scan(&s.TotalRuns, &s.CompleteRuns, &s.FailedRuns, &s.TotalCostUSD); err != nil {
		return Summary{}, fmt.Errorf("history: report: %w", err)
	}
	return s, nil
}
