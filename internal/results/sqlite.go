package results

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"membench"
)

// Index is a small SQLite summary of persisted runs. It lets the CLI
// answer "what has run and how did it score" without re-parsing the
// JSON artifacts.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	result_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	scenario     TEXT NOT NULL,
	adapter      TEXT NOT NULL,
	trials       INTEGER NOT NULL,
	success_rate REAL,
	recorded_at  TEXT NOT NULL,
	PRIMARY KEY (run_id, scenario, adapter)
);
`

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error { return ix.db.Close() }

// RecordResult upserts one scenario row, creating the run row on first
// contact so partial runs are visible too.
func (ix *Index) RecordResult(runID string, res membench.ScenarioResult) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := ix.db.Exec(
		`INSERT INTO runs (id, started_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		runID, now,
	); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	var rate any
	if v, ok := res.Aggregate["success_rate"].(float64); ok {
		rate = v
	}
	if _, err := ix.db.Exec(
		`INSERT INTO results (run_id, scenario, adapter, trials, success_rate, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, scenario, adapter) DO UPDATE SET
			trials = excluded.trials,
			success_rate = excluded.success_rate,
			recorded_at = excluded.recorded_at`,
		runID, res.ScenarioName, res.AdapterName, len(res.Trials), rate, now,
	); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// RecordRun closes out the run row once the suite completes.
func (ix *Index) RecordRun(runID string, suite membench.SuiteResult) error {
	if _, err := ix.db.Exec(
		`INSERT INTO runs (id, started_at, completed_at, result_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			result_count = excluded.result_count`,
		runID, suite.StartedAt, suite.CompletedAt, len(suite.Results),
	); err != nil {
		return fmt.Errorf("record run completion: %w", err)
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string
	StartedAt   string
	CompletedAt string
	ResultCount int
}

// Runs lists recorded runs, newest first.
func (ix *Index) Runs() ([]RunSummary, error) {
	rows, err := ix.db.Query(
		`SELECT id, started_at, COALESCE(completed_at, ''), result_count
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.ResultCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResultSummary is one scenario row of a recorded run.
type ResultSummary struct {
	Scenario    string
	Adapter     string
	Trials      int
	SuccessRate sql.NullFloat64
}

// Results lists the scenario rows of one run.
func (ix *Index) Results(runID string) ([]ResultSummary, error) {
	rows, err := ix.db.Query(
		`SELECT scenario, adapter, trials, success_rate
		 FROM results WHERE run_id = ? ORDER BY scenario, adapter`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		var r ResultSummary
		if err := rows.Scan(&r.Scenario, &r.Adapter, &r.Trials, &r.SuccessRate); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
