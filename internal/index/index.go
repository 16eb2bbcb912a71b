// Package index keeps a queryable record of every run in a SQLite database.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultFile is the database file name used under the storage root.
const DefaultFile = "runs.db"

// Run is one row of the run index.
type Run struct {
	RunID       string `json:"run_id"`
	ProjectName string `json:"project_name,omitempty"`
	TargetID    string `json:"target_id"`
	Status      string `json:"status"`
	Stage       string `json:"stage"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	Launch      string `json:"launch,omitempty"`
	RunDir      string `json:"run_dir"`
	SummaryPath string `json:"summary_path,omitempty"`
	ReportPath  string `json:"report_path,omitempty"`
	Live        bool   `json:"live"`
	Message     string `json:"message,omitempty"`
}

// SummaryFile is the run's summary.json, falling back to the run directory.
func (r *Run) SummaryFile() string {
	if r.SummaryPath != "" {
		return r.SummaryPath
	}
	return filepath.Join(r.RunDir, "summary.json")
}

// ReportFile is the run's report.md, falling back to the run directory.
func (r *Run) ReportFile() string {
	if r.ReportPath != "" {
		return r.ReportPath
	}
	return filepath.Join(r.RunDir, "report.md")
}

// Filter narrows List. Target and Status match case-insensitively; a
// non-positive Limit means no limit.
type Filter struct {
	Target string
	Status string
	Limit  int
}

type Index interface {
	Upsert(ctx context.Context, run *Run) error
	Get(ctx context.Context, runID string) (*Run, error)
	List(ctx context.Context, f Filter) ([]Run, error)
	Close() error
}

// SQLite is the database-backed Index.
type SQLite struct {
	db *sql.DB
}

var _ Index = (*SQLite)(nil)

// Open opens (creating if needed) the index database at path.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index %s: %w", path, err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		project_name TEXT,
		target_id TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		launch TEXT,
		run_dir TEXT NOT NULL,
		summary_path TEXT,
		report_path TEXT,
		live INTEGER NOT NULL,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Upsert(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, project_name, target_id, status, stage, started_at, finished_at,
			launch, run_dir, summary_path, report_path, live, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			project_name = excluded.project_name,
			target_id = excluded.target_id,
			status = excluded.status,
			stage = excluded.stage,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			launch = excluded.launch,
			run_dir = excluded.run_dir,
			summary_path = excluded.summary_path,
			report_path = excluded.report_path,
			live = excluded.live,
			message = excluded.message`,
		run.RunID, nullString(run.ProjectName), run.TargetID, run.Status, run.Stage,
		run.StartedAt, run.FinishedAt, nullString(run.Launch), run.RunDir,
		nullString(run.SummaryPath), nullString(run.ReportPath), run.Live, nullString(run.Message),
	)
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", run.RunID, err)
	}
	return nil
}

const selectColumns = `SELECT run_id, project_name, target_id, status, stage, started_at, finished_at,
	launch, run_dir, summary_path, report_path, live, message FROM runs`

// Get returns the run with the given id, or nil when there is none.
func (s *SQLite) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	return run, nil
}

// List returns runs newest first.
func (s *SQLite) List(ctx context.Context, f Filter) ([]Run, error) {
	query := selectColumns + ` WHERE 1=1`
	var args []any
	if f.Target != "" {
		query += ` AND LOWER(target_id) = LOWER(?)`
		args = append(args, f.Target)
	}
	if f.Status != "" {
		query += ` AND UPPER(status) = UPPER(?)`
		args = append(args, f.Status)
	}
	query += ` ORDER BY finished_at DESC, run_id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var projectName, launch, summaryPath, reportPath, message sql.NullString
	err := row.Scan(
		&run.RunID, &projectName, &run.TargetID, &run.Status, &run.Stage,
		&run.StartedAt, &run.FinishedAt, &launch, &run.RunDir,
		&summaryPath, &reportPath, &run.Live, &message,
	)
	if err != nil {
		return nil, err
	}
	run.ProjectName = projectName.String
	run.Launch = launch.String
	run.SummaryPath = summaryPath.String
	run.ReportPath = reportPath.String
	run.Message = message.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
