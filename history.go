package boardwatch

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// BoardReport summarizes one board's outcome within a run.
type BoardReport struct {
	Board     string `json:"board"`
	Found     int    `json:"found"`     // new posts after ledger filtering
	Delivered int    `json:"delivered"` // notification attempts made
	Skipped   int    `json:"skipped"`   // gated, weak, or failed posts
	Error     string `json:"error,omitempty"`
}

// RunReport is the per-run summary required by the reporting contract: one
// record per invocation, suitable for logs and the history store.
type RunReport struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Boards     []BoardReport
	FatalError string
}

// Totals sums the per-board counters.
func (r *RunReport) Totals() (found, delivered, skipped int) {
	for _, b := range r.Boards {
		found += b.Found
		delivered += b.Delivered
		skipped += b.Skipped
	}
	return found, delivered, skipped
}

// Summary renders the report as a single human-readable block.
func (r *RunReport) Summary() string {
	var sb strings.Builder
	found, delivered, skipped := r.Totals()
	fmt.Fprintf(&sb, "Run %s completed in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&sb, "  Boards processed: %d\n", len(r.Boards))
	fmt.Fprintf(&sb, "  New posts found: %d\n", found)
	fmt.Fprintf(&sb, "  Posts delivered: %d\n", delivered)
	fmt.Fprintf(&sb, "  Posts skipped: %d\n", skipped)
	for _, b := range r.Boards {
		if b.Error != "" {
			fmt.Fprintf(&sb, "  Board %s failed: %s\n", b.Board, b.Error)
		}
	}
	if r.FatalError != "" {
		fmt.Fprintf(&sb, "  Fatal: %s\n", r.FatalError)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RunStore persists run reports using SQLite, giving the operator a durable
// history beyond the process log.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a run store with the given database path.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs table if it doesn't exist.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		boards_processed INTEGER NOT NULL,
		posts_found INTEGER NOT NULL,
		posts_delivered INTEGER NOT NULL,
		posts_skipped INTEGER NOT NULL,
		boards TEXT NOT NULL,
		fatal_error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun persists one run report. The per-board breakdown is serialized as
// JSON in a single column.
func (s *RunStore) SaveRun(report *RunReport) error {
	boardsJSON, err := json.Marshal(report.Boards)
	if err != nil {
		return fmt.Errorf("failed to marshal board reports: %w", err)
	}

	var fatal *string
	if report.FatalError != "" {
		fatal = &report.FatalError
	}

	found, delivered, skipped := report.Totals()

	query := `
	INSERT INTO runs (run_id, started_at, finished_at, boards_processed,
		posts_found, posts_delivered, posts_skipped, boards, fatal_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		report.RunID.String(),
		report.StartedAt.Format(time.RFC3339),
		report.FinishedAt.Format(time.RFC3339),
		len(report.Boards),
		found,
		delivered,
		skipped,
		string(boardsJSON),
		fatal,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT run_id, started_at, finished_at, boards, fatal_error
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		var (
			runID      string
			startedAt  string
			finishedAt string
			boardsJSON string
			fatal      sql.NullString
		)
		if err := rows.Scan(&runID, &startedAt, &finishedAt, &boardsJSON, &fatal); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		report, err := parseRunRow(runID, startedAt, finishedAt, boardsJSON, fatal)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// parseRunRow deserializes one runs row into a RunReport.
func parseRunRow(runID, startedAt, finishedAt, boardsJSON string, fatal sql.NullString) (RunReport, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return RunReport{}, fmt.Errorf("invalid run_id %q: %w", runID, err)
	}

	started, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return RunReport{}, fmt.Errorf("invalid started_at for run %s: %w", runID, err)
	}
	finished, err := time.Parse(time.RFC3339, finishedAt)
	if err != nil {
		return RunReport{}, fmt.Errorf("invalid finished_at for run %s: %w", runID, err)
	}

	var boards []BoardReport
	if err := json.Unmarshal([]byte(boardsJSON), &boards); err != nil {
		return RunReport{}, fmt.Errorf("invalid boards payload for run %s: %w", runID, err)
	}

	report := RunReport{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: finished,
		Boards:     boards,
	}
	if fatal.Valid {
		report.FatalError = fatal.String
	}
	return report, nil
}
