package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // sqlite driver
)

var errNotOpened = errors.New("database not opened")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
// The logger is optional; nil uses a discard logger.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// NewSQLiteStoreFromDB wraps an existing connection. Used by tests.
func NewSQLiteStoreFromDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	s := NewSQLiteStore(logger)
	s.db = db
	return s
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the schema up to date.
func (s *SQLiteStore) InitSchema() error {
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// CreateRun creates a new pipeline run in the running state.
func (s *SQLiteStore) CreateRun(dataDir, database string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		DataDir:   dataDir,
		Database:  database,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, data_dir, database_path, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.DataDir, run.Database, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status and counts.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, counts RunCounts, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, completed_at = ?, tables_loaded = ?, tables_built = ?,
		    tables_skipped = ?, tables_exported = ?, warnings = ?, error = ?
		WHERE id = ?`,
		string(status), time.Now().UTC(), counts.Loaded, counts.Built,
		counts.Skipped, counts.Exported, counts.Warnings, errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, status, data_dir, database_path, started_at, completed_at,
	tables_loaded, tables_built, tables_skipped, tables_exported, warnings, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&run.ID, &status, &run.DataDir, &run.Database, &run.StartedAt, &completedAt,
		&run.Counts.Loaded, &run.Counts.Built, &run.Counts.Skipped, &run.Counts.Exported,
		&run.Counts.Warnings, &errMsg)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordTableEvent upserts the outcome of a table step.
func (s *SQLiteStore) RecordTableEvent(ev *TableEvent) error {
	if s.db == nil {
		return errNotOpened
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO table_events (run_id, step, table_name, status, row_count, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step, table_name) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			reason = excluded.reason,
			recorded_at = excluded.recorded_at`,
		ev.RunID, ev.Step, ev.Table, ev.Status, ev.Rows, ev.Reason, ev.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", ev.Step, ev.Table, err)
	}
	return nil
}

// GetTableEvents returns the events of a run ordered by time of recording.
func (s *SQLiteStore) GetTableEvents(runID string) ([]*TableEvent, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(`
		SELECT run_id, step, table_name, status, row_count, COALESCE(reason, ''), recorded_at
		FROM table_events WHERE run_id = ?
		ORDER BY recorded_at, step, table_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get table events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*TableEvent
	for rows.Next() {
		ev := &TableEvent{}
		if err := rows.Scan(&ev.RunID, &ev.Step, &ev.Table, &ev.Status, &ev.Rows, &ev.Reason, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordFindings stores the QA findings of a run in one transaction.
func (s *SQLiteStore) RecordFindings(runID string, findings []*Finding) error {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO qa_findings (run_id, check_id, subject, status, detail)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range findings {
		if _, err := stmt.Exec(runID, f.Check, f.Subject, f.Status, f.Detail); err != nil {
			return fmt.Errorf("failed to record finding %s/%s: %w", f.Check, f.Subject, err)
		}
	}
	return tx.Commit()
}

// GetFindings returns the QA findings of a run.
func (s *SQLiteStore) GetFindings(runID string) ([]*Finding, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(`
		SELECT run_id, check_id, subject, status, COALESCE(detail, '')
		FROM qa_findings WHERE run_id = ?
		ORDER BY check_id, subject`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*Finding
	for rows.Next() {
		f := &Finding{}
		if err := rows.Scan(&f.RunID, &f.Check, &f.Subject, &f.Status, &f.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
