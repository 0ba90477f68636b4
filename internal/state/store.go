// Package state records pipeline run history in SQLite.
// It tracks each ingest run, the outcome of every table step and the QA
// findings the run produced.
package state

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution of the ingestion pipeline.
type Run struct {
	ID          string
	Status      RunStatus
	DataDir     string
	Database    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Counts      RunCounts
	Error       string
}

// RunCounts summarizes a finished run.
type RunCounts struct {
	Loaded   int
	Built    int
	Skipped  int
	Exported int
	Warnings int
}

// TableEvent is the outcome of one step (load, build, export) for one table.
type TableEvent struct {
	RunID      string
	Step       string
	Table      string
	Status     string
	Rows       int64
	Reason     string
	RecordedAt time.Time
}

// Finding is one QA check result persisted with a run.
type Finding struct {
	RunID   string
	Check   string
	Subject string
	Status  string
	Detail  string
}

// Store defines the run history operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	CreateRun(dataDir, database string) (*Run, error)
	CompleteRun(id string, status RunStatus, counts RunCounts, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordTableEvent(ev *TableEvent) error
	GetTableEvents(runID string) ([]*TableEvent, error)

	RecordFindings(runID string, findings []*Finding) error
	GetFindings(runID string) ([]*Finding, error)
}
