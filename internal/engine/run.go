package engine

// run.go - end-to-end pipeline orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/metrics"
	"github.com/leapstack-labs/nflpipe/internal/state"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// RunSummary is everything one pipeline run produced.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Loads      []LoadResult
	Builds     []BuildResult
	Exports    []ExportResult
	Dictionary DataDictionary
	QA         *QAReport
	Tables     []TableCount
	Artifacts  *ReportResult
}

// Counts summarizes the run for history.
func (s *RunSummary) Counts() state.RunCounts {
	var c state.RunCounts
	for _, l := range s.Loads {
		if l.Status == StatusLoaded {
			c.Loaded++
		}
	}
	for _, b := range s.Builds {
		switch b.Status {
		case StatusBuilt:
			c.Built++
		case StatusSkipped:
			c.Skipped++
		}
	}
	for _, x := range s.Exports {
		if x.Status == StatusExported {
			c.Exported++
		}
	}
	if s.QA != nil {
		c.Warnings = s.QA.Warnings()
	}
	return c
}

// Run executes the whole pipeline: stage the raw extract, profile it, derive
// the canonical schema, export every table to Parquet, audit quality, verify
// row counts and write the report artifacts.
//
// Per-table problems are recorded in the summary and never abort the run.
// An error is returned only when a step cannot proceed at all, such as an
// unreadable data directory or an unreachable database.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: time.Now()}

	if e.store != nil {
		run, err := e.store.CreateRun(e.cfg.DataDir, e.dbConfig.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
		e.runID = run.ID
		summary.RunID = run.ID
		defer func() { e.runID = "" }()
	}

	e.logger.Info("starting pipeline run", "run_id", summary.RunID, "data_dir", e.cfg.DataDir)

	err := e.run(ctx, summary)
	summary.Duration = time.Since(summary.StartedAt)

	if e.store != nil {
		status, msg := state.RunStatusCompleted, ""
		if err != nil {
			status, msg = state.RunStatusFailed, err.Error()
		}
		if cerr := e.store.CompleteRun(summary.RunID, status, summary.Counts(), msg); cerr != nil {
			e.logger.Error("failed to record run completion", "run_id", summary.RunID, "error", cerr)
		}
	}

	if err != nil {
		e.logger.Error("pipeline run failed", "run_id", summary.RunID, "error", err)
		return summary, err
	}

	e.logger.Info("pipeline run complete",
		"run_id", summary.RunID,
		"duration", summary.Duration.Round(time.Millisecond),
		"warnings", summary.Counts().Warnings)
	return summary, nil
}

func (e *Engine) run(ctx context.Context, s *RunSummary) error {
	loads, err := e.LoadRaw(ctx)
	if err != nil {
		return err
	}
	s.Loads = loads

	var raw []string
	for _, l := range loads {
		if l.Status == StatusLoaded {
			raw = append(raw, l.Table)
		}
	}
	s.Dictionary = make(DataDictionary)
	if len(raw) > 0 {
		dict, err := e.Profile(ctx, raw)
		if err != nil {
			return err
		}
		s.Dictionary.Merge(dict)
	}

	builds, err := e.BuildCanonical(ctx)
	if err != nil {
		return err
	}
	s.Builds = builds

	var canonical []string
	for _, b := range builds {
		if b.Status == StatusBuilt {
			canonical = append(canonical, b.Table)
		}
	}
	if len(canonical) > 0 {
		dict, err := e.Profile(ctx, canonical)
		if err != nil {
			return err
		}
		s.Dictionary.Merge(dict)
	}

	if s.Exports, err = e.Export(ctx, nil); err != nil {
		return err
	}

	if s.QA, err = e.Audit(ctx, s.Dictionary); err != nil {
		return err
	}

	if s.Tables, err = e.Verify(ctx); err != nil {
		return err
	}

	s.Artifacts = e.EmitReports(e.cfg.OutputDir, ReportInput{
		GeneratedAt: time.Now(),
		Database:    e.dbConfig.Path,
		Dictionary:  s.Dictionary,
		QA:          s.QA,
		Loads:       s.Loads,
		Builds:      s.Builds,
	})
	return nil
}

// Verify lists every base table with its row count.
func (e *Engine) Verify(ctx context.Context) ([]TableCount, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	tables, err := e.db.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	counts := make([]TableCount, 0, len(tables))
	for _, t := range tables {
		n, err := e.db.QueryInt64(ctx, "SELECT COUNT(*) FROM "+adapter.QuoteIdent(t))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t, err)
		}
		counts = append(counts, TableCount{Table: t, Rows: n})
		e.logger.Debug("verified table", "table", t, "rows", n)
	}
	return counts, nil
}

// recordEvent reports one table step to metrics and, during a run, to history.
func (e *Engine) recordEvent(step, table string, status Status, rows int64, reason string) {
	metrics.RecordTableStep(step, string(status))
	if e.store == nil || e.runID == "" {
		return
	}
	ev := &state.TableEvent{
		RunID:  e.runID,
		Step:   step,
		Table:  table,
		Status: string(status),
		Rows:   rows,
		Reason: reason,
	}
	if err := e.store.RecordTableEvent(ev); err != nil {
		e.logger.Warn("failed to record table event", "step", step, "table", table, "error", err)
	}
}

func (e *Engine) recordFindings(report *QAReport) {
	findings := report.Findings()
	for _, f := range findings {
		metrics.RecordFinding(f.Check, string(f.Status))
	}
	if e.store == nil || e.runID == "" || len(findings) == 0 {
		return
	}
	rows := make([]*state.Finding, len(findings))
	for i, f := range findings {
		rows[i] = &state.Finding{
			RunID:   e.runID,
			Check:   f.Check,
			Subject: f.Subject,
			Status:  string(f.Status),
			Detail:  f.Detail,
		}
	}
	if err := e.store.RecordFindings(e.runID, rows); err != nil {
		e.logger.Warn("failed to record QA findings", "run_id", e.runID, "error", err)
	}
}
