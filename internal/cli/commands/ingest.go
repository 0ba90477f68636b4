package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/engine"
	"github.com/leapstack-labs/nflpipe/internal/state"
	"github.com/spf13/cobra"
)

// IngestOptions holds options for the ingest command.
type IngestOptions struct {
	NoHistory bool
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline",
		Long: `Run the full offline pipeline over the raw CSV extract.

Every *.csv file in the data directory is staged in a fresh DuckDB database,
the canonical tables are derived from it, every table is exported to Parquet
and the data dictionary and QA report are written to the output directory.

Problems with individual tables are reported and never stop the run.`,
		Example: `  # Ingest ./data_raw into ./data_processed
  nflpipe ingest

  # Use another extract and emit the summary as JSON
  nflpipe ingest --data-dir /mnt/extract -o json`,
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the state database")

	return cmd
}

// ingestReport is the JSON form of a run summary.
type ingestReport struct {
	RunID     string                `json:"run_id,omitempty"`
	Duration  string                `json:"duration"`
	Loads     []engine.LoadResult   `json:"loads"`
	Builds    []engine.BuildResult  `json:"builds"`
	Exports   []engine.ExportResult `json:"exports"`
	Tables    []engine.TableCount   `json:"tables"`
	QA        *engine.QAReport      `json:"qa,omitempty"`
	Artifacts []string              `json:"artifacts"`
	Error     string                `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, opts *IngestOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cc.Cfg.ValidateDataDir(); err != nil {
		return err
	}

	var store state.Store
	if !opts.NoHistory {
		store, err = cc.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	eng, err := cc.NewEngine(store)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	summary, runErr := eng.Run(cmd.Context())
	if summary == nil {
		return runErr
	}

	r := cc.Renderer
	if r.Mode() == output.ModeJSON {
		rep := ingestReport{
			RunID:    summary.RunID,
			Duration: summary.Duration.Round(time.Millisecond).String(),
			Loads:    summary.Loads,
			Builds:   summary.Builds,
			Exports:  summary.Exports,
			Tables:   summary.Tables,
			QA:       summary.QA,
		}
		if summary.Artifacts != nil {
			rep.Artifacts = summary.Artifacts.Written
		}
		if runErr != nil {
			rep.Error = runErr.Error()
		}
		if err := r.JSON(rep); err != nil {
			return err
		}
		return runErr
	}

	renderIngest(r, summary)
	if runErr != nil {
		return runErr
	}
	c := summary.Counts()
	r.Success(fmt.Sprintf("Ingested %d raw tables, built %d canonical tables, exported %d files in %s",
		c.Loaded, c.Built, c.Exported, summary.Duration.Round(time.Millisecond)))
	if c.Warnings > 0 {
		r.Warning(fmt.Sprintf("%d QA checks reported WARN (see %s)", c.Warnings, engine.QAReportFile))
	}
	return nil
}

func renderIngest(r *output.Renderer, s *engine.RunSummary) {
	if len(s.Loads) > 0 {
		r.Header(2, "Load")
		for _, l := range s.Loads {
			r.StatusLine(l.Table, statusName(l.Status), loadDetail(l))
		}
		r.Println()
	}

	if len(s.Builds) > 0 {
		r.Header(2, "Build")
		for _, b := range s.Builds {
			detail := b.Reason
			if b.Status == engine.StatusBuilt {
				detail = fmt.Sprintf("%d rows", b.Rows)
			}
			r.StatusLine(b.Table, statusName(b.Status), detail)
		}
		r.Println()
	}

	if failed := failedExports(s.Exports); len(failed) > 0 {
		r.Header(2, "Export failures")
		for _, x := range failed {
			r.StatusLine(x.Table, "error", x.Reason)
		}
		r.Println()
	}

	if s.QA != nil {
		if u := s.QA.Unavailable; len(u) > 0 {
			r.Header(2, "Checks not available")
			keys := make([]string, 0, len(u))
			for k := range u {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				r.StatusLine(k, "skipped", u[k])
			}
			r.Println()
		}
	}

	if s.Artifacts != nil {
		for _, p := range s.Artifacts.Written {
			r.Muted("wrote " + p)
		}
		for name, err := range s.Artifacts.Errors {
			r.Error(fmt.Sprintf("failed to write %s: %v", name, err))
		}
	}
}

func loadDetail(l engine.LoadResult) string {
	if l.Status != engine.StatusLoaded {
		return l.Reason
	}
	detail := fmt.Sprintf("%d rows, %d columns", l.Rows, l.Columns)
	if l.DroppedRows > 0 {
		detail += fmt.Sprintf(", %d malformed rows dropped", l.DroppedRows)
	}
	return detail
}

func failedExports(exports []engine.ExportResult) []engine.ExportResult {
	var out []engine.ExportResult
	for _, x := range exports {
		if x.Status == engine.StatusFailed {
			out = append(out, x)
		}
	}
	return out
}
