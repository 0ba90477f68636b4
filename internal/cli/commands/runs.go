package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/state"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show ingest run history",
		Long: `List recent ingest runs recorded in the state database.

Use 'nflpipe runs show <id>' for the per-table outcomes and QA findings of
one run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if cc.Renderer.Mode() == output.ModeJSON {
				if runs == nil {
					runs = []*state.Run{}
				}
				return cc.Renderer.JSON(runs)
			}

			rows := make([][]any, len(runs))
			for i, run := range runs {
				rows[i] = []any{
					run.ID, string(run.Status), run.StartedAt.Format(time.DateTime), runDuration(run),
					run.Counts.Loaded, run.Counts.Built, run.Counts.Skipped, run.Counts.Exported, run.Counts.Warnings,
				}
			}
			return output.RenderRows(cc.Renderer.Writer(),
				[]string{"id", "status", "started", "duration", "loaded", "built", "skipped", "exported", "warnings"},
				rows, tableFormat(cc))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			events, err := store.GetTableEvents(run.ID)
			if err != nil {
				return err
			}
			findings, err := store.GetFindings(run.ID)
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.Mode() == output.ModeJSON {
				return r.JSON(map[string]any{"run": run, "events": events, "findings": findings})
			}

			r.Header(2, "Run "+run.ID)
			r.Printf("Status:   %s\n", run.Status)
			r.Printf("Data dir: %s\n", run.DataDir)
			r.Printf("Database: %s\n", run.Database)
			r.Printf("Started:  %s (%s)\n", run.StartedAt.Format(time.DateTime), runDuration(run))
			if run.Error != "" {
				r.Error(run.Error)
			}
			r.Println()

			evRows := make([][]any, len(events))
			for i, ev := range events {
				evRows[i] = []any{ev.Step, ev.Table, ev.Status, ev.Rows, ev.Reason}
			}
			if err := output.RenderRows(r.Writer(), []string{"step", "table", "status", "rows", "reason"}, evRows, tableFormat(cc)); err != nil {
				return err
			}
			r.Println()

			fRows := make([][]any, len(findings))
			for i, f := range findings {
				fRows[i] = []any{f.Check, f.Subject, f.Status, f.Detail}
			}
			return output.RenderRows(r.Writer(), []string{"check", "subject", "status", "detail"}, fRows, tableFormat(cc))
		},
	}
}

func openHistory(cmd *cobra.Command) (*CommandContext, state.Store, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := cc.OpenStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return cc, store, nil
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func tableFormat(cc *CommandContext) string {
	if cc.Renderer.Mode() == output.ModeMarkdown {
		return output.FormatMarkdown
	}
	return output.FormatTable
}
