package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/engine"
	"github.com/leapstack-labs/nflpipe/internal/materialize"
	"github.com/spf13/cobra"
)

// MaterializeOptions holds options for the materialize command.
type MaterializeOptions struct {
	Force    bool
	Watch    bool
	Debounce time.Duration
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand() *cobra.Command {
	opts := &MaterializeOptions{}

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Build the query database from Parquet",
		Long: `Build the analytical database from the exported Parquet files.

Each Parquet file becomes a table named after the file. Canonical tables
missing from the Parquet set are derived from the raw tables. An existing
database is left untouched unless --force is given.

With --watch the command keeps running and rebuilds the database whenever
the Parquet files change, for example after another ingest.`,
		Example: `  nflpipe materialize
  nflpipe materialize --force --database /tmp/nfl.duckdb
  nflpipe materialize --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMaterialize(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rebuild even if the database exists")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Rebuild whenever the Parquet files change")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", materialize.DefaultDebounce, "Quiet period before a watch rebuild")

	return cmd
}

func runMaterialize(cmd *cobra.Command, opts *MaterializeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	m := cc.NewMaterializer()
	start := time.Now()
	if opts.Force {
		err = m.Rebuild(cmd.Context())
	} else {
		err = m.Ensure(cmd.Context())
	}
	if engine.IsNoParquet(err) {
		err = fmt.Errorf("%w\nHint: run 'nflpipe ingest' to export the Parquet files first", err)
	}
	r := cc.Renderer
	if opts.Watch {
		return watchParquet(cmd, m, r, opts, err)
	}
	if err != nil {
		return err
	}

	if r.Mode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"database": m.Path(),
			"built":    m.Builds() > 0,
		})
	}
	if m.Builds() == 0 {
		r.Muted(fmt.Sprintf("Database already exists at %s (use --force to rebuild)", m.Path()))
		return nil
	}
	r.Success(fmt.Sprintf("Built %s in %s", m.Path(), time.Since(start).Round(time.Millisecond)))
	return nil
}

// watchParquet reports the initial build, then rebuilds on every change until interrupted.
func watchParquet(cmd *cobra.Command, m *materialize.Materializer, r *output.Renderer, opts *MaterializeOptions, initial error) error {
	if initial != nil {
		r.Error(initial.Error())
	} else {
		r.Success("Database ready at " + m.Path())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return m.Watch(ctx, materialize.WatchOptions{
		Debounce: opts.Debounce,
		OnRebuild: func(err error) {
			if err != nil {
				r.Error(err.Error())
				return
			}
			r.Success(fmt.Sprintf("Rebuilt %s at %s", m.Path(), time.Now().Format(time.TimeOnly)))
		},
	})
}
