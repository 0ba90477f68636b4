package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/query"
	"github.com/leapstack-labs/nflpipe/internal/server"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr         string
	QueryTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Start a read-only HTTP API over the canonical tables.

The database is built from the exported Parquet files on startup if needed.

Endpoints:
  POST /api/query          run SQL, body {"sql": "...", "params": [...]}
  GET  /api/tables         list tables
  GET  /api/tables/{name}  table schema
  GET  /healthz            liveness
  GET  /metrics            Prometheus metrics`,
		Example: `  nflpipe serve
  nflpipe serve --addr :9090 --query-timeout 30s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from serve.addr)")
	cmd.Flags().DurationVar(&opts.QueryTimeout, "query-timeout", 0, "Per-request query timeout (0 for none)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := query.OpenWithMaterializer(ctx, cc.NewMaterializer(), query.Options{
		Params: cc.Cfg.Target.Params,
		Source: "http",
		Logger: cc.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	addr := opts.Addr
	if addr == "" {
		addr = cc.Cfg.Serve.Addr
	}
	srv := server.New(svc, server.Config{
		Addr:         addr,
		ReadTimeout:  cc.Cfg.Serve.ReadTimeout,
		QueryTimeout: opts.QueryTimeout,
		Logger:       cc.Logger,
	})

	cc.Renderer.Success("Serving " + cc.Cfg.Database + " on http://" + addr)
	return srv.Serve(ctx)
}
