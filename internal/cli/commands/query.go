package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/query"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Params []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the canonical tables",
		Long: `Run read-only SQL against the analytical database.

The database is built from the exported Parquet files first if it does not
exist yet. SQL is taken from the arguments, from --input, or from stdin.
Without SQL on an interactive terminal an interactive session starts.
Positional parameters ($1, $2, ...) are bound from --param.`,
		Example: `  # Execute SQL directly
  nflpipe query "SELECT off, count(*) FROM plays GROUP BY off"

  # Bind parameters
  nflpipe query "SELECT * FROM games WHERE seas = \$1" --param 2000

  # List available tables
  nflpipe query tables

  # Show schema for a table
  nflpipe query schema plays

  # Output as CSV
  nflpipe query "SELECT * FROM players" --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", output.FormatTable, "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Positional query parameter (repeatable)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Formats, cobra.ShellCompDirectiveNoFileComp
	})

	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List available tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, svc, err := openQueryService(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			tables, err := svc.Tables(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]any, len(tables))
			for i, t := range tables {
				rows[i] = []any{t}
			}
			return output.RenderRows(cc.Renderer.Writer(), []string{"table"}, rows, resolveFormat(cc, opts))
		},
	}
}

func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, svc, err := openQueryService(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			meta, err := svc.Schema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]any, len(meta.Columns))
			for i, c := range meta.Columns {
				rows[i] = []any{c.Position, c.Name, c.Type, c.Nullable}
			}
			format := resolveFormat(cc, opts)
			if format == output.FormatTable {
				cc.Renderer.Header(2, fmt.Sprintf("%s (%d rows)", meta.Name, meta.RowCount))
			}
			return output.RenderRows(cc.Renderer.Writer(), []string{"position", "column", "type", "nullable"}, rows, format)
		},
	}
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	if len(args) == 0 && opts.Input == "" && stdinIsTerminal(cmd) {
		return runQueryREPL(cmd, opts)
	}

	sqlQuery, err := readSQL(cmd, args, opts)
	if err != nil {
		return err
	}
	if strings.TrimSpace(sqlQuery) == "" {
		return fmt.Errorf("no SQL given (pass it as an argument, with --input or on stdin)")
	}

	cc, svc, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	params := make([]any, len(opts.Params))
	for i, p := range opts.Params {
		params[i] = p
	}

	res, err := svc.Query(cmd.Context(), sqlQuery, params...)
	if err != nil {
		return err
	}
	return output.RenderRows(cc.Renderer.Writer(), res.Columns, res.Rows, resolveFormat(cc, opts))
}

// readSQL picks the statement from the arguments, a file, or piped stdin.
func readSQL(cmd *cobra.Command, args []string, opts *QueryOptions) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(content), nil
	}

	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(content), nil
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

func openQueryService(cmd *cobra.Command) (*CommandContext, *query.Service, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	svc, err := query.OpenWithMaterializer(cmd.Context(), cc.NewMaterializer(), query.Options{
		Params: cc.Cfg.Target.Params,
		Source: "cli",
		Logger: cc.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return cc, svc, nil
}

// resolveFormat lets the global --output json apply when --format is left at its default.
func resolveFormat(cc *CommandContext, opts *QueryOptions) string {
	if opts.Format == output.FormatTable {
		switch cc.Renderer.Mode() {
		case output.ModeJSON:
			return output.FormatJSON
		case output.ModeMarkdown:
			if cc.Cfg.OutputFormat == string(output.ModeMarkdown) {
				return output.FormatMarkdown
			}
		}
	}
	return opts.Format
}
