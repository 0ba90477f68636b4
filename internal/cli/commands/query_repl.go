package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/query"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "nflpipe> "
	replContPrompt = "    ...> "
)

// replSession holds the state of one interactive query session.
type replSession struct {
	ctx    context.Context
	svc    *query.Service
	out    io.Writer
	errOut io.Writer
	format string
	buf    strings.Builder
}

// pending reports whether a statement is waiting for its closing semicolon.
func (s *replSession) pending() bool { return s.buf.Len() > 0 }

// reset drops a partially typed statement.
func (s *replSession) reset() { s.buf.Reset() }

// handle processes one input line and reports whether the session should end.
func (s *replSession) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !s.pending() && strings.HasPrefix(line, ".") {
		return s.dotCommand(line)
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString(" ")
		return false
	}

	stmt := strings.TrimSuffix(s.buf.String(), ";")
	s.buf.Reset()

	res, err := s.svc.Query(s.ctx, stmt)
	if err != nil {
		s.fail(err)
		return false
	}
	if err := output.RenderRows(s.out, res.Columns, res.Rows, s.format); err != nil {
		s.fail(err)
	}
	_, _ = fmt.Fprintln(s.out)
	return false
}

func (s *replSession) dotCommand(line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".tables":
		tables, err := s.svc.Tables(s.ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		rows := make([][]any, len(tables))
		for i, t := range tables {
			rows[i] = []any{t}
		}
		if err := output.RenderRows(s.out, []string{"table"}, rows, s.format); err != nil {
			s.fail(err)
		}

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errOut, "Usage: .schema <table>")
			return false
		}
		meta, err := s.svc.Schema(s.ctx, parts[1])
		if err != nil {
			s.fail(err)
			return false
		}
		rows := make([][]any, len(meta.Columns))
		for i, c := range meta.Columns {
			rows[i] = []any{c.Position, c.Name, c.Type, c.Nullable}
		}
		if err := output.RenderRows(s.out, []string{"position", "column", "type", "nullable"}, rows, s.format); err != nil {
			s.fail(err)
		}

	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func (s *replSession) fail(err error) {
	_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
}

func runQueryREPL(cmd *cobra.Command, opts *QueryOptions) error {
	cc, svc, err := openQueryService(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	s := &replSession{
		ctx:    cmd.Context(),
		svc:    svc,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		format: resolveFormat(cc, opts),
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(cc.Cfg.StatePath), ".nflpipe_history"),
		AutoComplete:    newTableCompleter(s.ctx, svc),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(s.out, "nflpipe query (database: %s)\n", cc.Cfg.Database)
	_, _ = fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(s.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if err != nil {
			return nil
		}
		if s.handle(line) {
			return nil
		}
		if s.pending() {
			rl.SetPrompt(replContPrompt)
		} else {
			rl.SetPrompt(replPrompt)
		}
	}
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .tables         List all tables
  .schema <name>  Show the columns of a table
  .quit / .exit   Exit the REPL

Statements end with a semicolon and may span several lines.
Tab completes table names.
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter completes table names and dot-commands.
func newTableCompleter(ctx context.Context, svc *query.Service) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	if tables, err := svc.Tables(ctx); err == nil {
		for _, t := range tables {
			items = append(items, readline.PcItem(t))
		}
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
