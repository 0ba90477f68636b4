package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/nflpipe/internal/cli/config"
	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/leapstack-labs/nflpipe/internal/engine"
	"github.com/leapstack-labs/nflpipe/internal/materialize"
	"github.com/leapstack-labs/nflpipe/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the loaded config, logger and a renderer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// OpenStore opens the run history database, creating its directory and schema.
// The caller must close the store.
func (c *CommandContext) OpenStore() (state.Store, error) {
	if dir := filepath.Dir(c.Cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewEngine creates a pipeline engine recording history in store (may be nil).
func (c *CommandContext) NewEngine(store state.Store) (*engine.Engine, error) {
	ec := c.Cfg.EngineConfig()
	ec.Store = store
	ec.Logger = c.Logger
	return engine.New(ec)
}

// NewMaterializer creates a materializer over the exported Parquet files.
func (c *CommandContext) NewMaterializer() *materialize.Materializer {
	return materialize.New(materialize.Config{
		ParquetDir:   c.Cfg.OutputDir,
		DatabasePath: c.Cfg.Database,
		Adapter:      c.Cfg.AdapterConfig(),
		Logger:       c.Logger,
	})
}

// statusName maps pipeline outcomes onto renderer status lines.
func statusName(s engine.Status) string {
	switch s {
	case engine.StatusLoaded, engine.StatusBuilt, engine.StatusExported:
		return "success"
	case engine.StatusFailed:
		return "error"
	default:
		return "skipped"
	}
}
