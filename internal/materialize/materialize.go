// Package materialize rebuilds the analytical database from the exported
// Parquet files when it is missing. A build writes to a temporary file and
// renames it into place, so readers never observe a partial database.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/catalog"
	"github.com/leapstack-labs/nflpipe/internal/engine"
	"github.com/leapstack-labs/nflpipe/internal/metrics"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// BuildError is returned when the database could not be built. No database
// file is left behind.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build database %s from parquet: %v", e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Config describes where the Parquet files live and where the database goes.
type Config struct {
	ParquetDir   string
	DatabasePath string
	// Adapter selects the database type and its params. Path is ignored.
	Adapter adapter.Config
	Logger  *slog.Logger
}

// Materializer ensures the database exists, building it at most once at a time.
type Materializer struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	builds atomic.Int64
}

// New creates a materializer.
func New(cfg Config) *Materializer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Adapter.Type == "" {
		cfg.Adapter.Type = "duckdb"
	}
	return &Materializer{cfg: cfg, logger: logger}
}

// Path returns the database path.
func (m *Materializer) Path() string { return m.cfg.DatabasePath }

// Builds returns how many builds this materializer has run.
func (m *Materializer) Builds() int64 { return m.builds.Load() }

// Ensure builds the database if it does not exist. Concurrent callers block
// until the build finishes; only one of them builds.
func (m *Materializer) Ensure(ctx context.Context) error {
	if exists(m.cfg.DatabasePath) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if exists(m.cfg.DatabasePath) {
		return nil
	}
	return m.build(ctx)
}

// Rebuild removes any existing database and builds it again.
func (m *Materializer) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := removeAll(m.cfg.DatabasePath); err != nil {
		return err
	}
	return m.build(ctx)
}

func (m *Materializer) build(ctx context.Context) (err error) {
	start := time.Now()
	m.builds.Add(1)
	defer func() { metrics.RecordMaterialize(time.Since(start), err) }()

	final := m.cfg.DatabasePath
	tmp := final + ".building"

	m.logger.Info("building database from parquet", "parquet_dir", m.cfg.ParquetDir, "database", final)

	if err := removeAll(tmp); err != nil {
		return &BuildError{Path: final, Err: err}
	}

	tables, err := m.buildAt(ctx, tmp)
	if err != nil {
		_ = removeAll(tmp)
		_ = removeAll(final)
		m.logger.Error("database build failed", "database", final, "error", err)
		return &BuildError{Path: final, Err: err}
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = removeAll(tmp)
		return &BuildError{Path: final, Err: err}
	}
	_ = os.Remove(tmp + ".wal")

	m.logger.Info("database ready",
		"database", final,
		"tables", tables,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// buildAt imports the Parquet files into a fresh database at path, derives
// the canonical tables and returns the table count. The database is closed
// on return.
func (m *Materializer) buildAt(ctx context.Context, path string) (int, error) {
	files, err := engine.ParquetFiles(m.cfg.ParquetDir)
	if err != nil {
		return 0, err
	}

	cfg := m.cfg.Adapter
	cfg.Path = path
	db, err := adapter.NewAdapter(cfg, m.logger)
	if err != nil {
		return 0, fmt.Errorf("failed to create database adapter: %w", err)
	}
	if err := db.Connect(ctx, cfg); err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, f := range dedupeParquet(files) {
		table := strings.TrimSuffix(filepath.Base(f), ".parquet")
		if err := db.ImportParquet(ctx, table, f); err != nil {
			return 0, fmt.Errorf("failed to import %s: %w", filepath.Base(f), err)
		}
		m.logger.Debug("imported parquet", "table", table)
	}

	results, err := engine.BuildCanonical(ctx, db, catalog.Definitions(), engine.BuildOptions{
		KeepExisting: true,
		Logger:       m.logger,
	})
	if err != nil {
		return 0, err
	}

	var missing []string
	for _, r := range results {
		if r.Status != engine.StatusBuilt && r.Status != engine.StatusPresent {
			missing = append(missing, fmt.Sprintf("%s (%s)", r.Table, r.Reason))
		}
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("canonical tables unavailable: %s", strings.Join(missing, ", "))
	}

	tables, err := db.ListTables(ctx)
	if err != nil {
		return 0, err
	}
	if err := db.Close(); err != nil {
		return 0, fmt.Errorf("failed to close database: %w", err)
	}
	return len(tables), nil
}

// dedupeParquet drops files whose table names collide case-insensitively.
// Table names are case-insensitive, so REDZONE.parquet and redzone.parquet
// would load into the same table; the canonical spelling wins.
func dedupeParquet(files []string) []string {
	chosen := make(map[string]string, len(files))
	var order []string
	for _, f := range files {
		table := strings.TrimSuffix(filepath.Base(f), ".parquet")
		key := strings.ToLower(table)
		prev, seen := chosen[key]
		if !seen {
			order = append(order, key)
			chosen[key] = f
			continue
		}
		if catalog.IsCanonical(table) && !catalog.IsCanonical(strings.TrimSuffix(filepath.Base(prev), ".parquet")) {
			chosen[key] = f
		}
	}
	out := make([]string, len(order))
	for i, key := range order {
		out[i] = chosen[key]
	}
	return out
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeAll(path string) error {
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
