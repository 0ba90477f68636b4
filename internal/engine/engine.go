// Package engine runs the offline ingestion pipeline: it stages the raw CSV
// extract in DuckDB, profiles it, derives the canonical schema, exports
// Parquet, audits quality and writes the data dictionary and QA report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/leapstack-labs/nflpipe/internal/state"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"

	_ "github.com/leapstack-labs/nflpipe/pkg/adapters/duckdb" // registers the duckdb adapter
)

// Default tuning values.
const (
	DefaultSeasonColumn         = "seas"
	DefaultRelaxedTypeThreshold = 0.9
	DefaultCompression          = "snappy"
	DefaultRowGroupSize         = 122880
)

// DefaultRelaxedTables lists the raw files known to contain malformed rows.
var DefaultRelaxedTables = []string{"PLAY"}

// Engine orchestrates the ingestion pipeline against one analytical database.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	logger *slog.Logger
	store  state.Store
	cfg    Config

	// runID is set while Run is recording history.
	runID string
}

// Config holds engine configuration.
type Config struct {
	// DataDir holds the raw *.csv extract.
	DataDir string
	// OutputDir receives Parquet files, the data dictionary and the QA report.
	OutputDir string
	// AdapterConfig describes the analytical database. Path is the database file.
	AdapterConfig adapter.Config

	// RelaxedTables are loaded with tolerant parsing (matched against the file stem).
	RelaxedTables []string
	// RelaxedTypeThreshold is the share of non-null values that must cast to a
	// type before a relaxed column is given that type.
	RelaxedTypeThreshold float64
	// SeasonColumn is the column used for season ranges and coverage.
	SeasonColumn string

	Parquet adapter.ParquetOptions
	QA      QAConfig

	// Store records run history (optional).
	Store state.Store
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a new engine with lazy database connection.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.AdapterConfig.Type == "" {
		cfg.AdapterConfig.Type = "duckdb"
	}
	if cfg.AdapterConfig.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.RelaxedTables == nil {
		cfg.RelaxedTables = DefaultRelaxedTables
	}
	if cfg.RelaxedTypeThreshold <= 0 || cfg.RelaxedTypeThreshold > 1 {
		cfg.RelaxedTypeThreshold = DefaultRelaxedTypeThreshold
	}
	if cfg.SeasonColumn == "" {
		cfg.SeasonColumn = DefaultSeasonColumn
	}
	if cfg.Parquet.Compression == "" {
		cfg.Parquet.Compression = DefaultCompression
	}
	if cfg.Parquet.RowGroupSize == 0 {
		cfg.Parquet.RowGroupSize = DefaultRowGroupSize
	}
	if cfg.QA.SeasonColumn == "" {
		cfg.QA.SeasonColumn = cfg.SeasonColumn
	}
	cfg.QA = cfg.QA.withDefaults()

	logger.Debug("initializing engine", "data_dir", cfg.DataDir, "database", cfg.AdapterConfig.Path)

	return &Engine{
		dbConfig: cfg.AdapterConfig,
		logger:   logger,
		store:    cfg.Store,
		cfg:      cfg,
	}, nil
}

// ensureDBConnected lazily connects to the database.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to database", "adapter_type", e.dbConfig.Type)

	db, err := adapter.NewAdapter(e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}

	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	e.db = db
	e.dbConnected = true
	return nil
}

// disconnect closes the adapter if connected.
func (e *Engine) disconnect() error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if !e.dbConnected {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	e.dbConnected = false
	return err
}

// ResetDatabase closes any open connection and deletes the database file and
// its write-ahead log so the next step starts from an empty database.
func (e *Engine) ResetDatabase() error {
	if err := e.disconnect(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	path := e.dbConfig.Path
	if path == ":memory:" {
		return nil
	}
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	e.logger.Debug("removed existing database", "path", path)
	return nil
}

// Adapter returns the connected adapter, connecting if needed.
func (e *Engine) Adapter(ctx context.Context) (adapter.Adapter, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db, nil
}

// Close releases all resources. The state store is owned by the caller.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	return e.disconnect()
}
