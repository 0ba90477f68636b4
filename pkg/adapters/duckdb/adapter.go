// Package duckdb provides the DuckDB database adapter for nflpipe.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/nflpipe/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

const defaultSchema = "main"

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
	params *Params
}

// New creates a new DuckDB adapter instance.
// The logger is optional; nil uses a discard logger.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return fmt.Errorf("invalid duckdb params: %w", err)
	}

	dsn, err := buildDSN(cfg, params)
	if err != nil {
		return err
	}

	a.Logger.Debug("opening duckdb", "path", cfg.Path, "read_only", cfg.ReadOnly)

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.params = params

	for _, ext := range params.Extensions {
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			_ = a.Close()
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	return nil
}

// buildDSN turns the config into a go-duckdb DSN. Settings travel as query
// parameters so they apply to every pooled connection.
func buildDSN(cfg adapter.Config, params *Params) (string, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if cfg.ReadOnly && path == ":memory:" {
		return "", fmt.Errorf("read-only mode requires a database file")
	}

	q := url.Values{}
	if cfg.ReadOnly {
		q.Set("access_mode", "read_only")
	}
	keys := make([]string, 0, len(params.Settings))
	for k := range params.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, params.Settings[k])
	}

	if len(q) == 0 {
		return path, nil
	}
	return path + "?" + q.Encode(), nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, defaultSchema)
}

// TableExists reports whether a base table exists in the main schema.
func (a *Adapter) TableExists(ctx context.Context, table string) (bool, error) {
	return a.TableExistsCommon(ctx, table, defaultSchema)
}

// ListTables returns the base tables of the main schema.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	return a.ListTablesCommon(ctx, defaultSchema)
}

// LoadCSV loads data from a CSV file into a table.
// DuckDB infers the schema unless opts.AllVarchar is set.
func (a *Adapter) LoadCSV(ctx context.Context, tableName, filePath string, opts adapter.CSVOptions) error {
	if a.DB == nil {
		return adapter.ErrNotConnected
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	reader := "read_csv_auto(" + adapter.QuoteLiteral(absPath) + ", header=true"
	if opts.AllVarchar {
		reader += ", all_varchar=true"
	}
	if opts.IgnoreErrors {
		reader += ", ignore_errors=true"
	}
	reader += ")"

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", adapter.QuoteIdent(tableName), reader)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	return nil
}

var compressionCodecs = map[string]bool{
	"snappy":       true,
	"zstd":         true,
	"gzip":         true,
	"lz4":          true,
	"brotli":       true,
	"uncompressed": true,
}

// ExportParquet writes a table to a Parquet file with COPY.
func (a *Adapter) ExportParquet(ctx context.Context, tableName, filePath string, opts adapter.ParquetOptions) error {
	if a.DB == nil {
		return adapter.ErrNotConnected
	}

	codec := strings.ToLower(opts.Compression)
	if codec == "" {
		codec = "snappy"
	}
	if !compressionCodecs[codec] {
		return fmt.Errorf("unsupported parquet compression %q", opts.Compression)
	}

	options := "FORMAT PARQUET, COMPRESSION " + strings.ToUpper(codec)
	if opts.RowGroupSize > 0 {
		options += fmt.Sprintf(", ROW_GROUP_SIZE %d", opts.RowGroupSize)
	}

	query := fmt.Sprintf("COPY %s TO %s (%s)", adapter.QuoteIdent(tableName), adapter.QuoteLiteral(filePath), options)
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to export %s: %w", tableName, err)
	}
	return nil
}

// ImportParquet creates (or replaces) a table from a Parquet file.
func (a *Adapter) ImportParquet(ctx context.Context, tableName, filePath string) error {
	if a.DB == nil {
		return adapter.ErrNotConnected
	}

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet(%s)",
		adapter.QuoteIdent(tableName), adapter.QuoteLiteral(filePath))
	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to import %s: %w", filePath, err)
	}
	return nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
