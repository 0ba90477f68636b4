// Package adapter provides the database adapter contract used by the
// nflpipe ingestion pipeline and the runtime materializer.
//
// This package contains the public contract that all database adapters must implement.
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"

	"github.com/leapstack-labs/nflpipe/pkg/core"
)

// Type aliases so callers only need to import this package.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// CSVOptions controls how a delimited file is read.
type CSVOptions struct {
	// AllVarchar disables type sniffing; every column is loaded as text.
	AllVarchar bool
	// IgnoreErrors drops rows the reader cannot parse instead of failing.
	IgnoreErrors bool
}

// Adapter defines the interface that all database adapters must implement.
// It provides methods for connecting to databases, executing SQL, and
// retrieving metadata.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows (e.g., INSERT, UPDATE, CREATE).
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// QueryInt64 runs a query returning a single integer cell.
	QueryInt64(ctx context.Context, sql string, args ...any) (int64, error)

	// GetTableMetadata retrieves metadata for a specified table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// TableExists reports whether a base table with the given name exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// ListTables returns the base tables of the default schema in name order.
	ListTables(ctx context.Context) ([]string, error)

	// LoadCSV loads data from a CSV file into a table, replacing any
	// existing table of the same name.
	LoadCSV(ctx context.Context, tableName, filePath string, opts CSVOptions) error

	// ExportParquet writes the full contents of a table to a Parquet file.
	ExportParquet(ctx context.Context, tableName, filePath string, opts ParquetOptions) error

	// ImportParquet creates a table from a Parquet file.
	ImportParquet(ctx context.Context, tableName, filePath string) error

	// DialectName returns the SQL dialect name for this adapter.
	DialectName() string
}

// ParquetOptions controls Parquet export.
type ParquetOptions struct {
	// Compression codec name (snappy, zstd, gzip, uncompressed).
	Compression string
	// RowGroupSize is the number of rows per row group. Zero keeps the engine default.
	RowGroupSize int
}
