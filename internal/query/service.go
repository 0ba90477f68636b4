// Package query serves read-only SQL over the analytical database.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/nflpipe/internal/materialize"
	"github.com/leapstack-labs/nflpipe/internal/metrics"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
	"github.com/leapstack-labs/nflpipe/pkg/adapters/duckdb"
)

// ErrClosed is returned by a Service after Close.
var ErrClosed = errors.New("query service is closed")

// Options configures a Service.
type Options struct {
	DatabasePath string
	// Params are passed to the database adapter (threads, memory_limit, ...).
	Params map[string]any
	// Source labels query metrics, e.g. "cli" or "http".
	Source string
	Logger *slog.Logger
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Service runs queries against one read-only connection pool. It is safe
// for concurrent use.
type Service struct {
	db     adapter.Adapter
	source string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open connects to an existing database in read-only mode.
func Open(ctx context.Context, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DatabasePath == "" {
		return nil, errors.New("database path is required")
	}

	cfg := adapter.Config{
		Type:     "duckdb",
		Path:     opts.DatabasePath,
		ReadOnly: true,
		Params:   opts.Params,
	}
	db := duckdb.New(logger)
	if err := db.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}

	logger.Debug("opened query service", "database", opts.DatabasePath)
	return newService(db, opts.Source, logger), nil
}

// OpenWithMaterializer builds the database if needed, then opens it.
func OpenWithMaterializer(ctx context.Context, m *materialize.Materializer, opts Options) (*Service, error) {
	if err := m.Ensure(ctx); err != nil {
		return nil, err
	}
	opts.DatabasePath = m.Path()
	return Open(ctx, opts)
}

// NewServiceFromDB wraps an existing connection pool.
func NewServiceFromDB(db *sql.DB, logger *slog.Logger) *Service {
	a := duckdb.New(logger)
	a.DB = db
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return newService(a, "direct", logger)
}

func newService(db adapter.Adapter, source string, logger *slog.Logger) *Service {
	if source == "" {
		source = "service"
	}
	return &Service{db: db, source: source, logger: logger}
}

// Query runs a statement and returns every row. []byte values are returned
// as strings.
func (s *Service) Query(ctx context.Context, query string, args ...any) (res *Result, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	defer func() {
		metrics.RecordQuery(s.source, time.Since(start), err)
		if err != nil {
			s.logger.Debug("query failed", "error", err)
		}
	}()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res = &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("query complete", "rows", len(res.Rows), "elapsed", time.Since(start))
	return res, nil
}

// Tables lists the tables of the database.
func (s *Service) Tables(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db.ListTables(ctx)
}

// TableExists reports whether the database has the table.
func (s *Service) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.db.TableExists(ctx, table)
}

// Schema describes one table.
func (s *Service) Schema(ctx context.Context, table string) (*adapter.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db.GetTableMetadata(ctx, table)
}

// Close releases the connection pool. Later calls return ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
