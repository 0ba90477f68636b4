package duckdb

// Registers the DuckDB adapter. Import with a blank identifier:
//
//	import _ "github.com/leapstack-labs/nflpipe/pkg/adapters/duckdb"

import (
	"log/slog"

	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(l *slog.Logger) adapter.Adapter { return New(l) })
}
