package engine

// relaxed.go - tolerant loading for raw files with malformed rows

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// Column types a relaxed column can be promoted to, in order of preference.
const (
	typeBigint  = "BIGINT"
	typeDouble  = "DOUBLE"
	typeDate    = "DATE"
	typeVarchar = "VARCHAR"
)

// castExpr returns the expression converting a text column to typ.
// Failed casts yield NULL.
func castExpr(col, typ string) string {
	ref := "trim(" + adapter.QuoteIdent(col) + ")"
	switch typ {
	case typeBigint:
		// TRY_CAST would round "1.5"; only whole numbers qualify.
		return fmt.Sprintf("CASE WHEN regexp_full_match(%s, '-?[0-9]+') THEN TRY_CAST(%s AS BIGINT) END", ref, ref)
	case typeDouble, typeDate:
		return fmt.Sprintf("TRY_CAST(%s AS %s)", ref, typ)
	default:
		return adapter.QuoteIdent(col)
	}
}

// castStats holds, for one text column, how many non-null values cast to each type.
type castStats struct {
	nonNull, bigint, double, date int64
}

// chooseType picks the first type at least threshold of the values cast to.
func chooseType(s castStats, threshold float64) (typ string, failures int64) {
	if s.nonNull == 0 {
		return typeVarchar, 0
	}
	n := float64(s.nonNull)
	switch {
	case float64(s.bigint)/n >= threshold:
		return typeBigint, s.nonNull - s.bigint
	case float64(s.double)/n >= threshold:
		return typeDouble, s.nonNull - s.double
	case float64(s.date)/n >= threshold:
		return typeDate, s.nonNull - s.date
	default:
		return typeVarchar, 0
	}
}

// loadRelaxed stages a file with every column as text, skipping rows the
// reader cannot parse, then infers column types with a tolerance threshold
// and materializes the typed table. Values that do not fit the inferred
// type become NULL and are counted in res.NulledFields; rows dropped by the
// reader are counted in res.DroppedRows.
func (e *Engine) loadRelaxed(ctx context.Context, table, path string, res *LoadResult) error {
	staging := table + "__raw"
	if err := e.db.LoadCSV(ctx, staging, path, adapter.CSVOptions{AllVarchar: true, IgnoreErrors: true}); err != nil {
		return err
	}
	defer func() { _ = e.db.Exec(ctx, "DROP TABLE IF EXISTS "+adapter.QuoteIdent(staging)) }()

	meta, err := e.db.GetTableMetadata(ctx, staging)
	if err != nil {
		return err
	}
	cols := meta.ColumnNames()

	stats, err := e.castStats(ctx, staging, cols)
	if err != nil {
		return fmt.Errorf("failed to infer column types: %w", err)
	}

	selects := make([]string, len(cols))
	nulled := make(map[string]int64)
	for i, col := range cols {
		typ, failures := chooseType(stats[i], e.cfg.RelaxedTypeThreshold)
		selects[i] = castExpr(col, typ) + " AS " + adapter.QuoteIdent(col)
		if failures > 0 {
			nulled[col] = failures
		}
		e.logger.Debug("relaxed column type", "table", table, "column", col, "type", typ, "nulled", failures)
	}

	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT %s FROM %s",
		adapter.QuoteIdent(table), strings.Join(selects, ", "), adapter.QuoteIdent(staging))
	if err := e.db.Exec(ctx, create); err != nil {
		return fmt.Errorf("failed to materialize typed table: %w", err)
	}

	if len(nulled) > 0 {
		res.NulledFields = nulled
	}

	records, err := countCSVRecords(path)
	if err != nil {
		e.logger.Warn("could not count source records", "table", table, "error", err)
		return nil
	}
	if dropped := records - meta.RowCount; dropped > 0 {
		res.DroppedRows = dropped
	}
	return nil
}

func (e *Engine) castStats(ctx context.Context, table string, cols []string) ([]castStats, error) {
	if len(cols) == 0 {
		return nil, nil
	}

	exprs := make([]string, 0, 4*len(cols))
	for _, col := range cols {
		exprs = append(exprs,
			"COUNT("+adapter.QuoteIdent(col)+")",
			"COUNT("+castExpr(col, typeBigint)+")",
			"COUNT("+castExpr(col, typeDouble)+")",
			"COUNT("+castExpr(col, typeDate)+")",
		)
	}

	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + adapter.QuoteIdent(table)
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := make([]castStats, len(cols))
	dest := make([]any, 0, 4*len(cols))
	for i := range stats {
		dest = append(dest, &stats[i].nonNull, &stats[i].bigint, &stats[i].double, &stats[i].date)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("no result row")
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return stats, rows.Err()
}

// countCSVRecords counts data records (excluding the header) with a lenient
// reader that accepts ragged rows and stray quotes.
func countCSVRecords(path string) (int64, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured data directory
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	var n int64
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", n+1, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}
