package engine

// profile.go - per-table schema and missingness profiles

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/nflpipe/internal/catalog"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// Table layers recorded in profiles.
const (
	LayerRaw       = "raw"
	LayerCanonical = "canonical"
)

// SeasonRange is the inclusive [min, max] season present in a table.
type SeasonRange [2]int64

// TableProfile summarizes one table for the data dictionary.
type TableProfile struct {
	Layer             string             `json:"layer"`
	RowCount          int64              `json:"row_count"`
	ColumnCount       int                `json:"column_count"`
	Columns           []string           `json:"columns"`
	Dtypes            map[string]string  `json:"dtypes"`
	MissingPercentage float64            `json:"missing_percentage"`
	MissingByColumn   map[string]float64 `json:"missing_by_column"`
	SeasonRange       *SeasonRange       `json:"season_range"`
}

// ColumnMissing is one column's null percentage.
type ColumnMissing struct {
	Column string
	Pct    float64
}

// TopMissing returns up to n columns with a non-zero null percentage,
// highest first.
func (p *TableProfile) TopMissing(n int) []ColumnMissing {
	var out []ColumnMissing
	for col, pct := range p.MissingByColumn {
		if pct > 0 {
			out = append(out, ColumnMissing{Column: col, Pct: pct})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pct != out[j].Pct {
			return out[i].Pct > out[j].Pct
		}
		return out[i].Column < out[j].Column
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DataDictionary maps table name to profile.
type DataDictionary map[string]*TableProfile

// Tables returns the table names in sorted order.
func (d DataDictionary) Tables() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalRows sums row counts across tables.
func (d DataDictionary) TotalRows() int64 {
	var n int64
	for _, p := range d {
		n += p.RowCount
	}
	return n
}

// Merge copies every profile of other into d.
func (d DataDictionary) Merge(other DataDictionary) {
	for k, v := range other {
		d[k] = v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Profile computes profiles for the given tables, or for every base table
// when tables is empty. A table that cannot be profiled is logged and left out.
func (e *Engine) Profile(ctx context.Context, tables []string) (DataDictionary, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	if len(tables) == 0 {
		var err error
		tables, err = e.db.ListTables(ctx)
		if err != nil {
			return nil, err
		}
	}

	dict := make(DataDictionary, len(tables))
	for _, table := range tables {
		p, err := ProfileTable(ctx, e.db, table, e.cfg.SeasonColumn)
		if err != nil {
			e.logger.Error("failed to profile table", "table", table, "error", err)
			continue
		}
		dict[table] = p
		e.logger.Info("profiled table", "table", table, "rows", p.RowCount, "missing_pct", p.MissingPercentage)
	}
	return dict, nil
}

// ProfileTable profiles a single table with one aggregate query.
func ProfileTable(ctx context.Context, db adapter.Adapter, table, seasonColumn string) (*TableProfile, error) {
	meta, err := db.GetTableMetadata(ctx, table)
	if err != nil {
		return nil, err
	}

	p := &TableProfile{
		Layer:           LayerRaw,
		ColumnCount:     len(meta.Columns),
		Columns:         meta.ColumnNames(),
		Dtypes:          make(map[string]string, len(meta.Columns)),
		MissingByColumn: make(map[string]float64, len(meta.Columns)),
	}
	if catalog.IsCanonical(table) {
		p.Layer = LayerCanonical
	}
	for _, c := range meta.Columns {
		p.Dtypes[c.Name] = c.Type
	}

	hasSeason := seasonColumn != "" && meta.HasColumn(seasonColumn)

	exprs := make([]string, 0, len(meta.Columns)+3)
	exprs = append(exprs, "COUNT(*)")
	for _, c := range meta.Columns {
		exprs = append(exprs, "COUNT("+adapter.QuoteIdent(c.Name)+")")
	}
	if hasSeason {
		s := "TRY_CAST(" + adapter.QuoteIdent(seasonColumn) + " AS BIGINT)"
		exprs = append(exprs, "MIN("+s+")", "MAX("+s+")")
	}

	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + adapter.QuoteIdent(table)
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	nonNull := make([]int64, len(meta.Columns))
	var minSeason, maxSeason sql.NullInt64
	dest := make([]any, 0, len(exprs))
	dest = append(dest, &p.RowCount)
	for i := range nonNull {
		dest = append(dest, &nonNull[i])
	}
	if hasSeason {
		dest = append(dest, &minSeason, &maxSeason)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("profile of %s returned no rows", table)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan profile of %s: %w", table, err)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var totalNulls int64
	for i, c := range meta.Columns {
		nulls := p.RowCount - nonNull[i]
		totalNulls += nulls
		pct := 0.0
		if p.RowCount > 0 {
			pct = float64(nulls) / float64(p.RowCount) * 100
		}
		p.MissingByColumn[c.Name] = round2(pct)
	}

	if cells := p.RowCount * int64(len(meta.Columns)); cells > 0 {
		p.MissingPercentage = round2(float64(totalNulls) / float64(cells) * 100)
	}

	if minSeason.Valid && maxSeason.Valid {
		p.SeasonRange = &SeasonRange{minSeason.Int64, maxSeason.Int64}
	}

	return p, nil
}
