package engine

// loader.go - raw CSV staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// LoadRaw deletes any existing database and stages every *.csv file of the
// data directory as a table named after the file stem. Files are processed
// in name order; a file that fails to load is recorded and skipped.
func (e *Engine) LoadRaw(ctx context.Context) ([]LoadResult, error) {
	if err := e.ResetDatabase(); err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	e.logger.Info("loading raw tables", "data_dir", e.cfg.DataDir)

	// os.ReadDir returns entries sorted by filename.
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var results []LoadResult
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		table := strings.TrimSuffix(entry.Name(), ".csv")
		path := filepath.Join(e.cfg.DataDir, entry.Name())

		res := e.loadFile(ctx, table, path)
		results = append(results, res)

		switch res.Status {
		case StatusLoaded:
			loaded++
			e.logger.Info("loaded table", "table", table, "rows", res.Rows, "columns", res.Columns)
			if res.Relaxed && (res.DroppedRows > 0 || len(res.NulledFields) > 0) {
				e.logger.Warn("relaxed parse discarded data",
					"table", table, "dropped_rows", res.DroppedRows, "nulled_fields", sumCounts(res.NulledFields))
			}
		default:
			e.logger.Error("failed to load table", "table", table, "file", path, "error", res.Reason)
		}
		e.recordEvent(StepLoad, table, res.Status, res.Rows, res.Reason)
	}

	e.logger.Info("raw load complete", "loaded", loaded, "failed", len(results)-loaded)
	return results, nil
}

func (e *Engine) loadFile(ctx context.Context, table, path string) LoadResult {
	res := LoadResult{Table: table, File: path}

	var err error
	if e.isRelaxed(table) {
		res.Relaxed = true
		err = e.loadRelaxed(ctx, table, path, &res)
	} else {
		err = e.db.LoadCSV(ctx, table, path, adapter.CSVOptions{})
	}
	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}

	meta, err := e.db.GetTableMetadata(ctx, table)
	if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}

	res.Status = StatusLoaded
	res.Rows = meta.RowCount
	res.Columns = len(meta.Columns)
	return res
}

func (e *Engine) isRelaxed(table string) bool {
	for _, t := range e.cfg.RelaxedTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

func sumCounts(m map[string]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}
