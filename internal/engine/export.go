package engine

// export.go - Parquet export with footer verification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ParquetInfo is what a Parquet footer says about a file.
type ParquetInfo struct {
	Rows    int64
	Columns []string
	Bytes   int64
}

// InspectParquet reads the footer of a Parquet file.
func InspectParquet(path string) (*ParquetInfo, error) {
	f, err := os.Open(path) //nolint:gosec // path is produced by the exporter or the materializer
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, st.Size(), parquet.SkipPageIndex(true), parquet.SkipBloomFilters(true))
	if err != nil {
		return nil, fmt.Errorf("invalid parquet file %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	info := &ParquetInfo{
		Rows:    pf.NumRows(),
		Columns: make([]string, len(fields)),
		Bytes:   st.Size(),
	}
	for i, field := range fields {
		info.Columns[i] = field.Name()
	}
	return info, nil
}

// Export writes each table to <output_dir>/<table>.parquet, or every base
// table when tables is empty. Each file is written beside its destination
// and renamed into place only after its footer matches the table.
func (e *Engine) Export(ctx context.Context, tables []string) ([]ExportResult, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if len(tables) == 0 {
		var err error
		tables, err = e.db.ListTables(ctx)
		if err != nil {
			return nil, err
		}
	}

	e.logger.Info("exporting parquet", "tables", len(tables), "output_dir", e.cfg.OutputDir)

	results := make([]ExportResult, 0, len(tables))
	exported := 0
	for _, table := range tables {
		res := e.exportTable(ctx, table)
		if res.Status == StatusExported {
			exported++
			e.logger.Info("exported table", "table", table, "rows", res.Rows, "bytes", res.Bytes)
		} else {
			e.logger.Error("failed to export table", "table", table, "error", res.Reason)
		}
		e.recordEvent(StepExport, table, res.Status, res.Rows, res.Reason)
		results = append(results, res)
	}

	e.logger.Info("parquet export complete", "exported", exported, "failed", len(results)-exported)
	return results, nil
}

func (e *Engine) exportTable(ctx context.Context, table string) ExportResult {
	final := filepath.Join(e.cfg.OutputDir, table+".parquet")
	res := ExportResult{Table: table, Path: final}

	fail := func(err error) ExportResult {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res
	}

	meta, err := e.db.GetTableMetadata(ctx, table)
	if err != nil {
		return fail(err)
	}

	tmp := final + ".tmp"
	defer func() { _ = os.Remove(tmp) }()

	if err := e.db.ExportParquet(ctx, table, tmp, e.cfg.Parquet); err != nil {
		return fail(err)
	}

	info, err := InspectParquet(tmp)
	if err != nil {
		return fail(err)
	}
	if info.Rows != meta.RowCount {
		return fail(fmt.Errorf("parquet has %d rows, table has %d", info.Rows, meta.RowCount))
	}
	if len(info.Columns) != len(meta.Columns) {
		return fail(fmt.Errorf("parquet has %d columns, table has %d", len(info.Columns), len(meta.Columns)))
	}

	if err := os.Rename(tmp, final); err != nil {
		return fail(err)
	}
	if err := removeCaseVariants(final); err != nil {
		e.logger.Warn("failed to remove stale parquet", "table", table, "error", err)
	}

	res.Status = StatusExported
	res.Rows = info.Rows
	res.Bytes = info.Bytes
	return res
}

// removeCaseVariants deletes Parquet files beside path whose names differ from
// it only in case, such as a REDZONE.parquet left by an earlier run next to
// redzone.parquet. Table names are case-insensitive, so both cannot be loaded.
func removeCaseVariants(path string) error {
	dir, base := filepath.Split(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	keep, err := os.Stat(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == base || !strings.EqualFold(name, base) {
			continue
		}
		other := filepath.Join(dir, name)
		if info, err := os.Stat(other); err == nil && os.SameFile(keep, info) {
			continue
		}
		if err := os.Remove(other); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// errNoParquet is returned when a directory holds no Parquet files.
var errNoParquet = errors.New("no parquet files found")

// ParquetFiles lists the *.parquet files of dir in name order.
func ParquetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", errNoParquet, dir)
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".parquet" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoParquet, dir)
	}
	return files, nil
}

// IsNoParquet reports whether err came from an empty Parquet directory.
func IsNoParquet(err error) bool {
	return errors.Is(err, errNoParquet)
}
