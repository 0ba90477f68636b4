package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/nflpipe/internal/catalog"
	"github.com/leapstack-labs/nflpipe/internal/testutil"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// writeParquet writes one Parquet file per name, each holding rows copies of
// a small (pid, gid) record, using an in-memory DuckDB.
func writeParquet(t *testing.T, dir string, rows int, names ...string) {
	t.Helper()
	ctx := context.Background()
	cfg := adapter.Config{Type: "duckdb", Path: ":memory:"}
	db, err := adapter.NewAdapter(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Connect(ctx, cfg))
	defer func() { _ = db.Close() }()

	for _, name := range names {
		path := filepath.Join(dir, name+".parquet")
		q := fmt.Sprintf("COPY (SELECT i AS pid, i %% 3 AS gid FROM range(%d) t(i)) TO %s (FORMAT PARQUET)",
			rows, adapter.QuoteLiteral(path))
		require.NoError(t, db.Exec(ctx, q))
	}
}

func newMaterializer(t *testing.T, parquetDir string) *Materializer {
	t.Helper()
	return New(Config{
		ParquetDir:   parquetDir,
		DatabasePath: filepath.Join(t.TempDir(), "nfl.duckdb"),
		Logger:       testutil.NewTestLogger(t),
	})
}

func openReadOnly(t *testing.T, path string) adapter.Adapter {
	t.Helper()
	ctx := context.Background()
	cfg := adapter.Config{Type: "duckdb", Path: path, ReadOnly: true}
	db, err := adapter.NewAdapter(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Connect(ctx, cfg))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsure_BuildsFromCanonicalParquet(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, 5, catalog.Names()...)

	m := newMaterializer(t, dir)
	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, int64(1), m.Builds())
	assert.FileExists(t, m.Path())
	assert.NoFileExists(t, m.Path()+".building")

	db := openReadOnly(t, m.Path())
	tables, err := db.ListTables(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, catalog.Names(), tables)

	n, err := db.QueryInt64(context.Background(), "SELECT COUNT(*) FROM plays")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestEnsure_DerivesMissingCanonicalTables(t *testing.T) {
	dir := t.TempDir()
	var names []string
	for _, n := range catalog.Names() {
		if n != "penalties" {
			names = append(names, n)
		}
	}
	writeParquet(t, dir, 3, names...)

	ctx := context.Background()
	cfg := adapter.Config{Type: "duckdb", Path: ":memory:"}
	db, err := adapter.NewAdapter(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Connect(ctx, cfg))
	require.NoError(t, db.Exec(ctx, fmt.Sprintf(
		`COPY (SELECT 1 AS uid, 7 AS pid, 'NE' AS ptm, 'X' AS pen, 'Offside' AS "desc", 1 AS cat, 5 AS pey, 'A' AS act) TO %s (FORMAT PARQUET)`,
		adapter.QuoteLiteral(filepath.Join(dir, "PENALTY.parquet")))))
	require.NoError(t, db.Close())

	m := newMaterializer(t, dir)
	require.NoError(t, m.Ensure(ctx))

	ro := openReadOnly(t, m.Path())
	pid, err := ro.QueryInt64(ctx, "SELECT pid FROM penalties")
	require.NoError(t, err)
	assert.Equal(t, int64(7), pid)
}

func TestEnsure_RawCaseVariantParquet(t *testing.T) {
	dir := t.TempDir()
	var names []string
	for _, n := range catalog.Names() {
		if n != "redzone" && n != "fgxp" {
			names = append(names, n)
		}
	}
	writeParquet(t, dir, 3, names...)
	writeParquet(t, dir, 4, "REDZONE", "FGXP")

	m := newMaterializer(t, dir)
	require.NoError(t, m.Ensure(context.Background()))

	ro := openReadOnly(t, m.Path())
	for _, table := range []string{"redzone", "fgxp"} {
		n, err := ro.QueryInt64(context.Background(), "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err, table)
		assert.Equal(t, int64(4), n, table)
	}
}

func TestDedupeParquet(t *testing.T) {
	files := []string{
		"/out/FGXP.parquet",
		"/out/REDZONE.parquet",
		"/out/games.parquet",
		"/out/redzone.parquet",
	}
	assert.Equal(t, []string{
		"/out/FGXP.parquet",
		"/out/redzone.parquet",
		"/out/games.parquet",
	}, dedupeParquet(files))
}

func TestEnsure_ExistingDatabaseIsKept(t *testing.T) {
	m := newMaterializer(t, t.TempDir())
	require.NoError(t, os.WriteFile(m.Path(), []byte("existing"), 0o600))

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, int64(0), m.Builds())
}

func TestEnsure_ConcurrentCallersBuildOnce(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, 4, catalog.Names()...)
	m := newMaterializer(t, dir)

	var g errgroup.Group
	for range 8 {
		g.Go(func() error { return m.Ensure(context.Background()) })
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), m.Builds())

	db := openReadOnly(t, m.Path())
	for _, name := range catalog.Names() {
		exists, err := db.TableExists(context.Background(), name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}

func TestEnsure_CorruptParquetLeavesNoDatabase(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, 2, catalog.Names()...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plays.parquet"), []byte("not a parquet file"), 0o600))

	m := newMaterializer(t, dir)
	err := m.Ensure(context.Background())
	require.Error(t, err)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, m.Path(), be.Path)
	assert.NoFileExists(t, m.Path())
	assert.NoFileExists(t, m.Path()+".building")
	assert.NoFileExists(t, m.Path()+".building.wal")
}

func TestEnsure_MissingCanonicalSourceFails(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, 2, "plays", "drives")

	m := newMaterializer(t, dir)
	err := m.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "games")
	assert.NoFileExists(t, m.Path())
}

func TestEnsure_NoParquetNamesDirectory(t *testing.T) {
	dir := t.TempDir()
	m := newMaterializer(t, dir)

	err := m.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), dir)

	var be *BuildError
	assert.True(t, errors.As(err, &be))
}

func TestRebuild_ReplacesDatabase(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, 2, catalog.Names()...)
	m := newMaterializer(t, dir)
	ctx := context.Background()

	require.NoError(t, m.Ensure(ctx))
	writeParquet(t, dir, 9, "plays")
	require.NoError(t, m.Rebuild(ctx))
	assert.Equal(t, int64(2), m.Builds())

	db := openReadOnly(t, m.Path())
	n, err := db.QueryInt64(ctx, "SELECT COUNT(*) FROM plays")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}
