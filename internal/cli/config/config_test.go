package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFlags mirrors the persistent flags registered by the root command.
func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("data-dir", DefaultDataDir, "")
	fs.String("output-dir", DefaultOutputDir, "")
	fs.String("database", DefaultDatabase, "")
	fs.String("state", DefaultStateFile, "")
	fs.BoolP("verbose", "v", false, "")
	fs.StringP("output", "o", DefaultOutput, "")
	return fs
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "nflpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, DefaultDataDir), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, DefaultOutputDir), cfg.OutputDir)
	assert.Equal(t, filepath.Join(dir, DefaultDatabase), cfg.Database)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, []string{"PLAY"}, cfg.RelaxedTables)
	assert.InDelta(t, 0.9, cfg.RelaxedTypeThreshold, 1e-9)
	assert.Equal(t, "snappy", cfg.Export.Compression)
	assert.Equal(t, 100, cfg.QA.YardLimit)
	assert.InDelta(t, 95.0, cfg.QA.JoinMinPct, 1e-9)
	assert.Equal(t, DefaultServeAddr, cfg.Serve.Addr)
	assert.Equal(t, 10*time.Second, cfg.Serve.ReadTimeout)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_FileDiscoveredUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	cfgPath := writeConfig(t, root, `
data_dir: extract
database: warehouse/nfl.duckdb
relaxed_tables: [PLAY, PBP]
qa:
  yard_limit: 110
  allow_overtime: true
serve:
  read_timeout: 30s
target:
  type: DuckDB
  params:
    settings:
      threads: "2"
`)
	sub := filepath.Join(root, "notebooks", "week1")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "extract"), cfg.DataDir)
	assert.Equal(t, filepath.Join(root, "warehouse", "nfl.duckdb"), cfg.Database)
	assert.Equal(t, []string{"PLAY", "PBP"}, cfg.RelaxedTables)
	assert.Equal(t, 110, cfg.QA.YardLimit)
	assert.True(t, cfg.QA.AllowOvertime)
	assert.Equal(t, 30*time.Second, cfg.Serve.ReadTimeout)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Contains(t, cfg.Target.Params, "settings")
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	other := t.TempDir()
	path := writeConfig(t, other, "output_dir: out\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, other, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(other, "out"), cfg.OutputDir)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	_, err := LoadConfig("does-not-exist.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadConfig_Precedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "data_dir: from-file\noutput: text\nqa:\n  join_min_pct: 90\n")
	t.Chdir(dir)

	t.Setenv("NFLPIPE_DATA_DIR", "from-env")
	t.Setenv("NFLPIPE_QA__JOIN_MIN_PCT", "80")
	t.Setenv("NFLPIPE_OUTPUT", "json")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--output", "markdown", "--state", "runs.db"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)

	// env beats file
	assert.Equal(t, filepath.Join(dir, "from-env"), cfg.DataDir)
	assert.InDelta(t, 80.0, cfg.QA.JoinMinPct, 1e-9)
	// flag beats env
	assert.Equal(t, "markdown", cfg.OutputFormat)
	assert.Equal(t, filepath.Join(dir, "runs.db"), cfg.StatePath)
	// unset flags keep lower layers
	assert.False(t, cfg.Verbose)
}

func TestLoadConfig_FlagPathsRelativeToWorkingDir(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	writeConfig(t, root, "data_dir: extract\n")
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--database", "local.duckdb"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, "local.duckdb"), cfg.Database)
	assert.Equal(t, filepath.Join(root, "extract"), cfg.DataDir)
}

func TestLoadConfig_MemoryDatabase(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--database", ":memory:"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "output: html\ntarget:\n  type: oracle\n")
	t.Chdir(dir)

	_, err := LoadConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid output "html"`)
	assert.Contains(t, err.Error(), "unknown adapter type")
	assert.Nil(t, GetCurrentConfig())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataDir:              "data_raw",
			Database:             "nfl.duckdb",
			OutputFormat:         "auto",
			LogFormat:            "text",
			RelaxedTypeThreshold: 0.9,
			QA:                   QAConfig{JoinMinPct: 95, MissingnessThreshold: 10},
			Target:               TargetConfig{Type: "duckdb"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }, errSubstr: "data_dir is required"},
		{name: "empty database", mutate: func(c *Config) { c.Database = "" }, errSubstr: "database is required"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errSubstr: "invalid log_format"},
		{name: "threshold zero", mutate: func(c *Config) { c.RelaxedTypeThreshold = 0 }, errSubstr: "relaxed_type_threshold"},
		{name: "threshold above one", mutate: func(c *Config) { c.RelaxedTypeThreshold = 1.5 }, errSubstr: "relaxed_type_threshold"},
		{name: "join pct", mutate: func(c *Config) { c.QA.JoinMinPct = 101 }, errSubstr: "qa.join_min_pct"},
		{name: "missingness", mutate: func(c *Config) { c.QA.MissingnessThreshold = -1 }, errSubstr: "qa.missingness_threshold"},
		{name: "row group", mutate: func(c *Config) { c.Export.RowGroupSize = -5 }, errSubstr: "export.row_group_size"},
		{name: "unknown target", mutate: func(c *Config) { c.Target.Type = "mysql" }, errSubstr: "unknown adapter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_ValidateDataDir(t *testing.T) {
	dir := t.TempDir()

	c := &Config{DataDir: dir}
	assert.NoError(t, c.ValidateDataDir())

	c.DataDir = filepath.Join(dir, "missing")
	err := c.ValidateDataDir()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data directory does not exist")

	file := filepath.Join(dir, "GAME.csv")
	require.NoError(t, os.WriteFile(file, []byte("gid\n"), 0o600))
	c.DataDir = file
	assert.ErrorContains(t, c.ValidateDataDir(), "not a directory")
}

func TestConfig_EngineConfig(t *testing.T) {
	c := &Config{
		DataDir:              "/x/raw",
		OutputDir:            "/x/out",
		Database:             "/x/nfl.duckdb",
		RelaxedTables:        []string{"PLAY"},
		RelaxedTypeThreshold: 0.8,
		SeasonColumn:         "seas",
		Export:               ExportConfig{Compression: "zstd", RowGroupSize: 1000},
		QA:                   QAConfig{YardLimit: 99, JoinMinPct: 90},
		Target:               TargetConfig{Type: "duckdb", Params: map[string]any{"extensions": []any{"json"}}},
	}

	ec := c.EngineConfig()
	assert.Equal(t, "/x/raw", ec.DataDir)
	assert.Equal(t, "/x/nfl.duckdb", ec.AdapterConfig.Path)
	assert.Equal(t, "duckdb", ec.AdapterConfig.Type)
	assert.Contains(t, ec.AdapterConfig.Params, "extensions")
	assert.Equal(t, "zstd", ec.Parquet.Compression)
	assert.Equal(t, int64(99), ec.QA.YardLimit)
	assert.InDelta(t, 0.8, ec.RelaxedTypeThreshold, 1e-9)
}

func TestGetLogger_Fallback(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
	assert.NotNil(t, GetLogger(nil)) //nolint:staticcheck // nil context is handled
}
