package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/leapstack-labs/nflpipe/internal/engine"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"

	_ "github.com/leapstack-labs/nflpipe/pkg/adapters/duckdb" // registers the duckdb adapter
)

var (
	validOutputs    = []string{"auto", "text", "markdown", "json"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if !slices.Contains(validOutputs, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("invalid output %q (want one of %v)", c.OutputFormat, validOutputs))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log_format %q (want one of %v)", c.LogFormat, validLogFormats))
	}
	if c.RelaxedTypeThreshold <= 0 || c.RelaxedTypeThreshold > 1 {
		errs = append(errs, fmt.Errorf("relaxed_type_threshold must be in (0, 1], got %v", c.RelaxedTypeThreshold))
	}
	if c.QA.JoinMinPct < 0 || c.QA.JoinMinPct > 100 {
		errs = append(errs, fmt.Errorf("qa.join_min_pct must be between 0 and 100, got %v", c.QA.JoinMinPct))
	}
	if c.QA.MissingnessThreshold < 0 || c.QA.MissingnessThreshold > 100 {
		errs = append(errs, fmt.Errorf("qa.missingness_threshold must be between 0 and 100, got %v", c.QA.MissingnessThreshold))
	}
	if c.Export.RowGroupSize < 0 {
		errs = append(errs, fmt.Errorf("export.row_group_size must not be negative, got %d", c.Export.RowGroupSize))
	}
	if !adapter.IsRegistered(c.Target.Type) {
		errs = append(errs, &adapter.UnknownAdapterError{Type: c.Target.Type, Available: adapter.ListAdapters()})
	}

	return errors.Join(errs...)
}

// ValidateDataDir checks that the raw extract directory exists.
func (c *Config) ValidateDataDir() error {
	info, err := os.Stat(c.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("data directory does not exist: %s\nHint: Place the raw CSV extract there or use --data-dir to specify a different path", c.DataDir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory: %s", c.DataDir)
	}
	return nil
}

// AdapterConfig returns the analytical database settings.
func (c *Config) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:   c.Target.Type,
		Path:   c.Database,
		Params: c.Target.Params,
	}
}

// EngineConfig converts the CLI configuration into pipeline settings.
// Store and Logger are left for the caller.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DataDir:              c.DataDir,
		OutputDir:            c.OutputDir,
		AdapterConfig:        c.AdapterConfig(),
		RelaxedTables:        c.RelaxedTables,
		RelaxedTypeThreshold: c.RelaxedTypeThreshold,
		SeasonColumn:         c.SeasonColumn,
		Parquet: adapter.ParquetOptions{
			Compression:  c.Export.Compression,
			RowGroupSize: c.Export.RowGroupSize,
		},
		QA: engine.QAConfig{
			MissingnessThreshold: c.QA.MissingnessThreshold,
			YardLimit:            int64(c.QA.YardLimit),
			AllowOvertime:        c.QA.AllowOvertime,
			JoinMinPct:           c.QA.JoinMinPct,
		},
	}
}
