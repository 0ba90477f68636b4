// Package config loads nflpipe configuration from defaults, nflpipe.yaml,
// NFLPIPE_* environment variables and command-line flags.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	DataDir   string `koanf:"data_dir"`
	OutputDir string `koanf:"output_dir"`
	Database  string `koanf:"database"`
	StatePath string `koanf:"state_path"`

	RelaxedTables        []string `koanf:"relaxed_tables"`
	RelaxedTypeThreshold float64  `koanf:"relaxed_type_threshold"`
	SeasonColumn         string   `koanf:"season_column"`

	Export ExportConfig `koanf:"export"`
	QA     QAConfig     `koanf:"qa"`
	Serve  ServeConfig  `koanf:"serve"`
	Target TargetConfig `koanf:"target"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	LogFormat    string `koanf:"log_format"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ExportConfig controls Parquet output.
type ExportConfig struct {
	Compression  string `koanf:"compression" yaml:"compression"`
	RowGroupSize int    `koanf:"row_group_size" yaml:"row_group_size"`
}

// QAConfig holds quality check thresholds.
type QAConfig struct {
	MissingnessThreshold float64 `koanf:"missingness_threshold" yaml:"missingness_threshold"`
	YardLimit            int     `koanf:"yard_limit" yaml:"yard_limit"`
	AllowOvertime        bool    `koanf:"allow_overtime" yaml:"allow_overtime"`
	JoinMinPct           float64 `koanf:"join_min_pct" yaml:"join_min_pct"`
}

// ServeConfig configures the HTTP query API.
type ServeConfig struct {
	Addr        string        `koanf:"addr" yaml:"addr"`
	ReadTimeout time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
}

// TargetConfig selects the analytical database adapter.
type TargetConfig struct {
	Type   string         `koanf:"type" yaml:"type"`
	Params map[string]any `koanf:"params" yaml:"params,omitempty"`
}

// Default configuration values.
const (
	DefaultDataDir      = "data_raw"
	DefaultOutputDir    = "data_processed"
	DefaultDatabase     = "nfl.duckdb"
	DefaultStateFile    = ".nflpipe/state.db"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogFormat    = "text"
	DefaultServeAddr    = "127.0.0.1:8080"
	DefaultTargetType   = "duckdb"
	DefaultSeasonColumn = "seas"

	DefaultRelaxedTypeThreshold = 0.9
	DefaultCompression          = "snappy"
	DefaultRowGroupSize         = 122880
	DefaultMissingnessThreshold = 10.0
	DefaultYardLimit            = 100
	DefaultJoinMinPct           = 95.0
	DefaultReadTimeout          = 10 * time.Second
)

// DefaultRelaxedTables lists the raw files parsed tolerantly by default.
var DefaultRelaxedTables = []string{"PLAY"}

// ConfigFileNames are searched in the project root, in order.
var ConfigFileNames = []string{"nflpipe.yaml", "nflpipe.yml"}
