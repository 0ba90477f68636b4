package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/nflpipe/internal/cli/config"
	"github.com/leapstack-labs/nflpipe/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectFile is the layout of a generated nflpipe.yaml.
type projectFile struct {
	DataDir              string              `yaml:"data_dir"`
	OutputDir            string              `yaml:"output_dir"`
	Database             string              `yaml:"database"`
	StatePath            string              `yaml:"state_path"`
	RelaxedTables        []string            `yaml:"relaxed_tables"`
	RelaxedTypeThreshold float64             `yaml:"relaxed_type_threshold"`
	Export               config.ExportConfig `yaml:"export"`
	QA                   config.QAConfig     `yaml:"qa"`
	Serve                serveFile           `yaml:"serve"`
	Target               config.TargetConfig `yaml:"target"`
}

type serveFile struct {
	Addr        string `yaml:"addr"`
	ReadTimeout string `yaml:"read_timeout"`
}

// defaultProjectFile returns the configuration written by init.
func defaultProjectFile() projectFile {
	return projectFile{
		DataDir:              config.DefaultDataDir,
		OutputDir:            config.DefaultOutputDir,
		Database:             config.DefaultDatabase,
		StatePath:            config.DefaultStateFile,
		RelaxedTables:        config.DefaultRelaxedTables,
		RelaxedTypeThreshold: config.DefaultRelaxedTypeThreshold,
		Export: config.ExportConfig{
			Compression:  config.DefaultCompression,
			RowGroupSize: config.DefaultRowGroupSize,
		},
		QA: config.QAConfig{
			MissingnessThreshold: config.DefaultMissingnessThreshold,
			YardLimit:            config.DefaultYardLimit,
			JoinMinPct:           config.DefaultJoinMinPct,
		},
		Serve: serveFile{
			Addr:        config.DefaultServeAddr,
			ReadTimeout: config.DefaultReadTimeout.String(),
		},
		Target: config.TargetConfig{Type: config.DefaultTargetType},
	}
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new nflpipe project",
		Long: `Initialize a new nflpipe project.

This creates:
  - nflpipe.yaml with the default settings
  - data_raw/ for the raw CSV extract
  - data_processed/ for Parquet files and reports`,
		Example: `  # Initialize in current directory
  nflpipe init

  # Initialize in a new directory
  nflpipe init nfl-2024

  # Force overwrite existing config
  nflpipe init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			mode := output.ModeAuto
			if cfg := config.GetCurrentConfig(); cfg != nil {
				mode = output.Mode(cfg.OutputFormat)
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileNames[0])
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(defaultProjectFile()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	r.StatusLine(config.ConfigFileNames[0], "success", "")

	for _, d := range []string{config.DefaultDataDir, config.DefaultOutputDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
		r.StatusLine(d+"/", "success", "")
	}

	r.Println("")
	r.Success("nflpipe project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Copy the raw CSV extract into " + config.DefaultDataDir + "/")
	r.Println("  2. Run 'nflpipe ingest' to build the canonical dataset")
	r.Println("  3. Run 'nflpipe query tables' to explore it")

	return nil
}
