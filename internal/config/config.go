package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that default the data and output directories.
const (
	EnvDataDir = "LMA_DATA_DIR"
	EnvOutDir  = "LMA_OUT_DIR"
)

const (
	DefaultDataDir  = "./LMA_DATA"
	DefaultOutDir   = "./LMA_OUT"
	DefaultDbPath   = "./lma_state.duckdb"
	DefaultMinSize  = 2048
	DefaultGrace    = 10 * time.Second
	DefaultProgress = ProgressAuto
)

// Progress display modes.
const (
	ProgressAuto = "auto"
	ProgressTUI  = "tui"
	ProgressBar  = "bar"
	ProgressLog  = "log"
)

var (
	// Default number of workers, often set to CPU count.
	DefaultNumWorkers = runtime.NumCPU()
)

// WorkerConfig names the external executables each pipeline drives.
type WorkerConfig struct {
	Analysis string `yaml:"analysis"`
	Flash    string `yaml:"flash"`
	Plot     string `yaml:"plot"`
}

// Config holds application settings
type Config struct {
	DataDir     string        `yaml:"data_dir"`
	OutDir      string        `yaml:"out_dir"`
	DbPath      string        `yaml:"db_path"` // empty disables the run log
	NumWorkers  int           `yaml:"num_workers"`
	Silent      bool          `yaml:"silent"`
	Progress    string        `yaml:"progress"`
	MinSize     int64         `yaml:"min_size"`
	Duration    int           `yaml:"duration"` // seconds, forwarded as -s when > 0
	Retries     int           `yaml:"retries"`
	Timeout     time.Duration `yaml:"timeout"`
	KillGrace   time.Duration `yaml:"kill_grace"` // SIGTERM to SIGKILL delay after a timeout
	MetricsFile string        `yaml:"metrics_file"`
	Workers     WorkerConfig  `yaml:"workers"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
	LogOutput string `yaml:"log_output"`
}

// Default returns the built-in configuration with the LMA_* environment
// variables applied.
func Default() Config {
	return Config{
		DataDir:    envOr(EnvDataDir, DefaultDataDir),
		OutDir:     envOr(EnvOutDir, DefaultOutDir),
		DbPath:     DefaultDbPath,
		NumWorkers: DefaultNumWorkers,
		Progress:   DefaultProgress,
		MinSize:    DefaultMinSize,
		KillGrace:  DefaultGrace,
		Workers: WorkerConfig{
			Analysis: "lma_analysis",
			Flash:    "lma_flash",
			Plot:     "lma_plot",
		},
		LogFormat: "text",
		LogLevel:  "info",
		LogOutput: "stderr",
	}
}

// Load reads a YAML file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that flags and files cannot constrain on their own.
func (c Config) Validate() error {
	var errs []error
	if c.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("num_workers must be at least 1, got %d", c.NumWorkers))
	}
	if c.MinSize < 0 {
		errs = append(errs, fmt.Errorf("min_size must not be negative, got %d", c.MinSize))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.KillGrace <= 0 {
		errs = append(errs, fmt.Errorf("kill_grace must be positive, got %s", c.KillGrace))
	}
	switch c.Progress {
	case ProgressAuto, ProgressTUI, ProgressBar, ProgressLog:
	default:
		errs = append(errs, fmt.Errorf("unknown progress mode %q (auto, tui, bar, log)", c.Progress))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
