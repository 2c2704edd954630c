package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/XR-at-CISESS/lma-data/internal/config"
	"github.com/XR-at-CISESS/lma-data/internal/db"
	"github.com/XR-at-CISESS/lma-data/internal/observability"

	"github.com/spf13/cobra"
)

// annotationRunLog marks commands that write to or read from the run log.
const annotationRunLog = "lma/run-log"

var (
	// Persistent flags
	cfgFile     string
	logFormat   string
	logLevel    string
	logOutput   string
	dbPath      string
	metricsFile string

	// Populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
	appMetrics *observability.Metrics
	logFile    *os.File
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lma",
		Short: "Find Lightning Mapping Array files and drive the processing tools over them.",
		Long: `lma discovers raw LMA station files and processed products by their file names,
filters them by date, network and station, groups them into batches and runs
one external worker process per batch (lma_analysis, lma_flash, lma_plot) on a
bounded pool.

Batch events are recorded in a DuckDB run log which 'lma state' displays.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file; flags override its values")
	pf.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")
	pf.StringVar(&dbPath, "db-path", config.DefaultDbPath, "Path to the DuckDB run log (:memory: for in-memory, empty to disable)")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path after a run")

	rootCmd.Version = "0.3.0"

	rootCmd.AddCommand(
		newFindCmd(),
		newBatchCmd(),
		newFlashCmd(),
		newPlotCmd(),
		newWatchCmd(),
		newStateCmd(),
	)
	return rootCmd
}

// setup loads the configuration, initializes logging and opens the run log.
func setup(cmd *cobra.Command, _ []string) error {
	// --- 1. Load Config (file, then flags) ---
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-output") {
		cfg.LogOutput = logOutput
	}
	if flags.Changed("db-path") {
		cfg.DbPath = dbPath
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}

	// --- 2. Initialize Logger ---
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	rootLogger = logger
	slog.SetDefault(rootLogger)
	rootLogger.Debug("Logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat, "output", cfg.LogOutput)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	appConfig = cfg
	appMetrics = observability.NewMetrics()
	rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

	// --- 3. Run log ---
	if cmd.Annotations[annotationRunLog] == "" {
		return nil
	}
	if cfg.DbPath == "" {
		rootLogger.Debug("Run log disabled.")
		return nil
	}
	if cfg.DbPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DbPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}
	rootLogger.Debug("Initializing DuckDB connection", "path", cfg.DbPath)
	dbConn, err = db.Open(cmd.Context(), cfg.DbPath)
	if err != nil {
		return err
	}
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var logWriter io.Writer = os.Stderr
	switch out := strings.ToLower(cfg.LogOutput); out {
	case "", "stderr":
	case "stdout":
		logWriter = os.Stdout
	default:
		f, err := os.OpenFile(cfg.LogOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.LogOutput, err)
		}
		logFile = f
		logWriter = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(logWriter, opts)
	} else {
		handler = slog.NewTextHandler(logWriter, opts)
	}
	return slog.New(handler), nil
}

// cleanup closes what setup opened. It runs whether or not the command failed.
func cleanup() {
	if dbConn != nil {
		getLogger().Debug("Closing DuckDB connection.")
		if err := dbConn.Close(); err != nil {
			getLogger().Error("Failed to close DuckDB connection cleanly", "error", err)
		}
		dbConn = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Execute builds the command tree and runs it with the process arguments.
// This is called by main.main().
func Execute() {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))

	err := rootCmd.Execute()
	cleanup()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 130 after an interrupt, as shells report for SIGINT, and 1 for
// every other failure.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// Helper to get logger
func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

// Helper to get the run log connection; nil when disabled.
func getDB() *sql.DB {
	return dbConn
}

// Helper to get Config
func getConfig() config.Config {
	return appConfig
}

func getMetrics() *observability.Metrics {
	return appMetrics
}
