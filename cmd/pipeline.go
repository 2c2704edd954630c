package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/app"
	"github.com/XR-at-CISESS/lma-data/internal/batcher"
	"github.com/XR-at-CISESS/lma-data/internal/browser"
	"github.com/XR-at-CISESS/lma-data/internal/config"
	"github.com/XR-at-CISESS/lma-data/internal/db"
	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/XR-at-CISESS/lma-data/internal/observability"
	"github.com/XR-at-CISESS/lma-data/internal/orchestrator"
	"github.com/XR-at-CISESS/lma-data/internal/util"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// profile describes one pipeline: the files it reads, how it filters and
// groups them and the worker it runs per group.
type profile[T lmafile.Record] struct {
	name    string
	title   string
	glob    string
	parse   func(path string) (T, bool)
	filters func(cfg config.Config, logger *slog.Logger) []browser.Filter[T]
	batch   func([]T) [][]T
	worker  func(cfg config.Config) string
}

// analysisProfile batches raw station files by instant for lma_analysis.
// Instants with analysis output already in the output directory are skipped.
func analysisProfile() profile[lmafile.StationFile] {
	return profile[lmafile.StationFile]{
		name:  "batch",
		title: "LMA analysis",
		glob:  browser.DefaultGlob,
		parse: lmafile.ParseStation,
		filters: func(cfg config.Config, logger *slog.Logger) []browser.Filter[lmafile.StationFile] {
			return []browser.Filter[lmafile.StationFile]{
				browser.DateFilter[lmafile.StationFile]{},
				browser.NetworkFilter[lmafile.StationFile](""),
				browser.StationFilter(""),
				browser.CacheFromOutput(
					browser.New(lmafile.ParseAnalysis).WithLogger(logger),
					stampOf[lmafile.AnalysisFile],
					stampOf[lmafile.StationFile],
					logger,
				),
			}
		},
		batch:  batcher.ByInstant[lmafile.StationFile],
		worker: func(cfg config.Config) string { return cfg.Workers.Analysis },
	}
}

// flashProfile batches analysis output by network and instant for lma_flash.
func flashProfile() profile[lmafile.AnalysisFile] {
	return profile[lmafile.AnalysisFile]{
		name:  "flash",
		title: "LMA flash sorting",
		glob:  "**/*.gz",
		parse: lmafile.ParseAnalysis,
		filters: func(cfg config.Config, logger *slog.Logger) []browser.Filter[lmafile.AnalysisFile] {
			return []browser.Filter[lmafile.AnalysisFile]{
				browser.NewNonEmptyFilter[lmafile.AnalysisFile](cfg.MinSize),
				browser.DateFilter[lmafile.AnalysisFile]{},
				browser.NetworkFilter[lmafile.AnalysisFile](""),
				browser.CacheFromOutput(
					browser.New(lmafile.ParseGrid).WithGlob("**/*.nc").WithLogger(logger),
					stampOf[lmafile.GridFile],
					stampOf[lmafile.AnalysisFile],
					logger,
				),
			}
		},
		batch:  batcher.ByNetworkInstant[lmafile.AnalysisFile],
		worker: func(cfg config.Config) string { return cfg.Workers.Flash },
	}
}

// plotProfile renders every gridded source file on its own.
func plotProfile() profile[lmafile.GridFile] {
	return profile[lmafile.GridFile]{
		name:  "plot",
		title: "LMA plots",
		glob:  "**/*source_3d.nc",
		parse: lmafile.ParseGrid,
		filters: func(cfg config.Config, logger *slog.Logger) []browser.Filter[lmafile.GridFile] {
			return []browser.Filter[lmafile.GridFile]{
				browser.DateFilter[lmafile.GridFile]{},
				browser.NetworkFilter[lmafile.GridFile](""),
			}
		},
		batch:  batcher.Each[lmafile.GridFile],
		worker: func(cfg config.Config) string { return cfg.Workers.Plot },
	}
}

// stampOf is the cache key: inputs and outputs match on their timestamp.
func stampOf[T lmafile.Record](r T) string {
	return lmafile.FormatStamp(r.Timestamp())
}

// bindFilterFlags registers the flags of a profile's filters on fs.
func bindFilterFlags[T lmafile.Record](fs *pflag.FlagSet, p profile[T]) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	browser.BindFilterFlags(fs, p.filters(config.Default(), discard)...)
}

// pipelineRun holds everything resolved from the command line for one
// pipeline. plan and execute may be called repeatedly (watch mode); each call
// builds fresh filters, so the output cache is reloaded.
type pipelineRun[T lmafile.Record] struct {
	profile  profile[T]
	cfg      config.Config
	flags    *pflag.FlagSet
	dates    util.DateRange
	dataDir  string
	outDir   string
	command  orchestrator.Command
	dryRun   bool
	logger   *slog.Logger
	out      io.Writer
	db       *sql.DB
	metrics  *observability.Metrics
	stdinTUI io.Reader
}

func newPipelineRun[T lmafile.Record](cmd *cobra.Command, p profile[T], rf *runFlags, args []string) (*pipelineRun[T], error) {
	cfg := getConfig()
	rf.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := getLogger().With(slog.String("pipeline", p.name))

	// Argument errors abort before any work.
	dates, err := rf.dates.resolve(true, logger)
	if err != nil {
		return nil, err
	}
	dataDir, outDir, forwarded := splitRunArgs(cmd, args, cfg)

	worker := p.worker(cfg)
	if rf.worker != "" {
		worker = rf.worker
	}

	return &pipelineRun[T]{
		profile: p,
		cfg:     cfg,
		flags:   cmd.Flags(),
		dates:   dates,
		dataDir: dataDir,
		outDir:  outDir,
		command: orchestrator.Command{
			Executable: worker,
			OutDir:     outDir,
			Duration:   cfg.Duration,
			Args:       forwarded,
		},
		dryRun:   rf.dryRun,
		logger:   logger,
		out:      cmd.OutOrStdout(),
		db:       getDB(),
		metrics:  getMetrics(),
		stdinTUI: os.Stdin,
	}, nil
}

// plan finds the input files and groups them into jobs.
func (r *pipelineRun[T]) plan(ctx context.Context) ([]orchestrator.Job, error) {
	filters := r.profile.filters(r.cfg, r.logger)
	args := &browser.Args{Dates: r.dates, OutDir: r.outDir}
	if err := browser.ReadFilterFlags(r.flags, args, filters...); err != nil {
		return nil, err
	}

	b := browser.New(r.profile.parse).
		WithGlob(r.profile.glob).
		WithFilters(filters...).
		WithLogger(r.logger)
	records, stats, err := b.FindWithStats(ctx, r.dataDir, args)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveDiscovery(stats.Seen, stats.Parsed, stats.Kept)

	jobs := orchestrator.JobsFrom(r.profile.batch(records))
	r.logger.Info("Planned batches.",
		slog.String("data_dir", r.dataDir),
		slog.String("dates", r.dates.String()),
		slog.Int("files", len(records)),
		slog.Int("batches", len(jobs)),
	)
	return jobs, nil
}

// execute plans and runs one pass. A non-nil error means a batch failed, a
// worker could not start or the run was interrupted.
func (r *pipelineRun[T]) execute(ctx context.Context, sd *shutdown) (orchestrator.Summary, error) {
	jobs, err := r.plan(ctx)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	if len(jobs) == 0 {
		r.logger.Info("No new batches to process.")
		return orchestrator.Summary{}, nil
	}
	if r.dryRun {
		printCommands(r.out, r.command, jobs)
		return orchestrator.Summary{Total: len(jobs)}, nil
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return orchestrator.Summary{}, fmt.Errorf("failed to create output directory %s: %w", r.outDir, err)
	}

	runID := uuid.NewString()
	logger := r.logger.With(slog.String("run_id", runID))
	rec := &runRecorder{db: r.db, runID: runID, pipeline: r.profile.name}
	if err := rec.start(ctx, jobs, r.command); err != nil {
		logger.Warn("Failed to record run start.", "error", err)
	}

	reporter, notify, wait := r.reporter(sd, logger)
	orch := orchestrator.New(orchestrator.Options{
		Workers:   r.cfg.NumWorkers,
		Command:   r.command,
		Silent:    r.cfg.Silent,
		Retries:   r.cfg.Retries,
		Timeout:   r.cfg.Timeout,
		KillGrace: r.cfg.KillGrace,
		Reporter:  reporter,
		Recorder:  rec,
		Metrics:   r.metrics,
		Logger:    logger,
	})
	detach := sd.attach(orch.Kill, notify)
	summary := orch.Run(ctx, jobs)
	detach()
	if err := wait(); err != nil {
		logger.Warn("Progress display exited with an error.", "error", err)
	}

	if err := rec.end(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn("Failed to record run end.", "error", err)
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
		logger.Warn("Failed to write metrics.", "error", err)
	}

	if ctx.Err() != nil {
		return summary, fmt.Errorf("run interrupted with %d of %d batches done: %w", summary.Succeeded, summary.Total, ctx.Err())
	}
	return summary, summary.Err()
}

// reporter picks the progress display. The TUI needs a terminal; auto falls
// back to log lines otherwise.
func (r *pipelineRun[T]) reporter(sd *shutdown, logger *slog.Logger) (orchestrator.Reporter, func(), func() error) {
	noWait := func() error { return nil }
	mode := r.cfg.Progress
	if mode == config.ProgressAuto {
		mode = config.ProgressLog
		if f, ok := r.out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			mode = config.ProgressTUI
		}
	}
	switch mode {
	case config.ProgressTUI:
		tui := app.NewReporter(r.profile.title, r.stdinTUI, r.out, sd.interrupt)
		return tui, tui.Interrupted, tui.Wait
	case config.ProgressBar:
		return orchestrator.NewBarReporter(os.Stderr, logger), nil, noWait
	default:
		return orchestrator.NewLogReporter(r.out, logger), nil, noWait
	}
}

// printCommands writes one worker command line per job.
func printCommands(w io.Writer, c orchestrator.Command, jobs []orchestrator.Job) {
	for _, job := range jobs {
		fmt.Fprintln(w, c.Executable+" "+strings.Join(c.Argv(job), " "))
	}
}

// runRecorder writes orchestrator events to the DuckDB run log. A nil db
// disables it.
type runRecorder struct {
	db       *sql.DB
	runID    string
	pipeline string

	mu sync.Mutex
}

var _ orchestrator.Recorder = (*runRecorder)(nil)

func (r *runRecorder) Record(ctx context.Context, ev orchestrator.Event) error {
	var duration *time.Duration
	if ev.Duration > 0 {
		d := ev.Duration
		duration = &d
	}
	return r.log(ctx, db.Event{
		BatchKey:  ev.Job.Key,
		Event:     string(ev.Kind),
		Timestamp: ev.At,
		ExitCode:  ev.ExitCode,
		FileCount: len(ev.Job.Paths),
		Message:   ev.Message,
		Duration:  duration,
	})
}

func (r *runRecorder) start(ctx context.Context, jobs []orchestrator.Job, c orchestrator.Command) error {
	files := 0
	for _, job := range jobs {
		files += len(job.Paths)
	}
	return r.log(ctx, db.Event{
		Event:     db.EventRunStart,
		FileCount: files,
		Message:   fmt.Sprintf("%d batches, worker %s", len(jobs), c.Executable),
	})
}

func (r *runRecorder) end(ctx context.Context, s orchestrator.Summary) error {
	d := s.Duration
	msg := fmt.Sprintf("succeeded=%d failed=%d cancelled=%d spawn_errors=%d", s.Succeeded, s.Failed, s.Cancelled, s.SpawnErrors)
	return r.log(ctx, db.Event{Event: db.EventRunEnd, Message: msg, Duration: &d})
}

func (r *runRecorder) log(ctx context.Context, ev db.Event) error {
	if r.db == nil {
		return nil
	}
	ev.RunID = r.runID
	ev.Pipeline = r.pipeline
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := db.LogEvent(ctx, r.db, ev); err != nil {
		return fmt.Errorf("run %s: %w", r.runID, err)
	}
	return nil
}
