package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Outcome is the final state of a job.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Cancelled
	SpawnFailed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case SpawnFailed:
		return "spawn_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes how one job ended.
type Result struct {
	Job      Job
	Outcome  Outcome
	ExitCode int // -1 when the process never exited normally
	Attempts int
	Duration time.Duration
	Err      error
}

// Progress is the completed/total pair after a job finishes. Done only grows.
type Progress struct {
	Done  int
	Total int
}

func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Summary totals a run.
type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	Cancelled   int
	SpawnErrors int
	Duration    time.Duration
	Results     []Result
}

// Err joins the errors of every job that did not succeed or get cancelled.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Outcome == Failed || r.Outcome == SpawnFailed {
			errs = append(errs, fmt.Errorf("batch %s: %w", r.Job.Key, r.Err))
		}
	}
	return errors.Join(errs...)
}

func summarize(results []Result, elapsed time.Duration) Summary {
	s := Summary{Total: len(results), Duration: elapsed, Results: results}
	for _, r := range results {
		switch r.Outcome {
		case Succeeded:
			s.Succeeded++
		case Failed:
			s.Failed++
		case Cancelled:
			s.Cancelled++
		case SpawnFailed:
			s.SpawnErrors++
		}
	}
	return s
}

// Reporter receives progress from a run. Output and Done are called
// concurrently from worker goroutines.
type Reporter interface {
	Start(total int)
	Output(job Job, line string)
	Done(r Result, p Progress)
	Finish(s Summary)
}

// LogReporter prints worker output to w and progress through slog.
type LogReporter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

func NewLogReporter(w io.Writer, logger *slog.Logger) *LogReporter {
	return &LogReporter{w: w, logger: logger}
}

func (r *LogReporter) Start(total int) {
	r.logger.Info("Starting batches.", slog.Int("total", total))
}

func (r *LogReporter) Output(job Job, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "[%s] %s\n", job.Label(), line)
}

func (r *LogReporter) Done(res Result, p Progress) {
	attrs := []any{
		slog.String("batch", res.Job.Key),
		slog.String("outcome", res.Outcome.String()),
		slog.String("progress", fmt.Sprintf("%d/%d", p.Done, p.Total)),
		slog.String("percent", fmt.Sprintf("%.0f%%", 100*p.Percent())),
	}
	if res.Outcome == Succeeded {
		r.logger.Info("Done "+res.Job.Label(), attrs...)
		return
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}
	r.logger.Warn("Batch did not complete "+res.Job.Label(), attrs...)
}

func (r *LogReporter) Finish(s Summary) {
	r.logger.Info("All batches finished.",
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("cancelled", s.Cancelled),
		slog.Int("spawn_errors", s.SpawnErrors),
		slog.Duration("elapsed", s.Duration.Round(time.Millisecond)),
	)
}

// BarReporter draws a terminal progress bar and prints worker output above it.
type BarReporter struct {
	mu     sync.Mutex
	w      io.Writer
	bar    *progressbar.ProgressBar
	logger *slog.Logger
}

func NewBarReporter(w io.Writer, logger *slog.Logger) *BarReporter {
	return &BarReporter{w: w, logger: logger}
}

func (r *BarReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar = progressbar.NewOptions64(int64(total),
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription("batches"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *BarReporter) Output(job Job, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Clear()
	}
	fmt.Fprintf(r.w, "[%s] %s\n", job.Label(), line)
	if r.bar != nil {
		_ = r.bar.RenderBlank()
	}
}

func (r *BarReporter) Done(res Result, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Set(p.Done)
	}
	if res.Outcome != Succeeded && res.Outcome != Cancelled {
		r.logger.Warn("Batch failed.", slog.String("batch", res.Job.Key), "error", res.Err)
	}
}

func (r *BarReporter) Finish(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
	}
	r.logger.Info("All batches finished.",
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("cancelled", s.Cancelled),
		slog.Int("spawn_errors", s.SpawnErrors),
	)
}

// discardReporter is used when no reporter is configured.
type discardReporter struct{}

func (discardReporter) Start(int)             {}
func (discardReporter) Output(Job, string)    {}
func (discardReporter) Done(Result, Progress) {}
func (discardReporter) Finish(Summary)        {}
