// Package orchestrator runs one external worker process per batch on a
// bounded pool, streams their output and shuts them down on request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSpawn        = errors.New("failed to start worker")
	ErrExit         = errors.New("worker exited with non-zero status")
	ErrTimeout      = errors.New("worker timed out")
	errShuttingDown = errors.New("shutting down")
)

// DefaultStderrLines is how much worker stderr is kept for failure messages.
const DefaultStderrLines = 20

// DefaultKillGrace is how long a timed out worker gets to exit after SIGTERM.
const DefaultKillGrace = 10 * time.Second

// Options configures an Orchestrator. Zero values get defaults.
type Options struct {
	Workers   int // defaults to runtime.NumCPU()
	Command   Command
	Silent    bool // suppress streamed worker output
	Retries   int  // extra attempts after a non-zero exit
	Timeout   time.Duration
	KillGrace time.Duration // SIGTERM to SIGKILL delay for timed out workers
	Reporter  Reporter
	Recorder  Recorder
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Orchestrator owns the live process registry and the shutdown state for a
// run. Spawning a process and registering it happen under the same lock as
// the shutdown check, so a process is either never started or is reachable
// by Terminate and Kill.
type Orchestrator struct {
	opts Options

	mu           sync.Mutex
	live         map[*Handle]struct{}
	shuttingDown bool

	// reportMu orders Done calls so reporters see completed counts in order.
	reportMu  sync.Mutex
	completed int
}

func New(opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	if opts.Reporter == nil {
		opts.Reporter = discardReporter{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		opts: opts,
		live: make(map[*Handle]struct{}),
	}
}

// Workers is the pool size in effect.
func (o *Orchestrator) Workers() int { return o.opts.Workers }

// Run executes every job, at most Workers at a time, and returns once all of
// them reached a final state. Cancelling ctx is the first shutdown request:
// no new process starts and running ones receive SIGTERM. Run never returns
// before every started process has exited.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) Summary {
	start := o.opts.Clock.Now()
	total := len(jobs)
	logger := o.opts.Logger
	logger.Info("Starting worker pool.", slog.Int("jobs", total), slog.Int("workers", o.opts.Workers), slog.String("worker", o.opts.Command.Executable))

	stop := context.AfterFunc(ctx, o.Terminate)
	defer stop()

	o.opts.Reporter.Start(total)
	results := make([]Result, total)

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = o.runJob(ctx, job)
			o.reportMu.Lock()
			o.completed++
			o.opts.Reporter.Done(results[i], Progress{Done: o.completed, Total: total})
			o.reportMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary := summarize(results, o.opts.Clock.Since(start))
	o.opts.Reporter.Finish(summary)
	return summary
}

// Terminate stops new spawns and sends SIGTERM to every live process. Calls
// after the first are no-ops.
func (o *Orchestrator) Terminate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shuttingDown {
		return
	}
	o.shuttingDown = true
	o.opts.Logger.Warn("Shutdown requested, terminating workers.", slog.Int("live", len(o.live)))
	for h := range o.live {
		h.terminate(o.opts.Logger)
	}
}

// Kill stops new spawns and sends SIGKILL to every live process.
func (o *Orchestrator) Kill() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shuttingDown = true
	o.opts.Logger.Warn("Forced shutdown, killing workers.", slog.Int("live", len(o.live)))
	for h := range o.live {
		h.kill(o.opts.Logger)
	}
}

// ShuttingDown reports whether Terminate or Kill has been called.
func (o *Orchestrator) ShuttingDown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shuttingDown
}

// Live returns the number of registered processes.
func (o *Orchestrator) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.live)
}

func (o *Orchestrator) runJob(ctx context.Context, job Job) Result {
	l := o.opts.Logger.With(slog.String("batch", job.Key))
	res := Result{Job: job, ExitCode: -1}
	recordCtx := context.WithoutCancel(ctx)

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt

		h, err := o.spawn(ctx, job)
		if errors.Is(err, errShuttingDown) {
			res.Outcome = Cancelled
			o.record(recordCtx, Event{Kind: EventCancelled, Job: job, Attempt: attempt})
			o.observeOutcome(res.Outcome)
			return res
		}
		if err != nil {
			l.Error("Failed to start worker.", "error", err)
			res.Outcome = SpawnFailed
			res.Err = err
			o.record(recordCtx, Event{Kind: EventSpawnError, Job: job, Attempt: attempt, Message: err.Error()})
			o.observeOutcome(res.Outcome)
			return res
		}

		o.record(recordCtx, Event{Kind: EventStart, Job: job, Attempt: attempt})
		l.Debug("Worker started.", slog.Int("pid", h.Pid()), slog.Int("attempt", attempt), slog.Int("files", len(job.Paths)))

		exitCode, waitErr := o.wait(h, l)
		res.ExitCode = exitCode
		res.Duration = h.Elapsed()
		if waitErr == nil && h.timedOut() {
			waitErr = fmt.Errorf("%w after %s", ErrTimeout, o.opts.Timeout)
		}

		switch {
		case waitErr == nil:
			res.Outcome = Succeeded
			res.Err = nil
			l.Debug("Worker finished.", slog.Duration("elapsed", res.Duration))
			o.record(recordCtx, Event{Kind: EventEnd, Job: job, Attempt: attempt, ExitCode: &exitCode, Duration: res.Duration})
		case h.terminatedByUs() && !h.timedOut():
			res.Outcome = Cancelled
			res.Err = waitErr
			l.Info("Worker stopped by shutdown.", slog.Int("exit_code", exitCode))
			o.record(recordCtx, Event{Kind: EventCancelled, Job: job, Attempt: attempt, ExitCode: &exitCode, Duration: res.Duration})
		default:
			res.Outcome = Failed
			res.Err = waitErr
			if attempt <= o.opts.Retries && !o.ShuttingDown() {
				l.Warn("Worker failed, retrying.", slog.Int("exit_code", exitCode), slog.Int("attempt", attempt), "error", waitErr)
				o.record(recordCtx, Event{Kind: EventRetry, Job: job, Attempt: attempt, ExitCode: &exitCode, Duration: res.Duration, Message: waitErr.Error()})
				if o.opts.Metrics != nil {
					o.opts.Metrics.BatchRetries.Inc()
				}
				continue
			}
			l.Error("Worker failed.", slog.Int("exit_code", exitCode), "error", waitErr)
			o.record(recordCtx, Event{Kind: EventFailed, Job: job, Attempt: attempt, ExitCode: &exitCode, Duration: res.Duration, Message: waitErr.Error()})
		}
		o.observeOutcome(res.Outcome)
		if o.opts.Metrics != nil {
			o.opts.Metrics.BatchDuration.Observe(res.Duration.Seconds())
		}
		return res
	}
}

// spawn starts the worker for job and registers it, unless shutdown has begun.
func (o *Orchestrator) spawn(ctx context.Context, job Job) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shuttingDown || ctx.Err() != nil {
		return nil, errShuttingDown
	}

	h, err := startHandle(job, o.opts.Command, o.opts.Clock)
	if err != nil {
		return nil, err
	}
	o.live[h] = struct{}{}
	if o.opts.Metrics != nil {
		o.opts.Metrics.BatchesStarted.Inc()
		o.opts.Metrics.RunningWorkers.Inc()
		o.opts.Metrics.BatchSize.Observe(float64(len(job.Paths)))
	}
	return h, nil
}

// wait streams the worker's output until it exits, then deregisters it.
func (o *Orchestrator) wait(h *Handle, l *slog.Logger) (int, error) {
	if o.opts.Timeout > 0 {
		var (
			timerMu  sync.Mutex
			escalate clockwork.Timer
			reaped   bool
		)
		timer := o.opts.Clock.AfterFunc(o.opts.Timeout, func() {
			l.Warn("Worker exceeded timeout, terminating.", slog.Duration("timeout", o.opts.Timeout))
			h.expire(l)
			timerMu.Lock()
			defer timerMu.Unlock()
			if reaped {
				return
			}
			escalate = o.opts.Clock.AfterFunc(o.opts.KillGrace, func() {
				l.Warn("Timed out worker ignored SIGTERM, killing.", slog.Duration("grace", o.opts.KillGrace))
				h.kill(l)
			})
		})
		defer func() {
			timer.Stop()
			timerMu.Lock()
			defer timerMu.Unlock()
			reaped = true
			if escalate != nil {
				escalate.Stop()
			}
		}()
	}

	var output func(string)
	if !o.opts.Silent {
		output = func(line string) { o.opts.Reporter.Output(h.Job, line) }
	}
	exitCode, err := h.stream(output)

	o.mu.Lock()
	delete(o.live, h)
	o.mu.Unlock()
	if o.opts.Metrics != nil {
		o.opts.Metrics.RunningWorkers.Dec()
	}
	return exitCode, err
}

func (o *Orchestrator) record(ctx context.Context, ev Event) {
	ev.At = o.opts.Clock.Now()
	if err := o.opts.Recorder.Record(ctx, ev); err != nil {
		o.opts.Logger.Warn("Failed to record batch event.", slog.String("event", string(ev.Kind)), slog.String("batch", ev.Job.Key), "error", err)
	}
}

func (o *Orchestrator) observeOutcome(outcome Outcome) {
	if o.opts.Metrics == nil {
		return
	}
	label := observability.OutcomeSucceeded
	switch outcome {
	case Failed:
		label = observability.OutcomeFailed
	case Cancelled:
		label = observability.OutcomeCancelled
	case SpawnFailed:
		label = observability.OutcomeSpawnError
	}
	o.opts.Metrics.BatchesFinished.WithLabelValues(label).Inc()
}
