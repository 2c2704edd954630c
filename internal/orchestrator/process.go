package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/util"
	"github.com/jonboulle/clockwork"
)

// State is the lifecycle stage of a worker process.
type State int

const (
	Starting State = iota
	Running
	Terminating
	Exited
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handle is a live worker process.
type Handle struct {
	Job Job

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	clock  clockwork.Clock

	mu        sync.Mutex
	state     State
	started   time.Time
	elapsed   time.Duration
	signalled bool
	expired   bool
}

func startHandle(job Job, c Command, clock clockwork.Clock) (*Handle, error) {
	cmd := exec.Command(c.Executable, c.Argv(job)...)
	isolate(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrSpawn, c.Executable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrSpawn, c.Executable, err)
	}
	h := &Handle{Job: job, cmd: cmd, stdout: stdout, stderr: stderr, clock: clock, state: Starting}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrSpawn, c.Executable, err)
	}
	h.state = Running
	h.started = clock.Now()
	return h, nil
}

func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Elapsed is the run time of an exited process.
func (h *Handle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elapsed
}

// stream forwards stdout and stderr lines to output (when non-nil) until
// both pipes close, then reaps the process. The returned error wraps ErrExit
// or ErrTimeout and carries the tail of stderr.
func (h *Handle) stream(output func(string)) (int, error) {
	tail := util.NewTail(DefaultStderrLines)
	var tailMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(h.stdout, output)
	}()
	go func() {
		defer wg.Done()
		scanLines(h.stderr, func(line string) {
			tailMu.Lock()
			tail.Add(line)
			tailMu.Unlock()
			if output != nil {
				output(line)
			}
		})
	}()
	wg.Wait()
	err := h.cmd.Wait()

	h.mu.Lock()
	h.state = Exited
	h.elapsed = h.clock.Since(h.started)
	h.mu.Unlock()

	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("wait for worker: %w", err)
	}

	code := exitErr.ExitCode()
	cause := ErrExit
	if h.timedOut() {
		cause = ErrTimeout
	}
	detail := tail.String()
	if detail == "" {
		return code, fmt.Errorf("%w (%s)", cause, exitErr)
	}
	return code, fmt.Errorf("%w (%s): %s", cause, exitErr, detail)
}

func (h *Handle) terminate(l *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Exited {
		return
	}
	h.signalled = true
	h.state = Terminating
	if err := signalTerm(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		l.Warn("Failed to terminate worker.", slog.String("batch", h.Job.Key), slog.Int("pid", h.Pid()), "error", err)
	}
}

func (h *Handle) kill(l *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Exited {
		return
	}
	h.signalled = true
	h.state = Terminating
	if err := signalKill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		l.Warn("Failed to kill worker.", slog.String("batch", h.Job.Key), slog.Int("pid", h.Pid()), "error", err)
	}
}

func (h *Handle) expire(l *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Exited {
		return
	}
	h.expired = true
	h.state = Terminating
	if err := signalTerm(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		l.Warn("Failed to terminate timed out worker.", slog.String("batch", h.Job.Key), "error", err)
	}
}

func (h *Handle) terminatedByUs() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signalled
}

func (h *Handle) timedOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expired
}

// scanLines calls fn for every line of r. Whatever cannot be scanned (an
// over-long line) is drained so the writer never blocks.
func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if fn != nil {
			fn(sc.Text())
		}
	}
	_, _ = io.Copy(io.Discard, r)
}
