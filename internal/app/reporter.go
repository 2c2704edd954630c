package app

import (
	"io"

	"github.com/XR-at-CISESS/lma-data/internal/orchestrator"

	tea "github.com/charmbracelet/bubbletea"
)

// Reporter forwards orchestrator progress to a bubbletea program. The
// program starts on construction and exits after Finish.
type Reporter struct {
	model   *AppModel
	program *tea.Program
	done    chan struct{}
	err     error
}

var _ orchestrator.Reporter = (*Reporter)(nil)

// NewReporter starts the UI on out, reading keys from in (nil disables
// input). Signals are left to the caller, who is notified of ctrl+c through
// onInterrupt.
func NewReporter(title string, in io.Reader, out io.Writer, onInterrupt func()) *Reporter {
	model := NewAppModel(title, onInterrupt)
	r := &Reporter{
		model:   model,
		program: tea.NewProgram(model, tea.WithInput(in), tea.WithOutput(out), tea.WithoutSignalHandler()),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		_, r.err = r.program.Run()
	}()
	return r
}

func (r *Reporter) Start(total int) {
	r.program.Send(StartMsg{Total: total})
}

func (r *Reporter) Output(job orchestrator.Job, line string) {
	r.program.Send(OutputMsg{Label: job.Label(), Line: line})
}

func (r *Reporter) Done(res orchestrator.Result, p orchestrator.Progress) {
	r.program.Send(DoneMsg{Result: res, Progress: p})
}

func (r *Reporter) Finish(s orchestrator.Summary) {
	r.program.Send(FinishMsg{Summary: s})
}

// Interrupted updates the footer after a signal arrived from outside the UI.
func (r *Reporter) Interrupted() {
	r.program.Send(interruptMsg{})
}

// Wait blocks until the program exited and restored the terminal.
func (r *Reporter) Wait() error {
	<-r.done
	return r.err
}
