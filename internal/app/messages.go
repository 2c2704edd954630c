package app

import (
	"fmt"

	"github.com/XR-at-CISESS/lma-data/internal/orchestrator"
)

// --- Progress Messages ---

// StartMsg announces the number of batches in the run.
type StartMsg struct {
	Title string
	Total int
}

// OutputMsg is one line printed by a worker.
type OutputMsg struct {
	Label string // batch tag, e.g. "2024-06-01 10:00:00"
	Line  string
}

// DoneMsg reports a finished batch along with the completed count.
type DoneMsg struct {
	Result   orchestrator.Result
	Progress orchestrator.Progress
}

// FinishMsg ends the run.
type FinishMsg struct {
	Summary orchestrator.Summary
}

// interruptMsg is sent by the reporter when the process receives a signal
// while the program owns the terminal.
type interruptMsg struct{}

func (s StartMsg) String() string  { return fmt.Sprintf("Start %s: %d batches", s.Title, s.Total) }
func (o OutputMsg) String() string { return fmt.Sprintf("[%s] %s", o.Label, o.Line) }
func (d DoneMsg) String() string {
	return fmt.Sprintf("Done %s: %s (%d/%d)", d.Result.Job.Key, d.Result.Outcome, d.Progress.Done, d.Progress.Total)
}
func (f FinishMsg) String() string {
	return fmt.Sprintf("Finish: %d succeeded, %d failed", f.Summary.Succeeded, f.Summary.Failed)
}
