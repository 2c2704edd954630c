package orchestrator

import (
	"context"
	"time"
)

// EventKind names a batch lifecycle event. The values double as the event
// column of the run log.
type EventKind string

const (
	EventStart      EventKind = "batch_start"
	EventEnd        EventKind = "batch_end"
	EventFailed     EventKind = "batch_failed"
	EventCancelled  EventKind = "batch_cancelled"
	EventRetry      EventKind = "batch_retry"
	EventSpawnError EventKind = "spawn_error"
)

// Event is passed to a Recorder at each transition of a job.
type Event struct {
	Kind     EventKind
	Job      Job
	Attempt  int
	ExitCode *int
	Duration time.Duration
	Message  string
	At       time.Time
}

// Recorder persists batch events. Errors are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }
