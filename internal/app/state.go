package app

// AppState represents the phases of a batch run as shown by the TUI.
type AppState int

const (
	Waiting AppState = iota
	Running
	Stopping
	Killing
	Finished
)
