//go:build windows

package orchestrator

import (
	"os"
	"os/exec"
)

func isolate(*exec.Cmd) {}

// Windows has no SIGTERM; the polite and the forced stop are the same.
func signalTerm(p *os.Process) error {
	return p.Kill()
}

func signalKill(p *os.Process) error {
	return p.Kill()
}
