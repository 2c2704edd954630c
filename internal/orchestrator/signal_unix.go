//go:build !windows

package orchestrator

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// isolate starts the worker in its own process group so signals reach every
// process a wrapper script starts.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func signalKill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
