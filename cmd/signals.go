package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdown turns repeated interrupts into an escalating stop: the first
// cancels the run context, which terminates workers; any later one kills
// them. Interrupts arrive as signals or, while the TUI owns the terminal, as
// key presses.
type shutdown struct {
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	count  int
	kill   func()
	notify func()
}

// withShutdown derives a context that the first SIGINT or SIGTERM cancels.
// stop releases the signal handler.
func withShutdown(parent context.Context, logger *slog.Logger) (context.Context, *shutdown, func()) {
	ctx, cancel := context.WithCancel(parent)
	sd := &shutdown{cancel: cancel, logger: logger}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigs:
				sd.logger.Debug("Signal received.", slog.String("signal", sig.String()))
				sd.mu.Lock()
				notify := sd.notify
				sd.mu.Unlock()
				if notify != nil {
					notify()
				}
				sd.interrupt()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel()
		})
	}
	return ctx, sd, stop
}

func (s *shutdown) interrupt() {
	s.mu.Lock()
	s.count++
	n := s.count
	kill := s.kill
	s.mu.Unlock()

	if n == 1 {
		s.logger.Warn("Interrupted, terminating workers. Interrupt again to kill them.")
		s.cancel()
		return
	}
	s.logger.Warn("Interrupted again, killing workers.")
	if kill != nil {
		kill()
	}
}

// attach routes escalations to kill and display updates to notify until the
// returned function is called.
func (s *shutdown) attach(kill, notify func()) (detach func()) {
	s.mu.Lock()
	s.kill = kill
	s.notify = notify
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.kill = nil
		s.notify = nil
		s.mu.Unlock()
	}
}
