// Package watch reruns a pipeline when files appear under a directory tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the quiet period after the last change before a rerun.
const DefaultDebounce = 5 * time.Second

// Watcher monitors a directory tree. New subdirectories are added as they
// appear.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }
func WithClock(c clockwork.Clock) Option  { return func(w *Watcher) { w.clock = c } }
func WithLogger(l *slog.Logger) Option    { return func(w *Watcher) { w.logger = l } }

// New watches root and every directory below it.
func New(root string, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		watcher:  fsWatcher,
		debounce: DefaultDebounce,
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// Run calls fn once, then again after every quiet period that follows a
// change. Changes seen while fn runs cause exactly one more call after it
// returns. Errors from fn are logged. Run blocks until ctx is cancelled and
// fn has returned.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	defer w.watcher.Close()

	fire := make(chan struct{}, 1)
	runDone := make(chan error, 1)
	var timer clockwork.Timer
	running, pending := false, false

	start := func() {
		running = true
		go func() { runDone <- fn(ctx) }()
	}
	start()

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if running {
				<-runDone
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory.", slog.String("path", event.Name), "error", err)
					}
				}
			}
			w.logger.Debug("Change detected.", slog.String("path", event.Name), slog.String("op", event.Op.String()))

			if timer != nil {
				timer.Stop()
			}
			timer = w.clock.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if running {
				pending = true
				continue
			}
			w.logger.Info("New files settled, rerunning.", slog.String("root", w.root))
			start()

		case err := <-runDone:
			running = false
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Run failed, waiting for further changes.", "error", err)
			}
			if pending {
				pending = false
				start()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error.", "error", err)
		}
	}
}

// Close releases the watcher without running.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
