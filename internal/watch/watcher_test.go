package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(10 * time.Second):
		t.Fatal("expected a run")
	}
}

func TestRunRerunsAfterQuietPeriod(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, err := New(root, WithClock(clock), WithDebounce(time.Second))
	require.NoError(t, err)

	calls := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- w.Run(ctx, func(context.Context) error {
			calls <- struct{}{}
			return nil
		})
	}()

	waitCall(t, calls)

	require.NoError(t, os.WriteFile(filepath.Join(root, "LA_DCLMA_One_240601_100000.dat"), []byte("x"), 0o644))
	blockCtx, blockCancel := context.WithTimeout(ctx, 10*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(time.Second)
	waitCall(t, calls)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	w, err := New(root, WithClock(clock), WithDebounce(time.Second))
	require.NoError(t, err)

	calls := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Run(ctx, func(context.Context) error {
			calls <- struct{}{}
			return errors.New("worker missing")
		})
	}()
	waitCall(t, calls)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.dat"), []byte("x"), 0o644))
	blockCtx, blockCancel := context.WithTimeout(ctx, 10*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(time.Second)
	waitCall(t, calls)
}

func TestNewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, WithDebounce(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, func(context.Context) error { return nil }) }()

	sub := filepath.Join(root, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool {
		return slices.Contains(w.watcher.WatchList(), sub)
	}, 10*time.Second, 10*time.Millisecond)
}

func TestNewFailsForMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
