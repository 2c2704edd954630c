package browser

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultGlob matches every file at any depth.
const DefaultGlob = "**/*"

// Browser discovers files under a root, parses their names into records of
// type T and applies its filters.
type Browser[T any] struct {
	parse   func(path string) (T, bool)
	glob    string
	filters All[T]
	logger  *slog.Logger
}

// Stats counts what one walk saw.
type Stats struct {
	Seen   int // files matched by the glob
	Parsed int // files whose name parsed
	Kept   int // records accepted by every filter
}

// New returns a browser that parses names with parse.
func New[T any](parse func(path string) (T, bool)) *Browser[T] {
	return &Browser[T]{
		parse:  parse,
		glob:   DefaultGlob,
		logger: slog.Default(),
	}
}

// WithGlob sets the doublestar pattern, relative to the root, used to
// enumerate candidate files.
func (b *Browser[T]) WithGlob(pattern string) *Browser[T] {
	b.glob = pattern
	return b
}

// WithFilters appends filters. All of them must accept a record.
func (b *Browser[T]) WithFilters(filters ...Filter[T]) *Browser[T] {
	b.filters = append(b.filters, filters...)
	return b
}

func (b *Browser[T]) WithLogger(logger *slog.Logger) *Browser[T] {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Walk streams accepted records to fn in enumeration order. Entries that
// cannot be read are skipped. fn returning an error stops the walk.
func (b *Browser[T]) Walk(ctx context.Context, root string, args *Args, fn func(T) error) error {
	_, err := b.walk(ctx, root, args, fn)
	return err
}

// Find collects every accepted record under root.
func (b *Browser[T]) Find(ctx context.Context, root string, args *Args) ([]T, error) {
	var found []T
	_, err := b.walk(ctx, root, args, func(rec T) error {
		found = append(found, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FindWithStats is Find plus walk counters.
func (b *Browser[T]) FindWithStats(ctx context.Context, root string, args *Args) ([]T, Stats, error) {
	var found []T
	stats, err := b.walk(ctx, root, args, func(rec T) error {
		found = append(found, rec)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return found, stats, nil
}

func (b *Browser[T]) walk(ctx context.Context, root string, args *Args, fn func(T) error) (Stats, error) {
	var stats Stats
	if err := dirExists(root); err != nil {
		return stats, fmt.Errorf("cannot browse %s: %w", root, err)
	}
	if !doublestar.ValidatePattern(b.glob) {
		return stats, fmt.Errorf("invalid glob pattern %q: %w", b.glob, doublestar.ErrBadPattern)
	}
	// Filters read the context from their own copy; the caller's Args may be
	// shared by concurrent walks.
	var walkArgs Args
	if args != nil {
		walkArgs = *args
	}
	walkArgs.ctx = ctx
	args = &walkArgs

	l := b.logger.With(slog.String("root", root), slog.String("glob", b.glob))
	err := doublestar.GlobWalk(os.DirFS(root), b.glob, func(rel string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d != nil && d.IsDir() {
			return nil
		}
		stats.Seen++
		path := filepath.Join(root, filepath.FromSlash(rel))
		rec, ok := b.parse(path)
		if !ok {
			return nil
		}
		stats.Parsed++
		if !b.filters.Test(path, rec, args) {
			return nil
		}
		stats.Kept++
		return fn(rec)
	}, doublestar.WithFilesOnly())
	if err != nil {
		return stats, fmt.Errorf("browse %s: %w", root, err)
	}

	l.Debug("Browse complete.", slog.Int("seen", stats.Seen), slog.Int("parsed", stats.Parsed), slog.Int("kept", stats.Kept))
	return stats, nil
}
