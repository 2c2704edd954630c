package browser

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/pflag"
)

// CacheLoader produces the set of keys that already have output.
type CacheLoader[K comparable] func(ctx context.Context, args *Args) (map[K]struct{}, error)

// CacheFilter rejects records whose key already has output. The key set is
// loaded on first use and at most once per filter. args.NoCache disables the
// filter entirely.
type CacheFilter[T any, K comparable] struct {
	key    func(T) K
	load   CacheLoader[K]
	logger *slog.Logger

	once sync.Once
	keys map[K]struct{}
}

func NewCacheFilter[T any, K comparable](key func(T) K, load CacheLoader[K], logger *slog.Logger) *CacheFilter[T, K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheFilter[T, K]{key: key, load: load, logger: logger}
}

// CacheFromOutput builds a cache filter whose keys come from scanning
// args.OutDir with out. A missing output directory is an empty cache.
func CacheFromOutput[T, O any, K comparable](out *Browser[O], outKey func(O) K, key func(T) K, logger *slog.Logger) *CacheFilter[T, K] {
	load := func(ctx context.Context, args *Args) (map[K]struct{}, error) {
		keys := make(map[K]struct{})
		if args.OutDir == "" {
			return keys, nil
		}
		err := out.Walk(ctx, args.OutDir, &Args{}, func(o O) error {
			keys[outKey(o)] = struct{}{}
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			return keys, nil
		}
		return keys, err
	}
	return NewCacheFilter(key, load, logger)
}

func (f *CacheFilter[T, K]) Name() string { return "cache" }

func (f *CacheFilter[T, K]) Test(_ string, rec T, args *Args) bool {
	if args.NoCache {
		return true
	}
	f.once.Do(func() {
		keys, err := f.load(args.Context(), args)
		if err != nil {
			// An unreadable cache means nothing is skipped.
			f.logger.Warn("Failed to load output cache, processing everything.", "out_dir", args.OutDir, "error", err)
			keys = map[K]struct{}{}
		}
		f.keys = keys
		f.logger.Debug("Output cache loaded.", "out_dir", args.OutDir, slog.Int("entries", len(keys)))
	})
	_, done := f.keys[f.key(rec)]
	return !done
}

func (f *CacheFilter[T, K]) BindFlags(fs *pflag.FlagSet) {
	fs.Bool("no-cache", false, "Process inputs even when matching output already exists")
}

func (f *CacheFilter[T, K]) ReadFlags(fs *pflag.FlagSet, args *Args) error {
	noCache, err := fs.GetBool("no-cache")
	if err != nil {
		return err
	}
	args.NoCache = noCache
	return nil
}

func dirExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "browse", Path: path, Err: errors.New("not a directory")}
	}
	return nil
}
