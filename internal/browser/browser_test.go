package browser

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/XR-at-CISESS/lma-data/internal/util"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root, rel string, size int) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func names[T lmafile.Record](recs []T) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, filepath.Base(r.Path()))
	}
	sort.Strings(out)
	return out
}

func at(hour, minute int) *time.Time {
	t := time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
	return &t
}

func TestFindRecursesAndSkipsUnparsable(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, root, "2024/06/01/LB_DCLMA_Two_240601_100000.dat.gz", 10)
	touch(t, root, "notes.txt", 10)

	found, stats, err := New(lmafile.ParseStation).FindWithStats(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"LA_DCLMA_One_240601_100000.dat", "LB_DCLMA_Two_240601_100000.dat.gz"}, names(found))
	assert.Equal(t, Stats{Seen: 3, Parsed: 2, Kept: 2}, stats)
}

func TestFindHonoursGlob(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/DCLMA_240601_100000_0300.dat.gz", 10)
	touch(t, root, "a/DCLMA_240601_100500_0300.dat", 10)

	found, err := New(lmafile.ParseAnalysis).WithGlob("**/*.gz").Find(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"DCLMA_240601_100000_0300.dat.gz"}, names(found))
}

func TestFindMissingRoot(t *testing.T) {
	_, err := New(lmafile.ParseStation).Find(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDateFilterBoundsAreInclusive(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "LA_DCLMA_One_240601_095500.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_100500.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_101000.dat", 10)

	b := New(lmafile.ParseStation).WithFilters(DateFilter[lmafile.StationFile]{})

	found, err := b.Find(context.Background(), root, &Args{Dates: util.DateRange{Start: at(10, 0), End: at(10, 5)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"LA_DCLMA_One_240601_100000.dat", "LA_DCLMA_One_240601_100500.dat"}, names(found))

	found, err = b.Find(context.Background(), root, &Args{Dates: util.DateRange{End: at(10, 0)}})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = b.Find(context.Background(), root, &Args{})
	require.NoError(t, err)
	assert.Len(t, found, 4)
}

func TestDateFilterMissingTimestamp(t *testing.T) {
	var rec lmafile.StationFile
	assert.False(t, DateFilter[lmafile.StationFile]{}.Test("x", rec, &Args{}))
	assert.True(t, DateFilter[lmafile.StationFile]{AcceptMissing: true}.Test("x", rec, &Args{}))
}

func TestOptionsFilterIsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, root, "LA_OKLMA_Okc_240601_100000.dat", 10)
	touch(t, root, "LB_WTLMA_Lub_240601_100000.dat", 10)

	b := New(lmafile.ParseStation).WithFilters(NetworkFilter[lmafile.StationFile]("n"), StationFilter("s"))

	args := &Args{}
	args.SetAllowed(OptionNetworks, []string{"dclma,WtLmA"})
	found, err := b.Find(context.Background(), root, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"LA_DCLMA_One_240601_100000.dat", "LB_WTLMA_Lub_240601_100000.dat"}, names(found))

	args.SetAllowed(OptionStations, []string{"b"})
	found, err = b.Find(context.Background(), root, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"LB_WTLMA_Lub_240601_100000.dat"}, names(found))

	args = &Args{}
	args.SetAllowed(OptionStations, []string{"okc"})
	found, err = b.Find(context.Background(), root, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"LA_OKLMA_Okc_240601_100000.dat"}, names(found))
}

func TestNonEmptyFilter(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "DCLMA_240601_100000_0300.dat.gz", 2047)
	touch(t, root, "DCLMA_240601_100500_0300.dat.gz", 2048)

	found, err := New(lmafile.ParseAnalysis).
		WithFilters(NewNonEmptyFilter[lmafile.AnalysisFile](2048)).
		Find(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"DCLMA_240601_100500_0300.dat.gz"}, names(found))

	assert.False(t, NewNonEmptyFilter[lmafile.AnalysisFile](2048).Test(filepath.Join(root, "gone"), lmafile.AnalysisFile{}, nil))
}

func TestRegexAndCompoundFilters(t *testing.T) {
	re, err := NewRegexFilter[lmafile.StationFile](`/keep/`)
	require.NoError(t, err)

	all := All[lmafile.StationFile]{re, DateFilter[lmafile.StationFile]{}}
	rec := lmafile.StationFile{Time: *at(10, 0)}
	assert.True(t, all.Test("/data/keep/x", rec, &Args{}))
	assert.False(t, all.Test("/data/drop/x", rec, &Args{}))
	assert.False(t, all.Test("/data/keep/x", lmafile.StationFile{}, &Args{}))

	_, err = NewRegexFilter[lmafile.StationFile](`(`)
	assert.Error(t, err)
}

func TestCacheFilterExcludesExistingOutput(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	touch(t, data, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, data, "LB_DCLMA_Two_240601_100000.dat", 10)
	touch(t, data, "LA_DCLMA_One_240601_100500.dat", 10)
	touch(t, out, "DCLMA_240601_100000_0300.dat.gz", 10)

	newBrowser := func() *Browser[lmafile.StationFile] {
		cache := CacheFromOutput(New(lmafile.ParseAnalysis),
			func(a lmafile.AnalysisFile) time.Time { return a.Timestamp() },
			func(s lmafile.StationFile) time.Time { return s.Timestamp() },
			nil)
		return New(lmafile.ParseStation).WithFilters(cache)
	}

	found, err := newBrowser().Find(context.Background(), data, &Args{OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, []string{"LA_DCLMA_One_240601_100500.dat"}, names(found))

	found, err = newBrowser().Find(context.Background(), data, &Args{OutDir: out, NoCache: true})
	require.NoError(t, err)
	assert.Len(t, found, 3)

	found, err = newBrowser().Find(context.Background(), data, &Args{OutDir: filepath.Join(out, "missing")})
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestCacheFilterLoadsOnce(t *testing.T) {
	loads := 0
	cache := NewCacheFilter(
		func(s lmafile.StationFile) string { return s.ID },
		func(context.Context, *Args) (map[string]struct{}, error) {
			loads++
			return map[string]struct{}{"A": {}}, nil
		}, nil)

	args := &Args{}
	assert.False(t, cache.Test("", lmafile.StationFile{ID: "A"}, args))
	assert.True(t, cache.Test("", lmafile.StationFile{ID: "B"}, args))
	assert.Equal(t, 1, loads)
}

func TestConcurrentFindsShareArgs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_100500.dat", 10)

	args := &Args{Dates: util.DateRange{Start: at(10, 5)}}
	b := New(lmafile.ParseStation).WithFilters(DateFilter[lmafile.StationFile]{})

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			found, err := b.Find(ctx, root, args)
			if err == nil {
				counts[i] = len(found)
			}
		}()
	}
	wg.Wait()

	for _, n := range counts {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, context.Background(), args.Context(), "walks leave the caller's Args untouched")
}

func TestFilterFlags(t *testing.T) {
	filters := []Filter[lmafile.StationFile]{
		NetworkFilter[lmafile.StationFile](""),
		NewCacheFilter(func(s lmafile.StationFile) string { return s.ID }, nil, nil),
		DateFilter[lmafile.StationFile]{},
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFilterFlags(fs, filters...)
	require.NoError(t, fs.Parse([]string{"--networks", "DCLMA,oklma", "--networks", "wtlma", "--no-cache"}))

	args := &Args{}
	require.NoError(t, ReadFilterFlags(fs, args, filters...))
	assert.Equal(t, []string{"DCLMA", "oklma", "wtlma"}, args.Allowed(OptionNetworks))
	assert.True(t, args.NoCache)
}

func TestMinSizeFlag(t *testing.T) {
	bound := NewNonEmptyFilter[lmafile.AnalysisFile](2048)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFilterFlags[lmafile.AnalysisFile](fs, bound)

	// A filter built later from configuration keeps its size unless the flag is set.
	configured := &NonEmptyFilter[lmafile.AnalysisFile]{MinSize: 100}
	require.NoError(t, fs.Parse(nil))
	require.NoError(t, ReadFilterFlags[lmafile.AnalysisFile](fs, &Args{}, configured))
	assert.Equal(t, int64(100), configured.MinSize)

	require.NoError(t, fs.Parse([]string{"--min-size", "10"}))
	require.NoError(t, ReadFilterFlags[lmafile.AnalysisFile](fs, &Args{}, configured))
	assert.Equal(t, int64(10), configured.MinSize)

	require.NoError(t, fs.Parse([]string{"--min-size=-1"}))
	assert.Error(t, ReadFilterFlags[lmafile.AnalysisFile](fs, &Args{}, configured))
}

func TestCatalog(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "LB_DCLMA_Two_240601_100500.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_100500.dat", 10)
	touch(t, root, "LA_DCLMA_One_240601_100000.dat", 10)
	touch(t, root, "LA_OKLMA_Okc_240601_100000.dat", 10)

	files, err := New(lmafile.ParseStation).Find(context.Background(), root, nil)
	require.NoError(t, err)
	c := NewCatalog(files)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, []string{"dclma", "oklma"}, c.Networks())
	assert.Equal(t, []string{"A", "B"}, c.Stations("DCLMA"))

	one := c.Station("dclma", "A")
	require.Len(t, one, 2)
	assert.True(t, one[0].Timestamp().Before(one[1].Timestamp()))
	assert.Nil(t, c.Station("nope", "A"))
}
