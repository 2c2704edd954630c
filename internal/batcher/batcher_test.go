package batcher

import (
	"testing"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	a, b string
	n    int
}

func byA(i item) string { return i.a }
func byB(i item) string { return i.b }

func TestBatchPartitionsDepthFirst(t *testing.T) {
	in := []item{
		{"x", "1", 0}, {"y", "1", 1}, {"x", "2", 2}, {"x", "1", 3}, {"y", "2", 4},
	}
	got := Batch(in, byA, byB)

	assert.Equal(t, [][]item{
		{{"x", "1", 0}, {"x", "1", 3}},
		{{"x", "2", 2}},
		{{"y", "1", 1}},
		{{"y", "2", 4}},
	}, got)
}

func TestBatchIsAPartition(t *testing.T) {
	in := make([]item, 0, 30)
	for n := 0; n < 30; n++ {
		in = append(in, item{a: string(rune('a' + n%3)), b: string(rune('p' + n%4)), n: n})
	}
	batches := Batch(in, byA, byB)

	seen := make(map[int]bool)
	for _, batch := range batches {
		require.NotEmpty(t, batch)
		last := -1
		for _, it := range batch {
			assert.Equal(t, batch[0].a, it.a)
			assert.Equal(t, batch[0].b, it.b)
			assert.Greater(t, it.n, last, "input order kept inside a batch")
			last = it.n
			assert.False(t, seen[it.n])
			seen[it.n] = true
		}
	}
	assert.Len(t, seen, len(in))
	assert.Len(t, batches, 12)
}

func TestBatchEdgeCases(t *testing.T) {
	assert.Nil(t, Batch[item](nil, byA))
	one := []item{{"x", "1", 0}, {"y", "1", 1}}
	assert.Equal(t, [][]item{one}, Batch(one))
}

func station(t *testing.T, name string) lmafile.StationFile {
	t.Helper()
	rec, ok := lmafile.ParseStation(name)
	require.True(t, ok, name)
	return rec
}

func TestByInstantGroupsSortedBatches(t *testing.T) {
	recs := []lmafile.StationFile{
		station(t, "LA_DCLMA_One_240601_100500.dat"),
		station(t, "LB_DCLMA_Two_240601_100000.dat"),
		station(t, "LA_DCLMA_One_240601_100000.dat"),
	}
	batches := ByInstant(recs)

	require.Len(t, batches, 2)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "A", batches[0][0].ID)
	assert.Equal(t, "B", batches[0][1].ID)
	assert.Equal(t, "240601_100500", lmafile.FormatStamp(batches[1][0].Timestamp()))
	assert.Equal(t, "LA_DCLMA_One_240601_100500.dat", recs[0].Path(), "input untouched")
}

func TestByNetworkInstant(t *testing.T) {
	recs := []lmafile.AnalysisFile{}
	for _, n := range []string{"OKLMA_240601_100000_0300.dat.gz", "DCLMA_240601_100500_0300.dat.gz", "DCLMA_240601_100000_0300.dat.gz"} {
		rec, ok := lmafile.ParseAnalysis(n)
		require.True(t, ok)
		recs = append(recs, rec)
	}
	batches := ByNetworkInstant(recs)

	require.Len(t, batches, 3)
	assert.Equal(t, "dclma", batches[0][0].Network())
	assert.Equal(t, "dclma", batches[1][0].Network())
	assert.True(t, batches[0][0].Timestamp().Before(batches[1][0].Timestamp()))
	assert.Equal(t, "oklma", batches[2][0].Network())
	assert.Len(t, Each(recs), 3)
}
