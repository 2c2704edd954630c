package lmafile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStation(t *testing.T) {
	rec, ok := ParseStation("/data/raw/LA_DCLMA_Arlington_240601_100000.dat.gz")
	require.True(t, ok)

	assert.Equal(t, "A", rec.StationID())
	assert.Equal(t, "dclma", rec.Network())
	assert.Equal(t, "Arlington", rec.StationName)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), rec.Timestamp())
	assert.Equal(t, "/data/raw/LA_DCLMA_Arlington_240601_100000.dat.gz", rec.Path())
}

func TestParseStationStampRoundTrip(t *testing.T) {
	for _, stamp := range []string{"240601_100000", "991231_235959", "000101_000000"} {
		rec, ok := ParseStation("LW_OKLMA_Site_" + stamp + ".dat")
		require.True(t, ok, stamp)
		assert.Equal(t, stamp, FormatStamp(rec.Timestamp()))
	}
}

func TestParseStationIgnoresDirectories(t *testing.T) {
	rec, ok := ParseStation("/Lab/LMA_LOGS/LX_WTLMA_Lubbock_230102_030405.dat")
	require.True(t, ok)
	assert.Equal(t, "X", rec.StationID())
	assert.Equal(t, "wtlma", rec.Network())
	assert.Equal(t, "Lubbock", rec.StationName)
}

func TestParseStationMismatch(t *testing.T) {
	for _, name := range []string{
		"README.md",
		"LA_DCLMA_Arlington_2406_1000.dat",
		"LA_DCLMA_Arlington_241301_100000.dat", // month 13
		"LA_DCLMA_Arlington_240601_250000.dat", // hour 25
		"DCLMA_240601_100000_0300.dat.gz",
	} {
		_, ok := ParseStation(name)
		assert.False(t, ok, name)
	}
}

func TestParseAnalysis(t *testing.T) {
	short, ok := ParseAnalysis("out/DCLMA_240601_100000_0300.dat.gz")
	require.True(t, ok)
	assert.Equal(t, "dclma", short.Network())
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), short.Timestamp())
	assert.Equal(t, "0300", short.Misc)

	long, ok := ParseAnalysis("DCLMA_20240601_100500_0600.dat.gz")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC), long.Timestamp())

	_, ok = ParseAnalysis("DCLMA_2024601_100000_0300.dat.gz")
	assert.False(t, ok, "seven digit date")
	_, ok = ParseAnalysis("LA_DCLMA_Arlington_240601_100000.dat")
	assert.False(t, ok)
}

func TestParseGrid(t *testing.T) {
	g, ok := ParseGrid("grids/DCLMA_20240601_100000_600_10src_1000.0m-dx_source_3d.nc")
	require.True(t, ok)

	assert.Equal(t, "DCLMA", g.Prefix)
	assert.Equal(t, "dclma", g.Network())
	assert.Equal(t, 10*time.Minute, g.Duration())
	assert.Equal(t, 10, g.PointsPerFlash)
	assert.Equal(t, "1000.0m", g.Units)
	assert.Equal(t, "source_3d.nc", g.Suffix)

	_, ok = ParseGrid("DCLMA_240601_100000_0300.dat.gz")
	assert.False(t, ok)
}

func TestCompareOrdersByTimeNetworkStation(t *testing.T) {
	mk := func(name string) StationFile {
		rec, ok := ParseStation(name)
		require.True(t, ok, name)
		return rec
	}
	recs := []StationFile{
		mk("LB_DCLMA_Two_240601_100500.dat"),
		mk("LB_DCLMA_Two_240601_100000.dat"),
		mk("LA_OKLMA_Okc_240601_100000.dat"),
		mk("LA_DCLMA_One_240601_100000.dat"),
	}
	Sort(recs)

	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.Network()+"/"+r.StationID()+"@"+FormatStamp(r.Timestamp()))
	}
	assert.Equal(t, []string{
		"dclma/A@240601_100000",
		"dclma/B@240601_100000",
		"oklma/A@240601_100000",
		"dclma/B@240601_100500",
	}, got)
}
