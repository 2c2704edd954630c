package export

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func readInventory(t *testing.T, path string) []InventoryRow {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(InventoryRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]InventoryRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestWriteInventory(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "LA_DCLMA_Arlington_240601_100000.dat.gz")
	require.NoError(t, os.WriteFile(raw, make([]byte, 3000), 0o644))

	station, ok := lmafile.ParseStation(raw)
	require.True(t, ok)
	missing, ok := lmafile.ParseStation(filepath.Join(dir, "LB_OKLMA_Norman_240601_100500.dat"))
	require.True(t, ok)

	out := filepath.Join(dir, "exports", "inventory.parquet")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, WriteInventory(out, []lmafile.StationFile{station, missing}, logger))

	rows := readInventory(t, out)
	require.Len(t, rows, 2)

	assert.Equal(t, raw, rows[0].Path)
	assert.Equal(t, "dclma", rows[0].Network)
	assert.Equal(t, "A", rows[0].StationID)
	assert.Equal(t, "Arlington", rows[0].Station)
	assert.Equal(t, "240601_100000", rows[0].Stamp)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC).UnixMilli(), rows[0].Timestamp)
	assert.Equal(t, int64(3000), rows[0].SizeBytes)

	assert.Equal(t, "oklma", rows[1].Network)
	assert.Equal(t, int64(-1), rows[1].SizeBytes)
}

func TestRowOfProcessedFile(t *testing.T) {
	rec, ok := lmafile.ParseAnalysis("/out/LYLOUT_240601_100000_0600.dat.gz")
	require.True(t, ok)

	row := RowOf(rec)
	assert.Empty(t, row.StationID)
	assert.Equal(t, "240601_100000", row.Stamp)
}
