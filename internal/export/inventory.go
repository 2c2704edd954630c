// Package export writes file listings to Parquet.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// InventoryRow is one discovered file.
type InventoryRow struct {
	Path      string `parquet:"name=path, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Network   string `parquet:"name=network, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	StationID string `parquet:"name=station_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Station   string `parquet:"name=station, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Stamp     string `parquet:"name=stamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64  `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	SizeBytes int64  `parquet:"name=size_bytes, type=INT64"`
}

// RowOf describes rec. SizeBytes is -1 when the file cannot be stat'ed.
func RowOf[T lmafile.Record](rec T) InventoryRow {
	row := InventoryRow{
		Path:      rec.Path(),
		Network:   rec.Network(),
		Stamp:     lmafile.FormatStamp(rec.Timestamp()),
		Timestamp: rec.Timestamp().UnixMilli(),
		SizeBytes: -1,
	}
	if st, ok := any(rec).(lmafile.StationFile); ok {
		row.StationID = st.ID
		row.Station = st.StationName
	}
	if info, err := os.Stat(rec.Path()); err == nil {
		row.SizeBytes = info.Size()
	}
	return row
}

// WriteInventory writes one row per record to a Snappy-compressed Parquet
// file at path, creating parent directories.
func WriteInventory[T lmafile.Record](path string, records []T, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(InventoryRow), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(RowOf(rec)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("write row for %s: %w", rec.Path(), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet %s: %w", path, err)
	}

	logger.Info("Exported file inventory.", slog.String("path", path), slog.Int("rows", len(records)))
	return nil
}
