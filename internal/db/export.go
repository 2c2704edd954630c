package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ExportHistory copies the whole event log to a Parquet file using DuckDB's
// COPY ... TO.
func ExportHistory(ctx context.Context, db *sql.DB, outputFilePath string, logger *slog.Logger) error {
	if dir := filepath.Dir(outputFilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory '%s': %w", dir, err)
		}
	}
	duckdbFilePath := strings.ReplaceAll(outputFilePath, `\`, `/`) // DuckDB needs forward slashes
	copySQL := fmt.Sprintf(`COPY (SELECT * FROM lma_event_log ORDER BY log_id) TO '%s' (FORMAT PARQUET);`,
		strings.ReplaceAll(duckdbFilePath, "'", "''"),
	)

	logger.Debug("Executing COPY TO command.", slog.String("output_path", outputFilePath))
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("export event log to %s: %w", outputFilePath, err)
	}
	logger.Info("Event log exported.", slog.String("output_path", outputFilePath))
	return nil
}
