package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// RunSummary aggregates the batch events of one run.
type RunSummary struct {
	RunID     string
	Pipeline  string
	Started   time.Time
	Finished  time.Time
	Succeeded int
	Failed    int
	Cancelled int
}

// RunSummaries returns the most recent runs, newest first.
func RunSummaries(ctx context.Context, dbConnPool *sql.DB, limit int, logger *slog.Logger) ([]RunSummary, error) {
	logger.Debug("Querying database for run summaries...", slog.Int("limit", limit))
	query := `
		SELECT run_id,
		       any_value(pipeline),
		       min(event_timestamp),
		       max(event_timestamp),
		       count(*) FILTER (WHERE event = ?),
		       count(*) FILTER (WHERE event IN (?, ?)),
		       count(*) FILTER (WHERE event = ?)
		FROM lma_event_log
		GROUP BY run_id
		ORDER BY min(event_timestamp) DESC
		LIMIT ?;
	`
	rows, err := dbConnPool.QueryContext(ctx, query, EventBatchEnd, EventBatchFailed, EventSpawnError, EventBatchCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("query run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	var scanErrors error
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Pipeline, &s.Started, &s.Finished, &s.Succeeded, &s.Failed, &s.Cancelled); err != nil {
			logger.Error("Failed to scan run summary", "error", err)
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan run summary: %w", err))
			continue
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return summaries, errors.Join(scanErrors, fmt.Errorf("iterate run summaries: %w", err))
	}
	return summaries, scanErrors
}

// DisplayRuns prints one line per run.
func DisplayRuns(ctx context.Context, db *sql.DB, w io.Writer, limit int, logger *slog.Logger) error {
	summaries, err := RunSummaries(ctx, db, limit, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-36s | %-8s | %-25s | %-10s | %-9s | %-6s | %s\n", "Run", "Pipeline", "Started (UTC)", "Elapsed", "Succeeded", "Failed", "Cancelled")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, s := range summaries {
		fmt.Fprintf(w, "%-36s | %-8s | %-25s | %-10s | %-9d | %-6d | %d\n",
			s.RunID, s.Pipeline, s.Started.UTC().Format(time.RFC3339), s.Finished.Sub(s.Started).Round(time.Second), s.Succeeded, s.Failed, s.Cancelled)
	}
	fmt.Fprintf(w, "Displayed %d runs.\n", len(summaries))
	return nil
}
