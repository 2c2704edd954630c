package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Constants for event types
const (
	EventRunStart       = "run_start"
	EventRunEnd         = "run_end"
	EventBatchStart     = "batch_start"
	EventBatchEnd       = "batch_end"
	EventBatchFailed    = "batch_failed"
	EventBatchCancelled = "batch_cancelled"
	EventBatchRetry     = "batch_retry"
	EventSpawnError     = "spawn_error"
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS lma_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS lma_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('lma_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    pipeline        VARCHAR NOT NULL,      -- 'batch', 'flash', 'plot'
    batch_key       VARCHAR,               -- network/timestamp of the batch, empty for run events
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    exit_code       INTEGER,
    file_count      INTEGER,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_lma_event_log_run ON lma_event_log (run_id);
CREATE INDEX IF NOT EXISTS idx_lma_event_log_event_time ON lma_event_log (event, event_timestamp);
`

// Open connects to the DuckDB file at path (":memory:" allowed) and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database (%s): %w", path, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping duckdb database (%s): %w", path, err)
	}
	if err := InitializeSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return conn, nil
}

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// Event is one row of the run log.
type Event struct {
	RunID     string
	Pipeline  string
	BatchKey  string
	Event     string
	Timestamp time.Time
	ExitCode  *int
	FileCount int
	Message   string
	Duration  *time.Duration
}

// LogEvent inserts a new event record into the log.
func LogEvent(ctx context.Context, db *sql.DB, ev Event) error {
	query := `
        INSERT INTO lma_event_log (run_id, pipeline, batch_key, event, event_timestamp, exit_code, file_count, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if ev.Duration != nil {
		durationMs = sql.NullInt64{Int64: ev.Duration.Milliseconds(), Valid: true}
	}
	var exitCode sql.NullInt32
	if ev.ExitCode != nil {
		exitCode = sql.NullInt32{Int32: int32(*ev.ExitCode), Valid: true}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.ExecContext(ctx, query,
		ev.RunID,
		ev.Pipeline,
		sql.NullString{String: ev.BatchKey, Valid: ev.BatchKey != ""},
		ev.Event,
		ts.UTC(),
		exitCode,
		sql.NullInt32{Int32: int32(ev.FileCount), Valid: ev.FileCount > 0},
		sql.NullString{String: ev.Message, Valid: ev.Message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", ev.Event, ev.BatchKey, err)
	}
	return nil
}

// HistoryFilter narrows QueryEvents. Zero values mean no restriction. RunID
// matches as a prefix, so the short ids DisplayHistory prints work.
type HistoryFilter struct {
	RunID string
	Event string
	Limit int
}

// QueryEvents returns logged events, newest first.
func QueryEvents(ctx context.Context, db *sql.DB, f HistoryFilter) ([]Event, error) {
	query := `
        SELECT run_id, pipeline, batch_key, event, event_timestamp, exit_code, file_count, message, duration_ms
        FROM lma_event_log
    `
	conditions := []string{}
	args := []any{}
	if f.RunID != "" {
		conditions = append(conditions, "starts_with(run_id, ?)")
		args = append(args, f.RunID)
	}
	if f.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, f.Event)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var batchKey, message sql.NullString
		var exitCode, fileCount sql.NullInt32
		var durationMs sql.NullInt64
		if err := rows.Scan(&ev.RunID, &ev.Pipeline, &batchKey, &ev.Event, &ev.Timestamp, &exitCode, &fileCount, &message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan event log row: %w", err)
		}
		ev.BatchKey = batchKey.String
		ev.Message = message.String
		ev.FileCount = int(fileCount.Int32)
		if exitCode.Valid {
			code := int(exitCode.Int32)
			ev.ExitCode = &code
		}
		if durationMs.Valid {
			d := time.Duration(durationMs.Int64) * time.Millisecond
			ev.Duration = &d
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log rows: %w", err)
	}
	return events, nil
}

// DisplayHistory prints the event log as a fixed-width table.
func DisplayHistory(ctx context.Context, db *sql.DB, w io.Writer, f HistoryFilter) error {
	events, err := QueryEvents(ctx, db, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", f.Limit)
	fmt.Fprintf(w, "%-8s | %-8s | %-22s | %-15s | %-25s | %-5s | %-10s | %s\n", "Run", "Pipeline", "Batch", "Event", "Timestamp (UTC)", "Exit", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, ev := range events {
		exit := ""
		if ev.ExitCode != nil {
			exit = fmt.Sprintf("%d", *ev.ExitCode)
		}
		duration := ""
		if ev.Duration != nil {
			duration = fmt.Sprintf("%d", ev.Duration.Milliseconds())
		}
		details := ev.Message
		if ev.FileCount > 0 {
			details = strings.TrimSpace(fmt.Sprintf("%s (%d files)", details, ev.FileCount))
		}
		fmt.Fprintf(w, "%-8s | %-8s | %-22s | %-15s | %-25s | %-5s | %-10s | %s\n",
			shortID(ev.RunID), ev.Pipeline, ev.BatchKey, ev.Event, ev.Timestamp.UTC().Format(time.RFC3339), exit, duration, details)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
