package cmd

import (
	"errors"
	"fmt"

	"github.com/XR-at-CISESS/lma-data/internal/db"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var (
		limit       int
		eventFilter string
		runFilter   string
		runs        bool
		exportPath  string
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "View the run log of batch events",
		Long: `Queries the DuckDB run log and displays batch events, newest first.
Use --runs for one line per run, --event and --run to filter, and --export to
copy the whole log to a Parquet file.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationRunLog: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := getLogger()
			dbConn := getDB()
			if dbConn == nil {
				return errors.New("the run log is disabled; set --db-path")
			}
			ctx := cmd.Context()

			if exportPath != "" {
				return db.ExportHistory(ctx, dbConn, exportPath, logger)
			}
			if runs {
				return db.DisplayRuns(ctx, dbConn, cmd.OutOrStdout(), limit, logger)
			}

			logger.Debug("Querying database event log", "event_filter", eventFilter, "run_filter", runFilter, "limit", limit)
			err := db.DisplayHistory(ctx, dbConn, cmd.OutOrStdout(), db.HistoryFilter{RunID: runFilter, Event: eventFilter, Limit: limit})
			if err != nil {
				return fmt.Errorf("display run log: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Limit the number of records displayed")
	cmd.Flags().StringVarP(&eventFilter, "event", "e", "", "Filter records by event (e.g. batch_failed, run_end)")
	cmd.Flags().StringVar(&runFilter, "run", "", "Filter records by run id (prefix)")
	cmd.Flags().BoolVar(&runs, "runs", false, "Show one line per run instead of events")
	cmd.Flags().StringVar(&exportPath, "export", "", "Copy the whole run log to this Parquet file")
	return cmd
}
