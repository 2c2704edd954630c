package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/watch"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	p := analysisProfile()
	rf := &runFlags{}
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [dataDir] [outDir] [-- worker args]",
		Short: "Run batch, then again whenever new station files arrive",
		Long: `Runs the batch pipeline once, then watches dataDir and runs it again after
new files stopped arriving for --debounce. The output cache makes each rerun
process only the new timestamps. Stop with Ctrl+C.`,
		Args:        runArgs,
		Annotations: map[string]string{annotationRunLog: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newPipelineRun(cmd, p, rf, args)
			if err != nil {
				return err
			}
			ctx, sd, stop := withShutdown(cmd.Context(), run.logger)
			defer stop()

			w, err := watch.New(run.dataDir, watch.WithDebounce(debounce), watch.WithLogger(run.logger))
			if err != nil {
				return err
			}
			run.logger.Info("Watching for new files.", "data_dir", run.dataDir, "debounce", debounce)

			err = w.Run(ctx, func(ctx context.Context) error {
				_, err := run.execute(ctx, sd)
				return err
			})
			if errors.Is(err, context.Canceled) {
				run.logger.Info("Stopped watching.")
				return nil
			}
			return err
		},
	}
	rf.bind(cmd.Flags())
	bindFilterFlags(cmd.Flags(), p)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period after the last new file before rerunning")
	return cmd
}
