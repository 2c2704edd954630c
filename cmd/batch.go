package cmd

import (
	"github.com/XR-at-CISESS/lma-data/internal/lmafile"

	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	return newPipelineCmd(analysisProfile(), &cobra.Command{
		Use:   "batch [dataDir] [outDir] [-- worker args]",
		Short: "Run lma_analysis over raw station files, one process per instant",
		Long: `Finds raw station files under dataDir, groups them by timestamp and runs
one lma_analysis process per group:

  lma_analysis -d YYYYMMDD -t HHMMSS [-s seconds] -o outDir [worker args] files...

Timestamps that already have analysis output in outDir are skipped unless
--no-cache is given. Directories default to $LMA_DATA_DIR and $LMA_OUT_DIR.
Arguments after -- are passed to every worker.`,
	})
}

func newFlashCmd() *cobra.Command {
	return newPipelineCmd(flashProfile(), &cobra.Command{
		Use:   "flash [dataDir] [outDir] [-- worker args]",
		Short: "Run lma_flash over analysis output, one process per network and instant",
		Long: `Finds analysis output (*.gz) under dataDir, drops files smaller than
--min-size, groups the rest by network and timestamp and runs one lma_flash
process per group. Timestamps with gridded output in outDir are skipped
unless --no-cache is given.`,
	})
}

func newPlotCmd() *cobra.Command {
	return newPipelineCmd(plotProfile(), &cobra.Command{
		Use:   "plot [dataDir] [outDir] [-- renderer args]",
		Short: "Render every gridded source file with lma_plot",
		Long: `Finds gridded flash products (*source_3d.nc) under dataDir and runs one
lma_plot process per file.`,
	})
}

// newPipelineCmd completes cmd with the run flags, the profile's filter flags
// and a RunE that executes the pipeline once.
func newPipelineCmd[T lmafile.Record](p profile[T], cmd *cobra.Command) *cobra.Command {
	rf := &runFlags{}
	cmd.Args = runArgs
	cmd.Annotations = map[string]string{annotationRunLog: "true"}
	rf.bind(cmd.Flags())
	bindFilterFlags(cmd.Flags(), p)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		run, err := newPipelineRun(cmd, p, rf, args)
		if err != nil {
			return err
		}
		ctx, sd, stop := withShutdown(cmd.Context(), run.logger)
		defer stop()

		summary, err := run.execute(ctx, sd)
		if err != nil {
			return err
		}
		if summary.Total > 0 && !run.dryRun {
			run.logger.Info("Pipeline completed successfully.", "batches", summary.Total, "elapsed", summary.Duration)
		}
		return nil
	}
	return cmd
}
