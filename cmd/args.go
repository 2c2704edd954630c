package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/config"
	"github.com/XR-at-CISESS/lma-data/internal/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// dateShorthands are the two-letter short forms of the range flags. pflag
// only supports single-letter shorthands, so they are rewritten before
// parsing.
var dateShorthands = map[string]string{
	"-sd": "--start-date",
	"-ed": "--end-date",
}

// normalizeArgs rewrites -sd and -ed (also in their -sd=value form) into the
// long flags. Everything after "--" is left untouched.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if long, ok := dateShorthands[name]; ok {
			arg = long
			if hasValue {
				arg += "=" + value
			}
		}
		out = append(out, arg)
	}
	return out
}

// dateFlags are the -sd/-ed/-d trio shared by every command that filters by
// date.
type dateFlags struct {
	start string
	end   string
	exact string
}

const dateHelp = "YYYY-MM-DDTHH:MM:SS, UTC"

func (d *dateFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&d.start, "start-date", "", "Earliest file timestamp to include ("+dateHelp+"; short form -sd)")
	fs.StringVar(&d.end, "end-date", "", "Latest file timestamp to include ("+dateHelp+"; short form -ed)")
	fs.StringVarP(&d.exact, "date", "d", "", "Only include files with exactly this timestamp ("+dateHelp+"); conflicts with the range")
}

// resolve builds the date range. Strict commands fail on unparsable dates;
// lenient ones log a warning and ignore the value.
func (d dateFlags) resolve(strict bool, logger *slog.Logger) (util.DateRange, error) {
	dates, warnings, err := util.ResolveDateRange(d.start, d.end, d.exact, strict)
	for _, w := range warnings {
		logger.Warn("Ignoring invalid date.", "error", w)
	}
	if err != nil {
		return util.DateRange{}, err
	}
	return dates, nil
}

// runFlags are shared by the commands that spawn workers. Values only
// override the configuration when given on the command line.
type runFlags struct {
	dates    dateFlags
	workers  int
	silent   bool
	worker   string
	duration int
	retries  int
	timeout  time.Duration
	grace    time.Duration
	progress string
	dryRun   bool
}

func (f *runFlags) bind(fs *pflag.FlagSet) {
	defaults := config.Default()
	f.dates.bind(fs)
	fs.IntVarP(&f.workers, "num_workers", "n", defaults.NumWorkers, "Number of worker processes to run at once")
	fs.BoolVarP(&f.silent, "silent", "s", false, "Do not print worker output")
	fs.StringVar(&f.worker, "worker", "", "Worker executable (default from config)")
	fs.IntVar(&f.duration, "duration", 0, "Seconds of data per batch, passed to the worker as -s (0 omits it)")
	fs.IntVar(&f.retries, "retries", 0, "Re-run a batch this many times after a non-zero exit")
	fs.DurationVar(&f.timeout, "timeout", 0, "Terminate a worker that runs longer than this (0 disables)")
	fs.DurationVar(&f.grace, "kill-grace", defaults.KillGrace, "Kill a timed out worker that is still running this long after SIGTERM")
	fs.StringVar(&f.progress, "progress", config.DefaultProgress, "Progress display: auto, tui, bar or log")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the worker command lines instead of running them")
}

// apply copies the flags that were set onto cfg.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("num_workers") {
		cfg.NumWorkers = f.workers
	}
	if fs.Changed("silent") {
		cfg.Silent = f.silent
	}
	if fs.Changed("duration") {
		cfg.Duration = f.duration
	}
	if fs.Changed("retries") {
		cfg.Retries = f.retries
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fs.Changed("kill-grace") {
		cfg.KillGrace = f.grace
	}
	if fs.Changed("progress") {
		cfg.Progress = f.progress
	}
}

// runArgs accepts at most a data and an output directory before "--" and
// anything after it.
func runArgs(cmd *cobra.Command, args []string) error {
	positional := len(args)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional = dash
	}
	if positional > 2 {
		return fmt.Errorf("accepts at most 2 directories before --, received %d", positional)
	}
	return nil
}

// splitRunArgs separates the directories from the worker arguments forwarded
// after "--". Missing directories come from cfg, which carries the LMA_DATA_DIR
// and LMA_OUT_DIR defaults.
func splitRunArgs(cmd *cobra.Command, args []string, cfg config.Config) (dataDir, outDir string, forwarded []string) {
	positional := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional = args[:dash]
		forwarded = args[dash:]
	}
	dataDir, outDir = cfg.DataDir, cfg.OutDir
	if len(positional) > 0 {
		dataDir = positional[0]
	}
	if len(positional) > 1 {
		outDir = positional[1]
	}
	return dataDir, outDir, forwarded
}
