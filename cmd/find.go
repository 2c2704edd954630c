package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/batcher"
	"github.com/XR-at-CISESS/lma-data/internal/browser"
	"github.com/XR-at-CISESS/lma-data/internal/export"
	"github.com/XR-at-CISESS/lma-data/internal/lmafile"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newFindCmd() *cobra.Command {
	var (
		dates      dateFlags
		group      bool
		pretty     bool
		catalog    bool
		match      string
		exportPath string
	)
	filters := []browser.Filter[lmafile.StationFile]{
		browser.DateFilter[lmafile.StationFile]{},
		browser.NetworkFilter[lmafile.StationFile]("n"),
		browser.StationFilter("s"),
	}

	cmd := &cobra.Command{
		Use:   "find [dataDir]",
		Short: "List raw station files matching the filters",
		Long: `Lists raw LMA station files under dataDir (default $LMA_DATA_DIR), sorted by
timestamp. Invalid dates are ignored with a warning.

Output is one path per line, one comma separated line per timestamp with
--group, a table per timestamp with --pretty or a per station overview with
--catalog. --export additionally writes the listing to a Parquet file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			logger := getLogger()
			dataDir := cfg.DataDir
			if len(args) > 0 {
				dataDir = args[0]
			}

			dr, err := dates.resolve(false, logger)
			if err != nil {
				return err
			}
			bargs := &browser.Args{Dates: dr}
			if err := browser.ReadFilterFlags(cmd.Flags(), bargs, filters...); err != nil {
				return err
			}
			active := filters
			if match != "" {
				re, err := browser.NewRegexFilter[lmafile.StationFile](match)
				if err != nil {
					return fmt.Errorf("invalid --match pattern: %w", err)
				}
				active = append(slices.Clip(filters), re)
			}

			records, stats, err := browser.New(lmafile.ParseStation).
				WithFilters(active...).
				WithLogger(logger).
				FindWithStats(cmd.Context(), dataDir, bargs)
			if err != nil {
				return err
			}
			getMetrics().ObserveDiscovery(stats.Seen, stats.Parsed, stats.Kept)
			lmafile.Sort(records)
			logger.Debug("Find complete.", slog.String("data_dir", dataDir), slog.Int("seen", stats.Seen), slog.Int("found", len(records)))

			if exportPath != "" {
				if err := export.WriteInventory(exportPath, records, logger); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			switch {
			case catalog:
				writeCatalog(w, browser.NewCatalog(records))
			case pretty:
				writePretty(w, records, group)
			case group:
				writeGrouped(w, records)
			default:
				writePlain(w, records)
			}
			return nil
		},
	}

	dates.bind(cmd.Flags())
	browser.BindFilterFlags(cmd.Flags(), filters...)
	cmd.Flags().BoolVarP(&group, "group", "g", false, "Print the files of each timestamp on one comma separated line")
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "Print a table (one section per timestamp with --group)")
	cmd.Flags().BoolVar(&catalog, "catalog", false, "Print networks and stations with their file counts and time spans")
	cmd.Flags().StringVar(&match, "match", "", "Only list files whose path matches this regular expression")
	cmd.Flags().StringVar(&exportPath, "export", "", "Also write the listing to this Parquet file")
	return cmd
}

func writePlain(w io.Writer, records []lmafile.StationFile) {
	for _, r := range records {
		fmt.Fprintln(w, r.Path())
	}
}

func writeGrouped(w io.Writer, records []lmafile.StationFile) {
	for _, batch := range batcher.ByInstant(records) {
		paths := make([]string, len(batch))
		for i, r := range batch {
			paths[i] = r.Path()
		}
		fmt.Fprintln(w, strings.Join(paths, ","))
	}
}

// writePretty prints one table, or a titled table per timestamp when grouped.
func writePretty(w io.Writer, records []lmafile.StationFile, group bool) {
	if !group {
		fmt.Fprintln(w, stationTable(records, true).Render())
		return
	}
	for i, batch := range batcher.ByInstant(records) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		heading := fmt.Sprintf("%s  (%d files)", batch[0].Timestamp().Format(time.DateTime), len(batch))
		fmt.Fprintln(w, sectionStyle.Render(heading))
		fmt.Fprintln(w, stationTable(batch, false).Render())
	}
}

func stationTable(records []lmafile.StationFile, withTime bool) *table.Table {
	headers := []string{"Network", "ID", "Station", "File"}
	if withTime {
		headers = append([]string{"Time"}, headers...)
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		row := []string{r.Network(), r.ID, r.StationName, filepath.Base(r.Path())}
		if withTime {
			row = append([]string{r.Timestamp().Format(time.DateTime)}, row...)
		}
		rows[i] = row
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
}

func writeCatalog(w io.Writer, c *browser.Catalog) {
	for _, network := range c.Networks() {
		stations := c.Stations(network)
		fmt.Fprintln(w, sectionStyle.Render(fmt.Sprintf("%s: %d stations", network, len(stations))))
		for _, id := range stations {
			files := c.Station(network, id)
			first, last := files[0].Timestamp(), files[len(files)-1].Timestamp()
			fmt.Fprintf(w, "  %-3s %-20s %5d files  %s .. %s\n",
				id, files[0].StationName, len(files), first.Format(time.DateTime), last.Format(time.DateTime))
		}
	}
	fmt.Fprintf(w, "%d files\n", c.Len())
}
