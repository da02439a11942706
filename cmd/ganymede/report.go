package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/analytics/report"
	"mercator-hq/ganymede/pkg/cli"
)

var reportFlags struct {
	backend   string
	timeRange string
	window    time.Duration
	top       int
	latest    bool
	format    string
	output    string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate or show a cache analysis report",
	Long: `Generate a cache-hit-potential report from sampled queries, or show
the latest stored report.

The report aggregates query samples by normalized query hash and ranks
templates by the latency a perfect cache would have saved.

Examples:
  # Generate a report for the last 24 hours
  ganymede report

  # Generate over an explicit period
  ganymede report --time-range "2026-08-30T00:00:00Z/2026-08-31T00:00:00Z"

  # Show the latest stored report without computing a new one
  ganymede report --latest

  # Export to JSON
  ganymede report --format json --output report.json`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
	reportCmd.Flags().StringVar(&reportFlags.timeRange, "time-range", "", "report period (RFC3339 interval: start/end)")
	reportCmd.Flags().DurationVar(&reportFlags.window, "window", 24*time.Hour, "report window when no time range is given")
	reportCmd.Flags().IntVar(&reportFlags.top, "top", 20, "max ranked candidates")
	reportCmd.Flags().BoolVar(&reportFlags.latest, "latest", false, "show the latest stored report instead of generating")
	reportCmd.Flags().StringVar(&reportFlags.format, "format", "text", "output format: text, json")
	reportCmd.Flags().StringVarP(&reportFlags.output, "output", "o", "", "output file (default: stdout)")
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := openAnalyticsStorage(reportFlags.backend)
	if err != nil {
		return cli.NewCommandError("report", err)
	}
	defer store.Close()

	ctx := context.Background()

	var rep *analytics.CacheAnalysisReport
	if reportFlags.latest {
		rep, err = store.LatestReport(ctx)
		if errors.Is(err, analytics.ErrNoReport) {
			fmt.Println("No report has been generated yet.")
			return nil
		}
		if err != nil {
			return cli.NewCommandError("report", err)
		}
	} else {
		generator := report.NewGenerator(store, &report.GeneratorConfig{
			Window:        reportFlags.window,
			TopCandidates: reportFlags.top,
		})
		if reportFlags.timeRange != "" {
			start, end, err := parseTimeRange(reportFlags.timeRange)
			if err != nil {
				return cli.NewCommandError("report", err)
			}
			rep, err = generator.Generate(ctx, start, end)
			if err != nil {
				return cli.NewCommandError("report", err)
			}
		} else {
			rep, err = generator.GenerateLatest(ctx)
			if err != nil {
				return cli.NewCommandError("report", err)
			}
		}
	}

	out := os.Stdout
	if reportFlags.output != "" {
		f, err := os.Create(reportFlags.output)
		if err != nil {
			return cli.NewCommandError("report", err)
		}
		defer f.Close()
		out = f
	}

	if cli.OutputFormat(reportFlags.format) == cli.FormatJSON {
		formatter := &cli.JSONFormatter{Indent: true}
		return formatter.FormatTo(out, rep)
	}

	fmt.Fprintf(out, "Cache Analysis Report %s\n", rep.ID)
	fmt.Fprintf(out, "Period:          %s to %s\n",
		rep.PeriodStart.Format(time.RFC3339), rep.PeriodEnd.Format(time.RFC3339))
	fmt.Fprintf(out, "Generated:       %s\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Total queries:   %d\n", rep.TotalQueries)
	fmt.Fprintf(out, "Unique queries:  %d\n", rep.UniqueQueries)
	fmt.Fprintf(out, "Duplicate ratio: %.2f\n", rep.DuplicateRatio)
	if len(rep.Candidates) > 0 {
		fmt.Fprintf(out, "\nTop cache candidates:\n")
		for i, c := range rep.Candidates {
			fmt.Fprintf(out, "  %2d. %-16s count=%d duplicates=%d avg=%s savings=%s\n",
				i+1, c.QueryHash, c.Count, c.DuplicateCount, c.AvgExecutionTime, c.EstimatedSavings)
		}
	}
	return nil
}
