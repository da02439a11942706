package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/cli"
)

var violationsFlags struct {
	backend   string
	timeRange string
	endpoint  string
	identity  string
	tier      string
	limit     int
	offset    int
	format    string
	output    string
}

var violationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "Query recorded rate limit violations",
	Long: `Query the violation history recorded by the analytics pipeline.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-30T00:00:00Z/2026-08-31T00:00:00Z"

Examples:
  # Query a time range
  ganymede violations --time-range "2026-08-30T00:00:00Z/2026-08-31T00:00:00Z"

  # Filter by identity and tier
  ganymede violations --identity "user:alice" --tier expensive

  # Export to CSV
  ganymede violations --format csv --output violations.csv`,
	RunE: queryViolations,
}

func init() {
	rootCmd.AddCommand(violationsCmd)

	violationsCmd.Flags().StringVar(&violationsFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
	violationsCmd.Flags().StringVar(&violationsFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	violationsCmd.Flags().StringVar(&violationsFlags.endpoint, "endpoint", "", "filter by endpoint identifier")
	violationsCmd.Flags().StringVar(&violationsFlags.identity, "identity", "", "filter by client identity")
	violationsCmd.Flags().StringVar(&violationsFlags.tier, "tier", "", "filter by tier name")
	violationsCmd.Flags().IntVar(&violationsFlags.limit, "limit", 100, "max results")
	violationsCmd.Flags().IntVar(&violationsFlags.offset, "offset", 0, "pagination offset")
	violationsCmd.Flags().StringVar(&violationsFlags.format, "format", "text", "output format: text, json, csv")
	violationsCmd.Flags().StringVarP(&violationsFlags.output, "output", "o", "", "output file (default: stdout)")
}

func queryViolations(cmd *cobra.Command, args []string) error {
	store, err := openAnalyticsStorage(violationsFlags.backend)
	if err != nil {
		return cli.NewCommandError("violations", err)
	}
	defer store.Close()

	query := &analytics.ViolationQuery{
		Endpoint: violationsFlags.endpoint,
		Identity: violationsFlags.identity,
		Tier:     violationsFlags.tier,
		Limit:    violationsFlags.limit,
		Offset:   violationsFlags.offset,
	}

	if violationsFlags.timeRange != "" {
		start, end, err := parseTimeRange(violationsFlags.timeRange)
		if err != nil {
			return cli.NewCommandError("violations", err)
		}
		query.StartTime = &start
		query.EndTime = &end
	}

	records, err := store.QueryViolations(context.Background(), query)
	if err != nil {
		return cli.NewCommandError("violations", fmt.Errorf("query failed: %w", err))
	}

	out := os.Stdout
	if violationsFlags.output != "" {
		f, err := os.Create(violationsFlags.output)
		if err != nil {
			return cli.NewCommandError("violations", err)
		}
		defer f.Close()
		out = f
	}

	switch cli.OutputFormat(violationsFlags.format) {
	case cli.FormatJSON:
		formatter := &cli.JSONFormatter{Indent: true}
		return formatter.FormatTo(out, records)

	case cli.FormatCSV:
		formatter := &cli.CSVFormatter{
			Headers: []string{"id", "timestamp", "endpoint", "identity", "tier", "window", "limit"},
		}
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.ID,
				r.Timestamp.Format(time.RFC3339),
				r.Endpoint,
				r.Identity,
				r.Tier,
				r.Window.String(),
				strconv.Itoa(r.LimitValue),
			})
		}
		return formatter.FormatTo(out, rows)

	default:
		if len(records) == 0 {
			fmt.Fprintln(out, "No violations found.")
			return nil
		}
		fmt.Fprintf(out, "Found %d violations:\n\n", len(records))
		for _, r := range records {
			fmt.Fprintf(out, "%s  %-24s  %-24s  tier=%s window=%s limit=%d\n",
				r.Timestamp.Format(time.RFC3339), r.Endpoint, r.Identity,
				r.Tier, r.Window, r.LimitValue)
		}
		return nil
	}
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return start, end, nil
}
