package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - request admission control service",
	Long: `Ganymede is a request admission control service that guards an HTTP
API surface with tiered fixed-window rate limiting.

It provides:
  - Pattern-based endpoint tiers with multi-window rate limits
  - Per-identity and global counting scopes
  - Counter store memory monitoring with warning and critical alerts
  - Asynchronous violation recording and query sampling
  - Scheduled cache-hit-potential reports over sampled queries

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
