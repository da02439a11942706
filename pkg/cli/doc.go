/*
Package cli provides command-line interface utilities for Ganymede.

The cli package includes output formatters, signal handling, and common
error types used by the ganymede command.

Output Formatting:

Command results can be rendered as text, JSON, or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, records); err != nil {
		return err
	}

CSV output is row-oriented: pass [][]string rows and set Headers on the
CSVFormatter for the header line.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
