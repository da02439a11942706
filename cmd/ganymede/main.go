// Ganymede is a request admission control service: tiered rate
// limiting, counter store resource monitoring, and violation
// analytics.
//
// It guards an HTTP API surface with fixed-window rate limit tiers,
// watches the memory footprint of its counter store, and records every
// denial for offline analysis.
//
// Usage:
//
//	# Start server with default configuration
//	ganymede run
//
//	# Start with custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Show version information
//	ganymede version
//
//	# Validate a configuration file
//	ganymede validate --config /path/to/config.yaml
//
//	# Query recorded rate limit violations
//	ganymede violations --time-range "2026-08-30T00:00:00Z/2026-08-31T00:00:00Z"
//
//	# Generate a cache analysis report on demand
//	ganymede report
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
