// Package analytics defines the shared types and storage contract for
// admission analytics: rate limit violation history, database query
// duplication samples, and the derived cache-hit-potential reports.
//
// The package is split by concern:
//
//   - analytics (this package): record types, query filters, errors,
//     and the Storage interface
//   - analytics/recorder: the non-blocking ingest queue and its single
//     drain worker
//   - analytics/storage: durable SQLite storage plus an in-memory
//     backend for tests
//   - analytics/report: cache-hit-potential report generation,
//     scheduling, and retention pruning
//   - analytics/queryhash: query template normalization and hashing
//
// Nothing in this package runs on the admission hot path. Ingest is
// fire-and-forget; persistence and reporting happen on background
// workers.
package analytics
