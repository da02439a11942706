// Package storage provides durable backends for admission analytics.
//
// Two implementations are available:
//
//   - SQLiteStorage: the production backend, using WAL mode for
//     concurrent read access while the single drain worker writes.
//     Either the cgo driver (mattn/go-sqlite3) or the pure-Go driver
//     (modernc.org/sqlite) can be selected at construction time.
//   - MemoryStorage: an in-process backend for tests and for hosts
//     that do not want an analytics database on disk.
//
// Both satisfy the analytics.Storage interface.
package storage
