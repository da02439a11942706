package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure-Go driver, registered as "sqlite"

	"mercator-hq/ganymede/pkg/analytics"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the registered database/sql driver: "sqlite3"
	// (cgo, mattn) or "sqlite" (pure Go, modernc).
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/analytics.db",
		Driver:       "sqlite3",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements analytics.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = "sqlite3"
	}

	logger := slog.Default().With("component", "analytics.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite analytics storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return analytics.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return analytics.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return analytics.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return analytics.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return analytics.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return analytics.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// StoreViolations persists a batch of violation records in a single
// transaction.
func (s *SQLiteStorage) StoreViolations(ctx context.Context, records []*analytics.ViolationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_violations", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (
			id, timestamp, endpoint, identity, tier,
			window_seconds, current_count, limit_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_violations", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp, r.Endpoint, r.Identity, r.Tier,
			int64(r.Window.Seconds()), r.CurrentCount, r.LimitValue,
		)
		if err != nil {
			return analytics.NewStorageError("sqlite", "store_violations", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return analytics.NewStorageError("sqlite", "store_violations", err)
	}
	return nil
}

// StoreQuerySamples persists a batch of query log entries in a single
// transaction.
func (s *SQLiteStorage) StoreQuerySamples(ctx context.Context, entries []*analytics.QueryLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_query_samples", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO query_log (
			timestamp, endpoint, query_hash, execution_time_us, result_size
		) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_query_samples", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.Timestamp, e.Endpoint, e.QueryHash,
			e.ExecutionTime.Microseconds(), e.ResultSize,
		)
		if err != nil {
			return analytics.NewStorageError("sqlite", "store_query_samples", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return analytics.NewStorageError("sqlite", "store_query_samples", err)
	}
	return nil
}

// QueryViolations returns violation records matching the filters,
// newest first.
func (s *SQLiteStorage) QueryViolations(ctx context.Context, q *analytics.ViolationQuery) ([]*analytics.ViolationRecord, error) {
	if q == nil {
		q = &analytics.ViolationQuery{}
	}

	sqlQuery := `
		SELECT id, timestamp, endpoint, identity, tier,
		       window_seconds, current_count, limit_value
		FROM violations
	`
	whereClause, args := buildViolationWhere(q)
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY timestamp DESC"

	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "query_violations", err)
	}
	defer rows.Close()

	records := []*analytics.ViolationRecord{}
	for rows.Next() {
		var r analytics.ViolationRecord
		var windowSeconds int64
		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Endpoint, &r.Identity, &r.Tier,
			&windowSeconds, &r.CurrentCount, &r.LimitValue,
		)
		if err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		r.Window = time.Duration(windowSeconds) * time.Second
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "query_violations", err)
	}

	return records, nil
}

// QuerySamples returns all query samples with timestamps in
// [start, end), oldest first.
func (s *SQLiteStorage) QuerySamples(ctx context.Context, start, end time.Time) ([]*analytics.QueryLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, endpoint, query_hash, execution_time_us, result_size
		FROM query_log
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, start, end)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "query_samples", err)
	}
	defer rows.Close()

	entries := []*analytics.QueryLogEntry{}
	for rows.Next() {
		var e analytics.QueryLogEntry
		var executionUs int64
		err := rows.Scan(&e.Timestamp, &e.Endpoint, &e.QueryHash, &executionUs, &e.ResultSize)
		if err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		e.ExecutionTime = time.Duration(executionUs) * time.Microsecond
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "query_samples", err)
	}

	return entries, nil
}

// StoreReport persists a generated cache analysis report. Candidates
// are stored as a JSON column; the report is read back whole, never
// filtered by candidate.
func (s *SQLiteStorage) StoreReport(ctx context.Context, report *analytics.CacheAnalysisReport) error {
	candidates, err := json.Marshal(report.Candidates)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_report", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_reports (
			id, period_start, period_end, generated_at,
			total_queries, unique_queries, duplicate_ratio, candidates
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID, report.PeriodStart, report.PeriodEnd, report.GeneratedAt,
		report.TotalQueries, report.UniqueQueries, report.DuplicateRatio,
		string(candidates),
	)
	if err != nil {
		return analytics.NewStorageError("sqlite", "store_report", err)
	}
	return nil
}

// LatestReport returns the most recently generated report.
func (s *SQLiteStorage) LatestReport(ctx context.Context) (*analytics.CacheAnalysisReport, error) {
	var report analytics.CacheAnalysisReport
	var candidates string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, period_start, period_end, generated_at,
		       total_queries, unique_queries, duplicate_ratio, candidates
		FROM cache_reports
		ORDER BY generated_at DESC
		LIMIT 1
	`).Scan(
		&report.ID, &report.PeriodStart, &report.PeriodEnd, &report.GeneratedAt,
		&report.TotalQueries, &report.UniqueQueries, &report.DuplicateRatio,
		&candidates,
	)
	if err == sql.ErrNoRows {
		return nil, analytics.ErrNoReport
	}
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "latest_report", err)
	}

	if err := json.Unmarshal([]byte(candidates), &report.Candidates); err != nil {
		return nil, analytics.NewStorageError("sqlite", "latest_report", err)
	}
	return &report, nil
}

// Prune deletes violation and query sample rows older than cutoff.
func (s *SQLiteStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM violations WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, analytics.NewStorageError("sqlite", "prune", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM query_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return total, analytics.NewStorageError("sqlite", "prune", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// Close releases the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return analytics.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite analytics storage closed")
	return nil
}

// buildViolationWhere builds a SQL WHERE clause from query filters.
// Returns the clause (without "WHERE") and its arguments.
func buildViolationWhere(q *analytics.ViolationQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *q.StartTime)
	}
	if q.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *q.EndTime)
	}
	if q.Endpoint != "" {
		conditions = append(conditions, "endpoint = ?")
		args = append(args, q.Endpoint)
	}
	if q.Identity != "" {
		conditions = append(conditions, "identity = ?")
		args = append(args, q.Identity)
	}
	if q.Tier != "" {
		conditions = append(conditions, "tier = ?")
		args = append(args, q.Tier)
	}

	whereClause := ""
	for i, condition := range conditions {
		if i > 0 {
			whereClause += " AND "
		}
		whereClause += condition
	}
	return whereClause, args
}
