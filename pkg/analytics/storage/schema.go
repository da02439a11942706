package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the analytics schema.
const Schema = `
-- Rate limit violation history
CREATE TABLE IF NOT EXISTS violations (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    endpoint TEXT NOT NULL,
    identity TEXT NOT NULL,
    tier TEXT NOT NULL,
    window_seconds INTEGER NOT NULL,
    current_count INTEGER NOT NULL,
    limit_value INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_violations_timestamp ON violations(timestamp);
CREATE INDEX IF NOT EXISTS idx_violations_endpoint ON violations(endpoint);
CREATE INDEX IF NOT EXISTS idx_violations_identity ON violations(identity);

-- Query duplication samples
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TIMESTAMP NOT NULL,
    endpoint TEXT NOT NULL,
    query_hash TEXT NOT NULL,
    execution_time_us INTEGER NOT NULL,
    result_size INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_timestamp ON query_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_query_log_hash ON query_log(query_hash);

-- Generated cache analysis reports
CREATE TABLE IF NOT EXISTS cache_reports (
    id TEXT PRIMARY KEY,
    period_start TIMESTAMP NOT NULL,
    period_end TIMESTAMP NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    total_queries INTEGER NOT NULL,
    unique_queries INTEGER NOT NULL,
    duplicate_ratio REAL NOT NULL,
    candidates TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_reports_generated ON cache_reports(generated_at);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version if not already present.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?);`

// GetSchemaVersion retrieves the latest applied schema version.
const GetSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`
