// Package catalog records benchmark runs and their samples in a SQLite
// database (catalog.db) next to the results files.
package catalog

// CreateRunsTableSQL creates the runs table. One row per results file.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    engine TEXT NOT NULL,
    thermal TEXT NOT NULL,
    schema_variant TEXT NOT NULL,
    scale_factor TEXT NOT NULL,
    corpus_fingerprint TEXT NOT NULL,
    results_path TEXT NOT NULL UNIQUE,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    timeout_seconds INTEGER NOT NULL
)`

// CreateSamplesTableSQL creates the samples table. Unlike results files it
// keeps the status and error text of every query.
const CreateSamplesTableSQL = `
CREATE TABLE IF NOT EXISTS samples (
    run_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    query_name TEXT NOT NULL,
    status TEXT NOT NULL,
    latency_ms REAL NOT NULL,
    row_count INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, ordinal),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)`

// CreateIndexesSQL creates secondary indexes.
var CreateIndexesSQL = []string{
	// Newest-first listing
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_engine ON runs(engine, thermal)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateRunsTableSQL,
		CreateSamplesTableSQL,
	}
	statements = append(statements, CreateIndexesSQL...)
	return statements
}
