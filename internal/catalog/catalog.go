package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// Catalog stores run metadata.
type Catalog interface {
	// RegisterRun records a run and its samples. Registering the same
	// results path again returns the existing run id, unless rec carries a
	// different run id, in which case the new run replaces the old one.
	RegisterRun(ctx context.Context, rec *RunRecord, samples []types.Sample) (types.RunID, error)

	// GetRun retrieves a single run by id.
	GetRun(ctx context.Context, id types.RunID) (*RunRecord, error)

	// ResolveRun retrieves a run by full or short id.
	ResolveRun(ctx context.Context, ref string) (*RunRecord, error)

	// FindByPath retrieves the run that produced a results file.
	FindByPath(ctx context.Context, resultsPath string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Samples returns the samples of a run in execution order.
	Samples(ctx context.Context, id types.RunID) ([]types.Sample, error)

	// Close closes the catalog database connection.
	Close() error
}

// RunRecord describes one completed execute step.
type RunRecord struct {
	RunID             types.RunID
	Label             string
	Engine            string
	Thermal           string
	SchemaVariant     string
	ScaleFactor       string
	CorpusFingerprint string
	ResultsPath       string
	StartedAt         time.Time
	FinishedAt        time.Time
	TimeoutSeconds    int
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	dbPath string
	mu     sync.Mutex // Write-only lock
}

// NewCatalog opens or creates the catalog database at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "initialize schema", err)
	}
	return c, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RegisterRun records a run and its samples in one transaction.
func (c *SQLiteCatalog) RegisterRun(ctx context.Context, rec *RunRecord, samples []types.Sample) (types.RunID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := canonicalPath(rec.ResultsPath)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "begin transaction", err)
	}
	defer tx.Rollback()

	// One row per results file. Re-registering the same run is a no-op; a
	// different run that rewrote the file replaces the old row.
	var existing string
	err = tx.QueryRowContext(ctx, "SELECT run_id FROM runs WHERE results_path = ?", path).Scan(&existing)
	switch {
	case err == nil:
		if rec.RunID == "" || string(rec.RunID) == existing {
			return types.RunID(existing), nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM samples WHERE run_id = ?", existing); err != nil {
			return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "replace samples", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", existing); err != nil {
			return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "replace run", err)
		}
	case err != sql.ErrNoRows:
		return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "check results path", err)
	}

	id := rec.RunID
	if id == "" {
		id = types.NewRunID()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, label, engine, thermal, schema_variant, scale_factor,
			corpus_fingerprint, results_path, started_at, finished_at, timeout_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(id), rec.Label, rec.Engine, rec.Thermal, rec.SchemaVariant, rec.ScaleFactor,
		rec.CorpusFingerprint, path, rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.TimeoutSeconds,
	)
	if err != nil {
		return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, ordinal, query_name, status, latency_ms, row_count, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "prepare sample insert", err)
	}
	defer stmt.Close()

	for i, s := range samples {
		if _, err := stmt.ExecContext(ctx, string(id), i, s.QueryName, s.Status.String(), s.LatencyMS, s.Rows, s.Reason); err != nil {
			return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite,
				fmt.Sprintf("insert sample %s", s.QueryName), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "commit", err)
	}
	return id, nil
}

const selectRunSQL = `
	SELECT run_id, label, engine, thermal, schema_variant, scale_factor,
	       corpus_fingerprint, results_path, started_at, finished_at, timeout_seconds
	FROM runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var rec RunRecord
	var id string
	var started, finished int64
	if err := row.Scan(&id, &rec.Label, &rec.Engine, &rec.Thermal, &rec.SchemaVariant, &rec.ScaleFactor,
		&rec.CorpusFingerprint, &rec.ResultsPath, &started, &finished, &rec.TimeoutSeconds); err != nil {
		return nil, err
	}
	rec.RunID = types.RunID(id)
	rec.StartedAt = time.Unix(0, started)
	rec.FinishedAt = time.Unix(0, finished)
	return &rec, nil
}

// GetRun retrieves a single run by id.
func (c *SQLiteCatalog) GetRun(ctx context.Context, id types.RunID) (*RunRecord, error) {
	rec, err := scanRun(c.db.QueryRowContext(ctx, selectRunSQL+" WHERE run_id = ?", string(id)))
	if err == sql.ErrNoRows {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeRunNotFound, fmt.Sprintf("run %s not found", id), nil)
	}
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "get run", err)
	}
	return rec, nil
}

// ResolveRun finds a run by its full id or by the short id the run listing
// shows. A short id matching more than one run is rejected.
func (c *SQLiteCatalog) ResolveRun(ctx context.Context, ref string) (*RunRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue, "run id is empty")
	}
	if rec, err := c.GetRun(ctx, types.RunID(ref)); benchErrors.GetCode(err) != benchErrors.CodeRunNotFound {
		return rec, err
	}

	prefix := strings.ReplaceAll(ref, "-", "")
	rows, err := c.db.QueryContext(ctx,
		selectRunSQL+" WHERE replace(run_id, '-', '') LIKE ? || '%' ORDER BY started_at DESC LIMIT 2", prefix)
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "resolve run", err)
	}
	defer rows.Close()

	var found []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "scan run", err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "resolve run", err)
	}

	switch len(found) {
	case 0:
		return nil, benchErrors.NewCatalogError(benchErrors.CodeRunNotFound, fmt.Sprintf("run %s not found", ref), nil)
	case 1:
		return found[0], nil
	default:
		return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue,
			fmt.Sprintf("run id %s is ambiguous, give more characters", ref))
	}
}

// FindByPath retrieves the run that produced a results file.
func (c *SQLiteCatalog) FindByPath(ctx context.Context, resultsPath string) (*RunRecord, error) {
	path := canonicalPath(resultsPath)
	rec, err := scanRun(c.db.QueryRowContext(ctx, selectRunSQL+" WHERE results_path = ?", path))
	if err == sql.ErrNoRows {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeRunNotFound, fmt.Sprintf("no run for %s", resultsPath), nil)
	}
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "find run", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (c *SQLiteCatalog) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := selectRunSQL + " ORDER BY started_at DESC, run_id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "list runs", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "scan run", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Samples returns the samples of a run in execution order.
func (c *SQLiteCatalog) Samples(ctx context.Context, id types.RunID) ([]types.Sample, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.query_name, s.status, s.latency_ms, s.row_count, s.reason, r.timeout_seconds
		FROM samples s JOIN runs r ON r.run_id = s.run_id
		WHERE s.run_id = ? ORDER BY s.ordinal`, string(id))
	if err != nil {
		return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "query samples", err)
	}
	defer rows.Close()

	var out []types.Sample
	for rows.Next() {
		var s types.Sample
		var status string
		var timeout int
		if err := rows.Scan(&s.QueryName, &status, &s.LatencyMS, &s.Rows, &s.Reason, &timeout); err != nil {
			return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "scan sample", err)
		}
		st, err := types.ParseStatus(status)
		if err != nil {
			return nil, benchErrors.NewCatalogError(benchErrors.CodeCatalogWrite, "parse status", err)
		}
		s.Status = st
		if st == types.StatusTimedOut {
			s.TimeoutSeconds = timeout
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// DBPath returns the database file path.
func (c *SQLiteCatalog) DBPath() string {
	return c.dbPath
}

// Results paths are stored absolute so the same file registers once.
func canonicalPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// RestoreStatuses overlays catalog statuses on samples reloaded from a
// results file, which cannot tell timeouts from fast queries. Samples are
// matched by query name; unmatched samples are left as they are.
func RestoreStatuses(fromFile, fromCatalog []types.Sample) []types.Sample {
	byName := make(map[string]types.Sample, len(fromCatalog))
	for _, s := range fromCatalog {
		byName[s.QueryName] = s
	}
	out := make([]types.Sample, len(fromFile))
	for i, s := range fromFile {
		if cs, ok := byName[s.QueryName]; ok && cs.Status != types.StatusOK {
			s.Status = cs.Status
			s.TimeoutSeconds = cs.TimeoutSeconds
			s.Reason = cs.Reason
			if cs.Status == types.StatusTimedOut {
				s.Rows = 0
			}
		}
		out[i] = s
	}
	return out
}
