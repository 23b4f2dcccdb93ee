package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/pgduckdb/tpchbench/internal/app"
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/corpus"
	"github.com/pgduckdb/tpchbench/internal/engine"
	"github.com/pgduckdb/tpchbench/internal/executor"
	"github.com/pgduckdb/tpchbench/internal/loader"
	"github.com/pgduckdb/tpchbench/internal/schema"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// postgresConfig returns a configuration pointing at the server named by
// TPCHBENCH_PG_DSN, read from the environment or the repository .env. Tests
// are skipped when it is unset.
func postgresConfig(t *testing.T) *config.Config {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TPCHBENCH_PG_DSN")
	if dsn == "" {
		t.Skip("TPCHBENCH_PG_DSN not set")
	}
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("invalid TPCHBENCH_PG_DSN: %v", err)
	}

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.ResultsDir = filepath.Join(root, "results")
	cfg.Connection.Host = pc.Host
	cfg.Connection.Port = int(pc.Port)
	cfg.Connection.Database = pc.Database
	cfg.Connection.User = pc.User
	cfg.Connection.Password = pc.Password
	cfg.Benchmark.SchemaName = "tpchbench_it"
	return cfg
}

// writeQueries creates a small corpus of cheap queries over the TPC-H schema.
func writeQueries(t *testing.T, queries map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "queries")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for file, sql := range queries {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(sql), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// writeHeaderDump creates a dump shaped like a DuckDB export: every file
// starts with a header line. Only region carries a data row, so loading
// exercises COPY without needing the data generator.
func writeHeaderDump(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "dump")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, table := range loader.Tables {
		body := table + "_key|" + table + "_name\n"
		if table == "region" {
			body = "r_regionkey|r_name|r_comment\n0|AFRICA|lar deposits\n"
		}
		if err := os.WriteFile(filepath.Join(dir, table+".csv"), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPostgresColdRun(t *testing.T) {
	cfg := postgresConfig(t)
	cfg.Benchmark.QueriesDir = writeQueries(t, map[string]string{
		"q01.sql": "SELECT count(*) FROM lineitem;",
		"q02.sql": "SELECT n_name FROM nation ORDER BY n_name;",
		"q03.sql": "SELECT r_name FROM region;",
	})
	cfg.Benchmark.DumpDir = writeHeaderDump(t)
	cfg.Benchmark.SkipGenerate = true
	cfg.Benchmark.SchemaVariant = string(schema.PKOnly)

	var out bytes.Buffer
	a, err := app.New(context.Background(), cfg, app.WithOutput(&out))
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	outcome, err := a.Benchmark(ctx)
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d (failures: %+v)", len(outcome.Results), outcome.Failures)
	}
	if !strings.Contains(out.String(), "Q01 :") || !strings.Contains(out.String(), "Q02 :") {
		t.Errorf("listing is missing queries:\n%s", out.String())
	}

	samples, err := a.Catalog().Samples(ctx, outcome.Results[0].RunID)
	if err != nil {
		t.Fatalf("failed to read samples: %v", err)
	}
	for _, s := range samples {
		if s.Status != types.StatusOK {
			t.Errorf("%s: expected ok, got %s (%s)", s.QueryName, s.Status, s.Reason)
		}
	}
	// count(*) returns one row even on an empty table.
	if samples[0].Rows != 1 {
		t.Errorf("expected 1 row for Q01, got %d", samples[0].Rows)
	}
	// The header line is skipped, leaving the single region row.
	if samples[2].Rows != 1 {
		t.Errorf("expected 1 region row for Q03, got %d", samples[2].Rows)
	}
}

func TestPostgresStatementTimeout(t *testing.T) {
	cfg := postgresConfig(t)
	dir := writeQueries(t, map[string]string{
		"q01.sql": "SELECT pg_sleep(3);",
		"q02.sql": "SELECT * FROM no_such_table;",
		"q03.sql": "SELECT 1;",
	})
	c, err := corpus.Discover(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	params := engine.Params{
		Host:     cfg.Connection.Host,
		Port:     cfg.Connection.Port,
		Database: cfg.Connection.Database,
		User:     cfg.Connection.User,
		Password: cfg.Connection.Password,
	}

	// The warmup query needs the schema to exist.
	conn, err := engine.PgxDialer{}.Dial(ctx, params)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := schema.NewProvisioner("").Provision(ctx, conn, cfg.Benchmark.SchemaName, schema.NoIndexes); err != nil {
		conn.Close(ctx)
		t.Fatalf("failed to provision: %v", err)
	}
	conn.Close(ctx)

	run, err := executor.New(engine.PgxDialer{}).Run(ctx, executor.Options{
		Label:          "PostgreSQL (Cold)",
		Params:         params,
		SchemaName:     cfg.Benchmark.SchemaName,
		Queries:        c.Queries,
		TimeoutSeconds: 1,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(run.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(run.Samples))
	}
	want := []types.Status{types.StatusTimedOut, types.StatusFailed, types.StatusOK}
	for i, s := range run.Samples {
		if s.Status != want[i] {
			t.Errorf("%s: expected %s, got %s", s.QueryName, want[i], s.Status)
		}
	}
	if run.Samples[0].LatencyMS != 1000 {
		t.Errorf("timed out query should record the timeout, got %v ms", run.Samples[0].LatencyMS)
	}
}
