package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgduckdb/tpchbench/internal/analysis"
	"github.com/pgduckdb/tpchbench/internal/catalog"
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/engine/enginetest"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/internal/loader"
	"github.com/pgduckdb/tpchbench/internal/results"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

func init() {
	color.NoColor = true
}

type commandLog struct {
	calls [][]string
}

func (c *commandLog) run(ctx context.Context, name string, args ...string) error {
	c.calls = append(c.calls, append([]string{name}, args...))
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	queries := filepath.Join(root, "queries")
	require.NoError(t, os.MkdirAll(queries, 0755))
	for _, f := range []string{"q01.sql", "q02.sql", "q03.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(queries, f), []byte("SELECT 1;\n"), 0644))
	}
	dump := filepath.Join(root, "dump")
	require.NoError(t, os.MkdirAll(dump, 0755))
	for _, table := range loader.Tables {
		require.NoError(t, os.WriteFile(filepath.Join(dump, table+".csv"), []byte("1|x\n"), 0644))
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.ResultsDir = filepath.Join(root, "results")
	cfg.Benchmark.QueriesDir = queries
	cfg.Benchmark.DumpDir = dump
	cfg.Benchmark.Chart = filepath.Join(root, "chart.png")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *bytes.Buffer, *commandLog) {
	t.Helper()
	var out bytes.Buffer
	cmds := &commandLog{}
	opts = append([]Option{
		WithDialer(enginetest.NewDialer()),
		WithCommandRunner(cmds.run),
		WithOutput(&out),
	}, opts...)
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, &out, cmds
}

func TestBenchmarkSingleRunListing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.Queries = []string{"3", "1"}
	a, out, cmds := newTestApp(t, cfg)

	outcome, err := a.Benchmark(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "PostgreSQL (Cold)", outcome.Results[0].Label)
	assert.Len(t, cmds.calls, 1, "one generator invocation")

	text := out.String()
	assert.Contains(t, text, "Query Results:")
	assert.Contains(t, text, "Q01 :")
	assert.Contains(t, text, "Q03 :")
	assert.NotContains(t, text, "Q02 :")
	assert.Contains(t, text, "Total time:")

	runs, err := a.Catalog().ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, outcome.Results[0].RunID, runs[0].RunID)
	assert.Equal(t, "full", runs[0].SchemaVariant)

	_, err = os.Stat(cfg.Benchmark.Chart)
	assert.True(t, os.IsNotExist(err), "a single run draws no chart")
}

func TestBenchmarkComparisonArchivesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.Engines = []string{"pg", "duckdb"}
	cfg.Storage.Type = "local"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "artifacts")
	a, out, cmds := newTestApp(t, cfg)

	outcome, err := a.Benchmark(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Len(t, cmds.calls, 1, "duckdb reuses the pg dump")

	text := out.String()
	assert.Contains(t, text, "Detailed Query Results (baseline: PostgreSQL (Cold)):")
	assert.Contains(t, text, "Total DuckDB (Cold) time:")

	_, err = os.Stat(cfg.Benchmark.Chart)
	require.NoError(t, err)

	first := string(outcome.Results[0].RunID)
	keys, err := a.archiver.List(context.Background(), first)
	require.NoError(t, err)
	assert.Len(t, keys, 2, "results file and chart")
	var names []string
	for _, k := range keys {
		names = append(names, filepath.Base(k))
	}
	assert.Contains(t, names, "chart.png")
}

func TestFetchRunRestoresArchivedResults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.Queries = []string{"1"}
	cfg.Storage.Type = "local"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "artifacts")
	cfg.Storage.Compress = true
	a, out, _ := newTestApp(t, cfg)
	ctx := context.Background()

	outcome, err := a.Benchmark(ctx)
	require.NoError(t, err)
	result := outcome.Results[0]

	out.Reset()
	dir := filepath.Join(t.TempDir(), "fetched")
	paths, err := a.FetchRun(ctx, result.RunID.Short(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, filepath.Base(result.Path)), paths[0], "the .sz suffix is dropped")
	assert.Equal(t, paths[0]+"\n", out.String())

	want, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = a.FetchRun(ctx, "ffffffff", dir)
	assert.Equal(t, benchErrors.CodeRunNotFound, benchErrors.GetCode(err))
}

func TestFetchRunWithoutStorage(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t))
	_, err := a.FetchRun(context.Background(), "abc", t.TempDir())
	require.Error(t, err)
	assert.True(t, benchErrors.IsFatal(err))
}

func TestBenchmarkSkipExecuteHasNoResults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.SkipExecute = true
	a, out, _ := newTestApp(t, cfg)

	outcome, err := a.Benchmark(context.Background())
	require.Error(t, err)
	assert.Equal(t, benchErrors.CodeNoResults, benchErrors.GetCode(err))
	assert.True(t, benchErrors.IsFatal(err))
	assert.Equal(t, 0, outcome.Executed)
	assert.Empty(t, out.String())
}

func TestBenchmarkValidatesFully(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.Timeout = "300"
	a, _, _ := newTestApp(t, cfg)

	_, err := a.Benchmark(context.Background())
	require.Error(t, err)
	assert.Equal(t, benchErrors.CodeInvalidTimeout, benchErrors.GetCode(err))
}

func TestReportRestoresTimeoutsFromCatalog(t *testing.T) {
	cfg := testConfig(t)
	a, out, _ := newTestApp(t, cfg)
	ctx := context.Background()

	samples := []types.Sample{
		types.OKSample("Q01", 12.5, 4),
		types.TimedOutSample("Q02", 300),
	}
	path, err := results.Write(cfg.ResultsDir, results.FileName(1700000000, "pg", "cold"), samples)
	require.NoError(t, err)

	now := time.Now()
	_, err = a.Catalog().RegisterRun(ctx, &catalog.RunRecord{
		Label:       "PostgreSQL (Cold)",
		Engine:      "pg",
		Thermal:     "cold",
		ResultsPath: path,
		StartedAt:   now,
		FinishedAt:  now.Add(time.Second),
	}, samples)
	require.NoError(t, err)

	chart, err := a.Report(ctx, []analysis.Entry{{Label: "PostgreSQL (Cold)", Path: path}}, "")
	require.NoError(t, err)
	assert.Empty(t, chart)
	assert.Contains(t, out.String(), "PostgreSQL (Cold): 1 timed out, 0 failed")
}

func TestCompareExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.NoChart = true
	a, out, _ := newTestApp(t, cfg)

	pg, err := results.Write(cfg.ResultsDir, "pg.raw.csv", []types.Sample{
		types.OKSample("Q01", 100, 1), types.OKSample("Q02", 10, 1),
	})
	require.NoError(t, err)
	duck, err := results.Write(cfg.ResultsDir, "duck.raw.csv", []types.Sample{
		types.OKSample("Q01", 25, 1), types.OKSample("Q02", 40, 1),
	})
	require.NoError(t, err)

	require.NoError(t, a.Compare(context.Background(), []analysis.Entry{
		{Label: "DuckDB (Cold)", Path: duck},
		{Label: "PostgreSQL (Cold)", Path: pg},
	}))
	text := out.String()
	assert.Contains(t, text, "baseline: PostgreSQL (Cold)")
	assert.Contains(t, text, "(4.00x faster)")

	_, err = os.Stat(cfg.Benchmark.Chart)
	assert.True(t, os.IsNotExist(err), "--no-chart suppresses the chart")
}

func TestCompareDisjointFiles(t *testing.T) {
	cfg := testConfig(t)
	a, out, _ := newTestApp(t, cfg)

	pg, err := results.Write(cfg.ResultsDir, "pg.raw.csv", []types.Sample{types.OKSample("Q01", 100, 1)})
	require.NoError(t, err)
	duck, err := results.Write(cfg.ResultsDir, "duck.raw.csv", []types.Sample{types.OKSample("Q02", 25, 1)})
	require.NoError(t, err)

	chart, err := a.Report(context.Background(), []analysis.Entry{
		{Label: "PostgreSQL (Cold)", Path: pg},
		{Label: "DuckDB (Cold)", Path: duck},
	}, cfg.Benchmark.Chart)
	require.NoError(t, err)
	assert.Empty(t, chart)
	assert.Contains(t, out.String(), "No queries in common")
	assert.Contains(t, out.String(), "Summary (baseline: PostgreSQL (Cold)):")

	_, err = os.Stat(cfg.Benchmark.Chart)
	assert.True(t, os.IsNotExist(err), "no chart without common queries")
}

func TestCompareMissingFile(t *testing.T) {
	cfg := testConfig(t)
	a, _, _ := newTestApp(t, cfg)

	err := a.Compare(context.Background(), []analysis.Entry{
		{Label: "A", Path: filepath.Join(cfg.ResultsDir, "nope.csv")},
	})
	require.Error(t, err)
}

func TestListRuns(t *testing.T) {
	cfg := testConfig(t)
	a, out, _ := newTestApp(t, cfg)

	require.NoError(t, a.ListRuns(context.Background(), 10))
	assert.Equal(t, "No runs recorded\n", out.String())

	out.Reset()
	cfg.Benchmark.Queries = []string{"1"}
	_, err := a.Benchmark(context.Background())
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, a.ListRuns(context.Background(), 10))
	assert.Contains(t, out.String(), "PostgreSQL (Cold)")
}

func TestNewRejectsBadStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "ftp"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, benchErrors.ErrCategoryConfig, benchErrors.GetCategory(err))
}

func TestNewIgnoresBenchmarkSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Benchmark.QueriesDir = filepath.Join(t.TempDir(), "missing")

	a, err := New(context.Background(), cfg, WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "Close is idempotent")
}

func TestSetupLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	setupLogging(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	defer setupLogging(config.LogConfig{Level: "info"}, os.Stderr)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	text := buf.String()
	assert.NotContains(t, text, "hidden")
	assert.True(t, strings.Contains(text, `"message":"shown"`), text)
}
