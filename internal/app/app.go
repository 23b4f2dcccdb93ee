// Package app wires configuration, storage and the benchmark pipeline into
// the commands the CLI exposes.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/analysis"
	"github.com/pgduckdb/tpchbench/internal/catalog"
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/corpus"
	"github.com/pgduckdb/tpchbench/internal/engine"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/internal/executor"
	"github.com/pgduckdb/tpchbench/internal/loader"
	"github.com/pgduckdb/tpchbench/internal/matrix"
	"github.com/pgduckdb/tpchbench/internal/report"
	"github.com/pgduckdb/tpchbench/internal/results"
	"github.com/pgduckdb/tpchbench/internal/schema"
	"github.com/pgduckdb/tpchbench/internal/storage"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// App owns the shared resources of one invocation.
type App struct {
	cfg *config.Config
	out io.Writer

	dialer engine.Dialer
	runCmd loader.CommandRunner
	store  storage.ObjectStorage

	catalog  *catalog.SQLiteCatalog
	archiver *storage.Archiver
}

// Option customizes an App.
type Option func(*App)

// WithDialer replaces the Postgres dialer.
func WithDialer(d engine.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithCommandRunner replaces how the data generator CLI is invoked.
func WithCommandRunner(run loader.CommandRunner) Option {
	return func(a *App) { a.runCmd = run }
}

// WithOutput redirects reports, which go to stdout by default.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithStorage replaces the artifact store derived from the configuration.
func WithStorage(s storage.ObjectStorage) Option {
	return func(a *App) { a.store = s }
}

// New creates an App and opens the run catalog and artifact storage. Only
// the settings every command shares are validated here; Benchmark validates
// the rest.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.ValidateOutput(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:    cfg,
		out:    os.Stdout,
		dialer: engine.PgxDialer{},
	}
	for _, opt := range opts {
		opt(a)
	}

	cat, err := catalog.NewCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.catalog = cat

	if a.store == nil {
		a.store, err = openStorage(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}
	if a.store != nil {
		a.archiver = storage.NewArchiver(a.store, cfg.Storage.Prefix, cfg.Storage.Compress)
	}

	return a, nil
}

// openStorage returns nil for storage type none.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		s, err := storage.NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := storage.NewS3Storage(ctx, cfg.S3.Bucket, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Catalog returns the run catalog.
func (a *App) Catalog() catalog.Catalog {
	return a.catalog
}

// Benchmark runs the configured matrix and reports on whatever it produced.
func (a *App) Benchmark(ctx context.Context) (*matrix.Outcome, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	b := &a.cfg.Benchmark

	all, err := corpus.Discover(b.QueriesDir)
	if err != nil {
		return nil, err
	}
	selected, err := all.Select(b.Queries)
	if err != nil {
		return nil, err
	}

	deps := matrix.Deps{
		Dialer:      a.dialer,
		Generator:   loader.NewGenerator(b.DuckDBBinary, a.runCmd),
		Provisioner: schema.NewProvisioner(b.SchemaDir),
		Loader:      loader.NewLoader(),
		Executor:    executor.New(a.dialer),
		Recorder:    a.catalog,
	}
	if a.archiver != nil {
		deps.Archiver = a.archiver
	}

	runner, err := matrix.NewRunner(a.cfg, selected, deps)
	if err != nil {
		return nil, err
	}
	outcome, err := runner.Run(ctx)
	if err != nil {
		return outcome, err
	}
	if len(outcome.Failures) > 0 {
		log.Warn().Int("failed", len(outcome.Failures)).Int("succeeded", len(outcome.Results)).
			Msg("Some benchmark configurations did not produce results")
	}

	chartName := b.Chart
	if chartName == "" {
		chartName = report.ChartName(matrix.FilePrefix(b), b.Engines, b.Thermals)
	}
	chart, err := a.Report(ctx, outcome.Entries(), chartName)
	if err != nil {
		return outcome, err
	}
	if chart != "" && a.archiver != nil {
		id := string(outcome.Results[0].RunID)
		if _, err := a.archiver.Archive(ctx, id, chart); err != nil {
			log.Warn().Err(err).Msg("Failed to archive chart")
		}
	}
	return outcome, nil
}

// Compare reports on existing results files. The chart goes to the
// configured name, or the renderer default.
func (a *App) Compare(ctx context.Context, entries []analysis.Entry) error {
	_, err := a.Report(ctx, entries, a.cfg.Benchmark.Chart)
	return err
}

// Report analyzes the entries and writes the listing or comparison to the
// output. It returns the chart path, or "" when no chart was drawn.
func (a *App) Report(ctx context.Context, entries []analysis.Entry, chartPath string) (string, error) {
	restored := make([]analysis.Entry, len(entries))
	for i, e := range entries {
		if e.Samples == nil && e.Path != "" {
			samples, err := a.restore(ctx, e.Path)
			if err != nil {
				return "", err
			}
			e.Samples = samples
		}
		restored[i] = e
	}

	res, err := analysis.Analyze(restored, engine.ReferenceDisplayName)
	if err != nil {
		return "", err
	}

	if l := res.Listing; l != nil {
		log.Info().Msg("Single benchmark completed successfully")
		if err := report.WriteListing(a.out, l); err != nil {
			return "", err
		}
		return "", report.WriteStatusNote(a.out, l.Label, l.Samples)
	}

	cmp := res.Comparison
	var chart string
	switch {
	case len(cmp.Rows) == 0:
		log.Warn().Strs("labels", cmp.Labels).Msg("No queries in common, skipping chart")
	case !a.cfg.Benchmark.NoChart:
		chart, err = report.NewChart().Render(cmp, chartPath)
		if err != nil {
			return "", err
		}
		log.Info().Msgf("Comparison chart saved to %s", chart)
	}
	return chart, report.WriteComparison(a.out, cmp)
}

// restore reads a results file and overlays the statuses the catalog
// recorded for it. Files the catalog does not know are returned as read.
func (a *App) restore(ctx context.Context, path string) ([]types.Sample, error) {
	samples, err := results.Read(path)
	if err != nil {
		return nil, err
	}
	rec, err := a.catalog.FindByPath(ctx, path)
	if err != nil {
		if benchErrors.GetCode(err) != benchErrors.CodeRunNotFound {
			log.Warn().Err(err).Str("path", path).Msg("Could not look up run in catalog")
		}
		return samples, nil
	}
	recorded, err := a.catalog.Samples(ctx, rec.RunID)
	if err != nil {
		log.Warn().Err(err).Str("run", rec.RunID.Short()).Msg("Could not read samples from catalog")
		return samples, nil
	}
	return catalog.RestoreStatuses(samples, recorded), nil
}

// ListRuns prints the most recent catalog entries.
func (a *App) ListRuns(ctx context.Context, limit int) error {
	runs, err := a.catalog.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	return report.WriteRuns(a.out, runs)
}

// FetchRun downloads every artifact archived for a run into dir and
// returns the local paths. ref is a full run id or the short id shown by
// ListRuns.
func (a *App) FetchRun(ctx context.Context, ref, dir string) ([]string, error) {
	if a.archiver == nil {
		return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue,
			"artifact storage is not configured (storage.type is none)")
	}
	rec, err := a.catalog.ResolveRun(ctx, ref)
	if err != nil {
		return nil, err
	}

	keys, err := a.archiver.List(ctx, string(rec.RunID))
	if err != nil {
		return nil, benchErrors.NewStorageError(benchErrors.CodeDownloadFailed,
			fmt.Sprintf("list artifacts of run %s", rec.RunID.Short()), err)
	}
	if len(keys) == 0 {
		return nil, benchErrors.NewStorageError(benchErrors.CodeDownloadFailed,
			fmt.Sprintf("no artifacts archived for run %s", rec.RunID.Short()), nil)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, benchErrors.NewStorageError(benchErrors.CodeDownloadFailed,
			fmt.Sprintf("create %s", dir), err)
	}

	var paths []string
	for _, key := range keys {
		dst := filepath.Join(dir, strings.TrimSuffix(path.Base(key), storage.CompressedSuffix))
		if err := a.archiver.Fetch(ctx, key, dst); err != nil {
			return paths, benchErrors.NewStorageError(benchErrors.CodeDownloadFailed,
				fmt.Sprintf("fetch %s", key), err)
		}
		log.Info().Str("run", rec.RunID.Short()).Str("key", key).Msgf("Fetched %s", dst)
		fmt.Fprintln(a.out, dst)
		paths = append(paths, dst)
	}
	return paths, nil
}

// Close releases the catalog.
func (a *App) Close() error {
	if a.catalog == nil {
		return nil
	}
	err := a.catalog.Close()
	a.catalog = nil
	return err
}
