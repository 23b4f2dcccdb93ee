package matrix

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/analysis"
	"github.com/pgduckdb/tpchbench/internal/catalog"
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/corpus"
	"github.com/pgduckdb/tpchbench/internal/engine"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/internal/executor"
	"github.com/pgduckdb/tpchbench/internal/results"
	"github.com/pgduckdb/tpchbench/internal/schema"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// Generator produces the CSV dump for a scale factor.
type Generator interface {
	Generate(ctx context.Context, scaleFactor, dumpDir string) error
}

// Provisioner creates the benchmark schema.
type Provisioner interface {
	Check(v schema.Variant) error
	Provision(ctx context.Context, conn engine.Conn, schemaName string, v schema.Variant) error
}

// Loader bulk-loads a dump into the schema.
type Loader interface {
	Load(ctx context.Context, conn engine.Copier, schemaName, dumpDir string) error
}

// Executor runs the query corpus for one cell.
type Executor interface {
	Run(ctx context.Context, opts executor.Options) (*types.Run, error)
}

// Recorder registers completed runs.
type Recorder interface {
	RegisterRun(ctx context.Context, rec *catalog.RunRecord, samples []types.Sample) (types.RunID, error)
}

// Archiver copies results files to artifact storage.
type Archiver interface {
	Archive(ctx context.Context, runID, localPath string) (string, error)
}

// Deps are the collaborators of a Runner. Recorder and Archiver are optional.
type Deps struct {
	Dialer      engine.Dialer
	Generator   Generator
	Provisioner Provisioner
	Loader      Loader
	Executor    Executor
	Recorder    Recorder
	Archiver    Archiver
}

// Result is one results file produced by the matrix.
type Result struct {
	Label string
	Path  string
	RunID types.RunID
}

// Failure is a cell that did not produce a results file.
type Failure struct {
	Label string
	Err   error
}

// Outcome lists what the matrix produced, in cell order.
type Outcome struct {
	Results  []Result
	Failures []Failure
	// Executed counts cells that reached the execute step.
	Executed int
}

// Entries converts the results into analyzer input.
func (o *Outcome) Entries() []analysis.Entry {
	entries := make([]analysis.Entry, len(o.Results))
	for i, r := range o.Results {
		entries[i] = analysis.Entry{Label: r.Label, Path: r.Path}
	}
	return entries
}

// Runner executes every cell of the matrix in order.
type Runner struct {
	cfg      *config.Config
	queries  []corpus.Query
	corpusFP string
	engines  []engine.Engine
	thermals []engine.Thermal
	deps     Deps
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRunner creates a runner for the resolved, validated configuration and
// the selected queries.
func NewRunner(cfg *config.Config, selected *corpus.Corpus, deps Deps) (*Runner, error) {
	engines := make([]engine.Engine, 0, len(cfg.Benchmark.Engines))
	for _, s := range cfg.Benchmark.Engines {
		e, err := engine.Parse(s)
		if err != nil {
			return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue, err.Error())
		}
		engines = append(engines, e)
	}
	thermals := make([]engine.Thermal, 0, len(cfg.Benchmark.Thermals))
	for _, s := range cfg.Benchmark.Thermals {
		t, err := engine.ParseThermal(s)
		if err != nil {
			return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue, err.Error())
		}
		thermals = append(thermals, t)
	}

	return &Runner{
		cfg:      cfg,
		queries:  selected.Queries,
		corpusFP: selected.Fingerprint(),
		engines:  engines,
		thermals: thermals,
		deps:     deps,
		logger:   log.Logger,
		now:      time.Now,
	}, nil
}

// Run executes the matrix. Cell failures are recorded in the outcome and do
// not stop the matrix; configuration errors and interrupts do.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	variant := schema.Variant(r.cfg.Benchmark.SchemaVariant)
	if err := r.deps.Provisioner.Check(variant); err != nil {
		return nil, err
	}

	out := &Outcome{}
	for _, cell := range Plan(r.engines, r.thermals) {
		if err := ctx.Err(); err != nil {
			return out, benchErrors.NewInternalError("benchmark interrupted", err)
		}

		rc := ForCell(r.cfg, cell.Engine, cell.Thermal, cell.Overrides(len(out.Results)))
		r.logger.Info().Msgf("=== Running %s benchmark ===", rc.Label)

		res, executed, err := r.runCell(ctx, rc)
		if executed {
			out.Executed++
		}
		if err != nil {
			if ctx.Err() != nil {
				return out, benchErrors.NewInternalError("benchmark interrupted", err)
			}
			if benchErrors.IsFatal(err) {
				return out, err
			}
			r.logger.Error().Err(err).Str("label", rc.Label).Msgf("ERROR: Could not find result file for %s", rc.Label)
			out.Failures = append(out.Failures, Failure{Label: rc.Label, Err: err})
			continue
		}
		if res != nil {
			out.Results = append(out.Results, *res)
		}
	}
	return out, nil
}

// runCell runs one cell. A nil result without error means execution was
// skipped.
func (r *Runner) runCell(ctx context.Context, rc RunConfiguration) (*Result, bool, error) {
	logger := r.logger.With().Str("label", rc.Label).Logger()

	if rc.Generates() {
		if err := r.deps.Generator.Generate(ctx, rc.ScaleFactor, rc.DumpDir); err != nil {
			return nil, false, err
		}
	}

	if rc.Loads() {
		if err := r.prepare(ctx, rc, logger); err != nil {
			return nil, false, err
		}
	}

	if rc.SkipExecute {
		logger.Info().Msg("Skipping execution")
		return nil, false, nil
	}

	run, err := r.deps.Executor.Run(ctx, executor.Options{
		Label:           rc.Label,
		Params:          rc.Params,
		SchemaName:      rc.SchemaName,
		Queries:         r.queries,
		TimeoutSeconds:  rc.TimeoutSeconds,
		WorkMem:         rc.WorkMem,
		DisableNestLoop: rc.DisableNestLoop,
		ForceExecution:  rc.Engine.ForcesExecution(),
	})
	if err != nil {
		return nil, true, err
	}

	name := results.FileName(r.now().Unix(), string(rc.Engine), string(rc.Thermal))
	path, err := results.Write(r.cfg.ResultsDir, name, run.Samples)
	if err != nil {
		return nil, true, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, true, benchErrors.NewResultsError(benchErrors.CodeResultsMissing,
			fmt.Sprintf("results file %s", path), err)
	}
	logger.Info().Str("path", path).Int("samples", len(run.Samples)).Msg("Results saved")

	r.record(ctx, rc, run, path, logger)
	r.archive(ctx, run.ID, path, logger)

	return &Result{Label: rc.Label, Path: path, RunID: run.ID}, true, nil
}

// prepare provisions the schema and loads the dump on a dedicated session.
func (r *Runner) prepare(ctx context.Context, rc RunConfiguration, logger zerolog.Logger) error {
	conn, err := r.deps.Dialer.Dial(ctx, rc.Params)
	if err != nil {
		return benchErrors.NewConnectionError(benchErrors.CodeConnectFailed,
			fmt.Sprintf("connect to %s", rc.Params), err)
	}
	defer conn.Close(context.Background())

	logger.Info().Str("schema", rc.SchemaName).Str("variant", string(rc.Variant)).Msg("Creating schema")
	if err := r.deps.Provisioner.Provision(ctx, conn, rc.SchemaName, rc.Variant); err != nil {
		return err
	}
	return r.deps.Loader.Load(ctx, conn, rc.SchemaName, rc.DumpDir)
}

func (r *Runner) record(ctx context.Context, rc RunConfiguration, run *types.Run, path string, logger zerolog.Logger) {
	if r.deps.Recorder == nil {
		return
	}
	_, err := r.deps.Recorder.RegisterRun(ctx, &catalog.RunRecord{
		RunID:             run.ID,
		Label:             rc.Label,
		Engine:            string(rc.Engine),
		Thermal:           string(rc.Thermal),
		SchemaVariant:     string(rc.Variant),
		ScaleFactor:       rc.ScaleFactor,
		CorpusFingerprint: r.corpusFP,
		ResultsPath:       path,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.EndedAt,
		TimeoutSeconds:    rc.TimeoutSeconds,
	}, run.Samples)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to register run in catalog")
	}
}

func (r *Runner) archive(ctx context.Context, id types.RunID, path string, logger zerolog.Logger) {
	if r.deps.Archiver == nil {
		return
	}
	if _, err := r.deps.Archiver.Archive(ctx, string(id), path); err != nil {
		logger.Warn().Err(err).Msg("Failed to archive results")
	}
}
