// Package executor runs the query corpus on one session and times each query.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/corpus"
	"github.com/pgduckdb/tpchbench/internal/engine"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/internal/observability"
	"github.com/pgduckdb/tpchbench/internal/schema"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// DeadlineGrace is added to the statement timeout for the client-side
// deadline, so the server-side timeout normally fires first.
const DeadlineGrace = 5 * time.Second

// WarmupSQL establishes the session before timing starts.
const WarmupSQL = "SELECT 1 FROM customer LIMIT 0"

// Options configures one benchmark run.
type Options struct {
	// Label names the run in logs and results
	Label string

	// Params is the session to dial
	Params engine.Params

	// SchemaName is the search_path for every query
	SchemaName string

	// Queries run in this order
	Queries []corpus.Query

	// TimeoutSeconds is the server-side statement_timeout
	TimeoutSeconds int

	// WorkMem is passed through to work_mem when non-empty
	WorkMem string

	// DisableNestLoop turns enable_nestloop off
	DisableNestLoop bool

	// ForceExecution routes queries through the analytical engine
	ForceExecution bool
}

// Executor runs benchmark queries.
type Executor struct {
	dialer engine.Dialer
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an executor that opens sessions through dialer.
func New(dialer engine.Dialer) *Executor {
	return &Executor{
		dialer: dialer,
		logger: log.Logger,
		now:    time.Now,
	}
}

// FormatTimeout renders a timeout as "5m 0s" from a minute upwards, else "45s".
func FormatTimeout(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// SessionSetup returns the statements issued once before any query runs.
func SessionSetup(opts Options) []string {
	stmts := []string{
		schema.SearchPath(opts.SchemaName),
		fmt.Sprintf("SET statement_timeout = '%ds'", opts.TimeoutSeconds),
	}
	if opts.WorkMem != "" {
		stmts = append(stmts, "SET work_mem = "+schema.QuoteLiteral(opts.WorkMem))
	}
	if opts.DisableNestLoop {
		stmts = append(stmts, "SET enable_nestloop = off")
	} else {
		stmts = append(stmts, "SET enable_nestloop = on")
	}
	if opts.ForceExecution {
		stmts = append(stmts, "SET duckdb.force_execution = true")
	}
	return stmts
}

// Run dials a session, applies session setup, and executes every query in
// order. Query-level timeouts and errors become samples; only connection and
// setup failures are returned as errors. The session is always closed.
func (e *Executor) Run(ctx context.Context, opts Options) (*types.Run, error) {
	run := &types.Run{
		ID:        types.NewRunID(),
		Label:     opts.Label,
		StartedAt: e.now(),
	}
	stats := observability.NewRunStats(opts.Label)
	logger := e.logger.With().Str("label", opts.Label).Str("run", run.ID.Short()).Logger()

	logger.Info().Str("target", opts.Params.String()).Msg("Connecting")
	logger.Info().Msgf("Query timeout set to %s", FormatTimeout(opts.TimeoutSeconds))

	conn, err := e.open(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if conn == nil {
			return
		}
		if cerr := conn.Close(context.Background()); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close connection")
		}
	}()

	for _, q := range opts.Queries {
		sample, ok, broken := e.runQuery(ctx, conn, q, opts.TimeoutSeconds, logger)
		if !ok {
			continue
		}
		run.Samples = append(run.Samples, sample)
		stats.Record(sample)

		// An interrupt is not a query failure.
		if ctx.Err() != nil {
			run.EndedAt = e.now()
			return run, benchErrors.NewInternalError("run interrupted", ctx.Err())
		}

		// pgx closes the connection when a client-side deadline fires.
		if broken {
			logger.Warn().Str("query", q.Name).Msg("Client deadline closed the session, reconnecting")
			conn.Close(context.Background())
			if conn, err = e.open(ctx, opts); err != nil {
				run.EndedAt = e.now()
				return run, err
			}
		}
	}

	run.EndedAt = e.now()
	stats.Finish()
	stats.Log(logger)
	return run, nil
}

// open dials a session and applies the session setup and warm-up query.
func (e *Executor) open(ctx context.Context, opts Options) (engine.Conn, error) {
	conn, err := e.dialer.Dial(ctx, opts.Params)
	if err != nil {
		return nil, benchErrors.NewConnectionError(benchErrors.CodeConnectFailed,
			fmt.Sprintf("connect to %s", opts.Params), err)
	}
	for _, stmt := range SessionSetup(opts) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			conn.Close(context.Background())
			return nil, benchErrors.NewConnectionError(benchErrors.CodeSessionSetup, stmt, err)
		}
	}
	if err := drain(ctx, conn, WarmupSQL); err != nil {
		conn.Close(context.Background())
		return nil, benchErrors.NewConnectionError(benchErrors.CodeSessionSetup, "warm-up query", err)
	}
	return conn, nil
}

// runQuery executes one query. ok is false when the query was skipped;
// broken reports that the client-side deadline fired and the session is
// no longer usable.
func (e *Executor) runQuery(ctx context.Context, conn engine.Conn, q corpus.Query, timeoutSeconds int, logger zerolog.Logger) (sample types.Sample, ok, broken bool) {
	logger.Info().Msgf("Executing %s...", q.Name)

	text, err := q.Load()
	if err != nil {
		logger.Error().Err(err).Str("query", q.Name).Msgf("ERROR executing %s", q.Name)
		return types.FailedSample(q.Name, err.Error()), true, false
	}
	if text == "" {
		logger.Warn().Str("query", q.Name).Msgf("%s is empty, skipping", q.Name)
		return types.Sample{}, false, false
	}

	// A zero timeout disables statement_timeout, so there is no deadline.
	var (
		qctx   context.Context
		cancel context.CancelFunc
	)
	if timeoutSeconds > 0 {
		qctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second+DeadlineGrace)
	} else {
		qctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := e.now()
	rows, err := count(qctx, conn, text)
	elapsed := e.now().Sub(start)

	if err != nil {
		broken = ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || qctx.Err() != nil)
		if ctx.Err() == nil && engine.IsTimeout(err) {
			logger.Warn().Err(err).Str("query", q.Name).
				Msgf("TIMEOUT executing %s (exceeded %s)", q.Name, FormatTimeout(timeoutSeconds))
			return types.TimedOutSample(q.Name, timeoutSeconds), true, broken
		}
		logger.Error().Err(err).Str("query", q.Name).Msgf("ERROR executing %s", q.Name)
		return types.FailedSample(q.Name, err.Error()), true, broken
	}

	ms := float64(elapsed.Nanoseconds()) / 1e6
	logger.Info().Str("query", q.Name).Float64("ms", ms).Int64("rows", rows).
		Msgf("%s: %.1f ms (%d rows)", q.Name, ms, rows)
	return types.OKSample(q.Name, ms, rows), true, false
}

// count runs sql and returns how many rows it produced. Statements without
// a row description report their affected-row count instead.
func count(ctx context.Context, conn engine.Conn, sql string) (int64, error) {
	rs, err := conn.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	var n int64
	for rs.Next() {
		n++
	}
	rs.Close()
	if err := rs.Err(); err != nil {
		return 0, err
	}
	if !rs.HasRowDescription() {
		if affected := rs.RowsAffected(); affected > 0 {
			return affected, nil
		}
		return 0, nil
	}
	return n, nil
}

func drain(ctx context.Context, conn engine.Conn, sql string) error {
	_, err := count(ctx, conn, sql)
	return err
}
