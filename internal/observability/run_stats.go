// Package observability tracks per-run statistics for the benchmark summary.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgduckdb/tpchbench/pkg/types"
)

// RunStats tracks outcome counts and latencies for one benchmark run.
type RunStats struct {
	mu       sync.RWMutex
	label    string
	counts   map[types.Status]int
	samples  []QueryStat
	started  time.Time
	finished time.Time
}

// QueryStat is the recorded outcome of one query.
type QueryStat struct {
	Query     string
	LatencyMS float64
	Rows      int64
	Status    types.Status
}

// Summary is a point-in-time copy of RunStats.
type Summary struct {
	Label    string
	OK       int
	TimedOut int
	Failed   int
	// TotalMS sums latencies of successful queries only
	TotalMS float64
	Elapsed time.Duration
}

// NewRunStats creates a tracker for the run with the given label.
func NewRunStats(label string) *RunStats {
	return &RunStats{
		label:   label,
		counts:  make(map[types.Status]int),
		started: time.Now(),
	}
}

// Record adds one sample. Thread-safe.
func (r *RunStats) Record(s types.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[s.Status]++
	r.samples = append(r.samples, QueryStat{
		Query:     s.QueryName,
		LatencyMS: s.LatencyMS,
		Rows:      s.Rows,
		Status:    s.Status,
	})
}

// Finish marks the end of the run.
func (r *RunStats) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
}

// Count returns the number of samples with the given status.
func (r *RunStats) Count(status types.Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[status]
}

// Slowest returns the n slowest successful queries, slowest first.
// Returns a copy.
func (r *RunStats) Slowest(n int) []QueryStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		return []QueryStat{}
	}

	ok := make([]QueryStat, 0, len(r.samples))
	for _, s := range r.samples {
		if s.Status == types.StatusOK {
			ok = append(ok, s)
		}
	}

	sort.SliceStable(ok, func(i, j int) bool {
		return ok[i].LatencyMS > ok[j].LatencyMS
	})

	if n > len(ok) {
		n = len(ok)
	}
	return ok[:n]
}

// Summary returns a copy of the aggregate counters.
func (r *RunStats) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Label:    r.label,
		OK:       r.counts[types.StatusOK],
		TimedOut: r.counts[types.StatusTimedOut],
		Failed:   r.counts[types.StatusFailed],
	}
	for _, q := range r.samples {
		if q.Status == types.StatusOK {
			s.TotalMS += q.LatencyMS
		}
	}
	end := r.finished
	if end.IsZero() {
		end = time.Now()
	}
	s.Elapsed = end.Sub(r.started)
	return s
}

// Log writes the summary and the slowest queries to logger.
func (r *RunStats) Log(logger zerolog.Logger) {
	s := r.Summary()
	ev := logger.Info().
		Str("label", s.Label).
		Int("ok", s.OK).
		Int("timeout", s.TimedOut).
		Int("failed", s.Failed).
		Float64("total_ms", s.TotalMS).
		Dur("elapsed", s.Elapsed)

	slowest := r.Slowest(3)
	names := zerolog.Arr()
	for _, q := range slowest {
		names.Str(q.Query)
	}
	ev.Array("slowest", names).Msg("Run finished")
}
