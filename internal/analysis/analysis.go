// Package analysis aligns results files by query and computes the
// comparison tables the report renders.
package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/internal/results"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// LogScaleThreshold is the max/min latency ratio above which absolute
// times are presented on a logarithmic axis.
const LogScaleThreshold = 100.0

// Entry is one labelled configuration. Samples, when non-nil, take
// precedence over reading Path.
type Entry struct {
	Label   string
	Path    string
	Samples []types.Sample
}

// Row holds one query's latencies and speedups, indexed like Comparison.Labels.
type Row struct {
	Query     string
	Latencies []float64
	Speedups  []Speedup
}

// LabelSummary aggregates one label over all joined queries.
type LabelSummary struct {
	Label   string
	TotalMS float64
	// Overall is baseline total / label total.
	Overall Speedup
	// GeoMean is the geometric mean of the defined per-query raw speedups.
	// Zero when no query had a defined speedup.
	GeoMean  float64
	MedianMS float64
}

// Comparison is the analyzed view over two or more configurations.
type Comparison struct {
	Labels    []string
	Baseline  int
	Rows      []Row
	LogScale  bool
	MaxMS     float64
	MinMS     float64
	Summaries []LabelSummary
}

// BaselineLabel returns the label every ratio is computed against.
func (c *Comparison) BaselineLabel() string {
	return c.Labels[c.Baseline]
}

// Queries returns the joined query names in order.
func (c *Comparison) Queries() []string {
	names := make([]string, len(c.Rows))
	for i, r := range c.Rows {
		names[i] = r.Query
	}
	return names
}

// Listing is the single-run fallback: the run's samples and their total.
type Listing struct {
	Label   string
	Samples []types.Sample
	TotalMS float64
}

// Result holds exactly one of Listing or Comparison.
type Result struct {
	Listing    *Listing
	Comparison *Comparison
}

// Analyze loads the entries and produces a listing for a single entry or a
// comparison for several. No entries is a configuration error.
func Analyze(entries []Entry, reference string) (*Result, error) {
	loaded, err := load(entries)
	if err != nil {
		return nil, err
	}
	switch len(loaded) {
	case 0:
		return nil, benchErrors.NewConfigError(benchErrors.CodeNoResults, "no benchmark results found")
	case 1:
		return &Result{Listing: newListing(loaded[0])}, nil
	default:
		return &Result{Comparison: compare(loaded, reference)}, nil
	}
}

// Compare joins two or more entries on query name and computes ratios
// against the first label containing reference, or the first label.
func Compare(entries []Entry, reference string) (*Comparison, error) {
	loaded, err := load(entries)
	if err != nil {
		return nil, err
	}
	if len(loaded) < 2 {
		return nil, benchErrors.NewConfigError(benchErrors.CodeNoResults,
			fmt.Sprintf("comparison needs at least two results, got %d", len(loaded)))
	}
	return compare(loaded, reference), nil
}

// DecideScale reports whether values span more than LogScaleThreshold,
// ignoring exact zeros. It also returns the max and the smallest non-zero
// value; all-zero input is linear.
func DecideScale(values []float64) (logScale bool, maxVal, minVal float64) {
	minVal = math.Inf(1)
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
		if v > 0 && v < minVal {
			minVal = v
		}
	}
	if math.IsInf(minVal, 1) {
		return false, maxVal, 0
	}
	return maxVal/minVal > LogScaleThreshold, maxVal, minVal
}

// SelectBaseline returns the index of the first label containing reference.
// ok is false when none does and the first label is used instead.
func SelectBaseline(labels []string, reference string) (idx int, ok bool) {
	for i, l := range labels {
		if reference != "" && strings.Contains(l, reference) {
			return i, true
		}
	}
	return 0, false
}

// load reads entries in order. Path is read only when Samples is nil, so
// an entry with neither contributes no samples. A repeated label replaces
// the earlier entry's samples but keeps its position.
func load(entries []Entry) ([]Entry, error) {
	var out []Entry
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Samples == nil && e.Path != "" {
			samples, err := results.Read(e.Path)
			if err != nil {
				return nil, err
			}
			e.Samples = samples
		}
		if i, seen := pos[e.Label]; seen {
			log.Warn().Str("label", e.Label).Msg("Duplicate label, later results replace earlier ones")
			out[i] = e
			continue
		}
		pos[e.Label] = len(out)
		out = append(out, e)
	}
	return out, nil
}

func newListing(e Entry) *Listing {
	return &Listing{
		Label:   e.Label,
		Samples: e.Samples,
		TotalMS: results.TotalMS(e.Samples),
	}
}

func compare(entries []Entry, reference string) *Comparison {
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}

	baseline, ok := SelectBaseline(labels, reference)
	if !ok {
		log.Warn().Msgf("No %s label found, using %s as baseline", reference, labels[baseline])
	}

	rows := join(entries)

	var all []float64
	for _, r := range rows {
		all = append(all, r.Latencies...)
	}
	logScale, maxVal, minVal := DecideScale(all)
	if logScale {
		log.Info().Msgf("Using log scale due to large range: %.0fms / %.0fms = %.1fx",
			maxVal, minVal, maxVal/minVal)
	}

	for i := range rows {
		base := rows[i].Latencies[baseline]
		rows[i].Speedups = make([]Speedup, len(labels))
		for j, v := range rows[i].Latencies {
			rows[i].Speedups[j] = NewSpeedup(base, v)
		}
	}

	return &Comparison{
		Labels:    labels,
		Baseline:  baseline,
		Rows:      rows,
		LogScale:  logScale,
		MaxMS:     maxVal,
		MinMS:     minVal,
		Summaries: summarize(labels, baseline, rows),
	}
}

// join keeps the queries present in every entry, in the first entry's order.
func join(entries []Entry) []Row {
	lookups := make([]map[string]float64, len(entries))
	for i, e := range entries {
		m := make(map[string]float64, len(e.Samples))
		for _, s := range e.Samples {
			if _, dup := m[s.QueryName]; !dup {
				m[s.QueryName] = s.LatencyMS
			}
		}
		lookups[i] = m
	}

	var rows []Row
	seen := make(map[string]bool)
	for _, s := range entries[0].Samples {
		if seen[s.QueryName] {
			continue
		}
		seen[s.QueryName] = true

		lat := make([]float64, len(entries))
		complete := true
		for i, m := range lookups {
			v, ok := m[s.QueryName]
			if !ok {
				log.Debug().Str("query", s.QueryName).Str("label", entries[i].Label).Msg("Query missing, dropped from comparison")
				complete = false
				break
			}
			lat[i] = v
		}
		if complete {
			rows = append(rows, Row{Query: s.QueryName, Latencies: lat})
		}
	}
	return rows
}

func summarize(labels []string, baseline int, rows []Row) []LabelSummary {
	sums := make([]LabelSummary, len(labels))
	for j, label := range labels {
		var lat, ratios stats.Float64Data
		for _, r := range rows {
			lat = append(lat, r.Latencies[j])
			if sp := r.Speedups[j]; sp.Defined {
				ratios = append(ratios, sp.Raw)
			}
		}
		total, _ := stats.Sum(lat)
		median, _ := stats.Median(lat)
		geo, err := stats.GeometricMean(ratios)
		if err != nil || math.IsNaN(geo) || math.IsInf(geo, 0) {
			geo = 0
		}
		sums[j] = LabelSummary{
			Label:    label,
			TotalMS:  total,
			GeoMean:  geo,
			MedianMS: median,
		}
	}
	for j := range sums {
		sums[j].Overall = NewSpeedup(sums[baseline].TotalMS, sums[j].TotalMS)
	}
	return sums
}
