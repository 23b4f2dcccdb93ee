// Package report renders analysis results as text and PNG charts.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pgduckdb/tpchbench/internal/analysis"
)

var (
	faster = color.New(color.FgGreen)
	slower = color.New(color.FgRed)
	muted  = color.New(color.Faint)
)

// WriteListing prints the single-run listing.
func WriteListing(w io.Writer, l *analysis.Listing) error {
	var b strings.Builder
	b.WriteString("\nQuery Results:\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	for _, s := range l.Samples {
		fmt.Fprintf(&b, "%-4s: %8.1f ms\n", s.QueryName, s.LatencyMS)
	}
	fmt.Fprintf(&b, "\nTotal time: %.0f ms\n", l.TotalMS)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComparison prints the per-query detail block, a speedup table and
// the summary totals.
func WriteComparison(w io.Writer, cmp *analysis.Comparison) error {
	if err := writeDetail(w, cmp); err != nil {
		return err
	}
	if err := writeTable(w, cmp); err != nil {
		return err
	}
	return writeSummary(w, cmp)
}

func writeDetail(w io.Writer, cmp *analysis.Comparison) error {
	base := cmp.BaselineLabel()
	var b strings.Builder
	fmt.Fprintf(&b, "\nDetailed Query Results (baseline: %s):\n", base)
	b.WriteString(strings.Repeat("=", 80) + "\n")
	if len(cmp.Rows) == 0 {
		b.WriteString("\nNo queries in common\n")
	}

	for _, row := range cmp.Rows {
		fmt.Fprintf(&b, "\n%s:\n", row.Query)
		fmt.Fprintf(&b, "  %-15s: %8.1f ms (baseline)\n", base, row.Latencies[cmp.Baseline])
		for j, label := range cmp.Labels {
			if j == cmp.Baseline {
				continue
			}
			fmt.Fprintf(&b, "  %-15s: %8.1f ms (%s)\n", label, row.Latencies[j], paint(row.Speedups[j], ""))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTable(w io.Writer, cmp *analysis.Comparison) error {
	headers := []string{"Query"}
	for j, label := range cmp.Labels {
		headers = append(headers, label+" (ms)")
		if j != cmp.Baseline {
			headers = append(headers, "vs "+cmp.BaselineLabel())
		}
	}

	alignment := make([]tw.Align, len(headers))
	alignment[0] = tw.AlignLeft
	for i := 1; i < len(alignment); i++ {
		alignment[i] = tw.AlignRight
	}

	io.WriteString(w, "\n")
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for _, row := range cmp.Rows {
		cells := []string{row.Query}
		for j := range cmp.Labels {
			cells = append(cells, fmt.Sprintf("%.1f", row.Latencies[j]))
			if j != cmp.Baseline {
				cells = append(cells, annotate(row.Speedups[j]))
			}
		}
		if err := table.Append(cells); err != nil {
			return err
		}
	}

	footer := []string{"Total"}
	for j, s := range cmp.Summaries {
		footer = append(footer, fmt.Sprintf("%.0f", s.TotalMS))
		if j != cmp.Baseline {
			footer = append(footer, annotate(s.Overall))
		}
	}
	if err := table.Append(footer); err != nil {
		return err
	}
	return table.Render()
}

func writeSummary(w io.Writer, cmp *analysis.Comparison) error {
	base := cmp.BaselineLabel()
	var b strings.Builder
	fmt.Fprintf(&b, "\nSummary (baseline: %s):\n", base)
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Total %s time: %.0f ms (baseline)\n", base, cmp.Summaries[cmp.Baseline].TotalMS)

	for j, s := range cmp.Summaries {
		if j == cmp.Baseline {
			continue
		}
		fmt.Fprintf(&b, "Total %s time: %.0f ms (%s)\n", s.Label, s.TotalMS, paint(s.Overall, "overall"))
	}

	for j, s := range cmp.Summaries {
		if j == cmp.Baseline || s.GeoMean == 0 {
			continue
		}
		b.WriteString(muted.Sprintf("Geometric mean speedup %s: %.2fx\n", s.Label, s.GeoMean))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func paint(s analysis.Speedup, qualifier string) string {
	text := s.Describe(qualifier)
	switch {
	case !s.Defined:
		return muted.Sprint(text)
	case s.Faster():
		return faster.Sprint(text)
	default:
		return slower.Sprint(text)
	}
}

func annotate(s analysis.Speedup) string {
	text := s.Annotation()
	switch {
	case !s.Defined:
		return text
	case s.Faster():
		return faster.Sprint(text)
	default:
		return slower.Sprint(text)
	}
}
