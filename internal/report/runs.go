package report

import (
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pgduckdb/tpchbench/internal/catalog"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// WriteRuns prints catalog runs newest first.
func WriteRuns(w io.Writer, runs []*catalog.RunRecord) error {
	if len(runs) == 0 {
		_, err := io.WriteString(w, "No runs recorded\n")
		return err
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Run", "Label", "SF", "Schema", "Started", "Duration", "Results"})
	for _, r := range runs {
		row := []string{
			r.RunID.Short(),
			r.Label,
			r.ScaleFactor,
			r.SchemaVariant,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			r.ResultsPath,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteStatusNote prints a line counting timed-out and failed samples, or
// nothing when every sample succeeded.
func WriteStatusNote(w io.Writer, label string, samples []types.Sample) error {
	var timedOut, failed int
	for _, s := range samples {
		switch s.Status {
		case types.StatusTimedOut:
			timedOut++
		case types.StatusFailed:
			failed++
		}
	}
	if timedOut == 0 && failed == 0 {
		return nil
	}
	_, err := io.WriteString(w, muted.Sprintf("%s: %d timed out, %d failed\n", label, timedOut, failed))
	return err
}
