package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgduckdb/tpchbench/internal/analysis"
	"github.com/pgduckdb/tpchbench/internal/app"
	"github.com/pgduckdb/tpchbench/internal/config"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

func makeCompareCommand(g *globalFlags) *cobra.Command {
	var (
		chart   string
		noChart bool
	)
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		entries, err := parseEntries(args)
		if err != nil {
			return err
		}
		return withApp(cmd, g,
			func(cfg *config.Config) error {
				if cmd.Flags().Changed("chart") {
					cfg.Benchmark.Chart = chart
				}
				if cmd.Flags().Changed("no-chart") {
					cfg.Benchmark.NoChart = noChart
				}
				return nil
			},
			func(ctx context.Context, a *app.App) error {
				return a.Compare(ctx, entries)
			})
	}
	cmd := &cobra.Command{
		Use:   "compare LABEL=FILE...",
		Short: "Compare existing results files",
		Long: `Compare results files produced by earlier runs. Each argument pairs a label
with a results file. The first label containing "PostgreSQL" is the baseline,
otherwise the first label is.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCmdFunc,
	}
	cmd.Flags().StringVar(&chart, "chart", chart, "comparison chart file (default comparison.png)")
	cmd.Flags().BoolVar(&noChart, "no-chart", false, "do not draw the comparison chart")
	return cmd
}

// parseEntries splits LABEL=FILE arguments at the first '='.
func parseEntries(args []string) ([]analysis.Entry, error) {
	entries := make([]analysis.Entry, 0, len(args))
	for _, arg := range args {
		label, path, ok := strings.Cut(arg, "=")
		if !ok || label == "" || path == "" {
			return nil, benchErrors.NewConfigError(benchErrors.CodeInvalidValue,
				fmt.Sprintf("expected LABEL=FILE, got %q", arg))
		}
		entries = append(entries, analysis.Entry{Label: label, Path: path})
	}
	return entries, nil
}

func makeRunsCommand(g *globalFlags) *cobra.Command {
	limit := 20
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, g, nil, func(ctx context.Context, a *app.App) error {
			return a.ListRuns(ctx, limit)
		})
	}
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runCmdFunc,
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "number of runs to show, 0 for all")
	return cmd
}
