// Package main implements the tpchbench binary, which runs the TPC-H query
// set against Postgres with and without the DuckDB execution engine and
// compares the timings.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgduckdb/tpchbench/internal/app"
	"github.com/pgduckdb/tpchbench/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	dataDir    string
	resultsDir string
	logLevel   string
	logFormat  string
}

func makeTPCHBenchCommand() *cobra.Command {
	var g globalFlags
	command := &cobra.Command{
		Use:     "tpchbench [command] (flags)",
		Short:   "tpchbench runs the TPC-H benchmark against PostgreSQL, DuckDB and MotherDuck through pg_duckdb.",
		Version: version + " (commit: " + commit + ")",
		Long: `tpchbench runs the TPC-H benchmark against PostgreSQL, DuckDB and MotherDuck through pg_duckdb.

Typical usage:
    tpchbench run --pg-engine --duckdb-engine --cold --hot
        Generate scale factor 1, load it, and compare all four configurations.

    tpchbench run --duckdb-engine --skip-generate --skip-load --queries 1,6,14
        Rerun three queries against an already loaded dataset.

    tpchbench compare "PostgreSQL (Cold)=results/a.raw.csv" "DuckDB (Cold)=results/b.raw.csv"
        Compare existing results files.

    tpchbench runs --limit 10
        List the most recent runs in the catalog.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	command.PersistentFlags().StringVar(&g.configFile, "config", "", "path to configuration file (YAML or JSON)")
	command.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	command.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "base directory for the run catalog and local artifacts")
	command.PersistentFlags().StringVar(&g.resultsDir, "results-dir", "", "directory results files are written to")
	command.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	command.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: console or json")

	command.AddCommand(makeRunCommand(&g))
	command.AddCommand(makeCompareCommand(&g))
	command.AddCommand(makeRunsCommand(&g))
	command.AddCommand(makeFetchCommand(&g))

	return command
}

// loadConfig builds the configuration from, in increasing precedence,
// defaults or the config file, the environment, and flags the user set.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if g.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(g.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = g.dataDir
	}
	if flags.Changed("results-dir") {
		cfg.ResultsDir = g.resultsDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}

	app.SetupLogging(cfg.Log)
	return cfg, nil
}

// withApp loads the configuration, lets adjust apply command flags, and runs
// fn against a fresh App.
func withApp(cmd *cobra.Command, g *globalFlags, adjust func(*config.Config) error, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func main() {
	app.SetupLogging(config.LogConfig{Level: "info"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := makeTPCHBenchCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Msgf("ERROR: %v", err)
		stop()
		os.Exit(1)
	}
}
