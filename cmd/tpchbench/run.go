package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pgduckdb/tpchbench/internal/app"
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/schema"
)

type runFlags struct {
	database           string
	motherDuckDatabase string
	schemaName         string
	username           string
	password           string
	host               string
	port               int

	scaleFactor string
	queriesDir  string
	queries     string
	timeout     string

	pgEngine     bool
	duckdbEngine bool
	motherduck   bool
	cold         bool
	hot          bool

	skipGenerate bool
	skipLoad     bool
	skipExecute  bool

	noIndexes bool
	pkOnly    bool

	disableNestLoop bool
	workMem         string

	schemaDir    string
	dumpDir      string
	duckdbBinary string
	chart        string
	noChart      bool

	storageType string
	storagePath string
	s3Bucket    string
	compress    bool
}

func newRunFlags() *runFlags {
	defaults := config.DefaultConfig()
	return &runFlags{
		database:     defaults.Connection.Database,
		host:         defaults.Connection.Host,
		port:         defaults.Connection.Port,
		scaleFactor:  defaults.Benchmark.ScaleFactor,
		queriesDir:   defaults.Benchmark.QueriesDir,
		timeout:      defaults.Benchmark.Timeout,
		duckdbBinary: defaults.Benchmark.DuckDBBinary,
	}
}

func makeRunCommand(g *globalFlags) *cobra.Command {
	f := newRunFlags()
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, g,
			func(cfg *config.Config) error { return f.apply(cmd, cfg) },
			func(ctx context.Context, a *app.App) error {
				_, err := a.Benchmark(ctx)
				return err
			})
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, load and execute TPC-H on each selected engine and thermal state",
		Long: `Run every combination of the selected engines and thermal states, write one
results file per combination, and report. With no engine flag PostgreSQL is
used; with no thermal flag only a cold run is made.`,
		Args: cobra.NoArgs,
		RunE: runCmdFunc,
	}
	f.register(cmd.Flags())
	return cmd
}

func (f *runFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.database, "database-name", f.database, "database to connect to")
	flags.StringVar(&f.motherDuckDatabase, "motherduck-database", f.motherDuckDatabase, "database used for the motherduck engine")
	flags.StringVar(&f.schemaName, "schema-name", f.schemaName, "schema name, derived from the scale factor by default")
	flags.StringVarP(&f.username, "username", "U", f.username, "PostgreSQL username (overrides PGUSER)")
	flags.StringVar(&f.password, "password", f.password, "PostgreSQL password (overrides PGPASSWORD)")
	flags.StringVar(&f.host, "host", f.host, "PostgreSQL host")
	flags.IntVar(&f.port, "port", f.port, "PostgreSQL port")

	flags.StringVar(&f.scaleFactor, "scale-factor", f.scaleFactor, "TPC-H scale factor")
	flags.StringVar(&f.queriesDir, "queries-dir", f.queriesDir, "directory containing q01.sql ... q22.sql")
	flags.StringVar(&f.queries, "queries", f.queries, "comma-separated query numbers to run, e.g. 1,6,14")
	flags.StringVar(&f.timeout, "timeout", f.timeout, "per-query timeout with an s or m suffix, e.g. 300s or 5m")

	flags.BoolVar(&f.pgEngine, "pg-engine", false, "run with the PostgreSQL executor")
	flags.BoolVar(&f.duckdbEngine, "duckdb-engine", false, "run with the DuckDB executor")
	flags.BoolVar(&f.motherduck, "motherduck", false, "run against MotherDuck")
	flags.BoolVar(&f.cold, "cold", false, "run right after loading")
	flags.BoolVar(&f.hot, "hot", false, "run again without reloading")

	flags.BoolVar(&f.skipGenerate, "skip-generate", false, "reuse an existing dump")
	flags.BoolVar(&f.skipLoad, "skip-load", false, "reuse already loaded tables")
	flags.BoolVar(&f.skipExecute, "skip-execute", false, "generate and load only")

	flags.BoolVar(&f.noIndexes, "no-indexes", false, "create tables without keys or indexes")
	flags.BoolVar(&f.pkOnly, "pk-only", false, "create tables with primary keys only")

	flags.BoolVar(&f.disableNestLoop, "disable-nested-loop-join", false, "set enable_nestloop off")
	flags.StringVar(&f.workMem, "pg-work-mem", f.workMem, "work_mem for the benchmark session, e.g. 256MB")

	flags.StringVar(&f.schemaDir, "schema-dir", f.schemaDir, "directory with DDL files overriding the built-in ones")
	flags.StringVar(&f.dumpDir, "dump-dir", f.dumpDir, "directory holding the generated CSV dump")
	flags.StringVar(&f.duckdbBinary, "duckdb-binary", f.duckdbBinary, "DuckDB CLI used to generate data")
	flags.StringVar(&f.chart, "chart", f.chart, "comparison chart file, derived from the run when empty")
	flags.BoolVar(&f.noChart, "no-chart", false, "do not draw the comparison chart")

	flags.StringVar(&f.storageType, "storage-type", f.storageType, "artifact storage: none, local, s3")
	flags.StringVar(&f.storagePath, "storage-path", f.storagePath, "local artifact storage path")
	flags.StringVar(&f.s3Bucket, "s3-bucket", f.s3Bucket, "S3 bucket for artifacts")
	flags.BoolVar(&f.compress, "compress", false, "snappy-compress archived artifacts")
}

// apply copies the flags the user set onto cfg. Engine and thermal flags
// replace the configured lists when any of them is given.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := flags.Changed

	if changed("database-name") {
		cfg.Connection.Database = f.database
	}
	if changed("motherduck-database") {
		cfg.Connection.MotherDuckDatabase = f.motherDuckDatabase
	}
	if changed("schema-name") {
		cfg.Benchmark.SchemaName = f.schemaName
	}
	if changed("username") {
		cfg.Connection.User = f.username
	}
	if changed("password") {
		cfg.Connection.Password = f.password
	}
	if changed("host") {
		cfg.Connection.Host = f.host
	}
	if changed("port") {
		cfg.Connection.Port = f.port
	}

	if changed("scale-factor") {
		cfg.Benchmark.ScaleFactor = f.scaleFactor
	}
	if changed("queries-dir") {
		cfg.Benchmark.QueriesDir = f.queriesDir
	}
	if changed("queries") {
		cfg.Benchmark.Queries = splitList(f.queries)
	}
	if changed("timeout") {
		cfg.Benchmark.Timeout = f.timeout
	}

	if changed("pg-engine") || changed("duckdb-engine") || changed("motherduck") {
		cfg.Benchmark.Engines = pick([]string{"pg", "duckdb", "motherduck"}, f.pgEngine, f.duckdbEngine, f.motherduck)
	}
	if changed("cold") || changed("hot") {
		cfg.Benchmark.Thermals = pick([]string{"cold", "hot"}, f.cold, f.hot)
	}

	// Flags win over the environment even when set to false.
	if changed("skip-generate") {
		cfg.Benchmark.SkipGenerate = f.skipGenerate
	}
	if changed("skip-load") {
		cfg.Benchmark.SkipLoad = f.skipLoad
	}
	if changed("skip-execute") {
		cfg.Benchmark.SkipExecute = f.skipExecute
	}

	if changed("no-indexes") || changed("pk-only") {
		v, err := schema.FromFlags(f.noIndexes, f.pkOnly)
		if err != nil {
			return err
		}
		cfg.Benchmark.SchemaVariant = string(v)
	}

	if changed("disable-nested-loop-join") {
		cfg.Benchmark.DisableNestLoop = f.disableNestLoop
	}
	if changed("pg-work-mem") {
		cfg.Benchmark.WorkMem = f.workMem
	}
	if changed("schema-dir") {
		cfg.Benchmark.SchemaDir = f.schemaDir
	}
	if changed("dump-dir") {
		cfg.Benchmark.DumpDir = f.dumpDir
	}
	if changed("duckdb-binary") {
		cfg.Benchmark.DuckDBBinary = f.duckdbBinary
	}
	if changed("chart") {
		cfg.Benchmark.Chart = f.chart
	}
	if changed("no-chart") {
		cfg.Benchmark.NoChart = f.noChart
	}

	if changed("storage-type") {
		cfg.Storage.Type = f.storageType
	}
	if changed("storage-path") {
		cfg.Storage.Path = f.storagePath
	}
	if changed("s3-bucket") {
		cfg.Storage.S3.Bucket = f.s3Bucket
	}
	if changed("compress") {
		cfg.Storage.Compress = f.compress
	}
	return nil
}

// pick returns the names whose flag is set, in the order given.
func pick(names []string, set ...bool) []string {
	var out []string
	for i, on := range set {
		if on {
			out = append(out, names[i])
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
