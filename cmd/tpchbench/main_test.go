package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgduckdb/tpchbench/internal/config"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

func TestParseEntries(t *testing.T) {
	entries, err := parseEntries([]string{"PostgreSQL (Cold)=a.csv", "x=y=z.csv"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "PostgreSQL (Cold)", entries[0].Label)
	assert.Equal(t, "a.csv", entries[0].Path)
	assert.Equal(t, "y=z.csv", entries[1].Path, "split at the first '='")

	for _, bad := range []string{"nolabel", "=file.csv", "label="} {
		_, err := parseEntries([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"1", "6", "14"}, splitList(" 1, 6,,14 "))
	assert.Nil(t, splitList(""))
}

func applyRunFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	f := newRunFlags()
	f.register(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))

	cfg := config.DefaultConfig()
	cfg.Benchmark.Engines = []string{"pg"}
	cfg.Benchmark.Thermals = []string{"cold"}
	cfg.Connection.User = "from-env"
	return cfg, f.apply(cmd, cfg)
}

func TestRunFlagsApply(t *testing.T) {
	cfg, err := applyRunFlags(t,
		"--duckdb-engine", "--motherduck", "--hot",
		"--queries", "2,1", "--timeout", "30s", "--pk-only",
		"--port", "6543", "--pg-work-mem", "1GB")
	require.NoError(t, err)

	assert.Equal(t, []string{"duckdb", "motherduck"}, cfg.Benchmark.Engines)
	assert.Equal(t, []string{"hot"}, cfg.Benchmark.Thermals)
	assert.Equal(t, []string{"2", "1"}, cfg.Benchmark.Queries)
	assert.Equal(t, "30s", cfg.Benchmark.Timeout)
	assert.Equal(t, "pk-only", cfg.Benchmark.SchemaVariant)
	assert.Equal(t, 6543, cfg.Connection.Port)
	assert.Equal(t, "1GB", cfg.Benchmark.WorkMem)
	assert.Equal(t, "from-env", cfg.Connection.User, "unset flags keep earlier layers")
}

func TestRunFlagsUnsetKeepConfig(t *testing.T) {
	cfg, err := applyRunFlags(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"pg"}, cfg.Benchmark.Engines)
	assert.Equal(t, []string{"cold"}, cfg.Benchmark.Thermals)
	assert.Equal(t, "full", cfg.Benchmark.SchemaVariant)
}

func TestRunFlagsConflictingVariant(t *testing.T) {
	_, err := applyRunFlags(t, "--pk-only", "--no-indexes")
	require.Error(t, err)
	assert.Equal(t, benchErrors.CodeConflictingFlags, benchErrors.GetCode(err))
	assert.True(t, benchErrors.IsFatal(err))
}

func TestUsernameShorthand(t *testing.T) {
	cfg, err := applyRunFlags(t, "-U", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Connection.User)
}

func TestFetchCommandArgs(t *testing.T) {
	var fetch *cobra.Command
	for _, c := range makeTPCHBenchCommand().Commands() {
		if c.Name() == "fetch" {
			fetch = c
		}
	}
	require.NotNil(t, fetch)
	assert.Error(t, fetch.Args(fetch, nil))
	assert.NoError(t, fetch.Args(fetch, []string{"0a1b2c3d"}))
	assert.Equal(t, ".", fetch.Flags().Lookup("output-dir").DefValue)
}
