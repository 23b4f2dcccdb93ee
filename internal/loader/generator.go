// Package loader generates TPC-H data with the duckdb CLI and bulk-loads it
// into Postgres.
package loader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// CommandRunner runs an external program to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs commands with os/exec, inheriting stdout and stderr.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Generator produces a CSV dump of a TPC-H dataset.
type Generator struct {
	binary string
	run    CommandRunner
}

// NewGenerator creates a generator that invokes binary. A nil runner uses
// ExecRunner.
func NewGenerator(binary string, run CommandRunner) *Generator {
	if binary == "" {
		binary = "duckdb"
	}
	if run == nil {
		run = ExecRunner
	}
	return &Generator{binary: binary, run: run}
}

// GenerateSQL returns the script the generator hands to the CLI. The export
// options must stay in step with the ones CopySQL reads back.
func GenerateSQL(scaleFactor, dumpDir string) string {
	return fmt.Sprintf("CALL dbgen(sf=%s); EXPORT DATABASE '%s' (%s)",
		scaleFactor, strings.ReplaceAll(dumpDir, "'", "''"), exportOptions)
}

// Generate writes the dataset for scaleFactor into dumpDir. It blocks until
// the external process exits; there is no timeout.
func (g *Generator) Generate(ctx context.Context, scaleFactor, dumpDir string) error {
	script := GenerateSQL(scaleFactor, dumpDir)
	log.Info().Msgf("+ %s -c %q", g.binary, script)

	if err := g.run(ctx, g.binary, "-c", script); err != nil {
		return benchErrors.NewLoadError(benchErrors.CodeGenerateFailed,
			fmt.Sprintf("generate sf=%s into %s", scaleFactor, dumpDir), err)
	}
	return nil
}
