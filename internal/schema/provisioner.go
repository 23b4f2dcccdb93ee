package schema

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/engine"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

//go:embed ddl/*.sql
var builtin embed.FS

// Provisioner creates the benchmark tables. DDL comes from the embedded
// profiles unless a directory override is configured.
type Provisioner struct {
	dir string
}

// NewProvisioner creates a provisioner. An empty dir uses the built-in DDL.
func NewProvisioner(dir string) *Provisioner {
	return &Provisioner{dir: dir}
}

// Check verifies that the DDL file for v is available. It is meant to run
// before any benchmarking so a missing override fails the whole program.
func (p *Provisioner) Check(v Variant) error {
	_, err := p.ddl(v)
	return err
}

func (p *Provisioner) ddl(v Variant) (string, error) {
	if p.dir == "" {
		data, err := builtin.ReadFile("ddl/" + v.FileName())
		if err != nil {
			return "", benchErrors.NewConfigError(benchErrors.CodeMissingSchemaFile,
				fmt.Sprintf("built-in schema file %s not found", v.FileName()))
		}
		return string(data), nil
	}

	path := filepath.Join(p.dir, v.FileName())
	data, err := os.ReadFile(path)
	if err != nil {
		return "", benchErrors.NewConfigError(benchErrors.CodeMissingSchemaFile,
			fmt.Sprintf("schema file %s not found", path))
	}
	return string(data), nil
}

// Provision creates the schema if needed, points the session at it and runs
// the DDL of the chosen variant. Every statement is IF NOT EXISTS so running
// it twice is harmless.
func (p *Provisioner) Provision(ctx context.Context, conn engine.Conn, schemaName string, v Variant) error {
	ddl, err := p.ddl(v)
	if err != nil {
		return err
	}

	if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+QuoteIdent(schemaName)); err != nil {
		return benchErrors.NewProvisionError(fmt.Sprintf("create schema %s", schemaName), err)
	}
	if _, err := conn.Exec(ctx, SearchPath(schemaName)); err != nil {
		return benchErrors.NewProvisionError(fmt.Sprintf("set search_path to %s", schemaName), err)
	}

	log.Info().Str("schema", schemaName).Str("file", v.FileName()).Msgf("Using %s", v.Description())

	for _, stmt := range SplitStatements(ddl) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return benchErrors.NewProvisionError(fmt.Sprintf("execute %s", firstLine(stmt)), err)
		}
	}
	return nil
}

// QuoteIdent quotes a Postgres identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteLiteral quotes a string literal for statements that take no parameters.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SearchPath returns the statement that pins the session to schemaName.
func SearchPath(schemaName string) string {
	return "SET search_path = " + QuoteLiteral(schemaName)
}

// SplitStatements splits a DDL script on semicolons, dropping comment lines
// and empty statements. The scripts it handles never embed semicolons in
// literals.
func SplitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, part := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
