package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/pgduckdb/tpchbench/internal/engine"
	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// Tables lists the TPC-H tables in foreign-key dependency order.
var Tables = []string{
	"region",
	"nation",
	"part",
	"supplier",
	"partsupp",
	"customer",
	"orders",
	"lineitem",
}

// Dump files are pipe-delimited CSV with a header line. DuckDB writes the
// header by default; it is spelled out so both sides agree.
const (
	exportOptions = "FORMAT CSV, DELIMITER '|', HEADER true"
	copyOptions   = "FORMAT csv, DELIMITER '|', HEADER true"
)

// Loader streams a generated dump into a provisioned schema.
type Loader struct{}

// NewLoader creates a loader.
func NewLoader() *Loader {
	return &Loader{}
}

// CopySQL returns the COPY statement used for one table.
func CopySQL(schemaName, table string) string {
	return fmt.Sprintf("COPY %s FROM STDIN (%s)", pgx.Identifier{schemaName, table}.Sanitize(), copyOptions)
}

// Load truncates and reloads every table from <dumpDir>/<table>.csv.
func (l *Loader) Load(ctx context.Context, conn engine.Copier, schemaName, dumpDir string) error {
	if info, err := os.Stat(dumpDir); err != nil || !info.IsDir() {
		return benchErrors.NewLoadError(benchErrors.CodeDumpMissing,
			fmt.Sprintf("dump directory %s not found", dumpDir), err)
	}

	for _, table := range Tables {
		if err := l.loadTable(ctx, conn, schemaName, dumpDir, table); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadTable(ctx context.Context, conn engine.Copier, schemaName, dumpDir, table string) error {
	path := filepath.Join(dumpDir, table+".csv")
	f, err := os.Open(path)
	if err != nil {
		return benchErrors.NewLoadError(benchErrors.CodeDumpMissing,
			fmt.Sprintf("data file %s not found", path), err)
	}
	defer f.Close()

	qualified := pgx.Identifier{schemaName, table}.Sanitize()
	if _, err := conn.Exec(ctx, "TRUNCATE "+qualified); err != nil {
		return benchErrors.NewLoadError(benchErrors.CodeCopyFailed,
			fmt.Sprintf("truncate %s", qualified), err)
	}

	start := time.Now()
	rows, err := conn.CopyFrom(ctx, f, CopySQL(schemaName, table))
	if err != nil {
		return benchErrors.NewLoadError(benchErrors.CodeCopyFailed,
			fmt.Sprintf("copy %s", qualified), err)
	}
	log.Info().Str("table", table).Int64("rows", rows).Dur("elapsed", time.Since(start)).Msg("Loaded table")
	return nil
}
