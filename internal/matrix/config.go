// Package matrix runs the engine x thermal benchmark matrix.
package matrix

import (
	"github.com/pgduckdb/tpchbench/internal/config"
	"github.com/pgduckdb/tpchbench/internal/engine"
	"github.com/pgduckdb/tpchbench/internal/schema"
)

// RemoteSchemaPrefix prefixes the default schema name on managed backends.
const RemoteSchemaPrefix = "ddb$"

// Overrides replaces the base skip flags for one cell. Nil leaves the base
// value in place.
type Overrides struct {
	SkipGenerate *bool
	SkipLoad     *bool
}

// RunConfiguration is the immutable configuration of one matrix cell.
type RunConfiguration struct {
	Engine  engine.Engine
	Thermal engine.Thermal
	Variant schema.Variant

	Params      engine.Params
	SchemaName  string
	ScaleFactor string
	DumpDir     string

	TimeoutSeconds  int
	WorkMem         string
	DisableNestLoop bool

	SkipGenerate bool
	SkipLoad     bool
	SkipExecute  bool

	// Label is e.g. "DuckDB (Hot)".
	Label string
	// ResultsSuffix is "_<engine>_<thermal>".
	ResultsSuffix string
}

// Generates reports whether the cell runs the data generator.
func (rc RunConfiguration) Generates() bool {
	return !rc.Engine.Remote() && !rc.SkipGenerate && !rc.SkipLoad
}

// Loads reports whether the cell provisions the schema and loads data.
func (rc RunConfiguration) Loads() bool {
	return !rc.Engine.Remote() && !rc.SkipLoad
}

// ForCell builds the configuration of one cell from the base configuration.
// base must already be resolved and validated.
func ForCell(base *config.Config, e engine.Engine, t engine.Thermal, o Overrides) RunConfiguration {
	b := base.Benchmark
	dump := b.DumpName()

	schemaName := b.SchemaName
	database := base.Connection.Database
	if e.Remote() {
		if schemaName == "" {
			schemaName = RemoteSchemaPrefix + dump
		}
		if base.Connection.MotherDuckDatabase != "" {
			database = base.Connection.MotherDuckDatabase
		}
	} else if schemaName == "" {
		schemaName = dump
	}

	dumpDir := b.DumpDir
	if dumpDir == "" {
		dumpDir = dump
	}

	rc := RunConfiguration{
		Engine:  e,
		Thermal: t,
		Variant: schema.Variant(b.SchemaVariant),
		Params: engine.Params{
			Host:     base.Connection.Host,
			Port:     base.Connection.Port,
			Database: database,
			User:     base.Connection.User,
			Password: base.Connection.Password,
		},
		SchemaName:      schemaName,
		ScaleFactor:     b.ScaleFactor,
		DumpDir:         dumpDir,
		TimeoutSeconds:  b.TimeoutSeconds(),
		WorkMem:         b.WorkMem,
		DisableNestLoop: b.DisableNestLoop,
		SkipGenerate:    b.SkipGenerate,
		SkipLoad:        b.SkipLoad,
		SkipExecute:     b.SkipExecute,
		Label:           engine.Label(e, t),
		ResultsSuffix:   "_" + string(e) + "_" + string(t),
	}
	if o.SkipGenerate != nil {
		rc.SkipGenerate = *o.SkipGenerate
	}
	if o.SkipLoad != nil {
		rc.SkipLoad = *o.SkipLoad
	}
	return rc
}

// Cell is one position in the matrix.
type Cell struct {
	Engine  engine.Engine
	Thermal engine.Thermal

	// AfterLocalEngine is set when an earlier engine in the list generates
	// data locally, so this cell can reuse the dump.
	AfterLocalEngine bool
}

// Plan lists the cells in execution order: engines outer, thermals inner.
func Plan(engines []engine.Engine, thermals []engine.Thermal) []Cell {
	var cells []Cell
	for i, e := range engines {
		after := false
		for _, prev := range engines[:i] {
			if !prev.Remote() {
				after = true
				break
			}
		}
		for _, t := range thermals {
			cells = append(cells, Cell{Engine: e, Thermal: t, AfterLocalEngine: after})
		}
	}
	return cells
}

// Overrides returns the skip overrides for the cell given how many results
// earlier cells have produced.
func (c Cell) Overrides(priorResults int) Overrides {
	var o Overrides
	if c.AfterLocalEngine {
		o.SkipGenerate = boolPtr(true)
	}
	if c.Thermal == engine.Hot && priorResults > 0 {
		o.SkipLoad = boolPtr(true)
	}
	return o
}

// FilePrefix is the dump name plus the schema variant suffix, used to name
// the comparison chart.
func FilePrefix(b *config.BenchmarkConfig) string {
	return b.DumpName() + schema.Variant(b.SchemaVariant).Suffix()
}

func boolPtr(b bool) *bool {
	return &b
}
