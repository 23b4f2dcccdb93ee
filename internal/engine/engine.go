// Package engine describes the query backends the harness can benchmark and
// the connection interface used to reach them.
package engine

import (
	"fmt"
	"strings"
)

// Engine identifies a query backend.
type Engine string

const (
	// Postgres is the stock PostgreSQL executor.
	Postgres Engine = "pg"
	// DuckDB is the analytical engine extension running inside Postgres.
	DuckDB Engine = "duckdb"
	// MotherDuck is the managed cloud service reached through the extension.
	MotherDuck Engine = "motherduck"
)

// All returns every known engine in canonical order.
func All() []Engine {
	return []Engine{Postgres, DuckDB, MotherDuck}
}

// Parse converts a short engine name into an Engine.
func Parse(s string) (Engine, error) {
	switch Engine(s) {
	case Postgres, DuckDB, MotherDuck:
		return Engine(s), nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// DisplayName returns the human-readable engine name used in labels.
func (e Engine) DisplayName() string {
	switch e {
	case Postgres:
		return "PostgreSQL"
	case DuckDB:
		return "DuckDB"
	case MotherDuck:
		return "MotherDuck"
	}
	return string(e)
}

// Remote reports whether the engine's data lives in a managed service.
// Remote engines never generate or load data locally.
func (e Engine) Remote() bool {
	return e == MotherDuck
}

// ForcesExecution reports whether the session must route every query
// through the analytical engine.
func (e Engine) ForcesExecution() bool {
	return e == DuckDB
}

// Thermal is the cache state a benchmark cell runs under.
type Thermal string

const (
	Cold Thermal = "cold"
	Hot  Thermal = "hot"
)

// ParseThermal converts "cold" or "hot" into a Thermal.
func ParseThermal(s string) (Thermal, error) {
	switch Thermal(s) {
	case Cold, Hot:
		return Thermal(s), nil
	}
	return "", fmt.Errorf("unknown thermal state %q", s)
}

// Title returns the capitalized thermal name, e.g. "Cold".
func (t Thermal) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Label returns the display label of an engine/thermal combination,
// e.g. "PostgreSQL (Cold)".
func Label(e Engine, t Thermal) string {
	return fmt.Sprintf("%s (%s)", e.DisplayName(), t.Title())
}

// ReferenceDisplayName is the display name the analyzer uses as baseline.
const ReferenceDisplayName = "PostgreSQL"
