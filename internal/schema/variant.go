// Package schema provisions the TPC-H tables in a target schema.
package schema

import (
	"fmt"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// Variant selects one of the predefined DDL profiles.
type Variant string

const (
	// Full creates primary keys and foreign-key indexes.
	Full Variant = "full"
	// PKOnly creates primary keys only.
	PKOnly Variant = "pk-only"
	// NoIndexes creates bare tables.
	NoIndexes Variant = "no-indexes"
)

// ParseVariant converts a variant name into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Full, PKOnly, NoIndexes:
		return Variant(s), nil
	}
	return "", benchErrors.NewConfigError(benchErrors.CodeInvalidValue,
		fmt.Sprintf("unknown schema variant %q", s))
}

// FromFlags picks a variant from the two mutually exclusive CLI toggles.
func FromFlags(noIndexes, pkOnly bool) (Variant, error) {
	switch {
	case noIndexes && pkOnly:
		return "", benchErrors.NewConfigError(benchErrors.CodeConflictingFlags,
			"--no-indexes and --pk-only cannot be used together")
	case noIndexes:
		return NoIndexes, nil
	case pkOnly:
		return PKOnly, nil
	}
	return Full, nil
}

// FileName returns the DDL file that implements the variant.
func (v Variant) FileName() string {
	switch v {
	case NoIndexes:
		return "create-schema-no-indexes.sql"
	case PKOnly:
		return "create-schema-pk.sql"
	}
	return "create-schema.sql"
}

// Suffix is appended to the chart file prefix.
func (v Variant) Suffix() string {
	switch v {
	case NoIndexes:
		return "_no_indexes"
	case PKOnly:
		return "_pk_only"
	}
	return ""
}

// Description is the human-readable profile name.
func (v Variant) Description() string {
	switch v {
	case NoIndexes:
		return "no-indexes schema"
	case PKOnly:
		return "primary keys only schema"
	}
	return "full schema with indexes"
}
