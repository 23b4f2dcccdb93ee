package types

import "errors"

// Sample-related errors
var (
	// ErrNegativeLatency is returned when a persisted sample carries a negative latency
	ErrNegativeLatency = errors.New("negative latency")

	// ErrNegativeRows is returned when a persisted sample carries a negative row count
	ErrNegativeRows = errors.New("negative row count")
)

// Validate checks the invariants a persisted sample must satisfy.
func (s Sample) Validate() error {
	if s.LatencyMS < 0 {
		return ErrNegativeLatency
	}
	if s.Rows < 0 {
		return ErrNegativeRows
	}
	return nil
}
