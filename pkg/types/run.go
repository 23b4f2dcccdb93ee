package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunID identifies one execution of one matrix cell.
type RunID string

// NewRunID returns a fresh random run identifier.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// Short returns the first eight characters, used in object keys and log lines.
func (id RunID) Short() string {
	s := strings.ReplaceAll(string(id), "-", "")
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Run is the outcome of a completed execute step.
type Run struct {
	ID        RunID
	Label     string
	StartedAt time.Time
	EndedAt   time.Time
	Samples   []Sample
}

// TotalMS sums the latencies of all samples.
func (r *Run) TotalMS() float64 {
	var total float64
	for _, s := range r.Samples {
		total += s.LatencyMS
	}
	return total
}
