// Package types provides the value types shared by the benchmark harness.
package types

import "fmt"

// Status tags how a query execution ended.
type Status int

const (
	// StatusOK means the statement completed and its rows were drained.
	StatusOK Status = iota
	// StatusTimedOut means the engine cancelled the statement at the statement timeout.
	StatusTimedOut
	// StatusFailed means the engine rejected the statement or the statement errored.
	StatusFailed
)

// Sentinel latencies written to results files for failed queries. They are
// deliberately implausible so failed queries sort as the slowest.
const (
	SentinelFailedMS     = 999999.999
	SentinelFailedMicros = 999999999
)

// String returns the lower-case status name used in the run catalog.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timeout"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ok":
		return StatusOK, nil
	case "timeout":
		return StatusTimedOut, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusOK, fmt.Errorf("unknown sample status %q", s)
	}
}

// Sample is one measured execution of one query under one configuration.
// Samples are created by the executor when a query finishes and are never
// modified afterwards.
type Sample struct {
	// QueryName is the canonical identifier, e.g. "Q01".
	QueryName string `json:"query_name"`

	// LatencyMS is the wall-clock elapsed time in milliseconds.
	LatencyMS float64 `json:"latency_ms"`

	// Rows is the number of rows returned, or the affected-row count for
	// statements that return no rows.
	Rows int64 `json:"rows"`

	Status Status `json:"status"`

	// Reason carries the error text for failed samples. It is never written
	// to results files.
	Reason string `json:"reason,omitempty"`

	// TimeoutSeconds is the configured timeout for timed-out samples.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// OKSample records a successful execution.
func OKSample(name string, latencyMS float64, rows int64) Sample {
	if latencyMS < 0 {
		latencyMS = 0
	}
	if rows < 0 {
		rows = 0
	}
	return Sample{QueryName: name, LatencyMS: latencyMS, Rows: rows, Status: StatusOK}
}

// TimedOutSample records a statement cancelled at the configured timeout.
// Its latency is exactly the timeout.
func TimedOutSample(name string, timeoutSeconds int) Sample {
	return Sample{
		QueryName:      name,
		LatencyMS:      float64(timeoutSeconds) * 1000,
		Status:         StatusTimedOut,
		TimeoutSeconds: timeoutSeconds,
	}
}

// FailedSample records a statement that errored for any reason other than a timeout.
func FailedSample(name, reason string) Sample {
	return Sample{
		QueryName: name,
		LatencyMS: SentinelFailedMS,
		Status:    StatusFailed,
		Reason:    reason,
	}
}

// LatencyMicros returns the latency in microseconds as persisted in results
// files. Timeouts and failures use the integer values older files carry.
func (s Sample) LatencyMicros() float64 {
	switch s.Status {
	case StatusTimedOut:
		return float64(s.TimeoutSeconds) * 1000000
	case StatusFailed:
		return SentinelFailedMicros
	default:
		return s.LatencyMS * 1000
	}
}

// OK reports whether the sample is a successful execution.
func (s Sample) OK() bool {
	return s.Status == StatusOK
}
