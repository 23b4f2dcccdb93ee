package analysis

import "fmt"

// Speedup is the ratio of a baseline latency to another configuration's
// latency, together with its symmetric presentation value.
type Speedup struct {
	// Raw is baseline/other.
	Raw float64
	// Value is Raw when Raw >= 1, else -1/Raw.
	Value float64
	// Defined is false when either latency is zero.
	Defined bool
}

// NewSpeedup computes the speedup of other relative to baseline.
func NewSpeedup(baseline, other float64) Speedup {
	if baseline <= 0 || other <= 0 {
		return Speedup{}
	}
	raw := baseline / other
	return Speedup{Raw: raw, Value: Symmetric(raw), Defined: true}
}

// Symmetric maps a raw ratio onto the symmetric scale: ratios below one
// become the negative of their reciprocal.
func Symmetric(raw float64) float64 {
	if raw >= 1 {
		return raw
	}
	return -1 / raw
}

// Faster reports whether the other configuration was at least as fast as
// the baseline.
func (s Speedup) Faster() bool {
	return s.Defined && s.Raw >= 1
}

// Factor is the multiplicative factor in human terms, always >= 1.
func (s Speedup) Factor() float64 {
	if !s.Defined {
		return 0
	}
	if s.Raw >= 1 {
		return s.Raw
	}
	return 1 / s.Raw
}

// Annotation is the bar label: "2.3x" or "2.3x slower".
func (s Speedup) Annotation() string {
	if !s.Defined {
		return "n/a"
	}
	if s.Raw >= 1 {
		return fmt.Sprintf("%.1fx", s.Raw)
	}
	return fmt.Sprintf("%.1fx slower", 1/s.Raw)
}

// Describe renders the factor with two decimals followed by "faster" or
// "slower" and the given qualifier, e.g. "2.00x faster overall".
func (s Speedup) Describe(qualifier string) string {
	if !s.Defined {
		return "n/a"
	}
	word := "slower"
	if s.Faster() {
		word = "faster"
	}
	if qualifier != "" {
		word += " " + qualifier
	}
	return fmt.Sprintf("%.2fx %s", s.Factor(), word)
}
