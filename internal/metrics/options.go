// Package metrics computes per-note graph metrics and classifies hubs and
// orphans.
package metrics

// Defaults for Options.
const (
	DefaultDamping       = 0.85
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
	DefaultHubThreshold  = 10
)

// Options configures an Engine.
type Options struct {
	// Damping is the probability of following a link rather than jumping.
	Damping float64
	// Tolerance stops PageRank once the L1 change between iterations drops
	// below Tolerance * N.
	Tolerance float64
	// MaxIterations caps PageRank power iterations.
	MaxIterations int
	// HubThreshold is the combined in+out degree at which a note is a hub.
	HubThreshold int
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() Options {
	return Options{
		Damping:       DefaultDamping,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		HubThreshold:  DefaultHubThreshold,
	}
}

// withDefaults replaces out-of-range values with defaults.
func (o Options) withDefaults() Options {
	if o.Damping <= 0 || o.Damping >= 1 {
		o.Damping = DefaultDamping
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.HubThreshold < 1 {
		o.HubThreshold = DefaultHubThreshold
	}
	return o
}

// IsOrphan reports whether a note has neither incoming nor outgoing edges.
func IsOrphan(in, out int) bool {
	return in == 0 && out == 0
}

// IsHub reports whether a note's combined degree reaches threshold. An
// orphan is never a hub.
func IsHub(in, out, threshold int) bool {
	return !IsOrphan(in, out) && in+out >= threshold
}
