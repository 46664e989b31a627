// Package collector defines the uniform contract fingerprint probes
// implement and provides the environmental probes (screen, canvas, stable
// hardware, battery) as thin adapters over the injected host environment.
//
// Collect never fails across the boundary: a probe that cannot read its
// signal logs the condition and contributes an empty attribute set, degrading
// fingerprint quality instead of aborting the caller.
package collector

import "context"

// Kind discriminates collector variants so the orchestrator can handle them
// exhaustively without a class hierarchy.
type Kind string

const (
	KindScreen   Kind = "screen"
	KindCanvas   Kind = "canvas"
	KindHardware Kind = "hardware"
	KindBattery  Kind = "battery"
	KindBehavior Kind = "behavior"
)

// AttributeSet maps attribute names to string-encoded values. Structured
// values are JSON-encoded.
type AttributeSet map[string]string

// Merge copies other into a, with other's values winning on key collision.
func (a AttributeSet) Merge(other AttributeSet) {
	for k, v := range other {
		a[k] = v
	}
}

// Clone returns an independent copy.
func (a AttributeSet) Clone() AttributeSet {
	out := make(AttributeSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// StrengthReport is a collector's self-reported contribution to fingerprint
// strength: a numeric score plus human-readable contributing factors.
type StrengthReport struct {
	Score   float64  `json:"score"`
	Details []string `json:"details"`
}

// Collector is the capability every probe implements.
type Collector interface {
	Kind() Kind

	// Collect acquires the probe's signals. It must never panic or
	// return an error across this boundary; failures yield an empty
	// AttributeSet and a zero report.
	Collect(ctx context.Context) (AttributeSet, StrengthReport)
}
