package collector

import (
	"context"
	"encoding/json"
	"log/slog"

	"deviceprint/pkg/behavior"
)

// Behavior adapts the behavioral metrics engine to the collector contract.
// It is the only collector whose Collect may block, bounded by the engine's
// training duration.
type Behavior struct {
	engine *behavior.Engine
	log    *slog.Logger
}

// NewBehavior wraps an engine as a collector.
func NewBehavior(engine *behavior.Engine, log *slog.Logger) *Behavior {
	if log == nil {
		log = slog.Default()
	}
	return &Behavior{engine: engine, log: log.With("collector", KindBehavior)}
}

// Kind implements Collector.
func (b *Behavior) Kind() Kind { return KindBehavior }

// Engine exposes the wrapped engine for lifecycle management.
func (b *Behavior) Engine() *behavior.Engine { return b.engine }

// Collect implements Collector. It blocks until the training window elapses
// unless a finalized or cached profile exists.
func (b *Behavior) Collect(ctx context.Context) (AttributeSet, StrengthReport) {
	profile, err := b.engine.Collect(ctx)
	if err != nil {
		b.log.Warn("behavior collection interrupted", "error", err)
		return AttributeSet{}, StrengthReport{}
	}
	if profile.Empty() {
		return AttributeSet{}, StrengthReport{}
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		b.log.Warn("behavior profile encoding failed", "error", err)
		return AttributeSet{}, StrengthReport{}
	}

	attrs := AttributeSet{"behaviorProfile": string(encoded)}
	report := StrengthReport{}
	if profile.Mouse != nil {
		report.Score += 5
		report.Details = append(report.Details, "Mouse movement profile captured")
	}
	if profile.Keyboard != nil {
		report.Score += 5
		report.Details = append(report.Details, "Typing rhythm profile captured")
	}
	if profile.Touch != nil {
		report.Score += 5
		report.Details = append(report.Details, "Touch interaction profile captured")
	}
	return attrs, report
}

// Subscribe registers fn for the finished profile; see behavior.Engine.
func (b *Behavior) Subscribe(fn func(behavior.Profile)) func() {
	return b.engine.Subscribe(fn)
}

// Cleanup stops the engine's event listeners.
func (b *Behavior) Cleanup() {
	b.engine.Cleanup()
}
