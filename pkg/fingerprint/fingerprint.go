// Package fingerprint composes the collectors, consent gate, cache, and
// entropy estimator into the device fingerprinting surface.
//
// An Orchestrator is constructed without side effects; Initialize performs
// consent loading and collector activation so callers can await readiness
// deterministically. Collectors run concurrently: the aggregate wait time of
// a generation pass equals the slowest collector's latency, which is the
// behavioral training window in the worst case.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"deviceprint/internal/metrics"
	"deviceprint/pkg/behavior"
	"deviceprint/pkg/cache"
	"deviceprint/pkg/collector"
	"deviceprint/pkg/consent"
	"deviceprint/pkg/entropy"
	"deviceprint/pkg/host"
)

// digestCachePrefix scopes the persisted digest key per origin.
const digestCachePrefix = "fingerprint"

// Options enumerates, per collector, whether it may run. Environmental
// probes are plain toggles; the behavioral collector takes a detailed
// options object. A collector runs only when its toggle is set AND the
// consent gate allows it.
type Options struct {
	Screen   bool
	Canvas   bool
	Hardware bool
	Battery  bool

	// Behavior enables the behavioral collector with detailed options.
	// Nil disables it.
	Behavior *behavior.Config

	// Consent configures the consent gate. Nil disables consent gating
	// entirely (every enabled collector runs).
	Consent *consent.Config

	// Cache persists digests, behavior profiles, and consent state. Nil
	// uses a process-local in-memory store.
	Cache cache.Cache

	// CacheValidity bounds digest reuse. Default 30 days.
	CacheValidity time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Report is the combined output of a detailed generation pass.
type Report struct {
	Digest     string                   `json:"digest"`
	Attributes collector.AttributeSet   `json:"attributes"`
	Strength   collector.StrengthReport `json:"strength"`
}

// Orchestrator owns the collector set for one origin.
type Orchestrator struct {
	opts      Options
	env       host.Environment
	log       *slog.Logger
	met       *metrics.Metrics
	store     cache.Cache
	ownStore  bool
	sessionID string

	mu          sync.Mutex
	initialized bool
	gate        *consent.Gate
	collectors  []collector.Collector // activation order
	lastDigest  string
	lastAttrs   collector.AttributeSet
}

// New constructs an orchestrator. No I/O happens here; call Initialize.
func New(env host.Environment, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.CacheValidity <= 0 {
		opts.CacheValidity = cache.DefaultValidity
	}

	store := opts.Cache
	ownStore := false
	if store == nil {
		store = cache.NewMemory()
		ownStore = true
	}

	sessionID := uuid.NewString()
	return &Orchestrator{
		opts:      opts,
		env:       env,
		log:       log.With("component", "fingerprint", "session", sessionID),
		met:       opts.Metrics,
		store:     store,
		ownStore:  ownStore,
		sessionID: sessionID,
	}
}

// SessionID identifies this orchestrator instance in logs. It is not part
// of the fingerprint: mixing a per-session value into the digest would
// break cross-session consistency.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Initialize builds the consent gate and activates permitted collectors.
// Idempotent; later calls are no-ops.
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	if o.opts.Consent != nil {
		o.gate = consent.NewGate(*o.opts.Consent, o.env.Locale(), o.env.Origin(), o.store, o.log)
		if err := o.gate.Initialize(); err != nil {
			return fmt.Errorf("initialize consent gate: %w", err)
		}
	}

	// Activation order is fixed: it determines merge precedence and must
	// be reproducible for identical configurations.
	if o.opts.Screen && o.permitted(collector.KindScreen) {
		o.collectors = append(o.collectors, collector.NewScreen(o.env, o.log))
	}
	if o.opts.Canvas && o.permitted(collector.KindCanvas) {
		o.collectors = append(o.collectors, collector.NewCanvas(o.env, o.log))
	}
	if o.opts.Hardware && o.permitted(collector.KindHardware) {
		o.collectors = append(o.collectors, collector.NewHardware(o.env, o.log))
	}
	if o.opts.Battery && o.permitted(collector.KindBattery) {
		o.collectors = append(o.collectors, collector.NewBattery(o.env, o.log))
	}
	if o.opts.Behavior != nil && o.permitted(collector.KindBehavior) {
		engine := behavior.NewEngine(*o.opts.Behavior, o.env, o.store, o.log)
		o.collectors = append(o.collectors, collector.NewBehavior(engine, o.log))
	}

	o.initialized = true
	o.log.Debug("orchestrator initialized", "collectors", len(o.collectors))
	return nil
}

// permitted consults the consent gate; without a gate everything runs.
// Caller holds o.mu.
func (o *Orchestrator) permitted(kind collector.Kind) bool {
	if o.gate == nil {
		return true
	}
	return o.gate.HasConsent(string(kind))
}

// Generate returns the fingerprint digest: the cached one when still valid,
// otherwise a freshly computed and persisted value. Failures degrade to an
// empty string rather than an error; callers must treat an empty digest as
// a reported failure.
func (o *Orchestrator) Generate(ctx context.Context) string {
	if err := o.Initialize(); err != nil {
		o.log.Error("initialization failed", "error", err)
		return ""
	}

	key := cache.Key(o.env.Origin(), digestCachePrefix)
	var cached string
	found, err := o.store.Load(key, o.opts.CacheValidity, &cached)
	if err != nil {
		o.log.Warn("digest cache read failed", "error", err)
	}
	o.met.ObserveCacheLookup(digestCachePrefix, found)
	if found && cached != "" {
		o.mu.Lock()
		o.lastDigest = cached
		o.mu.Unlock()
		return cached
	}

	results := o.collectAll(ctx)
	attrs := mergeResults(results)

	digest, err := hashAttributes(attrs)
	if err != nil {
		o.log.Error("digest computation failed", "error", err)
		return ""
	}

	if err := o.store.Save(key, digest); err != nil {
		o.log.Warn("digest cache write failed", "error", err)
	}
	o.met.ObserveGeneration()

	o.mu.Lock()
	o.lastDigest = digest
	o.lastAttrs = attrs
	o.mu.Unlock()
	return digest
}

// Strength runs all active collectors and reports the averaged strength
// score with contributing factors in activation order. With no active
// collectors the score is zero.
func (o *Orchestrator) Strength(ctx context.Context) collector.StrengthReport {
	if err := o.Initialize(); err != nil {
		o.log.Error("initialization failed", "error", err)
		return collector.StrengthReport{}
	}

	results := o.collectAll(ctx)
	report := collector.StrengthReport{}
	for _, r := range results {
		report.Score += r.report.Score
		report.Details = append(report.Details, r.report.Details...)
	}
	if n := len(results); n > 0 {
		report.Score /= float64(n)
	}
	return report
}

// Detailed runs a full generation pass and returns digest, merged
// attributes, and strength together. It deliberately bypasses the digest
// cache so the report always reflects the current environment; callers
// needing cross-call consistency should use Generate. This is also the one
// surface where a hashing failure propagates instead of degrading.
func (o *Orchestrator) Detailed(ctx context.Context) (Report, error) {
	if err := o.Initialize(); err != nil {
		return Report{}, err
	}

	results := o.collectAll(ctx)
	attrs := mergeResults(results)

	strength := collector.StrengthReport{}
	for _, r := range results {
		strength.Score += r.report.Score
		strength.Details = append(strength.Details, r.report.Details...)
	}
	if n := len(results); n > 0 {
		strength.Score /= float64(n)
	}

	digest, err := hashAttributes(attrs)
	if err != nil {
		return Report{}, fmt.Errorf("hash attributes: %w", err)
	}

	o.mu.Lock()
	o.lastDigest = digest
	o.lastAttrs = attrs
	o.mu.Unlock()

	return Report{Digest: digest, Attributes: attrs, Strength: strength}, nil
}

// Analyze estimates the entropy of the current fingerprint, lazily running
// a detailed pass when no digest/attribute pair is held in memory.
func (o *Orchestrator) Analyze(ctx context.Context) (entropy.Analysis, error) {
	o.mu.Lock()
	digest, attrs := o.lastDigest, o.lastAttrs
	o.mu.Unlock()

	if digest == "" || attrs == nil {
		report, err := o.Detailed(ctx)
		if err != nil {
			return entropy.Analysis{}, err
		}
		digest, attrs = report.Digest, report.Attributes
	}
	return entropy.Estimate(digest, attrs), nil
}

// OnBatteryChange registers fn for battery status updates. It returns nil
// when the battery collector is absent (disabled or denied consent) or the
// host cannot report changes; callers must treat nil as "not available".
func (o *Orchestrator) OnBatteryChange(fn func(host.BatteryInfo)) func() {
	if err := o.Initialize(); err != nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.collectors {
		if b, ok := c.(*collector.Battery); ok {
			return b.Subscribe(fn)
		}
	}
	return nil
}

// OnBehaviorProfileUpdate registers fn for the finished behavior profile,
// with the same nil semantics as OnBatteryChange.
func (o *Orchestrator) OnBehaviorProfileUpdate(fn func(behavior.Profile)) func() {
	if err := o.Initialize(); err != nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.collectors {
		if b, ok := c.(*collector.Behavior); ok {
			return b.Subscribe(fn)
		}
	}
	return nil
}

// Consent exposes the consent gate, initializing the orchestrator first so
// the gate is reachable before any generation pass. It returns nil when
// consent gating is not configured or initialization failed.
func (o *Orchestrator) Consent() *consent.Gate {
	if err := o.Initialize(); err != nil {
		o.log.Error("initialization failed", "error", err)
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gate
}

// ActiveCollectors lists the activated collector kinds in activation order.
func (o *Orchestrator) ActiveCollectors() []collector.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]collector.Kind, len(o.collectors))
	for i, c := range o.collectors {
		kinds[i] = c.Kind()
	}
	return kinds
}

// Cleanup releases collector resources (event listeners, battery streams)
// and closes the store if the orchestrator owns it.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	collectors := o.collectors
	o.mu.Unlock()

	for _, c := range collectors {
		switch v := c.(type) {
		case *collector.Battery:
			v.Cleanup()
		case *collector.Behavior:
			v.Cleanup()
		}
	}
	if o.ownStore {
		o.store.Close()
	}
}

type collectResult struct {
	attrs  collector.AttributeSet
	report collector.StrengthReport
}

// collectAll fires every active collector concurrently and joins on all of
// them, preserving activation order in the result slice.
func (o *Orchestrator) collectAll(ctx context.Context) []collectResult {
	o.mu.Lock()
	collectors := o.collectors
	o.mu.Unlock()

	results := make([]collectResult, len(collectors))
	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func(i int, c collector.Collector) {
			defer wg.Done()
			start := time.Now()
			attrs, report := c.Collect(ctx)
			o.met.ObserveCollect(string(c.Kind()), time.Since(start).Seconds(), len(attrs) == 0)
			results[i] = collectResult{attrs: attrs, report: report}
		}(i, c)
	}
	wg.Wait()
	return results
}

// mergeResults folds attribute sets in activation order; later collectors
// overwrite earlier ones on key collision.
func mergeResults(results []collectResult) collector.AttributeSet {
	merged := collector.AttributeSet{}
	for _, r := range results {
		merged.Merge(r.attrs)
	}
	return merged
}

// hashAttributes computes the digest over the canonical serialization of
// the attribute set. encoding/json sorts map keys, which provides the
// stable key order the determinism invariant requires.
func hashAttributes(attrs collector.AttributeSet) (string, error) {
	canonical, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
