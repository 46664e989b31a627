package consent

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"deviceprint/pkg/cache"
)

// stateCachePrefix scopes the persisted consent key per origin.
const stateCachePrefix = "consent-state"

// stateCacheValidity bounds how old a persisted consent record may be before
// it is discarded outright. Renewal prompting is a separate, softer check
// (NeedsRenewal).
const stateCacheValidity = 2 * 365 * 24 * time.Hour

// stateSchema is the layout persisted consent must satisfy before any field
// is trusted. Unexpected shapes fall back to region defaults.
const stateSchema = `{
	"type": "object",
	"required": ["categories", "lastUpdated"],
	"properties": {
		"categories": {
			"type": "object",
			"additionalProperties": {"type": "boolean"}
		},
		"lastUpdated": {"type": "integer", "minimum": 0},
		"region": {"type": "string"}
	}
}`

var compiledStateSchema = jsonschema.MustCompileString("consent-state.schema.json", stateSchema)

// Config configures a Gate.
type Config struct {
	// CollectorCategories maps collector names to the category that
	// gates them. Unmapped collectors are always allowed.
	CollectorCategories map[string]Category

	// AlwaysGranted categories cannot be revoked. Defaults to
	// [essential].
	AlwaysGranted []Category

	// RequireConsent overrides the per-region stringency table. Nil uses
	// DefaultRequireConsent.
	RequireConsent map[Region]bool

	// RegionOverride skips locale detection when set.
	RegionOverride Region

	// ExpiryWindow bounds consent freshness for NeedsRenewal. Defaults
	// to DefaultExpiryWindow.
	ExpiryWindow time.Duration

	// Persist writes state on every mutation when a store is available.
	Persist bool
}

// Gate holds consent state and answers allow/deny decisions for collectors.
// Construct with NewGate, then call Initialize before use.
type Gate struct {
	cfg      Config
	locale   string
	store    cache.Cache // nil disables persistence
	cacheKey string
	log      *slog.Logger
	required map[Category]bool

	mu        sync.Mutex
	state     State
	observers map[int]func(State)
	nextObs   int
}

// NewGate constructs a gate without performing I/O. store may be nil.
func NewGate(cfg Config, locale, origin string, store cache.Cache, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.AlwaysGranted == nil {
		cfg.AlwaysGranted = []Category{CategoryEssential}
	}
	if cfg.RequireConsent == nil {
		cfg.RequireConsent = DefaultRequireConsent
	}

	required := make(map[Category]bool, len(cfg.AlwaysGranted))
	for _, c := range cfg.AlwaysGranted {
		required[c] = true
	}

	return &Gate{
		cfg:       cfg,
		locale:    locale,
		store:     store,
		cacheKey:  cache.Key(origin, stateCachePrefix),
		log:       log.With("component", "consent"),
		required:  required,
		observers: make(map[int]func(State)),
	}
}

// Initialize loads persisted consent when present and structurally valid,
// otherwise derives region defaults from the locale.
func (g *Gate) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st, ok := g.loadPersisted(); ok {
		g.state = st
		return nil
	}

	region := g.cfg.RegionOverride
	if region == "" {
		region = DetectRegion(g.locale)
	}
	g.state = g.defaultState(region)

	if g.cfg.Persist && g.store != nil {
		if err := g.store.Save(g.cacheKey, g.state); err != nil {
			g.log.Warn("consent state write failed", "error", err)
		}
	}
	return nil
}

// defaultState builds the initial grants for a region: required categories
// are granted, everything else follows the stringency table.
func (g *Gate) defaultState(region Region) State {
	granted := !g.cfg.RequireConsent[region]
	cats := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		if g.required[c] {
			cats[c] = true
		} else {
			cats[c] = granted
		}
	}
	return State{
		Categories:  cats,
		LastUpdated: time.Now().UnixMilli(),
		Region:      region,
	}
}

// loadPersisted reads and defensively validates stored consent. Caller
// holds g.mu.
func (g *Gate) loadPersisted() (State, bool) {
	if g.store == nil {
		return State{}, false
	}
	var raw json.RawMessage
	found, err := g.store.Load(g.cacheKey, stateCacheValidity, &raw)
	if err != nil {
		g.log.Warn("consent state read failed", "error", err)
		return State{}, false
	}
	if !found {
		return State{}, false
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return State{}, false
	}
	if err := compiledStateSchema.Validate(instance); err != nil {
		g.log.Warn("persisted consent state failed validation, using defaults", "error", err)
		return State{}, false
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false
	}
	if st.Categories == nil {
		st.Categories = make(map[Category]bool)
	}
	// Required categories are forced on no matter what was stored.
	for c := range g.required {
		st.Categories[c] = true
	}
	if st.Region == "" {
		st.Region = RegionUnknown
	}
	return st, true
}

// HasConsent reports whether the named collector may run. Collectors with
// no mapped category are allowed.
func (g *Gate) HasConsent(collectorName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	category, mapped := g.cfg.CollectorCategories[collectorName]
	if !mapped {
		return true
	}
	if g.required[category] {
		return true
	}
	return g.state.Categories[category]
}

// Update sets the grant for one category. Attempts to change an
// always-granted category are ignored.
func (g *Gate) Update(category Category, granted bool) {
	g.UpdateAll(map[Category]bool{category: granted})
}

// UpdateAll applies several grants in one mutation: one timestamp bump, one
// persistence write, one observer notification.
func (g *Gate) UpdateAll(grants map[Category]bool) {
	g.mu.Lock()
	changed := false
	for category, granted := range grants {
		if g.required[category] {
			continue
		}
		if g.state.Categories[category] != granted {
			g.state.Categories[category] = granted
			changed = true
		}
	}
	if !changed {
		g.mu.Unlock()
		return
	}
	g.state.LastUpdated = time.Now().UnixMilli()
	g.persistLocked()
	st := g.state.clone()
	obs := g.observersLocked()
	g.mu.Unlock()

	for _, fn := range obs {
		fn(st)
	}
}

// Reset restores the region defaults, discarding all user grants.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.state = g.defaultState(g.state.Region)
	g.persistLocked()
	st := g.state.clone()
	obs := g.observersLocked()
	g.mu.Unlock()

	for _, fn := range obs {
		fn(st)
	}
}

// NeedsRenewal reports whether consent is older than the expiry window.
func (g *Gate) NeedsRenewal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	age := time.Since(time.UnixMilli(g.state.LastUpdated))
	return age > g.cfg.ExpiryWindow
}

// State returns a copy of the current consent state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.clone()
}

// Region returns the detected or overridden region.
func (g *Gate) Region() Region {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Region
}

// Subscribe registers an observer invoked with the full state after every
// mutation. The returned function cancels the registration.
func (g *Gate) Subscribe(fn func(State)) func() {
	g.mu.Lock()
	id := g.nextObs
	g.nextObs++
	g.observers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	}
}

func (g *Gate) persistLocked() {
	if !g.cfg.Persist || g.store == nil {
		return
	}
	if err := g.store.Save(g.cacheKey, g.state); err != nil {
		g.log.Warn("consent state write failed", "error", err)
	}
}

func (g *Gate) observersLocked() []func(State) {
	out := make([]func(State), 0, len(g.observers))
	for _, fn := range g.observers {
		out = append(out, fn)
	}
	return out
}
