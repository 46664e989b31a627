package behavior

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deviceprint/pkg/cache"
	"deviceprint/pkg/host"
)

// State is the engine lifecycle state.
type State int

const (
	// StateIdle means no training window is active.
	StateIdle State = iota
	// StateCollecting means listeners are registered and raw samples are
	// being recorded.
	StateCollecting
	// StateReady means a profile has been finalized.
	StateReady
)

// profileCachePrefix scopes the persisted profile key per origin.
const profileCachePrefix = "behavior-profile"

// Engine trains a behavioral profile from the host's interaction event
// stream. Construction is pure; listeners are only registered once a
// training window starts via Collect or Initialize.
//
// A finalized profile is frozen: later Collect calls return it without
// re-registering listeners. Callers that invoke Collect while the window is
// still open all wait on the same finalization and observe the same profile.
type Engine struct {
	cfg      Config
	events   host.EventSource
	store    cache.Cache // nil disables persistence
	cacheKey string
	log      *slog.Logger

	mu        sync.Mutex
	state     State
	profile   *Profile
	done      chan struct{}
	cancelSub func()
	timer     *time.Timer

	listeners    map[int]func(Profile)
	nextListener int

	// Raw sample buffers for the current window.
	lastMove  time.Time
	lastTouch time.Time
	moves     []pointerSample
	clicks    int
	keyDowns  []keySample
	pending   map[string]time.Time
	holdsMs   []float64
	touches   []touchSample
}

// NewEngine creates an idle engine. env provides the event source and the
// origin used for profile cache keys; store may be nil to disable
// persistence.
func NewEngine(cfg Config, env host.Environment, store cache.Cache, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		events:    env.Events(),
		store:     store,
		cacheKey:  cache.Key(env.Origin(), profileCachePrefix),
		log:       log.With("component", "behavior"),
		listeners: make(map[int]func(Profile)),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Profile returns the finalized profile, if any.
func (e *Engine) Profile() (Profile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return Profile{}, false
	}
	return *e.profile, true
}

// Initialize explicitly starts a training window if none is active and no
// profile exists yet. It is optional; the first Collect call does the same.
func (e *Engine) Initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle && e.profile == nil && !e.loadCachedLocked() {
		e.startLocked()
	}
}

// Collect returns the behavioral profile, blocking until the training
// window elapses when no finalized or cached profile exists. The only error
// condition is context cancellation; a window that collected too few
// samples yields an empty (but valid) profile.
func (e *Engine) Collect(ctx context.Context) (Profile, error) {
	e.mu.Lock()
	if e.profile != nil {
		p := *e.profile
		e.mu.Unlock()
		return p, nil
	}
	if e.loadCachedLocked() {
		p := *e.profile
		e.mu.Unlock()
		return p, nil
	}
	if e.state == StateIdle {
		e.startLocked()
	}
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		// Cleanup raced the window; report an empty profile rather
		// than failing the caller.
		return Profile{}, nil
	}
	return *e.profile, nil
}

// Subscribe registers fn to be invoked exactly once with the finished
// profile. If a profile already exists fn is invoked immediately. The
// returned function cancels the registration.
func (e *Engine) Subscribe(fn func(Profile)) func() {
	e.mu.Lock()
	if e.profile != nil {
		p := *e.profile
		e.mu.Unlock()
		fn(p)
		return func() {}
	}
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Cleanup deregisters event listeners and stops an active window so that a
// later Initialize or Collect starts fresh. A finalized profile is kept.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	cancel := e.cancelSub
	e.cancelSub = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	var done chan struct{}
	if e.state == StateCollecting {
		e.state = StateIdle
		done = e.done
		e.done = nil
		e.resetBuffersLocked()
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		close(done)
	}
}

// loadCachedLocked tries the persisted profile. A training window may still
// be open when the hit lands (another engine on the same origin finished
// first); it is torn down so blocked waiters wake with the cached profile
// instead of hanging on a finalize that will never run. Caller holds e.mu.
func (e *Engine) loadCachedLocked() bool {
	if e.store == nil {
		return false
	}
	var p Profile
	found, err := e.store.Load(e.cacheKey, e.cfg.CacheValidity, &p)
	if err != nil {
		e.log.Warn("behavior profile cache read failed", "error", err)
		return false
	}
	if !found {
		return false
	}

	if e.state == StateCollecting {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		if e.cancelSub != nil {
			e.cancelSub()
			e.cancelSub = nil
		}
		close(e.done)
		e.done = nil
		e.resetBuffersLocked()
	}

	e.profile = &p
	e.state = StateReady
	e.notifyLocked(p)
	return true
}

// startLocked opens a training window. Caller holds e.mu.
func (e *Engine) startLocked() {
	e.resetBuffersLocked()
	e.state = StateCollecting
	e.done = make(chan struct{})

	kinds := make([]host.EventKind, 0, 7)
	if e.cfg.Mouse {
		kinds = append(kinds, host.EventPointerMove, host.EventPointerDown)
	}
	if e.cfg.Keyboard {
		kinds = append(kinds, host.EventKeyDown, host.EventKeyUp)
	}
	if e.cfg.Touch {
		kinds = append(kinds, host.EventTouchStart, host.EventTouchMove, host.EventTouchEnd)
	}

	ch, cancel := e.events.Subscribe(kinds...)
	e.cancelSub = cancel
	go e.pump(ch)

	e.timer = time.AfterFunc(e.cfg.TrainingDuration, e.finalize)
	e.log.Debug("behavior training window opened",
		"duration", e.cfg.TrainingDuration,
		"privacy_mode", string(e.cfg.PrivacyMode))
}

func (e *Engine) resetBuffersLocked() {
	e.lastMove = time.Time{}
	e.lastTouch = time.Time{}
	e.moves = nil
	e.clicks = 0
	e.keyDowns = nil
	e.pending = make(map[string]time.Time)
	e.holdsMs = nil
	e.touches = nil
}

// pump consumes the event subscription until it is cancelled.
func (e *Engine) pump(ch <-chan host.Event) {
	for ev := range ch {
		e.record(ev)
	}
}

// record ingests one raw event. Movement and touch-move samples are
// rate-limited to one per sample interval; presses and key events are
// recorded unconditionally.
func (e *Engine) record(ev host.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCollecting {
		return
	}

	switch ev.Kind {
	case host.EventPointerMove:
		if !e.lastMove.IsZero() && ev.Time.Sub(e.lastMove) < e.cfg.SampleInterval {
			return
		}
		e.lastMove = ev.Time
		e.moves = append(e.moves, pointerSample{t: ev.Time, x: ev.X, y: ev.Y})

	case host.EventPointerDown:
		e.clicks++

	case host.EventKeyDown:
		id := e.keyIdentifier(ev)
		e.pending[id] = ev.Time
		e.keyDowns = append(e.keyDowns, keySample{
			id:        id,
			t:         ev.Time,
			backspace: ev.Code == "Backspace",
		})

	case host.EventKeyUp:
		id := e.keyIdentifier(ev)
		if down, ok := e.pending[id]; ok {
			delete(e.pending, id)
			if hold := ev.Time.Sub(down); hold > 0 {
				e.holdsMs = append(e.holdsMs, float64(hold)/float64(time.Millisecond))
			}
		}

	case host.EventTouchStart, host.EventTouchEnd:
		e.lastTouch = ev.Time
		e.touches = append(e.touches, touchSample{t: ev.Time, x: ev.X, y: ev.Y, size: ev.Size})

	case host.EventTouchMove:
		if !e.lastTouch.IsZero() && ev.Time.Sub(e.lastTouch) < e.cfg.SampleInterval {
			return
		}
		e.lastTouch = ev.Time
		e.touches = append(e.touches, touchSample{t: ev.Time, x: ev.X, y: ev.Y, size: ev.Size})
	}
}

// keyIdentifier picks the stored key identity per privacy mode.
func (e *Engine) keyIdentifier(ev host.Event) string {
	switch e.cfg.PrivacyMode {
	case ModeFull:
		if ev.Key != "" {
			return ev.Key
		}
		return ev.Code
	case ModeMinimal:
		return "key"
	default:
		return ev.Code
	}
}

// finalize runs when the training window elapses. It reduces the raw
// buffers, freezes and persists the profile, and wakes waiters and
// listeners exactly once.
func (e *Engine) finalize() {
	e.mu.Lock()
	if e.state != StateCollecting {
		e.mu.Unlock()
		return
	}

	p := Profile{TrainedAt: time.Now()}
	if e.cfg.Mouse {
		p.Mouse = reduceMouse(e.moves)
	}
	if e.cfg.Keyboard {
		p.Keyboard = reduceKeyboard(e.keyDowns, e.holdsMs, e.cfg.PrivacyMode)
	}
	if e.cfg.Touch {
		p.Touch = reduceTouch(e.touches)
	}

	e.profile = &p
	e.state = StateReady
	cancel := e.cancelSub
	e.cancelSub = nil
	e.timer = nil
	done := e.done

	if e.store != nil {
		if err := e.store.Save(e.cacheKey, p); err != nil {
			e.log.Warn("behavior profile cache write failed", "error", err)
		}
	}
	e.notifyLocked(p)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(done)

	e.log.Debug("behavior profile finalized",
		"mouse", p.Mouse != nil,
		"keyboard", p.Keyboard != nil,
		"touch", p.Touch != nil)
}

// notifyLocked invokes and clears registered listeners. Caller holds e.mu;
// invocations happen on fresh goroutines so listeners may call back into
// the engine.
func (e *Engine) notifyLocked(p Profile) {
	for _, fn := range e.listeners {
		go fn(p)
	}
	e.listeners = make(map[int]func(Profile))
}
