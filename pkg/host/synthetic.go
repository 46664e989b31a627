package host

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Snapshot is a serializable description of a host environment. The CLI and
// tests build Synthetic environments from snapshots instead of talking to a
// real browser or device.
type Snapshot struct {
	Origin    string `json:"origin"`
	Locale    string `json:"locale"`
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	Timezone  string `json:"timezone"`

	HardwareConcurrency int     `json:"hardware_concurrency"`
	DeviceMemory        float64 `json:"device_memory"`

	Screen *ScreenInfo `json:"screen,omitempty"`

	// Canvas is the canned canvas rendering output. Empty means the
	// capability is unavailable.
	Canvas string `json:"canvas,omitempty"`

	WebGL   *WebGLInfo   `json:"webgl,omitempty"`
	Audio   *AudioInfo   `json:"audio,omitempty"`
	Battery *BatteryInfo `json:"battery,omitempty"`

	// Trace is an optional interaction trace replayed into the event bus
	// by ReplayTrace.
	Trace []TraceEvent `json:"trace,omitempty"`
}

// TraceEvent is an interaction event scheduled at an offset from the start
// of a replay.
type TraceEvent struct {
	OffsetMs int64 `json:"offset_ms"`
	Event
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// Synthetic is an Environment backed by a Snapshot and an in-process event
// bus. Battery readings can be updated at runtime to drive change
// subscribers.
type Synthetic struct {
	snap Snapshot
	bus  *Bus

	mu          sync.Mutex
	battery     *BatteryInfo
	batterySubs map[int]chan BatteryInfo
	nextSub     int
}

// NewSynthetic builds an environment from a snapshot. The snapshot is copied;
// later mutation of the caller's value has no effect.
func NewSynthetic(snap Snapshot) *Synthetic {
	env := &Synthetic{
		snap:        snap,
		bus:         NewBus(),
		batterySubs: make(map[int]chan BatteryInfo),
	}
	if snap.Battery != nil {
		b := *snap.Battery
		env.battery = &b
	}
	return env
}

func (e *Synthetic) Origin() string           { return e.snap.Origin }
func (e *Synthetic) Locale() string           { return e.snap.Locale }
func (e *Synthetic) UserAgent() string        { return e.snap.UserAgent }
func (e *Synthetic) Platform() string         { return e.snap.Platform }
func (e *Synthetic) Timezone() string         { return e.snap.Timezone }
func (e *Synthetic) HardwareConcurrency() int { return e.snap.HardwareConcurrency }
func (e *Synthetic) DeviceMemory() float64    { return e.snap.DeviceMemory }

// Bus returns the underlying event bus for publishing synthetic events.
func (e *Synthetic) Bus() *Bus { return e.bus }

// Events implements Environment.
func (e *Synthetic) Events() EventSource { return e.bus }

// Screen implements Environment.
func (e *Synthetic) Screen() (ScreenInfo, error) {
	if e.snap.Screen == nil {
		return ScreenInfo{}, ErrUnavailable
	}
	return *e.snap.Screen, nil
}

// CanvasData implements Environment.
func (e *Synthetic) CanvasData() (string, error) {
	if e.snap.Canvas == "" {
		return "", ErrUnavailable
	}
	return e.snap.Canvas, nil
}

// WebGL implements Environment.
func (e *Synthetic) WebGL() (WebGLInfo, error) {
	if e.snap.WebGL == nil {
		return WebGLInfo{}, ErrUnavailable
	}
	return *e.snap.WebGL, nil
}

// Audio implements Environment.
func (e *Synthetic) Audio() (AudioInfo, error) {
	if e.snap.Audio == nil {
		return AudioInfo{}, ErrUnavailable
	}
	return *e.snap.Audio, nil
}

// Battery implements Environment.
func (e *Synthetic) Battery() (BatteryInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.battery == nil {
		return BatteryInfo{}, ErrUnavailable
	}
	return *e.battery, nil
}

// BatteryChanges implements Environment.
func (e *Synthetic) BatteryChanges() (<-chan BatteryInfo, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.battery == nil {
		return nil, func() {}
	}

	ch := make(chan BatteryInfo, 16)
	id := e.nextSub
	e.nextSub++
	e.batterySubs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.batterySubs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SetBattery updates the battery reading and notifies change subscribers.
func (e *Synthetic) SetBattery(info BatteryInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.battery = &info
	for _, ch := range e.batterySubs {
		select {
		case ch <- info:
		default:
		}
	}
}

// ReplayTrace publishes the snapshot's interaction trace onto the bus,
// pacing each event to its offset from base. Event timestamps are rewritten
// to the scheduled time.
func (e *Synthetic) ReplayTrace(base time.Time) {
	for _, te := range e.snap.Trace {
		target := base.Add(time.Duration(te.OffsetMs) * time.Millisecond)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}
		ev := te.Event
		ev.Time = target
		e.bus.Publish(ev)
	}
}
