package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"deviceprint/pkg/host"
)

// Battery reads charging state and level, and relays the host's battery
// change stream to subscribers.
type Battery struct {
	env host.Environment
	log *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(host.BatteryInfo)
	nextID    int
	cancelEnv func()
}

// NewBattery creates the battery probe.
func NewBattery(env host.Environment, log *slog.Logger) *Battery {
	if log == nil {
		log = slog.Default()
	}
	return &Battery{
		env:       env,
		log:       log.With("collector", KindBattery),
		listeners: make(map[int]func(host.BatteryInfo)),
	}
}

// Kind implements Collector.
func (b *Battery) Kind() Kind { return KindBattery }

// Collect implements Collector.
func (b *Battery) Collect(ctx context.Context) (AttributeSet, StrengthReport) {
	info, err := b.env.Battery()
	if err != nil {
		b.log.Warn("battery probe unavailable", "error", err)
		return AttributeSet{}, StrengthReport{}
	}

	attrs := AttributeSet{
		"batteryCharging": fmt.Sprintf("%t", info.Charging),
	}
	report := StrengthReport{
		Score:   2,
		Details: []string{"Battery charging state captured"},
	}
	if info.Level >= 0 {
		attrs["batteryLevel"] = fmt.Sprintf("%.2f", info.Level)
		report.Score += 2
		report.Details = append(report.Details, "Battery level captured")
	}
	return attrs, report
}

// Subscribe registers fn for battery status changes and returns a cancel
// function, or nil when the host cannot report changes.
func (b *Battery) Subscribe(fn func(host.BatteryInfo)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancelEnv == nil {
		ch, cancel := b.env.BatteryChanges()
		if ch == nil {
			return nil
		}
		b.cancelEnv = cancel
		go b.relay(ch)
	}

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// relay fans host battery updates out to registered listeners.
func (b *Battery) relay(ch <-chan host.BatteryInfo) {
	for info := range ch {
		b.mu.Lock()
		fns := make([]func(host.BatteryInfo), 0, len(b.listeners))
		for _, fn := range b.listeners {
			fns = append(fns, fn)
		}
		b.mu.Unlock()
		for _, fn := range fns {
			fn(info)
		}
	}
}

// Cleanup detaches from the host battery stream.
func (b *Battery) Cleanup() {
	b.mu.Lock()
	cancel := b.cancelEnv
	b.cancelEnv = nil
	b.listeners = make(map[int]func(host.BatteryInfo))
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
