package host

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBusSubscribeFiltering(t *testing.T) {
	bus := NewBus()
	keys, cancelKeys := bus.Subscribe(EventKeyDown, EventKeyUp)
	defer cancelKeys()
	all, cancelAll := bus.Subscribe()
	defer cancelAll()

	bus.Publish(Event{Kind: EventPointerMove, X: 1})
	bus.Publish(Event{Kind: EventKeyDown, Key: "a"})

	select {
	case ev := <-keys:
		if ev.Kind != EventKeyDown {
			t.Errorf("filtered subscriber got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("key event not delivered")
	}

	got := map[EventKind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-all:
			got[ev.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("unfiltered subscriber missed an event")
		}
	}
	if !got[EventPointerMove] || !got[EventKeyDown] {
		t.Errorf("unfiltered subscriber got %v", got)
	}
}

func TestBusCancelDetaches(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d", bus.SubscriberCount())
	}

	cancel()
	cancel() // idempotent
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after cancel", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel must be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(Event{Kind: EventKeyDown})
}

func TestBusPublishStampsTime(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: EventPointerDown})
	ev := <-ch
	if ev.Time.IsZero() {
		t.Error("zero event time must be stamped at publish")
	}
}

func TestSyntheticUnavailableCapabilities(t *testing.T) {
	env := NewSynthetic(Snapshot{Origin: "https://example.com"})

	if _, err := env.Screen(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Screen err = %v", err)
	}
	if _, err := env.CanvasData(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("CanvasData err = %v", err)
	}
	if _, err := env.Battery(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Battery err = %v", err)
	}
	if ch, _ := env.BatteryChanges(); ch != nil {
		t.Error("expected nil battery stream without a battery")
	}
}

func TestSyntheticBatteryUpdates(t *testing.T) {
	env := NewSynthetic(Snapshot{
		Origin:  "https://example.com",
		Battery: &BatteryInfo{Charging: true, Level: 1.0},
	})

	ch, cancel := env.BatteryChanges()
	if ch == nil {
		t.Fatal("expected battery stream")
	}
	defer cancel()

	env.SetBattery(BatteryInfo{Charging: false, Level: 0.4})

	select {
	case info := <-ch:
		if info.Level != 0.4 || info.Charging {
			t.Errorf("got %+v", info)
		}
	case <-time.After(time.Second):
		t.Fatal("battery update not delivered")
	}

	if got, err := env.Battery(); err != nil || got.Level != 0.4 {
		t.Errorf("Battery() = %+v, %v", got, err)
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	content := `{
		"origin": "https://example.com",
		"locale": "de-DE",
		"hardware_concurrency": 4,
		"screen": {"width": 800, "height": 600},
		"trace": [
			{"offset_ms": 0, "kind": 2, "key": "a", "code": "KeyA"},
			{"offset_ms": 10, "kind": 3, "key": "a", "code": "KeyA"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Locale != "de-DE" {
		t.Errorf("Locale = %q", snap.Locale)
	}
	if snap.Screen == nil || snap.Screen.Width != 800 {
		t.Errorf("Screen = %+v", snap.Screen)
	}
	if len(snap.Trace) != 2 || snap.Trace[1].Kind != EventKeyUp {
		t.Errorf("Trace = %+v", snap.Trace)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReplayTraceOrderAndTiming(t *testing.T) {
	env := NewSynthetic(Snapshot{
		Origin: "https://example.com",
		Trace: []TraceEvent{
			{OffsetMs: 0, Event: Event{Kind: EventKeyDown, Code: "KeyA"}},
			{OffsetMs: 20, Event: Event{Kind: EventKeyUp, Code: "KeyA"}},
		},
	})

	ch, cancel := env.Bus().Subscribe()
	defer cancel()

	base := time.Now()
	go env.ReplayTrace(base)

	var events []Event
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatal("trace replay stalled")
		}
	}

	if events[0].Kind != EventKeyDown || events[1].Kind != EventKeyUp {
		t.Errorf("replay order: %v then %v", events[0].Kind, events[1].Kind)
	}
	if gap := events[1].Time.Sub(events[0].Time); gap != 20*time.Millisecond {
		t.Errorf("timestamp gap = %v, want 20ms", gap)
	}
}
