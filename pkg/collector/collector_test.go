package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"deviceprint/pkg/host"
)

func fullSnapshot() host.Snapshot {
	return host.Snapshot{
		Origin:              "https://example.com",
		Locale:              "en-US",
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) TestBrowser/1.0",
		Platform:            "Linux x86_64",
		Timezone:            "Europe/Berlin",
		HardwareConcurrency: 8,
		DeviceMemory:        16,
		Screen: &host.ScreenInfo{
			Width: 1920, Height: 1080,
			AvailWidth: 1920, AvailHeight: 1040,
			ColorDepth: 24, PixelRatio: 2,
		},
		Canvas: "data:image/png;base64,AAAA",
		WebGL: &host.WebGLInfo{
			Vendor: "Test Vendor", Renderer: "Test GPU",
			Version: "WebGL 2.0", MaxTextureSize: 16384,
		},
		Audio:   &host.AudioInfo{SampleRate: 44100, ChannelCount: 2},
		Battery: &host.BatteryInfo{Charging: true, Level: 0.8},
	}
}

func TestScreenCollect(t *testing.T) {
	env := host.NewSynthetic(fullSnapshot())
	attrs, report := NewScreen(env, nil).Collect(context.Background())

	if got := attrs["screenResolution"]; got != "1920x1080" {
		t.Errorf("screenResolution = %q, want 1920x1080", got)
	}
	if got := attrs["availableScreenResolution"]; got != "1920x1040" {
		t.Errorf("availableScreenResolution = %q", got)
	}
	if report.Score <= 0 {
		t.Errorf("Score = %v, want positive", report.Score)
	}
}

func TestScreenUnavailable(t *testing.T) {
	env := host.NewSynthetic(host.Snapshot{Origin: "https://example.com"})
	attrs, report := NewScreen(env, nil).Collect(context.Background())

	if len(attrs) != 0 {
		t.Errorf("expected empty attributes, got %v", attrs)
	}
	if report.Score != 0 {
		t.Errorf("Score = %v, want 0", report.Score)
	}
}

func TestCanvasDeterminism(t *testing.T) {
	env := host.NewSynthetic(fullSnapshot())
	c := NewCanvas(env, nil)

	a1, _ := c.Collect(context.Background())
	a2, _ := c.Collect(context.Background())
	if a1["canvasFingerprint"] == "" {
		t.Fatal("expected canvas fingerprint")
	}
	if a1["canvasFingerprint"] != a2["canvasFingerprint"] {
		t.Error("identical canvas data must hash identically")
	}
}

func TestHardwareCollect(t *testing.T) {
	env := host.NewSynthetic(fullSnapshot())
	attrs, report := NewHardware(env, nil).Collect(context.Background())

	for _, key := range []string{
		"userAgent", "platform", "timezone", "hardwareConcurrency",
		"deviceMemory", "webglVendor", "webglRenderer", "audioSampleRate",
	} {
		if attrs[key] == "" {
			t.Errorf("missing attribute %q", key)
		}
	}
	if report.Score <= 0 {
		t.Error("expected positive strength score")
	}
}

func TestHardwarePartialAvailability(t *testing.T) {
	snap := fullSnapshot()
	snap.WebGL = nil
	snap.Audio = nil
	env := host.NewSynthetic(snap)

	attrs, _ := NewHardware(env, nil).Collect(context.Background())
	if attrs["userAgent"] == "" {
		t.Error("user agent must survive missing WebGL/audio")
	}
	if _, ok := attrs["webglRenderer"]; ok {
		t.Error("unavailable WebGL must contribute nothing")
	}
	if _, ok := attrs["audioSampleRate"]; ok {
		t.Error("unavailable audio must contribute nothing")
	}
}

func TestBatteryCollect(t *testing.T) {
	env := host.NewSynthetic(fullSnapshot())
	attrs, report := NewBattery(env, nil).Collect(context.Background())

	if got := attrs["batteryCharging"]; got != "true" {
		t.Errorf("batteryCharging = %q, want true", got)
	}
	if got := attrs["batteryLevel"]; got != "0.80" {
		t.Errorf("batteryLevel = %q, want 0.80", got)
	}
	if report.Score != 4 {
		t.Errorf("Score = %v, want 4", report.Score)
	}
}

func TestBatterySubscription(t *testing.T) {
	env := host.NewSynthetic(fullSnapshot())
	b := NewBattery(env, nil)
	defer b.Cleanup()

	var mu sync.Mutex
	var got []host.BatteryInfo
	cancel := b.Subscribe(func(info host.BatteryInfo) {
		mu.Lock()
		got = append(got, info)
		mu.Unlock()
	})
	if cancel == nil {
		t.Fatal("expected active subscription")
	}
	defer cancel()

	env.SetBattery(host.BatteryInfo{Charging: false, Level: 0.5})

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("battery update not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Level != 0.5 {
		t.Errorf("Level = %v, want 0.5", got[0].Level)
	}
}

func TestBatterySubscriptionUnavailable(t *testing.T) {
	env := host.NewSynthetic(host.Snapshot{Origin: "https://example.com"})
	b := NewBattery(env, nil)

	if cancel := b.Subscribe(func(host.BatteryInfo) {}); cancel != nil {
		t.Error("expected nil cancel when host has no battery stream")
	}
}
