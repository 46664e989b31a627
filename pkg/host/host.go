// Package host abstracts the host-provided APIs that fingerprint probes
// query: screen geometry, rendered canvas data, WebGL parameters, audio
// configuration, battery status, and the interaction event stream.
//
// Probes never touch a global window or document object. They receive an
// Environment at construction, which keeps the collectors testable against
// synthetic environments and replayed event traces.
package host

import "errors"

// ErrUnavailable is returned by an Environment when the host does not expose
// a capability (no battery API, no WebGL context). Probes treat it as an
// absent signal, not a failure.
var ErrUnavailable = errors.New("host: capability unavailable")

// ScreenInfo describes the display the host is rendering to.
type ScreenInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AvailWidth  int     `json:"avail_width"`
	AvailHeight int     `json:"avail_height"`
	ColorDepth  int     `json:"color_depth"`
	PixelRatio  float64 `json:"pixel_ratio"`
}

// WebGLInfo carries the GPU parameters reported by the host's WebGL context.
type WebGLInfo struct {
	Vendor         string `json:"vendor"`
	Renderer       string `json:"renderer"`
	Version        string `json:"version"`
	MaxTextureSize int    `json:"max_texture_size"`
}

// AudioInfo carries the audio stack configuration.
type AudioInfo struct {
	SampleRate   float64 `json:"sample_rate"`
	ChannelCount int     `json:"channel_count"`
}

// BatteryInfo is a point-in-time battery reading. Level is 0.0-1.0, or -1
// when the host reports charging state but no level.
type BatteryInfo struct {
	Charging bool    `json:"charging"`
	Level    float64 `json:"level"`
}

// Environment is the capability surface probes collect from. Implementations
// must be safe for concurrent use; collectors run in parallel.
type Environment interface {
	// Origin identifies the context the fingerprint is scoped to. Cache
	// keys are derived from it, so it must be stable across sessions.
	Origin() string

	// Locale returns the host's declared locale (BCP 47, e.g. "de-DE").
	Locale() string

	UserAgent() string
	Platform() string
	Timezone() string
	HardwareConcurrency() int
	DeviceMemory() float64

	Screen() (ScreenInfo, error)

	// CanvasData returns the host's rendered canvas output as an opaque
	// string (typically a data URL). Two identical rendering stacks
	// return identical data.
	CanvasData() (string, error)

	WebGL() (WebGLInfo, error)
	Audio() (AudioInfo, error)

	Battery() (BatteryInfo, error)

	// BatteryChanges returns a stream of battery readings and a cancel
	// function, or a nil channel when the host cannot report changes.
	BatteryChanges() (<-chan BatteryInfo, func())

	// Events exposes the interaction event stream used by the behavioral
	// engine.
	Events() EventSource
}
