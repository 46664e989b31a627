// Package behavior derives a behavioral interaction profile from a live
// stream of pointer, key, and touch events sampled over a bounded training
// window, and caches the finished profile for long-term reuse.
package behavior

import "time"

// PrivacyMode controls how key events are identified in the raw sample
// buffer. It does not alter mouse or touch metric semantics.
type PrivacyMode string

const (
	// ModeFull records literal key values and enables the backspace
	// ratio metric.
	ModeFull PrivacyMode = "full"
	// ModeBalanced records layout-normalized key codes only.
	ModeBalanced PrivacyMode = "balanced"
	// ModeMinimal records an opaque placeholder for every key.
	ModeMinimal PrivacyMode = "minimal"
)

// Sample thresholds per channel. A channel that collected fewer raw samples
// than its threshold is omitted from the profile, not zero-filled.
const (
	MouseSampleThreshold    = 10
	KeyboardSampleThreshold = 5
	TouchSampleThreshold    = 10
)

// backspaceRatioThreshold is the minimum keyboard sample count before the
// backspace ratio is considered meaningful.
const backspaceRatioThreshold = 20

// hesitationGap is the inter-sample gap treated as a hesitation for mouse
// movement and as a gesture boundary for touch swipes.
const hesitationGap = 300 * time.Millisecond

// MouseMetrics summarizes pointer movement behavior.
type MouseMetrics struct {
	// AverageSpeed is the mean pointer speed in pixels per second across
	// consecutive movement samples with a positive time delta.
	AverageSpeed     float64 `json:"averageSpeed"`
	DirectionChanges int     `json:"directionChanges"`
	HesitationCount  int     `json:"hesitationCount"`
	SampleCount      int     `json:"sampleCount"`
}

// KeyboardMetrics summarizes typing behavior.
type KeyboardMetrics struct {
	// AverageHoldTime is the mean matched key-down/key-up duration in
	// milliseconds.
	AverageHoldTime float64 `json:"averageHoldTime"`
	CharsPerSecond  float64 `json:"charsPerSecond"`
	// BackspaceRatio is only present in full privacy mode with at least
	// 20 key samples.
	BackspaceRatio *float64 `json:"backspaceRatio,omitempty"`
	SampleCount    int      `json:"sampleCount"`
}

// TouchMetrics summarizes touchscreen behavior.
type TouchMetrics struct {
	AverageTouchSize float64 `json:"averageTouchSize"`
	// AverageSwipeSpeed is computed over consecutive samples within
	// 300ms of each other, treated as a single gesture.
	AverageSwipeSpeed float64 `json:"averageSwipeSpeed"`
	SampleCount       int     `json:"sampleCount"`
}

// Profile is the finished behavioral profile. Each metrics group is present
// only when its channel was tracked and met its sample threshold. A profile
// is frozen once finalized; a fresh training cycle produces a new value.
type Profile struct {
	Mouse     *MouseMetrics     `json:"mouse,omitempty"`
	Keyboard  *KeyboardMetrics  `json:"keyboard,omitempty"`
	Touch     *TouchMetrics     `json:"touch,omitempty"`
	TrainedAt time.Time         `json:"trainedAt"`
}

// Empty reports whether no channel met its threshold.
func (p Profile) Empty() bool {
	return p.Mouse == nil && p.Keyboard == nil && p.Touch == nil
}

// Config controls a training cycle.
type Config struct {
	// TrainingDuration bounds the collection window. Default 10s.
	TrainingDuration time.Duration
	// SampleInterval rate-limits movement and touch-move samples to
	// bound memory. Default 100ms.
	SampleInterval time.Duration
	// PrivacyMode defaults to ModeBalanced.
	PrivacyMode PrivacyMode
	// Channel toggles. When all three are false every channel is
	// tracked.
	Mouse    bool
	Keyboard bool
	Touch    bool
	// CacheValidity bounds reuse of a persisted profile. Default 30
	// days.
	CacheValidity time.Duration
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.TrainingDuration <= 0 {
		c.TrainingDuration = 10 * time.Second
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 100 * time.Millisecond
	}
	if c.PrivacyMode == "" {
		c.PrivacyMode = ModeBalanced
	}
	if !c.Mouse && !c.Keyboard && !c.Touch {
		c.Mouse, c.Keyboard, c.Touch = true, true, true
	}
	if c.CacheValidity <= 0 {
		c.CacheValidity = 30 * 24 * time.Hour
	}
	return c
}
