package entropy

import (
	"math"
	"testing"
)

func TestStringEntropy(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"empty", "", 0},
		{"single symbol", "aaaa", 0},
		{"two symbols even", "abab", 1},
		{"four symbols even", "abcd", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringEntropy(tt.in)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("StringEntropy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEstimateBaseline(t *testing.T) {
	// Digest of one repeated symbol has zero Shannon entropy, so the
	// estimate reduces to the feature weights alone.
	attrs := map[string]string{"screenResolution": "1920x1080"}
	a := Estimate("0000", attrs)
	if a.EntropyBits != 6 {
		t.Errorf("EntropyBits = %v, want 6", a.EntropyBits)
	}
	if a.Quality.Rating != "weak" {
		t.Errorf("Rating = %q, want weak", a.Quality.Rating)
	}
}

func TestEstimateBatteryLevelBonus(t *testing.T) {
	base := Estimate("0000", map[string]string{"batteryCharging": "true"})
	withLevel := Estimate("0000", map[string]string{
		"batteryCharging": "true",
		"batteryLevel":    "0.80",
	})
	if base.EntropyBits != 2 {
		t.Errorf("battery weight = %v, want 2", base.EntropyBits)
	}
	if withLevel.EntropyBits != 4 {
		t.Errorf("battery+level weight = %v, want 4", withLevel.EntropyBits)
	}
}

func TestEstimateClamp(t *testing.T) {
	// A realistic hex digest carries close to 4 bits/symbol, so the base
	// alone approaches 32; all feature weights on top must clamp at 128.
	attrs := map[string]string{
		"batteryCharging":   "true",
		"batteryLevel":      "0.5",
		"screenResolution":  "1920x1080",
		"canvasFingerprint": "abc",
		"webglRenderer":     "gpu",
		"audioSampleRate":   "44100",
		"userAgent":         "ua",
	}
	digest := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	a := Estimate(digest, attrs)
	if a.EntropyBits != MaxBits {
		t.Errorf("EntropyBits = %v, want clamped %v", a.EntropyBits, MaxBits)
	}
	if a.Quality.Rating != "very strong" {
		t.Errorf("Rating = %q, want very strong", a.Quality.Rating)
	}
}

func TestClassifyTiers(t *testing.T) {
	tests := []struct {
		bits float64
		want string
	}{
		{0, "weak"},
		{19.9, "weak"},
		{20, "moderate"},
		{39.9, "moderate"},
		{40, "strong"},
		{69.9, "strong"},
		{70, "very strong"},
		{128, "very strong"},
	}
	for _, tt := range tests {
		if got := Classify(tt.bits).Rating; got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.bits, got, tt.want)
		}
	}
}
