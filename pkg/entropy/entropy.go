// Package entropy estimates how much distinguishing information a
// fingerprint digest carries and classifies the result into a quality tier.
//
// The estimate is a heuristic, not a measurement: the digest's Shannon
// entropy is combined with flat per-feature weights representing the assumed
// average real-world distinguishing power of each signal category. It is
// useful for ranking configurations against each other, nothing more.
package entropy

import "math"

// MaxBits caps the reported estimate. Real-world fingerprints do not carry
// more usable information than this.
const MaxBits = 128

// Feature weights in bits. Flat bonuses, independent of the observed values.
const (
	weightBattery      = 2
	weightBatteryLevel = 2
	weightScreen       = 6
	weightCanvas       = 12
	weightWebGL        = 12
	weightAudio        = 6
	weightUserAgent    = 8
)

// Quality is a tier classification of an entropy estimate.
type Quality struct {
	Rating      string `json:"rating"`
	Description string `json:"description"`
}

// Analysis is the derived entropy report for a fingerprint.
type Analysis struct {
	EntropyBits float64 `json:"entropy_bits"`
	Quality     Quality `json:"quality"`
}

// StringEntropy returns the Shannon entropy of s in bits per symbol,
// computed over the character frequency distribution.
func StringEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}

	bits := 0.0
	for _, n := range freq {
		p := float64(n) / float64(total)
		bits -= p * math.Log2(p)
	}
	return bits
}

// Estimate derives an entropy analysis from a digest and the attribute set
// it was computed from. Attribute presence is keyed on the canonical
// attribute names produced by the collectors.
func Estimate(digest string, attributes map[string]string) Analysis {
	bits := StringEntropy(digest) * 8

	if _, ok := attributes["batteryCharging"]; ok {
		bits += weightBattery
		if _, ok := attributes["batteryLevel"]; ok {
			bits += weightBatteryLevel
		}
	}
	if _, ok := attributes["screenResolution"]; ok {
		bits += weightScreen
	}
	if _, ok := attributes["canvasFingerprint"]; ok {
		bits += weightCanvas
	}
	if _, ok := attributes["webglRenderer"]; ok {
		bits += weightWebGL
	}
	if _, ok := attributes["audioSampleRate"]; ok {
		bits += weightAudio
	}
	if _, ok := attributes["userAgent"]; ok {
		bits += weightUserAgent
	}

	if bits > MaxBits {
		bits = MaxBits
	}
	return Analysis{EntropyBits: bits, Quality: Classify(bits)}
}

// Classify maps an entropy estimate to its quality tier.
func Classify(bits float64) Quality {
	switch {
	case bits < 20:
		return Quality{
			Rating:      "weak",
			Description: "Low uniqueness; many devices will share this fingerprint",
		}
	case bits < 40:
		return Quality{
			Rating:      "moderate",
			Description: "Moderate uniqueness; useful combined with other signals",
		}
	case bits < 70:
		return Quality{
			Rating:      "strong",
			Description: "High uniqueness; distinguishes most devices",
		}
	default:
		return Quality{
			Rating:      "very strong",
			Description: "Very high uniqueness; near-unique device identification",
		}
	}
}
