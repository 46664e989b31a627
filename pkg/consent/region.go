package consent

import "strings"

// Region is a coarse regulatory region derived from the host locale.
type Region string

const (
	RegionEU      Region = "eu"
	RegionUK      Region = "uk"
	RegionUS      Region = "us"
	RegionCanada  Region = "ca"
	RegionBrazil  Region = "br"
	RegionUnknown Region = "other"
)

// DefaultRequireConsent is the explicit per-region stringency table: true
// means non-required categories start denied until the user grants them.
// Permissive regions also start denied only when configured to require
// consent; the table makes that choice explicit and testable rather than
// inferred.
var DefaultRequireConsent = map[Region]bool{
	RegionEU:      true,
	RegionUK:      true,
	RegionBrazil:  true,
	RegionCanada:  true,
	RegionUS:      false,
	RegionUnknown: false,
}

// euCountries covers EU/EEA members for locale-based detection.
var euCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true, "IS": true, "LI": true, "NO": true,
}

// DetectRegion maps a BCP 47 locale ("de-DE", "en_GB") to a coarse region.
// Best-effort: a locale without a country subtag resolves to RegionUnknown.
func DetectRegion(locale string) Region {
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.Split(locale, "-")
	if len(parts) < 2 {
		return RegionUnknown
	}

	country := strings.ToUpper(parts[len(parts)-1])
	// Tags like "zh-Hans-CN" carry a script subtag; the country is the
	// last two-letter part.
	if len(country) != 2 {
		return RegionUnknown
	}

	switch {
	case euCountries[country]:
		return RegionEU
	case country == "GB":
		return RegionUK
	case country == "US":
		return RegionUS
	case country == "CA":
		return RegionCanada
	case country == "BR":
		return RegionBrazil
	default:
		return RegionUnknown
	}
}
