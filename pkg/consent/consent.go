// Package consent gates collectors behind per-category consent grants.
//
// Each collector maps to a regulatory category. Collectors without a mapped
// category are allowed to run: the gate fails open so that probes not
// covered by a privacy policy are not silently broken. Required categories
// (essential by default) are always granted and cannot be revoked.
package consent

import "time"

// Category is a regulatory consent grouping.
type Category string

const (
	CategoryEssential       Category = "essential"
	CategoryFunctionality   Category = "functionality"
	CategoryAnalytics       Category = "analytics"
	CategoryAdvertising     Category = "advertising"
	CategoryPersonalization Category = "personalization"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryEssential,
	CategoryFunctionality,
	CategoryAnalytics,
	CategoryAdvertising,
	CategoryPersonalization,
}

// DefaultExpiryWindow is how long granted consent stays fresh before
// NeedsRenewal reports true.
const DefaultExpiryWindow = 365 * 24 * time.Hour

// State is the persisted consent record. Grants for required categories are
// forced true on load regardless of what was stored.
type State struct {
	Categories  map[Category]bool `json:"categories"`
	LastUpdated int64             `json:"lastUpdated"` // milliseconds since epoch
	Region      Region            `json:"region"`
}

// clone returns a deep copy so callers cannot mutate gate state.
func (s State) clone() State {
	out := State{LastUpdated: s.LastUpdated, Region: s.Region}
	out.Categories = make(map[Category]bool, len(s.Categories))
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	return out
}
