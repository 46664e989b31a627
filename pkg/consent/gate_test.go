package consent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deviceprint/pkg/cache"
)

func newTestGate(t *testing.T, cfg Config, locale string, store cache.Cache) *Gate {
	t.Helper()
	g := NewGate(cfg, locale, "https://example.com", store, nil)
	require.NoError(t, g.Initialize())
	return g
}

func TestUnmappedCollectorFailsOpen(t *testing.T) {
	g := newTestGate(t, Config{
		CollectorCategories: map[string]Category{"behavior": CategoryPersonalization},
	}, "de-DE", nil)

	assert.True(t, g.HasConsent("screen"), "unmapped collector must be allowed")
	assert.False(t, g.HasConsent("behavior"), "mapped collector denied under EU defaults")
}

func TestRequiredCategoryAlwaysGranted(t *testing.T) {
	g := newTestGate(t, Config{
		CollectorCategories: map[string]Category{"core": CategoryEssential},
	}, "de-DE", nil)

	assert.True(t, g.HasConsent("core"))

	// Revocation attempts on a required category are ignored.
	g.Update(CategoryEssential, false)
	assert.True(t, g.State().Categories[CategoryEssential])
	assert.True(t, g.HasConsent("core"))
}

func TestRegionDefaults(t *testing.T) {
	tests := []struct {
		locale      string
		wantRegion  Region
		wantGranted bool
	}{
		{"de-DE", RegionEU, false},
		{"fr-FR", RegionEU, false},
		{"en-GB", RegionUK, false},
		{"pt-BR", RegionBrazil, false},
		{"en-US", RegionUS, true},
		{"en", RegionUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			g := newTestGate(t, Config{}, tt.locale, nil)
			assert.Equal(t, tt.wantRegion, g.Region())
			assert.Equal(t, tt.wantGranted, g.State().Categories[CategoryAnalytics])
			// Essential is granted regardless of stringency.
			assert.True(t, g.State().Categories[CategoryEssential])
		})
	}
}

func TestRegionStringencyIsConfigurable(t *testing.T) {
	// Flipping the table entry for the US must flip the default, proving
	// the deny-vs-allow choice is configuration, not inference.
	g := newTestGate(t, Config{
		RequireConsent: map[Region]bool{RegionUS: true},
	}, "en-US", nil)
	assert.False(t, g.State().Categories[CategoryAnalytics])
}

func TestUpdateGrantsAndObservers(t *testing.T) {
	g := newTestGate(t, Config{
		CollectorCategories: map[string]Category{"behavior": CategoryPersonalization},
	}, "de-DE", nil)

	var seen []State
	cancel := g.Subscribe(func(st State) { seen = append(seen, st) })
	defer cancel()

	require.False(t, g.HasConsent("behavior"))
	g.Update(CategoryPersonalization, true)
	assert.True(t, g.HasConsent("behavior"))

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Categories[CategoryPersonalization])

	// A no-op update must not notify.
	g.Update(CategoryPersonalization, true)
	assert.Len(t, seen, 1)
}

func TestUpdateAllSingleNotification(t *testing.T) {
	g := newTestGate(t, Config{}, "de-DE", nil)

	calls := 0
	cancel := g.Subscribe(func(State) { calls++ })
	defer cancel()

	g.UpdateAll(map[Category]bool{
		CategoryAnalytics:       true,
		CategoryAdvertising:     true,
		CategoryPersonalization: true,
	})
	assert.Equal(t, 1, calls)
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := cache.NewMemory()

	g1 := newTestGate(t, Config{Persist: true}, "de-DE", store)
	g1.Update(CategoryAnalytics, true)

	// A fresh gate on the same origin loads the persisted grants instead
	// of region defaults.
	g2 := newTestGate(t, Config{Persist: true}, "de-DE", store)
	assert.True(t, g2.State().Categories[CategoryAnalytics])
	assert.Equal(t, RegionEU, g2.Region())
}

func TestCorruptPersistedStateFallsBack(t *testing.T) {
	store := cache.NewMemory()
	key := cache.Key("https://example.com", stateCachePrefix)

	// Structurally wrong: lastUpdated is a string.
	require.NoError(t, store.Save(key, map[string]any{
		"categories":  map[string]bool{"analytics": true},
		"lastUpdated": "not-a-timestamp",
	}))

	g := newTestGate(t, Config{Persist: true}, "de-DE", store)
	// EU defaults, not the corrupt grant.
	assert.False(t, g.State().Categories[CategoryAnalytics])
}

func TestPersistedRequiredCategoryForcedOn(t *testing.T) {
	store := cache.NewMemory()
	key := cache.Key("https://example.com", stateCachePrefix)
	require.NoError(t, store.Save(key, State{
		Categories:  map[Category]bool{CategoryEssential: false},
		LastUpdated: time.Now().UnixMilli(),
		Region:      RegionEU,
	}))

	g := newTestGate(t, Config{Persist: true}, "de-DE", store)
	assert.True(t, g.State().Categories[CategoryEssential])
}

func TestNeedsRenewal(t *testing.T) {
	g := newTestGate(t, Config{ExpiryWindow: 50 * time.Millisecond}, "en-US", nil)
	assert.False(t, g.NeedsRenewal())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, g.NeedsRenewal())

	g.Update(CategoryAnalytics, false)
	assert.False(t, g.NeedsRenewal(), "update must refresh the consent timestamp")
}

func TestReset(t *testing.T) {
	g := newTestGate(t, Config{}, "de-DE", nil)
	g.Update(CategoryAnalytics, true)
	require.True(t, g.State().Categories[CategoryAnalytics])

	g.Reset()
	assert.False(t, g.State().Categories[CategoryAnalytics])
	assert.Equal(t, RegionEU, g.Region())
}
