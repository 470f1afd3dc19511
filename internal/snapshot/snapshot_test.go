package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/models"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func TestBuild(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	older := models.Listing{
		ListingID:    "a",
		SourceURL:    "https://site-a.ro/1",
		PriceEur:     intPtr(95000),
		AreaM2:       floatPtr(55),
		Rooms:        intPtr(2),
		YearBuilt:    intPtr(1978),
		AddressRaw:   "Str. X 1, Obor",
		Photos:       []string{"p1", "p2"},
		FirstSeenAt:  t0,
		NormalizedAt: t0,
	}
	newer := models.Listing{
		ListingID:    "b",
		SourceURL:    "https://site-b.ro/9",
		PriceEur:     intPtr(92000),
		AreaSlug:     strPtr("bucuresti-obor"),
		Photos:       []string{"p2", "p3"},
		FirstSeenAt:  t0.Add(-48 * time.Hour),
		NormalizedAt: t0.Add(time.Hour),
	}

	snap := Build("a", []string{"a", "b"}, []models.Listing{newer, older}, t0.Add(2*time.Hour))

	assert.Equal(t, "a", snap.CanonicalListingID)
	assert.Equal(t, []string{"a", "b"}, snap.MemberIDs)
	assert.Equal(t, 92000, *snap.Features.PriceEur, "most recently normalized value wins")
	assert.Equal(t, 55.0, *snap.Features.AreaM2, "older value fills a field the newer one lacks")
	assert.Equal(t, "bucuresti-obor", *snap.Features.AreaSlug)
	assert.Equal(t, "Str. X 1, Obor", *snap.Features.AddressRaw)
	assert.Nil(t, snap.Features.Floor)
	assert.Equal(t, []string{"p1", "p2", "p3"}, snap.Photos)

	require.Len(t, snap.PriceHistory, 2)
	assert.Equal(t, "b", snap.PriceHistory[0].ListingID, "ordered by listing creation time")
	assert.Equal(t, "a", snap.PriceHistory[1].ListingID)

	t.Run("canonical photos come first", func(t *testing.T) {
		snap := Build("b", []string{"a", "b"}, []models.Listing{older, newer}, t0)
		assert.Equal(t, []string{"p2", "p3", "p1"}, snap.Photos)
	})

	t.Run("rebuild is deterministic", func(t *testing.T) {
		again := Build("a", []string{"a", "b"}, []models.Listing{older, newer}, t0.Add(2*time.Hour))
		assert.Equal(t, snap, again)
	})
}

func TestDetectChanges(t *testing.T) {
	prev := models.GroupSnapshot{
		CanonicalListingID: "a",
		MemberIDs:          []string{"a"},
		Features:           models.MergedFeatures{PriceEur: intPtr(100000), AreaM2: floatPtr(50)},
		Photos:             []string{"p1"},
	}
	next := models.GroupSnapshot{
		CanonicalListingID: "a",
		MemberIDs:          []string{"a", "b"},
		Features:           models.MergedFeatures{PriceEur: intPtr(97000), AreaM2: floatPtr(50), AreaSlug: strPtr("iasi")},
		Photos:             []string{"p1"},
	}

	changes := DetectChanges(prev, next)
	require.Len(t, changes, 3)
	assert.Equal(t, FieldMembers, changes[0].Field)
	assert.Equal(t, FieldPrice, changes[1].Field)
	assert.Equal(t, -3000.0, *changes[1].Magnitude)
	assert.Equal(t, FieldAreaSlug, changes[2].Field)
	assert.Equal(t, []string{"members: 1 -> 2", "price_eur: 100000 -> 97000", "area_slug:  -> iasi"}, Summary(changes))

	assert.Empty(t, DetectChanges(next, next))
}
