package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"real-estate-valuation/internal/models"
)

func TestBuildFilter(t *testing.T) {
	minPrice, maxPrice := 50000, 120000
	minTrust := 0.5

	tests := []struct {
		name   string
		params FilterParams
		want   string
	}{
		{name: "empty", params: FilterParams{}, want: ""},
		{
			name:   "single badge",
			params: FilterParams{Badges: []string{models.BadgeUnderpriced}},
			want:   "price_badge = 'Underpriced'",
		},
		{
			name: "combined",
			params: FilterParams{
				RiskClasses: []string{models.RiskRS1, models.RiskRS2},
				AreaSlugs:   []string{"bucuresti-titan"},
				MinPrice:    &minPrice,
				MaxPrice:    &maxPrice,
				MinTrust:    &minTrust,
			},
			want: "(risk_class = 'RS1' OR risk_class = 'RS2') AND area_slug = 'bucuresti-titan' AND price_eur >= 50000 AND price_eur <= 120000 AND trust_score >= 0.5",
		},
		{
			name:   "quotes are escaped",
			params: FilterParams{AreaSlugs: []string{"o'neil"}},
			want:   `area_slug = 'o\'neil'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFilter(tt.params))
		})
	}
}

func TestBuildDocument(t *testing.T) {
	price := 100000
	area := 50.0
	slug := "bucuresti-titan"
	badge := models.BadgeFair
	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	group := &models.DedupGroup{
		ID:                 "g1",
		CanonicalListingID: "l1",
		CanonicalURL:       "https://example.ro/1",
		MemberCount:        2,
		Snapshot: datatypes.NewJSONType(models.GroupSnapshot{
			CanonicalListingID: "l1",
			MemberIDs:          []string{"l1", "l2"},
			Features:           models.MergedFeatures{PriceEur: &price, AreaM2: &area, AreaSlug: &slug},
			Photos:             []string{"https://img/1.jpg", "https://img/2.jpg"},
		}),
		UpdatedAt: updated,
	}

	t.Run("without scores", func(t *testing.T) {
		doc := BuildDocument(group, nil, nil)
		assert.Equal(t, "g1", doc.ID)
		assert.Equal(t, slug, doc.AreaSlug)
		require.NotNil(t, doc.EurPerM2)
		assert.InDelta(t, 2000, *doc.EurPerM2, 1e-9)
		assert.Equal(t, "https://img/1.jpg", doc.Photo)
		assert.Equal(t, models.RiskUnknown, doc.RiskClass)
		assert.Nil(t, doc.TrustScore)
		assert.Equal(t, updated.Unix(), doc.UpdatedAt)
	})

	t.Run("with scores and trust", func(t *testing.T) {
		score := &models.ScoreResult{ListingID: "l1", PriceBadge: &badge, RiskClass: models.RiskRS2}
		doc := BuildDocument(group, score, &models.TrustSnapshot{Score: 0.8})
		assert.Equal(t, &badge, doc.PriceBadge)
		assert.Equal(t, models.RiskRS2, doc.RiskClass)
		require.NotNil(t, doc.TrustScore)
		assert.InDelta(t, 0.8, *doc.TrustScore, 1e-9)
	})
}
