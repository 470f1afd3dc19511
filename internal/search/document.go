package search

import (
	"real-estate-valuation/internal/models"
)

// GroupDocument is the searchable view of a dedup group: the merged snapshot
// of its members plus the canonical listing's scores.
type GroupDocument struct {
	ID                 string   `json:"id"`
	CanonicalListingID string   `json:"canonical_listing_id"`
	CanonicalURL       string   `json:"canonical_url"`
	MemberCount        int      `json:"member_count"`
	Address            string   `json:"address,omitempty"`
	AreaSlug           string   `json:"area_slug,omitempty"`
	Lat                *float64 `json:"lat"`
	Lng                *float64 `json:"lng"`
	PriceEur           *int     `json:"price_eur"`
	AreaM2             *float64 `json:"area_m2"`
	EurPerM2           *float64 `json:"eur_per_m2"`
	Rooms              *int     `json:"rooms"`
	Floor              *int     `json:"floor"`
	YearBuilt          *int     `json:"year_built"`
	Photo              string   `json:"photo,omitempty"`

	AvmMid       *int     `json:"avm_mid"`
	PriceBadge   *string  `json:"price_badge"`
	TTSBucket    *string  `json:"tts_bucket"`
	YieldNet     *float64 `json:"yield_net"`
	YieldVerdict *string  `json:"yield_verdict"`
	RiskClass    string   `json:"risk_class"`
	Condition    *string  `json:"condition"`
	TrustScore   *float64 `json:"trust_score"`

	UpdatedAt int64 `json:"updated_at"`
}

// BuildDocument assembles a group document. score and trust may be nil.
func BuildDocument(group *models.DedupGroup, score *models.ScoreResult, trust *models.TrustSnapshot) *GroupDocument {
	snap := group.Snapshot.Data()
	f := snap.Features

	doc := &GroupDocument{
		ID:                 group.ID,
		CanonicalListingID: group.CanonicalListingID,
		CanonicalURL:       group.CanonicalURL,
		MemberCount:        group.MemberCount,
		Lat:                f.Lat,
		Lng:                f.Lng,
		PriceEur:           f.PriceEur,
		AreaM2:             f.AreaM2,
		Rooms:              f.Rooms,
		Floor:              f.Floor,
		YearBuilt:          f.YearBuilt,
		RiskClass:          models.RiskUnknown,
		UpdatedAt:          group.UpdatedAt.Unix(),
	}
	if f.AddressRaw != nil {
		doc.Address = *f.AddressRaw
	}
	if f.AreaSlug != nil {
		doc.AreaSlug = *f.AreaSlug
	}
	if f.PriceEur != nil && f.AreaM2 != nil && *f.AreaM2 > 0 {
		perM2 := float64(*f.PriceEur) / *f.AreaM2
		doc.EurPerM2 = &perM2
	}
	if len(snap.Photos) > 0 {
		doc.Photo = snap.Photos[0]
	}

	if score != nil {
		doc.AvmMid = score.AvmMid
		doc.PriceBadge = score.PriceBadge
		doc.TTSBucket = score.TTSBucket
		doc.YieldNet = score.YieldNet
		doc.YieldVerdict = score.YieldVerdict
		doc.Condition = score.Condition
		if score.RiskClass != "" {
			doc.RiskClass = score.RiskClass
		}
	}
	if trust != nil {
		s := trust.Score
		doc.TrustScore = &s
	}
	return doc
}
