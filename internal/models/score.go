package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScoreResult is the full valuation output of one listing. It is always
// replaced as a whole, never patched field by field.
type ScoreResult struct {
	ListingID       string `gorm:"type:varchar(32);primaryKey" json:"listing_id"`
	GroupID         string `gorm:"type:varchar(36);index" json:"group_id"`
	FeaturesVersion int    `gorm:"not null" json:"features_version"`

	AvmLow  *int     `json:"avm_low"`
	AvmMid  *int     `json:"avm_mid"`
	AvmHigh *int     `json:"avm_high"`
	AvmConf *float64 `json:"avm_conf"`

	PriceBadge   *string  `gorm:"type:varchar(20);index" json:"price_badge"`
	TTSBucket    *string  `gorm:"type:varchar(10)" json:"tts_bucket"`
	YieldGross   *float64 `json:"yield_gross"`
	YieldNet     *float64 `json:"yield_net"`
	YieldVerdict *string  `gorm:"type:varchar(10)" json:"yield_verdict"`

	RiskScore *float64 `json:"risk_score"`
	RiskClass string   `gorm:"type:varchar(10);not null;default:'unknown'" json:"risk_class"`

	Condition      *string  `gorm:"type:varchar(20)" json:"condition"`
	ConditionScore *float64 `json:"condition_score"`

	Explain datatypes.JSONType[ScoreExplain] `json:"explain"`

	ComputedAt time.Time `gorm:"not null;index" json:"computed_at"`
}

// TableName specifies the table name
func (ScoreResult) TableName() string {
	return "score_results"
}

// ScoreExplain records the inputs and adjustments behind each score.
type ScoreExplain struct {
	AVM       ExplainFragment `json:"avm"`
	TTS       ExplainFragment `json:"tts"`
	Yield     ExplainFragment `json:"yield"`
	Seismic   ExplainFragment `json:"seismic"`
	Condition ExplainFragment `json:"condition"`
}

// ExplainFragment is one model's audit trail.
type ExplainFragment struct {
	Status      string             `json:"status"` // ok, undefined
	Reason      string             `json:"reason,omitempty"`
	Inputs      map[string]any     `json:"inputs"`
	Adjustments []Adjustment       `json:"adjustments"`
	Values      map[string]float64 `json:"values"`
}

// Adjustment is a single named factor applied by a model.
type Adjustment struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"` // multiplicative, additive
	Amount float64 `json:"amount"`
}

// Price badge values
const (
	BadgeUnderpriced = "Underpriced"
	BadgeFair        = "Fair"
	BadgeOverpriced  = "Overpriced"
)

// Risk class values
const (
	RiskRS1     = "RS1"
	RiskRS2     = "RS2"
	RiskNone    = "none"
	RiskUnknown = "unknown"
)

// Condition buckets
const (
	ConditionNeedsRenovation = "needs_renovation"
	ConditionDecent          = "decent"
	ConditionModern          = "modern"
)

// TTS buckets
const (
	TTSUnder30 = "<30"
	TTS30To60  = "30-60"
	TTS60To90  = "60-90"
	TTSOver90  = "90+"
)

// Yield verdicts
const (
	YieldOK   = "ok"
	YieldWeak = "slab"
)

// TrustSnapshot is the provenance score of a listing.
type TrustSnapshot struct {
	ListingID       string                         `gorm:"type:varchar(32);primaryKey" json:"listing_id"`
	Score           float64                        `json:"score"`
	Confidence      float64                        `json:"confidence"`
	Flags           datatypes.JSONSlice[TrustFlag] `json:"flags"`
	ScoreComputedAt time.Time                      `gorm:"not null" json:"score_computed_at"`
	ComputedAt      time.Time                      `gorm:"not null;index" json:"computed_at"`
}

// TableName specifies the table name
func (TrustSnapshot) TableName() string {
	return "trust_snapshots"
}

// TrustFlag is one itemized contribution to the trust score.
type TrustFlag struct {
	Code           string  `json:"code"`
	Message        string  `json:"message"`
	Impact         float64 `json:"impact"`
	OtherListingID string  `json:"other_listing_id,omitempty"`
	Distance       *int    `json:"distance,omitempty"`
}

// Trust flag codes
const (
	FlagPhotoReuse        = "photo_reuse"
	FlagLargeGroup        = "large_group"
	FlagCanonicalUnstable = "canonical_unstable"
	FlagRevisitConsistent = "revisit_consistent"
	FlagPriceSwing        = "price_swing"
	FlagSuspiciouslyCheap = "suspiciously_underpriced"
	FlagNoRevisits        = "no_revisits"
)
