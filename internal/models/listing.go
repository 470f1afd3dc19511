package models

import (
	"time"

	"gorm.io/datatypes"
)

// Listing is one normalized version of a scraped listing.
// Nullable fields are pointers and serialize as explicit nulls.
type Listing struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	ListingID string `gorm:"type:varchar(32);not null;uniqueIndex:idx_listing_version" json:"listing_id"`
	Version   int    `gorm:"not null;uniqueIndex:idx_listing_version,priority:2" json:"version"`
	SourceURL string `gorm:"type:varchar(500);not null;index" json:"source_url"`
	Signature string `gorm:"type:varchar(600);index" json:"signature"`

	// Currency is the authoritative currency of the asking price (EUR or RON).
	Currency string `gorm:"type:varchar(3)" json:"currency"`
	PriceEur *int   `gorm:"type:int" json:"price_eur"`
	PriceRon *int   `gorm:"type:int" json:"price_ron"`

	AreaM2    *float64 `gorm:"type:decimal(10,2)" json:"area_m2"`
	Rooms     *int     `gorm:"type:int" json:"rooms"`
	Floor     *int     `gorm:"type:int" json:"floor"`
	YearBuilt *int     `gorm:"type:int" json:"year_built"`

	AddressRaw string   `gorm:"type:text" json:"address_raw"`
	AreaSlug   *string  `gorm:"type:varchar(120);index" json:"area_slug"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`

	Photos         datatypes.JSONSlice[string] `json:"photos"`
	DistMetroM     *int                        `gorm:"type:int" json:"dist_metro_m"`
	TimeToMetroMin *int                        `gorm:"type:int" json:"time_to_metro_min"`
	DemandScore    *float64                    `json:"demand_score"`

	// FirstSeenAt is the creation time of the listing itself, shared by all versions.
	FirstSeenAt  time.Time `gorm:"not null" json:"first_seen_at"`
	NormalizedAt time.Time `gorm:"not null;index" json:"normalized_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (Listing) TableName() string {
	return "listings"
}

// Currency codes
const (
	CurrencyEUR = "EUR"
	CurrencyRON = "RON"
)

// AskingPriceEur returns the asking price in EUR regardless of the authoritative currency.
func (l *Listing) AskingPriceEur() *int {
	if l == nil {
		return nil
	}
	return l.PriceEur
}

// HasCoordinates reports whether both lat and lng are known.
func (l *Listing) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lng != nil
}

// AreaStat is the per-area market aggregate refreshed by the area_refresh job.
type AreaStat struct {
	AreaSlug        string    `gorm:"type:varchar(120);primaryKey" json:"area_slug"`
	MedianEurPerM2  float64   `gorm:"type:decimal(10,2)" json:"median_eur_per_m2"`
	SaleComps       int       `json:"sale_comps"`
	MedianRentPerM2 *float64  `gorm:"type:decimal(10,2)" json:"median_rent_per_m2"`
	RentComps       int       `json:"rent_comps"`
	RefreshedAt     time.Time `gorm:"not null" json:"refreshed_at"`
}

// TableName specifies the table name
func (AreaStat) TableName() string {
	return "area_stats"
}
