package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawListing holds loosely typed fields exactly as scraped.
// Rows are upserted by normalized source URL so re-ingestion is idempotent;
// the status columns drive the dedup_attach batch job.
type RawListing struct {
	ID          string `gorm:"type:varchar(32);primaryKey" json:"id"`
	SourceURL   string `gorm:"type:varchar(500);not null;uniqueIndex" json:"source_url"`
	Title       string `gorm:"type:text" json:"title"`
	PriceText   string `gorm:"type:varchar(100)" json:"price_text"`
	Currency    string `gorm:"type:varchar(20)" json:"currency"`
	AreaText    string `gorm:"type:varchar(100)" json:"area_text"`
	RoomsText   string `gorm:"type:varchar(50)" json:"rooms_text"`
	FloorText   string `gorm:"type:varchar(50)" json:"floor_text"`
	YearBuilt   string `gorm:"type:varchar(50)" json:"year_built"`
	Address     string `gorm:"type:text" json:"address"`
	MetroText   string `gorm:"type:varchar(100)" json:"metro_text"`

	PhotoURLs   datatypes.JSONSlice[string] `json:"photo_urls"`
	DemandScore *float64                    `json:"demand_score"`
	ContentHash string                      `gorm:"type:varchar(64);not null" json:"content_hash"`

	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_raw_status" json:"status"` // pending, processed, failed, permanent_fail
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time `gorm:"index:idx_raw_retry" json:"next_retry_at,omitempty"`

	FetchedAt time.Time `gorm:"not null" json:"fetched_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_raw_updated" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RawListing) TableName() string {
	return "raw_listings"
}

// Status constants
const (
	RawStatusPending       = "pending"
	RawStatusProcessed     = "processed"
	RawStatusFailed        = "failed"
	RawStatusPermanentFail = "permanent_fail" // retries exhausted
)

// MaxRetryAttempts before marking as permanently failed
const MaxRetryAttempts = 5

// GetNextRetryDelay calculates exponential backoff for retries
func GetNextRetryDelay(attempts int) time.Duration {
	// 5min, 15min, 1h, 4h, 12h
	delays := []time.Duration{
		5 * time.Minute,
		15 * time.Minute,
		1 * time.Hour,
		4 * time.Hour,
		12 * time.Hour,
	}

	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}

// CrawlVisit records one observation of a listing page.
type CrawlVisit struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   string    `gorm:"type:varchar(32);not null;index:idx_visit_listing" json:"listing_id"`
	PriceEur    *int      `json:"price_eur"`
	ContentHash string    `gorm:"type:varchar(64)" json:"content_hash"`
	VisitedAt   time.Time `gorm:"not null;index:idx_visit_listing,priority:2" json:"visited_at"`
}

// TableName specifies the table name
func (CrawlVisit) TableName() string {
	return "crawl_visits"
}
