package models

import "time"

// PhotoAsset represents one distinct photo URL of a listing with its perceptual hash
type PhotoAsset struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_photo_listing_url" json:"listing_id"`
	URL       string    `gorm:"type:varchar(700);not null;uniqueIndex:idx_photo_listing_url,priority:2" json:"url"`
	Phash     *uint64   `gorm:"type:bigint unsigned" json:"phash"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for PhotoAsset
func (PhotoAsset) TableName() string {
	return "photo_assets"
}

// ConditionCache stores a vision condition score per ordered photo set.
type ConditionCache struct {
	CacheKey  string    `gorm:"type:varchar(64);primaryKey" json:"cache_key"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (ConditionCache) TableName() string {
	return "condition_cache"
}
