package models

import (
	"time"

	"gorm.io/datatypes"
)

// DedupGroup clusters listings believed to describe the same physical unit
type DedupGroup struct {
	ID                 string `gorm:"type:varchar(36);primaryKey" json:"id"`
	CanonicalURL       string `gorm:"type:varchar(500);not null" json:"canonical_url"`
	CanonicalListingID string `gorm:"type:varchar(32);not null" json:"canonical_listing_id"`
	CanonicalPinned    bool   `gorm:"not null;default:false" json:"canonical_pinned"`

	Snapshot        datatypes.JSONType[GroupSnapshot] `json:"snapshot"`
	SnapshotStale   bool                              `gorm:"not null;default:true" json:"snapshot_stale"`
	SnapshotBuiltAt *time.Time                        `json:"snapshot_built_at"`
	MemberCount     int                               `gorm:"not null;default:0" json:"member_count"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index:idx_group_updated,sort:desc" json:"updated_at"`
}

// TableName specifies the table name
func (DedupGroup) TableName() string {
	return "dedup_groups"
}

// GroupMember links a listing to its group. A listing has at most one row.
type GroupMember struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	GroupID   string    `gorm:"type:varchar(36);not null;index" json:"group_id"`
	ListingID string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"listing_id"`
	SourceURL string    `gorm:"type:varchar(500);not null" json:"source_url"`
	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
}

// TableName specifies the table name
func (GroupMember) TableName() string {
	return "group_members"
}

// GroupSnapshot is the merged view of a group, rebuilt from scratch on every change
type GroupSnapshot struct {
	CanonicalListingID string         `json:"canonical_listing_id"`
	MemberIDs          []string       `json:"member_ids"`
	Features           MergedFeatures `json:"features"`
	Photos             []string       `json:"photos"`
	PriceHistory       []PricePoint   `json:"price_history"`
	BuiltAt            time.Time      `json:"built_at"`
}

// MergedFeatures holds the best-known value per field across members
type MergedFeatures struct {
	PriceEur       *int     `json:"price_eur"`
	PriceRon       *int     `json:"price_ron"`
	AreaM2         *float64 `json:"area_m2"`
	Rooms          *int     `json:"rooms"`
	Floor          *int     `json:"floor"`
	YearBuilt      *int     `json:"year_built"`
	AddressRaw     *string  `json:"address_raw"`
	AreaSlug       *string  `json:"area_slug"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	DistMetroM     *int     `json:"dist_metro_m"`
	TimeToMetroMin *int     `json:"time_to_metro_min"`
}

// PricePoint is one member's asking price, ordered by listing creation time
type PricePoint struct {
	ListingID  string    `json:"listing_id"`
	SourceURL  string    `json:"source_url"`
	PriceEur   *int      `json:"price_eur"`
	PriceRon   *int      `json:"price_ron"`
	ObservedAt time.Time `json:"observed_at"`
}

// GroupEvent records membership and canonical history of a group
type GroupEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   string    `gorm:"type:varchar(36);not null;index" json:"group_id"`
	ListingID string    `gorm:"type:varchar(32);index" json:"listing_id,omitempty"`
	EventType string    `gorm:"type:varchar(50);not null" json:"event_type"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name
func (GroupEvent) TableName() string {
	return "group_events"
}

// EventType constants
const (
	GroupEventCreated          = "group_created"
	GroupEventMemberAdded      = "member_added"
	GroupEventCanonicalChanged = "canonical_changed"
	GroupEventSnapshotFailed   = "snapshot_failed"
	GroupEventMerged           = "group_merged"
)
