package models

import "time"

// PruneLog is a record of rows physically removed by the cleanup job
type PruneLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID string    `gorm:"type:varchar(32);not null;index" json:"listing_id"`
	Kind      string    `gorm:"type:varchar(30);not null" json:"kind"`
	Removed   int       `gorm:"not null" json:"removed"`
	Reason    string    `gorm:"type:varchar(50);not null" json:"reason"`
	PrunedAt  time.Time `gorm:"not null;autoCreateTime;index" json:"pruned_at"`
}

// TableName specifies the table name
func (PruneLog) TableName() string {
	return "prune_logs"
}

// Prune kinds
const (
	PruneKindVersions = "listing_versions"
	PruneKindVisits   = "crawl_visits"
)

// Prune reasons
const (
	PruneReasonSuperseded = "superseded_version"
	PruneReasonRetention  = "retention_expired"
)
