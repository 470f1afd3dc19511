package database

import (
	"context"
	"errors"
	"time"

	"real-estate-valuation/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyMember is returned when a listing already belongs to a group.
	ErrAlreadyMember = errors.New("listing already belongs to a group")
	// ErrSnapshotConflict is returned when group membership changed between
	// computing a snapshot and committing it.
	ErrSnapshotConflict = errors.New("group membership changed during snapshot rebuild")
	// ErrLockTimeout is returned when a cross-process lock is not acquired in time
	ErrLockTimeout = errors.New("timed out waiting for lock")
)

// RawListingStore persists scraped records and crawl visits.
type RawListingStore interface {
	// UpsertRawListing inserts or updates by normalized source URL. It reports
	// whether the content changed, in which case the record is pending again.
	UpsertRawListing(ctx context.Context, raw *models.RawListing) (bool, error)
	GetRawListing(ctx context.Context, id string) (*models.RawListing, error)
	// ListDueRawListings returns pending records and failed records whose
	// retry time has passed, oldest first.
	ListDueRawListings(ctx context.Context, now time.Time, limit int) ([]models.RawListing, error)
	SaveRawListingStatus(ctx context.Context, raw *models.RawListing) error

	AddCrawlVisit(ctx context.Context, visit *models.CrawlVisit) error
	ListCrawlVisits(ctx context.Context, listingID string) ([]models.CrawlVisit, error)
	// ListListingsDueForRecrawl returns listing IDs whose latest visit is older
	// than visitedBefore, least recently visited first.
	ListListingsDueForRecrawl(ctx context.Context, visitedBefore time.Time, limit int) ([]string, error)
}

// ListingStore persists versioned normalized features and area aggregates.
type ListingStore interface {
	// CreateListingVersion appends a new version; Version and FirstSeenAt are assigned by the store.
	CreateListingVersion(ctx context.Context, listing *models.Listing) error
	GetLatestListing(ctx context.Context, listingID string) (*models.Listing, error)
	GetLatestListings(ctx context.Context, listingIDs []string) ([]models.Listing, error)
	FindListingIDsBySignature(ctx context.Context, signature string) ([]string, error)

	ListStaleAreaSlugs(ctx context.Context, refreshedBefore time.Time, limit int) ([]string, error)
	ListLatestListingsByArea(ctx context.Context, areaSlug string) ([]models.Listing, error)
	GetAreaStat(ctx context.Context, areaSlug string) (*models.AreaStat, error)
	SaveAreaStat(ctx context.Context, stat *models.AreaStat) error
}

// PhotoStore persists photo assets and their perceptual hashes.
type PhotoStore interface {
	// SavePhotoAssets inserts missing assets by (listing, URL); a known hash is never cleared.
	SavePhotoAssets(ctx context.Context, listingID string, assets []models.PhotoAsset) error
	ListPhotoAssets(ctx context.Context, listingID string) ([]models.PhotoAsset, error)
	// ListRecentHashedPhotos returns the newest hashed photos of other listings.
	ListRecentHashedPhotos(ctx context.Context, excludeListingID string, limit int) ([]models.PhotoAsset, error)
}

// GroupStore persists dedup groups, their members and events.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*models.DedupGroup, error)
	GetGroupByListing(ctx context.Context, listingID string) (*models.DedupGroup, error)
	ListGroupsForListings(ctx context.Context, listingIDs []string) ([]models.DedupGroup, error)
	// CreateGroup stores a group with its first member; ErrAlreadyMember if the listing is grouped.
	CreateGroup(ctx context.Context, group *models.DedupGroup, first *models.GroupMember) error
	// AddGroupMember adds a member and touches the group; ErrAlreadyMember if the listing is grouped.
	AddGroupMember(ctx context.Context, member *models.GroupMember) error
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	// MergeGroups moves every member and event of sourceID into targetID and
	// deletes sourceID. Returns the number of members moved.
	MergeGroups(ctx context.Context, targetID, sourceID string, at time.Time) (int, error)
	SetGroupCanonical(ctx context.Context, groupID, listingID, sourceURL string, pinned bool) error
	// SaveGroupSnapshot commits a rebuilt snapshot and clears the stale flag.
	// ErrSnapshotConflict if the member set no longer matches the snapshot.
	SaveGroupSnapshot(ctx context.Context, groupID string, snapshot models.GroupSnapshot) error
	MarkGroupSnapshotStale(ctx context.Context, groupID string) error
	AddGroupEvent(ctx context.Context, event *models.GroupEvent) error
	ListGroupEvents(ctx context.Context, groupID string) ([]models.GroupEvent, error)
}

// ScoreStore persists valuation results, trust snapshots and the condition cache.
type ScoreStore interface {
	// SaveScoreResult replaces the listing's result as a whole.
	SaveScoreResult(ctx context.Context, result *models.ScoreResult) error
	GetScoreResult(ctx context.Context, listingID string) (*models.ScoreResult, error)
	// ListScoresNeedingTrust returns results newer than the listing's trust snapshot.
	ListScoresNeedingTrust(ctx context.Context, limit int) ([]models.ScoreResult, error)
	SaveTrustSnapshot(ctx context.Context, snapshot *models.TrustSnapshot) error
	GetTrustSnapshot(ctx context.Context, listingID string) (*models.TrustSnapshot, error)

	GetConditionCache(ctx context.Context, key string) (*models.ConditionCache, error)
	SaveConditionCache(ctx context.Context, entry *models.ConditionCache) error
}

// MaintenanceStore covers job bookkeeping and retention.
type MaintenanceStore interface {
	GetJobState(ctx context.Context, jobType string) (*models.JobState, error)
	SaveJobState(ctx context.Context, state *models.JobState) error
	ListJobStates(ctx context.Context) ([]models.JobState, error)

	// CountSupersededVersions counts, per listing, versions older than before
	// that are not the latest version.
	CountSupersededVersions(ctx context.Context, before time.Time) (map[string]int, error)
	DeleteSupersededVersions(ctx context.Context, before time.Time) (int64, error)
	CountCrawlVisitsBefore(ctx context.Context, before time.Time) (map[string]int, error)
	DeleteCrawlVisitsBefore(ctx context.Context, before time.Time) (int64, error)
	AddPruneLogs(ctx context.Context, logs []models.PruneLog) error

	GetStats(ctx context.Context) (*Stats, error)
}

// NamedLocker serializes a critical section across every process sharing the
// store. Implementations without other processes need not provide it.
type NamedLocker interface {
	// AcquireLock blocks up to timeout and returns the release function.
	AcquireLock(ctx context.Context, name string, timeout time.Duration) (func(), error)
}

// Store is the full storage contract.
type Store interface {
	RawListingStore
	ListingStore
	PhotoStore
	GroupStore
	ScoreStore
	MaintenanceStore
}

// Stats summarizes table sizes for the admin API
type Stats struct {
	RawPending       int64 `json:"raw_pending"`
	RawFailed        int64 `json:"raw_failed"`
	RawPermanentFail int64 `json:"raw_permanent_fail"`
	Listings         int64 `json:"listings"`
	Groups           int64 `json:"groups"`
	StaleGroups      int64 `json:"stale_groups"`
	Scores           int64 `json:"scores"`
	TrustSnapshots   int64 `json:"trust_snapshots"`
}
