package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
)

// GormDB implements Store on MySQL through gorm
type GormDB struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

var (
	_ Store       = (*GormDB)(nil)
	_ NamedLocker = (*GormDB)(nil)
)

func NewGormDB(host string, port int, user, password, dbname string, log *zap.SugaredLogger) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	return NewGormDBFromDB(db, log), nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB, log *zap.SugaredLogger) *GormDB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &GormDB{db: db, logger: log}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.RawListing{},
		&models.CrawlVisit{},
		&models.Listing{},
		&models.AreaStat{},
		&models.PhotoAsset{},
		&models.DedupGroup{},
		&models.GroupMember{},
		&models.GroupEvent{},
		&models.ScoreResult{},
		&models.TrustSnapshot{},
		&models.ConditionCache{},
		&models.JobState{},
		&models.PruneLog{},
	)
}

// AcquireLock takes a MySQL named lock (GET_LOCK) on a dedicated connection,
// so dedup assignment is serialized between the API server and batch runs.
func (gdb *GormDB) AcquireLock(ctx context.Context, name string, timeout time.Duration) (func(), error) {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection for lock %s: %w", name, err)
	}

	var got sql.NullInt64
	seconds := int(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, seconds).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
	}

	return func() {
		if _, err := conn.ExecContext(context.Background(), "DO RELEASE_LOCK(?)", name); err != nil {
			gdb.logger.Warnw("Database: failed to release lock", "name", name, "error", err)
		}
		conn.Close()
	}, nil
}

// translate maps gorm errors onto the package sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- raw listings -------------------------------------------------------

// UpsertRawListing saves or updates a raw listing (upsert by normalized URL)
func (gdb *GormDB) UpsertRawListing(ctx context.Context, raw *models.RawListing) (bool, error) {
	raw.SourceURL = normalize.NormalizeURL(raw.SourceURL)
	if raw.ID == "" {
		raw.ID = normalize.ListingID(raw.SourceURL)
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now().UTC()
	}

	changed := false
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.RawListing
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", raw.ID).First(&existing)

		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			raw.Status = models.RawStatusPending
			raw.Attempts = 0
			raw.NextRetryAt = nil
			changed = true
			return tx.Create(raw).Error
		} else if result.Error != nil {
			return result.Error
		}

		if existing.ContentHash == raw.ContentHash {
			// Same content: only the fetch time moves
			*raw = existing
			raw.FetchedAt = time.Now().UTC()
			return tx.Model(&models.RawListing{}).Where("id = ?", existing.ID).
				Update("fetched_at", raw.FetchedAt).Error
		}

		// Content changed: keep CreatedAt, reset the processing state
		raw.CreatedAt = existing.CreatedAt
		raw.Status = models.RawStatusPending
		raw.Attempts = 0
		raw.LastError = ""
		raw.NextRetryAt = nil
		changed = true
		return tx.Save(raw).Error
	})
	return changed, err
}

// GetRawListing retrieves a raw listing by ID
func (gdb *GormDB) GetRawListing(ctx context.Context, id string) (*models.RawListing, error) {
	var raw models.RawListing
	if err := gdb.db.WithContext(ctx).Where("id = ?", id).First(&raw).Error; err != nil {
		return nil, translate(err)
	}
	return &raw, nil
}

// ListDueRawListings returns pending records plus failed ones whose retry time passed
func (gdb *GormDB) ListDueRawListings(ctx context.Context, now time.Time, limit int) ([]models.RawListing, error) {
	var raws []models.RawListing
	err := gdb.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)",
			models.RawStatusPending, models.RawStatusFailed, now).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&raws).Error
	return raws, err
}

// SaveRawListingStatus persists the processing state columns only
func (gdb *GormDB) SaveRawListingStatus(ctx context.Context, raw *models.RawListing) error {
	return gdb.db.WithContext(ctx).Model(&models.RawListing{}).
		Where("id = ?", raw.ID).
		Updates(map[string]interface{}{
			"status":        raw.Status,
			"attempts":      raw.Attempts,
			"last_error":    raw.LastError,
			"next_retry_at": raw.NextRetryAt,
		}).Error
}

// AddCrawlVisit appends a visit
func (gdb *GormDB) AddCrawlVisit(ctx context.Context, visit *models.CrawlVisit) error {
	return gdb.db.WithContext(ctx).Create(visit).Error
}

// ListCrawlVisits returns the visits of a listing in chronological order
func (gdb *GormDB) ListCrawlVisits(ctx context.Context, listingID string) ([]models.CrawlVisit, error) {
	var visits []models.CrawlVisit
	err := gdb.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("visited_at ASC, id ASC").
		Find(&visits).Error
	return visits, err
}

// ListListingsDueForRecrawl returns listings whose latest visit is older than the cutoff
func (gdb *GormDB) ListListingsDueForRecrawl(ctx context.Context, visitedBefore time.Time, limit int) ([]string, error) {
	var ids []string
	err := gdb.db.WithContext(ctx).
		Model(&models.CrawlVisit{}).
		Select("listing_id").
		Group("listing_id").
		Having("MAX(visited_at) < ?", visitedBefore).
		Order("MAX(visited_at) ASC").
		Limit(limit).
		Pluck("listing_id", &ids).Error
	return ids, err
}

// --- listings -----------------------------------------------------------

// CreateListingVersion appends the next version of a listing
func (gdb *GormDB) CreateListingVersion(ctx context.Context, listing *models.Listing) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.Listing
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("listing_id = ?", listing.ListingID).
			Order("version DESC").
			First(&latest)

		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			listing.Version = 1
			if listing.FirstSeenAt.IsZero() {
				listing.FirstSeenAt = listing.NormalizedAt
			}
		case result.Error != nil:
			return result.Error
		default:
			listing.Version = latest.Version + 1
			listing.FirstSeenAt = latest.FirstSeenAt
		}

		listing.ID = 0
		return tx.Create(listing).Error
	})
}

// GetLatestListing retrieves the newest version of a listing
func (gdb *GormDB) GetLatestListing(ctx context.Context, listingID string) (*models.Listing, error) {
	var listing models.Listing
	err := gdb.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("version DESC").
		First(&listing).Error
	if err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

func (gdb *GormDB) latestVersionIDs(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Listing{}).Select("MAX(id) AS id").Group("listing_id")
}

// GetLatestListings retrieves the newest version of each given listing
func (gdb *GormDB) GetLatestListings(ctx context.Context, listingIDs []string) ([]models.Listing, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	db := gdb.db.WithContext(ctx)
	var listings []models.Listing
	err := db.
		Where("id IN (?)", gdb.latestVersionIDs(db.Session(&gorm.Session{NewDB: true})).Where("listing_id IN ?", listingIDs)).
		Order("listing_id ASC").
		Find(&listings).Error
	return listings, err
}

// FindListingIDsBySignature returns listings that ever carried the signature
func (gdb *GormDB) FindListingIDsBySignature(ctx context.Context, signature string) ([]string, error) {
	var ids []string
	err := gdb.db.WithContext(ctx).
		Model(&models.Listing{}).
		Distinct("listing_id").
		Where("signature = ?", signature).
		Order("listing_id ASC").
		Pluck("listing_id", &ids).Error
	return ids, err
}

// ListStaleAreaSlugs returns area slugs without stats or with stats older than the cutoff
func (gdb *GormDB) ListStaleAreaSlugs(ctx context.Context, refreshedBefore time.Time, limit int) ([]string, error) {
	var slugs []string
	err := gdb.db.WithContext(ctx).Raw(`
		SELECT DISTINCT l.area_slug
		FROM listings l
		LEFT JOIN area_stats s ON s.area_slug = l.area_slug
		WHERE l.area_slug IS NOT NULL
		  AND (s.area_slug IS NULL OR s.refreshed_at < ?)
		ORDER BY l.area_slug ASC
		LIMIT ?`, refreshedBefore, limit).
		Scan(&slugs).Error
	return slugs, err
}

// ListLatestListingsByArea returns the latest version of every listing in an area
func (gdb *GormDB) ListLatestListingsByArea(ctx context.Context, areaSlug string) ([]models.Listing, error) {
	db := gdb.db.WithContext(ctx)
	var listings []models.Listing
	err := db.
		Where("id IN (?)", gdb.latestVersionIDs(db.Session(&gorm.Session{NewDB: true}))).
		Where("area_slug = ?", areaSlug).
		Order("listing_id ASC").
		Find(&listings).Error
	return listings, err
}

// GetAreaStat retrieves the aggregate for an area
func (gdb *GormDB) GetAreaStat(ctx context.Context, areaSlug string) (*models.AreaStat, error) {
	var stat models.AreaStat
	if err := gdb.db.WithContext(ctx).Where("area_slug = ?", areaSlug).First(&stat).Error; err != nil {
		return nil, translate(err)
	}
	return &stat, nil
}

// SaveAreaStat upserts an area aggregate
func (gdb *GormDB) SaveAreaStat(ctx context.Context, stat *models.AreaStat) error {
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(stat).Error
}

// --- photos -------------------------------------------------------------

// SavePhotoAssets inserts photo assets, filling in hashes that were missing
func (gdb *GormDB) SavePhotoAssets(ctx context.Context, listingID string, assets []models.PhotoAsset) error {
	if len(assets) == 0 {
		return nil
	}
	for i := range assets {
		assets[i].ListingID = listingID
	}
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "listing_id"}, {Name: "url"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"phash":      gorm.Expr("COALESCE(VALUES(phash), phash)"),
				"sort_order": gorm.Expr("VALUES(sort_order)"),
			}),
		}).
		Create(&assets).Error
}

// ListPhotoAssets returns a listing's photos in display order
func (gdb *GormDB) ListPhotoAssets(ctx context.Context, listingID string) ([]models.PhotoAsset, error) {
	var assets []models.PhotoAsset
	err := gdb.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("sort_order ASC, id ASC").
		Find(&assets).Error
	return assets, err
}

// ListRecentHashedPhotos returns the candidate pool for perceptual matching
func (gdb *GormDB) ListRecentHashedPhotos(ctx context.Context, excludeListingID string, limit int) ([]models.PhotoAsset, error) {
	var assets []models.PhotoAsset
	err := gdb.db.WithContext(ctx).
		Where("listing_id <> ? AND phash IS NOT NULL", excludeListingID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

// --- groups -------------------------------------------------------------

// GetGroup retrieves a group by ID
func (gdb *GormDB) GetGroup(ctx context.Context, groupID string) (*models.DedupGroup, error) {
	var group models.DedupGroup
	if err := gdb.db.WithContext(ctx).Where("id = ?", groupID).First(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// GetGroupByListing retrieves the group a listing belongs to
func (gdb *GormDB) GetGroupByListing(ctx context.Context, listingID string) (*models.DedupGroup, error) {
	var group models.DedupGroup
	err := gdb.db.WithContext(ctx).
		Joins("JOIN group_members m ON m.group_id = dedup_groups.id").
		Where("m.listing_id = ?", listingID).
		First(&group).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// ListGroupsForListings returns the distinct groups containing any of the listings
func (gdb *GormDB) ListGroupsForListings(ctx context.Context, listingIDs []string) ([]models.DedupGroup, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	db := gdb.db.WithContext(ctx)
	var groups []models.DedupGroup
	err := db.
		Where("id IN (?)", db.Session(&gorm.Session{NewDB: true}).
			Model(&models.GroupMember{}).Select("group_id").Where("listing_id IN ?", listingIDs)).
		Order("updated_at DESC, id ASC").
		Find(&groups).Error
	return groups, err
}

func isMember(tx *gorm.DB, listingID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.GroupMember{}).Where("listing_id = ?", listingID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateGroup stores a new group with its first member
func (gdb *GormDB) CreateGroup(ctx context.Context, group *models.DedupGroup, first *models.GroupMember) error {
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := isMember(tx, first.ListingID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}

		group.MemberCount = 1
		group.SnapshotStale = true
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		first.GroupID = group.ID
		return tx.Create(first).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyMember
	}
	return err
}

// AddGroupMember adds a member under a row lock on the group
func (gdb *GormDB) AddGroupMember(ctx context.Context, member *models.GroupMember) error {
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.DedupGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", member.GroupID).First(&group).Error; err != nil {
			return translate(err)
		}

		isMem, err := isMember(tx, member.ListingID)
		if err != nil {
			return err
		}
		if isMem {
			return ErrAlreadyMember
		}

		if err := tx.Create(member).Error; err != nil {
			return err
		}
		return tx.Model(&models.DedupGroup{}).Where("id = ?", group.ID).
			Updates(map[string]interface{}{
				"member_count":   gorm.Expr("member_count + 1"),
				"snapshot_stale": true,
				"updated_at":     member.JoinedAt,
			}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyMember
	}
	return err
}

// ListGroupMembers returns members in join order
func (gdb *GormDB) ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := gdb.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at ASC, id ASC").
		Find(&members).Error
	return members, err
}

// MergeGroups folds sourceID into targetID under row locks on both groups
func (gdb *GormDB) MergeGroups(ctx context.Context, targetID, sourceID string, at time.Time) (int, error) {
	if targetID == sourceID {
		return 0, ErrNotFound
	}
	moved := 0
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groups []models.DedupGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", []string{targetID, sourceID}).
			Order("id ASC").Find(&groups).Error; err != nil {
			return err
		}
		if len(groups) != 2 {
			return ErrNotFound
		}

		res := tx.Model(&models.GroupMember{}).Where("group_id = ?", sourceID).Update("group_id", targetID)
		if res.Error != nil {
			return res.Error
		}
		moved = int(res.RowsAffected)

		if err := tx.Model(&models.GroupEvent{}).Where("group_id = ?", sourceID).
			Update("group_id", targetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.DedupGroup{}).Where("id = ?", targetID).
			Updates(map[string]interface{}{
				"member_count":   gorm.Expr("member_count + ?", moved),
				"snapshot_stale": true,
				"updated_at":     at,
			}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sourceID).Delete(&models.DedupGroup{}).Error
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// SetGroupCanonical points the group at one of its members
func (gdb *GormDB) SetGroupCanonical(ctx context.Context, groupID, listingID, sourceURL string, pinned bool) error {
	result := gdb.db.WithContext(ctx).Model(&models.DedupGroup{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"canonical_listing_id": listingID,
			"canonical_url":        sourceURL,
			"canonical_pinned":     pinned,
			"snapshot_stale":       true,
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveGroupSnapshot commits a snapshot if the member set is unchanged
func (gdb *GormDB) SaveGroupSnapshot(ctx context.Context, groupID string, snapshot models.GroupSnapshot) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.DedupGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", groupID).First(&group).Error; err != nil {
			return translate(err)
		}
		if group.MemberCount != len(snapshot.MemberIDs) || group.CanonicalListingID != snapshot.CanonicalListingID {
			gdb.logger.Warnw("GormDB: snapshot does not match group",
				"group_id", groupID, "members", group.MemberCount, "snapshot_members", len(snapshot.MemberIDs))
			return ErrSnapshotConflict
		}

		builtAt := snapshot.BuiltAt
		return tx.Model(&models.DedupGroup{}).Where("id = ?", groupID).
			Updates(map[string]interface{}{
				"snapshot":          datatypes.NewJSONType(snapshot),
				"snapshot_stale":    false,
				"snapshot_built_at": &builtAt,
			}).Error
	})
}

// MarkGroupSnapshotStale flags the group's snapshot as out of date
func (gdb *GormDB) MarkGroupSnapshotStale(ctx context.Context, groupID string) error {
	return gdb.db.WithContext(ctx).Model(&models.DedupGroup{}).
		Where("id = ?", groupID).
		Update("snapshot_stale", true).Error
}

// AddGroupEvent appends an event
func (gdb *GormDB) AddGroupEvent(ctx context.Context, event *models.GroupEvent) error {
	return gdb.db.WithContext(ctx).Create(event).Error
}

// ListGroupEvents returns a group's events in chronological order
func (gdb *GormDB) ListGroupEvents(ctx context.Context, groupID string) ([]models.GroupEvent, error) {
	var events []models.GroupEvent
	err := gdb.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// --- scores -------------------------------------------------------------

// SaveScoreResult replaces the whole row
func (gdb *GormDB) SaveScoreResult(ctx context.Context, result *models.ScoreResult) error {
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(result).Error
}

// GetScoreResult retrieves a listing's valuation
func (gdb *GormDB) GetScoreResult(ctx context.Context, listingID string) (*models.ScoreResult, error) {
	var result models.ScoreResult
	if err := gdb.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&result).Error; err != nil {
		return nil, translate(err)
	}
	return &result, nil
}

// ListScoresNeedingTrust returns results with no trust snapshot or a stale one
func (gdb *GormDB) ListScoresNeedingTrust(ctx context.Context, limit int) ([]models.ScoreResult, error) {
	var results []models.ScoreResult
	err := gdb.db.WithContext(ctx).
		Joins("LEFT JOIN trust_snapshots t ON t.listing_id = score_results.listing_id").
		Where("t.listing_id IS NULL OR t.score_computed_at < score_results.computed_at").
		Order("score_results.computed_at ASC, score_results.listing_id ASC").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// SaveTrustSnapshot replaces a listing's trust snapshot
func (gdb *GormDB) SaveTrustSnapshot(ctx context.Context, snapshot *models.TrustSnapshot) error {
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(snapshot).Error
}

// GetTrustSnapshot retrieves a listing's trust snapshot
func (gdb *GormDB) GetTrustSnapshot(ctx context.Context, listingID string) (*models.TrustSnapshot, error) {
	var snapshot models.TrustSnapshot
	if err := gdb.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&snapshot).Error; err != nil {
		return nil, translate(err)
	}
	return &snapshot, nil
}

// GetConditionCache looks up a cached condition score
func (gdb *GormDB) GetConditionCache(ctx context.Context, key string) (*models.ConditionCache, error) {
	var entry models.ConditionCache
	if err := gdb.db.WithContext(ctx).Where("cache_key = ?", key).First(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// SaveConditionCache stores a condition score
func (gdb *GormDB) SaveConditionCache(ctx context.Context, entry *models.ConditionCache) error {
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entry).Error
}

// --- maintenance --------------------------------------------------------

// GetJobState retrieves a job's run history
func (gdb *GormDB) GetJobState(ctx context.Context, jobType string) (*models.JobState, error) {
	var state models.JobState
	if err := gdb.db.WithContext(ctx).Where("job_type = ?", jobType).First(&state).Error; err != nil {
		return nil, translate(err)
	}
	return &state, nil
}

// SaveJobState upserts a job's run history
func (gdb *GormDB) SaveJobState(ctx context.Context, state *models.JobState) error {
	return gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(state).Error
}

// ListJobStates returns all job states
func (gdb *GormDB) ListJobStates(ctx context.Context) ([]models.JobState, error) {
	var states []models.JobState
	err := gdb.db.WithContext(ctx).Order("job_type ASC").Find(&states).Error
	return states, err
}

func (gdb *GormDB) supersededScope(db *gorm.DB, before time.Time) *gorm.DB {
	// Derived table so MySQL accepts the self-reference in DELETE
	latest := db.Session(&gorm.Session{NewDB: true}).
		Table("(?) AS latest", gdb.latestVersionIDs(db.Session(&gorm.Session{NewDB: true}))).
		Select("latest.id")
	return db.Where("normalized_at < ? AND id NOT IN (?)", before, latest)
}

// CountSupersededVersions counts prunable versions per listing
func (gdb *GormDB) CountSupersededVersions(ctx context.Context, before time.Time) (map[string]int, error) {
	var rows []struct {
		ListingID string
		Count     int
	}
	db := gdb.db.WithContext(ctx)
	err := gdb.supersededScope(db.Model(&models.Listing{}), before).
		Select("listing_id, COUNT(*) AS count").
		Group("listing_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.ListingID] = r.Count
	}
	return counts, nil
}

// DeleteSupersededVersions removes prunable versions
func (gdb *GormDB) DeleteSupersededVersions(ctx context.Context, before time.Time) (int64, error) {
	db := gdb.db.WithContext(ctx)
	result := gdb.supersededScope(db, before).Delete(&models.Listing{})
	return result.RowsAffected, result.Error
}

// CountCrawlVisitsBefore counts expired visits per listing
func (gdb *GormDB) CountCrawlVisitsBefore(ctx context.Context, before time.Time) (map[string]int, error) {
	var rows []struct {
		ListingID string
		Count     int
	}
	err := gdb.db.WithContext(ctx).Model(&models.CrawlVisit{}).
		Select("listing_id, COUNT(*) AS count").
		Where("visited_at < ?", before).
		Group("listing_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.ListingID] = r.Count
	}
	return counts, nil
}

// DeleteCrawlVisitsBefore removes expired visits
func (gdb *GormDB) DeleteCrawlVisitsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := gdb.db.WithContext(ctx).Where("visited_at < ?", before).Delete(&models.CrawlVisit{})
	return result.RowsAffected, result.Error
}

// AddPruneLogs records pruned rows
func (gdb *GormDB) AddPruneLogs(ctx context.Context, logs []models.PruneLog) error {
	if len(logs) == 0 {
		return nil
	}
	return gdb.db.WithContext(ctx).CreateInBatches(&logs, 100).Error
}

// GetStats returns table counts for the admin API
func (gdb *GormDB) GetStats(ctx context.Context) (*Stats, error) {
	db := gdb.db.WithContext(ctx)
	var stats Stats

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.RawPending, db.Model(&models.RawListing{}).Where("status = ?", models.RawStatusPending)},
		{&stats.RawFailed, db.Model(&models.RawListing{}).Where("status = ?", models.RawStatusFailed)},
		{&stats.RawPermanentFail, db.Model(&models.RawListing{}).Where("status = ?", models.RawStatusPermanentFail)},
		{&stats.Listings, db.Model(&models.Listing{}).Distinct("listing_id")},
		{&stats.Groups, db.Model(&models.DedupGroup{})},
		{&stats.StaleGroups, db.Model(&models.DedupGroup{}).Where("snapshot_stale = ?", true)},
		{&stats.Scores, db.Model(&models.ScoreResult{})},
		{&stats.TrustSnapshots, db.Model(&models.TrustSnapshot{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return &stats, nil
}
