package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
)

// MemoryStore implements Store in process memory. It backs tests and the
// "memory" database type for local runs.
type MemoryStore struct {
	mu sync.RWMutex

	raws       map[string]models.RawListing
	visits     []models.CrawlVisit
	listings   map[string][]models.Listing // listing ID -> versions, ascending
	areaStats  map[string]models.AreaStat
	photos     map[string][]models.PhotoAsset
	groups     map[string]models.DedupGroup
	members    map[string]models.GroupMember // listing ID -> membership
	events     []models.GroupEvent
	scores     map[string]models.ScoreResult
	trust      map[string]models.TrustSnapshot
	conditions map[string]models.ConditionCache
	jobStates  map[string]models.JobState
	pruneLogs  []models.PruneLog

	nextID int64
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		raws:       make(map[string]models.RawListing),
		listings:   make(map[string][]models.Listing),
		areaStats:  make(map[string]models.AreaStat),
		photos:     make(map[string][]models.PhotoAsset),
		groups:     make(map[string]models.DedupGroup),
		members:    make(map[string]models.GroupMember),
		scores:     make(map[string]models.ScoreResult),
		trust:      make(map[string]models.TrustSnapshot),
		conditions: make(map[string]models.ConditionCache),
		jobStates:  make(map[string]models.JobState),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for CreatedAt/UpdatedAt columns
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// --- raw listings -------------------------------------------------------

func (m *MemoryStore) UpsertRawListing(ctx context.Context, raw *models.RawListing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw.SourceURL = normalize.NormalizeURL(raw.SourceURL)
	if raw.ID == "" {
		raw.ID = normalize.ListingID(raw.SourceURL)
	}
	now := m.now()
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = now
	}

	existing, ok := m.raws[raw.ID]
	if !ok {
		raw.Status = models.RawStatusPending
		raw.Attempts = 0
		raw.NextRetryAt = nil
		raw.CreatedAt = now
		raw.UpdatedAt = now
		m.raws[raw.ID] = *raw
		return true, nil
	}

	if existing.ContentHash == raw.ContentHash {
		existing.FetchedAt = now
		m.raws[raw.ID] = existing
		*raw = existing
		return false, nil
	}

	raw.CreatedAt = existing.CreatedAt
	raw.UpdatedAt = now
	raw.Status = models.RawStatusPending
	raw.Attempts = 0
	raw.LastError = ""
	raw.NextRetryAt = nil
	m.raws[raw.ID] = *raw
	return true, nil
}

func (m *MemoryStore) GetRawListing(ctx context.Context, id string) (*models.RawListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.raws[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &raw, nil
}

func (m *MemoryStore) ListDueRawListings(ctx context.Context, now time.Time, limit int) ([]models.RawListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []models.RawListing
	for _, raw := range m.raws {
		switch {
		case raw.Status == models.RawStatusPending:
			due = append(due, raw)
		case raw.Status == models.RawStatusFailed && raw.NextRetryAt != nil && !raw.NextRetryAt.After(now):
			due = append(due, raw)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].UpdatedAt.Equal(due[j].UpdatedAt) {
			return due[i].UpdatedAt.Before(due[j].UpdatedAt)
		}
		return due[i].ID < due[j].ID
	})
	return truncate(due, limit), nil
}

func (m *MemoryStore) SaveRawListingStatus(ctx context.Context, raw *models.RawListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.raws[raw.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = raw.Status
	existing.Attempts = raw.Attempts
	existing.LastError = raw.LastError
	existing.NextRetryAt = raw.NextRetryAt
	existing.UpdatedAt = m.now()
	m.raws[raw.ID] = existing
	return nil
}

func (m *MemoryStore) AddCrawlVisit(ctx context.Context, visit *models.CrawlVisit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	visit.ID = m.id()
	m.visits = append(m.visits, *visit)
	return nil
}

func (m *MemoryStore) ListCrawlVisits(ctx context.Context, listingID string) ([]models.CrawlVisit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var visits []models.CrawlVisit
	for _, v := range m.visits {
		if v.ListingID == listingID {
			visits = append(visits, v)
		}
	}
	sort.SliceStable(visits, func(i, j int) bool {
		return visits[i].VisitedAt.Before(visits[j].VisitedAt)
	})
	return visits, nil
}

func (m *MemoryStore) ListListingsDueForRecrawl(ctx context.Context, visitedBefore time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := make(map[string]time.Time)
	for _, v := range m.visits {
		if t, ok := last[v.ListingID]; !ok || v.VisitedAt.After(t) {
			last[v.ListingID] = v.VisitedAt
		}
	}
	var ids []string
	for id, t := range last {
		if t.Before(visitedBefore) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if !last[ids[i]].Equal(last[ids[j]]) {
			return last[ids[i]].Before(last[ids[j]])
		}
		return ids[i] < ids[j]
	})
	return truncate(ids, limit), nil
}

// --- listings -----------------------------------------------------------

func (m *MemoryStore) CreateListingVersion(ctx context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.listings[listing.ListingID]
	if len(versions) == 0 {
		listing.Version = 1
		if listing.FirstSeenAt.IsZero() {
			listing.FirstSeenAt = listing.NormalizedAt
		}
	} else {
		latest := versions[len(versions)-1]
		listing.Version = latest.Version + 1
		listing.FirstSeenAt = latest.FirstSeenAt
	}
	listing.ID = m.id()
	listing.CreatedAt = m.now()
	m.listings[listing.ListingID] = append(versions, cloneListing(*listing))
	return nil
}

func (m *MemoryStore) GetLatestListing(ctx context.Context, listingID string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.listings[listingID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	l := cloneListing(versions[len(versions)-1])
	return &l, nil
}

func (m *MemoryStore) GetLatestListings(ctx context.Context, listingIDs []string) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Listing
	for _, id := range dedupeStrings(listingIDs) {
		if versions := m.listings[id]; len(versions) > 0 {
			out = append(out, cloneListing(versions[len(versions)-1]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, nil
}

func (m *MemoryStore) FindListingIDsBySignature(ctx context.Context, signature string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, versions := range m.listings {
		for _, v := range versions {
			if v.Signature == signature {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) ListStaleAreaSlugs(ctx context.Context, refreshedBefore time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var slugs []string
	for _, versions := range m.listings {
		for _, v := range versions {
			if v.AreaSlug == nil || seen[*v.AreaSlug] {
				continue
			}
			seen[*v.AreaSlug] = true
			stat, ok := m.areaStats[*v.AreaSlug]
			if !ok || stat.RefreshedAt.Before(refreshedBefore) {
				slugs = append(slugs, *v.AreaSlug)
			}
		}
	}
	sort.Strings(slugs)
	return truncate(slugs, limit), nil
}

func (m *MemoryStore) ListLatestListingsByArea(ctx context.Context, areaSlug string) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Listing
	for _, versions := range m.listings {
		latest := versions[len(versions)-1]
		if latest.AreaSlug != nil && *latest.AreaSlug == areaSlug {
			out = append(out, cloneListing(latest))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, nil
}

func (m *MemoryStore) GetAreaStat(ctx context.Context, areaSlug string) (*models.AreaStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stat, ok := m.areaStats[areaSlug]
	if !ok {
		return nil, ErrNotFound
	}
	return &stat, nil
}

func (m *MemoryStore) SaveAreaStat(ctx context.Context, stat *models.AreaStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areaStats[stat.AreaSlug] = *stat
	return nil
}

// --- photos -------------------------------------------------------------

func (m *MemoryStore) SavePhotoAssets(ctx context.Context, listingID string, assets []models.PhotoAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.photos[listingID]
	for _, a := range assets {
		a.ListingID = listingID
		found := false
		for i := range existing {
			if existing[i].URL != a.URL {
				continue
			}
			found = true
			if a.Phash != nil {
				existing[i].Phash = a.Phash
			}
			existing[i].SortOrder = a.SortOrder
		}
		if !found {
			a.ID = m.id()
			if a.CreatedAt.IsZero() {
				a.CreatedAt = m.now()
			}
			existing = append(existing, a)
		}
	}
	m.photos[listingID] = existing
	return nil
}

func (m *MemoryStore) ListPhotoAssets(ctx context.Context, listingID string) ([]models.PhotoAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assets := append([]models.PhotoAsset(nil), m.photos[listingID]...)
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].SortOrder < assets[j].SortOrder })
	return assets, nil
}

func (m *MemoryStore) ListRecentHashedPhotos(ctx context.Context, excludeListingID string, limit int) ([]models.PhotoAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pool []models.PhotoAsset
	for listingID, assets := range m.photos {
		if listingID == excludeListingID {
			continue
		}
		for _, a := range assets {
			if a.Phash != nil {
				pool = append(pool, a)
			}
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].CreatedAt.Equal(pool[j].CreatedAt) {
			return pool[i].CreatedAt.After(pool[j].CreatedAt)
		}
		return pool[i].ID > pool[j].ID
	})
	return truncate(pool, limit), nil
}

// --- groups -------------------------------------------------------------

func (m *MemoryStore) GetGroup(ctx context.Context, groupID string) (*models.DedupGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group, ok := m.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return &group, nil
}

func (m *MemoryStore) GetGroupByListing(ctx context.Context, listingID string) (*models.DedupGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[listingID]
	if !ok {
		return nil, ErrNotFound
	}
	group, ok := m.groups[member.GroupID]
	if !ok {
		return nil, ErrNotFound
	}
	return &group, nil
}

func (m *MemoryStore) ListGroupsForListings(ctx context.Context, listingIDs []string) ([]models.DedupGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var groups []models.DedupGroup
	for _, id := range listingIDs {
		member, ok := m.members[id]
		if !ok || seen[member.GroupID] {
			continue
		}
		seen[member.GroupID] = true
		groups = append(groups, m.groups[member.GroupID])
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].UpdatedAt.Equal(groups[j].UpdatedAt) {
			return groups[i].UpdatedAt.After(groups[j].UpdatedAt)
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (m *MemoryStore) CreateGroup(ctx context.Context, group *models.DedupGroup, first *models.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[first.ListingID]; ok {
		return ErrAlreadyMember
	}
	group.MemberCount = 1
	group.SnapshotStale = true
	m.groups[group.ID] = *group

	first.GroupID = group.ID
	first.ID = m.id()
	m.members[first.ListingID] = *first
	return nil
}

func (m *MemoryStore) AddGroupMember(ctx context.Context, member *models.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[member.GroupID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.members[member.ListingID]; ok {
		return ErrAlreadyMember
	}
	member.ID = m.id()
	m.members[member.ListingID] = *member

	group.MemberCount++
	group.SnapshotStale = true
	group.UpdatedAt = member.JoinedAt
	m.groups[group.ID] = group
	return nil
}

func (m *MemoryStore) ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var members []models.GroupMember
	for _, member := range m.members {
		if member.GroupID == groupID {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (m *MemoryStore) MergeGroups(ctx context.Context, targetID, sourceID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.groups[targetID]
	if !ok {
		return 0, ErrNotFound
	}
	if _, ok := m.groups[sourceID]; !ok || sourceID == targetID {
		return 0, ErrNotFound
	}

	moved := 0
	for id, member := range m.members {
		if member.GroupID == sourceID {
			member.GroupID = targetID
			m.members[id] = member
			moved++
		}
	}
	for i := range m.events {
		if m.events[i].GroupID == sourceID {
			m.events[i].GroupID = targetID
		}
	}

	target.MemberCount += moved
	target.SnapshotStale = true
	target.UpdatedAt = at
	m.groups[targetID] = target
	delete(m.groups, sourceID)
	return moved, nil
}

func (m *MemoryStore) SetGroupCanonical(ctx context.Context, groupID, listingID, sourceURL string, pinned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	group.CanonicalListingID = listingID
	group.CanonicalURL = sourceURL
	group.CanonicalPinned = pinned
	group.SnapshotStale = true
	group.UpdatedAt = m.now()
	m.groups[groupID] = group
	return nil
}

func (m *MemoryStore) SaveGroupSnapshot(ctx context.Context, groupID string, snapshot models.GroupSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if group.MemberCount != len(snapshot.MemberIDs) || group.CanonicalListingID != snapshot.CanonicalListingID {
		return ErrSnapshotConflict
	}
	builtAt := snapshot.BuiltAt
	group.Snapshot = datatypes.NewJSONType(snapshot)
	group.SnapshotStale = false
	group.SnapshotBuiltAt = &builtAt
	m.groups[groupID] = group
	return nil
}

func (m *MemoryStore) MarkGroupSnapshotStale(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	group.SnapshotStale = true
	m.groups[groupID] = group
	return nil
}

func (m *MemoryStore) AddGroupEvent(ctx context.Context, event *models.GroupEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.id()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryStore) ListGroupEvents(ctx context.Context, groupID string) ([]models.GroupEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []models.GroupEvent
	for _, e := range m.events {
		if e.GroupID == groupID {
			events = append(events, e)
		}
	}
	return events, nil
}

// --- scores -------------------------------------------------------------

func (m *MemoryStore) SaveScoreResult(ctx context.Context, result *models.ScoreResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[result.ListingID] = *result
	return nil
}

func (m *MemoryStore) GetScoreResult(ctx context.Context, listingID string) (*models.ScoreResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.scores[listingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &result, nil
}

func (m *MemoryStore) ListScoresNeedingTrust(ctx context.Context, limit int) ([]models.ScoreResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ScoreResult
	for id, result := range m.scores {
		t, ok := m.trust[id]
		if !ok || t.ScoreComputedAt.Before(result.ComputedAt) {
			out = append(out, result)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.Before(out[j].ComputedAt)
		}
		return out[i].ListingID < out[j].ListingID
	})
	return truncate(out, limit), nil
}

func (m *MemoryStore) SaveTrustSnapshot(ctx context.Context, snapshot *models.TrustSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trust[snapshot.ListingID] = *snapshot
	return nil
}

func (m *MemoryStore) GetTrustSnapshot(ctx context.Context, listingID string) (*models.TrustSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.trust[listingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &snapshot, nil
}

func (m *MemoryStore) GetConditionCache(ctx context.Context, key string) (*models.ConditionCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.conditions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (m *MemoryStore) SaveConditionCache(ctx context.Context, entry *models.ConditionCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.conditions[entry.CacheKey] = *entry
	return nil
}

// --- maintenance --------------------------------------------------------

func (m *MemoryStore) GetJobState(ctx context.Context, jobType string) (*models.JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.jobStates[jobType]
	if !ok {
		return nil, ErrNotFound
	}
	return &state, nil
}

func (m *MemoryStore) SaveJobState(ctx context.Context, state *models.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobStates[state.JobType] = *state
	return nil
}

func (m *MemoryStore) ListJobStates(ctx context.Context) ([]models.JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]models.JobState, 0, len(m.jobStates))
	for _, s := range m.jobStates {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].JobType < states[j].JobType })
	return states, nil
}

func (m *MemoryStore) CountSupersededVersions(ctx context.Context, before time.Time) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for id, versions := range m.listings {
		for _, v := range versions[:len(versions)-1] {
			if v.NormalizedAt.Before(before) {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (m *MemoryStore) DeleteSupersededVersions(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, versions := range m.listings {
		latest := versions[len(versions)-1]
		kept := make([]models.Listing, 0, len(versions))
		for _, v := range versions[:len(versions)-1] {
			if v.NormalizedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
		m.listings[id] = append(kept, latest)
	}
	return removed, nil
}

func (m *MemoryStore) CountCrawlVisitsBefore(ctx context.Context, before time.Time) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, v := range m.visits {
		if v.VisitedAt.Before(before) {
			counts[v.ListingID]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) DeleteCrawlVisitsBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.visits[:0]
	var removed int64
	for _, v := range m.visits {
		if v.VisitedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	m.visits = kept
	return removed, nil
}

func (m *MemoryStore) AddPruneLogs(ctx context.Context, logs []models.PruneLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		l.ID = uint(m.id())
		if l.PrunedAt.IsZero() {
			l.PrunedAt = m.now()
		}
		m.pruneLogs = append(m.pruneLogs, l)
	}
	return nil
}

// PruneLogs returns the recorded prune logs
func (m *MemoryStore) PruneLogs() []models.PruneLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PruneLog(nil), m.pruneLogs...)
}

func (m *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats Stats
	for _, raw := range m.raws {
		switch raw.Status {
		case models.RawStatusPending:
			stats.RawPending++
		case models.RawStatusFailed:
			stats.RawFailed++
		case models.RawStatusPermanentFail:
			stats.RawPermanentFail++
		}
	}
	stats.Listings = int64(len(m.listings))
	stats.Groups = int64(len(m.groups))
	for _, g := range m.groups {
		if g.SnapshotStale {
			stats.StaleGroups++
		}
	}
	stats.Scores = int64(len(m.scores))
	stats.TrustSnapshots = int64(len(m.trust))
	return &stats, nil
}

func cloneListing(l models.Listing) models.Listing {
	l.Photos = append([]string(nil), l.Photos...)
	return l
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
