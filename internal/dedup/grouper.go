package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
	"real-estate-valuation/internal/similarity"
	"real-estate-valuation/internal/snapshot"
)

var (
	// ErrNotMember is returned when a canonical URL does not belong to the group
	ErrNotMember = errors.New("source URL is not a member of the group")
	// ErrGroupNotFound is returned for unknown group IDs
	ErrGroupNotFound = errors.New("group not found")
)

const (
	assignLockName    = "dedup_assign"
	assignLockTimeout = 30 * time.Second
)

// Store is the storage the grouper needs
type Store interface {
	database.ListingStore
	database.GroupStore
}

// PhotoMatcher finds near-duplicate photos of a listing among other listings
type PhotoMatcher interface {
	PhotoMatches(ctx context.Context, listingID string) ([]similarity.PhotoMatch, error)
}

// Grouper assigns listings to dedup groups and keeps group snapshots current.
//
// Assignment decisions are serialized so two listings that match each other
// cannot both open a new group: in process by a mutex, across processes by
// the store's named lock when it has one. Membership changes and snapshot
// rebuilds are serialized per group; different groups rebuild in parallel.
type Grouper struct {
	store   Store
	matcher PhotoMatcher
	logger  *zap.SugaredLogger

	assignMu   sync.Mutex
	groupLocks *keyedMutex
	onMerge    func(targetID, sourceID string)

	now   func() time.Time
	newID func() string
}

// NewGrouper creates a grouper. matcher may be nil, in which case only the
// signature channel is used.
func NewGrouper(store Store, matcher PhotoMatcher, logger *zap.SugaredLogger) *Grouper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Grouper{
		store:      store,
		matcher:    matcher,
		logger:     logger,
		groupLocks: newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// AttachToGroup puts the listing into a matching group or a new singleton
// group and returns the group ID. Calling it again for an attached listing
// keeps its membership and only refreshes the snapshot when it is stale or
// older than the listing's latest version.
func (g *Grouper) AttachToGroup(ctx context.Context, listingID string) (string, error) {
	listing, err := g.store.GetLatestListing(ctx, listingID)
	if err != nil {
		return "", fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}

	groupID, joined, err := g.assignExclusive(ctx, listing)
	if err != nil {
		return "", err
	}

	if !joined {
		group, err := g.store.GetGroup(ctx, groupID)
		if err != nil {
			return "", fmt.Errorf("failed to load group %s: %w", groupID, err)
		}
		if !needsRebuild(group, listing) {
			return groupID, nil
		}
	}

	if err := g.Rebuild(ctx, groupID); err != nil {
		// Membership stands; the group keeps a stale snapshot until the next successful rebuild.
		g.logger.Warnw("Dedup: snapshot rebuild failed", "group_id", groupID, "listing_id", listingID, "error", err)
	}
	return groupID, nil
}

func needsRebuild(group *models.DedupGroup, listing *models.Listing) bool {
	if group.SnapshotStale || group.SnapshotBuiltAt == nil {
		return true
	}
	return listing.NormalizedAt.After(*group.SnapshotBuiltAt)
}

// assignExclusive runs assign under the process-wide assignment mutex and,
// when the store is shared between processes, its named lock.
func (g *Grouper) assignExclusive(ctx context.Context, listing *models.Listing) (string, bool, error) {
	g.assignMu.Lock()
	defer g.assignMu.Unlock()

	if locker, ok := g.store.(database.NamedLocker); ok {
		release, err := locker.AcquireLock(ctx, assignLockName, assignLockTimeout)
		if err != nil {
			return "", false, fmt.Errorf("failed to lock dedup assignment: %w", err)
		}
		defer release()
	}
	return g.assign(ctx, listing)
}

// assign returns the listing's group and whether membership changed. Caller holds assignMu.
func (g *Grouper) assign(ctx context.Context, listing *models.Listing) (string, bool, error) {
	existing, err := g.store.GetGroupByListing(ctx, listing.ListingID)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return "", false, fmt.Errorf("failed to look up group: %w", err)
	}

	target, others, channel, err := g.findGroup(ctx, listing)
	if err != nil {
		return "", false, err
	}

	now := g.now()
	member := &models.GroupMember{
		ListingID: listing.ListingID,
		SourceURL: listing.SourceURL,
		JoinedAt:  now,
	}

	if target == nil {
		group := &models.DedupGroup{
			ID:                 g.newID(),
			CanonicalURL:       listing.SourceURL,
			CanonicalListingID: listing.ListingID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := g.store.CreateGroup(ctx, group, member); err != nil {
			return "", false, fmt.Errorf("failed to create group: %w", err)
		}
		g.recordEvent(ctx, group.ID, listing.ListingID, models.GroupEventCreated, "")
		g.logger.Infow("Dedup: created group", "group_id", group.ID, "listing_id", listing.ListingID)
		return group.ID, true, nil
	}

	unlock := g.groupLocks.Lock(target.ID)
	defer unlock()

	member.GroupID = target.ID
	if err := g.store.AddGroupMember(ctx, member); err != nil {
		return "", false, fmt.Errorf("failed to add member to group %s: %w", target.ID, err)
	}
	g.recordEvent(ctx, target.ID, listing.ListingID, models.GroupEventMemberAdded, channel)
	g.logger.Infow("Dedup: attached listing", "group_id", target.ID, "listing_id", listing.ListingID, "matched_by", channel)

	// The listing bridges groups that describe the same unit
	for _, other := range others {
		if err := g.merge(ctx, target.ID, other.ID, listing.ListingID); err != nil {
			return "", false, err
		}
	}
	return target.ID, true, nil
}

// OnMerge registers a callback run after a group is folded into another,
// e.g. to drop the absorbed group from the search index. Call before use.
func (g *Grouper) OnMerge(fn func(targetID, sourceID string)) {
	g.onMerge = fn
}

// merge folds source into target. Caller holds assignMu and target's lock.
func (g *Grouper) merge(ctx context.Context, targetID, sourceID, viaListingID string) error {
	unlock := g.groupLocks.Lock(sourceID)
	defer unlock()

	moved, err := g.store.MergeGroups(ctx, targetID, sourceID, g.now())
	if err != nil {
		return fmt.Errorf("failed to merge group %s into %s: %w", sourceID, targetID, err)
	}
	g.recordEvent(ctx, targetID, viaListingID, models.GroupEventMerged, sourceID)
	if g.onMerge != nil {
		g.onMerge(targetID, sourceID)
	}
	g.logger.Infow("Dedup: merged groups", "group_id", targetID, "merged_group_id", sourceID, "moved", moved, "via_listing_id", viaListingID)
	return nil
}

// findGroup collects the groups matched by the signature channel and the
// photo channel. Signature matches rank first; within a channel the most
// recently updated group wins. The first group is the target, the rest are
// to be merged into it.
func (g *Grouper) findGroup(ctx context.Context, listing *models.Listing) (*models.DedupGroup, []models.DedupGroup, string, error) {
	signature := listing.Signature
	if signature == "" {
		signature = similarity.Signature(listing.SourceURL, listing.PriceEur, listing.AreaM2)
	}

	ids, err := g.store.FindListingIDsBySignature(ctx, signature)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to search signatures: %w", err)
	}
	candidates, err := g.groupsFor(ctx, without(ids, listing.ListingID))
	if err != nil {
		return nil, nil, "", err
	}
	channel := "signature"
	if len(candidates) == 0 {
		channel = "photo"
	}

	if g.matcher != nil {
		matches, err := g.matcher.PhotoMatches(ctx, listing.ListingID)
		if err != nil {
			// Photo matching is best effort; the listing still gets a group.
			g.logger.Warnw("Dedup: photo matching failed", "listing_id", listing.ListingID, "error", err)
		} else {
			photoGroups, err := g.groupsFor(ctx, similarity.MatchedListingIDs(matches))
			if err != nil {
				return nil, nil, "", err
			}
			candidates = appendNewGroups(candidates, photoGroups)
		}
	}

	if len(candidates) == 0 {
		return nil, nil, "", nil
	}
	return &candidates[0], candidates[1:], channel, nil
}

func (g *Grouper) groupsFor(ctx context.Context, listingIDs []string) ([]models.DedupGroup, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	groups, err := g.store.ListGroupsForListings(ctx, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate groups: %w", err)
	}
	return groups, nil
}

func appendNewGroups(groups, more []models.DedupGroup) []models.DedupGroup {
	seen := make(map[string]bool, len(groups))
	for _, grp := range groups {
		seen[grp.ID] = true
	}
	for _, grp := range more {
		if !seen[grp.ID] {
			seen[grp.ID] = true
			groups = append(groups, grp)
		}
	}
	return groups
}

// SetCanonical pins the member with sourceURL as the group's representative
// and rebuilds the snapshot. Nothing is changed when the URL is not a member.
func (g *Grouper) SetCanonical(ctx context.Context, groupID, sourceURL string) error {
	unlock := g.groupLocks.Lock(groupID)
	defer unlock()

	group, err := g.store.GetGroup(ctx, groupID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}

	members, err := g.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	want := normalize.NormalizeURL(sourceURL)
	var chosen *models.GroupMember
	for i := range members {
		if strings.EqualFold(normalize.NormalizeURL(members[i].SourceURL), want) {
			chosen = &members[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: %s", ErrNotMember, sourceURL)
	}

	if err := g.store.SetGroupCanonical(ctx, groupID, chosen.ListingID, chosen.SourceURL, true); err != nil {
		return fmt.Errorf("failed to set canonical: %w", err)
	}
	if chosen.ListingID != group.CanonicalListingID {
		g.recordEvent(ctx, groupID, chosen.ListingID, models.GroupEventCanonicalChanged, group.CanonicalListingID)
		g.logger.Infow("Dedup: canonical changed", "group_id", groupID, "from", group.CanonicalListingID, "to", chosen.ListingID)
	}

	if err := g.rebuildLocked(ctx, groupID); err != nil {
		g.logger.Warnw("Dedup: snapshot rebuild failed", "group_id", groupID, "error", err)
	}
	return nil
}

// Rebuild recomputes the group snapshot from its current members and commits it
func (g *Grouper) Rebuild(ctx context.Context, groupID string) error {
	unlock := g.groupLocks.Lock(groupID)
	defer unlock()
	return g.rebuildLocked(ctx, groupID)
}

func (g *Grouper) rebuildLocked(ctx context.Context, groupID string) error {
	err := g.computeAndCommit(ctx, groupID)
	if err == nil {
		return nil
	}

	if markErr := g.store.MarkGroupSnapshotStale(ctx, groupID); markErr != nil {
		g.logger.Errorw("Dedup: failed to mark snapshot stale", "group_id", groupID, "error", markErr)
	}
	g.recordEvent(ctx, groupID, "", models.GroupEventSnapshotFailed, err.Error())
	return err
}

func (g *Grouper) computeAndCommit(ctx context.Context, groupID string) error {
	group, err := g.store.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	members, err := g.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ListingID
	}
	listings, err := g.store.GetLatestListings(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load member listings: %w", err)
	}

	next := snapshot.Build(group.CanonicalListingID, ids, listings, g.now())
	if err := g.store.SaveGroupSnapshot(ctx, groupID, next); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if changes := snapshot.DetectChanges(group.Snapshot.Data(), next); len(changes) > 0 {
		g.logger.Debugw("Dedup: snapshot rebuilt", "group_id", groupID, "changes", snapshot.Summary(changes))
	}
	return nil
}

func (g *Grouper) recordEvent(ctx context.Context, groupID, listingID, eventType, detail string) {
	event := &models.GroupEvent{
		GroupID:   groupID,
		ListingID: listingID,
		EventType: eventType,
		Detail:    detail,
		CreatedAt: g.now(),
	}
	if err := g.store.AddGroupEvent(ctx, event); err != nil {
		g.logger.Warnw("Dedup: failed to record event", "group_id", groupID, "event", eventType, "error", err)
	}
}

func without(ids []string, exclude string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
