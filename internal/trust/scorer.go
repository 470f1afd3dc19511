package trust

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/similarity"
)

// ErrScoreMissing is returned when trust is requested before valuation ran
var ErrScoreMissing = errors.New("listing has no score result")

// Config holds the trust weights
type Config struct {
	PhotoReusePenalty    float64
	PhotoReuseCap        float64
	GroupReusePenalty    float64 // photo match with a member of the same group
	PriceSwingThreshold  float64 // relative change between consecutive visits
	PriceSwingPenalty    float64
	PriceSwingCap        float64
	LargeGroupSize       int
	UnderpricedRatio     float64 // of the AVM low bound
	RegroupConfidenceHit float64
	MinConfidence        float64
}

// DefaultConfig returns the default trust weights
func DefaultConfig() Config {
	return Config{
		PhotoReusePenalty:    0.15,
		PhotoReuseCap:        0.6,
		GroupReusePenalty:    0.05,
		PriceSwingThreshold:  0.15,
		PriceSwingPenalty:    0.1,
		PriceSwingCap:        0.3,
		LargeGroupSize:       6,
		UnderpricedRatio:     0.7,
		RegroupConfidenceHit: 0.1,
		MinConfidence:        0.2,
	}
}

const (
	baseScore              = 0.9
	revisitBonus           = 0.1
	largeGroupPenalty      = 0.05
	underpricedPenalty     = 0.1
	noRevisitConfidenceHit = 0.1
)

// Store is the storage the scorer reads
type Store interface {
	GetScoreResult(ctx context.Context, listingID string) (*models.ScoreResult, error)
	GetLatestListing(ctx context.Context, listingID string) (*models.Listing, error)
	GetGroupByListing(ctx context.Context, listingID string) (*models.DedupGroup, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ListGroupEvents(ctx context.Context, groupID string) ([]models.GroupEvent, error)
	ListCrawlVisits(ctx context.Context, listingID string) ([]models.CrawlVisit, error)
}

// PhotoMatcher finds listings that reuse this listing's photos
type PhotoMatcher interface {
	PhotoMatches(ctx context.Context, listingID string) ([]similarity.PhotoMatch, error)
}

// Scorer computes provenance trust from photo reuse, group stability and
// crawl revisit consistency.
type Scorer struct {
	cfg     Config
	store   Store
	matcher PhotoMatcher
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewScorer creates a trust scorer. matcher may be nil.
func NewScorer(cfg Config, store Store, matcher PhotoMatcher, logger *zap.SugaredLogger) *Scorer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scorer{
		cfg:     cfg,
		store:   store,
		matcher: matcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// assessment accumulates score and confidence changes with their flags
type assessment struct {
	score      float64
	confidence float64
	flags      []models.TrustFlag
}

func (a *assessment) flag(f models.TrustFlag) {
	a.score += f.Impact
	a.flags = append(a.flags, f)
}

// ComputeTrust builds the listing's trust snapshot from its latest score result
func (s *Scorer) ComputeTrust(ctx context.Context, listingID string) (*models.TrustSnapshot, error) {
	result, err := s.store.GetScoreResult(ctx, listingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrScoreMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load score result: %w", err)
	}

	a := &assessment{score: baseScore, confidence: 1}

	group, members, err := s.loadGroup(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if err := s.assessPhotoReuse(ctx, a, listingID, members); err != nil {
		return nil, err
	}
	if group != nil {
		if err := s.assessGroup(ctx, a, group); err != nil {
			return nil, err
		}
	}
	if err := s.assessRevisits(ctx, a, listingID); err != nil {
		return nil, err
	}
	if err := s.assessUnderpricing(ctx, a, listingID, result); err != nil {
		return nil, err
	}

	minConf := s.cfg.MinConfidence
	snapshot := &models.TrustSnapshot{
		ListingID:       listingID,
		Score:           clamp(a.score, 0, 1),
		Confidence:      clamp(a.confidence, minConf, 1),
		Flags:           datatypes.JSONSlice[models.TrustFlag](a.flags),
		ScoreComputedAt: result.ComputedAt,
		ComputedAt:      s.now(),
	}
	if snapshot.Flags == nil {
		snapshot.Flags = datatypes.JSONSlice[models.TrustFlag]{}
	}
	return snapshot, nil
}

func (s *Scorer) loadGroup(ctx context.Context, listingID string) (*models.DedupGroup, map[string]bool, error) {
	group, err := s.store.GetGroupByListing(ctx, listingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load group: %w", err)
	}
	members, err := s.store.ListGroupMembers(ctx, group.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load group members: %w", err)
	}
	ids := make(map[string]bool, len(members))
	for _, m := range members {
		ids[m.ListingID] = true
	}
	return group, ids, nil
}

// assessPhotoReuse records every photo match as a flag. Matches inside the
// listing's own group cost GroupReusePenalty, others PhotoReusePenalty; the
// total is capped at PhotoReuseCap.
func (s *Scorer) assessPhotoReuse(ctx context.Context, a *assessment, listingID string, members map[string]bool) error {
	if s.matcher == nil {
		return nil
	}
	matches, err := s.matcher.PhotoMatches(ctx, listingID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warnw("Trust: photo matching failed", "listing_id", listingID, "error", err)
		a.confidence -= s.cfg.RegroupConfidenceHit
		return nil
	}

	remaining := s.cfg.PhotoReuseCap
	for _, m := range matches {
		penalty, message := s.cfg.PhotoReusePenalty, "photos reused in listing %s (distance %d)"
		if members[m.ListingID] {
			penalty, message = s.cfg.GroupReusePenalty, "photos shared with group member %s (distance %d)"
		}
		penalty = math.Max(0, math.Min(penalty, remaining))
		remaining -= penalty
		distance := m.Distance
		a.flag(models.TrustFlag{
			Code:           models.FlagPhotoReuse,
			Message:        fmt.Sprintf(message, m.ListingID, m.Distance),
			Impact:         -penalty,
			OtherListingID: m.ListingID,
			Distance:       &distance,
		})
	}
	return nil
}

func (s *Scorer) assessGroup(ctx context.Context, a *assessment, group *models.DedupGroup) error {
	if s.cfg.LargeGroupSize > 0 && group.MemberCount >= s.cfg.LargeGroupSize {
		a.flag(models.TrustFlag{
			Code:    models.FlagLargeGroup,
			Message: fmt.Sprintf("listed %d times across sources", group.MemberCount),
			Impact:  -largeGroupPenalty,
		})
	}

	events, err := s.store.ListGroupEvents(ctx, group.ID)
	if err != nil {
		return fmt.Errorf("failed to load group events: %w", err)
	}
	changes := 0
	for _, e := range events {
		switch e.EventType {
		case models.GroupEventCanonicalChanged, models.GroupEventMerged:
			changes++
		}
	}
	if changes > 0 {
		a.confidence -= float64(changes) * s.cfg.RegroupConfidenceHit
		a.flag(models.TrustFlag{
			Code:    models.FlagCanonicalUnstable,
			Message: fmt.Sprintf("canonical listing changed or group merged %d times", changes),
		})
	}
	return nil
}

// assessRevisits compares prices between consecutive crawl visits
func (s *Scorer) assessRevisits(ctx context.Context, a *assessment, listingID string) error {
	visits, err := s.store.ListCrawlVisits(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to load crawl visits: %w", err)
	}
	if len(visits) < 2 {
		a.confidence -= noRevisitConfidenceHit
		a.flag(models.TrustFlag{Code: models.FlagNoRevisits, Message: "not revisited yet"})
		return nil
	}
	sort.SliceStable(visits, func(i, j int) bool { return visits[i].VisitedAt.Before(visits[j].VisitedAt) })

	remaining := s.cfg.PriceSwingCap
	swings := 0
	var prev *int
	for _, v := range visits {
		if v.PriceEur == nil {
			continue
		}
		if prev != nil && *prev > 0 {
			change := float64(*v.PriceEur-*prev) / float64(*prev)
			if math.Abs(change) > s.cfg.PriceSwingThreshold {
				swings++
				penalty := math.Min(s.cfg.PriceSwingPenalty, remaining)
				remaining -= penalty
				a.flag(models.TrustFlag{
					Code:    models.FlagPriceSwing,
					Message: fmt.Sprintf("price moved %+.0f%% between visits (%d -> %d EUR)", change*100, *prev, *v.PriceEur),
					Impact:  -penalty,
				})
			}
		}
		prev = v.PriceEur
	}

	if swings == 0 {
		a.flag(models.TrustFlag{
			Code:    models.FlagRevisitConsistent,
			Message: fmt.Sprintf("revisited %d times with consistent price", len(visits)-1),
			Impact:  revisitBonus,
		})
	}
	return nil
}

func (s *Scorer) assessUnderpricing(ctx context.Context, a *assessment, listingID string, result *models.ScoreResult) error {
	if result.AvmLow == nil || s.cfg.UnderpricedRatio <= 0 {
		return nil
	}
	listing, err := s.store.GetLatestListing(ctx, listingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load listing: %w", err)
	}
	if listing.PriceEur == nil {
		return nil
	}
	floor := s.cfg.UnderpricedRatio * float64(*result.AvmLow)
	if float64(*listing.PriceEur) < floor {
		a.flag(models.TrustFlag{
			Code:    models.FlagSuspiciouslyCheap,
			Message: fmt.Sprintf("asking %d EUR is below %.0f%% of the AVM low bound", *listing.PriceEur, s.cfg.UnderpricedRatio*100),
			Impact:  -underpricedPenalty,
		})
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
