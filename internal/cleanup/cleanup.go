package cleanup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"real-estate-valuation/internal/models"
)

// Store is the retention surface of the storage layer
type Store interface {
	CountSupersededVersions(ctx context.Context, before time.Time) (map[string]int, error)
	DeleteSupersededVersions(ctx context.Context, before time.Time) (int64, error)
	CountCrawlVisitsBefore(ctx context.Context, before time.Time) (map[string]int, error)
	DeleteCrawlVisitsBefore(ctx context.Context, before time.Time) (int64, error)
	AddPruneLogs(ctx context.Context, logs []models.PruneLog) error
}

// Config holds configuration for cleanup operations
type Config struct {
	VersionRetention time.Duration // superseded versions older than this are pruned; 0 disables
	VisitRetention   time.Duration // crawl visits older than this are pruned; 0 disables
	MaxDeletions     int           // safety limit per kind and run; 0 means unlimited
	DryRun           bool          // only log what would be deleted
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		VersionRetention: 180 * 24 * time.Hour,
		VisitRetention:   365 * 24 * time.Hour,
		MaxDeletions:     100000,
	}
}

// Result holds the result of a cleanup run
type Result struct {
	TargetVersions  int       `json:"target_versions"`
	DeletedVersions int64     `json:"deleted_versions"`
	TargetVisits    int       `json:"target_visits"`
	DeletedVisits   int64     `json:"deleted_visits"`
	Listings        int       `json:"listings"` // listings with at least one pruned row
	DryRun          bool      `json:"dry_run"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// Service prunes superseded listing versions and expired crawl visits.
// The latest version of a listing is never pruned.
type Service struct {
	store  Store
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewService creates a new cleanup service
func NewService(store Store, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Prune runs one retention pass
func (s *Service) Prune(ctx context.Context) (*Result, error) {
	now := s.now()
	result := &Result{DryRun: s.cfg.DryRun, ExecutedAt: now}
	touched := make(map[string]bool)

	if s.cfg.VersionRetention > 0 {
		cutoff := now.Add(-s.cfg.VersionRetention)
		counts, err := s.store.CountSupersededVersions(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to count superseded versions: %w", err)
		}
		target, deleted, err := s.prune(ctx, counts, models.PruneKindVersions, models.PruneReasonSuperseded,
			func() (int64, error) { return s.store.DeleteSupersededVersions(ctx, cutoff) })
		if err != nil {
			return nil, err
		}
		result.TargetVersions, result.DeletedVersions = target, deleted
		markTouched(touched, counts)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if s.cfg.VisitRetention > 0 {
		cutoff := now.Add(-s.cfg.VisitRetention)
		counts, err := s.store.CountCrawlVisitsBefore(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to count expired visits: %w", err)
		}
		target, deleted, err := s.prune(ctx, counts, models.PruneKindVisits, models.PruneReasonRetention,
			func() (int64, error) { return s.store.DeleteCrawlVisitsBefore(ctx, cutoff) })
		if err != nil {
			return nil, err
		}
		result.TargetVisits, result.DeletedVisits = target, deleted
		markTouched(touched, counts)
	}

	result.Listings = len(touched)
	s.logger.Infow("Cleanup: completed",
		"versions", result.DeletedVersions, "versions_target", result.TargetVersions,
		"visits", result.DeletedVisits, "visits_target", result.TargetVisits,
		"dry_run", result.DryRun)
	return result, nil
}

func (s *Service) prune(ctx context.Context, counts map[string]int, kind, reason string, del func() (int64, error)) (int, int64, error) {
	target := 0
	for _, n := range counts {
		target += n
	}
	if target == 0 {
		return 0, 0, nil
	}

	// Safety check: abort if too many rows would be deleted
	if s.cfg.MaxDeletions > 0 && target > s.cfg.MaxDeletions {
		return 0, 0, fmt.Errorf("safety check failed: %d %s exceed max deletion limit of %d",
			target, kind, s.cfg.MaxDeletions)
	}

	if s.cfg.DryRun {
		for _, id := range sortedKeys(counts) {
			s.logger.Infow("Cleanup: [DRY-RUN] would prune", "kind", kind, "listing_id", id, "rows", counts[id])
		}
		return target, int64(target), nil
	}

	deleted, err := del()
	if err != nil {
		return target, 0, fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	logs := make([]models.PruneLog, 0, len(counts))
	now := s.now()
	for _, id := range sortedKeys(counts) {
		logs = append(logs, models.PruneLog{
			ListingID: id,
			Kind:      kind,
			Removed:   counts[id],
			Reason:    reason,
			PrunedAt:  now,
		})
	}
	if err := s.store.AddPruneLogs(ctx, logs); err != nil {
		// Rows are already gone; the log is best effort
		s.logger.Warnw("Cleanup: failed to write prune log", "kind", kind, "error", err)
	}
	return target, deleted, nil
}

func markTouched(touched map[string]bool, counts map[string]int) {
	for id := range counts {
		touched[id] = true
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
