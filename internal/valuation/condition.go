package valuation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/vision"
)

// ConditionBucket clamps the score into [0,1] and maps it to a condition label
func ConditionBucket(cfg ConditionConfig, score float64) string {
	score = clamp01(score)
	switch {
	case score < cfg.RenovationBelow:
		return models.ConditionNeedsRenovation
	case score < cfg.ModernFrom:
		return models.ConditionDecent
	default:
		return models.ConditionModern
	}
}

// ConditionCacheKey identifies an ordered photo set
func ConditionCacheKey(photoURLs []string) string {
	sum := sha256.Sum256([]byte(strings.Join(photoURLs, "\n")))
	return hex.EncodeToString(sum[:])
}

// ConditionCacheStore persists vision scores by photo set
type ConditionCacheStore interface {
	GetConditionCache(ctx context.Context, key string) (*models.ConditionCache, error)
	SaveConditionCache(ctx context.Context, entry *models.ConditionCache) error
}

// ConditionResult is a resolved condition
type ConditionResult struct {
	Score  float64
	Label  string
	Cached bool
}

// ConditionResolver scores photo sets through the vision service, reusing
// earlier scores for identical photo sets.
type ConditionResolver struct {
	cfg    ConditionConfig
	scorer vision.Scorer
	cache  ConditionCacheStore
	logger *zap.SugaredLogger
}

// NewConditionResolver creates a resolver. scorer may be nil, in which case
// only cached scores are used.
func NewConditionResolver(cfg ConditionConfig, scorer vision.Scorer, cache ConditionCacheStore, logger *zap.SugaredLogger) *ConditionResolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ConditionResolver{cfg: cfg, scorer: scorer, cache: cache, logger: logger}
}

// Resolve returns the condition of a photo set. A missing or failing vision
// service leaves the condition undefined; it never fails the listing.
func (r *ConditionResolver) Resolve(ctx context.Context, photoURLs []string) (*ConditionResult, models.ExplainFragment) {
	f := newFragment()
	f.Inputs["photos"] = len(photoURLs)

	if len(photoURLs) == 0 {
		return nil, undefined(f, "no photos")
	}

	key := ConditionCacheKey(photoURLs)
	f.Inputs["cache_key"] = key

	if r.cache != nil {
		entry, err := r.cache.GetConditionCache(ctx, key)
		switch {
		case err == nil:
			return r.result(f, entry.Score, true), f
		case !errors.Is(err, database.ErrNotFound):
			r.logger.Warnw("Condition: cache lookup failed", "key", key, "error", err)
		}
	}

	if r.scorer == nil {
		return nil, undefined(f, "vision scorer not configured")
	}

	raw, err := r.scorer.Score(ctx, photoURLs)
	if err != nil {
		r.logger.Warnw("Condition: vision scoring failed", "photos", len(photoURLs), "error", err)
		return nil, undefined(f, fmt.Sprintf("vision scoring failed: %v", err))
	}

	score := clamp01(raw)
	if r.cache != nil {
		if err := r.cache.SaveConditionCache(ctx, &models.ConditionCache{CacheKey: key, Score: score}); err != nil {
			r.logger.Warnw("Condition: cache save failed", "key", key, "error", err)
		}
	}
	f.Values["raw_score"] = raw
	return r.result(f, score, false), f
}

func (r *ConditionResolver) result(f models.ExplainFragment, score float64, cached bool) *ConditionResult {
	label := ConditionBucket(r.cfg, score)
	f.Inputs["cached"] = cached
	f.Values["score"] = clamp01(score)
	return &ConditionResult{Score: clamp01(score), Label: label, Cached: cached}
}
