package similarity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
)

// Engine indexes listing photos and finds near-duplicates among other listings
type Engine struct {
	cfg    Config
	store  database.PhotoStore
	hasher PhotoHasher
	logger *zap.SugaredLogger
}

// NewEngine creates a similarity engine
func NewEngine(cfg Config, store database.PhotoStore, hasher PhotoHasher, logger *zap.SugaredLogger) *Engine {
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = DefaultConfig().CandidatePool
	}
	if cfg.HammingThreshold < 0 {
		cfg.HammingThreshold = DefaultConfig().HammingThreshold
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{cfg: cfg, store: store, hasher: hasher, logger: logger}
}

// Threshold is the configured Hamming distance threshold
func (e *Engine) Threshold() int {
	return e.cfg.HammingThreshold
}

// IndexPhotos hashes photos of the listing that are new or previously failed
// and stores them. Already hashed URLs are not fetched again.
func (e *Engine) IndexPhotos(ctx context.Context, listing *models.Listing) ([]models.PhotoAsset, error) {
	existing, err := e.store.ListPhotoAssets(ctx, listing.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load photo assets: %w", err)
	}
	hashed := make(map[string]bool, len(existing))
	for _, a := range existing {
		if a.Phash != nil {
			hashed[a.URL] = true
		}
	}

	var pending []string
	order := make(map[string]int, len(listing.Photos))
	for i, u := range listing.Photos {
		order[u] = i
		if !hashed[u] {
			pending = append(pending, u)
		}
	}

	if len(pending) > 0 && e.hasher != nil {
		assets := hashAll(ctx, e.hasher, listing.ListingID, pending, e.logger)
		for i := range assets {
			assets[i].SortOrder = order[assets[i].URL]
		}
		if err := e.store.SavePhotoAssets(ctx, listing.ListingID, assets); err != nil {
			return nil, fmt.Errorf("failed to save photo assets: %w", err)
		}
	}

	return e.store.ListPhotoAssets(ctx, listing.ListingID)
}

// PhotoMatches finds listings whose photos are within the threshold of any
// photo of listingID. A listing without hashed photos has no matches.
func (e *Engine) PhotoMatches(ctx context.Context, listingID string) ([]PhotoMatch, error) {
	own, err := e.store.ListPhotoAssets(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load photo assets: %w", err)
	}
	hasHash := false
	for _, a := range own {
		if a.Phash != nil {
			hasHash = true
			break
		}
	}
	if !hasHash {
		return nil, nil
	}

	pool, err := e.store.ListRecentHashedPhotos(ctx, listingID, e.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate photos: %w", err)
	}
	return FindPhotoMatches(listingID, own, pool, e.cfg.HammingThreshold), nil
}
