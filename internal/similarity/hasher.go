package similarity

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/corona10/goimagehash"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/ratelimit"
)

// Config holds the photo similarity settings
type Config struct {
	HammingThreshold int
	CandidatePool    int
	ImageTimeout     time.Duration
	MaxImageBytes    int64
}

// DefaultConfig returns the default similarity settings
func DefaultConfig() Config {
	return Config{
		HammingThreshold: 6,
		CandidatePool:    2000,
		ImageTimeout:     15 * time.Second,
		MaxImageBytes:    10 << 20,
	}
}

// PhotoHasher computes a 64-bit perceptual hash for a photo URL
type PhotoHasher interface {
	HashURL(ctx context.Context, photoURL string) (uint64, error)
}

// Hasher downloads photos and computes their pHash
type Hasher struct {
	client   *http.Client
	maxBytes int64
	limiter  *ratelimit.FetchLimiter
	logger   *zap.SugaredLogger
}

// NewHasher creates a photo hasher. limiter may be nil.
func NewHasher(cfg Config, limiter *ratelimit.FetchLimiter, logger *zap.SugaredLogger) *Hasher {
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = DefaultConfig().ImageTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultConfig().MaxImageBytes
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hasher{
		client:   &http.Client{Timeout: cfg.ImageTimeout},
		maxBytes: cfg.MaxImageBytes,
		limiter:  limiter,
		logger:   logger,
	}
}

// HashURL fetches and hashes one photo
func (h *Hasher) HashURL(ctx context.Context, photoURL string) (uint64, error) {
	if h.limiter != nil {
		if err := h.limiter.Acquire(ctx); err != nil {
			return 0, err
		}
		defer h.limiter.Release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("photo fetch returned status %d", resp.StatusCode)
	}
	return HashImage(io.LimitReader(resp.Body, h.maxBytes))
}

// HashImage decodes an image (jpeg, png, gif, webp) and returns its pHash
func HashImage(r io.Reader) (uint64, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return 0, fmt.Errorf("failed to decode photo: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to hash photo: %w", err)
	}
	return hash.GetHash(), nil
}

// Distance is the Hamming distance between two pHashes
func Distance(a, b uint64) int {
	d, err := goimagehash.NewImageHash(a, goimagehash.PHash).Distance(goimagehash.NewImageHash(b, goimagehash.PHash))
	if err != nil {
		return 64
	}
	return d
}

// hashAll hashes photos in order. Failures leave Phash nil; they are
// expected for dead links and never fail the listing.
func hashAll(ctx context.Context, hasher PhotoHasher, listingID string, urls []string, logger *zap.SugaredLogger) []models.PhotoAsset {
	assets := make([]models.PhotoAsset, 0, len(urls))
	failed := 0
	for i, u := range urls {
		asset := models.PhotoAsset{ListingID: listingID, URL: u, SortOrder: i}
		hash, err := hasher.HashURL(ctx, u)
		if err != nil {
			failed++
			logger.Debugw("Similarity: photo hash failed", "listing_id", listingID, "url", u, "error", err)
		} else {
			asset.Phash = &hash
		}
		assets = append(assets, asset)
	}
	if failed > 0 {
		logger.Infow("Similarity: some photos could not be hashed",
			"listing_id", listingID, "failed", failed, "total", len(urls))
	}
	return assets
}
