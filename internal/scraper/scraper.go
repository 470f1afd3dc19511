package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
)

// Scraper fetches a listing page and extracts its raw fields
type Scraper struct {
	fetcher Fetcher
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewScraper creates a scraper over the given fetcher
func NewScraper(fetcher Fetcher, logger *zap.SugaredLogger) *Scraper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scraper{
		fetcher: fetcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ScrapeListing fetches and extracts one listing page
func (s *Scraper) ScrapeListing(ctx context.Context, sourceURL string) (*models.RawListing, error) {
	normalizedURL := normalize.NormalizeURL(sourceURL)
	s.logger.Debugw("Scraper: fetching listing", "url", normalizedURL)

	html, err := s.fetcher.Fetch(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", normalizedURL, err)
	}

	raw, err := ExtractRawListing(normalizedURL, strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", normalizedURL, err)
	}
	raw.FetchedAt = s.now()

	if raw.PriceText == "" && raw.AreaText == "" {
		s.logger.Warnw("Scraper: page has neither price nor area", "url", normalizedURL, "title", raw.Title)
	}
	return raw, nil
}
