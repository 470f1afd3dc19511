package normalize

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"real-estate-valuation/internal/geocode"
	"real-estate-valuation/internal/models"
)

// Config holds the normalizer settings
type Config struct {
	RonPerEur        float64
	DefaultCurrency  string
	WalkMetersPerMin int
}

// DefaultConfig returns the default normalizer settings
func DefaultConfig() Config {
	return Config{
		RonPerEur:        4.95,
		DefaultCurrency:  models.CurrencyEUR,
		WalkMetersPerMin: 80,
	}
}

// Normalizer turns raw scraped records into typed listing features
type Normalizer struct {
	cfg       Config
	converter Converter
	geocoder  geocode.Resolver
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewNormalizer creates a normalizer. geocoder may be nil, in which case
// area slugs are always derived from address tokens.
func NewNormalizer(cfg Config, geocoder geocode.Resolver, logger *zap.SugaredLogger) *Normalizer {
	if cfg.RonPerEur <= 0 {
		cfg.RonPerEur = DefaultConfig().RonPerEur
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = models.CurrencyEUR
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Normalizer{
		cfg:       cfg,
		converter: Converter{RonPerEur: cfg.RonPerEur},
		geocoder:  geocoder,
		logger:    logger,
		now:       time.Now,
	}
}

// Converter returns the currency converter in use
func (n *Normalizer) Converter() Converter {
	return n.converter
}

// Normalize never fails: fields that are missing or unreadable are left nil
func (n *Normalizer) Normalize(ctx context.Context, raw *models.RawListing) *models.Listing {
	now := n.now()
	listing := &models.Listing{
		ListingID:    raw.ID,
		SourceURL:    raw.SourceURL,
		AddressRaw:   strings.TrimSpace(raw.Address),
		Photos:       dedupePhotos(raw.PhotoURLs),
		FirstSeenAt:  raw.CreatedAt,
		NormalizedAt: now,
	}
	if listing.ListingID == "" {
		listing.ListingID = ListingID(raw.SourceURL)
	}
	if listing.FirstSeenAt.IsZero() {
		listing.FirstSeenAt = now
	}

	var unparsable []string
	note := func(name string, s Status) {
		if s == Unparsable {
			unparsable = append(unparsable, name)
		}
	}

	var priceStatus Status
	listing.PriceEur, listing.PriceRon, listing.Currency, priceStatus = n.parsePrice(raw)
	note("price", priceStatus)

	area := ParseArea(raw.AreaText)
	note("area", area.Status)
	listing.AreaM2 = area.Ptr()

	rooms := ParseRooms(raw.RoomsText)
	note("rooms", rooms.Status)
	listing.Rooms = rooms.Ptr()

	floor := ParseFloor(raw.FloorText)
	note("floor", floor.Status)
	listing.Floor = floor.Ptr()

	year := ParseYear(raw.YearBuilt, now)
	note("year_built", year.Status)
	listing.YearBuilt = year.Ptr()

	dist, minutes := ParseMetro(raw.MetroText, n.cfg.WalkMetersPerMin)
	note("metro", dist.Status)
	listing.DistMetroM, listing.TimeToMetroMin = dist.Ptr(), minutes.Ptr()

	if raw.DemandScore != nil {
		d := math.Max(0, math.Min(1, *raw.DemandScore))
		listing.DemandScore = &d
	}

	n.resolveLocation(ctx, listing)

	if len(unparsable) > 0 {
		n.logger.Debugw("Normalizer: unparsable fields", "listing_id", listing.ListingID, "fields", unparsable)
	}
	return listing
}

// PriceEur returns the asking price of a raw record in EUR, or nil
func (n *Normalizer) PriceEur(raw *models.RawListing) *int {
	eur, _, _, _ := n.parsePrice(raw)
	return eur
}

// parsePrice converts the asking price into both currencies. The currency
// it was listed in is authoritative; the other side is derived.
func (n *Normalizer) parsePrice(raw *models.RawListing) (eur, ron *int, currency string, status Status) {
	price, currency := ParsePrice(raw.PriceText, raw.Currency, n.cfg.DefaultCurrency)
	if price.Status != Parsed {
		return nil, nil, currency, price.Status
	}
	amount := int(math.Round(price.Value))
	if currency == models.CurrencyRON {
		converted := n.converter.RonToEur(amount)
		return &converted, &amount, currency, Parsed
	}
	converted := n.converter.EurToRon(amount)
	return &amount, &converted, currency, Parsed
}

// resolveLocation fills coordinates and the area slug. Geocoder failures fall
// back to the address-token slug.
func (n *Normalizer) resolveLocation(ctx context.Context, listing *models.Listing) {
	if listing.AddressRaw == "" {
		return
	}

	if n.geocoder != nil {
		res, err := n.geocoder.Resolve(ctx, listing.AddressRaw)
		switch {
		case err != nil:
			n.logger.Warnw("Normalizer: geocoding failed, using address tokens",
				"listing_id", listing.ListingID, "error", err)
		case res != nil:
			lat, lng := res.Lat, res.Lng
			listing.Lat, listing.Lng = &lat, &lng
			if slug := AreaSlug(res.City, res.Neighborhood); slug != "" {
				listing.AreaSlug = &slug
				return
			}
		}
	}

	if slug := SlugFromAddress(listing.AddressRaw); slug != "" {
		listing.AreaSlug = &slug
	}
}

func dedupePhotos(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	photos := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		photos = append(photos, u)
	}
	return photos
}
