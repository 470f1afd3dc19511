package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/scraper"
	"real-estate-valuation/internal/search"
	"real-estate-valuation/internal/similarity"
	"real-estate-valuation/internal/valuation"
)

// compsWindow is how far back comparables are read
const compsWindow = 365 * 24 * time.Hour

// runDedupAttach normalizes due raw records, attaches them to groups and scores them
func (r *Runner) runDedupAttach(ctx context.Context, result *BatchResult) error {
	raws, err := r.deps.Store.ListDueRawListings(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list due raw listings: %w", err)
	}

	byID := make(map[string]models.RawListing, len(raws))
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		byID[raw.ID] = raw
		ids = append(ids, raw.ID)
	}

	r.forEach(ctx, result, ids, func(ctx context.Context, id string) error {
		raw := byID[id]
		err := safely(func() error { return r.processRaw(ctx, &raw) })
		r.markRaw(ctx, &raw, err)
		return err
	})
	return nil
}

func (r *Runner) processRaw(ctx context.Context, raw *models.RawListing) error {
	listing := r.deps.Normalizer.Normalize(ctx, raw)
	listing.Signature = similarity.Signature(listing.SourceURL, listing.PriceEur, listing.AreaM2)

	if err := r.deps.Store.CreateListingVersion(ctx, listing); err != nil {
		return fmt.Errorf("failed to store listing version: %w", err)
	}

	if r.deps.Photos != nil {
		if _, err := r.deps.Photos.IndexPhotos(ctx, listing); err != nil {
			// Photo channel degrades to signature-only matching
			r.logger.Warnw("Batch: photo indexing failed", "listing_id", listing.ListingID, "error", err)
		}
	}

	groupID, err := r.deps.Grouper.AttachToGroup(ctx, listing.ListingID)
	if err != nil {
		return fmt.Errorf("failed to attach to group: %w", err)
	}

	return r.scoreListing(ctx, listing.ListingID, groupID)
}

// markRaw records the outcome on the raw record, scheduling a retry on failure
func (r *Runner) markRaw(ctx context.Context, raw *models.RawListing, procErr error) {
	now := r.now()
	if procErr == nil {
		raw.Status = models.RawStatusProcessed
		raw.LastError = ""
		raw.NextRetryAt = nil
	} else {
		raw.Attempts++
		raw.LastError = procErr.Error()
		if raw.Attempts >= models.MaxRetryAttempts {
			raw.Status = models.RawStatusPermanentFail
			raw.NextRetryAt = nil
			r.logger.Warnw("Batch: max retries exceeded", "raw_id", raw.ID, "attempts", raw.Attempts)
		} else {
			// -1 because Attempts was already incremented
			next := now.Add(models.GetNextRetryDelay(raw.Attempts - 1))
			raw.Status = models.RawStatusFailed
			raw.NextRetryAt = &next
		}
	}

	// The status write must land even if the run was cancelled mid-record
	saveCtx := context.WithoutCancel(ctx)
	if err := r.deps.Store.SaveRawListingStatus(saveCtx, raw); err != nil {
		r.logger.Errorw("Batch: failed to save raw status", "raw_id", raw.ID, "error", err)
	}
}

// scoreListing runs the model suite on the listing's latest version,
// backfilled from its group snapshot, and stores the result.
func (r *Runner) scoreListing(ctx context.Context, listingID, groupID string) error {
	listing, err := r.deps.Store.GetLatestListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to load listing: %w", err)
	}

	group, err := r.deps.Store.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	features := backfill(*listing, group.Snapshot.Data().Features)

	in := valuation.Input{Listing: &features, GroupID: groupID}
	if features.AreaSlug != nil {
		slug := *features.AreaSlug
		stat, err := r.deps.Store.GetAreaStat(ctx, slug)
		switch {
		case err == nil:
			in.AreaStat = stat
		case !errors.Is(err, database.ErrNotFound):
			r.logger.Warnw("Batch: failed to load area stat", "area_slug", slug, "error", err)
		}
		in.RentCompsPerM2 = r.rentComps(ctx, slug, in.AreaStat)
	}

	result, err := r.deps.Valuation.Score(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to score listing: %w", err)
	}
	if err := r.deps.Store.SaveScoreResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save score result: %w", err)
	}

	r.indexGroup(ctx, groupID)
	return nil
}

func (r *Runner) rentComps(ctx context.Context, slug string, stat *models.AreaStat) []float64 {
	if r.deps.Comps != nil {
		byArea, err := r.deps.Comps.RentCompsByArea(ctx, []string{slug}, r.now().Add(-compsWindow))
		if err == nil && len(byArea[slug]) > 0 {
			return byArea[slug]
		}
		if err != nil {
			r.logger.Warnw("Batch: failed to load rent comps", "area_slug", slug, "error", err)
		}
	}
	if stat != nil && stat.MedianRentPerM2 != nil {
		return []float64{*stat.MedianRentPerM2}
	}
	return nil
}

// backfill fills the listing's missing physical attributes from the group.
// The asking price is never borrowed from another member.
func backfill(l models.Listing, f models.MergedFeatures) models.Listing {
	if l.AreaM2 == nil {
		l.AreaM2 = f.AreaM2
	}
	if l.Rooms == nil {
		l.Rooms = f.Rooms
	}
	if l.Floor == nil {
		l.Floor = f.Floor
	}
	if l.YearBuilt == nil {
		l.YearBuilt = f.YearBuilt
	}
	if l.AreaSlug == nil {
		l.AreaSlug = f.AreaSlug
	}
	if l.Lat == nil || l.Lng == nil {
		l.Lat, l.Lng = f.Lat, f.Lng
	}
	if l.DistMetroM == nil {
		l.DistMetroM = f.DistMetroM
	}
	if l.TimeToMetroMin == nil {
		l.TimeToMetroMin = f.TimeToMetroMin
	}
	return l
}

// indexGroup pushes the group's canonical document to search. Best effort.
func (r *Runner) indexGroup(ctx context.Context, groupID string) {
	if r.deps.Search == nil || groupID == "" {
		return
	}
	group, err := r.deps.Store.GetGroup(ctx, groupID)
	if err != nil {
		r.logger.Warnw("Batch: failed to load group for indexing", "group_id", groupID, "error", err)
		return
	}

	var score *models.ScoreResult
	var trust *models.TrustSnapshot
	if s, err := r.deps.Store.GetScoreResult(ctx, group.CanonicalListingID); err == nil {
		score = s
	}
	if t, err := r.deps.Store.GetTrustSnapshot(ctx, group.CanonicalListingID); err == nil {
		trust = t
	}

	if err := r.deps.Search.IndexGroup(search.BuildDocument(group, score, trust)); err != nil {
		r.logger.Warnw("Batch: search indexing failed", "group_id", groupID, "error", err)
	}
}

// runTrustRebuild recomputes trust for listings with a newer score result
func (r *Runner) runTrustRebuild(ctx context.Context, result *BatchResult) error {
	scores, err := r.deps.Store.ListScoresNeedingTrust(ctx, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list scores needing trust: %w", err)
	}

	groups := make(map[string]string, len(scores))
	ids := make([]string, 0, len(scores))
	for _, s := range scores {
		groups[s.ListingID] = s.GroupID
		ids = append(ids, s.ListingID)
	}

	r.forEach(ctx, result, ids, func(ctx context.Context, id string) error {
		snapshot, err := r.deps.Trust.ComputeTrust(ctx, id)
		if err != nil {
			return err
		}
		if err := r.deps.Store.SaveTrustSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to save trust snapshot: %w", err)
		}
		r.indexGroup(ctx, groups[id])
		return nil
	})
	return nil
}

// runAreaRefresh recomputes per-area market aggregates
func (r *Runner) runAreaRefresh(ctx context.Context, result *BatchResult) error {
	now := r.now()
	slugs, err := r.deps.Store.ListStaleAreaSlugs(ctx, now.Add(-r.cfg.AreaRefresh), r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stale areas: %w", err)
	}
	if len(slugs) == 0 {
		return nil
	}

	var saleComps, rentComps map[string][]float64
	if r.deps.Comps != nil {
		since := now.Add(-compsWindow)
		if saleComps, err = r.deps.Comps.SaleCompsByArea(ctx, slugs, since); err != nil {
			r.logger.Warnw("Batch: failed to load sale comps", "error", err)
		}
		if rentComps, err = r.deps.Comps.RentCompsByArea(ctx, slugs, since); err != nil {
			r.logger.Warnw("Batch: failed to load rent comps", "error", err)
		}
	}

	r.forEach(ctx, result, slugs, func(ctx context.Context, slug string) error {
		listings, err := r.deps.Store.ListLatestListingsByArea(ctx, slug)
		if err != nil {
			return fmt.Errorf("failed to load area listings: %w", err)
		}

		perM2 := append([]float64(nil), saleComps[slug]...)
		for _, l := range listings {
			if l.PriceEur != nil && l.AreaM2 != nil && *l.AreaM2 > 0 {
				perM2 = append(perM2, float64(*l.PriceEur) / *l.AreaM2)
			}
		}
		if len(perM2) == 0 {
			return errSkip
		}

		stat := &models.AreaStat{
			AreaSlug:       slug,
			MedianEurPerM2: valuation.Median(perM2),
			SaleComps:      len(perM2),
			RentComps:      len(rentComps[slug]),
			RefreshedAt:    now,
		}
		if rents := rentComps[slug]; len(rents) > 0 {
			m := valuation.Median(rents)
			stat.MedianRentPerM2 = &m
		}
		return r.deps.Store.SaveAreaStat(ctx, stat)
	})
	return nil
}

// runRecrawl re-fetches listings whose last visit is too old
func (r *Runner) runRecrawl(ctx context.Context, result *BatchResult) error {
	if r.deps.Scraper == nil {
		return fmt.Errorf("%w: recrawl needs a page fetcher", ErrNotConfigured)
	}
	ids, err := r.deps.Store.ListListingsDueForRecrawl(ctx, r.now().Add(-r.cfg.RecrawlAfter), r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list listings due for recrawl: %w", err)
	}

	r.forEach(ctx, result, ids, func(ctx context.Context, id string) error {
		listing, err := r.deps.Store.GetLatestListing(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load listing: %w", err)
		}
		raw, err := r.deps.Scraper.ScrapeListing(ctx, listing.SourceURL)
		if errors.Is(err, scraper.ErrPageGone) {
			r.logger.Infow("Batch: listing page gone", "listing_id", id, "url", listing.SourceURL)
			return errSkip
		}
		if err != nil {
			return err
		}
		// Canonical redirects must not fork the listing identity
		raw.ID, raw.SourceURL = id, listing.SourceURL
		_, err = r.Ingest(ctx, raw)
		return err
	})
	return nil
}

// runCleanup prunes superseded versions and expired visits
func (r *Runner) runCleanup(ctx context.Context, result *BatchResult) error {
	if r.deps.Cleanup == nil {
		return fmt.Errorf("%w: cleanup service", ErrNotConfigured)
	}
	res, err := r.deps.Cleanup.Prune(ctx)
	if err != nil {
		return err
	}
	result.Processed = int(res.DeletedVersions + res.DeletedVisits)
	result.Details = res
	return nil
}

// Ingest stores a scraped record and logs the crawl visit. It reports
// whether the content changed, in which case the record is pending for the
// next dedup_attach run.
func (r *Runner) Ingest(ctx context.Context, raw *models.RawListing) (bool, error) {
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = r.now()
	}
	if raw.ContentHash == "" {
		raw.ContentHash = scraper.ContentHash(raw)
	}

	changed, err := r.deps.Store.UpsertRawListing(ctx, raw)
	if err != nil {
		return false, fmt.Errorf("failed to upsert raw listing: %w", err)
	}

	visit := &models.CrawlVisit{
		ListingID:   raw.ID,
		PriceEur:    r.deps.Normalizer.PriceEur(raw),
		ContentHash: raw.ContentHash,
		VisitedAt:   raw.FetchedAt,
	}
	if err := r.deps.Store.AddCrawlVisit(ctx, visit); err != nil {
		return changed, fmt.Errorf("failed to record crawl visit: %w", err)
	}

	r.logger.Debugw("Batch: ingested raw listing", "raw_id", raw.ID, "url", raw.SourceURL, "changed", changed)
	return changed, nil
}
