package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/cleanup"
	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/dedup"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
	"real-estate-valuation/internal/scraper"
	"real-estate-valuation/internal/search"
	"real-estate-valuation/internal/similarity"
	"real-estate-valuation/internal/trust"
	"real-estate-valuation/internal/valuation"
)

type mapHasher map[string]uint64

func (h mapHasher) HashURL(ctx context.Context, photoURL string) (uint64, error) {
	if v, ok := h[photoURL]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("no image at %s", photoURL)
}

type valuatorFunc func(ctx context.Context, in valuation.Input) (*models.ScoreResult, error)

func (f valuatorFunc) Score(ctx context.Context, in valuation.Input) (*models.ScoreResult, error) {
	return f(ctx, in)
}

type recordingIndex struct {
	mu   sync.Mutex
	docs map[string]*search.GroupDocument
}

func (r *recordingIndex) IndexGroup(doc *search.GroupDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = make(map[string]*search.GroupDocument)
	}
	r.docs[doc.ID] = doc
	return nil
}

type stubComps struct {
	sale map[string][]float64
	rent map[string][]float64
}

func (s stubComps) SaleCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error) {
	return s.sale, nil
}

func (s stubComps) RentCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error) {
	return s.rent, nil
}

type stubScraper struct {
	raw *models.RawListing
	err error
}

func (s stubScraper) ScrapeListing(ctx context.Context, sourceURL string) (*models.RawListing, error) {
	if s.err != nil {
		return nil, s.err
	}
	raw := *s.raw
	return &raw, nil
}

type stubPruner struct{ result *cleanup.Result }

func (s stubPruner) Prune(ctx context.Context) (*cleanup.Result, error) {
	return s.result, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store  *database.MemoryStore
	runner *Runner
	clock  *testClock
	index  *recordingIndex
}

// newFixture wires the real pipeline over an in-memory store; mutate
// deps before the runner is built to swap collaborators.
func newFixture(t *testing.T, hashes mapHasher, mutate func(*Deps)) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := database.NewMemoryStore()
	store.SetClock(clock.now)

	engine := similarity.NewEngine(similarity.DefaultConfig(), store, hashes, nil)
	index := &recordingIndex{}
	deps := Deps{
		Store:      store,
		Normalizer: normalize.NewNormalizer(normalize.DefaultConfig(), nil, nil),
		Photos:     engine,
		Grouper:    dedup.NewGrouper(store, engine, nil),
		Valuation:  valuation.NewSuite(valuation.DefaultConfig(), nil, nil),
		Trust:      trust.NewScorer(trust.DefaultConfig(), store, engine, nil),
		Search:     index,
	}
	if mutate != nil {
		mutate(&deps)
	}

	cfg := DefaultConfig()
	cfg.Concurrency = 2
	runner := NewRunner(cfg, deps, nil)
	runner.now = clock.now
	return &fixture{store: store, runner: runner, clock: clock, index: index}
}

func (f *fixture) ingest(t *testing.T, raw models.RawListing) string {
	t.Helper()
	changed, err := f.runner.Ingest(context.Background(), &raw)
	require.NoError(t, err)
	require.True(t, changed)
	return raw.ID
}

func TestDedupAttach_EndToEnd(t *testing.T) {
	f := newFixture(t, mapHasher{}, nil)
	id := f.ingest(t, models.RawListing{
		SourceURL: "https://www.imobiliare.ro/oferta/ap-2-camere-floreasca-1",
		PriceText: "123.456 lei",
		RoomsText: "2 camere",
		Address:   "Str. X 1, Floreasca, București",
	})

	result, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.Cancelled)

	listing, err := f.store.GetLatestListing(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, listing.PriceRon)
	require.NotNil(t, listing.PriceEur)
	assert.Equal(t, 123456, *listing.PriceRon)
	assert.Equal(t, 24941, *listing.PriceEur)

	score, err := f.store.GetScoreResult(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, score.PriceBadge, "no area and no market data means no badge")
	assert.NotEmpty(t, score.GroupID)

	raw, err := f.store.GetRawListing(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RawStatusProcessed, raw.Status)

	state, err := f.store.GetJobState(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TotalRuns)
	assert.Equal(t, 1, state.LastProcessed)

	assert.Contains(t, f.index.docs, score.GroupID)

	again, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed, "processed records are not picked up again")

	// With market data for the area the band is 100000/140000 and the
	// re-crawled asking price of 90000 is underpriced.
	require.NotNil(t, listing.AreaSlug)
	require.NoError(t, f.store.SaveAreaStat(context.Background(), &models.AreaStat{
		AreaSlug:       *listing.AreaSlug,
		MedianEurPerM2: 2400,
		SaleComps:      5,
		RefreshedAt:    f.clock.now(),
	}))
	f.clock.advance(time.Hour)
	assert.Equal(t, id, f.ingest(t, models.RawListing{
		SourceURL: "https://www.imobiliare.ro/oferta/ap-2-camere-floreasca-1",
		PriceText: "90.000 €",
		AreaText:  "50 mp",
		RoomsText: "2 camere",
		Address:   "Str. X 1, Floreasca, București",
	}))

	rescored, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 1, rescored.Processed)

	score, err = f.store.GetScoreResult(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, score.AvmLow)
	require.NotNil(t, score.AvmHigh)
	assert.InDelta(t, 100000, *score.AvmLow, 1)
	assert.InDelta(t, 140000, *score.AvmHigh, 1)
	require.NotNil(t, score.PriceBadge)
	assert.Equal(t, models.BadgeUnderpriced, *score.PriceBadge)
}

func TestDedupAttach_SharedPhotosJoinOneGroup(t *testing.T) {
	hashes := mapHasher{
		"https://cdn.a.ro/1.jpg": 0xF0F0F0F0F0F0F0F0,
		"https://cdn.b.ro/9.jpg": 0xF0F0F0F0F0F0F0F1,
	}
	f := newFixture(t, hashes, nil)
	a := f.ingest(t, models.RawListing{
		SourceURL: "https://www.imobiliare.ro/oferta/a",
		PriceText: "95.000 €",
		AreaText:  "54 mp",
		PhotoURLs: []string{"https://cdn.a.ro/1.jpg"},
	})
	b := f.ingest(t, models.RawListing{
		SourceURL: "https://www.storia.ro/ro/oferta/b",
		PriceText: "97.500 €",
		AreaText:  "55 mp",
		PhotoURLs: []string{"https://cdn.b.ro/9.jpg"},
	})

	result, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	ga, err := f.store.GetGroupByListing(context.Background(), a)
	require.NoError(t, err)
	gb, err := f.store.GetGroupByListing(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ga.ID, gb.ID)

	members, err := f.store.ListGroupMembers(context.Background(), ga.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestTrustRebuild_RecordsPhotoReuseWithinGroup(t *testing.T) {
	hashes := mapHasher{
		"https://cdn.a.ro/1.jpg": 0xF0F0F0F0F0F0F0F0,
		"https://cdn.b.ro/9.jpg": 0xF0F0F0F0F0F0F0F1,
	}
	f := newFixture(t, hashes, nil)
	a := f.ingest(t, models.RawListing{
		SourceURL: "https://www.imobiliare.ro/oferta/a",
		PriceText: "95.000 €",
		PhotoURLs: []string{"https://cdn.a.ro/1.jpg"},
	})
	b := f.ingest(t, models.RawListing{
		SourceURL: "https://www.storia.ro/ro/oferta/b",
		PriceText: "97.500 €",
		PhotoURLs: []string{"https://cdn.b.ro/9.jpg"},
	})

	_, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	result, err := f.runner.Run(context.Background(), JobTrustRebuild)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	snapshot, err := f.store.GetTrustSnapshot(context.Background(), a)
	require.NoError(t, err)
	var reuse []models.TrustFlag
	for _, flag := range snapshot.Flags {
		if flag.Code == models.FlagPhotoReuse {
			reuse = append(reuse, flag)
		}
	}
	require.Len(t, reuse, 1)
	assert.Equal(t, b, reuse[0].OtherListingID)
	require.NotNil(t, reuse[0].Distance)
	assert.Equal(t, 1, *reuse[0].Distance)
	assert.InDelta(t, 0.9-0.05, snapshot.Score, 1e-9)
}

func TestDedupAttach_RetryThenPermanentFail(t *testing.T) {
	calls := 0
	f := newFixture(t, mapHasher{}, func(d *Deps) {
		d.Valuation = valuatorFunc(func(ctx context.Context, in valuation.Input) (*models.ScoreResult, error) {
			calls++
			return nil, errors.New("model unavailable")
		})
	})
	id := f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/x", PriceText: "80000 EUR"})

	delays := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour}
	for i, delay := range delays {
		result, err := f.runner.Run(context.Background(), JobDedupAttach)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed, "attempt %d", i+1)

		raw, err := f.store.GetRawListing(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RawStatusFailed, raw.Status)
		assert.Equal(t, i+1, raw.Attempts)
		require.NotNil(t, raw.NextRetryAt)
		assert.Equal(t, f.clock.now().Add(delay), *raw.NextRetryAt)
		assert.Contains(t, raw.LastError, "model unavailable")

		// Not due before the backoff elapses
		early, err := f.runner.Run(context.Background(), JobDedupAttach)
		require.NoError(t, err)
		assert.Equal(t, 0, early.Failed+early.Processed)

		f.clock.advance(delay)
	}

	result, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	raw, err := f.store.GetRawListing(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RawStatusPermanentFail, raw.Status)
	assert.Equal(t, models.MaxRetryAttempts, raw.Attempts)
	assert.Nil(t, raw.NextRetryAt)

	f.clock.advance(48 * time.Hour)
	result, err = f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, models.MaxRetryAttempts, calls)

	state, err := f.store.GetJobState(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, int64(models.MaxRetryAttempts), state.TotalFailed)
}

func TestDedupAttach_PanicIsContained(t *testing.T) {
	f := newFixture(t, mapHasher{}, func(d *Deps) {
		d.Valuation = valuatorFunc(func(ctx context.Context, in valuation.Input) (*models.ScoreResult, error) {
			if strings.HasSuffix(in.Listing.SourceURL, "/bad") {
				panic("bad record")
			}
			return valuation.NewSuite(valuation.DefaultConfig(), nil, nil).Score(ctx, in)
		})
	})
	bad := f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/bad", PriceText: "65000 EUR"})
	f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/good", PriceText: "70000 EUR"})

	result, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bad, result.Errors[0].RecordID)

	raw, err := f.store.GetRawListing(context.Background(), bad)
	require.NoError(t, err)
	assert.Equal(t, models.RawStatusFailed, raw.Status)
	assert.Contains(t, raw.LastError, "panic: bad record")
}

func TestTrustRebuild(t *testing.T) {
	f := newFixture(t, mapHasher{}, nil)
	id := f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/t", PriceText: "88000 EUR"})

	_, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)

	result, err := f.runner.Run(context.Background(), JobTrustRebuild)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	snapshot, err := f.store.GetTrustSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, snapshot.Score, 1e-9)
	assert.InDelta(t, 0.9, snapshot.Confidence, 1e-9)

	// Trust is current, nothing left to rebuild
	result, err = f.runner.Run(context.Background(), JobTrustRebuild)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestAreaRefresh(t *testing.T) {
	slug := "bucuresti-titan"
	f := newFixture(t, mapHasher{}, func(d *Deps) {
		d.Comps = stubComps{
			sale: map[string][]float64{slug: {2200}},
			rent: map[string][]float64{slug: {8, 10, 12}},
		}
	})
	ctx := context.Background()
	for i, price := range []int{100000, 120000, 90000} {
		p, area, s := price, 50.0, slug
		require.NoError(t, f.store.CreateListingVersion(ctx, &models.Listing{
			ListingID:    fmt.Sprintf("titan%d", i),
			SourceURL:    fmt.Sprintf("https://www.olx.ro/d/oferta/titan-%d", i),
			PriceEur:     &p,
			AreaM2:       &area,
			AreaSlug:     &s,
			NormalizedAt: f.clock.now(),
		}))
	}

	result, err := f.runner.Run(ctx, JobAreaRefresh)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stat, err := f.store.GetAreaStat(ctx, slug)
	require.NoError(t, err)
	assert.InDelta(t, 2100, stat.MedianEurPerM2, 1e-9)
	assert.Equal(t, 4, stat.SaleComps)
	require.NotNil(t, stat.MedianRentPerM2)
	assert.InDelta(t, 10, *stat.MedianRentPerM2, 1e-9)

	// Fresh stats are not recomputed
	result, err = f.runner.Run(ctx, JobAreaRefresh)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestRecrawl(t *testing.T) {
	url := "https://www.imobiliare.ro/oferta/recrawl"
	var sc stubScraper
	f := newFixture(t, mapHasher{}, func(d *Deps) { d.Scraper = &sc })
	id := f.ingest(t, models.RawListing{SourceURL: url, PriceText: "100.000 €"})
	_, err := f.runner.Run(context.Background(), JobDedupAttach)
	require.NoError(t, err)

	result, err := f.runner.Run(context.Background(), JobRecrawl)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed, "recent visit is not due")

	f.clock.advance(96 * time.Hour)
	sc.raw = &models.RawListing{SourceURL: url + "?utm_source=x", PriceText: "92.000 €"}
	result, err = f.runner.Run(context.Background(), JobRecrawl)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	visits, err := f.store.ListCrawlVisits(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, visits, 2)
	require.NotNil(t, visits[1].PriceEur)
	assert.Equal(t, 92000, *visits[1].PriceEur)

	raw, err := f.store.GetRawListing(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RawStatusPending, raw.Status, "changed content is queued for dedup_attach")

	f.clock.advance(96 * time.Hour)
	sc.err = scraper.ErrPageGone
	result, err = f.runner.Run(context.Background(), JobRecrawl)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestCleanupJob(t *testing.T) {
	f := newFixture(t, mapHasher{}, func(d *Deps) {
		d.Cleanup = stubPruner{result: &cleanup.Result{DeletedVersions: 3, DeletedVisits: 2}}
	})
	result, err := f.runner.Run(context.Background(), JobCleanup)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Processed)
	assert.NotNil(t, result.Details)
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t, mapHasher{}, nil)

	_, err := f.runner.Run(context.Background(), "reindex_everything")
	assert.ErrorIs(t, err, ErrUnknownJob)

	_, err = f.runner.Run(context.Background(), JobCleanup)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = f.runner.Run(context.Background(), JobRecrawl)
	assert.ErrorIs(t, err, ErrNotConfigured)

	state, err := f.store.GetJobState(context.Background(), JobCleanup)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ConsecutiveFails)
	assert.NotEmpty(t, state.LastError)
}

func TestRun_SameJobIsExclusive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixture(t, mapHasher{}, func(d *Deps) {
		d.Valuation = valuatorFunc(func(ctx context.Context, in valuation.Input) (*models.ScoreResult, error) {
			once.Do(func() { close(started) })
			<-release
			return valuation.NewSuite(valuation.DefaultConfig(), nil, nil).Score(ctx, in)
		})
	})
	f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/slow", PriceText: "60000 EUR"})

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Run(context.Background(), JobDedupAttach)
		done <- err
	}()
	<-started

	_, err := f.runner.Run(context.Background(), JobDedupAttach)
	assert.ErrorIs(t, err, ErrJobRunning)

	// Other job types are not blocked
	_, err = f.runner.Run(context.Background(), JobTrustRebuild)
	assert.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestRun_CancelledBetweenRecords(t *testing.T) {
	f := newFixture(t, mapHasher{}, nil)
	f.ingest(t, models.RawListing{SourceURL: "https://www.olx.ro/d/oferta/c1", PriceText: "60000 EUR"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.runner.Run(ctx, JobDedupAttach)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Processed)

	_, err = f.store.GetJobState(context.Background(), JobDedupAttach)
	assert.NoError(t, err, "cancelled runs are still recorded")
}
