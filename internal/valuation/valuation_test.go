package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func TestComputePriceBadge(t *testing.T) {
	low, mid, high := intPtr(100000), intPtr(120000), intPtr(140000)

	tests := []struct {
		name   string
		asking *int
		low    *int
		mid    *int
		high   *int
		want   *string
	}{
		{"below low", intPtr(90000), low, mid, high, strPtr(models.BadgeUnderpriced)},
		{"equal low is fair", intPtr(100000), low, mid, high, strPtr(models.BadgeFair)},
		{"inside", intPtr(120000), low, mid, high, strPtr(models.BadgeFair)},
		{"equal high is fair", intPtr(140000), low, mid, high, strPtr(models.BadgeFair)},
		{"above high", intPtr(140001), low, mid, high, strPtr(models.BadgeOverpriced)},
		{"missing asking", nil, low, mid, high, nil},
		{"missing low", intPtr(90000), nil, mid, high, nil},
		{"missing mid", intPtr(90000), low, nil, high, nil},
		{"missing high", intPtr(90000), low, mid, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputePriceBadge(tt.asking, tt.low, tt.mid, tt.high))
		})
	}
}

func TestComputeAVM(t *testing.T) {
	cfg := DefaultConfig().AVM

	t.Run("comparable-rich band", func(t *testing.T) {
		stat := &models.AreaStat{AreaSlug: "bucuresti-obor", MedianEurPerM2: 2000, SaleComps: 5}
		band, frag := ComputeAVM(cfg, AVMInput{AreaSlug: strPtr("bucuresti-obor"), AreaM2: floatPtr(60), Stat: stat})
		require.NotNil(t, band)
		assert.Equal(t, 100000, band.Low)
		assert.Equal(t, 120000, band.Mid)
		assert.Equal(t, 140000, band.High)
		assert.InDelta(t, 1.0/3, band.Confidence, 1e-9)
		assert.Equal(t, "ok", frag.Status)
		assert.Equal(t, "area_stats", frag.Inputs["baseline_source"])
	})

	t.Run("adjustments multiply", func(t *testing.T) {
		band, frag := ComputeAVM(cfg, AVMInput{
			AreaM2:     floatPtr(50),
			Floor:      intPtr(0),
			YearBuilt:  intPtr(2015),
			DistMetroM: intPtr(400),
			Condition:  strPtr(models.ConditionNeedsRenovation),
		})
		require.NotNil(t, band)
		want := 1800 * 50 * 0.95 * 1.08 * 1.05 * 0.90
		assert.InDelta(t, want, float64(band.Mid), 1)
		assert.Len(t, frag.Adjustments, 4)
		assert.Equal(t, 0.2, band.Confidence)
		assert.Equal(t, "default", frag.Inputs["baseline_source"])
	})

	t.Run("configured baseline without stats", func(t *testing.T) {
		c := cfg
		c.Baselines = map[string]float64{"cluj-napoca": 2500}
		band, frag := ComputeAVM(c, AVMInput{AreaSlug: strPtr("cluj-napoca"), AreaM2: floatPtr(40)})
		require.NotNil(t, band)
		assert.Equal(t, 100000, band.Mid)
		assert.Equal(t, "configured", frag.Inputs["baseline_source"])
	})

	t.Run("missing area is undefined but explained", func(t *testing.T) {
		band, frag := ComputeAVM(cfg, AVMInput{AreaSlug: strPtr("x")})
		assert.Nil(t, band)
		assert.Equal(t, "undefined", frag.Status)
		assert.NotEmpty(t, frag.Reason)
		assert.Contains(t, frag.Inputs, "area_m2")
		assert.Nil(t, frag.Inputs["area_m2"])
	})
}

func TestComputeTTS(t *testing.T) {
	cfg := DefaultConfig().TTS

	tests := []struct {
		name   string
		delta  *float64
		demand *float64
		season Season
		want   string
	}{
		{"cheap and hot", floatPtr(-0.15), floatPtr(0.9), SeasonHigh, models.TTSUnder30},
		{"on price neutral demand high season", floatPtr(0), nil, SeasonHigh, models.TTS30To60},
		{"on price low season", floatPtr(0), floatPtr(0.5), SeasonLow, models.TTS60To90},
		{"expensive and cold", floatPtr(0.2), floatPtr(0.1), SeasonLow, models.TTSOver90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, frag := ComputeTTS(cfg, tt.delta, tt.demand, tt.season)
			require.NotNil(t, bucket)
			assert.Equal(t, tt.want, *bucket)
			assert.Len(t, frag.Adjustments, 3)
		})
	}

	bucket, frag := ComputeTTS(cfg, nil, floatPtr(0.9), SeasonHigh)
	assert.Nil(t, bucket)
	assert.Equal(t, "undefined", frag.Status)

	assert.Equal(t, SeasonHigh, SeasonFor(cfg, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, SeasonLow, SeasonFor(cfg, time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, -0.25, PriceDelta(90000, 120000), 1e-9)
}

func TestYield(t *testing.T) {
	cfg := DefaultConfig().Yield

	rent, source := EstimateRent(cfg, RentFeatures{}, []float64{8, 10, 9, 11})
	assert.Equal(t, 9.5, rent)
	assert.Equal(t, "comps", source)

	rent, source = EstimateRent(cfg, RentFeatures{Rooms: intPtr(2)}, nil)
	assert.Equal(t, 9.0, rent)
	assert.Equal(t, "fallback", source)

	r, ok := ComputeYield(cfg, 100000, 400, 2000)
	require.True(t, ok)
	assert.InDelta(t, 0.048, r.Gross, 1e-9)
	assert.InDelta(t, 0.028, r.Net, 1e-9)
	assert.Equal(t, models.YieldWeak, r.Verdict)

	r, ok = ComputeYield(cfg, 50000, 400, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.096, r.Gross, 1e-9)
	assert.Equal(t, r.Gross, r.Net)
	assert.Equal(t, models.YieldOK, r.Verdict)

	_, ok = ComputeYield(cfg, 0, 400, 0)
	assert.False(t, ok)

	t.Run("model uses area for rent and costs", func(t *testing.T) {
		y, frag := ComputeYieldScore(cfg, YieldInput{PriceEur: intPtr(100000), AreaM2: floatPtr(50), RentCompsPerM2: []float64{10}})
		require.NotNil(t, y)
		assert.InDelta(t, 6000.0/100000, y.Gross, 1e-9)
		assert.InDelta(t, (6000.0-750)/100000, y.Net, 1e-9)
		assert.Equal(t, models.YieldOK, y.Verdict)
		assert.Equal(t, 500.0, frag.Values["rent_per_month"])

		y, frag = ComputeYieldScore(cfg, YieldInput{AreaM2: floatPtr(50)})
		assert.Nil(t, y)
		assert.Equal(t, "undefined", frag.Status)
	})
}

func TestComputeSeismic(t *testing.T) {
	cfg := DefaultConfig().Seismic
	centralLat, centralLng := floatPtr(44.43), floatPtr(26.10)
	outerLat, outerLng := floatPtr(44.50), floatPtr(26.20)

	tests := []struct {
		name  string
		lat   *float64
		lng   *float64
		year  *int
		score float64
		class string
	}{
		{"central pre-war", centralLat, centralLng, intPtr(1935), 0.85, models.RiskRS1},
		{"central seventies", centralLat, centralLng, intPtr(1970), 0.75, models.RiskRS1},
		{"central unknown year", centralLat, centralLng, nil, 0.65, models.RiskRS2},
		{"outer pre-war", outerLat, outerLng, intPtr(1930), 0.65, models.RiskRS2},
		{"outer modern", outerLat, outerLng, intPtr(2018), 0.3, models.RiskNone},
		{"central 2005", centralLat, centralLng, intPtr(2005), 0.55, models.RiskRS2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, class, _ := ComputeSeismic(cfg, tt.lat, tt.lng, tt.year)
			require.NotNil(t, score)
			assert.InDelta(t, tt.score, *score, 1e-9)
			assert.Equal(t, tt.class, class)
		})
	}

	score, class, frag := ComputeSeismic(cfg, nil, outerLng, intPtr(1930))
	assert.Nil(t, score)
	assert.Equal(t, models.RiskUnknown, class)
	assert.Equal(t, "undefined", frag.Status)
}

func TestConditionBucket(t *testing.T) {
	cfg := DefaultConfig().Condition
	assert.Equal(t, models.ConditionNeedsRenovation, ConditionBucket(cfg, 0.1))
	assert.Equal(t, models.ConditionDecent, ConditionBucket(cfg, 0.5))
	assert.Equal(t, models.ConditionModern, ConditionBucket(cfg, 0.95))
	assert.Equal(t, models.ConditionNeedsRenovation, ConditionBucket(cfg, -3))
	assert.Equal(t, models.ConditionModern, ConditionBucket(cfg, 7))
	assert.Equal(t, models.ConditionDecent, ConditionBucket(cfg, 0.35))
	assert.Equal(t, models.ConditionModern, ConditionBucket(cfg, 0.75))
}

type countingScorer struct {
	score float64
	err   error
	calls int
}

func (c *countingScorer) Score(ctx context.Context, photoURLs []string) (float64, error) {
	c.calls++
	return c.score, c.err
}

func TestConditionResolver(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	scorer := &countingScorer{score: 1.4}
	r := NewConditionResolver(DefaultConfig().Condition, scorer, store, nil)
	photos := []string{"https://img/1.jpg", "https://img/2.jpg"}

	first, frag := r.Resolve(ctx, photos)
	require.NotNil(t, first)
	assert.Equal(t, models.ConditionModern, first.Label)
	assert.Equal(t, 1.0, first.Score)
	assert.False(t, first.Cached)
	assert.Equal(t, "ok", frag.Status)

	second, _ := r.Resolve(ctx, photos)
	require.NotNil(t, second)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, scorer.calls, "identical photo sets reuse the cached score")

	reordered := []string{"https://img/2.jpg", "https://img/1.jpg"}
	assert.NotEqual(t, ConditionCacheKey(photos), ConditionCacheKey(reordered))

	t.Run("vision failure degrades to undefined", func(t *testing.T) {
		failing := NewConditionResolver(DefaultConfig().Condition, &countingScorer{err: errors.New("503")}, store, nil)
		res, frag := failing.Resolve(ctx, []string{"https://img/other.jpg"})
		assert.Nil(t, res)
		assert.Equal(t, "undefined", frag.Status)
	})

	t.Run("no photos", func(t *testing.T) {
		res, frag := r.Resolve(ctx, nil)
		assert.Nil(t, res)
		assert.Equal(t, "no photos", frag.Reason)
	})
}

func TestSuite_Score(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	cond := NewConditionResolver(DefaultConfig().Condition, &countingScorer{score: 0.5}, store, nil)
	suite := NewSuite(DefaultConfig(), cond, nil)
	suite.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }

	listing := &models.Listing{
		ListingID: "l1",
		Version:   2,
		PriceEur:  intPtr(90000),
		AreaM2:    floatPtr(60),
		AreaSlug:  strPtr("bucuresti-obor"),
		Lat:       floatPtr(44.45),
		Lng:       floatPtr(26.12),
		YearBuilt: intPtr(2000),
		Photos:    []string{"https://img/1.jpg"},
	}
	stat := &models.AreaStat{AreaSlug: "bucuresti-obor", MedianEurPerM2: 2000, SaleComps: 5}

	result, err := suite.Score(ctx, Input{Listing: listing, GroupID: "g1", AreaStat: stat, RentCompsPerM2: []float64{8, 10, 9, 11}})
	require.NoError(t, err)

	assert.Equal(t, "l1", result.ListingID)
	assert.Equal(t, "g1", result.GroupID)
	assert.Equal(t, 2, result.FeaturesVersion)
	assert.Equal(t, 100000, *result.AvmLow)
	assert.Equal(t, 140000, *result.AvmHigh)
	assert.Equal(t, models.BadgeUnderpriced, *result.PriceBadge)
	assert.Equal(t, models.ConditionDecent, *result.Condition)
	assert.Equal(t, models.RiskRS2, result.RiskClass)
	assert.Equal(t, models.TTSUnder30, *result.TTSBucket)
	require.NotNil(t, result.YieldNet)
	assert.InDelta(t, (9.5*60*12-15*60)/90000, *result.YieldNet, 1e-9)

	explain := result.Explain.Data()
	for name, frag := range map[string]models.ExplainFragment{
		"avm": explain.AVM, "tts": explain.TTS, "yield": explain.Yield,
		"seismic": explain.Seismic, "condition": explain.Condition,
	} {
		assert.Equal(t, "ok", frag.Status, name)
	}

	t.Run("missing inputs degrade single scores", func(t *testing.T) {
		bare := &models.Listing{ListingID: "l2", PriceEur: intPtr(50000)}
		result, err := suite.Score(ctx, Input{Listing: bare})
		require.NoError(t, err)
		assert.Nil(t, result.AvmMid)
		assert.Nil(t, result.PriceBadge)
		assert.Nil(t, result.TTSBucket)
		assert.Nil(t, result.YieldGross)
		assert.Nil(t, result.Condition)
		assert.Equal(t, models.RiskUnknown, result.RiskClass)

		explain := result.Explain.Data()
		assert.Equal(t, "undefined", explain.AVM.Status)
		assert.Equal(t, "undefined", explain.TTS.Status)
		assert.Equal(t, "undefined", explain.Seismic.Status)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := suite.Score(cancelled, Input{Listing: listing})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
