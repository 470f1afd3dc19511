package valuation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"real-estate-valuation/internal/models"
)

// Input is everything the suite scores one listing from. Listing carries the
// features after group backfill; AreaStat and rent comps are optional.
type Input struct {
	Listing        *models.Listing
	GroupID        string
	AreaStat       *models.AreaStat
	RentCompsPerM2 []float64
}

// Suite runs the five valuation models and merges them into one ScoreResult
type Suite struct {
	cfg       Config
	condition *ConditionResolver
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewSuite creates a model suite. condition may be nil, which leaves the
// condition score undefined.
func NewSuite(cfg Config, condition *ConditionResolver, logger *zap.SugaredLogger) *Suite {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Suite{cfg: cfg, condition: condition, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Score computes a full ScoreResult. Each model degrades on its own when an
// input is missing; only context cancellation is returned as an error.
func (s *Suite) Score(ctx context.Context, in Input) (*models.ScoreResult, error) {
	l := in.Listing
	now := s.now()
	result := &models.ScoreResult{
		ListingID:       l.ListingID,
		GroupID:         in.GroupID,
		FeaturesVersion: l.Version,
		RiskClass:       models.RiskUnknown,
		ComputedAt:      now,
	}
	var explain models.ScoreExplain

	// Condition feeds the AVM adjustments, so it resolves first.
	explain.Condition = undefined(newFragment(), "vision scorer not configured")
	if s.condition != nil {
		cond, frag := s.condition.Resolve(ctx, l.Photos)
		explain.Condition = frag
		if cond != nil {
			result.Condition = &cond.Label
			result.ConditionScore = &cond.Score
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var band *Band
	var g errgroup.Group
	g.Go(func() error {
		var frag models.ExplainFragment
		band, frag = ComputeAVM(s.cfg.AVM, AVMInput{
			AreaSlug:   l.AreaSlug,
			AreaM2:     l.AreaM2,
			Rooms:      l.Rooms,
			Floor:      l.Floor,
			YearBuilt:  l.YearBuilt,
			DistMetroM: l.DistMetroM,
			Condition:  result.Condition,
			Stat:       in.AreaStat,
		})
		explain.AVM = frag
		return nil
	})
	g.Go(func() error {
		y, frag := ComputeYieldScore(s.cfg.Yield, YieldInput{
			PriceEur:       l.PriceEur,
			AreaM2:         l.AreaM2,
			Rooms:          l.Rooms,
			RentCompsPerM2: in.RentCompsPerM2,
		})
		explain.Yield = frag
		if y != nil {
			result.YieldGross, result.YieldNet, result.YieldVerdict = &y.Gross, &y.Net, &y.Verdict
		}
		return nil
	})
	g.Go(func() error {
		score, class, frag := ComputeSeismic(s.cfg.Seismic, l.Lat, l.Lng, l.YearBuilt)
		explain.Seismic = frag
		result.RiskScore, result.RiskClass = score, class
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var delta *float64
	if band != nil {
		conf := band.Confidence
		result.AvmLow, result.AvmMid, result.AvmHigh, result.AvmConf = &band.Low, &band.Mid, &band.High, &conf
		if l.PriceEur != nil && band.Mid > 0 {
			d := PriceDelta(*l.PriceEur, band.Mid)
			delta = &d
		}
	}
	result.PriceBadge = ComputePriceBadge(l.PriceEur, result.AvmLow, result.AvmMid, result.AvmHigh)
	explain.AVM.Inputs["asking_eur"] = inputValue(l.PriceEur)
	if result.PriceBadge != nil {
		explain.AVM.Inputs["price_badge"] = *result.PriceBadge
	}

	result.TTSBucket, explain.TTS = ComputeTTS(s.cfg.TTS, delta, l.DemandScore, SeasonFor(s.cfg.TTS, now))

	result.Explain = datatypes.NewJSONType(explain)
	s.logger.Debugw("Valuation: scored listing",
		"listing_id", l.ListingID,
		"badge", result.PriceBadge,
		"risk", result.RiskClass,
	)
	return result, nil
}
