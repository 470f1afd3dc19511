package valuation

import (
	"slices"
	"time"

	"real-estate-valuation/internal/models"
)

// Season is the market season
type Season string

const (
	SeasonLow  Season = "low"
	SeasonHigh Season = "high"
)

// SeasonFor maps a date onto the configured high season months
func SeasonFor(cfg TTSConfig, t time.Time) Season {
	if slices.Contains(cfg.HighSeasonMonths, t.Month()) {
		return SeasonHigh
	}
	return SeasonLow
}

// PriceDelta is the signed fraction of asking over the AVM mid
func PriceDelta(asking, mid int) float64 {
	return float64(asking-mid) / float64(mid)
}

const neutralDemand = 0.5

// ComputeTTS buckets the expected time to sell. Cheaper than the band and
// higher demand push toward "<30", expensive and low demand toward "90+".
// A missing demand score counts as neutral; a missing price delta leaves the
// bucket undefined.
func ComputeTTS(cfg TTSConfig, priceDelta, demand *float64, season Season) (*string, models.ExplainFragment) {
	f := newFragment()
	f.Inputs["price_delta"] = inputValue(priceDelta)
	f.Inputs["demand_score"] = inputValue(demand)
	f.Inputs["season"] = string(season)

	if priceDelta == nil {
		return nil, undefined(f, "price delta needs asking price and AVM mid")
	}

	d := neutralDemand
	if demand != nil {
		d = clamp01(*demand)
	}

	deltaTerm := -*priceDelta * cfg.DeltaWeight
	demandTerm := (d - neutralDemand) * cfg.DemandWeight
	seasonTerm := -cfg.SeasonBonus
	if season == SeasonHigh {
		seasonTerm = cfg.SeasonBonus
	}
	f.Adjustments = append(f.Adjustments,
		models.Adjustment{Name: "price_delta", Kind: kindAdditive, Amount: deltaTerm},
		models.Adjustment{Name: "demand", Kind: kindAdditive, Amount: demandTerm},
		models.Adjustment{Name: "season", Kind: kindAdditive, Amount: seasonTerm},
	)

	pressure := deltaTerm + demandTerm + seasonTerm
	f.Values["pressure"] = pressure

	bucket := ttsBucket(pressure)
	return &bucket, f
}

func ttsBucket(pressure float64) string {
	switch {
	case pressure >= 0.75:
		return models.TTSUnder30
	case pressure >= 0:
		return models.TTS30To60
	case pressure >= -0.75:
		return models.TTS60To90
	default:
		return models.TTSOver90
	}
}
