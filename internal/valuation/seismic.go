package valuation

import (
	"real-estate-valuation/internal/models"
)

const unknownYearPenalty = 0.15

// yearPenalty follows Romanian building code eras: pre-war, pre-1977
// earthquake, the P100 code of 1978-1990, post-1990 and modern codes.
func yearPenalty(year *int) float64 {
	if year == nil {
		return unknownYearPenalty
	}
	switch y := *year; {
	case y < 1940:
		return 0.35
	case y <= 1977:
		return 0.25
	case y <= 1990:
		return 0.15
	case y <= 2010:
		return 0.05
	default:
		return 0
	}
}

// RiskClass maps a clamped risk score onto a discrete class
func RiskClass(score float64) string {
	switch {
	case score >= 0.75:
		return models.RiskRS1
	case score >= 0.55:
		return models.RiskRS2
	default:
		return models.RiskNone
	}
}

// ComputeSeismic scores structural risk. Without coordinates the class is
// unknown and no score is produced.
func ComputeSeismic(cfg SeismicConfig, lat, lng *float64, year *int) (*float64, string, models.ExplainFragment) {
	f := newFragment()
	f.Inputs["lat"] = inputValue(lat)
	f.Inputs["lng"] = inputValue(lng)
	f.Inputs["year_built"] = inputValue(year)

	if lat == nil || lng == nil {
		return nil, models.RiskUnknown, undefined(f, "coordinates missing")
	}

	base := cfg.OuterBase
	zone := "outer"
	if cfg.Central.Contains(*lat, *lng) {
		base = cfg.CentralBase
		zone = "central"
	}
	f.Inputs["zone"] = zone
	f.Values["base"] = base

	penalty := yearPenalty(year)
	f.Adjustments = append(f.Adjustments, models.Adjustment{Name: "year_built", Kind: kindAdditive, Amount: penalty})

	score := clamp01(base + penalty)
	class := RiskClass(score)
	f.Values["score"] = score
	return &score, class, f
}
