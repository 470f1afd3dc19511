package valuation

import (
	"math"

	"real-estate-valuation/internal/models"
)

// AVMInput is what the price band depends on
type AVMInput struct {
	AreaSlug   *string
	AreaM2     *float64
	Rooms      *int
	Floor      *int
	YearBuilt  *int
	DistMetroM *int
	Condition  *string
	Stat       *models.AreaStat
}

// Band is an AVM price band in EUR
type Band struct {
	Low        int
	Mid        int
	High       int
	Confidence float64
}

const (
	baselineFromStats   = "area_stats"
	baselineConfigured  = "configured"
	baselineFromDefault = "default"
)

// BaselineEurPerM2 picks the area's EUR/m²: area stats with sale comps first,
// then the configured per-area baseline, then the global default.
func BaselineEurPerM2(cfg AVMConfig, areaSlug *string, stat *models.AreaStat) (float64, string) {
	if stat != nil && stat.SaleComps > 0 && stat.MedianEurPerM2 > 0 {
		return stat.MedianEurPerM2, baselineFromStats
	}
	if areaSlug != nil {
		if v, ok := cfg.Baselines[*areaSlug]; ok && v > 0 {
			return v, baselineConfigured
		}
	}
	return cfg.DefaultEurPerM2, baselineFromDefault
}

// Confidence grows with the number of sale comps behind the baseline
func Confidence(cfg AVMConfig, stat *models.AreaStat) float64 {
	if stat == nil || stat.SaleComps <= 0 {
		return clamp01(cfg.NoStatsConfidence)
	}
	k := cfg.ConfidenceK
	if k <= 0 {
		k = 10
	}
	n := float64(stat.SaleComps)
	return clamp01(n / (n + k))
}

// ComputeAVM returns the price band, or nil when area or baseline is missing
func ComputeAVM(cfg AVMConfig, in AVMInput) (*Band, models.ExplainFragment) {
	f := newFragment()
	f.Inputs["area_slug"] = inputValue(in.AreaSlug)
	f.Inputs["area_m2"] = inputValue(in.AreaM2)
	f.Inputs["rooms"] = inputValue(in.Rooms)
	f.Inputs["floor"] = inputValue(in.Floor)
	f.Inputs["year_built"] = inputValue(in.YearBuilt)
	f.Inputs["dist_metro_m"] = inputValue(in.DistMetroM)
	f.Inputs["condition"] = inputValue(in.Condition)

	if in.AreaM2 == nil || *in.AreaM2 <= 0 {
		return nil, undefined(f, "area_m2 missing")
	}

	baseline, source := BaselineEurPerM2(cfg, in.AreaSlug, in.Stat)
	f.Inputs["baseline_eur_per_m2"] = baseline
	f.Inputs["baseline_source"] = source
	if in.Stat != nil {
		f.Inputs["sale_comps"] = in.Stat.SaleComps
	}
	if baseline <= 0 {
		return nil, undefined(f, "no baseline price for area")
	}

	mid := baseline * *in.AreaM2
	for _, adj := range avmAdjustments(in) {
		mid *= 1 + adj.Amount
		f.Adjustments = append(f.Adjustments, adj)
	}

	conf := Confidence(cfg, in.Stat)
	spread := cfg.MaxSpread - (cfg.MaxSpread-cfg.MinSpread)*conf

	band := &Band{
		Low:        int(math.Round(mid * (1 - spread))),
		Mid:        int(math.Round(mid)),
		High:       int(math.Round(mid * (1 + spread))),
		Confidence: conf,
	}
	f.Values["low"] = float64(band.Low)
	f.Values["mid"] = float64(band.Mid)
	f.Values["high"] = float64(band.High)
	f.Values["confidence"] = conf
	f.Values["spread"] = spread
	return band, f
}

func avmAdjustments(in AVMInput) []models.Adjustment {
	var adj []models.Adjustment
	add := func(name string, amount float64) {
		if amount != 0 {
			adj = append(adj, models.Adjustment{Name: name, Kind: kindMultiplicative, Amount: amount})
		}
	}

	if in.Rooms != nil {
		switch {
		case *in.Rooms == 1:
			add("rooms", 0.05)
		case *in.Rooms >= 4:
			add("rooms", -0.05)
		}
	}

	if in.Floor != nil {
		switch {
		case *in.Floor < 0:
			add("floor", -0.10)
		case *in.Floor == 0:
			add("floor", -0.05)
		}
	}

	if in.YearBuilt != nil {
		add("year_built", yearAdjustment(*in.YearBuilt))
	}

	if in.DistMetroM != nil {
		d := *in.DistMetroM
		switch {
		case d <= 500:
			add("metro", 0.05)
		case d <= 1000:
			add("metro", 0.02)
		case d > 2000:
			add("metro", -0.04)
		}
	}

	if in.Condition != nil {
		switch *in.Condition {
		case models.ConditionNeedsRenovation:
			add("condition", -0.10)
		case models.ConditionModern:
			add("condition", 0.07)
		}
	}
	return adj
}

func yearAdjustment(year int) float64 {
	switch {
	case year < 1940:
		return -0.08
	case year <= 1977:
		return -0.10
	case year <= 1990:
		return -0.05
	case year <= 2010:
		return 0
	default:
		return 0.08
	}
}
