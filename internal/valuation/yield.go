package valuation

import (
	"sort"

	"real-estate-valuation/internal/models"
)

// RentFeatures are the listing features the fallback rent estimate uses
type RentFeatures struct {
	AreaM2 *float64
	Rooms  *int
}

const (
	rentFromComps    = "comps"
	rentFromFallback = "fallback"
)

// EstimateRent returns the monthly rent per m²: the median of the comps when
// there is at least one, else the configured fallback (studios rent 10% higher).
func EstimateRent(cfg YieldConfig, features RentFeatures, compsPerM2 []float64) (float64, string) {
	if len(compsPerM2) > 0 {
		return median(compsPerM2), rentFromComps
	}
	rent := cfg.FallbackRentPerM2
	if features.Rooms != nil && *features.Rooms == 1 {
		rent *= 1.10
	}
	return rent, rentFromFallback
}

// YieldResult is gross and net annual yield with its verdict
type YieldResult struct {
	Gross   float64
	Net     float64
	Verdict string
}

// ComputeYield returns the yields for a price, monthly rent and annual costs.
// ok is false when the price is not positive.
func ComputeYield(cfg YieldConfig, price, rentPerMonth, annualCosts float64) (YieldResult, bool) {
	if price <= 0 {
		return YieldResult{}, false
	}
	annualRent := rentPerMonth * 12
	r := YieldResult{
		Gross: annualRent / price,
		Net:   (annualRent - annualCosts) / price,
	}
	r.Verdict = models.YieldWeak
	if r.Net >= cfg.NetThreshold {
		r.Verdict = models.YieldOK
	}
	return r, true
}

// AnnualCosts estimates yearly ownership costs for a unit
func AnnualCosts(cfg YieldConfig, areaM2 float64) float64 {
	return cfg.AnnualCostFixed + cfg.AnnualCostPerM2*areaM2
}

// YieldInput is what the yield model depends on
type YieldInput struct {
	PriceEur       *int
	AreaM2         *float64
	Rooms          *int
	RentCompsPerM2 []float64
}

// ComputeYieldScore runs the yield model on listing features
func ComputeYieldScore(cfg YieldConfig, in YieldInput) (*YieldResult, models.ExplainFragment) {
	f := newFragment()
	f.Inputs["price_eur"] = inputValue(in.PriceEur)
	f.Inputs["area_m2"] = inputValue(in.AreaM2)
	f.Inputs["rent_comps"] = len(in.RentCompsPerM2)

	if in.PriceEur == nil || in.AreaM2 == nil || *in.AreaM2 <= 0 {
		return nil, undefined(f, "price_eur and area_m2 are required")
	}

	perM2, source := EstimateRent(cfg, RentFeatures{AreaM2: in.AreaM2, Rooms: in.Rooms}, in.RentCompsPerM2)
	rent := perM2 * *in.AreaM2
	costs := AnnualCosts(cfg, *in.AreaM2)
	f.Inputs["rent_source"] = source
	f.Values["rent_per_m2"] = perM2
	f.Values["rent_per_month"] = rent
	f.Values["annual_costs"] = costs

	result, ok := ComputeYield(cfg, float64(*in.PriceEur), rent, costs)
	if !ok {
		return nil, undefined(f, "price must be positive")
	}
	f.Values["gross"] = result.Gross
	f.Values["net"] = result.Net
	f.Values["threshold"] = cfg.NetThreshold
	return &result, f
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Median is the median of values; zero for an empty slice
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return median(values)
}
