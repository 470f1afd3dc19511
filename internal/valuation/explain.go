package valuation

import "real-estate-valuation/internal/models"

const (
	statusOK        = "ok"
	statusUndefined = "undefined"
)

const (
	kindMultiplicative = "multiplicative"
	kindAdditive       = "additive"
)

func newFragment() models.ExplainFragment {
	return models.ExplainFragment{
		Status:      statusOK,
		Inputs:      map[string]any{},
		Adjustments: []models.Adjustment{},
		Values:      map[string]float64{},
	}
}

func undefined(f models.ExplainFragment, reason string) models.ExplainFragment {
	f.Status = statusUndefined
	f.Reason = reason
	return f
}

// inputValue keeps nil pointers as explicit nulls in the explain payload
func inputValue[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
