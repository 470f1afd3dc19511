package valuation

import "real-estate-valuation/internal/models"

// ComputePriceBadge classifies the asking price against the band. It is nil
// when any input is missing; asking prices equal to a bound are Fair.
func ComputePriceBadge(asking, low, mid, high *int) *string {
	if asking == nil || low == nil || mid == nil || high == nil {
		return nil
	}
	badge := models.BadgeFair
	switch {
	case *asking < *low:
		badge = models.BadgeUnderpriced
	case *asking > *high:
		badge = models.BadgeOverpriced
	}
	return &badge
}
