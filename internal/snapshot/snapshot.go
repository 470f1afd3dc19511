package snapshot

import (
	"fmt"
	"sort"
	"time"

	"real-estate-valuation/internal/models"
)

// Build recomputes a group snapshot from scratch. memberIDs is the current
// member set in join order; listings holds the latest version of each member.
// Every field takes the most recently normalized non-null value.
func Build(canonicalID string, memberIDs []string, listings []models.Listing, builtAt time.Time) models.GroupSnapshot {
	byID := make(map[string]models.Listing, len(listings))
	for _, l := range listings {
		byID[l.ListingID] = l
	}

	present := make([]models.Listing, 0, len(memberIDs))
	for _, id := range memberIDs {
		if l, ok := byID[id]; ok {
			present = append(present, l)
		}
	}

	recent := append([]models.Listing(nil), present...)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].NormalizedAt.Equal(recent[j].NormalizedAt) {
			return recent[i].NormalizedAt.After(recent[j].NormalizedAt)
		}
		return recent[i].ListingID < recent[j].ListingID
	})

	return models.GroupSnapshot{
		CanonicalListingID: canonicalID,
		MemberIDs:          append([]string(nil), memberIDs...),
		Features:           mergeFeatures(recent),
		Photos:             unionPhotos(canonicalID, present),
		PriceHistory:       priceHistory(present),
		BuiltAt:            builtAt,
	}
}

func mergeFeatures(recent []models.Listing) models.MergedFeatures {
	var f models.MergedFeatures
	for i := range recent {
		l := &recent[i]
		if f.PriceEur == nil && f.PriceRon == nil && (l.PriceEur != nil || l.PriceRon != nil) {
			f.PriceEur, f.PriceRon = l.PriceEur, l.PriceRon
		}
		f.AreaM2 = firstFloat(f.AreaM2, l.AreaM2)
		f.Rooms = firstInt(f.Rooms, l.Rooms)
		f.Floor = firstInt(f.Floor, l.Floor)
		f.YearBuilt = firstInt(f.YearBuilt, l.YearBuilt)
		if f.AddressRaw == nil && l.AddressRaw != "" {
			addr := l.AddressRaw
			f.AddressRaw = &addr
		}
		if f.AreaSlug == nil && l.AreaSlug != nil {
			f.AreaSlug = l.AreaSlug
		}
		if f.Lat == nil && l.HasCoordinates() {
			f.Lat, f.Lng = l.Lat, l.Lng
		}
		f.DistMetroM = firstInt(f.DistMetroM, l.DistMetroM)
		f.TimeToMetroMin = firstInt(f.TimeToMetroMin, l.TimeToMetroMin)
	}
	return f
}

// unionPhotos lists the canonical member's photos first, then the others in
// join order, without repeating a URL.
func unionPhotos(canonicalID string, present []models.Listing) []string {
	ordered := make([]models.Listing, 0, len(present))
	for _, l := range present {
		if l.ListingID == canonicalID {
			ordered = append(ordered, l)
		}
	}
	for _, l := range present {
		if l.ListingID != canonicalID {
			ordered = append(ordered, l)
		}
	}

	seen := make(map[string]bool)
	photos := []string{}
	for _, l := range ordered {
		for _, u := range l.Photos {
			if !seen[u] {
				seen[u] = true
				photos = append(photos, u)
			}
		}
	}
	return photos
}

func priceHistory(present []models.Listing) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(present))
	for _, l := range present {
		points = append(points, models.PricePoint{
			ListingID:  l.ListingID,
			SourceURL:  l.SourceURL,
			PriceEur:   l.PriceEur,
			PriceRon:   l.PriceRon,
			ObservedAt: l.FirstSeenAt,
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].ObservedAt.Equal(points[j].ObservedAt) {
			return points[i].ObservedAt.Before(points[j].ObservedAt)
		}
		return points[i].ListingID < points[j].ListingID
	})
	return points
}

// Change is one field difference between two snapshots
type Change struct {
	Field     string   `json:"field"`
	OldValue  string   `json:"old_value"`
	NewValue  string   `json:"new_value"`
	Magnitude *float64 `json:"magnitude,omitempty"`
}

const (
	FieldCanonical = "canonical"
	FieldMembers   = "members"
	FieldPrice     = "price_eur"
	FieldArea      = "area_m2"
	FieldRooms     = "rooms"
	FieldYearBuilt = "year_built"
	FieldAreaSlug  = "area_slug"
	FieldPhotos    = "photos"
)

// DetectChanges compares a previous snapshot with a rebuilt one
func DetectChanges(prev, next models.GroupSnapshot) []Change {
	changes := []Change{}

	if prev.CanonicalListingID != next.CanonicalListingID {
		changes = append(changes, Change{Field: FieldCanonical, OldValue: prev.CanonicalListingID, NewValue: next.CanonicalListingID})
	}
	if len(prev.MemberIDs) != len(next.MemberIDs) {
		changes = append(changes, Change{
			Field:    FieldMembers,
			OldValue: fmt.Sprintf("%d", len(prev.MemberIDs)),
			NewValue: fmt.Sprintf("%d", len(next.MemberIDs)),
		})
	}

	pf, nf := prev.Features, next.Features
	if !intPtrEqual(pf.PriceEur, nf.PriceEur) {
		c := Change{Field: FieldPrice, OldValue: intString(pf.PriceEur), NewValue: intString(nf.PriceEur)}
		if pf.PriceEur != nil && nf.PriceEur != nil {
			magnitude := float64(*nf.PriceEur - *pf.PriceEur)
			c.Magnitude = &magnitude
		}
		changes = append(changes, c)
	}
	if !float64PtrEqual(pf.AreaM2, nf.AreaM2) {
		changes = append(changes, Change{Field: FieldArea, OldValue: floatString(pf.AreaM2), NewValue: floatString(nf.AreaM2)})
	}
	if !intPtrEqual(pf.Rooms, nf.Rooms) {
		changes = append(changes, Change{Field: FieldRooms, OldValue: intString(pf.Rooms), NewValue: intString(nf.Rooms)})
	}
	if !intPtrEqual(pf.YearBuilt, nf.YearBuilt) {
		changes = append(changes, Change{Field: FieldYearBuilt, OldValue: intString(pf.YearBuilt), NewValue: intString(nf.YearBuilt)})
	}
	if stringValue(pf.AreaSlug) != stringValue(nf.AreaSlug) {
		changes = append(changes, Change{Field: FieldAreaSlug, OldValue: stringValue(pf.AreaSlug), NewValue: stringValue(nf.AreaSlug)})
	}
	if len(prev.Photos) != len(next.Photos) {
		changes = append(changes, Change{
			Field:    FieldPhotos,
			OldValue: fmt.Sprintf("%d", len(prev.Photos)),
			NewValue: fmt.Sprintf("%d", len(next.Photos)),
		})
	}

	return changes
}

// Summary renders changes as "field: old -> new" notes
func Summary(changes []Change) []string {
	notes := make([]string, 0, len(changes))
	for _, c := range changes {
		notes = append(notes, fmt.Sprintf("%s: %s -> %s", c.Field, c.OldValue, c.NewValue))
	}
	return notes
}

// Helper functions
func firstInt(current, candidate *int) *int {
	if current != nil {
		return current
	}
	return candidate
}

func firstFloat(current, candidate *float64) *float64 {
	if current != nil {
		return current
	}
	return candidate
}

func intPtrEqual(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func intString(v *int) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%d", *v)
}

func floatString(v *float64) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%.2f", *v)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
