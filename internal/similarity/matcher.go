package similarity

import (
	"sort"

	"real-estate-valuation/internal/models"
)

// PhotoMatch is a near-duplicate hit against another listing. Distance is
// the smallest distance over all matching photo pairs.
type PhotoMatch struct {
	ListingID     string `json:"listing_id"`
	Distance      int    `json:"distance"`
	PhotoURL      string `json:"photo_url"`
	OtherPhotoURL string `json:"other_photo_url"`
	Pairs         int    `json:"pairs"`
}

// FindPhotoMatches compares own photos pairwise with the candidate pool and
// aggregates hits per other listing, closest first.
func FindPhotoMatches(listingID string, own, pool []models.PhotoAsset, threshold int) []PhotoMatch {
	byListing := make(map[string]*PhotoMatch)
	for _, a := range own {
		if a.Phash == nil {
			continue
		}
		for _, b := range pool {
			if b.Phash == nil || b.ListingID == listingID {
				continue
			}
			d := Distance(*a.Phash, *b.Phash)
			if d > threshold {
				continue
			}
			m, ok := byListing[b.ListingID]
			if !ok {
				m = &PhotoMatch{ListingID: b.ListingID, Distance: d, PhotoURL: a.URL, OtherPhotoURL: b.URL}
				byListing[b.ListingID] = m
			} else if d < m.Distance {
				m.Distance, m.PhotoURL, m.OtherPhotoURL = d, a.URL, b.URL
			}
			m.Pairs++
		}
	}

	matches := make([]PhotoMatch, 0, len(byListing))
	for _, m := range byListing {
		matches = append(matches, *m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ListingID < matches[j].ListingID
	})
	return matches
}

// MatchedListingIDs returns the listing IDs of matches in order
func MatchedListingIDs(matches []PhotoMatch) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ListingID
	}
	return ids
}
