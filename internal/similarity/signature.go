package similarity

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"real-estate-valuation/internal/normalize"
)

// Signature builds the exact-match key of a listing: canonical URL, EUR price
// and rounded area, case-folded. Missing parts stay empty so two listings
// without a price still only match on the same URL.
func Signature(sourceURL string, priceEur *int, areaM2 *float64) string {
	price := ""
	if priceEur != nil {
		price = strconv.Itoa(*priceEur)
	}
	area := ""
	if areaM2 != nil {
		area = strconv.Itoa(int(math.Round(*areaM2)))
	}
	return strings.ToLower(canonicalURL(sourceURL) + "|" + price + "|" + area)
}

// canonicalURL folds mobile and www hosts onto the bare domain
func canonicalURL(sourceURL string) string {
	normalized := normalize.NormalizeURL(sourceURL)
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return normalized
	}
	host := strings.ToLower(u.Host)
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	u.Host = host
	return u.String()
}
