package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowercases, strips diacritics and joins words with '-'
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// AreaSlug builds the area key from a city and an optional neighborhood
func AreaSlug(city, neighborhood string) string {
	city, neighborhood = Slugify(city), Slugify(neighborhood)
	switch {
	case city == "":
		return neighborhood
	case neighborhood == "" || neighborhood == city:
		return city
	default:
		return city + "-" + neighborhood
	}
}

var streetPrefixes = []string{
	"str", "strada", "bd", "blvd", "bulevardul", "calea", "sos", "soseaua",
	"aleea", "intrarea", "piata", "splaiul", "nr", "bloc", "bl", "sc", "ap", "et",
}

func isStreetPart(part string) bool {
	slug := Slugify(part)
	if slug == "" {
		return true
	}
	first := strings.SplitN(slug, "-", 2)[0]
	for _, p := range streetPrefixes {
		if first == p {
			return true
		}
	}
	if strings.HasPrefix(slug, "sector-") {
		return false
	}
	return strings.IndexFunc(part, unicode.IsDigit) >= 0
}

// SlugFromAddress derives a best-effort area slug from address tokens.
// The last non-street part is taken as the city, the first as the neighborhood.
func SlugFromAddress(address string) string {
	var parts []string
	for _, p := range strings.Split(address, ",") {
		p = strings.TrimSpace(p)
		if !isStreetPart(p) {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return Slugify(parts[0])
	default:
		return AreaSlug(parts[len(parts)-1], parts[0])
	}
}
