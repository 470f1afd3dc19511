package scraper

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
)

// ExtractRawListing turns a listing page into a RawListing. Fields stay as
// page text; parsing into typed values is the normalizer's job.
func ExtractRawListing(sourceURL string, r io.Reader) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	raw := &models.RawListing{SourceURL: sourceURL}
	if canonical := extractCanonicalURL(doc); canonical != "" {
		raw.SourceURL = resolveURL(sourceURL, canonical)
	}
	raw.Title = extractTitle(doc)

	photos := applyJSONLD(doc, raw)
	applyLabelledFields(doc, raw)
	applyMetaFallbacks(doc, raw)

	photos = append(photos, extractGalleryImages(doc)...)
	raw.PhotoURLs = absoluteUnique(raw.SourceURL, photos)
	raw.DemandScore = extractDemand(doc)
	raw.ContentHash = ContentHash(raw)
	return raw, nil
}

// ContentHash fingerprints the scraped fields so unchanged pages are not reprocessed
func ContentHash(raw *models.RawListing) string {
	parts := []string{
		raw.Title, raw.PriceText, raw.Currency, raw.AreaText, raw.RoomsText,
		raw.FloorText, raw.YearBuilt, raw.Address, raw.MetroText,
		strings.Join(raw.PhotoURLs, ","),
	}
	if raw.DemandScore != nil {
		parts = append(parts, strconv.FormatFloat(*raw.DemandScore, 'f', -1, 64))
	}
	hash := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:])
}

// extractCanonicalURL extracts canonical URL from HTML
func extractCanonicalURL(doc *goquery.Document) string {
	if canonicalURL, exists := doc.Find("link[rel='canonical']").Attr("href"); exists {
		return strings.TrimSpace(canonicalURL)
	}
	return ""
}

// extractTitle uses og:title, then <title>, then the first <h1>
func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// applyJSONLD reads schema.org data and returns the photo URLs it lists
func applyJSONLD(doc *goquery.Document, raw *models.RawListing) []string {
	var photos []string
	doc.Find("script[type='application/ld+json']").Each(func(i int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		for _, node := range ldNodes(payload) {
			photos = append(photos, applyLDNode(node, raw)...)
		}
	})
	return photos
}

// ldNodes flattens arrays and @graph containers into objects
func ldNodes(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, ldNodes(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			return ldNodes(graph)
		}
		return []map[string]any{t}
	}
	return nil
}

func applyLDNode(node map[string]any, raw *models.RawListing) []string {
	if offers, ok := node["offers"]; ok {
		for _, offer := range ldNodes(offers) {
			setIfEmpty(&raw.PriceText, scalarText(offer["price"]))
			setIfEmpty(&raw.Currency, scalarText(offer["priceCurrency"]))
		}
	}
	if size, ok := node["floorSize"].(map[string]any); ok {
		setIfEmpty(&raw.AreaText, strings.TrimSpace(scalarText(size["value"])+" "+scalarText(size["unitText"])))
	} else {
		setIfEmpty(&raw.AreaText, scalarText(node["floorSize"]))
	}
	setIfEmpty(&raw.RoomsText, scalarText(node["numberOfRooms"]))
	setIfEmpty(&raw.FloorText, scalarText(node["floorLevel"]))
	setIfEmpty(&raw.YearBuilt, scalarText(node["yearBuilt"]))

	switch addr := node["address"].(type) {
	case string:
		setIfEmpty(&raw.Address, addr)
	case map[string]any:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion"} {
			if v := scalarText(addr[key]); v != "" {
				parts = append(parts, v)
			}
		}
		setIfEmpty(&raw.Address, strings.Join(parts, ", "))
	}

	var photos []string
	switch img := node["image"].(type) {
	case string:
		photos = append(photos, img)
	case []any:
		for _, item := range img {
			if s, ok := item.(string); ok {
				photos = append(photos, s)
			}
		}
	}
	return photos
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// applyLabelledFields reads "label: value" pairs from definition lists,
// tables and list items.
func applyLabelledFields(doc *goquery.Document, raw *models.RawListing) {
	doc.Find("dt").Each(func(i int, s *goquery.Selection) {
		assignLabel(raw, s.Text(), s.NextFiltered("dd").Text())
	})
	doc.Find("tr").Each(func(i int, s *goquery.Selection) {
		assignLabel(raw, s.Find("th").First().Text(), s.Find("td").First().Text())
	})
	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		label, value, ok := strings.Cut(s.Text(), ":")
		if ok {
			assignLabel(raw, label, value)
		}
	})
}

func assignLabel(raw *models.RawListing, label, value string) {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return
	}
	if target := labelField(raw, normalize.Slugify(label)); target != nil {
		setIfEmpty(target, value)
	}
}

// labelField maps a slugified label to the raw field it fills
func labelField(raw *models.RawListing, label string) *string {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(label, k) {
				return true
			}
		}
		return false
	}
	switch {
	case label == "":
		return nil
	case has("pe-m", "m2", "mp", "per-sq") && has("pret", "price"):
		return nil
	case has("pret", "price"):
		return &raw.PriceText
	case has("moneda", "currency"):
		return &raw.Currency
	case has("suprafata", "surface", "area"):
		return &raw.AreaText
	case has("camere", "rooms"):
		return &raw.RoomsText
	case has("etaje", "regim-inaltime"):
		return nil
	case has("etaj", "floor"):
		return &raw.FloorText
	case has("constructie", "constructiei", "year-built", "built"):
		return &raw.YearBuilt
	case has("metrou", "metro"):
		return &raw.MetroText
	case has("adresa", "address", "localizare", "zona"):
		return &raw.Address
	}
	return nil
}

func applyMetaFallbacks(doc *goquery.Document, raw *models.RawListing) {
	if v, ok := doc.Find("meta[property='product:price:amount']").Attr("content"); ok {
		setIfEmpty(&raw.PriceText, v)
	}
	if v, ok := doc.Find("meta[property='product:price:currency']").Attr("content"); ok {
		setIfEmpty(&raw.Currency, v)
	}
}

// extractGalleryImages collects og:image and gallery photos, preferring lazy-load sources
func extractGalleryImages(doc *goquery.Document) []string {
	var urls []string
	doc.Find("meta[property='og:image']").Each(func(i int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			urls = append(urls, v)
		}
	})
	doc.Find(".gallery img, [data-gallery] img").Each(func(i int, s *goquery.Selection) {
		for _, attr := range []string{"data-src", "data-lazy", "src"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				urls = append(urls, v)
				return
			}
		}
	})
	return urls
}

// extractDemand reads a site-provided demand indicator in [0,1] if present
func extractDemand(doc *goquery.Document) *float64 {
	v, ok := doc.Find("[data-demand-score]").First().Attr("data-demand-score")
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func absoluteUnique(base string, urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		abs := resolveURL(base, strings.TrimSpace(u))
		if !strings.HasPrefix(abs, "http://") && !strings.HasPrefix(abs, "https://") {
			continue
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}
