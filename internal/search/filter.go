package search

import (
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

type FilterParams struct {
	Query       string
	Badges      []string
	RiskClasses []string
	AreaSlugs   []string
	MinPrice    *int
	MaxPrice    *int
	MinRooms    *int
	MinTrust    *float64
	SortBy      string
	Limit       int64
	Offset      int64
}

// FilterSearch performs a filtered search over group documents
func (s *SearchClient) FilterSearch(params FilterParams) (*SearchResult, error) {
	if params.Limit == 0 {
		params.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if filterStr := BuildFilter(params); filterStr != "" {
		searchReq.Filter = filterStr
	}
	if params.SortBy != "" {
		searchReq.Sort = []string{params.SortBy}
	}

	return s.search(params.Query, searchReq)
}

// BuildFilter renders the Meilisearch filter expression for params
func BuildFilter(params FilterParams) string {
	var filters []string

	if f := anyOf("price_badge", params.Badges); f != "" {
		filters = append(filters, f)
	}
	if f := anyOf("risk_class", params.RiskClasses); f != "" {
		filters = append(filters, f)
	}
	if f := anyOf("area_slug", params.AreaSlugs); f != "" {
		filters = append(filters, f)
	}

	// Price range filter
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price_eur >= %d", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price_eur <= %d", *params.MaxPrice))
	}
	if params.MinRooms != nil {
		filters = append(filters, fmt.Sprintf("rooms >= %d", *params.MinRooms))
	}
	if params.MinTrust != nil {
		filters = append(filters, fmt.Sprintf("trust_score >= %g", *params.MinTrust))
	}

	return strings.Join(filters, " AND ")
}

func anyOf(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s = '%s'", field, strings.ReplaceAll(v, "'", "\\'"))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " OR "))
}
