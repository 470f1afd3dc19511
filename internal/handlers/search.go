package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"real-estate-valuation/internal/search"
)

// Search runs a filtered search over group documents
func (h *AdminHandler) Search(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	params := ParseFilterParams(c)
	result, err := h.search.FilterSearch(params)
	if err != nil {
		h.logger.Errorw("Admin: search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ParseFilterParams reads search filters from the query string. List
// filters accept repeated keys and comma-separated values.
func ParseFilterParams(c *gin.Context) search.FilterParams {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if err != nil || offset < 0 {
		offset = 0
	}

	params := search.FilterParams{
		Query:       c.Query("q"),
		Badges:      listParam(c, "badge"),
		RiskClasses: listParam(c, "risk"),
		AreaSlugs:   listParam(c, "area"),
		SortBy:      c.Query("sort_by"),
		Limit:       limit,
		Offset:      offset,
	}

	// Price range
	if v, err := strconv.Atoi(c.Query("min_price")); err == nil {
		params.MinPrice = &v
	}
	if v, err := strconv.Atoi(c.Query("max_price")); err == nil {
		params.MaxPrice = &v
	}
	if v, err := strconv.Atoi(c.Query("min_rooms")); err == nil {
		params.MinRooms = &v
	}
	if v, err := strconv.ParseFloat(c.Query("min_trust"), 64); err == nil {
		params.MinTrust = &v
	}
	return params
}

func listParam(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
