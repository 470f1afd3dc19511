package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"real-estate-valuation/internal/models"
)

// IngestRawListing stores one scraped record and logs the crawl visit.
// The record is normalized by the next dedup_attach run.
func (h *AdminHandler) IngestRawListing(c *gin.Context) {
	var raw models.RawListing
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := url.Parse(strings.TrimSpace(raw.SourceURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_url must be an absolute http(s) URL"})
		return
	}

	// Identity and processing state are owned by the store
	raw.ID = ""
	raw.Status = ""
	raw.Attempts = 0
	raw.LastError = ""
	raw.NextRetryAt = nil

	changed, err := h.runner.Ingest(c.Request.Context(), &raw)
	if err != nil {
		h.logger.Errorw("Admin: ingest failed", "url", raw.SourceURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":         raw.ID,
		"source_url": raw.SourceURL,
		"changed":    changed,
		"status":     raw.Status,
	})
}
