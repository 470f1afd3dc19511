package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/dedup"
)

// GetGroup returns a group with its snapshot, members and event log
func (h *AdminHandler) GetGroup(c *gin.Context) {
	ctx := c.Request.Context()
	groupID := c.Param("id")

	group, err := h.store.GetGroup(ctx, groupID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	members, err := h.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	events, err := h.store.ListGroupEvents(ctx, groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group":   group,
		"members": members,
		"events":  events,
	})
}

// SetCanonical pins the group's canonical listing by source URL
func (h *AdminHandler) SetCanonical(c *gin.Context) {
	var req struct {
		SourceURL string `json:"source_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	groupID := c.Param("id")
	err := h.grouper.SetCanonical(c.Request.Context(), groupID, req.SourceURL)
	switch {
	case errors.Is(err, dedup.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, dedup.ErrNotMember):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Errorw("Admin: set canonical failed", "group_id", groupID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	group, err := h.store.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Infow("Admin: canonical pinned", "group_id", groupID, "source_url", req.SourceURL)
	c.JSON(http.StatusOK, group)
}

// GetScore returns the listing's latest ScoreResult
func (h *AdminHandler) GetScore(c *gin.Context) {
	score, err := h.store.GetScoreResult(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Score not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, score)
}

// GetTrust returns the listing's latest TrustSnapshot
func (h *AdminHandler) GetTrust(c *gin.Context) {
	snapshot, err := h.store.GetTrustSnapshot(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trust snapshot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
