package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"real-estate-valuation/internal/batch"
	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/scheduler"
	"real-estate-valuation/internal/search"
)

// JobRunner runs batch jobs and ingests scraped records
type JobRunner interface {
	Run(ctx context.Context, job string) (*batch.BatchResult, error)
	Ingest(ctx context.Context, raw *models.RawListing) (bool, error)
}

// CanonicalSetter pins a group's canonical listing
type CanonicalSetter interface {
	SetCanonical(ctx context.Context, groupID, sourceURL string) error
}

// Searcher runs filter searches over group documents
type Searcher interface {
	FilterSearch(params search.FilterParams) (*search.SearchResult, error)
}

// ScheduleLister exposes the cron entries
type ScheduleLister interface {
	Entries() []scheduler.Entry
}

// QueueStatter exposes the polling worker state
type QueueStatter interface {
	GetQueueStats() map[string]interface{}
}

// Deps are the handler collaborators. Search, Scheduler and Worker are optional.
type Deps struct {
	Store     database.Store
	Runner    JobRunner
	Grouper   CanonicalSetter
	Search    Searcher
	Scheduler ScheduleLister
	Worker    QueueStatter
}

// AdminHandler serves the operator API
type AdminHandler struct {
	store     database.Store
	runner    JobRunner
	grouper   CanonicalSetter
	search    Searcher
	scheduler ScheduleLister
	worker    QueueStatter
	logger    *zap.SugaredLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deps Deps, logger *zap.SugaredLogger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AdminHandler{
		store:     deps.Store,
		runner:    deps.Runner,
		grouper:   deps.Grouper,
		search:    deps.Search,
		scheduler: deps.Scheduler,
		worker:    deps.Worker,
		logger:    logger,
	}
}

// Health reports liveness
func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "real-estate-valuation",
	})
}

// RunJob runs one batch job synchronously and returns its BatchResult
func (h *AdminHandler) RunJob(c *gin.Context) {
	job := c.Param("job")
	h.logger.Infow("Admin: manual job trigger", "job", job)

	result, err := h.runner.Run(c.Request.Context(), job)
	switch {
	case errors.Is(err, batch.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, batch.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, batch.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Errorw("Admin: job failed", "job", job, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make(map[string]interface{})

	counts, err := h.store.GetStats(ctx)
	if err != nil {
		h.logger.Errorw("Admin: failed to get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats["counts"] = counts

	jobs, err := h.store.ListJobStates(ctx)
	if err != nil {
		h.logger.Warnw("Admin: failed to list job states", "error", err)
	} else {
		stats["jobs"] = jobs
	}

	if h.scheduler != nil {
		stats["schedule"] = h.scheduler.Entries()
	}
	if h.worker != nil {
		stats["worker"] = h.worker.GetQueueStats()
	}

	c.JSON(http.StatusOK, stats)
}
