package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"real-estate-valuation/internal/ratelimit"
)

// RouterConfig holds HTTP settings
type RouterConfig struct {
	AllowOrigins []string
	// IngestLimiter throttles POST /api/raw-listings; nil disables it
	IngestLimiter *ratelimit.TokenBucket
}

// NewRouter registers every operator route on a new gin engine
func NewRouter(h *AdminHandler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	// CORS configuration; without origins the API is same-origin only
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
		}))
	} else {
		h.logger.Infow("HTTP: no allowed origins configured, CORS disabled")
	}

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/groups/:id", h.GetGroup)
		api.PUT("/groups/:id/canonical", h.SetCanonical)
		api.GET("/listings/:id/score", h.GetScore)
		api.GET("/listings/:id/trust", h.GetTrust)
		api.GET("/search", h.Search)
		api.POST("/raw-listings", rateLimitMiddleware(cfg.IngestLimiter), h.IngestRawListing)
	}

	// Admin API routes (requires authentication in production)
	admin := r.Group("/api/admin")
	{
		admin.GET("/stats", h.GetStats)
		admin.POST("/jobs/:job/run", h.RunJob)
	}

	return r
}

func rateLimitMiddleware(bucket *ratelimit.TokenBucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket != nil && !bucket.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("HTTP: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
