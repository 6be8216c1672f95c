package gamification

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterOptions configures the HTTP surface around the API routes.
type RouterOptions struct {
	// Checks maps a dependency name to its health probe.
	Checks map[string]HealthChecker
	// MetricsPath enables the Prometheus endpoint when non-empty.
	MetricsPath string
}

// NewRouter builds the gin engine with every gamification route registered.
func (h *Handler) NewRouter(opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.log))

	router.GET("/health", h.healthHandler(opts.Checks))
	if opts.MetricsPath != "" {
		router.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1", h.SessionRequired())
	h.RegisterRoutes(api)

	return router
}

// RegisterRoutes registers the session-protected API routes on group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/xp/award", h.AwardXP)
	api.POST("/quizzes/:id/complete", h.CompleteQuiz)
	api.POST("/daily-login", h.DailyLogin)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.POST("/leaderboard/invalidate", h.InvalidateLeaderboards)
	api.GET("/users/:id/rank-level", h.GetRankLevel)
	api.GET("/users/:id/xp-history", h.GetXPHistory)
	api.GET("/ranks", h.GetRanks)
}

func (h *Handler) healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				results[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "healthy"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":       overall,
			"dependencies": results,
			"timestamp":    time.Now().UTC(),
		})
	}
}
