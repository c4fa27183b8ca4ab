package app

import (
	"net/http"
	"slices"
	"time"

	"flowtrack/backend/internal/config"
	"flowtrack/backend/internal/handlers"
	"flowtrack/backend/internal/middleware"
	"flowtrack/backend/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func newRouter(cfg *config.Config, health *monitoring.HealthChecker, routes handlers.Routes, authenticate, rateLimit gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryWithLog())
	r.Use(middleware.RequestLogger())
	r.Use(monitoring.MetricsMiddleware())
	if c, ok := corsConfig(cfg.Server.AllowedOrigins); ok {
		r.Use(cors.New(c))
	}

	r.GET("/health", health.HealthHandler(cfg.Server.AppName))
	r.GET("/ready", health.ReadinessHandler())
	r.GET("/live", monitoring.LivenessHandler())
	r.GET("/metrics", monitoring.MetricsHandler())

	routes.Register(r.Group("", rateLimit), authenticate)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "route not found"})
	})
	return r
}

// corsConfig reports false when no origin is configured; the cors package
// rejects such a config.
func corsConfig(origins []string) (cors.Config, bool) {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case len(origins) == 0:
		return c, false
	case slices.Contains(origins, "*"):
		// Credentials cannot be combined with a wildcard origin.
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	default:
		c.AllowOrigins = origins
	}
	return c, true
}
