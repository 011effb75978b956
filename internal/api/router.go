// Package api exposes queue state and scan triggers over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hotdog-curator/internal/agent/scanner"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/pkg/logger"
)

// Curator is the scan orchestration surface served by the API
type Curator interface {
	GetQueueStats(ctx context.Context) (*models.QueueStats, error)
	GetScanRecommendations(ctx context.Context) ([]models.ScanRecommendation, error)
	WeeklyForecast(ctx context.Context) (*scanner.Forecast, error)
	RunDailyScan(ctx context.Context) (*scanner.Summary, error)
	ForceScan(ctx context.Context, sources []string, reason string) (*scanner.Summary, error)
}

// HealthChecker reports queue health
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*queue.HealthReport, error)
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(curator Curator, health HealthChecker, metrics http.Handler, log *logger.Logger) *gin.Engine {
	log = log.WithComponent("api")

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := &handler{curator: curator, health: health, log: log}

	router.GET("/health", h.liveness)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	{
		q := api.Group("/queue")
		q.GET("/stats", h.queueStats)
		q.GET("/recommendations", h.recommendations)
		q.GET("/health", h.queueHealth)
		q.GET("/forecast", h.forecast)

		s := api.Group("/scans")
		s.POST("/daily", h.dailyScan)
		s.POST("/force", h.forceScan)
	}

	return router
}

// requestLogger logs one line per request
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := log.Info()
		if len(c.Errors) > 0 {
			event = log.Error().Strs("errors", c.Errors.Errors())
		} else if strings.HasPrefix(path, "/health") || path == "/metrics" {
			event = log.Debug()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
