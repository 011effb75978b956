package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hotdog-curator/pkg/logger"
)

type handler struct {
	curator Curator
	health  HealthChecker
	log     *logger.Logger
}

// ForceScanRequest is the body of POST /api/scans/force
type ForceScanRequest struct {
	Sources []string `json:"sources"`
	Reason  string   `json:"reason"`
}

func (h *handler) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) queueStats(c *gin.Context) {
	stats, err := h.curator.GetQueueStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) recommendations(c *gin.Context) {
	recs, err := h.curator.GetScanRecommendations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// queueHealth answers 503 when the queue has issues so probes can alert on it
func (h *handler) queueHealth(c *gin.Context) {
	report, err := h.health.HealthCheck(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *handler) forecast(c *gin.Context) {
	f, err := h.curator.WeeklyForecast(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *handler) dailyScan(c *gin.Context) {
	summary, err := h.curator.RunDailyScan(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) forceScan(c *gin.Context) {
	var req ForceScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.curator.ForceScan(c.Request.Context(), req.Sources, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
