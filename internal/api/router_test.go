package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdog-curator/internal/agent/scanner"
	"github.com/hotdog-curator/internal/metrics"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/pkg/logger"
)

type fakeCurator struct {
	stats      *models.QueueStats
	err        error
	gotSources []string
	gotReason  string
}

func (f *fakeCurator) GetQueueStats(context.Context) (*models.QueueStats, error) {
	return f.stats, f.err
}

func (f *fakeCurator) GetScanRecommendations(context.Context) ([]models.ScanRecommendation, error) {
	return []models.ScanRecommendation{{Source: "hotdogs", Priority: models.PriorityHigh, Reason: queue.ReasonNeedType}}, f.err
}

func (f *fakeCurator) WeeklyForecast(context.Context) (*scanner.Forecast, error) {
	return &scanner.Forecast{Current: 27, PostsPerDay: 3, ShortfallDay: 3}, f.err
}

func (f *fakeCurator) RunDailyScan(context.Context) (*scanner.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &scanner.Summary{RunID: "run-1", TotalScans: 2}, nil
}

func (f *fakeCurator) ForceScan(_ context.Context, sources []string, reason string) (*scanner.Summary, error) {
	f.gotSources = sources
	f.gotReason = reason
	return &scanner.Summary{RunID: "run-2", Forced: true, Reason: reason}, f.err
}

type fakeHealth struct {
	report *queue.HealthReport
}

func (f *fakeHealth) HealthCheck(context.Context) (*queue.HealthReport, error) {
	return f.report, nil
}

func setupRouter(t *testing.T, curator Curator, health HealthChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(curator, health, metrics.New().Handler(), logger.Nop())
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLiveness(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})
	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestQueueStats(t *testing.T) {
	curator := &fakeCurator{stats: &models.QueueStats{Total: 12, DaysOfContent: 4}}
	router := setupRouter(t, curator, &fakeHealth{})

	w := do(t, router, http.MethodGet, "/api/queue/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.QueueStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 12, got.Total)
	assert.Equal(t, 4.0, got.DaysOfContent)
}

func TestQueueStats_Error(t *testing.T) {
	router := setupRouter(t, &fakeCurator{err: errors.New("db down")}, &fakeHealth{})

	w := do(t, router, http.MethodGet, "/api/queue/stats", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestRecommendations(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})

	w := do(t, router, http.MethodGet, "/api/queue/recommendations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"priority":"high"`)
}

func TestQueueHealth_UnhealthyIs503(t *testing.T) {
	health := &fakeHealth{report: &queue.HealthReport{Healthy: false, Issues: []string{"queue below minimum"}}}
	router := setupRouter(t, &fakeCurator{}, health)

	w := do(t, router, http.MethodGet, "/api/queue/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "queue below minimum")

	health.report = &queue.HealthReport{Healthy: true}
	w = do(t, router, http.MethodGet, "/api/queue/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestForecast(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})

	w := do(t, router, http.MethodGet, "/api/queue/forecast", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"shortfall_day":3`)
}

func TestDailyScan(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})

	w := do(t, router, http.MethodPost, "/api/scans/daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)
}

func TestForceScan(t *testing.T) {
	curator := &fakeCurator{}
	router := setupRouter(t, curator, &fakeHealth{})

	w := do(t, router, http.MethodPost, "/api/scans/force", `{"sources":["hotdogs"],"reason":"refill"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"hotdogs"}, curator.gotSources)
	assert.Equal(t, "refill", curator.gotReason)
}

func TestForceScan_EmptyBodyScansAll(t *testing.T) {
	curator := &fakeCurator{}
	router := setupRouter(t, curator, &fakeHealth{})

	w := do(t, router, http.MethodPost, "/api/scans/force", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, curator.gotSources)
}

func TestForceScan_BadBody(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})

	w := do(t, router, http.MethodPost, "/api/scans/force", `{"sources":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupRouter(t, &fakeCurator{}, &fakeHealth{})

	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
