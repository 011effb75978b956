package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/pkg/logger"
)

type fakeCounts struct {
	counts []storage.QueueCount
	err    error
}

func (f *fakeCounts) CountQueue(context.Context) ([]storage.QueueCount, error) {
	return f.counts, f.err
}

func qc(source string, ct models.ContentType, n int) storage.QueueCount {
	return storage.QueueCount{Source: source, ContentType: ct, Count: n}
}

func newManager(counts []storage.QueueCount, profiles ...SourceProfile) *Manager {
	return NewManager(&fakeCounts{counts: counts}, DefaultTargets(), profiles, logger.Nop())
}

func TestGetStats(t *testing.T) {
	m := newManager([]storage.QueueCount{
		qc("reddit", models.ContentTypeImage, 6),
		qc("reddit", models.ContentTypeVideo, 3),
		qc("rss", models.ContentTypeText, 3),
	})

	stats, err := m.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, stats.Total)
	assert.InDelta(t, 4.0, stats.DaysOfContent, 1e-9)
	assert.Equal(t, 9, stats.BySource["reddit"].Count)
	assert.InDelta(t, 75.0, stats.BySource["reddit"].Percentage, 1e-9)
	assert.InDelta(t, 50.0, stats.ByContentType[models.ContentTypeImage].Percentage, 1e-9)
	assert.InDelta(t, 0.25, stats.TypeShare(models.ContentTypeText), 1e-9)
}

func TestGetStats_Empty(t *testing.T) {
	stats, err := newManager(nil).GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.DaysOfContent)
	assert.Zero(t, stats.SourceShare("anything"))
}

func TestGetStats_StoreError(t *testing.T) {
	m := NewManager(&fakeCounts{err: errors.New("db down")}, DefaultTargets(), nil, logger.Nop())
	_, err := m.GetStats(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestShouldScan_QueueFull(t *testing.T) {
	m := newManager([]storage.QueueCount{qc("other", models.ContentTypeImage, 42)},
		SourceProfile{Name: "reddit", PrimaryType: models.ContentTypeVideo})

	rec, err := m.ShouldScan(context.Background(), "reddit")
	require.NoError(t, err)
	assert.False(t, rec.ShouldScan())
	assert.Contains(t, rec.Reason, ReasonQueueFull)
}

func TestShouldScan_SourceOverRepresented(t *testing.T) {
	// 7 of 20 items is 35% against a 20% target (limit 30%).
	m := newManager([]storage.QueueCount{
		qc("reddit", models.ContentTypeImage, 7),
		qc("rss", models.ContentTypeImage, 5),
		qc("tumblr", models.ContentTypeVideo, 8),
	}, SourceProfile{Name: "reddit", PrimaryType: models.ContentTypeImage, TargetShare: 0.20})

	rec, err := m.ShouldScan(context.Background(), "reddit")
	require.NoError(t, err)
	assert.False(t, rec.ShouldScan())
	assert.Equal(t, models.PrioritySkip, rec.Priority)
	assert.Contains(t, rec.Reason, ReasonOverRepresented)
}

func TestShouldScan_ContentTypeSufficient(t *testing.T) {
	// text is 25% against a 5% target
	m := newManager([]storage.QueueCount{
		qc("a", models.ContentTypeText, 5),
		qc("b", models.ContentTypeImage, 5),
		qc("c", models.ContentTypeVideo, 5),
		qc("d", models.ContentTypeGIF, 5),
	}, SourceProfile{Name: "blog", PrimaryType: models.ContentTypeText})

	rec, err := m.ShouldScan(context.Background(), "blog")
	require.NoError(t, err)
	assert.Equal(t, models.PrioritySkip, rec.Priority)
	assert.Contains(t, rec.Reason, ReasonTypeSufficient)
}

func TestShouldScan_NeedMoreOfType(t *testing.T) {
	m := newManager([]storage.QueueCount{
		qc("a", models.ContentTypeImage, 10),
		qc("b", models.ContentTypeImage, 10),
		qc("c", models.ContentTypeImage, 10),
	}, SourceProfile{Name: "tiktok", PrimaryType: models.ContentTypeVideo})

	rec, err := m.ShouldScan(context.Background(), "tiktok")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Equal(t, models.ContentTypeVideo, rec.TargetType)
	assert.Contains(t, rec.Reason, ReasonNeedType)
}

func TestShouldScan_BelowMinimum(t *testing.T) {
	// 15 items against a minimum of 21; image share 40% sits inside its band.
	m := newManager([]storage.QueueCount{
		qc("a", models.ContentTypeImage, 3),
		qc("b", models.ContentTypeImage, 3),
		qc("c", models.ContentTypeVideo, 3),
		qc("d", models.ContentTypeVideo, 2),
		qc("d", models.ContentTypeGIF, 1),
		qc("e", models.ContentTypeGIF, 3),
	}, SourceProfile{Name: "a", PrimaryType: models.ContentTypeImage})

	rec, err := m.ShouldScan(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, rec.ShouldScan())
	assert.Equal(t, models.PriorityMedium, rec.Priority)
	assert.Contains(t, rec.Reason, ReasonBelowMinimum)
}

func TestShouldScan_WithinLimits(t *testing.T) {
	counts := []storage.QueueCount{
		qc("a", models.ContentTypeImage, 6),
		qc("b", models.ContentTypeImage, 6),
		qc("c", models.ContentTypeVideo, 5),
		qc("d", models.ContentTypeVideo, 4),
		qc("e", models.ContentTypeGIF, 6),
		qc("f", models.ContentTypeText, 1),
	}
	m := newManager(counts, SourceProfile{Name: "a", PrimaryType: models.ContentTypeImage})

	rec, err := m.ShouldScan(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, rec.Priority)
	assert.Equal(t, ReasonWithinLimits, rec.Reason)
}

func TestGetRecommendations_OrderedByPriority(t *testing.T) {
	m := newManager([]storage.QueueCount{
		qc("imgur", models.ContentTypeImage, 7),
		qc("other", models.ContentTypeImage, 8),
	},
		SourceProfile{Name: "imgur", PrimaryType: models.ContentTypeImage},
		SourceProfile{Name: "blog", PrimaryType: models.ContentTypeImage},
		SourceProfile{Name: "tiktok", PrimaryType: models.ContentTypeVideo},
	)

	recs, err := m.GetRecommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "tiktok", recs[0].Source)
	assert.Equal(t, models.PriorityHigh, recs[0].Priority)
	assert.Equal(t, "imgur", recs[1].Source)
	assert.Contains(t, recs[1].Reason, ReasonOverRepresented)
	assert.Equal(t, "blog", recs[2].Source)
	assert.Contains(t, recs[2].Reason, ReasonTypeSufficient)
}

func TestHealthCheck_ReportsEveryIssue(t *testing.T) {
	m := newManager([]storage.QueueCount{
		qc("reddit", models.ContentTypeImage, 9),
		qc("rss", models.ContentTypeText, 1),
	}, SourceProfile{Name: "reddit", PrimaryType: models.ContentTypeImage})

	report, err := m.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy)

	joined := ""
	for _, issue := range report.Issues {
		joined += issue + "\n"
	}
	assert.Contains(t, joined, "queue too small")
	assert.Contains(t, joined, "too much image content")
	assert.Contains(t, joined, "too much text content")
	assert.Contains(t, joined, "not enough video content")
	assert.Contains(t, joined, "not enough gif content")
	assert.Contains(t, joined, "source reddit over-represented")
	assert.NotContains(t, joined, "source rss")
}

func TestHealthCheck_Healthy(t *testing.T) {
	var counts []storage.QueueCount
	for i, ct := range []models.ContentType{
		models.ContentTypeVideo, models.ContentTypeVideo, models.ContentTypeVideo,
		models.ContentTypeGIF, models.ContentTypeGIF, models.ContentTypeGIF,
		models.ContentTypeImage, models.ContentTypeImage, models.ContentTypeImage, models.ContentTypeImage,
	} {
		counts = append(counts, qc(string(rune('a'+i)), ct, 3))
	}
	// 32 items across eleven sources, every share inside its band
	counts = append(counts, qc("k", models.ContentTypeText, 2))

	report := newManager(counts).Health(BuildStats(counts, 3, time.Now()))
	assert.True(t, report.Healthy, "issues: %v", report.Issues)
	assert.Empty(t, report.Issues)
}

func TestForecast(t *testing.T) {
	m := newManager(nil)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	stats := &models.QueueStats{Total: 27, ComputedAt: now}

	days := m.Forecast(stats, 7)
	require.Len(t, days, 7)

	assert.Equal(t, 24, days[0].Projected)
	assert.False(t, days[0].BelowMinimum)
	assert.Equal(t, 21, days[1].Projected)
	assert.False(t, days[1].BelowMinimum)
	assert.Equal(t, 18, days[2].Projected)
	assert.True(t, days[2].BelowMinimum)
	assert.Equal(t, 6, days[6].Projected)
	assert.InDelta(t, 2.0, days[6].DaysOfContent, 1e-9)
	assert.Equal(t, now.AddDate(0, 0, 7), days[6].Date)

	drained := m.Forecast(&models.QueueStats{Total: 4, ComputedAt: now}, 3)
	assert.Equal(t, 0, drained[1].Projected)
}
