package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdog-curator/internal/classifier"
	"github.com/hotdog-curator/internal/dedup"
	"github.com/hotdog-curator/internal/lock"
	"github.com/hotdog-curator/internal/metrics"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/processor"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/internal/source"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/internal/storage/sqlite"
	"github.com/hotdog-curator/pkg/logger"
)

type stubConnector struct {
	name  string
	items []*models.CandidateItem
	err   error
	panic string

	mu        sync.Mutex
	calls     int
	lastLimit int
	lastQuery string
}

func (s *stubConnector) Name() string { return s.name }

func (s *stubConnector) Search(_ context.Context, query string, limit int) ([]*models.CandidateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastLimit = limit
	s.lastQuery = query
	if s.panic != "" {
		panic(s.panic)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func (s *stubConnector) TestConnection(context.Context) source.ConnectionStatus {
	return source.ConnectionStatus{Source: s.name, Success: s.err == nil}
}

func (s *stubConnector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countStore struct {
	counts []storage.QueueCount
	err    error
}

func (c *countStore) CountQueue(context.Context) ([]storage.QueueCount, error) {
	return c.counts, c.err
}

type scriptedClassifier struct {
	fn func(in classifier.Input) (*classifier.Judgment, error)
}

func (s *scriptedClassifier) Classify(_ context.Context, in classifier.Input) (*classifier.Judgment, error) {
	return s.fn(in)
}

func approveAll() classifier.Classifier {
	return &scriptedClassifier{fn: func(classifier.Input) (*classifier.Judgment, error) {
		return &classifier.Judgment{IsValid: true, Confidence: 0.9}, nil
	}}
}

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	repo, err := sqlite.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newProcessor(repo *sqlite.Repository, cls classifier.Classifier) *processor.Processor {
	cfg := processor.DefaultConfig()
	detector := dedup.NewDetector(repo, cfg.RepostPolicy, dedup.DefaultConfig(), logger.Nop())
	return processor.New(repo, detector, cls, cfg, logger.Nop())
}

func profiles() []queue.SourceProfile {
	return []queue.SourceProfile{
		{Name: "blog", PrimaryType: models.ContentTypeImage},
		{Name: "hotdogs", PrimaryType: models.ContentTypeImage},
		{Name: "tube", PrimaryType: models.ContentTypeVideo},
	}
}

func registry(conns ...*stubConnector) *source.Registry {
	r := source.NewRegistry()
	for _, c := range conns {
		r.Register(c)
	}
	return r
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delay = 0
	return cfg
}

func item(src, text, url string) *models.CandidateItem {
	return &models.CandidateItem{
		Source:     src,
		Text:       text,
		SourceURL:  url,
		CapturedAt: time.Now(),
	}
}

func TestRunDailyScan_SkipsEverythingAboveHighWater(t *testing.T) {
	// 45 items at 3/day is 15 days of content
	store := &countStore{counts: []storage.QueueCount{
		{Source: "blog", ContentType: models.ContentTypeImage, Count: 15},
		{Source: "hotdogs", ContentType: models.ContentTypeImage, Count: 15},
		{Source: "tube", ContentType: models.ContentTypeVideo, Count: 15},
	}}
	conns := []*stubConnector{{name: "blog"}, {name: "hotdogs"}, {name: "tube"}}
	qm := queue.NewManager(store, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(newTestRepo(t), approveAll()), registry(conns...), nil, nil, nil, testConfig(), logger.Nop())

	summary, err := agent.RunDailyScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.TotalScans)
	assert.Empty(t, summary.Results)
	require.Len(t, summary.Skipped, 3)
	assert.Equal(t, 3, summary.APICallsSaved)
	reason := summary.Skipped[0].Reason
	assert.Contains(t, reason, "15.0 days")
	for _, rec := range summary.Skipped {
		assert.Equal(t, reason, rec.Reason)
		assert.Equal(t, models.PrioritySkip, rec.Priority)
	}
	for _, c := range conns {
		assert.Zero(t, c.Calls(), "no connector is queried above the high-water mark")
	}
	assert.Equal(t, summary.BeforeStats, summary.AfterStats)
}

func TestRunDailyScan_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	seedText := "Chicago style hot dog with every single topping piled high"
	cls := &scriptedClassifier{fn: func(in classifier.Input) (*classifier.Judgment, error) {
		if in.Text == seedText {
			return &classifier.Judgment{IsValid: true, Confidence: 0.5}, nil
		}
		return &classifier.Judgment{IsValid: true, Confidence: 0.9}, nil
	}}
	proc := newProcessor(repo, cls)

	// flagged entries do not count toward the queue but still participate in dedup
	seeded := proc.Process(ctx, item("blog", seedText, "https://blog.example.com/chicago"))
	require.Equal(t, processor.ActionFlagged, seeded.Action)

	blog := &stubConnector{name: "blog", items: []*models.CandidateItem{
		item("blog", "Chicago style hot dog, with every single topping piled high!", "https://blog.example.com/chicago"),
	}}
	hotdogs := &stubConnector{name: "hotdogs", items: []*models.CandidateItem{
		item("hotdogs", "Grilled bratwurst hot dog with sauerkraut", "https://reddit.com/r/hotdogs/comments/1"),
	}}
	tube := &stubConnector{name: "tube", err: errors.New("upstream unavailable")}

	m := metrics.New()
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, proc, registry(blog, hotdogs, tube),
		map[string]string{"hotdogs": "hot dog"}, lock.NewLocalLocker(), m, testConfig(), logger.Nop())

	summary, err := agent.RunDailyScan(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.TotalScans)
	assert.Equal(t, 2, summary.SuccessfulScans)
	assert.Equal(t, 2, summary.TotalFound)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TotalApproved)
	assert.Equal(t, 0, summary.BeforeStats.Total)
	assert.Equal(t, 1, summary.AfterStats.Total)

	require.Len(t, summary.Results, 3)
	bySource := map[string]*SourceResult{}
	for _, r := range summary.Results {
		bySource[r.Source] = r
	}

	assert.True(t, bySource["blog"].Success)
	assert.Equal(t, 1, bySource["blog"].Duplicates)
	assert.True(t, bySource["hotdogs"].Success)
	assert.Equal(t, 1, bySource["hotdogs"].Approved)
	assert.Equal(t, 15, bySource["hotdogs"].Budget)
	assert.Equal(t, 15, hotdogs.lastLimit)
	assert.Equal(t, "hot dog", hotdogs.lastQuery)
	assert.False(t, bySource["tube"].Success)
	require.NotEmpty(t, bySource["tube"].Errors)
	assert.Contains(t, bySource["tube"].Errors[0], "upstream unavailable")

	// the repost is stored as a combined duplicate at least as confident as its best signal
	status := models.EntryStatusDuplicate
	src := "blog"
	dupes, err := repo.ListEntries(ctx, storage.EntryFilter{Status: &status, Source: &src, Limit: 10})
	require.NoError(t, err)
	require.Len(t, dupes, 1)
	analysis, err := repo.GetAnalysis(ctx, dupes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, string(dedup.MatchCombined), analysis.DuplicateMatchType)
	assert.GreaterOrEqual(t, analysis.Confidence, 0.95)
	require.NotNil(t, analysis.DuplicateOfID)
	assert.Equal(t, seeded.Entry.ID, *analysis.DuplicateOfID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("tube", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("hotdogs", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueSize))
}

func TestRunDailyScan_LockConflictDoesNotStopRun(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	locker := lock.NewLocalLocker()

	held, err := locker.Acquire(ctx, "blog", time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	blog := &stubConnector{name: "blog", items: []*models.CandidateItem{
		item("blog", "Hot dog stand on the corner", "https://blog.example.com/stand"),
	}}
	hotdogs := &stubConnector{name: "hotdogs", items: []*models.CandidateItem{
		item("hotdogs", "Sonoran hot dog wrapped in bacon", "https://reddit.com/r/hotdogs/comments/2"),
	}}
	tube := &stubConnector{name: "tube"}

	m := metrics.New()
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(blog, hotdogs, tube), nil, locker, m, testConfig(), logger.Nop())

	summary, err := agent.RunDailyScan(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.False(t, summary.Results[0].Success)
	assert.Contains(t, summary.Results[0].Errors[0], "already in progress")
	assert.Zero(t, blog.Calls())
	assert.True(t, summary.Results[1].Success)
	assert.Equal(t, 1, summary.TotalApproved)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockConflictsTotal.WithLabelValues("blog")))

	// locks taken during the run are released afterwards
	h, err := locker.Acquire(ctx, "hotdogs", time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))
}

func TestRunDailyScan_StatsErrorFailsRun(t *testing.T) {
	store := &countStore{err: errors.New("database is locked")}
	qm := queue.NewManager(store, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(newTestRepo(t), approveAll()), registry(), nil, nil, nil, testConfig(), logger.Nop())

	_, err := agent.RunDailyScan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRunDailyScan_DelayBetweenSources(t *testing.T) {
	repo := newTestRepo(t)
	conns := []*stubConnector{{name: "blog"}, {name: "hotdogs"}, {name: "tube"}}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())

	cfg := testConfig()
	cfg.Delay = 2 * time.Second
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(conns...), nil, nil, nil, cfg, logger.Nop())

	var slept []time.Duration
	agent.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := agent.RunDailyScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestRunDailyScan_CompletesAfterCallerCancels(t *testing.T) {
	repo := newTestRepo(t)
	conns := []*stubConnector{
		{name: "blog", items: []*models.CandidateItem{item("blog", "Hot dog cart on the pier", "https://blog.example.com/1")}},
		{name: "hotdogs", items: []*models.CandidateItem{item("hotdogs", "Corn dog with spicy mustard", "https://reddit.com/r/hotdogs/comments/9")}},
		{name: "tube"},
	}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())

	cfg := testConfig()
	cfg.Delay = time.Hour
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(conns...), nil, nil, nil, cfg, logger.Nop())

	var sleepErrs []error
	agent.sleep = func(ctx context.Context, _ time.Duration) error {
		sleepErrs = append(sleepErrs, ctx.Err())
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := agent.RunDailyScan(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, 3, summary.SuccessfulScans)
	assert.Equal(t, 2, summary.TotalApproved)
	assert.Equal(t, 2, summary.AfterStats.Total)
	assert.Equal(t, []error{nil, nil}, sleepErrs)
	for _, c := range conns {
		assert.Equal(t, 1, c.Calls(), c.name)
	}
}

func TestForceScan_CompletesAfterCallerCancels(t *testing.T) {
	repo := newTestRepo(t)
	hotdogs := &stubConnector{name: "hotdogs", items: []*models.CandidateItem{
		item("hotdogs", "Bacon wrapped street dog", "https://reddit.com/r/hotdogs/comments/11"),
	}}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(hotdogs), nil, nil, nil, testConfig(), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := agent.ForceScan(ctx, []string{"hotdogs"}, "manual")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, 1, summary.TotalApproved)
}

func TestRunDailyScan_ConnectorPanicIsRecorded(t *testing.T) {
	repo := newTestRepo(t)
	conns := []*stubConnector{
		{name: "blog", panic: "feed parser exploded"},
		{name: "hotdogs", items: []*models.CandidateItem{item("hotdogs", "Chili cheese dog", "https://reddit.com/r/hotdogs/comments/12")}},
	}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	m := metrics.New()
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(conns...), nil, nil, m, testConfig(), logger.Nop())

	summary, err := agent.RunDailyScan(context.Background())
	require.NoError(t, err)

	byName := make(map[string]*SourceResult)
	for _, r := range summary.Results {
		byName[r.Source] = r
	}
	require.Contains(t, byName, "blog")
	require.Contains(t, byName, "hotdogs")

	assert.False(t, byName["blog"].Success)
	require.Len(t, byName["blog"].Errors, 1)
	assert.Contains(t, byName["blog"].Errors[0], "feed parser exploded")
	assert.True(t, byName["hotdogs"].Success)
	assert.Equal(t, 1, summary.TotalApproved)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("blog", "error")))

	// the lock is released after the panic
	h, err := agent.locker.Acquire(context.Background(), "blog", time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.Release(context.Background()))
}

func TestForceScan(t *testing.T) {
	repo := newTestRepo(t)
	hotdogs := &stubConnector{name: "hotdogs", items: []*models.CandidateItem{
		item("hotdogs", "Corn dog at the state fair", "https://reddit.com/r/hotdogs/comments/3"),
	}}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(hotdogs), nil, nil, nil, testConfig(), logger.Nop())

	summary, err := agent.ForceScan(context.Background(), []string{"hotdogs", "nope"}, "")
	require.NoError(t, err)

	assert.True(t, summary.Forced)
	assert.Equal(t, ReasonForced, summary.Reason)
	require.Len(t, summary.Results, 2)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, 15, hotdogs.lastLimit)
	assert.False(t, summary.Results[1].Success)
	assert.Contains(t, summary.Results[1].Errors[0], "unknown source")
	assert.Equal(t, 1, summary.TotalApproved)
}

func TestForceScan_AllSourcesWhenNoneNamed(t *testing.T) {
	repo := newTestRepo(t)
	conns := []*stubConnector{{name: "blog"}, {name: "hotdogs"}}
	qm := queue.NewManager(repo, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, newProcessor(repo, approveAll()), registry(conns...), nil, nil, nil, testConfig(), logger.Nop())

	summary, err := agent.ForceScan(context.Background(), nil, "manual refill")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalScans)
	assert.Equal(t, "manual refill", summary.Results[0].Reason)
	for _, c := range conns {
		assert.Equal(t, 1, c.Calls())
	}
}

func TestWeeklyForecast(t *testing.T) {
	store := &countStore{counts: []storage.QueueCount{
		{Source: "hotdogs", ContentType: models.ContentTypeImage, Count: 27},
	}}
	qm := queue.NewManager(store, queue.DefaultTargets(), profiles(), logger.Nop())
	agent := NewAgent(qm, nil, registry(), nil, nil, nil, testConfig(), logger.Nop())

	f, err := agent.WeeklyForecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 27, f.Current)
	assert.Equal(t, 3, f.PostsPerDay)
	require.Len(t, f.Days, 7)
	// 27 - 3*3 = 18 drops below the minimum of 21 on day 3
	assert.Equal(t, 3, f.ShortfallDay)
}

func TestConfig_Budget(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15, cfg.Budget(models.PriorityHigh))
	assert.Equal(t, 10, cfg.Budget(models.PriorityMedium))
	assert.Equal(t, 5, cfg.Budget(models.PriorityLow))
	assert.Equal(t, 0, cfg.Budget(models.PrioritySkip))
}
