// Package scanner orchestrates curation runs across sources: it asks the queue manager which
// sources need content, pulls candidates from their connectors and feeds them to the processor.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hotdog-curator/internal/lock"
	"github.com/hotdog-curator/internal/metrics"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/processor"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/internal/source"
	"github.com/hotdog-curator/pkg/logger"
)

// ReasonForced is recorded on sources scanned through ForceScan without a caller reason
const ReasonForced = "forced scan"

// Config holds orchestration settings
type Config struct {
	Delay         time.Duration
	HighWaterDays float64
	HighBudget    int
	MediumBudget  int
	LowBudget     int
	LockTTL       time.Duration
}

// DefaultConfig returns the standard orchestration settings
func DefaultConfig() Config {
	return Config{
		Delay:         5 * time.Second,
		HighWaterDays: 14,
		HighBudget:    15,
		MediumBudget:  10,
		LowBudget:     5,
		LockTTL:       lock.DefaultTTL,
	}
}

// Budget returns the item-count budget for a priority
func (c Config) Budget(p models.ScanPriority) int {
	switch p {
	case models.PriorityHigh:
		return c.HighBudget
	case models.PriorityMedium:
		return c.MediumBudget
	case models.PriorityLow:
		return c.LowBudget
	default:
		return 0
	}
}

// Agent runs daily and forced scans
type Agent struct {
	queue      *queue.Manager
	processor  *processor.Processor
	connectors *source.Registry
	queries    map[string]string
	locker     lock.Locker
	metrics    *metrics.Metrics
	config     Config
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	log        *logger.Logger
}

// NewAgent creates a new scan agent. queries maps a source name to its search query;
// locker and m may be nil.
func NewAgent(
	queueManager *queue.Manager,
	proc *processor.Processor,
	connectors *source.Registry,
	queries map[string]string,
	locker lock.Locker,
	m *metrics.Metrics,
	cfg Config,
	log *logger.Logger,
) *Agent {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if queries == nil {
		queries = map[string]string{}
	}

	return &Agent{
		queue:      queueManager,
		processor:  proc,
		connectors: connectors,
		queries:    queries,
		locker:     locker,
		metrics:    m,
		config:     cfg,
		sleep:      sleepContext,
		now:        time.Now,
		log:        log.WithComponent("scanner"),
	}
}

// SourceResult holds the outcome of scanning one source
type SourceResult struct {
	Source     string              `json:"source" yaml:"source"`
	Priority   models.ScanPriority `json:"priority" yaml:"priority"`
	Reason     string              `json:"reason" yaml:"reason"`
	Budget     int                 `json:"budget" yaml:"budget"`
	Success    bool                `json:"success" yaml:"success"`
	Found      int                 `json:"found" yaml:"found"`
	Processed  int                 `json:"processed" yaml:"processed"`
	Approved   int                 `json:"approved" yaml:"approved"`
	Flagged    int                 `json:"flagged" yaml:"flagged"`
	Rejected   int                 `json:"rejected" yaml:"rejected"`
	Duplicates int                 `json:"duplicates" yaml:"duplicates"`
	Failed     int                 `json:"failed" yaml:"failed"`
	Errors     []string            `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration   time.Duration       `json:"duration" yaml:"duration"`
}

// Summary reports a whole scan run
type Summary struct {
	RunID             string                      `json:"run_id" yaml:"run_id"`
	Reason            string                      `json:"reason" yaml:"reason"`
	Forced            bool                        `json:"forced" yaml:"forced"`
	StartedAt         time.Time                   `json:"started_at" yaml:"started_at"`
	Duration          time.Duration               `json:"duration" yaml:"duration"`
	TotalScans        int                         `json:"total_scans" yaml:"total_scans"`
	SuccessfulScans   int                         `json:"successful_scans" yaml:"successful_scans"`
	TotalFound        int                         `json:"total_found" yaml:"total_found"`
	TotalProcessed    int                         `json:"total_processed" yaml:"total_processed"`
	TotalApproved     int                         `json:"total_approved" yaml:"total_approved"`
	BeforeStats       *models.QueueStats          `json:"before_stats" yaml:"before_stats"`
	AfterStats        *models.QueueStats          `json:"after_stats" yaml:"after_stats"`
	Results           []*SourceResult             `json:"results" yaml:"results"`
	Skipped           []models.ScanRecommendation `json:"skipped" yaml:"skipped"`
	APICallsSaved     int                         `json:"api_calls_saved" yaml:"api_calls_saved"`
	Retried           int                         `json:"retried" yaml:"retried"`
	PermanentlyFailed int                         `json:"permanently_failed" yaml:"permanently_failed"`
}

// GetQueueStats returns current queue statistics
func (a *Agent) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	return a.queue.GetStats(ctx)
}

// GetScanRecommendations returns the current per-source recommendations
func (a *Agent) GetScanRecommendations(ctx context.Context) ([]models.ScanRecommendation, error) {
	return a.queue.GetRecommendations(ctx)
}

// RunDailyScan scans every source the queue manager recommends, most urgent first.
// Only failures to read queue statistics are returned as errors. Once started the scan
// runs to completion even if ctx is cancelled.
func (a *Agent) RunDailyScan(ctx context.Context) (*Summary, error) {
	ctx = context.WithoutCancel(ctx)
	summary := a.newSummary("daily scan", false)
	log := a.log.WithRunID(summary.RunID)

	before, err := a.queue.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	summary.BeforeStats = before
	a.metrics.ObserveStats(before)

	recs := a.queue.Recommend(before)

	if before.DaysOfContent > a.config.HighWaterDays {
		reason := fmt.Sprintf("sufficient content (%.1f days remaining)", before.DaysOfContent)
		for _, rec := range recs {
			rec.Priority = models.PrioritySkip
			rec.Reason = reason
			summary.Skipped = append(summary.Skipped, rec)
			if a.metrics != nil {
				a.metrics.SourcesSkipped.WithLabelValues(rec.Source).Inc()
			}
		}
		summary.APICallsSaved = len(summary.Skipped)
		summary.AfterStats = before
		summary.Duration = time.Since(summary.StartedAt)

		log.Info().
			Float64("days_of_content", before.DaysOfContent).
			Int("sources_skipped", len(summary.Skipped)).
			Msg("Queue above high-water mark, skipping scan")
		return summary, nil
	}

	var actionable []models.ScanRecommendation
	for _, rec := range recs {
		if rec.ShouldScan() {
			actionable = append(actionable, rec)
			continue
		}
		summary.Skipped = append(summary.Skipped, rec)
		if a.metrics != nil {
			a.metrics.SourcesSkipped.WithLabelValues(rec.Source).Inc()
		}
	}
	summary.APICallsSaved = len(summary.Skipped)

	log.Info().
		Int("total_items", before.Total).
		Float64("days_of_content", before.DaysOfContent).
		Int("actionable", len(actionable)).
		Int("skipped", len(summary.Skipped)).
		Msg("Starting daily scan")

	targets := make([]scanTarget, 0, len(actionable))
	for _, rec := range actionable {
		targets = append(targets, scanTarget{
			source:   rec.Source,
			priority: rec.Priority,
			reason:   rec.Reason,
			budget:   a.config.Budget(rec.Priority),
		})
	}

	return a.run(ctx, summary, targets, "daily")
}

// ForceScan scans the named sources regardless of queue balance, at the high budget.
// An empty list scans every registered connector. Like RunDailyScan it ignores cancellation.
func (a *Agent) ForceScan(ctx context.Context, sources []string, reason string) (*Summary, error) {
	ctx = context.WithoutCancel(ctx)
	if reason == "" {
		reason = ReasonForced
	}
	if len(sources) == 0 {
		sources = a.connectors.Names()
	}

	summary := a.newSummary(reason, true)

	before, err := a.queue.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	summary.BeforeStats = before

	a.log.WithRunID(summary.RunID).Info().
		Strs("sources", sources).
		Str("reason", reason).
		Msg("Starting forced scan")

	targets := make([]scanTarget, 0, len(sources))
	for _, s := range sources {
		targets = append(targets, scanTarget{
			source:   s,
			priority: models.PriorityHigh,
			reason:   reason,
			budget:   a.config.HighBudget,
		})
	}

	return a.run(ctx, summary, targets, "forced")
}

type scanTarget struct {
	source   string
	priority models.ScanPriority
	reason   string
	budget   int
}

// run scans targets one at a time with the configured delay between them, drains the
// retry queue and fills in the summary
func (a *Agent) run(ctx context.Context, summary *Summary, targets []scanTarget, kind string) (*Summary, error) {
	log := a.log.WithRunID(summary.RunID)
	retries := processor.NewRetryQueue(a.processor.Config().MaxAttempts)
	bySource := make(map[string]*SourceResult, len(targets))

	for i, target := range targets {
		if i > 0 && a.config.Delay > 0 {
			if err := a.sleep(ctx, a.config.Delay); err != nil {
				return nil, fmt.Errorf("scan interrupted: %w", err)
			}
		}

		result := a.scanSource(ctx, target, retries)
		summary.Results = append(summary.Results, result)
		bySource[result.Source] = result

		summary.TotalScans++
		if result.Success {
			summary.SuccessfulScans++
		}
		summary.TotalFound += result.Found
		summary.TotalProcessed += result.Processed
		summary.TotalApproved += result.Approved
	}

	if retries.Len() > 0 {
		recovered, failed := retries.Drain(ctx, a.processor)
		summary.Retried = len(recovered)
		summary.PermanentlyFailed = len(failed)

		for _, r := range recovered {
			sr, ok := bySource[r.Candidate.Source]
			if !ok {
				continue
			}
			sr.Failed--
			sr.Rejected--
			addAction(sr, r.Action)
			if r.Action == processor.ActionApproved {
				summary.TotalApproved++
			}
			a.countCandidate(r)
		}
	}

	after, err := a.queue.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	summary.AfterStats = after
	summary.Duration = time.Since(summary.StartedAt)

	if a.metrics != nil {
		a.metrics.ObserveStats(after)
		a.metrics.ScanDuration.WithLabelValues(kind).Observe(summary.Duration.Seconds())
	}

	log.Info().
		Int("total_scans", summary.TotalScans).
		Int("successful_scans", summary.SuccessfulScans).
		Int("found", summary.TotalFound).
		Int("approved", summary.TotalApproved).
		Int("queue_before", summary.BeforeStats.Total).
		Int("queue_after", after.Total).
		Int("api_calls_saved", summary.APICallsSaved).
		Dur("duration", summary.Duration).
		Msg("Scan completed")

	return summary, nil
}

// scanSource runs one source under its advisory lock. Every failure is recorded on the
// result; nothing here stops the run.
func (a *Agent) scanSource(ctx context.Context, target scanTarget, retries *processor.RetryQueue) *SourceResult {
	start := a.now()
	result := &SourceResult{
		Source:   target.source,
		Priority: target.priority,
		Reason:   target.reason,
		Budget:   target.budget,
	}
	log := a.log.WithSource(target.source)

	defer func() {
		result.Duration = time.Since(start)
		outcome := "success"
		if !result.Success {
			outcome = "error"
		}
		if a.metrics != nil {
			a.metrics.ScansTotal.WithLabelValues(target.source, outcome).Inc()
		}
	}()

	conn, err := a.connectors.Get(target.source)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		log.Warn().Err(err).Msg("No connector for source")
		return result
	}

	handle, err := a.locker.Acquire(ctx, target.source, a.config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			result.Errors = append(result.Errors, "scan already in progress for this source")
			if a.metrics != nil {
				a.metrics.LockConflictsTotal.WithLabelValues(target.source).Inc()
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		log.Warn().Err(err).Msg("Could not lock source")
		return result
	}
	defer func() {
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to release source lock")
		}
	}()

	items, err := search(ctx, conn, a.queries[target.source], target.budget)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		log.Error().Err(err).Msg("Connector search failed")
		return result
	}
	if target.budget > 0 && len(items) > target.budget {
		items = items[:target.budget]
	}
	result.Found = len(items)

	results := a.processor.ProcessBatch(ctx, items)
	for _, r := range results {
		result.Processed++
		addAction(result, r.Action)
		if r.Failed() {
			result.Failed++
		}
		a.countCandidate(r)
	}
	retries.Add(results)

	result.Success = true
	log.Info().
		Int("found", result.Found).
		Int("approved", result.Approved).
		Int("duplicates", result.Duplicates).
		Int("failed", result.Failed).
		Msg("Source scanned")

	return result
}

// search calls the connector, turning a panic into an error for this source only
func search(ctx context.Context, conn source.Connector, query string, limit int) (items []*models.CandidateItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("connector panic: %v", r)
		}
	}()
	return conn.Search(ctx, query, limit)
}

func addAction(sr *SourceResult, action processor.Action) {
	switch action {
	case processor.ActionApproved:
		sr.Approved++
	case processor.ActionFlagged:
		sr.Flagged++
	case processor.ActionRejected:
		sr.Rejected++
	case processor.ActionDuplicate:
		sr.Duplicates++
	}
}

func (a *Agent) countCandidate(r *processor.Result) {
	if a.metrics == nil || r.Candidate == nil {
		return
	}
	a.metrics.CandidatesTotal.WithLabelValues(r.Candidate.Source, string(r.Action)).Inc()
}

func (a *Agent) newSummary(reason string, forced bool) *Summary {
	return &Summary{
		RunID:     uuid.New().String(),
		Reason:    reason,
		Forced:    forced,
		StartedAt: a.now(),
		Results:   make([]*SourceResult, 0),
		Skipped:   make([]models.ScanRecommendation, 0),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
