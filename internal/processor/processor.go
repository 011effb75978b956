// Package processor moves a candidate from discovered to exactly one terminal curation state.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hotdog-curator/internal/classifier"
	"github.com/hotdog-curator/internal/dedup"
	"github.com/hotdog-curator/internal/hashing"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/pkg/logger"
)

// Action is the terminal outcome of processing one candidate
type Action string

const (
	ActionApproved  Action = "approved"
	ActionFlagged   Action = "flagged"
	ActionRejected  Action = "rejected"
	ActionDuplicate Action = "duplicate"
)

// Status maps the action onto the entry state it produces
func (a Action) Status() models.EntryStatus {
	return models.EntryStatus(a)
}

// Store is the slice of the repository the processor reads and writes
type Store interface {
	dedup.Store
	SaveProcessed(ctx context.Context, entry *models.QueueEntry, analysis *models.ContentAnalysis, notBefore time.Time) (*models.QueueEntry, error)
}

// Filters toggles individual content filters for one source
type Filters struct {
	Spam          bool
	Inappropriate bool
	Unrelated     bool
	RequiredTerms bool
}

// AllFilters enables every filter
func AllFilters() Filters {
	return Filters{Spam: true, Inappropriate: true, Unrelated: true, RequiredTerms: true}
}

// Config holds processor settings
type Config struct {
	AutoApproveThreshold float64
	AutoRejectThreshold  float64
	RequireManualReview  bool
	DedupEnabled         bool
	RequiredTerms        []string
	Filters              map[string]Filters // per source, missing sources get AllFilters
	KnownSources         []string           // empty accepts any named source
	RepostPolicy         models.RepostPolicy
	BatchSize            int
	Concurrency          int
	MaxAttempts          int
}

// DefaultConfig returns the standard processor settings
func DefaultConfig() Config {
	return Config{
		AutoApproveThreshold: 0.8,
		AutoRejectThreshold:  0.3,
		DedupEnabled:         true,
		RequiredTerms:        classifier.DefaultRequiredTerms,
		RepostPolicy:         models.RepostPolicy{Default: models.DefaultRepostWindow},
		BatchSize:            10,
		Concurrency:          4,
		MaxAttempts:          3,
	}
}

// FiltersFor returns the filter toggles for a source
func (c Config) FiltersFor(source string) Filters {
	if f, ok := c.Filters[source]; ok {
		return f
	}
	return AllFilters()
}

// Result is the outcome of processing one candidate
type Result struct {
	Candidate *models.CandidateItem
	Action    Action
	Entry     *models.QueueEntry
	Analysis  *models.ContentAnalysis
	Dedup     *dedup.Result
	Reason    string
	Err       error
	Duration  time.Duration
}

// Failed reports whether processing hit an unexpected error and may be retried
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Processor runs the curation sequence for candidates
type Processor struct {
	store      Store
	detector   *dedup.Detector
	classifier classifier.Classifier
	required   *classifier.TermMatcher
	known      map[string]bool
	config     Config
	now        func() time.Time
	log        *logger.Logger
}

// New creates a new processor. detector may be nil when deduplication is disabled.
func New(store Store, detector *dedup.Detector, cls classifier.Classifier, cfg Config, log *logger.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	known := make(map[string]bool, len(cfg.KnownSources))
	for _, s := range cfg.KnownSources {
		known[s] = true
	}

	return &Processor{
		store:      store,
		detector:   detector,
		classifier: cls,
		required:   classifier.NewTermMatcher(cfg.RequiredTerms),
		known:      known,
		config:     cfg,
		now:        time.Now,
		log:        log.WithComponent("processor"),
	}
}

// Config returns the processor settings
func (p *Processor) Config() Config {
	return p.config
}

// Process runs one candidate through validation, deduplication, classification and
// persistence. It never returns an error: failures become rejected results.
func (p *Processor) Process(ctx context.Context, c *models.CandidateItem) (result *Result) {
	start := p.now()
	result = &Result{Candidate: c}

	defer func() {
		if r := recover(); r != nil {
			result.Action = ActionRejected
			result.Err = fmt.Errorf("panic during processing: %v", r)
			result.Reason = result.Err.Error()
			p.log.Error().Interface("panic", r).Str("source", sourceOf(c)).Msg("Recovered from processing panic")
		}
		result.Duration = time.Since(start)
	}()

	if err := p.validate(c); err != nil {
		result.Action = ActionRejected
		result.Reason = err.Error()
		return result
	}

	fp := hashing.Normalize(c)
	entry := models.NewQueueEntry(c, fp)
	analysis := &models.ContentAnalysis{}
	result.Entry = entry
	result.Analysis = analysis

	if p.config.DedupEnabled && p.detector != nil {
		check, err := p.detector.Check(ctx, c, fp)
		if err != nil {
			return p.fail(result, fmt.Errorf("duplicate check: %w", err))
		}
		result.Dedup = check
		if check.IsDuplicate {
			entry.SetStatus(models.EntryStatusDuplicate)
			analysis.DuplicateOfID = check.MatchedEntryID
			analysis.DuplicateMatchType = string(check.MatchType)
			analysis.Confidence = check.Confidence
			analysis.ProcessingNotes = fmt.Sprintf("duplicate of entry %d (%s match, confidence %.2f)",
				derefID(check.MatchedEntryID), check.MatchType, check.Confidence)
			return p.persist(ctx, result, ActionDuplicate, "duplicate content")
		}
	}

	judgment, err := p.classifier.Classify(ctx, classifier.Input{
		Text:     c.Text,
		ImageURL: c.Media.ImageURL(),
		VideoURL: c.Media.VideoURL(),
		Metadata: inputMetadata(c),
	})
	if err != nil {
		return p.fail(result, fmt.Errorf("classification: %w", err))
	}
	if judgment == nil {
		return p.fail(result, errors.New("classification returned no judgment"))
	}

	p.applyFilters(c, judgment)

	action, reason := p.decide(judgment)
	entry.SetStatus(action.Status())

	analysis.IsSpam = judgment.IsSpam
	analysis.IsInappropriate = judgment.IsInappropriate
	analysis.IsUnrelated = judgment.IsUnrelated
	analysis.IsValidHotdog = judgment.IsValid
	analysis.Confidence = judgment.Confidence
	analysis.FlaggedPatterns = models.StringSlice(judgment.FlaggedPatterns)
	analysis.ProcessingNotes = reason
	if judgment.Notes != "" {
		analysis.ProcessingNotes += ": " + judgment.Notes
	}

	return p.persist(ctx, result, action, reason)
}

// validate performs structural checks that need no I/O
func (p *Processor) validate(c *models.CandidateItem) error {
	if c == nil {
		return errors.New("invalid candidate: nil")
	}
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("invalid candidate: missing source")
	}
	if len(p.known) > 0 && !p.known[c.Source] {
		return fmt.Errorf("invalid candidate: unknown source %q", c.Source)
	}
	if !c.HasContent() {
		return errors.New("invalid candidate: no text, image or video")
	}
	for field, raw := range map[string]string{
		"source_url": c.SourceURL,
		"image_url":  c.Media.ImageURL(),
		"video_url":  c.Media.VideoURL(),
	} {
		if raw != "" && !wellFormedURL(raw) {
			return fmt.Errorf("invalid candidate: malformed %s %q", field, raw)
		}
	}
	return nil
}

func wellFormedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// applyFilters clears verdicts for filters disabled on the source, then applies the
// required-terms check to candidates that carry text
func (p *Processor) applyFilters(c *models.CandidateItem, j *classifier.Judgment) {
	filters := p.config.FiltersFor(c.Source)

	if !filters.Spam {
		j.IsSpam = false
	}
	if !filters.Inappropriate {
		j.IsInappropriate = false
	}
	if !filters.Unrelated {
		j.IsUnrelated = false
	}

	if filters.RequiredTerms && !p.required.Empty() && strings.TrimSpace(c.Text) != "" {
		if !p.required.Contains(c.Text + " " + c.Metadata["title"]) {
			j.IsUnrelated = true
			j.FlaggedPatterns = append(j.FlaggedPatterns, "missing_required_terms")
		}
	}
}

// decide maps a judgment to an action. The ambiguous band always goes to manual review.
func (p *Processor) decide(j *classifier.Judgment) (Action, string) {
	switch {
	case j.IsSpam:
		return ActionRejected, "spam detected"
	case j.IsInappropriate:
		return ActionRejected, "inappropriate content"
	case j.IsUnrelated:
		return ActionFlagged, "unrelated to topic"
	case j.Confidence >= p.config.AutoApproveThreshold && j.IsValid:
		if p.config.RequireManualReview {
			return ActionFlagged, "manual review required"
		}
		return ActionApproved, "auto-approved"
	case j.Confidence <= p.config.AutoRejectThreshold:
		return ActionRejected, "low confidence"
	default:
		return ActionFlagged, "ambiguous confidence"
	}
}

// persist writes entry and analysis in one transaction. A content hash already queued inside
// the repost window turns the result into a duplicate of that entry.
func (p *Processor) persist(ctx context.Context, result *Result, action Action, reason string) *Result {
	window := p.config.RepostPolicy.Window(result.Entry.Source)
	if p.detector != nil {
		window = p.detector.Window(result.Entry.Source)
	}
	notBefore := p.now().Add(-window)

	saved, err := p.store.SaveProcessed(ctx, result.Entry, result.Analysis, notBefore)
	switch {
	case errors.Is(err, storage.ErrContentExists):
		result.Action = ActionDuplicate
		result.Reason = "content already queued"
		if saved != nil {
			id := saved.ID
			result.Analysis.DuplicateOfID = &id
			result.Analysis.DuplicateMatchType = string(dedup.MatchExact)
			result.Entry = saved
		}
		return result
	case err != nil:
		return p.fail(result, fmt.Errorf("persist: %w", err))
	}

	result.Entry = saved
	result.Action = action
	result.Reason = reason

	p.log.WithEntryID(saved.ID).Debug().
		Str("source", saved.Source).
		Str("action", string(action)).
		Float64("confidence", result.Analysis.Confidence).
		Msg("Processed candidate")

	return result
}

func (p *Processor) fail(result *Result, err error) *Result {
	result.Action = ActionRejected
	result.Err = err
	result.Reason = err.Error()

	p.log.Warn().
		Err(err).
		Str("source", sourceOf(result.Candidate)).
		Msg("Candidate processing failed")

	return result
}

func inputMetadata(c *models.CandidateItem) map[string]string {
	meta := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["source"] = c.Source
	return meta
}

func sourceOf(c *models.CandidateItem) string {
	if c == nil {
		return ""
	}
	return c.Source
}

func derefID(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
