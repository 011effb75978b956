// Package dedup decides whether a candidate reposts content already in the queue.
//
// An identical content hash inside the source's repost window is always a duplicate. Otherwise
// up to four weak signals are evaluated (URL, image, video, fuzzy text). A single weak signal is
// only trusted above SingleSignalThreshold; two or more corroborating signals are enough.
package dedup

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hotdog-curator/internal/hashing"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/pkg/logger"
)

// MatchType names the signal that identified a duplicate
type MatchType string

const (
	MatchNone     MatchType = ""
	MatchExact    MatchType = "exact"
	MatchURL      MatchType = "url"
	MatchImage    MatchType = "image"
	MatchVideo    MatchType = "video"
	MatchFuzzy    MatchType = "fuzzy"
	MatchCombined MatchType = "combined"
)

// Store is the read side of the datastore the detector needs
type Store interface {
	FindByHash(ctx context.Context, field storage.HashField, hash string, since time.Time) ([]*models.QueueEntry, error)
	ListSince(ctx context.Context, since time.Time, offset, limit int) ([]*models.QueueEntry, error)
}

// Config holds the detector's policy knobs
type Config struct {
	URLConfidence         float64
	ImageConfidence       float64
	VideoConfidence       float64
	FuzzyThreshold        float64
	FuzzyMinLength        int
	FuzzyPageSize         int
	SingleSignalThreshold float64
	CorroborationBoost    float64
}

// DefaultConfig returns the standard detector policy
func DefaultConfig() Config {
	return Config{
		URLConfidence:         0.95,
		ImageConfidence:       0.85,
		VideoConfidence:       0.90,
		FuzzyThreshold:        0.95,
		FuzzyMinLength:        20,
		FuzzyPageSize:         500,
		SingleSignalThreshold: 0.98,
		CorroborationBoost:    0.05,
	}
}

// Signal is one piece of evidence that a candidate repeats an existing entry
type Signal struct {
	Type       MatchType
	Confidence float64
	Matches    []*models.QueueEntry
}

// Result is the detector's verdict for one candidate
type Result struct {
	IsDuplicate    bool
	MatchedEntryID *uint
	MatchType      MatchType
	Confidence     float64
	Signals        []Signal
	Window         time.Duration
}

// Detector checks candidates against recent queue entries
type Detector struct {
	store  Store
	policy models.RepostPolicy
	config Config
	now    func() time.Time
	log    *logger.Logger
}

// NewDetector creates a new duplicate detector
func NewDetector(store Store, policy models.RepostPolicy, cfg Config, log *logger.Logger) *Detector {
	return &Detector{
		store:  store,
		policy: policy,
		config: cfg,
		now:    time.Now,
		log:    log.WithComponent("dedup"),
	}
}

// Window returns the repost window applied to a source
func (d *Detector) Window(source string) time.Duration {
	return d.policy.Window(source)
}

// Check decides whether the candidate is a repost of existing content
func (d *Detector) Check(ctx context.Context, c *models.CandidateItem, fp models.Fingerprints) (*Result, error) {
	window := d.policy.Window(c.Source)
	since := d.now().Add(-window)
	result := &Result{Window: window}

	exact, err := d.store.FindByHash(ctx, storage.HashContent, fp.ExactHash, since)
	if err != nil {
		return nil, fmt.Errorf("exact hash lookup: %w", err)
	}
	if len(exact) > 0 {
		signal := Signal{Type: MatchExact, Confidence: 1.0, Matches: exact}
		result.Signals = []Signal{signal}
		d.markDuplicate(result, MatchExact, 1.0)
		return result, nil
	}

	signals, err := d.weakSignals(ctx, c, fp, since)
	if err != nil {
		return nil, err
	}
	result.Signals = signals

	switch {
	case len(signals) >= 2:
		best := bestConfidence(signals)
		confidence := math.Min(1.0, best+d.config.CorroborationBoost*float64(len(signals)-1))
		d.markDuplicate(result, MatchCombined, confidence)
	case len(signals) == 1 && signals[0].Confidence > d.config.SingleSignalThreshold:
		d.markDuplicate(result, signals[0].Type, signals[0].Confidence)
	case len(signals) == 1:
		d.log.Debug().
			Str("source", c.Source).
			Str("signal", string(signals[0].Type)).
			Float64("confidence", signals[0].Confidence).
			Msg("Single weak duplicate signal ignored")
	}

	return result, nil
}

func (d *Detector) weakSignals(ctx context.Context, c *models.CandidateItem, fp models.Fingerprints, since time.Time) ([]Signal, error) {
	var signals []Signal

	lookups := []struct {
		field      storage.HashField
		hash       string
		matchType  MatchType
		confidence float64
		enabled    bool
	}{
		{storage.HashURL, fp.URLHash, MatchURL, d.config.URLConfidence, fp.URLHash != ""},
		{storage.HashImage, fp.ImageHash, MatchImage, d.config.ImageConfidence, c.Media.HasImage()},
		{storage.HashVideo, fp.VideoHash, MatchVideo, d.config.VideoConfidence, c.Media.HasVideo()},
	}

	for _, l := range lookups {
		if !l.enabled {
			continue
		}
		matches, err := d.store.FindByHash(ctx, l.field, l.hash, since)
		if err != nil {
			return nil, fmt.Errorf("%s hash lookup: %w", l.matchType, err)
		}
		if len(matches) > 0 {
			signals = append(signals, Signal{Type: l.matchType, Confidence: l.confidence, Matches: matches})
		}
	}

	fuzzy, err := d.fuzzySignal(ctx, fp, since)
	if err != nil {
		return nil, err
	}
	if fuzzy != nil {
		signals = append(signals, *fuzzy)
	}

	return signals, nil
}

// fuzzySignal compares normalized text against every entry in the window, a page at a
// time. Short texts are exempt.
func (d *Detector) fuzzySignal(ctx context.Context, fp models.Fingerprints, since time.Time) (*Signal, error) {
	if len([]rune(fp.NormalizedText)) < d.config.FuzzyMinLength {
		return nil, nil
	}

	pageSize := d.config.FuzzyPageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	var (
		best    float64
		matches []*models.QueueEntry
	)
	for offset := 0; ; offset += pageSize {
		page, err := d.store.ListSince(ctx, since, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("recent entries lookup: %w", err)
		}

		for _, entry := range page {
			sim := hashing.Similarity(fp.NormalizedText, entry.NormalizedText)
			if sim < d.config.FuzzyThreshold {
				continue
			}
			matches = append(matches, entry)
			if sim > best {
				best = sim
			}
		}

		if len(page) < pageSize {
			break
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}
	return &Signal{Type: MatchFuzzy, Confidence: best, Matches: matches}, nil
}

// markDuplicate records the verdict; the original is the earliest matched entry
func (d *Detector) markDuplicate(result *Result, matchType MatchType, confidence float64) {
	result.IsDuplicate = true
	result.MatchType = matchType
	result.Confidence = confidence

	var all []*models.QueueEntry
	for _, s := range result.Signals {
		all = append(all, s.Matches...)
	}
	if len(all) == 0 {
		return
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	id := all[0].ID
	result.MatchedEntryID = &id
}

func bestConfidence(signals []Signal) float64 {
	var best float64
	for _, s := range signals {
		if s.Confidence > best {
			best = s.Confidence
		}
	}
	return best
}
