// Package queue derives queue statistics and decides which sources are worth scanning.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/pkg/logger"
)

// Reasons reported by ShouldScan
const (
	ReasonQueueFull        = "queue full"
	ReasonOverRepresented  = "source over-represented"
	ReasonTypeSufficient   = "content type sufficient"
	ReasonNeedType         = "need more of this type"
	ReasonBelowMinimum     = "below minimum"
	ReasonWithinLimits     = "within acceptable limits"
	overTargetFactor       = 1.5
	underTargetFactor      = 0.5
	defaultSourceShareRate = 0.20
)

// CountStore provides the aggregate the manager derives everything from
type CountStore interface {
	CountQueue(ctx context.Context) ([]storage.QueueCount, error)
}

// Targets are the static balance goals for the queue
type Targets struct {
	TypeMix            map[models.ContentType]float64
	DefaultSourceShare float64
	MinSize            int
	MaxSize            int
	PostsPerDay        int
}

// DefaultTargets returns the standard queue balance goals
func DefaultTargets() Targets {
	return Targets{
		TypeMix: map[models.ContentType]float64{
			models.ContentTypeVideo: 0.30,
			models.ContentTypeGIF:   0.25,
			models.ContentTypeImage: 0.40,
			models.ContentTypeText:  0.05,
		},
		DefaultSourceShare: defaultSourceShareRate,
		MinSize:            21,
		MaxSize:            42,
		PostsPerDay:        3,
	}
}

// SourceProfile is the fixed balancing identity of one source
type SourceProfile struct {
	Name        string
	PrimaryType models.ContentType
	TargetShare float64
}

// Manager computes queue statistics and scan recommendations
type Manager struct {
	store    CountStore
	targets  Targets
	profiles []SourceProfile
	byName   map[string]SourceProfile
	now      func() time.Time
	log      *logger.Logger
}

// NewManager creates a new queue manager
func NewManager(store CountStore, targets Targets, profiles []SourceProfile, log *logger.Logger) *Manager {
	if targets.PostsPerDay <= 0 {
		targets.PostsPerDay = 3
	}
	if targets.DefaultSourceShare <= 0 {
		targets.DefaultSourceShare = defaultSourceShareRate
	}

	byName := make(map[string]SourceProfile, len(profiles))
	for i, p := range profiles {
		if p.TargetShare <= 0 {
			p.TargetShare = targets.DefaultSourceShare
			profiles[i] = p
		}
		byName[p.Name] = p
	}

	return &Manager{
		store:    store,
		targets:  targets,
		profiles: profiles,
		byName:   byName,
		now:      time.Now,
		log:      log.WithComponent("queue"),
	}
}

// Targets returns the configured balance goals
func (m *Manager) Targets() Targets {
	return m.targets
}

// Sources returns the names of all profiled sources in configuration order
func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.profiles))
	for _, p := range m.profiles {
		names = append(names, p.Name)
	}
	return names
}

// Profile returns the profile for a source, falling back to the default share
func (m *Manager) Profile(source string) SourceProfile {
	if p, ok := m.byName[source]; ok {
		return p
	}
	return SourceProfile{Name: source, TargetShare: m.targets.DefaultSourceShare}
}

// GetStats computes statistics over approved, unposted entries
func (m *Manager) GetStats(ctx context.Context) (*models.QueueStats, error) {
	counts, err := m.store.CountQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	return BuildStats(counts, m.targets.PostsPerDay, m.now()), nil
}

// BuildStats turns grouped counts into queue statistics
func BuildStats(counts []storage.QueueCount, postsPerDay int, at time.Time) *models.QueueStats {
	stats := &models.QueueStats{
		BySource:      make(map[string]models.Bucket),
		ByContentType: make(map[models.ContentType]models.Bucket),
		ComputedAt:    at,
	}

	bySource := make(map[string]int)
	byType := make(map[models.ContentType]int)
	for _, c := range counts {
		stats.Total += c.Count
		bySource[c.Source] += c.Count
		byType[c.ContentType] += c.Count
	}

	for source, n := range bySource {
		stats.BySource[source] = bucket(n, stats.Total)
	}
	for ct, n := range byType {
		stats.ByContentType[ct] = bucket(n, stats.Total)
	}
	if postsPerDay > 0 {
		stats.DaysOfContent = float64(stats.Total) / float64(postsPerDay)
	}
	return stats
}

func bucket(n, total int) models.Bucket {
	b := models.Bucket{Count: n}
	if total > 0 {
		b.Percentage = float64(n) / float64(total) * 100
	}
	return b
}

// ShouldScan decides whether a source is worth scanning right now
func (m *Manager) ShouldScan(ctx context.Context, source string) (models.ScanRecommendation, error) {
	stats, err := m.GetStats(ctx)
	if err != nil {
		return models.ScanRecommendation{}, err
	}
	return m.Decide(stats, m.Profile(source)), nil
}

// Decide applies the balance rules in order; the first matching rule wins
func (m *Manager) Decide(stats *models.QueueStats, p SourceProfile) models.ScanRecommendation {
	rec := models.ScanRecommendation{Source: p.Name, TargetType: p.PrimaryType}
	typeTarget := m.targets.TypeMix[p.PrimaryType]
	sourceShare := stats.SourceShare(p.Name)
	typeShare := stats.TypeShare(p.PrimaryType)

	switch {
	case m.targets.MaxSize > 0 && stats.Total >= m.targets.MaxSize:
		rec.Priority = models.PrioritySkip
		rec.Reason = fmt.Sprintf("%s (%d/%d)", ReasonQueueFull, stats.Total, m.targets.MaxSize)
	case sourceShare > overTargetFactor*p.TargetShare:
		rec.Priority = models.PrioritySkip
		rec.Reason = fmt.Sprintf("%s (%.0f%% vs %.0f%% target)", ReasonOverRepresented, sourceShare*100, p.TargetShare*100)
	case typeTarget > 0 && typeShare > overTargetFactor*typeTarget:
		rec.Priority = models.PrioritySkip
		rec.Reason = fmt.Sprintf("%s (%s at %.0f%% vs %.0f%% target)", ReasonTypeSufficient, p.PrimaryType, typeShare*100, typeTarget*100)
	case typeTarget > 0 && typeShare < underTargetFactor*typeTarget:
		rec.Priority = models.PriorityHigh
		rec.Reason = fmt.Sprintf("%s (%s at %.0f%% vs %.0f%% target)", ReasonNeedType, p.PrimaryType, typeShare*100, typeTarget*100)
	case stats.Total < m.targets.MinSize:
		rec.Priority = models.PriorityMedium
		rec.Reason = fmt.Sprintf("%s (%d/%d)", ReasonBelowMinimum, stats.Total, m.targets.MinSize)
	default:
		rec.Priority = models.PriorityLow
		rec.Reason = ReasonWithinLimits
	}

	return rec
}

// GetRecommendations returns one recommendation per profiled source, most urgent first
func (m *Manager) GetRecommendations(ctx context.Context) ([]models.ScanRecommendation, error) {
	stats, err := m.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return m.Recommend(stats), nil
}

// Recommend evaluates every profiled source against the given stats
func (m *Manager) Recommend(stats *models.QueueStats) []models.ScanRecommendation {
	recs := make([]models.ScanRecommendation, 0, len(m.profiles))
	for _, p := range m.profiles {
		recs = append(recs, m.Decide(stats, p))
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})

	m.log.Debug().
		Int("sources", len(recs)).
		Int("total", stats.Total).
		Msg("Computed scan recommendations")

	return recs
}

// HealthReport lists every imbalance found in the queue
type HealthReport struct {
	Healthy bool               `json:"healthy" yaml:"healthy"`
	Issues  []string           `json:"issues" yaml:"issues"`
	Stats   *models.QueueStats `json:"stats" yaml:"stats"`
}

// HealthCheck re-derives every deviation check independently and reports all of them
func (m *Manager) HealthCheck(ctx context.Context) (*HealthReport, error) {
	stats, err := m.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return m.Health(stats), nil
}

// Health builds a report for the given stats
func (m *Manager) Health(stats *models.QueueStats) *HealthReport {
	issues := make([]string, 0)

	if stats.Total < m.targets.MinSize {
		issues = append(issues, fmt.Sprintf("queue too small: %d items (minimum %d)", stats.Total, m.targets.MinSize))
	}
	if m.targets.MaxSize > 0 && stats.Total >= m.targets.MaxSize {
		issues = append(issues, fmt.Sprintf("queue too large: %d items (maximum %d)", stats.Total, m.targets.MaxSize))
	}

	for _, ct := range models.ContentTypes {
		target, ok := m.targets.TypeMix[ct]
		if !ok || target <= 0 {
			continue
		}
		share := stats.TypeShare(ct)
		switch {
		case share > overTargetFactor*target:
			issues = append(issues, fmt.Sprintf("too much %s content: %.0f%% (target %.0f%%)", ct, share*100, target*100))
		case share < underTargetFactor*target:
			issues = append(issues, fmt.Sprintf("not enough %s content: %.0f%% (target %.0f%%)", ct, share*100, target*100))
		}
	}

	sources := make([]string, 0, len(stats.BySource))
	for s := range stats.BySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		target := m.Profile(s).TargetShare
		share := stats.SourceShare(s)
		if share > overTargetFactor*target {
			issues = append(issues, fmt.Sprintf("source %s over-represented: %.0f%% (target %.0f%%)", s, share*100, target*100))
		}
	}

	return &HealthReport{
		Healthy: len(issues) == 0,
		Issues:  issues,
		Stats:   stats,
	}
}
