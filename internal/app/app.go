// Package app wires the curation pipeline from configuration. Both binaries build through it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hotdog-curator/internal/agent/scanner"
	"github.com/hotdog-curator/internal/ai"
	"github.com/hotdog-curator/internal/classifier"
	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/dedup"
	"github.com/hotdog-curator/internal/lock"
	"github.com/hotdog-curator/internal/metrics"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/processor"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/internal/source"
	"github.com/hotdog-curator/internal/source/reddit"
	"github.com/hotdog-curator/internal/source/rss"
	"github.com/hotdog-curator/internal/storage/sqlite"
	"github.com/hotdog-curator/internal/tracker"
	"github.com/hotdog-curator/pkg/logger"
	"github.com/hotdog-curator/pkg/ratelimit"
)

// App holds every wired component
type App struct {
	Config     *config.Config
	Repo       *sqlite.Repository
	Limiter    *ratelimit.MultiLimiter
	Classifier classifier.Classifier
	Processor  *processor.Processor
	Queue      *queue.Manager
	Connectors *source.Registry
	Locker     lock.Locker
	Metrics    *metrics.Metrics
	Scanner    *scanner.Agent

	redis *redis.Client
	log   *logger.Logger
}

// New opens storage, runs migrations and builds the pipeline
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	repo, err := sqlite.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		Config:  cfg,
		Repo:    repo,
		Limiter: ratelimit.NewLimiter(cfg.RateLimit.AnthropicRequestsPerMinute, cfg.RateLimit.SourceRequestsPerMinute),
		Metrics: metrics.New(),
		log:     log,
	}

	a.Classifier, err = NewClassifier(cfg, a.Limiter, log)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	if err := a.initLocker(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}

	profiles := cfg.Profiles()
	procCfg := ProcessorConfig(cfg, profiles)
	detector := dedup.NewDetector(repo, procCfg.RepostPolicy, DetectorConfig(cfg), log)
	a.Processor = processor.New(repo, detector, a.Classifier, procCfg, log)
	a.Queue = queue.NewManager(repo, QueueTargets(cfg), QueueProfiles(profiles), log)
	a.Connectors = Connectors(cfg, a.Limiter, log)

	queries := make(map[string]string, len(profiles))
	for _, p := range profiles {
		queries[p.Name] = p.Query
	}

	a.Scanner = scanner.NewAgent(a.Queue, a.Processor, a.Connectors, queries, a.Locker, a.Metrics, ScannerConfig(cfg), log)
	return a, nil
}

// initLocker uses Redis when enabled so several processes share scan locks
func (a *App) initLocker(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		a.Locker = lock.NewLocalLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.redis = client
	a.Locker = lock.NewRedisLocker(client, a.Config.Redis.KeyPrefix)
	a.log.Info().Str("addr", a.Config.Redis.Addr).Msg("Using Redis scan locks")
	return nil
}

// Tracker returns the review sheet exporter, or an error when it is not configured
func (a *App) Tracker(ctx context.Context) (*tracker.SheetsTracker, error) {
	if !a.Config.Tracker.Enabled {
		return nil, errors.New("tracker is disabled: set tracker.enabled")
	}
	return tracker.NewSheetsTracker(ctx, a.Config.Tracker, a.log)
}

// Close releases storage and lock connections
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.Repo.Close())
	return errors.Join(errs...)
}

// NewClassifier builds the configured classifier
func NewClassifier(cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (classifier.Classifier, error) {
	switch cfg.Classifier.Provider {
	case "", "rules":
		return classifier.NewRules(classifier.RulesConfig{
			RequiredTerms:      cfg.Classifier.RequiredTerms,
			SpamPatterns:       cfg.Classifier.SpamPatterns,
			InappropriateTerms: cfg.Classifier.InappropriateTerms,
		}), nil
	case "claude":
		if cfg.Anthropic.APIKey == "" {
			return nil, errors.New("claude classifier requires anthropic.api_key")
		}
		return ai.NewClient(cfg.Anthropic, limiter, log), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s", cfg.Classifier.Provider)
	}
}

// ProcessorConfig maps processing settings and per-source profiles onto the processor
func ProcessorConfig(cfg *config.Config, profiles []config.SourceProfile) processor.Config {
	p := cfg.Processing
	out := processor.Config{
		AutoApproveThreshold: p.AutoApproveThreshold,
		AutoRejectThreshold:  p.AutoRejectThreshold,
		RequireManualReview:  p.RequireManualReview,
		DedupEnabled:         p.DedupEnabled,
		RequiredTerms:        cfg.Classifier.RequiredTerms,
		Filters:              make(map[string]processor.Filters, len(profiles)),
		BatchSize:            p.BatchSize,
		Concurrency:          p.Concurrency,
		MaxAttempts:          p.MaxAttempts,
	}
	if len(out.RequiredTerms) == 0 {
		out.RequiredTerms = classifier.DefaultRequiredTerms
	}

	days := make(map[string]int, len(profiles))
	for _, sp := range profiles {
		out.KnownSources = append(out.KnownSources, sp.Name)
		out.Filters[sp.Name] = processor.Filters{
			Spam:          sp.Filters.SpamEnabled(),
			Inappropriate: sp.Filters.InappropriateEnabled(),
			Unrelated:     sp.Filters.UnrelatedEnabled(),
			RequiredTerms: sp.Filters.RequiredTermsEnabled(),
		}
		days[sp.Name] = sp.RepostDays
	}
	out.RepostPolicy = models.NewRepostPolicy(days)

	return out
}

// DetectorConfig overlays configured dedup knobs on the defaults
func DetectorConfig(cfg *config.Config) dedup.Config {
	d := dedup.DefaultConfig()
	c := cfg.Processing.Dedup
	if c.FuzzyThreshold > 0 {
		d.FuzzyThreshold = c.FuzzyThreshold
	}
	if c.FuzzyMinLength > 0 {
		d.FuzzyMinLength = c.FuzzyMinLength
	}
	if c.FuzzyPageSize > 0 {
		d.FuzzyPageSize = c.FuzzyPageSize
	}
	if c.SingleSignalThreshold > 0 {
		d.SingleSignalThreshold = c.SingleSignalThreshold
	}
	return d
}

// QueueTargets maps queue settings onto balance targets
func QueueTargets(cfg *config.Config) queue.Targets {
	t := queue.DefaultTargets()
	q := cfg.Queue
	if q.MinSize > 0 {
		t.MinSize = q.MinSize
	}
	if q.MaxSize > 0 {
		t.MaxSize = q.MaxSize
	}
	if q.PostsPerDay > 0 {
		t.PostsPerDay = q.PostsPerDay
	}
	if q.DefaultSourceShare > 0 {
		t.DefaultSourceShare = q.DefaultSourceShare
	}
	if len(q.TypeTargets) > 0 {
		t.TypeMix = make(map[models.ContentType]float64, len(q.TypeTargets))
		for k, v := range q.TypeTargets {
			t.TypeMix[models.ContentType(k)] = v
		}
	}
	return t
}

// QueueProfiles converts configured profiles into balancing profiles
func QueueProfiles(profiles []config.SourceProfile) []queue.SourceProfile {
	out := make([]queue.SourceProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, queue.SourceProfile{
			Name:        p.Name,
			PrimaryType: models.ContentType(p.PrimaryType),
			TargetShare: p.TargetShare,
		})
	}
	return out
}

// ScannerConfig maps scan settings onto the orchestrator
func ScannerConfig(cfg *config.Config) scanner.Config {
	s := scanner.DefaultConfig()
	s.Delay = cfg.Scan.Delay
	if cfg.Scan.LockTTL > 0 {
		s.LockTTL = cfg.Scan.LockTTL
	}
	if cfg.Scan.HighBudget > 0 {
		s.HighBudget = cfg.Scan.HighBudget
	}
	if cfg.Scan.MediumBudget > 0 {
		s.MediumBudget = cfg.Scan.MediumBudget
	}
	if cfg.Scan.LowBudget > 0 {
		s.LowBudget = cfg.Scan.LowBudget
	}
	if cfg.Queue.HighWaterDays > 0 {
		s.HighWaterDays = cfg.Queue.HighWaterDays
	}
	return s
}

// Connectors registers one connector per enabled feed and subreddit
func Connectors(cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) *source.Registry {
	registry := source.NewRegistry()
	if cfg.Sources.RSS.Enabled {
		for _, src := range rss.NewMultiple(cfg.Sources.RSS, limiter, log) {
			registry.Register(src)
		}
	}
	if cfg.Sources.Reddit.Enabled {
		for _, src := range reddit.NewMultiple(cfg.Sources.Reddit, limiter, log) {
			registry.Register(src)
		}
	}
	return registry
}
