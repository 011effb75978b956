package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Server     ServerConfig     `mapstructure:"server"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ClassifierConfig selects and tunes the content classifier
type ClassifierConfig struct {
	Provider           string   `mapstructure:"provider"` // rules or claude
	RequiredTerms      []string `mapstructure:"required_terms"`
	SpamPatterns       []string `mapstructure:"spam_patterns"`
	InappropriateTerms []string `mapstructure:"inappropriate_terms"`
}

// ProcessingConfig holds content processor settings
type ProcessingConfig struct {
	AutoApproveThreshold float64     `mapstructure:"auto_approve_threshold"`
	AutoRejectThreshold  float64     `mapstructure:"auto_reject_threshold"`
	RequireManualReview  bool        `mapstructure:"require_manual_review"`
	DedupEnabled         bool        `mapstructure:"dedup_enabled"`
	BatchSize            int         `mapstructure:"batch_size"`
	Concurrency          int         `mapstructure:"concurrency"`
	MaxAttempts          int         `mapstructure:"max_attempts"`
	Dedup                DedupConfig `mapstructure:"dedup"`
}

// DedupConfig tunes the duplicate detector
type DedupConfig struct {
	FuzzyThreshold        float64 `mapstructure:"fuzzy_threshold"`
	FuzzyMinLength        int     `mapstructure:"fuzzy_min_length"`
	FuzzyPageSize         int     `mapstructure:"fuzzy_page_size"`
	SingleSignalThreshold float64 `mapstructure:"single_signal_threshold"`
}

// QueueConfig holds queue balance targets
type QueueConfig struct {
	MinSize            int                `mapstructure:"min_size"`
	MaxSize            int                `mapstructure:"max_size"`
	PostsPerDay        int                `mapstructure:"posts_per_day"`
	HighWaterDays      float64            `mapstructure:"high_water_days"`
	TypeTargets        map[string]float64 `mapstructure:"type_targets"`
	DefaultSourceShare float64            `mapstructure:"default_source_share"`
}

// ScanConfig holds scan orchestration settings
type ScanConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	HighBudget   int           `mapstructure:"high_budget"`
	MediumBudget int           `mapstructure:"medium_budget"`
	LowBudget    int           `mapstructure:"low_budget"`
}

// SourcesConfig holds all connector configurations
type SourcesConfig struct {
	RSS    RSSConfig    `mapstructure:"rss"`
	Reddit RedditConfig `mapstructure:"reddit"`
}

// FilterConfig toggles content filters for a single source. Unset toggles are enabled.
type FilterConfig struct {
	Spam          *bool `mapstructure:"spam"`
	Inappropriate *bool `mapstructure:"inappropriate"`
	Unrelated     *bool `mapstructure:"unrelated"`
	RequiredTerms *bool `mapstructure:"required_terms"`
}

// SpamEnabled reports whether the spam filter applies
func (f FilterConfig) SpamEnabled() bool { return enabled(f.Spam) }

// InappropriateEnabled reports whether the inappropriate-content filter applies
func (f FilterConfig) InappropriateEnabled() bool { return enabled(f.Inappropriate) }

// UnrelatedEnabled reports whether the off-topic filter applies
func (f FilterConfig) UnrelatedEnabled() bool { return enabled(f.Unrelated) }

// RequiredTermsEnabled reports whether the required-terms filter applies
func (f FilterConfig) RequiredTermsEnabled() bool { return enabled(f.RequiredTerms) }

func enabled(b *bool) bool {
	return b == nil || *b
}

// SourceProfile describes how one source is scanned and balanced
type SourceProfile struct {
	Name        string       `mapstructure:"name"`
	Query       string       `mapstructure:"query"`
	PrimaryType string       `mapstructure:"primary_type"`
	RepostDays  int          `mapstructure:"repost_days"`
	TargetShare float64      `mapstructure:"target_share"`
	Filters     FilterConfig `mapstructure:"filters"`
}

// RSSConfig holds RSS feed settings
type RSSConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Feeds   []RSSFeed `mapstructure:"feeds"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	SourceProfile `mapstructure:",squash"`
	URL           string `mapstructure:"url"`
}

// RedditConfig holds Reddit API settings
type RedditConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	UserAgent    string            `mapstructure:"user_agent"`
	Subreddits   []SubredditConfig `mapstructure:"subreddits"`
}

// SubredditConfig represents a single subreddit source
type SubredditConfig struct {
	SourceProfile `mapstructure:",squash"`
	Subreddit     string `mapstructure:"subreddit"`
	Sort          string `mapstructure:"sort"`
}

// RedisConfig holds the scan lock backend settings
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	DailyScanCron string `mapstructure:"daily_scan_cron"`
	ReviewCron    string `mapstructure:"review_cron"`
	RunOnStart    bool   `mapstructure:"run_on_start"`
}

// ServerConfig holds admin API settings
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	AnthropicRequestsPerMinute int `mapstructure:"anthropic_requests_per_minute"`
	SourceRequestsPerMinute    int `mapstructure:"source_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// TrackerConfig holds Google Sheets review export settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".hotdog-curator"))
		}
	}

	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for secrets and deployment toggles
	_ = v.BindEnv("anthropic.api_key", "CURATOR_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("database.driver", "CURATOR_DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "CURATOR_DATABASE_DSN")
	_ = v.BindEnv("classifier.provider", "CURATOR_CLASSIFIER_PROVIDER")
	_ = v.BindEnv("sources.reddit.client_id", "CURATOR_REDDIT_CLIENT_ID")
	_ = v.BindEnv("sources.reddit.client_secret", "CURATOR_REDDIT_CLIENT_SECRET")
	_ = v.BindEnv("redis.enabled", "CURATOR_REDIS_ENABLED")
	_ = v.BindEnv("redis.addr", "CURATOR_REDIS_ADDR")
	_ = v.BindEnv("redis.password", "CURATOR_REDIS_PASSWORD")
	_ = v.BindEnv("tracker.enabled", "CURATOR_TRACKER_ENABLED")
	_ = v.BindEnv("tracker.spreadsheet_id", "CURATOR_TRACKER_SPREADSHEET_ID")
	_ = v.BindEnv("tracker.credentials_file", "CURATOR_TRACKER_CREDENTIALS_FILE")
	_ = v.BindEnv("tracker.service_account_json", "CURATOR_TRACKER_SERVICE_ACCOUNT_JSON")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.applyProfileDefaults()
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/curator.db")

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.0)

	v.SetDefault("classifier.provider", "rules")

	// Processing defaults
	v.SetDefault("processing.auto_approve_threshold", 0.8)
	v.SetDefault("processing.auto_reject_threshold", 0.3)
	v.SetDefault("processing.require_manual_review", false)
	v.SetDefault("processing.dedup_enabled", true)
	v.SetDefault("processing.batch_size", 10)
	v.SetDefault("processing.concurrency", 4)
	v.SetDefault("processing.max_attempts", 3)
	v.SetDefault("processing.dedup.fuzzy_threshold", 0.95)
	v.SetDefault("processing.dedup.fuzzy_min_length", 20)
	v.SetDefault("processing.dedup.fuzzy_page_size", 500)
	v.SetDefault("processing.dedup.single_signal_threshold", 0.98)

	// Queue defaults
	v.SetDefault("queue.min_size", 21)
	v.SetDefault("queue.max_size", 42)
	v.SetDefault("queue.posts_per_day", 3)
	v.SetDefault("queue.high_water_days", 14.0)
	v.SetDefault("queue.type_targets", map[string]float64{
		"video": 0.30,
		"gif":   0.25,
		"image": 0.40,
		"text":  0.05,
	})
	v.SetDefault("queue.default_source_share", 0.20)

	// Scan defaults
	v.SetDefault("scan.delay", "5s")
	v.SetDefault("scan.lock_ttl", "30m")
	v.SetDefault("scan.high_budget", 15)
	v.SetDefault("scan.medium_budget", 10)
	v.SetDefault("scan.low_budget", 5)

	// Sources defaults
	v.SetDefault("sources.rss.enabled", true)
	v.SetDefault("sources.reddit.enabled", false)
	v.SetDefault("sources.reddit.user_agent", "hotdog-curator/1.0")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "curator:scan-lock:")

	// Scheduler defaults
	v.SetDefault("scheduler.daily_scan_cron", "0 6 * * *") // 6am daily
	v.SetDefault("scheduler.review_cron", "30 6 * * *")    // after the daily scan
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	// Rate limit defaults
	v.SetDefault("rate_limit.anthropic_requests_per_minute", 30)
	v.SetDefault("rate_limit.source_requests_per_minute", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	// Tracker defaults
	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Review")
}

// Profile bounds
const (
	DefaultRepostDays  = 7
	MinRepostDays      = 7
	MaxRepostDays      = 90
	DefaultTargetShare = 0.20
)

// applyProfileDefaults fills per-source fields that viper cannot default inside lists
func (c *Config) applyProfileDefaults() {
	fill := func(p *SourceProfile) {
		if p.RepostDays == 0 {
			p.RepostDays = DefaultRepostDays
		}
		if p.TargetShare == 0 {
			p.TargetShare = c.Queue.DefaultSourceShare
		}
		if p.TargetShare == 0 {
			p.TargetShare = DefaultTargetShare
		}
		if p.PrimaryType == "" {
			p.PrimaryType = "image"
		}
	}
	for i := range c.Sources.RSS.Feeds {
		fill(&c.Sources.RSS.Feeds[i].SourceProfile)
	}
	for i := range c.Sources.Reddit.Subreddits {
		sub := &c.Sources.Reddit.Subreddits[i]
		if sub.Name == "" && sub.Subreddit != "" {
			sub.Name = "reddit-" + strings.ToLower(sub.Subreddit)
		}
		fill(&sub.SourceProfile)
	}
}

// Profiles returns every enabled source profile in configuration order
func (c *Config) Profiles() []SourceProfile {
	var profiles []SourceProfile
	if c.Sources.RSS.Enabled {
		for _, f := range c.Sources.RSS.Feeds {
			profiles = append(profiles, f.SourceProfile)
		}
	}
	if c.Sources.Reddit.Enabled {
		for _, s := range c.Sources.Reddit.Subreddits {
			profiles = append(profiles, s.SourceProfile)
		}
	}
	return profiles
}

var validContentTypes = map[string]bool{
	"text": true, "image": true, "gif": true, "video": true, "mixed": true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	p := c.Processing
	if p.AutoRejectThreshold < 0 || p.AutoApproveThreshold > 1 || p.AutoRejectThreshold >= p.AutoApproveThreshold {
		return fmt.Errorf("processing thresholds must satisfy 0 <= reject < approve <= 1 (got %.2f, %.2f)",
			p.AutoRejectThreshold, p.AutoApproveThreshold)
	}
	if p.BatchSize <= 0 || p.Concurrency <= 0 || p.MaxAttempts <= 0 {
		return fmt.Errorf("processing.batch_size, concurrency and max_attempts must be positive")
	}

	q := c.Queue
	if q.MinSize <= 0 || q.MaxSize <= q.MinSize {
		return fmt.Errorf("queue sizes must satisfy 0 < min_size < max_size (got %d, %d)", q.MinSize, q.MaxSize)
	}
	if q.PostsPerDay <= 0 {
		return fmt.Errorf("queue.posts_per_day must be positive")
	}
	for t, share := range q.TypeTargets {
		if !validContentTypes[t] {
			return fmt.Errorf("queue.type_targets: unknown content type %q", t)
		}
		if share < 0 || share > 1 {
			return fmt.Errorf("queue.type_targets.%s must be within [0, 1]", t)
		}
	}

	if c.Scan.Delay < 0 {
		return fmt.Errorf("scan.delay must not be negative")
	}

	seen := make(map[string]bool)
	for _, prof := range c.Profiles() {
		if prof.Name == "" {
			return fmt.Errorf("every source needs a name")
		}
		if seen[prof.Name] {
			return fmt.Errorf("duplicate source name %q", prof.Name)
		}
		seen[prof.Name] = true

		if prof.RepostDays < MinRepostDays || prof.RepostDays > MaxRepostDays {
			return fmt.Errorf("source %s: repost_days must be within %d-%d", prof.Name, MinRepostDays, MaxRepostDays)
		}
		if prof.TargetShare <= 0 || prof.TargetShare > 1 {
			return fmt.Errorf("source %s: target_share must be within (0, 1]", prof.Name)
		}
		if !validContentTypes[prof.PrimaryType] {
			return fmt.Errorf("source %s: unknown primary_type %q", prof.Name, prof.PrimaryType)
		}
	}

	for _, f := range c.Sources.RSS.Feeds {
		if c.Sources.RSS.Enabled && f.URL == "" {
			return fmt.Errorf("rss feed %s: url is required", f.Name)
		}
	}
	if c.Sources.Reddit.Enabled {
		if c.Sources.Reddit.ClientID == "" || c.Sources.Reddit.ClientSecret == "" {
			return fmt.Errorf("sources.reddit.client_id and client_secret are required")
		}
	}

	switch c.Classifier.Provider {
	case "rules":
	case "claude":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic.api_key is required for the claude classifier")
		}
	default:
		return fmt.Errorf("unknown classifier.provider %q", c.Classifier.Provider)
	}

	return nil
}
