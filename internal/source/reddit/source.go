// Package reddit searches subreddits through Reddit's app-only OAuth API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/source"
	"github.com/hotdog-curator/pkg/logger"
	"github.com/hotdog-curator/pkg/ratelimit"
)

// Endpoints are the Reddit hosts the connector talks to
type Endpoints struct {
	API   string
	Token string
	Web   string
}

// DefaultEndpoints returns Reddit's production endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:   "https://oauth.reddit.com",
		Token: "https://www.reddit.com/api/v1/access_token",
		Web:   "https://www.reddit.com",
	}
}

// Source implements source.Connector for one subreddit
type Source struct {
	name      string
	subreddit string
	sort      string
	userAgent string
	endpoints Endpoints
	client    *http.Client
	limiter   *ratelimit.MultiLimiter
	log       *logger.Logger
}

// New creates a connector for a configured subreddit
func New(cfg config.RedditConfig, sub config.SubredditConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	return NewWithEndpoints(cfg, sub, DefaultEndpoints(), limiter, log)
}

// NewWithEndpoints creates a connector against explicit endpoints
func NewWithEndpoints(cfg config.RedditConfig, sub config.SubredditConfig, ep Endpoints, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	if limiter == nil {
		limiter = ratelimit.NewDefaultLimiter()
	}
	sort := sub.Sort
	if sort == "" {
		sort = "new"
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "hotdog-curator/1.0"
	}

	oauth := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     ep.Token,
	}

	client := oauth.Client(context.Background())
	client.Timeout = 30 * time.Second

	return &Source{
		name:      sub.Name,
		subreddit: sub.Subreddit,
		sort:      sort,
		userAgent: userAgent,
		endpoints: ep,
		client:    client,
		limiter:   limiter,
		log:       log.WithComponent("reddit").WithSource(sub.Name),
	}
}

// NewMultiple creates one connector per configured subreddit
func NewMultiple(cfg config.RedditConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Subreddits))
	for _, sub := range cfg.Subreddits {
		sources = append(sources, New(cfg, sub, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	PostHint   string  `json:"post_hint"`
	IsVideo    bool    `json:"is_video"`
	Over18     bool    `json:"over_18"`
	Stickied   bool    `json:"stickied"`
	Score      int     `json:"score"`
	Media      *struct {
		RedditVideo *struct {
			FallbackURL string `json:"fallback_url"`
		} `json:"reddit_video"`
	} `json:"media"`
	Preview *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

// Search queries the subreddit for posts matching query, newest first by default
func (s *Source) Search(ctx context.Context, query string, limit int) ([]*models.CandidateItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	params := url.Values{
		"q":           {query},
		"restrict_sr": {"1"},
		"sort":        {s.sort},
		"limit":       {strconv.Itoa(limit)},
		"type":        {"link"},
		"raw_json":    {"1"},
	}
	if query == "" {
		params.Del("q")
		params.Del("restrict_sr")
		params.Del("type")
	}

	endpoint := fmt.Sprintf("%s/r/%s/search.json", s.endpoints.API, url.PathEscape(s.subreddit))
	if query == "" {
		endpoint = fmt.Sprintf("%s/r/%s/%s.json", s.endpoints.API, url.PathEscape(s.subreddit), s.sort)
	}

	var result listing
	if err := s.get(ctx, endpoint+"?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("reddit search r/%s: %w", s.subreddit, err)
	}

	items := make([]*models.CandidateItem, 0, len(result.Data.Children))
	for _, child := range result.Data.Children {
		if child.Kind != "t3" || child.Data.Stickied {
			continue
		}
		items = append(items, s.toCandidate(child.Data))
		if len(items) >= limit {
			break
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str("query", query).
		Msg("Fetched Reddit candidates")

	return items, nil
}

// TestConnection checks credentials by reading the subreddit's about page
func (s *Source) TestConnection(ctx context.Context) source.ConnectionStatus {
	var about struct {
		Data struct {
			DisplayName string `json:"display_name"`
			Subscribers int    `json:"subscribers"`
		} `json:"data"`
	}

	endpoint := fmt.Sprintf("%s/r/%s/about.json", s.endpoints.API, url.PathEscape(s.subreddit))
	if err := s.get(ctx, endpoint, &about); err != nil {
		return source.ConnectionStatus{Source: s.name, Message: err.Error()}
	}
	return source.ConnectionStatus{
		Source:  s.name,
		Success: true,
		Message: fmt.Sprintf("r/%s: %d subscribers", about.Data.DisplayName, about.Data.Subscribers),
	}
}

func (s *Source) get(ctx context.Context, endpoint string, out any) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterReddit); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (s *Source) toCandidate(p post) *models.CandidateItem {
	imageURL, videoURL := postMedia(p)

	text := strings.TrimSpace(p.Title)
	if body := strings.TrimSpace(p.Selftext); body != "" {
		text += "\n\n" + body
	}

	captured := time.Now()
	meta := map[string]string{
		"title":     p.Title,
		"subreddit": p.Subreddit,
		"post_id":   p.ID,
		"score":     strconv.Itoa(p.Score),
		"post_hint": p.PostHint,
	}
	if p.CreatedUTC > 0 {
		meta["published"] = time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339)
	}
	if p.Over18 {
		meta["nsfw"] = "true"
	}

	return &models.CandidateItem{
		Source:     s.name,
		Text:       text,
		Media:      models.NewMedia(imageURL, videoURL),
		SourceURL:  s.endpoints.Web + p.Permalink,
		Author:     p.Author,
		CapturedAt: captured,
		Metadata:   meta,
	}
}

// postMedia maps Reddit's post hints onto image and video URLs
func postMedia(p post) (imageURL, videoURL string) {
	if p.Media != nil && p.Media.RedditVideo != nil && p.Media.RedditVideo.FallbackURL != "" {
		videoURL = p.Media.RedditVideo.FallbackURL
	}

	switch {
	case p.PostHint == "image":
		imageURL = p.URL
	case strings.HasSuffix(strings.ToLower(p.URL), ".gif"), strings.HasSuffix(strings.ToLower(p.URL), ".gifv"):
		imageURL = p.URL
	case videoURL == "" && (p.PostHint == "hosted:video" || p.PostHint == "rich:video"):
		videoURL = p.URL
	}

	// Link posts fall back to their preview image
	if imageURL == "" && videoURL == "" && p.Preview != nil && len(p.Preview.Images) > 0 {
		imageURL = html.UnescapeString(p.Preview.Images[0].Source.URL)
	}
	return imageURL, videoURL
}

// Ensure Source implements source.Connector
var _ source.Connector = (*Source)(nil)
