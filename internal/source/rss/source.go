package rss

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/hashing"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/source"
	"github.com/hotdog-curator/pkg/logger"
	"github.com/hotdog-curator/pkg/ratelimit"
)

// DefaultMaxAge skips feed items older than this
const DefaultMaxAge = 7 * 24 * time.Hour

// Source implements source.Connector for a single RSS or Atom feed
type Source struct {
	name    string
	url     string
	maxAge  time.Duration
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	now     func() time.Time
	log     *logger.Logger
}

// New creates a new RSS connector for a single feed
func New(feed config.RSSFeed, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	if limiter == nil {
		limiter = ratelimit.NewDefaultLimiter()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "hotdog-curator/1.0"

	return &Source{
		name:    feed.Name,
		url:     feed.URL,
		maxAge:  DefaultMaxAge,
		parser:  parser,
		limiter: limiter,
		now:     time.Now,
		log:     log.WithComponent("rss").WithSource(feed.Name),
	}
}

// NewMultiple creates one connector per configured feed
func NewMultiple(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, New(feed, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Search fetches the feed and returns recent items whose text mentions the query.
// An empty query matches every item.
func (s *Source) Search(ctx context.Context, query string, limit int) ([]*models.CandidateItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	s.log.Debug().Str("url", s.url).Str("query", query).Int("limit", limit).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	needle := hashing.NormalizeText(query)
	items := make([]*models.CandidateItem, 0, len(feed.Items))

	for _, item := range feed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}

		if item.PublishedParsed != nil && s.now().Sub(*item.PublishedParsed) > s.maxAge {
			continue
		}

		title := cleanText(item.Title)
		body := cleanText(firstNonEmpty(item.Content, item.Description))
		text := title
		if body != "" && body != title {
			text = strings.TrimSpace(title + "\n\n" + body)
		}

		if needle != "" && !strings.Contains(hashing.NormalizeText(text), needle) {
			continue
		}

		imageURL, videoURL := extractMedia(item)
		items = append(items, &models.CandidateItem{
			Source:     s.name,
			Text:       text,
			Media:      models.NewMedia(imageURL, videoURL),
			SourceURL:  item.Link,
			Author:     authorName(item),
			CapturedAt: s.now(),
			Metadata: map[string]string{
				"title":      title,
				"feed":       feed.Title,
				"guid":       item.GUID,
				"categories": strings.Join(item.Categories, ","),
				"published":  item.Published,
			},
		})
	}

	s.log.Info().
		Int("count", len(items)).
		Int("feed_items", len(feed.Items)).
		Msg("Fetched RSS candidates")

	return items, nil
}

// TestConnection verifies the feed is reachable and parseable
func (s *Source) TestConnection(ctx context.Context) source.ConnectionStatus {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return source.ConnectionStatus{Source: s.name, Message: err.Error()}
	}
	return source.ConnectionStatus{
		Source:  s.name,
		Success: true,
		Message: fmt.Sprintf("%s: %d items", feed.Title, len(feed.Items)),
	}
}

// cleanText flattens HTML to text and collapses whitespace
func cleanText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// extractMedia picks the first image and video the item references, looking at
// enclosures, Media RSS extensions, the item image and finally inline markup
func extractMedia(item *gofeed.Item) (imageURL, videoURL string) {
	consider := func(u, mimeType string) {
		if u == "" {
			return
		}
		switch mediaKind(u, mimeType) {
		case "video":
			if videoURL == "" {
				videoURL = u
			}
		case "image":
			if imageURL == "" {
				imageURL = u
			}
		}
	}

	for _, enc := range item.Enclosures {
		consider(enc.URL, enc.Type)
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				mimeType := ext.Attrs["type"]
				if mimeType == "" {
					mimeType = ext.Attrs["medium"]
				}
				if key == "thumbnail" && mimeType == "" {
					mimeType = "image"
				}
				consider(ext.Attrs["url"], mimeType)
			}
		}
	}

	if item.Image != nil {
		consider(item.Image.URL, "image")
	}

	if imageURL == "" || videoURL == "" {
		html := firstNonEmpty(item.Content, item.Description)
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			if src, ok := doc.Find("video source[src], video[src]").First().Attr("src"); ok {
				consider(src, "video")
			}
			if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
				consider(src, "image")
			}
		}
	}

	return imageURL, videoURL
}

var videoExts = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".m4v": true}
var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".gifv": true}

func mediaKind(rawURL, mimeType string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "video"):
		return "video"
	case strings.HasPrefix(mimeType, "image"):
		return "image"
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case videoExts[ext]:
		return "video"
	case imageExts[ext]:
		return "image"
	}
	return ""
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Ensure Source implements source.Connector
var _ source.Connector = (*Source)(nil)
