package classifier

import (
	"context"
	"fmt"
	"strings"
)

// DefaultRequiredTerms mark content as on-topic
var DefaultRequiredTerms = []string{
	"hot dog", "hotdog", "hot-dog", "frankfurter", "wiener", "weiner", "frank",
	"bratwurst", "chili dog", "corn dog", "sausage", "coney",
}

// DefaultSpamPatterns are phrases typical of promotional or engagement-bait posts
var DefaultSpamPatterns = []string{
	"buy now", "click here", "link in bio", "promo code", "discount code", "use code",
	"free shipping", "dm me", "dm for", "follow for follow", "giveaway", "limited time offer",
	"onlyfans", "crypto", "casino",
}

// DefaultInappropriateTerms are terms that should never reach the queue
var DefaultInappropriateTerms = []string{
	"nsfw", "nude", "porn", "xxx", "gore",
}

// RulesConfig configures the keyword rule classifier
type RulesConfig struct {
	RequiredTerms      []string
	SpamPatterns       []string
	InappropriateTerms []string
}

// DefaultRulesConfig returns the built-in dictionaries
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		RequiredTerms:      DefaultRequiredTerms,
		SpamPatterns:       DefaultSpamPatterns,
		InappropriateTerms: DefaultInappropriateTerms,
	}
}

// Rules classifies content with keyword dictionaries. It needs no network access and is
// used when no model-backed classifier is configured.
type Rules struct {
	required      *TermMatcher
	spam          *TermMatcher
	inappropriate *TermMatcher
}

// NewRules builds the rule classifier, falling back to the defaults for empty dictionaries
func NewRules(cfg RulesConfig) *Rules {
	if len(cfg.RequiredTerms) == 0 {
		cfg.RequiredTerms = DefaultRequiredTerms
	}
	if len(cfg.SpamPatterns) == 0 {
		cfg.SpamPatterns = DefaultSpamPatterns
	}
	if len(cfg.InappropriateTerms) == 0 {
		cfg.InappropriateTerms = DefaultInappropriateTerms
	}

	return &Rules{
		required:      NewTermMatcher(cfg.RequiredTerms),
		spam:          NewTermMatcher(cfg.SpamPatterns),
		inappropriate: NewTermMatcher(cfg.InappropriateTerms),
	}
}

// Classify scores the input. Text carries the decision; metadata such as titles and
// subreddit names is searched too.
func (r *Rules) Classify(ctx context.Context, in Input) (*Judgment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	corpus := in.Text
	for _, key := range []string{"title", "subreddit", "feed"} {
		if v := in.Metadata[key]; v != "" {
			corpus += " " + v
		}
	}

	j := &Judgment{}

	spamHits := r.spam.Find(corpus)
	for _, hit := range spamHits {
		j.FlaggedPatterns = append(j.FlaggedPatterns, "spam:"+hit)
	}
	badHits := r.inappropriate.Find(corpus)
	for _, hit := range badHits {
		j.FlaggedPatterns = append(j.FlaggedPatterns, "inappropriate:"+hit)
	}
	if in.Metadata["nsfw"] == "true" {
		badHits = append(badHits, "nsfw")
		j.FlaggedPatterns = append(j.FlaggedPatterns, "inappropriate:source-marked-nsfw")
	}
	topicHits := r.required.Find(corpus)

	j.IsSpam = len(spamHits) > 0
	j.IsInappropriate = len(badHits) > 0

	switch {
	case strings.TrimSpace(corpus) == "":
		// Media without any words: nothing to judge, leave it for review
		j.Confidence = 0.5
		j.Notes = "no text to classify"
	case len(topicHits) == 0:
		j.IsUnrelated = true
		j.Confidence = 0.2
		j.Notes = "no topic terms found"
	default:
		score := 0.6 + 0.1*float64(len(topicHits))
		if in.HasMedia() {
			score += 0.1
		}
		j.Confidence = ClampConfidence(minFloat(score, 0.95))
		j.Notes = fmt.Sprintf("matched topic terms: %s", strings.Join(topicHits, ", "))
	}

	j.IsValid = len(topicHits) > 0 && !j.IsSpam && !j.IsInappropriate
	return j, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Ensure Rules implements Classifier
var _ Classifier = (*Rules)(nil)
