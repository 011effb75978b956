package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hotdog-curator/internal/classifier"
)

const maxPromptText = 4000

// stripMarkdownCodeBlock removes markdown code block delimiters from AI responses
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	// Find the first { which starts valid JSON
	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	// Find the last } which ends valid JSON
	endIdx := strings.LastIndex(response, "}")
	if endIdx == -1 || endIdx < startIdx {
		return response
	}

	return response[startIdx : endIdx+1]
}

// Classify asks Claude to judge a candidate. Media is described by URL only.
func (c *Client) Classify(ctx context.Context, in classifier.Input) (*classifier.Judgment, error) {
	userPrompt := fmt.Sprintf(ClassificationUserPrompt,
		orNone(in.Metadata["source"]),
		orNone(truncate(in.Text, maxPromptText)),
		orNone(in.ImageURL),
		orNone(in.VideoURL),
		orNone(formatMetadata(in.Metadata)),
	)

	response, err := c.CompleteJSON(ctx, ClassificationSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	judgment, err := parseJudgment(response)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("response", response).
			Msg("Failed to parse classification response")
		return nil, err
	}

	return judgment, nil
}

// parseJudgment decodes a model response into a judgment, clamping the confidence
func parseJudgment(response string) (*classifier.Judgment, error) {
	var judgment classifier.Judgment
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &judgment); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	judgment.Confidence = classifier.ClampConfidence(judgment.Confidence)
	if judgment.IsSpam || judgment.IsInappropriate || judgment.IsUnrelated {
		judgment.IsValid = false
	}
	return &judgment, nil
}

func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k == "source" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, "; ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Ensure Client implements classifier.Classifier
var _ classifier.Classifier = (*Client)(nil)
