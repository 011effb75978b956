// Package ai classifies candidate content with Claude.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/pkg/logger"
	"github.com/hotdog-curator/pkg/ratelimit"
)

const defaultMaxTokens = 1024

// ErrTruncated is returned when the reply hit the token limit and cannot be parsed
var ErrTruncated = errors.New("claude response truncated at max_tokens")

const jsonOnlyInstruction = "\n\nIMPORTANT: Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object."

// Client wraps the Anthropic SDK client
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient creates a new Anthropic client. Extra request options are appended after the API key.
func NewClient(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.RequestOption) *Client {
	if limiter == nil {
		limiter = ratelimit.NewDefaultLimiter()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(
		append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...,
	)

	return &Client{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: limiter,
		log:         log.WithComponent("ai"),
	}
}

// CompleteJSON sends one user turn and returns the text of the reply, which the system prompt
// constrains to a single JSON object
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt + jsonOnlyInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	})
	if err != nil {
		c.log.Error().Err(err).Str("model", c.model).Msg("Claude API error")
		return "", fmt.Errorf("claude API error: %w", err)
	}

	c.log.Debug().
		Str("model", c.model).
		Str("stop_reason", string(message.StopReason)).
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Msg("Received Claude response")

	if message.StopReason == anthropic.StopReasonMaxTokens {
		return "", ErrTruncated
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
