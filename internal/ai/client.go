package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	internalerrors "github.com/olegiv/meterlog-analyzer-go/internal/errors"
)

// Sonnet pricing in USD per million tokens.
const (
	priceInputPerMTok      = 3.0
	priceOutputPerMTok     = 15.0
	priceCacheWritePerMTok = 3.75
	priceCacheReadPerMTok  = 0.30
)

// messagesAPI is the part of the Anthropic SDK the client calls.
type messagesAPI interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// Client wraps the Anthropic API client
type Client struct {
	client    messagesAPI
	model     string
	maxTokens int
}

// NewClient creates a new Claude client. proxyURL may be empty.
func NewClient(apiKey, model, proxyURL string, timeoutSeconds, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	httpClient, err := newHTTPClient(proxyURL, time.Duration(timeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	return &Client{
		client:    anthropic.NewClient(apiKey, anthropic.WithHTTPClient(httpClient)),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Review sends the report to Claude and parses the JSON assessment.
func (c *Client) Review(ctx context.Context, systemPrompt, userPrompt string) (*Review, *Stats, error) {
	startTime := time.Now()

	response, err := retryWithBackoff(ctx, defaultMaxRetries, func() (anthropic.MessagesResponse, error) {
		return c.callAPI(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return nil, nil, err
	}

	if len(response.Content) == 0 {
		return nil, nil, fmt.Errorf("empty response from Claude")
	}

	var responseText strings.Builder
	for _, content := range response.Content {
		if content.Type == "text" && content.Text != nil {
			responseText.WriteString(*content.Text)
		}
	}

	review, err := ParseReview(responseText.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse review: %w", err)
	}

	return review, c.calculateStats(response, time.Since(startTime).Seconds()), nil
}

func (c *Client) callAPI(ctx context.Context, systemPrompt, userPrompt string) (anthropic.MessagesResponse, error) {
	request := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(userPrompt),
				},
			},
		},
		System:    systemPrompt,
		MaxTokens: c.maxTokens,
	}

	response, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return anthropic.MessagesResponse{}, internalerrors.Wrapf(err, "API call failed")
	}

	return response, nil
}

// calculateStats calculates cost and token statistics
func (c *Client) calculateStats(response anthropic.MessagesResponse, durationSeconds float64) *Stats {
	usage := response.Usage

	cost := float64(usage.InputTokens)/1e6*priceInputPerMTok +
		float64(usage.OutputTokens)/1e6*priceOutputPerMTok +
		float64(usage.CacheCreationInputTokens)/1e6*priceCacheWritePerMTok +
		float64(usage.CacheReadInputTokens)/1e6*priceCacheReadPerMTok

	return &Stats{
		Provider:            "Anthropic",
		Model:               c.model,
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheCreationTokens: usage.CacheCreationInputTokens,
		CacheReadTokens:     usage.CacheReadInputTokens,
		CostUSD:             cost,
		DurationSeconds:     durationSeconds,
	}
}

// GetModelInfo returns information about the configured model
func (c *Client) GetModelInfo() map[string]any {
	return map[string]any{
		"model":         c.model,
		"provider":      "Anthropic",
		"max_tokens":    c.maxTokens,
		"context_limit": 200000,
	}
}

// GetProviderName returns the name of the provider
func (c *Client) GetProviderName() string {
	return "Anthropic"
}

var _ Provider = (*Client)(nil)
