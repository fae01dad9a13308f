package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// genericLMStudioModel makes LM Studio answer with whichever model is loaded.
const genericLMStudioModel = "local-model"

// LMStudioClient wraps the LM Studio OpenAI-compatible REST API.
type LMStudioClient struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// LMStudioConfig holds LM Studio-specific configuration
type LMStudioConfig struct {
	BaseURL        string // e.g., "http://localhost:1234"
	Model          string // e.g., "local-model"
	TimeoutSeconds int
	MaxTokens      int
}

// openAIChatRequest is the request body for /v1/chat/completions
type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse is the response from /v1/chat/completions
type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIModelsResponse is the response from /v1/models
type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// NewLMStudioClient creates a new LM Studio client
func NewLMStudioClient(cfg LMStudioConfig) (*LMStudioClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.Model == "" {
		cfg.Model = genericLMStudioModel
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}

	httpClient, err := newHTTPClient("", time.Duration(cfg.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	return &LMStudioClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: httpClient,
	}, nil
}

// Review performs the report review using LM Studio
func (c *LMStudioClient) Review(ctx context.Context, systemPrompt, userPrompt string) (*Review, *Stats, error) {
	startTime := time.Now()

	response, err := retryWithBackoff(ctx, defaultMaxRetries, func() (*openAIChatResponse, error) {
		return c.callAPI(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return nil, nil, err
	}

	if len(response.Choices) == 0 {
		return nil, nil, fmt.Errorf("empty response from LM Studio (no choices)")
	}

	responseText := response.Choices[0].Message.Content
	if responseText == "" {
		return nil, nil, fmt.Errorf("empty response from LM Studio")
	}

	review, err := ParseReview(responseText)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse review: %w", err)
	}

	return review, c.calculateStats(response, time.Since(startTime).Seconds()), nil
}

// callAPI posts to the chat endpoint. LM Studio rejects response_format
// "json_object", so JSON output is requested through the system prompt only.
func (c *LMStudioClient) callAPI(ctx context.Context, systemPrompt, userPrompt string) (*openAIChatResponse, error) {
	request := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.1,
		TopP:        0.9,
		Stream:      false,
	}

	return doJSONPost[openAIChatResponse](ctx, c.httpClient, c.baseURL+"/v1/chat/completions", request)
}

func (c *LMStudioClient) calculateStats(response *openAIChatResponse, durationSeconds float64) *Stats {
	return &Stats{
		Provider:        "LMStudio",
		Model:           c.model,
		InputTokens:     response.Usage.PromptTokens,
		OutputTokens:    response.Usage.CompletionTokens,
		DurationSeconds: durationSeconds,
	}
}

// GetModelInfo returns information about the configured model
func (c *LMStudioClient) GetModelInfo() map[string]any {
	return map[string]any{
		"model":         c.model,
		"provider":      "LMStudio",
		"max_tokens":    c.maxTokens,
		"base_url":      c.baseURL,
		"context_limit": 128000,
	}
}

// GetProviderName returns the name of the provider
func (c *LMStudioClient) GetProviderName() string {
	return "LMStudio"
}

// CheckConnection verifies that LM Studio is running and a model is loaded
func (c *LMStudioClient) CheckConnection(ctx context.Context) error {
	models, status, err := doJSONGet[openAIModelsResponse](ctx, c.httpClient, c.baseURL+"/v1/models")
	switch {
	case err == nil:
	case status == 0:
		return fmt.Errorf("LM Studio is not running at %s: %w", c.baseURL, err)
	case status != http.StatusOK:
		return fmt.Errorf("LM Studio returned status %d", status)
	default:
		return err
	}

	if len(models.Data) == 0 {
		return fmt.Errorf("no models loaded in LM Studio. Please load a model in LM Studio first")
	}

	if c.model == genericLMStudioModel {
		return nil
	}

	available := make([]string, len(models.Data))
	for i, m := range models.Data {
		if m.ID == c.model || strings.Contains(m.ID, c.model) {
			return nil
		}
		available[i] = m.ID
	}
	return fmt.Errorf("model '%s' not found in LM Studio. Available models: %v. You can use '%s' to use the currently loaded model",
		c.model, available, genericLMStudioModel)
}

var (
	_ Provider          = (*LMStudioClient)(nil)
	_ ConnectionChecker = (*LMStudioClient)(nil)
)
