package ai

import (
	"context"
	"fmt"
)

// Provider defines the interface for LLM providers (Anthropic, Ollama, LM Studio)
type Provider interface {
	// Review assesses a rendered report using the provided prompts
	Review(ctx context.Context, systemPrompt, userPrompt string) (*Review, *Stats, error)

	// GetModelInfo returns information about the configured model
	GetModelInfo() map[string]any

	// GetProviderName returns the name of the provider (e.g., "Anthropic", "Ollama")
	GetProviderName() string
}

// ConnectionChecker is implemented by local providers that can verify the
// server is up and the model is loaded before a review is requested.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// Stats holds statistics about one review call
type Stats struct {
	Provider            string
	Model               string
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	CostUSD             float64
	DurationSeconds     float64
}

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
)

// ValidProviderTypes returns a list of valid provider types
func ValidProviderTypes() []ProviderType {
	return []ProviderType{ProviderAnthropic, ProviderOllama, ProviderLMStudio}
}

// IsValidProviderType checks if the given provider type is valid
func IsValidProviderType(pt string) bool {
	for _, valid := range ValidProviderTypes() {
		if string(valid) == pt {
			return true
		}
	}
	return false
}

// ProviderConfig carries everything NewProvider needs for any provider type.
type ProviderConfig struct {
	Type           ProviderType
	APIKey         string
	BaseURL        string
	Model          string
	ProxyURL       string
	TimeoutSeconds int
	MaxTokens      int
}

// NewProvider builds the provider selected by cfg.Type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.Type {
	case ProviderAnthropic:
		provider, err = NewClient(cfg.APIKey, cfg.Model, cfg.ProxyURL, cfg.TimeoutSeconds, cfg.MaxTokens)
	case ProviderOllama:
		provider, err = NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxTokens:      cfg.MaxTokens,
		})
	case ProviderLMStudio:
		provider, err = NewLMStudioClient(LMStudioConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxTokens:      cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Type)
	}

	if err != nil {
		return nil, err
	}
	return provider, nil
}
