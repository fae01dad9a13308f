package ai

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
)

// fakeMessages replays canned responses in order and records requests.
type fakeMessages struct {
	responses []anthropic.MessagesResponse
	errs      []error
	requests  []anthropic.MessagesRequest
}

func (f *fakeMessages) CreateMessages(_ context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return anthropic.MessagesResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return anthropic.MessagesResponse{}, errors.New("no more responses")
}

func textResponse(text string) anthropic.MessagesResponse {
	response := anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(text)},
	}
	response.Usage.InputTokens = 1000
	response.Usage.OutputTokens = 200
	return response
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		proxyURL    string
		expectError bool
	}{
		{name: "without proxy", apiKey: "sk-ant-test-key"},
		{name: "http proxy", apiKey: "sk-ant-test-key", proxyURL: "http://proxy.example.com:8080"},
		{name: "https proxy", apiKey: "sk-ant-test-key", proxyURL: "https://proxy.example.com:8080"},
		{name: "invalid proxy URL", apiKey: "sk-ant-test-key", proxyURL: "://invalid-url", expectError: true},
		{name: "socks proxy rejected", apiKey: "sk-ant-test-key", proxyURL: "socks5://proxy:1080", expectError: true},
		{name: "missing key", apiKey: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.apiKey, "claude-sonnet-4-5", tt.proxyURL, 120, 4000)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.client == nil {
				t.Error("Expected Anthropic client to be initialized")
			}
			if client.maxTokens != 4000 {
				t.Errorf("maxTokens = %d, want 4000", client.maxTokens)
			}
		})
	}
}

func TestClient_Review(t *testing.T) {
	fake := &fakeMessages{responses: []anthropic.MessagesResponse{textResponse(testReviewJSON)}}
	client := &Client{client: fake, model: "claude-sonnet-4-5", maxTokens: 4000}

	review, stats, err := client.Review(context.Background(), "system", "report")
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	verifyReviewResult(t, review)

	if stats.Provider != "Anthropic" || stats.InputTokens != 1000 || stats.OutputTokens != 200 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	req := fake.requests[0]
	if req.System != "system" || req.MaxTokens != 4000 || string(req.Model) != "claude-sonnet-4-5" {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != anthropic.RoleUser {
		t.Errorf("expected one user message, got %+v", req.Messages)
	}
}

func TestClient_Review_RetriesTransientErrors(t *testing.T) {
	noBackoff(t)

	fake := &fakeMessages{
		errs:      []error{&anthropic.APIError{Type: anthropic.ErrTypeOverloaded}, nil},
		responses: []anthropic.MessagesResponse{{}, textResponse(testReviewJSON)},
	}
	client := &Client{client: fake, model: "claude-sonnet-4-5", maxTokens: 4000}

	if _, _, err := client.Review(context.Background(), "system", "report"); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(fake.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(fake.requests))
	}
}

func TestClient_Review_Errors(t *testing.T) {
	noBackoff(t)

	tests := []struct {
		name     string
		fake     *fakeMessages
		requests int
	}{
		{
			name:     "authentication failure is not retried",
			fake:     &fakeMessages{errs: []error{&anthropic.APIError{Type: anthropic.ErrTypeAuthentication}}},
			requests: 1,
		},
		{
			name:     "empty content",
			fake:     &fakeMessages{responses: []anthropic.MessagesResponse{{}}},
			requests: 1,
		},
		{
			name:     "unparseable text",
			fake:     &fakeMessages{responses: []anthropic.MessagesResponse{textResponse("all good")}},
			requests: 1,
		},
		{
			name:     "persistent failure",
			fake:     &fakeMessages{errs: []error{errors.New("eof"), errors.New("eof"), errors.New("eof")}},
			requests: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{client: tt.fake, model: "claude-sonnet-4-5", maxTokens: 4000}
			if _, _, err := client.Review(context.Background(), "system", "report"); err == nil {
				t.Error("Review() expected error, got nil")
			}
			if len(tt.fake.requests) != tt.requests {
				t.Errorf("requests = %d, want %d", len(tt.fake.requests), tt.requests)
			}
		})
	}
}

func TestCalculateStats(t *testing.T) {
	client := &Client{model: "claude-sonnet-4-5"}

	var response anthropic.MessagesResponse
	response.Usage.InputTokens = 1_000_000
	response.Usage.OutputTokens = 100_000
	response.Usage.CacheCreationInputTokens = 200_000
	response.Usage.CacheReadInputTokens = 500_000

	stats := client.calculateStats(response, 5.5)

	// 3.00 + 1.50 + 0.75 + 0.15
	if math.Abs(stats.CostUSD-5.40) > 1e-9 {
		t.Errorf("CostUSD = %f, want 5.40", stats.CostUSD)
	}
	if stats.CacheCreationTokens != 200_000 || stats.CacheReadTokens != 500_000 {
		t.Errorf("cache tokens = %d/%d", stats.CacheCreationTokens, stats.CacheReadTokens)
	}
	if stats.DurationSeconds != 5.5 {
		t.Errorf("DurationSeconds = %f, want 5.5", stats.DurationSeconds)
	}
	if stats.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", stats.Model)
	}
}

func TestGetModelInfo(t *testing.T) {
	client := &Client{model: "claude-sonnet-4-5", maxTokens: 8000}

	info := client.GetModelInfo()
	if info["model"] != "claude-sonnet-4-5" {
		t.Errorf("model = %v", info["model"])
	}
	if info["provider"] != "Anthropic" {
		t.Errorf("provider = %v", info["provider"])
	}
	if info["max_tokens"] != 8000 {
		t.Errorf("max_tokens = %v", info["max_tokens"])
	}
	if client.GetProviderName() != "Anthropic" {
		t.Errorf("GetProviderName() = %q", client.GetProviderName())
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "anthropic",
			cfg:      ProviderConfig{Type: ProviderAnthropic, APIKey: "sk-ant-test-key", Model: "claude-sonnet-4-5", TimeoutSeconds: 60, MaxTokens: 4000},
			wantName: "Anthropic",
		},
		{
			name:     "ollama",
			cfg:      ProviderConfig{Type: ProviderOllama, Model: "llama3.3:latest"},
			wantName: "Ollama",
		},
		{
			name:     "lmstudio",
			cfg:      ProviderConfig{Type: ProviderLMStudio},
			wantName: "LMStudio",
		},
		{name: "unknown", cfg: ProviderConfig{Type: "openai"}, wantErr: true},
		{name: "ollama without model", cfg: ProviderConfig{Type: ProviderOllama}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := provider.GetProviderName(); got != tt.wantName {
				t.Errorf("GetProviderName() = %q, want %q", got, tt.wantName)
			}
		})
	}
}

func TestIsValidProviderType(t *testing.T) {
	for _, pt := range []string{"anthropic", "ollama", "lmstudio"} {
		if !IsValidProviderType(pt) {
			t.Errorf("IsValidProviderType(%q) = false", pt)
		}
	}
	if IsValidProviderType("openai") {
		t.Error("IsValidProviderType(openai) = true")
	}
}
