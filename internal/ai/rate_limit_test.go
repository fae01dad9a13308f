package ai

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{
			name: "Anthropic API rate limit error",
			err:  &anthropic.APIError{Type: anthropic.ErrTypeRateLimit, Message: "Rate limit exceeded"},
			want: true,
		},
		{
			name: "Anthropic API authentication error",
			err:  &anthropic.APIError{Type: anthropic.ErrTypeAuthentication, Message: "Invalid API key"},
			want: false,
		},
		{
			name: "wrapped Anthropic rate limit error",
			err:  fmt.Errorf("API call failed: %w", &anthropic.APIError{Type: anthropic.ErrTypeRateLimit}),
			want: true,
		},
		{name: "rate_limit_error text", err: errors.New("rate_limit_error: This request would exceed the rate limit"), want: true},
		{name: "HTTP 429 from local server", err: errors.New("API returned status 429: slow down"), want: true},
		{name: "too many requests", err: errors.New("too many requests, please try again later"), want: true},
		{name: "connection error", err: errors.New("connection timeout"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRateLimitError(tt.err); got != tt.want {
				t.Errorf("isRateLimitError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOverloadedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{
			name: "Anthropic API overloaded error",
			err:  &anthropic.APIError{Type: anthropic.ErrTypeOverloaded, Message: "API is overloaded"},
			want: true,
		},
		{
			name: "Anthropic API rate limit error",
			err:  &anthropic.APIError{Type: anthropic.ErrTypeRateLimit},
			want: false,
		},
		{name: "overloaded text", err: errors.New("API is currently overloaded"), want: true},
		{name: "HTTP 503", err: errors.New("API returned status 503"), want: true},
		{name: "connection error", err: errors.New("connection timeout"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOverloadedError(tt.err); got != tt.want {
				t.Errorf("isOverloadedError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPermanentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "authentication", err: &anthropic.APIError{Type: anthropic.ErrTypeAuthentication}, want: true},
		{name: "invalid request", err: &anthropic.APIError{Type: anthropic.ErrTypeInvalidRequest}, want: true},
		{name: "rate limit", err: &anthropic.APIError{Type: anthropic.ErrTypeRateLimit}, want: false},
		{name: "unknown model", err: errors.New("API returned status 404: model not found"), want: true},
		{name: "server error", err: errors.New("API returned status 500: boom"), want: false},
		{name: "timeout", err: errors.New("context deadline exceeded"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanentError(tt.err); got != tt.want {
				t.Errorf("isPermanentError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetBackoffDuration(t *testing.T) {
	rateLimit := &anthropic.APIError{Type: anthropic.ErrTypeRateLimit}
	timeout := errors.New("connection timeout")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{name: "rate limit attempt 1", err: rateLimit, attempt: 1, want: 60 * time.Second},
		{name: "rate limit attempt 2", err: rateLimit, attempt: 2, want: 120 * time.Second},
		{name: "rate limit capped", err: rateLimit, attempt: 3, want: 120 * time.Second},
		{name: "overloaded", err: &anthropic.APIError{Type: anthropic.ErrTypeOverloaded}, attempt: 1, want: 60 * time.Second},
		{name: "rate limit text", err: errors.New("rate_limit_error: exceeded"), attempt: 1, want: 60 * time.Second},
		{name: "normal attempt 1", err: timeout, attempt: 1, want: 2 * time.Second},
		{name: "normal attempt 2", err: timeout, attempt: 2, want: 4 * time.Second},
		{name: "normal attempt 3", err: timeout, attempt: 3, want: 8 * time.Second},
		{name: "nil error", err: nil, attempt: 1, want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getBackoffDuration(tt.err, tt.attempt); got != tt.want {
				t.Errorf("getBackoffDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
