package ai

import (
	"errors"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const (
	// rateLimitBaseBackoff matches Anthropic's per-minute token windows
	rateLimitBaseBackoff = 60 * time.Second

	rateLimitMaxBackoff = 120 * time.Second
)

// isRateLimitError detects a rate limit error from any provider, by SDK type
// first and by message otherwise.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr()
	}

	return containsAny(strings.ToLower(err.Error()),
		"rate_limit_error", "rate limit", "429", "too many requests")
}

// isOverloadedError detects an overloaded upstream. Treated like a rate limit.
func isOverloadedError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsOverloadedErr()
	}

	return containsAny(strings.ToLower(err.Error()), "overloaded", "503")
}

// isPermanentError reports errors that will fail the same way on retry:
// bad credentials, malformed requests and unknown models.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == anthropic.ErrTypeAuthentication ||
			apiErr.Type == anthropic.ErrTypeInvalidRequest
	}

	return containsAny(err.Error(),
		"status 400", "status 401", "status 403", "status 404")
}

// getBackoffDuration returns the wait before the next attempt. Rate limit
// and overload errors wait 60s per attempt up to 120s; anything else
// backs off exponentially (2s, 4s, 8s).
func getBackoffDuration(err error, attempt int) time.Duration {
	if isRateLimitError(err) || isOverloadedError(err) {
		backoff := rateLimitBaseBackoff * time.Duration(attempt)
		if backoff > rateLimitMaxBackoff {
			return rateLimitMaxBackoff
		}
		return backoff
	}

	return time.Duration(1<<attempt) * time.Second
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
