package ai

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

// testReviewJSON is a "Warning" review with one anomaly and one recommendation.
const testReviewJSON = `{
	"status": "Warning",
	"summary": "Voltage spiked to 400 V once on 15 March; consumption is otherwise steady.",
	"anomalies": ["2024-03-15 04:00 voltage 400 V"],
	"observations": [],
	"recommendations": ["Check the meter wiring on the supply side"],
	"metrics": {"maxVoltageV": 400, "totalKWh": 24}
}`

// noBackoff removes the wait between retry attempts for the duration of a test.
func noBackoff(t *testing.T) {
	t.Helper()
	prev := backoffFor
	backoffFor = func(error, int) time.Duration { return 0 }
	t.Cleanup(func() { backoffFor = prev })
}

// verifyOpenAIChatRequest decodes an OpenAI-style chat request and checks its shape.
func verifyOpenAIChatRequest(t *testing.T, r *http.Request, w http.ResponseWriter) *openAIChatRequest {
	t.Helper()

	var req openAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("failed to decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}

	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	verifyRoles(t, req.Model, roles)
	return &req
}

// verifyOllamaChatRequest decodes an Ollama chat request and checks its shape.
func verifyOllamaChatRequest(t *testing.T, r *http.Request, w http.ResponseWriter) *ollamaChatRequest {
	t.Helper()

	var req ollamaChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("failed to decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}

	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	verifyRoles(t, req.Model, roles)
	return &req
}

func verifyRoles(t *testing.T, model string, roles []string) {
	t.Helper()

	if model == "" {
		t.Error("model is empty")
	}
	if len(roles) != 2 {
		t.Errorf("expected 2 messages, got %d", len(roles))
		return
	}
	if roles[0] != "system" {
		t.Errorf("first message should be system, got %s", roles[0])
	}
	if roles[1] != "user" {
		t.Errorf("second message should be user, got %s", roles[1])
	}
}

// verifyReviewResult checks a review parsed from testReviewJSON.
func verifyReviewResult(t *testing.T, review *Review) {
	t.Helper()

	if review.Status != StatusWarning {
		t.Errorf("Status = %v, want Warning", review.Status)
	}
	if len(review.Anomalies) != 1 {
		t.Errorf("len(Anomalies) = %v, want 1", len(review.Anomalies))
	}
	if len(review.Recommendations) != 1 {
		t.Errorf("len(Recommendations) = %v, want 1", len(review.Recommendations))
	}
}

// verifyLocalProviderStats checks stats from Ollama and LM Studio: fixed token
// counts and no cost.
func verifyLocalProviderStats(t *testing.T, stats *Stats, provider string) {
	t.Helper()

	if stats.InputTokens != 1500 {
		t.Errorf("InputTokens = %v, want 1500", stats.InputTokens)
	}
	if stats.OutputTokens != 250 {
		t.Errorf("OutputTokens = %v, want 250", stats.OutputTokens)
	}
	if stats.CostUSD != 0 {
		t.Errorf("CostUSD = %v, want 0 (local inference)", stats.CostUSD)
	}
	if stats.Provider != provider {
		t.Errorf("Provider = %v, want %s", stats.Provider, provider)
	}
}
