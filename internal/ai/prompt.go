package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Review statuses, from healthy to failing.
const (
	StatusNormal   = "Normal"
	StatusNotice   = "Notice"
	StatusWarning  = "Warning"
	StatusCritical = "Critical"
)

// Review is the structured assessment an LLM returns for a meter report.
type Review struct {
	Status          string         `json:"status"`
	Summary         string         `json:"summary"`
	Anomalies       []string       `json:"anomalies"`
	Observations    []string       `json:"observations"`
	Recommendations []string       `json:"recommendations"`
	Metrics         map[string]any `json:"metrics"`
}

// GetSystemPrompt returns the reviewer instructions for power meter reports.
func GetSystemPrompt() string {
	return `You are an electrical engineer reviewing the output of an automated power meter analysis. The report you receive was computed from per-day meter logs and contains descriptive statistics, daily energy estimates and IQR-based outlier listings for active power (W), current (A) and voltage (V).

**Review Framework:**

1. **Status Assessment** - Classify the installation:
   - "Normal" - Readings are consistent, no meaningful outliers
   - "Notice" - Minor irregularities that do not need action
   - "Warning" - Sustained anomalies, voltage excursions or suspicious consumption
   - "Critical" - Readings that suggest a fault, an unsafe supply or a broken meter

2. **Supply Quality:**
   - Voltage outside the nominal band (for example 230 V +/- 10%)
   - Sags, spikes and how often they occur
   - Current peaks that do not match the power readings

3. **Consumption:**
   - Day-to-day changes in the kWh estimate
   - Days with few samples or no energy counter data
   - Energy counter decreases, which make the estimate unreliable

4. **Data Quality:**
   - Rejected log files and skipped lines
   - Gaps in the covered period

**Output Requirements:**

You MUST respond with a valid JSON object (and ONLY JSON) in this exact format:

{
  "status": "Normal|Notice|Warning|Critical",
  "summary": "2-3 sentence overview of the installation",
  "anomalies": [
    "Concrete anomaly with timestamp and value"
  ],
  "observations": [
    "Pattern worth knowing about that is not an anomaly"
  ],
  "recommendations": [
    "Specific action, such as checking a circuit or replacing the meter"
  ],
  "metrics": {
    "peakPowerW": 0,
    "minVoltageV": 0,
    "maxVoltageV": 0,
    "totalKWh": 0
  }
}

**Review Principles:**
- Only report what the numbers show
- Quote timestamps and values from the report
- Treat the statistics as authoritative, do not recompute them
- Empty arrays are acceptable when there is nothing to report`
}

// GetUserPrompt wraps the rendered report for the model.
func GetUserPrompt(reportText string) string {
	var prompt strings.Builder

	prompt.WriteString("POWER METER REPORT:\n")
	prompt.WriteString(SanitizeContent(reportText))
	prompt.WriteString("\n\n")
	prompt.WriteString("Please review the report above and provide your assessment in JSON format as specified.")

	return prompt.String()
}

// promptInjectionPatterns contains regex patterns for common prompt injection attempts
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*prompt\s*:`),
	regexp.MustCompile(`(?i)\bASSISTANT\s*:`),
	regexp.MustCompile(`(?i)\bHUMAN\s*:`),
	regexp.MustCompile(`(?i)\bUSER\s*:`),
	regexp.MustCompile(`(?i)\bSYSTEM\s*:`),
}

var excessiveNewlines = regexp.MustCompile(`\n{4,}`)

// SanitizeContent strips non-printable characters and prompt injection
// patterns from text that ends up in a prompt. File names and parse errors
// in a report come straight from disk, so they are untrusted.
func SanitizeContent(content string) string {
	var sanitized strings.Builder
	sanitized.Grow(len(content))

	for _, r := range content {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()
	for _, pattern := range promptInjectionPatterns {
		result = pattern.ReplaceAllString(result, "[FILTERED]")
	}

	return excessiveNewlines.ReplaceAllString(result, "\n\n\n")
}

// Maximum allowed JSON response size (1MB)
const maxJSONResponseSize = 1024 * 1024

// sanitizeJSONEscapes fixes invalid JSON escape sequences in LLM responses.
// JSON only allows: \" \\ \/ \b \f \n \r \t \uXXXX
func sanitizeJSONEscapes(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				result.WriteByte(s[i])
			}
			// Invalid escapes lose the backslash and keep the character
			result.WriteByte(next)
			i += 2
			continue
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// ParseReview extracts and parses the JSON review from a model response.
func ParseReview(response string) (*Review, error) {
	jsonMatch := extractJSON(response)
	if jsonMatch == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	if len(jsonMatch) > maxJSONResponseSize {
		return nil, fmt.Errorf("JSON response too large: %d bytes (max: %d)", len(jsonMatch), maxJSONResponseSize)
	}

	var review Review
	if err := json.Unmarshal([]byte(sanitizeJSONEscapes(jsonMatch)), &review); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if err := validateReview(&review); err != nil {
		return nil, fmt.Errorf("review validation failed: %w", err)
	}

	return &review, nil
}

func validateReview(review *Review) error {
	if review.Status == "" {
		return fmt.Errorf("status is required")
	}

	switch review.Status {
	case StatusNormal, StatusNotice, StatusWarning, StatusCritical:
	default:
		return fmt.Errorf("invalid status: %s", review.Status)
	}

	if review.Summary == "" {
		return fmt.Errorf("summary is required")
	}

	if review.Anomalies == nil {
		review.Anomalies = []string{}
	}
	if review.Observations == nil {
		review.Observations = []string{}
	}
	if review.Recommendations == nil {
		review.Recommendations = []string{}
	}
	if review.Metrics == nil {
		review.Metrics = make(map[string]any)
	}

	return nil
}

// GetStatusEmoji returns the emoji for a given review status
func GetStatusEmoji(status string) string {
	switch status {
	case StatusNormal:
		return "✅"
	case StatusNotice:
		return "🟡"
	case StatusWarning:
		return "🟠"
	case StatusCritical:
		return "🔴"
	default:
		return "⚪"
	}
}

// ShouldTriggerAlert reports whether a review status belongs in the alerts channel.
func ShouldTriggerAlert(status string) bool {
	return status == StatusWarning || status == StatusCritical
}

// extractJSON extracts the first balanced JSON object from a response string.
func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := startIdx; i < len(response); i++ {
		char := response[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' && inString {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if char == '{' {
			depth++
		} else if char == '}' {
			depth--
			if depth == 0 {
				return response[startIdx : i+1]
			}
		}
	}

	return ""
}
