package ai

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Section priorities
const (
	priorityHigh   = 1
	priorityMedium = 2
	priorityLow    = 3
)

// EstimateTokens estimates the number of tokens in the content.
// Uses the algorithm: max(chars/4, words/0.75)
func EstimateTokens(content string) int {
	chars := len(content)
	words := len(strings.Fields(content))

	charsEstimate := chars / 4
	wordsEstimate := int(float64(words) / 0.75)

	if charsEstimate > wordsEstimate {
		return charsEstimate
	}
	return wordsEstimate
}

// Preprocessor shrinks a rendered report that would not fit the prompt budget.
// Statistics and warnings are kept verbatim, long daily and outlier listings
// are cut and the per-file listing is grouped.
type Preprocessor struct {
	maxTokens int
}

// Section is one titled block of a rendered report
type Section struct {
	Name     string
	Content  string
	Priority int
}

var (
	// "[1] BASIC STATISTICS" style headings and the trailing WARNINGS block
	sectionHeading = regexp.MustCompile(`(?m)^(\[\d+\] .+|WARNINGS)$`)

	ipPattern        = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	timestampPattern = regexp.MustCompile(`\b\d{1,2}:\d{2}:\d{2}\b`)
	datePattern      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{2}/\d{2}/\d{4}\b`)
	numberPattern    = regexp.MustCompile(`\b\d+\b`)
)

// NewPreprocessor creates a new preprocessor
func NewPreprocessor(maxTokens int) *Preprocessor {
	return &Preprocessor{maxTokens: maxTokens}
}

// ShouldProcess reports whether content exceeds the token budget.
func (p *Preprocessor) ShouldProcess(content string) bool {
	return EstimateTokens(content) > p.maxTokens
}

// Process returns content unchanged when it fits the budget, otherwise a
// compressed version that keeps every section heading.
func (p *Preprocessor) Process(content string) string {
	if !p.ShouldProcess(content) {
		return content
	}

	sections := parseSections(content)
	if len(sections) <= 1 {
		return content
	}

	var result strings.Builder
	for _, section := range sections {
		if section.Priority == priorityLow {
			section.Content = deduplicateContent(section.Content)
		}
		compressed := compressByPriority(section)

		if section.Name != "" {
			result.WriteString("\n" + section.Name + "\n")
		}
		result.WriteString(compressed)
		if !strings.HasSuffix(compressed, "\n") {
			result.WriteString("\n")
		}
	}

	return result.String()
}

// parseSections splits a rendered report at its section headings. Text before
// the first heading becomes an unnamed section.
func parseSections(content string) []*Section {
	matches := sectionHeading.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []*Section{{Content: content, Priority: priorityHigh}}
	}

	var sections []*Section
	if preamble := strings.TrimSpace(content[:matches[0][0]]); preamble != "" {
		sections = append(sections, &Section{Content: preamble, Priority: priorityHigh})
	}

	for i, match := range matches {
		name := content[match[2]:match[3]]

		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		sections = append(sections, &Section{
			Name:     name,
			Content:  strings.TrimSpace(content[match[1]:end]),
			Priority: determinePriority(name),
		})
	}

	return sections
}

func determinePriority(name string) int {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "STATISTICS"), strings.Contains(upper, "WARNINGS"):
		return priorityHigh
	case strings.Contains(upper, "ENERGY"), strings.Contains(upper, "OUTLIER"):
		return priorityMedium
	default:
		return priorityLow
	}
}

// deduplicateContent groups lines that only differ in numbers, dates or times
func deduplicateContent(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= 10 {
		return content
	}

	lineCounts := make(map[string]int)
	lineExamples := make(map[string]string)
	for _, line := range lines {
		normalized := normalizeLine(line)
		if normalized == "" {
			continue
		}
		lineCounts[normalized]++
		if lineExamples[normalized] == "" {
			lineExamples[normalized] = line
		}
	}

	var result strings.Builder
	processed := make(map[string]bool)
	for _, line := range lines {
		normalized := normalizeLine(line)
		if normalized == "" {
			result.WriteString(line + "\n")
			continue
		}
		if processed[normalized] {
			continue
		}
		processed[normalized] = true

		if count := lineCounts[normalized]; count > 1 {
			fmt.Fprintf(&result, "%s (occurred %d times)\n", lineExamples[normalized], count)
		} else {
			result.WriteString(line + "\n")
		}
	}

	return result.String()
}

func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	line = ipPattern.ReplaceAllString(line, "IP")
	line = timestampPattern.ReplaceAllString(line, "TIME")
	line = datePattern.ReplaceAllString(line, "DATE")
	return numberPattern.ReplaceAllString(line, "N")
}

// compressByPriority keeps the leading share of a section's lines
func compressByPriority(section *Section) string {
	lines := strings.Split(strings.TrimRight(section.Content, "\n"), "\n")

	var keepRatio float64
	switch section.Priority {
	case priorityHigh:
		keepRatio = 1.0
	case priorityMedium:
		keepRatio = 0.5
	default:
		keepRatio = 0.2
	}

	if keepRatio >= 1.0 {
		return section.Content
	}

	keepCount := max(int(math.Ceil(float64(len(lines))*keepRatio)), 1)
	if keepCount >= len(lines) {
		return section.Content
	}

	var result strings.Builder
	for _, line := range lines[:keepCount] {
		result.WriteString(line + "\n")
	}
	fmt.Fprintf(&result, "[... %d more lines omitted for brevity ...]\n", len(lines)-keepCount)

	return result.String()
}
