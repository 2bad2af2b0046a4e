// Package ai provides shared plumbing around model clients: output cleaning
// and a process-wide concurrency cap.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResponseCleaner normalizes model output that is supposed to be a single
// JSON object but often arrives wrapped in markdown fences or prose.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// CleanJSONObject strips markdown fences, slices out the outermost balanced
// JSON object, and repairs trailing commas. The returned string is not
// guaranteed to parse; callers validate with IsValidJSON or json.Unmarshal.
func (rc *ResponseCleaner) CleanJSONObject(raw string) string {
	s := rc.stripFences(raw)
	s = rc.extractObject(s)
	if rc.IsValidJSON(s) {
		return s
	}
	return trailingComma.ReplaceAllString(s, "$1")
}

// stripFences removes ```json ... ``` markers around the payload.
func (rc *ResponseCleaner) stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} span, or the input unchanged
// when no object is found.
func (rc *ResponseCleaner) extractObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(s string) bool {
	var tmp any
	return json.Unmarshal([]byte(s), &tmp) == nil
}
