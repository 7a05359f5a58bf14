// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// CleanJSONBlock removes markdown code block wrappers from JSON responses.
// LLMs often wrap JSON in ```json ... ``` blocks even when instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") && !strings.Contains(firstLine, "[") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// ParseJSON turns raw model text into a decoded JSON value (map[string]any or []any).
//
// Stage one strips code fences and parses strictly. Stage two slices the outermost
// bracketed value starting at the first '{' or '[' and parses that once. When both
// fail the result is a *ProviderOutputError carrying the raw text.
func ParseJSON(provider, text string) (any, error) {
	cleaned := CleanJSONBlock(text)

	var v any
	strictErr := json.Unmarshal([]byte(cleaned), &v)
	if strictErr == nil {
		return v, nil
	}

	candidate := extractBracketed(cleaned)
	if candidate == "" {
		return nil, &ProviderOutputError{Provider: provider, Raw: text, Cause: errors.New("no JSON object or array found")}
	}
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, &ProviderOutputError{Provider: provider, Raw: text, Cause: err}
	}
	return v, nil
}

// extractBracketed returns the substring from the first '{' or '[' to its matching
// closer, skipping brackets inside string literals. If the opener is never balanced it
// falls back to the last occurrence of the matching closer.
func extractBracketed(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
