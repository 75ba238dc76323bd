// Package logutil keeps secrets and user text out of structured logs.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a key likely holds a credential.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case normalized == "masterkey":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	default:
		return false
	}
}

// IsUserTextField returns true for fields that carry note or prompt text.
// Those are logged as previews only.
func IsUserTextField(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "prompt", "input", "content", "transcript", "value", "instructions":
		return true
	default:
		return false
	}
}

// RedactHeaderValue redacts a header value when the key looks sensitive.
func RedactHeaderValue(key, value string) string {
	if IsSensitiveLogField(key) {
		return redacted
	}
	return value
}

// FormatHeadersForLog returns stable, redacted header text for logs.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		values := headers.Values(k)
		if len(values) == 0 {
			parts = append(parts, fmt.Sprintf("%s=<empty>", strings.ToLower(k)))
			continue
		}
		safe := make([]string, len(values))
		for i, v := range values {
			safe[i] = RedactHeaderValue(k, v)
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), strings.Join(safe, ", ")))
	}
	return strings.Join(parts, "; ")
}

// RedactBodyForLog redacts credentials and shortens user text in JSON payloads.
// Non-JSON bodies are returned as a truncated preview.
func RedactBodyForLog(contentType string, body []byte, previewChars int) string {
	text := string(body)
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return TruncateForLog(text, previewChars)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return TruncateForLog(text, previewChars)
	}

	var walk func(v any)
	walk = func(v any) {
		switch typed := v.(type) {
		case map[string]any:
			for k, child := range typed {
				if IsSensitiveLogField(k) {
					typed[k] = redacted
					continue
				}
				if s, ok := child.(string); ok && IsUserTextField(k) {
					typed[k] = TruncateForLog(s, previewChars)
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range typed {
				walk(child)
			}
		}
	}

	walk(payload)
	safeJSON, err := json.Marshal(payload)
	if err != nil {
		return TruncateForLog(text, previewChars)
	}
	return string(safeJSON)
}

// TruncateForLog returns a single-line preview cut at maxChars runes.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || utf8.RuneCountInString(normalized) <= maxChars {
		return normalized
	}
	runes := []rune(normalized)
	return string(runes[:maxChars]) + "... [truncated]"
}
