// Package logging provides logging utilities including sensitive data filtering.
// This package contains hooks and utilities for zerolog that help ensure
// credentials are never written to log files.
package logging

import (
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// sensitivePatterns contains compiled regular expressions for detecting
// sensitive values in log output. These match common API key and token formats.
var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // Package-level patterns for reuse
	// Anthropic API keys (sk-ant-api...)
	regexp.MustCompile(`sk-ant-api[a-zA-Z0-9_-]+`),

	// OpenAI API keys (sk-...)
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),

	// GitHub tokens (ghp_, gho_, ghu_, ghs_, ghr_)
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),

	// Generic API keys (api_key, apikey, api-key followed by a value)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?([a-zA-Z0-9_-]{16,})["']?`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{20,}`),

	// Generic secret patterns (secret, password, token with values)
	regexp.MustCompile(`(?i)(secret|password|credential|token)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
}

// SensitiveDataHook is a zerolog hook that flags log entries containing
// sensitive data. Zerolog hooks cannot rewrite the message, so the hook marks
// the entry; actual redaction happens in FilteringWriter on the file path.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements the zerolog.Hook interface.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData checks if a string matches any sensitive pattern.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces any matches of sensitive patterns with
// RedactedValue. Use when logging values of unknown provenance.
func FilterSensitiveValue(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// FilteringWriter wraps an io.Writer and redacts sensitive data from every
// write. It sits between zerolog and the rotating log file so credentials
// never reach disk.
type FilteringWriter struct {
	target io.Writer
}

// NewFilteringWriter creates a FilteringWriter around target.
func NewFilteringWriter(target io.Writer) *FilteringWriter {
	return &FilteringWriter{target: target}
}

// Write implements io.Writer. The reported length is that of the original
// input so zerolog does not treat redaction as a short write.
func (w *FilteringWriter) Write(p []byte) (int, error) {
	filtered := FilterSensitiveValue(string(p))
	if _, err := w.target.Write([]byte(filtered)); err != nil {
		return 0, err
	}
	return len(p), nil
}
