package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"anthropic key", "using sk-ant-api03-abc123def", true},
		{"github token", "token ghp_abcdefghijklmnopqrstuv123456", true},
		{"bearer token", "Bearer abcdefghijklmnopqrstuvwx", true},
		{"api key assignment", `api_key: "abcdefghijklmnop1234"`, true},
		{"plain message", "task created", false},
		{"short value", "pwd=abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsSensitiveData(tt.input))
		})
	}
}

func TestFilterSensitiveValue(t *testing.T) {
	got := FilterSensitiveValue("key is sk-ant-api03-secretvalue here")
	assert.NotContains(t, got, "sk-ant-api03-secretvalue")
	assert.Contains(t, got, RedactedValue)
}

func TestFilteringWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewFilteringWriter(&buf)

	input := []byte("token ghp_abcdefghijklmnopqrstuv123456 leaked")
	n, err := w.Write(input)
	require.NoError(t, err)

	// Reported length matches the original input, not the redacted output.
	assert.Equal(t, len(input), n)
	assert.NotContains(t, buf.String(), "ghp_abcdefghijklmnopqrstuv123456")
	assert.Contains(t, buf.String(), RedactedValue)
}
