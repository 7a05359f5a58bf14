package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock_MarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "generic code block",
			input:    "```\n[1, 2]\n```",
			expected: `[1, 2]`,
		},
		{
			name:     "code block with language",
			input:    "```javascript\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "plain JSON",
			input:    `  {"key": "value"} `,
			expected: `{"key": "value"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanJSONBlock(tt.input)
			if result != tt.expected {
				t.Errorf("CleanJSONBlock() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestParseJSON_StrictAndRecovered(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{
			name:  "fenced object",
			input: "```json\n{\"course_title\": \"Go\"}\n```",
			want:  map[string]any{"course_title": "Go"},
		},
		{
			name:  "preamble before array",
			input: "Here are the lessons:\n[{\"title\": \"a\"}]\nHope this helps!",
			want:  []any{map[string]any{"title": "a"}},
		},
		{
			name:  "trailing prose containing a brace",
			input: "{\"a\": 1} and then } more text",
			want:  map[string]any{"a": float64(1)},
		},
		{
			name:  "brackets inside strings",
			input: "Result: {\"code_or_math\": \"if (x) { y[0] }\"}",
			want:  map[string]any{"code_or_math": "if (x) { y[0] }"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON("test", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_Unrecoverable(t *testing.T) {
	inputs := []string{
		"I cannot help with that.",
		"{\"broken\": [1, 2}",
		"",
	}

	for _, in := range inputs {
		_, err := ParseJSON("gemini", in)
		require.Error(t, err)

		var outErr *ProviderOutputError
		require.True(t, errors.As(err, &outErr))
		assert.Equal(t, "gemini", outErr.Provider)
		assert.Equal(t, in, outErr.Raw)
	}
}

func TestExtractBracketed_UnbalancedFallsBackToLastCloser(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}`, extractBracketed(`x {"a": {"b": 1}`))
	assert.Equal(t, "", extractBracketed("no json here"))
}
