package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "keeps letters digits and basic punctuation",
			input:    "Koncert: Dawid Podsiadło! @Stadion #2025",
			expected: "Koncert Dawid Podsiadło! Stadion 2025",
		},
		{
			name:     "strips html first",
			input:    "<p>Wielki <b>festiwal</b> muzyki</p>",
			expected: "Wielki festiwal muzyki",
		},
		{
			name:     "collapses whitespace",
			input:    "rock   \n\t alternatywny",
			expected: "rock alternatywny",
		},
		{
			name:     "keeps polish diacritics",
			input:    "Zażółć gęślą jaźń",
			expected: "Zażółć gęślą jaźń",
		},
		{
			name:     "trims edges",
			input:    "  koncert  ",
			expected: "koncert",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EmbeddingText(tt.input))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "ab", TruncateRunes("abcd", 2))
	assert.Equal(t, "", TruncateRunes("abc", 0))
	// multi-byte characters count as one rune
	assert.Equal(t, "żół", TruncateRunes("żółty", 3))
}
