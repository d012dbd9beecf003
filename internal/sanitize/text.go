package sanitize

import (
	"regexp"
	"strings"
)

var (
	embeddingUnsafe = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?'-]`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// EmbeddingText prepares free text for embedding generation: HTML is
// stripped, characters outside letters, digits, whitespace and basic
// punctuation are removed, and runs of whitespace collapse to one space.
func EmbeddingText(input string) string {
	cleaned := Text(input)
	cleaned = embeddingUnsafe.ReplaceAllString(cleaned, "")
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// TruncateRunes shortens s to at most limit runes. Multi-byte characters are
// never split.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
