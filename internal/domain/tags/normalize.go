package tags

import (
	"regexp"
	"strings"
)

var (
	separators = strings.NewReplacer("-", " ", "_", " ")
	nonAlnum   = regexp.MustCompile(`[^a-ząćęłńóśźż0-9\s]`)
	spaceRuns  = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a raw tag so that spelling variants collapse to one
// row: lowercase, separators become spaces, anything outside lowercase
// letters (Polish diacritics included), digits and spaces is stripped, and
// whitespace runs collapse to a single space.
//
// "Rock Alternatywny", "rock-alternatywny" and "Rock_Alternatywny" all
// normalize to "rock alternatywny".
func Normalize(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = separators.Replace(name)
	name = nonAlnum.ReplaceAllString(name, "")
	name = spaceRuns.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// SplitList parses a comma-separated tag field into normalized, deduplicated
// tag names. Empty entries are dropped.
func SplitList(field string) []string {
	parts := strings.Split(field, ",")
	seen := make(map[string]struct{}, len(parts))
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := Normalize(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
