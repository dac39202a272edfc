package tool

import (
	"strings"
	"unicode"
)

const MaxHashtags = 10

// NormalizeHashtags prefixes '#', strips characters that break a tag,
// dedupes case-insensitively and keeps at most limit tags, joined by spaces.
func NormalizeHashtags(tags []string, limit int) string {
	if limit <= 0 {
		limit = MaxHashtags
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, field := range strings.Fields(raw) {
			tag := cleanTag(field)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, "#"+tag)
			if len(out) == limit {
				return strings.Join(out, " ")
			}
		}
	}
	return strings.Join(out, " ")
}

func cleanTag(s string) string {
	s = strings.TrimLeft(s, "#")
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}

// CountHashtags counts '#'-prefixed fields.
func CountHashtags(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if strings.HasPrefix(f, "#") && len(f) > 1 {
			n++
		}
	}
	return n
}
