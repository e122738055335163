// Package text holds small text utilities shared by the ingestion and
// retrieval paths: deterministic truncation for embedding input and a
// best-effort language heuristic used for informational tagging only.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate cuts s to at most maxRunes runes without splitting a rune.
// The cut point depends only on the input, so the same text always
// truncates identically.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// DetectLanguage returns a rough BCP-47-ish tag ("uk", "ru", "en") based on
// the dominant script and a few marker letters, or "" when it cannot tell.
// It is intentionally cheap; the tag is never used for ranking.
func DetectLanguage(s string) string {
	var latin, cyrillic int
	var ukMarkers, ruMarkers int

	for _, r := range s {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
			if strings.ContainsRune("їЇєЄіІґҐ", r) {
				ukMarkers++
			}
			if strings.ContainsRune("ыЫэЭъЪёЁ", r) {
				ruMarkers++
			}
		}
	}

	switch {
	case cyrillic == 0 && latin == 0:
		return ""
	case cyrillic >= latin:
		if ukMarkers > ruMarkers {
			return "uk"
		}
		if ruMarkers > 0 {
			return "ru"
		}
		// Plain Cyrillic with no marker letters could be either.
		return "ru"
	default:
		return "en"
	}
}

// IsBlank reports whether s contains no indexable content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
