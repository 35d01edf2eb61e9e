package scraping

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxKeywords bounds how many keywords one job may carry.
	MaxKeywords = 10
	// MaxKeywordLength bounds a single keyword, in runes.
	MaxKeywordLength = 100
)

// SanitizeKeyword removes control, format, and astral-plane characters,
// collapses whitespace, and trims. Applying it twice yields the same result.
func SanitizeKeyword(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	n := 0
	for i := 0; i < len(raw) && n < MaxKeywordLength; {
		r, size := utf8.DecodeRuneInString(raw[i:])
		i += size
		switch {
		case r == utf8.RuneError && size <= 1:
			continue
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case r > 0xFFFF, unicode.IsControl(r), unicode.Is(unicode.Cf, r), unicode.Is(unicode.Cs, r):
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
			n++
			if n >= MaxKeywordLength {
				break
			}
		}
		pendingSpace = false
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// SanitizeKeywords sanitizes every keyword, drops empties, and removes
// case-insensitive duplicates while keeping first-seen order.
func SanitizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, kw := range raw {
		clean := SanitizeKeyword(kw)
		if clean == "" {
			continue
		}
		key := strings.ToLower(clean)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, clean)
	}
	return out
}
