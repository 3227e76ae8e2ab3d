// Package tokenize holds the pure, stateless text-normalization,
// trigram/token extraction, abbreviation-matching, and scoring functions
// that back the indexing and query pipelines.
package tokenize

import "strings"

// Normalize replaces every code unit outside [A-Za-z0-9_- ] with a single
// space, collapses whitespace runs to one space, and trims the result.
// Underscores and hyphens are preserved as word separators.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastWasSpace := false
	for _, r := range text {
		var out rune
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			out = r
		default:
			out = ' '
		}

		if out == ' ' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
		} else {
			lastWasSpace = false
		}
		b.WriteRune(out)
	}

	return strings.TrimSpace(b.String())
}

// FoldCase lowercases s when caseSensitive is false; otherwise returns s
// unchanged. Every call site that must respect the case-sensitivity flag
// — it governs both the trigram alphabet and the token storage form —
// routes through this helper.
func FoldCase(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}
