package tokenize

// TrigramOccurrence is one trigram at one position in normalized text.
type TrigramOccurrence struct {
	Trigram string
	Pos     int
}

// isAlphaNum reports whether b is a letter, digit, or underscore, used to
// decide whether a trigram window is worth indexing.
func isAlphaNum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

// Trigrams extracts every 3-unit window of the (case-folded per
// caseSensitive) normalized form of text, filtering out windows with no
// alphanumeric unit, and preserving position order.
func Trigrams(text string, caseSensitive bool) []TrigramOccurrence {
	normalized := FoldCase(Normalize(text), caseSensitive)
	if len(normalized) < 3 {
		return nil
	}

	occurrences := make([]TrigramOccurrence, 0, len(normalized)-2)
	for i := 0; i <= len(normalized)-3; i++ {
		a, b, c := normalized[i], normalized[i+1], normalized[i+2]
		if !isAlphaNum(a) && !isAlphaNum(b) && !isAlphaNum(c) {
			continue
		}
		occurrences = append(occurrences, TrigramOccurrence{
			Trigram: normalized[i : i+3],
			Pos:     i,
		})
	}
	return occurrences
}

// TrigramSet reduces Trigrams to its distinct members, for callers (such
// as query probes) that only need the set, not per-position detail.
func TrigramSet(text string, caseSensitive bool) []string {
	occurrences := Trigrams(text, caseSensitive)
	seen := make(map[string]bool, len(occurrences))
	out := make([]string, 0, len(occurrences))
	for _, occ := range occurrences {
		if !seen[occ.Trigram] {
			seen[occ.Trigram] = true
			out = append(out, occ.Trigram)
		}
	}
	return out
}
