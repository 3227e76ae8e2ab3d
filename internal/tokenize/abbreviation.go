package tokenize

import "strings"

// AbbreviationMatches reports whether q (case-folded) is an abbreviation
// of n's tokens: a prefix of the concatenated tokens, a prefix of the
// tokens' initials, or a match via a loose left-to-right walk that
// consumes one token per matched initial or absorbs a token whose body
// contains the next character.
func AbbreviationMatches(q, n string) bool {
	if q == "" {
		return false
	}

	tokens := TokenStrings(n)
	if len(tokens) == 0 {
		return false
	}

	qf := strings.ToLower(q)

	concatenated := strings.ToLower(strings.Join(tokens, ""))
	if strings.HasPrefix(concatenated, qf) {
		return true
	}

	initials := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		initials = append(initials, lowerByte(t[0]))
	}
	if strings.HasPrefix(string(initials), qf) {
		return true
	}

	return looseWalk(qf, tokens)
}

// looseWalk scans qf left to right against tokens in order. At each
// character it tries the next unconsumed token's first letter; failing
// that, it tries the token's body; a token that matches neither is
// skipped (consumed without advancing qi) so the walk can reach a later
// token. Each token is visited at most once. The predicate holds when qf
// is fully consumed before the tokens run out.
func looseWalk(qf string, tokens []string) bool {
	ti, qi := 0, 0

	for qi < len(qf) {
		if ti >= len(tokens) {
			return false
		}

		t := tokens[ti]
		c := qf[qi]

		switch {
		case t != "" && lowerByte(t[0]) == c:
			ti++
			qi++
		case strings.IndexByte(strings.ToLower(t), c) >= 0:
			ti++
			qi++
		default:
			ti++
		}
	}

	return true
}

func lowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
