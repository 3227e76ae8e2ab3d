package tokenize

import "strings"

// Scoring ladder constants, in descending priority order.
const (
	ScoreExact       = 1000
	ScorePrefix      = 900
	ScoreContains    = 800
	ScoreAbbrev      = 700
	fuzzyPerChar     = 100
	fuzzyConsecutive = 50
	fuzzyWordBoundary = 25
	fuzzyLengthPenalty = 5
)

// Score ranks a (query, candidate-name) pair under a strict ladder: exact
// match, then prefix, then substring, then abbreviation, then fuzzy walk.
// Case folding applies iff caseSensitive is false.
func Score(q, n string, caseSensitive bool) int {
	if q == "" || n == "" {
		return 0
	}

	qf, nf := q, n
	if !caseSensitive {
		qf = strings.ToLower(q)
		nf = strings.ToLower(n)
	}

	if qf == nf {
		return ScoreExact
	}
	if strings.HasPrefix(nf, qf) {
		return ScorePrefix
	}
	if strings.Contains(nf, qf) {
		return ScoreContains
	}
	if AbbreviationMatches(q, n) {
		return ScoreAbbrev
	}

	return fuzzyScore(qf, nf)
}

// fuzzyScore walks qf left to right through nf: 100 per matched character
// in order, +50 per consecutive match, +25 when the matched character
// sits at a word boundary, minus 5*|len(n)-len(q)|. Returns 0 if not all
// of q is matched.
func fuzzyScore(qf, nf string) int {
	score := 0
	ni := 0
	prevFound := -2

	for qi := 0; qi < len(qf); qi++ {
		c := qf[qi]
		found := -1
		for j := ni; j < len(nf); j++ {
			if nf[j] == c {
				found = j
				break
			}
		}
		if found < 0 {
			return 0
		}

		score += fuzzyPerChar
		if found == prevFound+1 {
			score += fuzzyConsecutive
		}
		if isWordBoundary(nf, found) {
			score += fuzzyWordBoundary
		}

		prevFound = found
		ni = found + 1
	}

	score -= fuzzyLengthPenalty * abs(len(nf)-len(qf))
	if score < 0 {
		score = 0
	}
	return score
}

// isWordBoundary reports whether position i in s is the start of a word:
// position 0, or preceded by a non-alphanumeric character.
func isWordBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isAlphaNum(s[i-1])
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
