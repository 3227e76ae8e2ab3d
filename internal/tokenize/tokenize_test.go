package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CollapsesAndTrims(t *testing.T) {
	assert.Equal(t, "foo bar-baz_qux", Normalize("  foo   bar-baz_qux!!  "))
	assert.Equal(t, "a b", Normalize("a.b"))
}

func TestTrigrams_SearchExample(t *testing.T) {
	occs := Trigrams("search", false)
	var got []string
	for _, o := range occs {
		got = append(got, o.Trigram)
	}
	assert.Equal(t, []string{"sea", "ear", "arc", "rch"}, got)
}

func TestTrigrams_CaseSensitive(t *testing.T) {
	caseSensitive := TrigramSet("Search", true)
	assert.Contains(t, caseSensitive, "Sea")
	assert.NotContains(t, caseSensitive, "sea")
}

func TestTrigrams_ShortStringYieldsNone(t *testing.T) {
	assert.Empty(t, Trigrams("ab", false))
}

func TestTrigrams_FiltersNonAlphanumericWindows(t *testing.T) {
	occs := Trigrams("a   b", false)
	for _, o := range occs {
		hasAlnum := false
		for i := 0; i < len(o.Trigram); i++ {
			if isAlphaNum(o.Trigram[i]) {
				hasAlnum = true
			}
		}
		assert.True(t, hasAlnum, "trigram %q should contain an alphanumeric unit", o.Trigram)
	}
}

func TestTokens_HTTPSConnection(t *testing.T) {
	assert.Equal(t, []string{"HTTPS", "Connection"}, TokenStrings("HTTPSConnection"))
}

func TestTokens_SnakeCamelMix(t *testing.T) {
	assert.Equal(t, []string{"get", "User", "Name", "with", "ID"}, TokenStrings("getUserName_withID"))
}

func TestTokens_PositionsAreOriginalOffsets(t *testing.T) {
	occs := Tokens("getUserName")
	require.Len(t, occs, 3)
	assert.Equal(t, 0, occs[0].Pos)
	assert.Equal(t, "get", occs[0].Token)
	assert.Equal(t, 3, occs[1].Pos)
	assert.Equal(t, "User", occs[1].Token)
	assert.Equal(t, 7, occs[2].Pos)
	assert.Equal(t, "Name", occs[2].Token)
}

func TestAbbreviationMatches(t *testing.T) {
	assert.True(t, AbbreviationMatches("gUN", "getUserName"))
	assert.False(t, AbbreviationMatches("gnu", "getUserName"))
}

func TestScore_Ladder(t *testing.T) {
	assert.Equal(t, ScoreExact, Score("config", "config", false))
	assert.Equal(t, ScorePrefix, Score("conf", "config", false))
	assert.Equal(t, ScoreContains, Score("fig", "config", false))
	assert.Equal(t, ScoreAbbrev, Score("gun", "getUserName", false))
	assert.Equal(t, 0, Score("xyz", "config", false))
}

func TestScore_MonotoneOnTheLadder(t *testing.T) {
	exact := Score("config", "config", false)
	prefix := Score("conf", "config", false)
	contains := Score("fig", "config", false)
	abbrev := Score("gUN", "getUserName", false)
	fuzzy := Score("cfg", "config", false)

	assert.Greater(t, exact, prefix)
	assert.Greater(t, prefix, contains)
	assert.Greater(t, contains, abbrev)
	assert.Greater(t, abbrev, fuzzy)
	assert.GreaterOrEqual(t, fuzzy, 0)
}

func TestScore_ClampedAtZero(t *testing.T) {
	assert.Equal(t, 0, Score("zzzzzzzzzzzzzzzzzzzz", "config", false))
}

func TestTrigrams_CountBeforeAlphanumericFilter(t *testing.T) {
	samples := []string{"search", "a", "ab", "abc", "hello world", ""}
	for _, s := range samples {
		normalized := Normalize(s)
		want := len(normalized) - 2
		if want < 0 {
			want = 0
		}

		// None of these samples has a window without an alphanumeric
		// unit, so the filter drops nothing and Trigrams must return
		// exactly the raw window count.
		got := len(Trigrams(s, false))
		assert.Equal(t, want, got, "input %q", s)
	}
}

func TestTokens_PreserveCharacterCoverage(t *testing.T) {
	text := "getUserName_withID"
	occs := Tokens(text)

	covered := 0
	for _, o := range occs {
		covered += len(o.Token)
	}

	separators := 0
	for i := 0; i < len(text); i++ {
		if isSeparator(text[i]) {
			separators++
		}
	}

	assert.Equal(t, len(text)-separators, covered)
}
