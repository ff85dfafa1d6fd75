package cognitive

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = '\u0640'

// isArabicMark reports Arabic harakat, the superscript alef and tatweel.
func isArabicMark(r rune) bool {
	return (r >= '\u064B' && r <= '\u065F') || r == '\u0670' || r == tatweel
}

// foldArabic maps alef variants to bare alef and alef maqsura to ya.
func foldArabic(r rune) rune {
	switch r {
	case '\u0623', '\u0625', '\u0622', '\u0671':
		return '\u0627'
	case '\u0649':
		return '\u064A'
	}
	return r
}

// Normalize prepares text for matching: NFKC, lower case, Arabic diacritics
// and tatweel removed, alef forms folded, whitespace collapsed.
func Normalize(s string) string {
	// Casers and chains are stateful, so each call builds its own.
	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.Predicate(isArabicMark)),
		runes.Map(foldArabic),
		cases.Lower(language.Und),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// tokens splits normalized text into words.
func tokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
