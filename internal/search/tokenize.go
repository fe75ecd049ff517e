package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// foldCase is shared between tokenization and keyword normalization so
// "Title" fields and analyzed TEXT fields agree on what "the same term"
// means. No stemming library appears anywhere in this module's example
// pack, so case folding comes from golang.org/x/text and the suffix
// stripping below is hand-rolled.
var foldCase = cases.Fold()

// Tokenize splits a TEXT field's value into a stream of analyzed,
// stemmed terms: lowercase/case-folded, split on non-letters/non-digits,
// stopwords dropped, each remaining term run through stem.
func Tokenize(text string) []string {
	folded := foldCase.String(text)
	var terms []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		term := cur.String()
		cur.Reset()
		if stopwords[term] {
			return
		}
		terms = append(terms, stem(term))
	}
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// NormalizeKeyword case-folds value as a whole, without tokenizing or
// stemming it. The index itself does not call it: Index.Upsert
// tokenizes KEYWORD fields the same way as TEXT fields.
func NormalizeKeyword(value string) string {
	return foldCase.String(value)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true,
}

// stem applies a small Porter-style suffix-stripping pass: enough to fold
// common plural/verb-tense variants onto a shared term without pulling in
// an external stemming dependency this module's examples never use.
func stem(term string) string {
	switch {
	case len(term) > 4 && strings.HasSuffix(term, "ies"):
		return term[:len(term)-3] + "y"
	case len(term) > 5 && strings.HasSuffix(term, "ing"):
		return trimDoubledConsonant(term[:len(term)-3])
	case len(term) > 4 && strings.HasSuffix(term, "ed"):
		return trimDoubledConsonant(term[:len(term)-2])
	case len(term) > 3 && strings.HasSuffix(term, "es"):
		return term[:len(term)-2]
	case len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss"):
		return term[:len(term)-1]
	default:
		return term
	}
}

func trimDoubledConsonant(s string) string {
	if len(s) < 3 {
		return s
	}
	last := s[len(s)-1]
	secondLast := s[len(s)-2]
	if last == secondLast && isConsonant(rune(last)) {
		return s[:len(s)-1]
	}
	return s
}

func isConsonant(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	default:
		return unicode.IsLetter(r)
	}
}
