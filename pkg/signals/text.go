// Package signals extracts the deterministic inputs the classifiers decide on:
// keyword hits, anger, issue categories and exact performance ratios.
//
// Everything here is pure. Text is NFKC-normalized and case-folded before
// matching so that full-width or accented variants of a term still hit.
package signals

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize returns the NFKC, case-folded form of s.
func Normalize(s string) string {
	return folder.String(norm.NFKC.String(s))
}

// Tokens splits normalized text into words. Apostrophes inside a word are
// dropped so "don't" and "dont" match the same term.
func Tokens(s string) []string {
	s = strings.ReplaceAll(Normalize(s), "'", "")
	s = strings.ReplaceAll(s, "’", "")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Lexicon is an ordered set of single or multi-word terms.
type Lexicon struct {
	Name  string
	terms [][]string
	raw   []string
}

// NewLexicon builds a lexicon. Terms are tokenized the same way as input text.
func NewLexicon(name string, terms ...string) *Lexicon {
	l := &Lexicon{Name: name}
	for _, t := range terms {
		toks := Tokens(t)
		if len(toks) == 0 {
			continue
		}
		l.terms = append(l.terms, toks)
		l.raw = append(l.raw, strings.Join(toks, " "))
	}
	return l
}

// Terms returns the normalized terms in declaration order.
func (l *Lexicon) Terms() []string {
	out := make([]string, len(l.raw))
	copy(out, l.raw)
	return out
}

// Match returns the distinct terms found in tokens, in lexicon order.
// Terms match on whole-word boundaries: "sue" does not match "issue".
func (l *Lexicon) Match(tokens []string) []string {
	var hits []string
	for i, term := range l.terms {
		if containsSeq(tokens, term) {
			hits = append(hits, l.raw[i])
		}
	}
	return hits
}

// MatchText tokenizes s and calls Match.
func (l *Lexicon) MatchText(s string) []string {
	return l.Match(Tokens(s))
}

// Any reports whether at least one term is present.
func (l *Lexicon) Any(tokens []string) bool {
	for _, term := range l.terms {
		if containsSeq(tokens, term) {
			return true
		}
	}
	return false
}

func containsSeq(tokens, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j, w := range seq {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
