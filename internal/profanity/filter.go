// Package profanity implements the whole-word block-list check used to gate
// letter messages and to give inline feedback while typing.
package profanity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Result is the outcome of a check.
type Result struct {
	HasMatch bool     `json:"has_match"`
	Matches  []string `json:"matches"`
}

// Filter is an immutable block list. Safe for concurrent use.
type Filter struct {
	words []string
	set   map[string]struct{}
}

// New builds a filter from the built-in list plus extra words.
func New(extra ...string) *Filter {
	f := &Filter{set: make(map[string]struct{}, len(defaultBlockList)+len(extra))}
	for _, w := range append(DefaultWords(), extra...) {
		w = fold(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := f.set[w]; dup {
			continue
		}
		f.set[w] = struct{}{}
		f.words = append(f.words, w)
	}
	return f
}

// Default is the filter built from the built-in list only.
var Default = New()

// Check reports the block-list words that appear in text as whole words,
// case-insensitively, in block-list order. Pure and idempotent.
func (f *Filter) Check(text string) Result {
	res := Result{Matches: []string{}}
	if text == "" {
		return res
	}

	present := make(map[string]struct{})
	for _, tok := range tokenize(fold(text)) {
		if _, blocked := f.set[tok]; blocked {
			present[tok] = struct{}{}
		}
	}
	if len(present) == 0 {
		return res
	}

	for _, w := range f.words {
		if _, ok := present[w]; ok {
			res.Matches = append(res.Matches, w)
		}
	}
	res.HasMatch = true
	return res
}

// Contains reports whether text has any match.
func (f *Filter) Contains(text string) bool {
	return f.Check(text).HasMatch
}

// Len returns the number of distinct blocked words.
func (f *Filter) Len() int {
	return len(f.words)
}

// fold applies Unicode case folding. Casers carry state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// tokenize splits on anything that is not a word character, so "pig's" yields
// "pig" and "s" while "pigment" stays whole.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}
