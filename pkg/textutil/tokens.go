// Package textutil holds the tokenizer shared by the hashed embedding
// backend and the ranking engine's lexical boost.
package textutil

import "strings"

// Tokenize lowercases text and splits it into runs of ASCII letters and
// digits. Everything else separates tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// DistinctTokens returns the set of tokens in text.
func DistinctTokens(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// SharedCount returns how many distinct tokens of a also occur in b.
func SharedCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
