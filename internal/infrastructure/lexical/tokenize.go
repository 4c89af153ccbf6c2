// Package lexical holds the tokenizer shared by the BM25 index and the
// hashing embedding model.
package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on every rune that is not a Unicode
// letter or digit. No stemming or stopword removal is applied.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
