package matching

import (
	"strings"
	"unicode"
)

// stopWords are generic corporate suffixes and trade nouns that carry no
// identifying signal for a business name.
var stopWords = map[string]struct{}{
	"inc": {}, "llc": {}, "ltd": {}, "co": {}, "corp": {}, "corporation": {},
	"company": {}, "incorporated": {}, "the": {}, "and": {}, "of": {},
	"auto": {}, "automotive": {}, "service": {}, "services": {}, "shop": {},
	"group": {}, "enterprises": {}, "holdings": {},
}

// Normalize lower-cases a name, removes apostrophes, splits on any other
// non-alphanumeric rune and drops stop words. It returns the rejoined string
// and its tokens. Normalize is idempotent.
func Normalize(name string) (string, []string) {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return strings.Join(tokens, " "), tokens
}

type tokenSet map[string]struct{}

func newTokenSet(tokens []string) tokenSet {
	s := make(tokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Jaccard is |a ∩ b| / |a ∪ b| over token sets. Two empty sets score 0: an
// empty name carries no evidence of identity.
func Jaccard(a, b []string) float64 {
	return jaccard(newTokenSet(a), newTokenSet(b))
}

func jaccard(a, b tokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
