package keyword

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"what": {}, "is": {}, "are": {}, "the": {}, "of": {}, "for": {},
	"and": {}, "or": {}, "a": {}, "an": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "from": {},
}

// ExtractQueryKeywords lowercases the query, drops stop words and anything
// shorter than three characters, and dedupes while preserving order.
func ExtractQueryKeywords(query string) []string {
	tokens := tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
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
