package search

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// stopwords are stripped from queries before building the lexical match
// expression. When stripping would empty the token set, the unfiltered
// tokens are used instead so a stopword-only query still runs.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "could": {}, "did": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {},
	"how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"s": {}, "so": {}, "that": {}, "the": {}, "their": {}, "then": {},
	"there": {}, "these": {}, "this": {}, "those": {}, "to": {}, "was": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"why": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize normalizes a query (NFKC, lowercase) and splits it into word
// tokens.
func Tokenize(query string) []string {
	query = strings.ToLower(norm.NFKC.String(query))
	return wordRe.FindAllString(query, -1)
}

// queryTokens returns the tokens used for the lexical expression: stopwords
// stripped, falling back to the unfiltered tokens when nothing survives.
func queryTokens(query string) []string {
	tokens := Tokenize(query)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return tokens
	}
	return kept
}

// matchExpr builds an FTS5 MATCH expression from tokens. conjunctive joins
// with AND (precision); otherwise OR (recall). Tokens are quoted so FTS5
// treats them as plain terms.
func matchExpr(tokens []string, conjunctive bool) string {
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	joiner := " OR "
	if conjunctive {
		joiner = " AND "
	}
	return strings.Join(quoted, joiner)
}
