package rank

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase tokens made of letters, digits and
// hyphens. Everything else separates tokens.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		if current.Len() > 0 {
			tokens = appendToken(tokens, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		tokens = appendToken(tokens, current.String())
	}

	return tokens
}

// appendToken drops tokens made only of hyphens.
func appendToken(tokens []string, tok string) []string {
	if strings.Trim(tok, "-") == "" {
		return tokens
	}
	return append(tokens, tok)
}

// Normalize lowercases and collapses whitespace so that names and queries
// compare equal regardless of case or spacing.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
