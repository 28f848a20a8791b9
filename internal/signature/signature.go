// Package signature normalizes raw merchant descriptions into stable keys.
//
// The normalized signature is used both as a rule-matching key and for
// deduplicating external classifier calls, so Normalize must stay pure and
// deterministic across runs.
package signature

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Leading payment-method tokens stripped when they open a description.
var prefixTokens = []string{"pos", "card", "payment", "purchase", "dd", "so", "sto", "tfr"}

// Trailing jurisdiction/company tokens stripped when they close a description.
var suffixTokens = []string{"uk", "gb", "co", "ltd"}

// Normalize canonicalizes a merchant description. The steps are
// order-dependent: lowercase, strip diacritics, remove punctuation, collapse
// whitespace, strip payment-method prefixes and jurisdiction suffixes, trim
// trailing reference numbers, collapse again. Empty input yields empty output.
func Normalize(text string) string {
	text = stripDiacritics(strings.ToLower(text))
	text = removePunctuation(text)
	text = collapseWhitespace(text)
	text = removeTokens(text, prefixTokens, true)
	text = removeTokens(text, suffixTokens, false)
	text = trimTrailingDigits(text, 5)
	return collapseWhitespace(text)
}

// stripDiacritics decomposes to NFKD and drops combining marks, so
// "Café" becomes "Cafe". Runes outside ASCII after decomposition are dropped.
func stripDiacritics(text string) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func removePunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// removeTokens strips each listed token once when it appears as the first
// (prefix) or last (suffix) whitespace-delimited token.
func removeTokens(text string, tokens []string, prefix bool) string {
	for _, token := range tokens {
		if prefix && strings.HasPrefix(text, token+" ") {
			text = text[len(token)+1:]
		} else if !prefix && strings.HasSuffix(text, " "+token) {
			text = text[:len(text)-len(token)-1]
		}
	}
	return text
}

// trimTrailingDigits drops trailing all-digit tokens of at least minLength
// runes, repeating while the last token qualifies. These are transaction and
// reference numbers that vary per statement line.
func trimTrailingDigits(text string, minLength int) string {
	tokens := strings.Fields(text)
	for len(tokens) > 0 {
		last := tokens[len(tokens)-1]
		if len(last) < minLength || !isDigits(last) {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
