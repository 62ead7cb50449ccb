// Package vendormatch normalizes raw vendor strings into canonical vendor
// names using TF-IDF vector clustering with an edit-distance fallback.
package vendormatch

import (
	"strings"
	"unicode"
)

// ngramTag prefixes character n-gram tokens so they never collide with
// word tokens in the shared vocabulary.
const ngramTag = "#ng:"

// ngramSize is the character n-gram width used for typo tolerance.
const ngramSize = 3

// stopWords are dropped during tokenization: corporate suffixes and generic
// banking noise that carry no vendor identity.
var stopWords = map[string]struct{}{
	"inc":          {},
	"incorporated": {},
	"llc":          {},
	"llp":          {},
	"ltd":          {},
	"limited":      {},
	"corp":         {},
	"corporation":  {},
	"co":           {},
	"company":      {},
	"the":          {},
	"of":           {},
	"and":          {},
	"payment":      {},
	"payments":     {},
	"transfer":     {},
	"purchase":     {},
	"pos":          {},
	"debit":        {},
	"credit":       {},
	"ach":          {},
	"www":          {},
	"com":          {},
	"net":          {},
	"online":       {},
	"recurring":    {},
}

// normalizeText lower-cases a raw vendor string and strips punctuation,
// collapsing runs of separators into single spaces.
func normalizeText(raw string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// Tokenize produces the tokens for a raw vendor string: normalized words
// minus stop words, plus tagged character 3-grams of the whole normalized
// string for typo tolerance. Repeated tokens are kept so term frequency
// survives into vectorization.
func Tokenize(raw string) []string {
	normalized := normalizeText(raw)
	if normalized == "" {
		return nil
	}

	var tokens []string
	for _, word := range strings.Fields(normalized) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		tokens = append(tokens, word)
	}

	compact := strings.ReplaceAll(normalized, " ", "")
	runes := []rune(compact)
	for i := 0; i+ngramSize <= len(runes); i++ {
		tokens = append(tokens, ngramTag+string(runes[i:i+ngramSize]))
	}

	return tokens
}
