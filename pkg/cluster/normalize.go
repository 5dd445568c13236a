package cluster

import (
	"strings"
	"unicode"
)

// baseStopwords are domain filler words that carry no clustering
// signal, plus the product's own name. Extra words come from config.
var baseStopwords = []string{
	"pulseboard",
	"clip", "clips", "reaction", "reactions", "highlights",
	"live", "stream", "streams", "podcast", "podcasts",
	"show", "shows", "episode", "episodes",
}

// StopwordSet builds the stopword lookup from the base list plus any
// configured extras.
func StopwordSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(baseStopwords)+len(extra))
	for _, w := range baseStopwords {
		set[strings.ToLower(w)] = true
	}
	for _, w := range extra {
		set[strings.ToLower(w)] = true
	}
	return set
}

// NormalizeTitle turns a raw title plus its channel/author name into a
// filtered token list: lowercase, punctuation stripped, channel-name
// tokens removed (so "After Hours with Joe" doesn't self-match every
// "joe" upload), tokens shorter than 3 runes dropped, stopwords
// dropped. No stemming. An empty result means the title carries no
// clustering signal and the caller must fall back to exact identity.
func NormalizeTitle(title, channel string, stopwords map[string]bool) []string {
	channelTokens := make(map[string]bool)
	for _, t := range scrub(channel) {
		channelTokens[t] = true
	}

	var tokens []string
	for _, t := range scrub(title) {
		if len(t) < 3 {
			continue
		}
		if channelTokens[t] || stopwords[t] {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// scrub lowercases and splits on every non-word rune.
func scrub(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
