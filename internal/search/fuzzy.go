package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match is how well a query matched one text. Lower scores are better.
type Match struct {
	Score          int
	MatchedIndexes []int // rune positions in the text, for highlighting
}

// Scores for the ways a query word can match a text word.
const (
	scoreExact     = 0
	scorePrefix    = 10
	scorePartial   = 20 // text word is a prefix of the query word
	scoreInside    = 50
	scoreTypo      = 100
	scoreAnywhere  = 150
	scoreLoose     = 200 // letters in order, nothing else matched
	minLooseRunes  = 4   // shorter loose queries match almost anything
	typoPenalty    = 20
	extraWordsCost = 5
)

type token struct {
	text       string // lower case
	start, end int    // rune offsets, end exclusive
}

func tokenize(text string) []token {
	var tokens []token
	runes := []rune(strings.ToLower(text))
	start := -1
	for i, r := range runes {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			tokens = append(tokens, token{text: string(runes[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: string(runes[start:]), start: start, end: len(runes)})
	}
	return tokens
}

// MatchText matches every word of query against text in any order
// ("ipa west" matches "West Coast IPA"). Short words must match exactly or by
// prefix; longer ones tolerate typos. When no word-level match exists a
// query of four or more runes may still match as an in-order subsequence.
func MatchText(query, text string) (Match, bool) {
	words := tokenize(query)
	if len(words) == 0 {
		return Match{}, false
	}
	if m, ok := matchWords(words, text); ok {
		return m, true
	}
	return matchLoose(strings.TrimSpace(query), text)
}

func matchWords(words []token, text string) (Match, bool) {
	lower := strings.ToLower(text)
	targets := tokenize(text)
	used := make([]bool, len(targets))

	var m Match
	for _, w := range words {
		best, idx := -1, -1
		var bestIdx []int
		for i, t := range targets {
			if used[i] {
				continue
			}
			if score, positions, ok := matchWord(w.text, t); ok && (best < 0 || score < best) {
				best, idx, bestIdx = score, i, positions
			}
		}
		if best < 0 {
			// Fall back to the word appearing anywhere, e.g. inside a hyphenation.
			pos := strings.Index(lower, w.text)
			if pos < 0 {
				return Match{}, false
			}
			start := len([]rune(lower[:pos]))
			best, bestIdx = scoreAnywhere+start, span(start, start+len([]rune(w.text)))
		}
		if idx >= 0 {
			used[idx] = true
		}
		m.Score += best
		m.MatchedIndexes = append(m.MatchedIndexes, bestIdx...)
	}

	if extra := len(targets) - len(words); extra > 0 {
		m.Score += extra * extraWordsCost
	}
	m.MatchedIndexes = dedupe(m.MatchedIndexes)
	return m, true
}

func matchWord(q string, t token) (int, []int, bool) {
	qlen := len([]rune(q))
	switch {
	case q == t.text:
		return scoreExact, span(t.start, t.end), true
	case strings.HasPrefix(t.text, q):
		return scorePrefix, span(t.start, t.start+qlen), true
	case strings.HasPrefix(q, t.text):
		return scorePartial, span(t.start, t.end), true
	}
	if pos := strings.Index(t.text, q); pos >= 0 {
		start := t.start + len([]rune(t.text[:pos]))
		return scoreInside + pos, span(start, start+qlen), true
	}
	if allowed := allowedTypos(qlen); allowed > 0 {
		if d := fuzzy.LevenshteinDistance(q, t.text); d <= allowed {
			return scoreTypo + d*typoPenalty, span(t.start, t.end), true
		}
	}
	return 0, nil, false
}

// allowedTypos: 1-3 runes none, 4-6 one, longer two.
func allowedTypos(n int) int {
	switch {
	case n <= 3:
		return 0
	case n <= 6:
		return 1
	default:
		return 2
	}
}

func matchLoose(query, text string) (Match, bool) {
	if len([]rune(query)) < minLooseRunes || !fuzzy.MatchFold(query, text) {
		return Match{}, false
	}
	return Match{
		Score:          scoreLoose + fuzzy.LevenshteinDistance(strings.ToLower(query), strings.ToLower(text)),
		MatchedIndexes: subsequence(strings.ToLower(query), strings.ToLower(text)),
	}, true
}

// subsequence returns where each rune of query first matches in text, in order.
func subsequence(query, text string) []int {
	q := []rune(query)
	var out []int
	i := 0
	for pos, r := range []rune(text) {
		if i < len(q) && r == q[i] {
			out = append(out, pos)
			i++
		}
	}
	return out
}

func span(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}

func dedupe(indexes []int) []int {
	if len(indexes) == 0 {
		return indexes
	}
	sort.Ints(indexes)
	out := indexes[:1]
	for _, v := range indexes[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
