// Package phonetic corrects the spelling of custom vocabulary in a finished
// transcript. Engines that ignore or only partially honour boost words tend to
// write "hyper land" for "Hyprland"; the matcher maps such spans back onto
// the configured spelling.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the span and of every vocabulary term. A term whose codes
//     overlap becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest case-insensitive Jaro-Winkler similarity wins, provided it
//     reaches the phonetic threshold. Without a phonetic candidate, a term
//     may still win on string similarity alone above the stricter fuzzy
//     threshold.
package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.93

	// minSpanRunes keeps short function words ("a", "in", "the") out of
	// consideration.
	minSpanRunes = 4

	// maxSpanWords bounds the n-gram length tried against the vocabulary.
	maxSpanWords = 3
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched term. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// match exists. Default: 0.93.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Replacement records one span rewritten by [Matcher.Correct].
type Replacement struct {
	From       string
	To         string
	Confidence float64
}

// Match finds the vocabulary term most similar to span, which may be a
// single word or a space separated phrase. When matched is false, term
// equals span and confidence is 0.
func (m *Matcher) Match(span string, vocabulary []string) (term string, confidence float64, matched bool) {
	if len(vocabulary) == 0 || strings.TrimSpace(span) == "" {
		return span, 0, false
	}

	spanLower := strings.ToLower(strings.TrimSpace(span))
	spanTokens := strings.Fields(spanLower)
	spanCodes := codesForTokens(spanTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, v := range vocabulary {
		vLower := strings.ToLower(strings.TrimSpace(v))
		if vLower == "" {
			continue
		}
		vTokens := strings.Fields(vLower)
		phoneticMatch := codesOverlap(spanCodes, codesForTokens(vTokens))
		score := bestJWScore(spanTokens, vTokens, spanLower, vLower)

		if phoneticMatch {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{term: strings.TrimSpace(v), score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{term: strings.TrimSpace(v), score: score}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return span, 0, false
}

// Correct rewrites spans of text that sound like a vocabulary term but are
// spelled differently. Longer spans are tried first so "hyper land" can
// become "Hyprland" in one step. Whitespace and punctuation around replaced
// spans are preserved. Text without a near miss is returned unchanged.
func (m *Matcher) Correct(text string, vocabulary []string) (string, []Replacement) {
	if text == "" || len(vocabulary) == 0 {
		return text, nil
	}
	exact := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		exact[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	words := wordSpans(text)
	var (
		b    strings.Builder
		reps []Replacement
		last int
	)
	for i := 0; i < len(words); {
		n, term, conf := m.longestMatch(text, words[i:], vocabulary, exact)
		if n == 0 {
			i++
			continue
		}
		start, end := words[i].start, words[i+n-1].end
		b.WriteString(text[last:start])
		b.WriteString(term)
		reps = append(reps, Replacement{From: text[start:end], To: term, Confidence: conf})
		last = end
		i += n
	}
	if len(reps) == 0 {
		return text, nil
	}
	b.WriteString(text[last:])
	return b.String(), reps
}

// longestMatch returns how many of words, starting at the first, should be
// replaced by term. Zero means no replacement.
func (m *Matcher) longestMatch(text string, words []span, vocabulary []string, exact map[string]struct{}) (int, string, float64) {
	for n := min(maxSpanWords, len(words)); n >= 1; n-- {
		if !adjacent(text, words[:n]) {
			continue
		}
		phrase := text[words[0].start:words[n-1].end]
		if _, ok := exact[strings.ToLower(phrase)]; ok {
			// Already spelled correctly; leave these words alone.
			return 0, "", 0
		}
		if utf8.RuneCountInString(phrase) < minSpanRunes {
			continue
		}
		term, conf, ok := m.Match(phrase, vocabulary)
		if ok && !strings.EqualFold(term, phrase) {
			return n, term, conf
		}
	}
	return 0, "", 0
}

type span struct{ start, end int }

// wordSpans returns the byte ranges of words in text. A word is a run of
// letters, digits, apostrophes and hyphens.
func wordSpans(text string) []span {
	var out []span
	start := -1
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-'
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, span{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(text)})
	}
	return out
}

// adjacent reports whether words are separated only by single spaces, so a
// replacement never swallows punctuation or line breaks.
func adjacent(text string, words []span) bool {
	for i := 1; i < len(words); i++ {
		if text[words[i-1].end:words[i].start] != " " {
			return false
		}
	}
	return true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore takes the higher Jaro-Winkler similarity of the full strings
// and the space-stripped strings.
func bestJWScore(spanTokens, termTokens []string, spanFull, termFull string) float64 {
	score := matchr.JaroWinkler(spanFull, termFull, false)
	if len(spanTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(spanTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
