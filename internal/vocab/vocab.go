// Package vocab corrects recognizer mishears of known domain terms before
// transcripts reach the sentiment scorer.
//
// Call-center audio is full of product names and jargon a general speech
// model has never seen ("sentavox" comes back as "send a box"). The
// Corrector holds the configured term list and repairs transcripts in two
// stages: Double Metaphone codes select phonetically plausible candidates,
// then Jaro-Winkler similarity on the raw strings ranks them. Multi-word
// terms are matched against n-gram windows of the transcript so "billing
// portal" can repair "bill ink portal".
package vocab

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// defaultPhoneticThreshold is the minimum Jaro-Winkler score for a term
	// that already overlaps phonetically with the input.
	defaultPhoneticThreshold = 0.70

	// defaultFuzzyThreshold applies when no phonetic overlap exists and the
	// match rests on string similarity alone.
	defaultFuzzyThreshold = 0.85
)

// Option is a functional option for configuring a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum similarity for phonetically
// overlapping candidates. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for candidates without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Correction records one replaced span.
type Correction struct {
	// Original is the transcript span that was replaced.
	Original string

	// Term is the vocabulary term it was replaced with.
	Term string

	// Confidence is the Jaro-Winkler similarity that won the match.
	Confidence float64
}

// term is one vocabulary entry with its phonetic codes precomputed.
type term struct {
	display string
	lower   string
	tokens  []string
	codes   map[string]struct{}
}

// Corrector repairs transcripts against a fixed term list. Read-only after
// construction, so safe for concurrent use by all session workers.
type Corrector struct {
	terms    []term
	maxWords int

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector builds a Corrector for the given vocabulary. Blank terms are
// ignored; a Corrector over an empty vocabulary passes text through
// unchanged.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			display: strings.TrimSpace(v),
			lower:   lower,
			tokens:  tokens,
			codes:   metaphoneCodes(tokens),
		})
		if len(tokens) > c.maxWords {
			c.maxWords = len(tokens)
		}
	}
	return c
}

// TermCount returns the number of usable vocabulary terms.
func (c *Corrector) TermCount() int { return len(c.terms) }

// Correct repairs text against the vocabulary and returns the corrected text
// with the list of replacements made. Token positions not matching any term
// pass through verbatim, whitespace normalized to single spaces.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.terms) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		// Longest window first so multi-word terms beat partial single-word
		// matches.
		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			t, conf, ok := c.match(window)
			if !ok {
				continue
			}
			if strings.ToLower(window) != t.lower {
				corrections = append(corrections, Correction{
					Original:   window,
					Term:       t.display,
					Confidence: conf,
				})
			}
			out = append(out, t.display)
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	return strings.Join(out, " "), corrections
}

// match finds the best vocabulary term for one window, if any clears its
// threshold.
func (c *Corrector) match(window string) (best term, confidence float64, ok bool) {
	lower := strings.ToLower(window)
	tokens := strings.Fields(lower)
	codes := metaphoneCodes(tokens)

	bestPhonetic := false
	for _, t := range c.terms {
		phonetic := codesOverlap(codes, t.codes)
		score := similarity(tokens, t.tokens, lower, t.lower)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > confidence {
				best, confidence, ok, bestPhonetic = t, score, true, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold:
			if score > confidence {
				best, confidence, ok = t, score, true
			}
		}
	}
	return best, confidence, ok
}

// metaphoneCodes returns the union of Double Metaphone codes over tokens.
// Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
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
		if _, hit := b[code]; hit {
			return true
		}
	}
	return false
}

// similarity is the highest Jaro-Winkler score across three views of the
// pair: the full strings, the space-stripped strings, and the best pairwise
// token comparison. The latter two handle word-boundary mishears like
// "send a box" for "sentavox".
func similarity(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)

	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
