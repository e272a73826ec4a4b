// Package vader provides a sentiment.Scorer backed by the VADER
// (Valence Aware Dictionary and sEntiment Reasoner) lexicon model via the
// govader port. VADER is rule-based and fully deterministic, which keeps
// the scorer testable and off the network.
package vader

import (
	"sync"

	"github.com/jonreiter/govader"

	"github.com/sentavox/sentavox/pkg/sentiment"
)

// Compile-time assertion that Scorer satisfies sentiment.Scorer.
var _ sentiment.Scorer = (*Scorer)(nil)

// Scorer scores text with the VADER lexicon. Safe for concurrent use: the
// underlying analyzer is read-only after construction, and a mutex guards
// the one call path that govader does not document as goroutine-safe.
type Scorer struct {
	mu       sync.Mutex
	analyzer *govader.SentimentIntensityAnalyzer
}

// New creates a Scorer with the built-in VADER lexicon.
func New() *Scorer {
	return &Scorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score analyzes the given text and returns its polarity scores.
// Whitespace-only input produces no score.
func (s *Scorer) Score(text string) (sentiment.Score, bool) {
	text, ok := sentiment.Normalize(text)
	if !ok {
		return sentiment.Score{}, false
	}

	s.mu.Lock()
	polarity := s.analyzer.PolarityScores(text)
	s.mu.Unlock()

	return sentiment.Score{
		Compound: polarity.Compound,
		Positive: polarity.Positive,
		Neutral:  polarity.Neutral,
		Negative: polarity.Negative,
		Label:    sentiment.ClassifyCompound(polarity.Compound),
	}, true
}
