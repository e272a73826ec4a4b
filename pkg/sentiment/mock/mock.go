// Package mock provides a deterministic sentiment.Scorer for tests.
package mock

import (
	"sync"

	"github.com/sentavox/sentavox/pkg/sentiment"
)

// Scorer implements sentiment.Scorer by looking texts up in a fixed table,
// falling back to Default for unknown input. Safe for concurrent use.
type Scorer struct {
	// ByText maps exact normalized text to a compound score.
	ByText map[string]float64

	// Default is the compound score for text not present in ByText.
	Default float64

	mu    sync.Mutex
	calls []string
}

var _ sentiment.Scorer = (*Scorer)(nil)

// Score returns the scripted compound for the normalized text. Whitespace-
// only input produces no score, matching the real scorer contract.
func (s *Scorer) Score(text string) (sentiment.Score, bool) {
	text, ok := sentiment.Normalize(text)
	if !ok {
		return sentiment.Score{}, false
	}

	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	compound := s.Default
	if c, found := s.ByText[text]; found {
		compound = c
	}
	return sentiment.Score{
		Compound: compound,
		Label:    sentiment.ClassifyCompound(compound),
	}, true
}

// Calls returns the normalized texts scored so far, in order.
func (s *Scorer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
