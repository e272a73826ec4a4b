package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sentavox/sentavox/pkg/recognizer"
	"github.com/sentavox/sentavox/pkg/sentiment"
)

// ErrProviderNotRegistered is returned by the Create functions when the
// requested name has no registered factory.
var ErrProviderNotRegistered = errors.New("provider not registered")

// RecognizerFactory builds a recognizer provider from its config entry.
type RecognizerFactory func(entry ProviderEntry) (recognizer.Provider, error)

// ScorerFactory builds a sentiment scorer from the sentiment config.
type ScorerFactory func(cfg SentimentConfig) (sentiment.Scorer, error)

// Registry maps config names onto provider factories. The main package
// registers the built-in recognizers and scorers at startup; tests register
// mocks.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]RecognizerFactory
	scorers     map[string]ScorerFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]RecognizerFactory),
		scorers:     make(map[string]ScorerFactory),
	}
}

// RegisterRecognizer registers factory under name, replacing any previous
// registration.
func (r *Registry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// CreateRecognizer builds the recognizer provider named by entry.Name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (recognizer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("recognizer %q: %w", entry.Name, ErrProviderNotRegistered)
	}
	return factory(entry)
}

// RegisterScorer registers factory under name, replacing any previous
// registration.
func (r *Registry) RegisterScorer(name string, factory ScorerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[name] = factory
}

// CreateScorer builds the scorer named by cfg.Scorer.
func (r *Registry) CreateScorer(cfg SentimentConfig) (sentiment.Scorer, error) {
	r.mu.RLock()
	factory, ok := r.scorers[cfg.Scorer]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scorer %q: %w", cfg.Scorer, ErrProviderNotRegistered)
	}
	return factory(cfg)
}
