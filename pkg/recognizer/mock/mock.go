// Package mock provides a deterministic scripted recognizer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/sentavox/sentavox/pkg/recognizer"
)

// Provider implements recognizer.Provider. Each engine it creates replays
// the configured script: the i-th Feed call returns Script[i] (out-of-range
// calls return nothing). Safe for concurrent use.
type Provider struct {
	// Script holds the segments returned per Feed call.
	Script [][]recognizer.Segment

	// FeedErrs maps Feed call index (0-based) to an error returned instead
	// of segments. Used to exercise the reset/escalate failure policy.
	FeedErrs map[int]error

	// ResetErr, when non-nil, makes Reset fail (unrecoverable engine).
	ResetErr error

	// FinalScript is returned by Finalize.
	FinalScript []recognizer.Segment

	mu      sync.Mutex
	engines []*Engine
}

// NewEngine creates a scripted engine. The returned engine is also recorded
// so tests can inspect it after the session tears down.
func (p *Provider) NewEngine(_ context.Context, cfg recognizer.EngineConfig) (recognizer.Engine, error) {
	e := &Engine{provider: p, sampleRate: cfg.SampleRate}
	p.mu.Lock()
	p.engines = append(p.engines, e)
	p.mu.Unlock()
	return e, nil
}

// Engines returns all engines created so far.
func (p *Provider) Engines() []*Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Engine, len(p.engines))
	copy(out, p.engines)
	return out
}

// Engine is a scripted recognizer.Engine. The mutex only guards the
// bookkeeping counters read by test assertions; the session worker is the
// sole caller of the Engine methods themselves.
type Engine struct {
	provider   *Provider
	sampleRate int

	mu         sync.Mutex
	feedCalls  int
	fedBytes   int
	started    bool
	resets     int
	finalized  bool
	closeCalls int
}

var _ recognizer.Engine = (*Engine)(nil)

func (e *Engine) Start(sampleRateHz int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	if sampleRateHz > 0 {
		e.sampleRate = sampleRateHz
	}
	return nil
}

func (e *Engine) Feed(window []byte) ([]recognizer.Segment, error) {
	e.mu.Lock()
	idx := e.feedCalls
	e.feedCalls++
	e.fedBytes += len(window)
	e.mu.Unlock()

	if err, ok := e.provider.FeedErrs[idx]; ok && err != nil {
		return nil, err
	}
	if idx < len(e.provider.Script) {
		return e.provider.Script[idx], nil
	}
	return nil, nil
}

func (e *Engine) Finalize() ([]recognizer.Segment, error) {
	e.mu.Lock()
	e.finalized = true
	e.mu.Unlock()
	return e.provider.FinalScript, nil
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
	return e.provider.ResetErr
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closeCalls++
	e.mu.Unlock()
	return nil
}

// FeedCalls returns how many times Feed was invoked.
func (e *Engine) FeedCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feedCalls
}

// FedBytes returns the total number of PCM bytes fed.
func (e *Engine) FedBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fedBytes
}

// Resets returns how many times Reset was invoked.
func (e *Engine) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// CloseCalls returns how many times Close was invoked.
func (e *Engine) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}

// Finalized reports whether Finalize was called.
func (e *Engine) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}
