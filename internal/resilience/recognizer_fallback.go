package resilience

import (
	"context"

	"github.com/sentavox/sentavox/pkg/recognizer"
)

// RecognizerFallback implements [recognizer.Provider] with automatic failover
// across multiple recognition backends. Each backend has its own circuit
// breaker, so a vosk-server that stops accepting connections is bypassed
// until its reset timeout elapses.
//
// Failover happens at engine-open time only: once a session holds an engine,
// the engine's own error handling governs its fate.
type RecognizerFallback struct {
	group *FallbackGroup[recognizer.Provider]
}

var _ recognizer.Provider = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred backend.
func NewRecognizerFallback(primary recognizer.Provider, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *RecognizerFallback) AddFallback(name string, provider recognizer.Provider) {
	f.group.AddFallback(name, provider)
}

// NewEngine opens an engine against the first healthy backend.
func (f *RecognizerFallback) NewEngine(ctx context.Context, cfg recognizer.EngineConfig) (recognizer.Engine, error) {
	return ExecuteWithResult(f.group, func(p recognizer.Provider) (recognizer.Engine, error) {
		return p.NewEngine(ctx, cfg)
	})
}

// Healthy reports readiness of the composite: healthy when at least one
// backend that implements [recognizer.HealthChecker] reports healthy. A
// group with no checkable backends is considered healthy.
func (f *RecognizerFallback) Healthy(ctx context.Context) error {
	var lastErr error
	checked := false
	for i := range f.group.backends {
		hc, ok := f.group.backends[i].value.(recognizer.HealthChecker)
		if !ok {
			continue
		}
		checked = true
		if err := hc.Healthy(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if !checked {
		return nil
	}
	return lastErr
}
