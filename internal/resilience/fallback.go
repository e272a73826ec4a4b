package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [FallbackGroup] could serve
// the call: each one either failed or sat behind an open breaker.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig shapes the per-backend circuit breaker a [FallbackGroup]
// creates for each entry. The breaker Name is always overridden with the
// backend's registered name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// guardedBackend pairs one backend with its dedicated breaker.
type guardedBackend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary backend with ordered fallbacks. A call
// walks the chain and stops at the first backend that serves it; backends
// behind an open breaker are skipped without being dialed.
//
// FallbackGroup is safe for concurrent use.
type FallbackGroup[T any] struct {
	backends []guardedBackend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first backend.
// Register fallbacks with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.backends = append(fg.backends, guardedBackend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute walks the chain until one backend serves fn. Returns
// [ErrAllFailed] wrapping the last error when the whole chain is down.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult walks the chain until one backend produces a result.
// A package-level function because Go methods cannot add type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.backends {
		b := &fg.backends[i]
		var out R
		err := b.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(b.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", b.name)
		} else {
			slog.Warn("backend failed, trying next in chain",
				"backend", b.name, "err", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
