// Package resilience keeps recognizer engine creation working when speech
// backends misbehave.
//
// [CircuitBreaker] guards one recognition backend: repeated engine-open
// failures trip it, and while tripped the backend is skipped instead of
// re-dialed on every session start. After a reset timeout a few trial calls
// probe whether the backend recovered. [FallbackGroup] chains several
// guarded backends; [RecognizerFallback] presents the chain as a single
// [recognizer.Provider] so the session manager never learns which backend
// served it.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the guarded
// backend is considered dead and the reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("backend circuit is open")

// State is the breaker's view of its backend.
type State int

const (
	// StateClosed lets every call through; the backend is healthy.
	StateClosed State = iota

	// StateOpen rejects calls immediately with [ErrCircuitOpen]. Entered
	// after too many consecutive failures.
	StateOpen

	// StateHalfOpen admits a handful of trial calls after the reset
	// timeout. Their outcome decides between closing and re-opening.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one breaker. The zero value gets defaults.
type CircuitBreakerConfig struct {
	// Name labels the guarded backend in log lines.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before it
	// starts probing again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many trial calls the half-open state admits, and
	// how many must succeed before the breaker closes. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker tracks consecutive failures against one backend and shorts
// out calls while the backend looks dead.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	openedAt  time.Time // when the breaker last saw a failure
	probes    int       // trial calls admitted while half-open
	probeWins int       // trial calls that succeeded
}

// NewCircuitBreaker creates a breaker in the closed state. Zero config
// fields take the documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute runs fn against the backend if the breaker admits the call, and
// feeds the outcome back into the failure accounting. While open it returns
// [ErrCircuitOpen] without touching the backend.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(err, probing)
	return err
}

// admit decides whether a call may proceed, performing the open → half-open
// transition when the reset timeout has elapsed. Reports whether the call
// counts as a half-open trial.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeWins = 0
		slog.Info("backend breaker probing for recovery", "backend", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			// Trial quota spent; wait for the in-flight probes to decide.
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// observe records the outcome of an admitted call.
func (cb *CircuitBreaker) observe(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.openedAt = time.Now()
		if probing {
			// One failed trial is enough evidence the backend is still down.
			cb.state = StateOpen
			cb.failures = cb.maxFailures
			slog.Warn("backend still failing, breaker re-opened", "backend", cb.name)
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("backend breaker opened",
				"backend", cb.name,
				"consecutive_failures", cb.failures)
		}
		return
	}

	if probing {
		cb.probeWins++
		if cb.probeWins >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("backend recovered, breaker closed", "backend", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State returns the breaker's current view. A tripped breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the stored transition happens
// on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing all failure history.
// Used when an operator knows the backend is back (e.g., after a redeploy).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeWins = 0
	slog.Info("backend breaker manually reset", "backend", cb.name)
}
