// Package recognizer defines the Engine interface over stateful streaming
// speech-to-text backends.
//
// An Engine wraps one decoder instance (a vosk-server websocket stream, a
// whisper.cpp context, or a test fake) behind a uniform windowed-feed
// contract. Engines are stateful and NOT safe for concurrent use: exactly one
// caller — the owning session's worker goroutine — may drive an engine at a
// time. Providers, by contrast, must be safe for concurrent use so that many
// sessions can open engines simultaneously.
package recognizer

import (
	"context"
	"errors"
	"time"
)

// ErrEngineClosed is returned by Engine methods after Close has been called.
var ErrEngineClosed = errors.New("recognizer: engine is closed")

// Segment is a unit of recognized speech. Partial segments are preliminary
// guesses that later finals supersede; only final segments carry text that
// should be treated as committed.
type Segment struct {
	// Text is the recognized speech content.
	Text string

	// IsFinal indicates whether the backend has committed to this result.
	IsFinal bool

	// Start marks where the segment begins, relative to the engine's start.
	Start time.Duration

	// End marks where the segment ends, relative to the engine's start.
	End time.Duration
}

// EngineConfig describes the audio format for a new engine instance.
type EngineConfig struct {
	// SampleRate is the PCM sample rate in Hz (e.g., 16000).
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// An empty string uses the provider default.
	Language string
}

// Engine is one streaming decoder instance. Callers must serialize all
// method calls; implementations may assume single-threaded access.
//
// Feed accepts one window of raw 16-bit little-endian mono PCM and returns
// any segments the backend produced for it — possibly none, possibly a mix
// of partials and finals. Finalize flushes buffered audio and returns the
// remaining segments. Reset discards decoder state so the engine can resume
// after a Feed error; a Reset that itself fails means the engine is
// unrecoverable. Close releases all resources and is idempotent.
type Engine interface {
	Start(sampleRateHz int) error
	Feed(window []byte) ([]Segment, error)
	Finalize() ([]Segment, error)
	Reset() error
	Close() error
}

// Provider constructs engines. Implementations must be safe for concurrent
// use; each returned Engine is exclusively owned by its caller.
type Provider interface {
	// NewEngine creates a decoder instance ready for Start. Returns an error
	// if the backend cannot be reached or ctx is already cancelled.
	NewEngine(ctx context.Context, cfg EngineConfig) (Engine, error)
}

// HealthChecker is optionally implemented by providers that can report
// backend availability without opening a full engine. The server wires it
// into the readiness probe.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}
