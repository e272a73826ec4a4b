// Package whisper provides a recognizer.Provider backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp is a batch (non-streaming) decoder, so the engine simulates
// streaming: fed windows accumulate in a buffer, an energy-based silence
// detector segments utterances, and each completed utterance runs through a
// fresh whisper context. Because there are no true low-latency hypotheses,
// Feed emits only final segments.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sentavox/sentavox/pkg/recognizer"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which a window is considered silent. The maximum for
	// 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	// defaultSilenceMs is the consecutive-silence duration that commits the
	// accumulated utterance to the decoder.
	defaultSilenceMs = 500

	// defaultMaxUtteranceMs bounds buffered audio before a forced decode.
	defaultMaxUtteranceMs = 10_000
)

// Compile-time assertion that Provider satisfies recognizer.Provider.
var _ recognizer.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers a decode of the accumulated utterance. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceMs = ms }
}

// WithMaxUtteranceMs sets the maximum buffered utterance duration (ms)
// before a forced decode. Defaults to 10 000 ms.
func WithMaxUtteranceMs(ms int) Option {
	return func(p *Provider) { p.maxUtteranceMs = ms }
}

// Provider implements recognizer.Provider using whisper.cpp Go bindings.
// The model is loaded once at startup and shared across all engines; each
// engine creates its own whisper context per decode, so engines owned by
// different sessions do not interfere.
type Provider struct {
	model    whisperlib.Model
	language string

	silenceMs      int
	maxUtteranceMs int
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:          model,
		language:       defaultLanguage,
		silenceMs:      defaultSilenceMs,
		maxUtteranceMs: defaultMaxUtteranceMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Healthy reports whether the shared model is loaded. The model lives in
// process, so readiness reduces to successful startup.
func (p *Provider) Healthy(context.Context) error {
	if p.model == nil {
		return errors.New("whisper: model is not loaded")
	}
	return nil
}

// Close releases the shared whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// NewEngine creates a decoder instance backed by the shared model.
func (p *Provider) NewEngine(ctx context.Context, cfg recognizer.EngineConfig) (recognizer.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	return &engine{
		model:          p.model,
		language:       lang,
		sampleRate:     sr,
		silenceMs:      p.silenceMs,
		maxUtteranceMs: p.maxUtteranceMs,
	}, nil
}

// engine is a single-session whisper decoder. Not safe for concurrent use —
// the owning session worker serializes all calls, per the recognizer.Engine
// contract.
type engine struct {
	model          whisperlib.Model
	language       string
	sampleRate     int
	silenceMs      int
	maxUtteranceMs int

	// streaming state, confined to the single caller
	buffer    []byte
	hadSpeech bool
	silence   int // accumulated silent milliseconds
	elapsed   time.Duration
	closed    bool
}

var _ recognizer.Engine = (*engine)(nil)

// Start fixes the sample rate for the engine's life. A zero rate keeps the
// rate chosen at construction.
func (e *engine) Start(sampleRateHz int) error {
	if e.closed {
		return recognizer.ErrEngineClosed
	}
	if sampleRateHz > 0 {
		e.sampleRate = sampleRateHz
	}
	return nil
}

// Feed buffers one PCM window and decodes the accumulated utterance when the
// silence detector or the utterance-size bound fires. Returned segments are
// always final.
func (e *engine) Feed(window []byte) ([]recognizer.Segment, error) {
	if e.closed {
		return nil, recognizer.ErrEngineClosed
	}

	windowMs := durationMs(len(window), e.sampleRate)
	start := e.elapsed
	e.elapsed += time.Duration(windowMs) * time.Millisecond

	rms := computeRMS(window)
	if rms < defaultRMSThreshold {
		if !e.hadSpeech {
			// Leading silence carries no utterance; skip it entirely.
			return nil, nil
		}
		e.silence += windowMs
		e.buffer = append(e.buffer, window...)
		if e.silence >= e.silenceMs {
			return e.decode(start)
		}
		return nil, nil
	}

	e.hadSpeech = true
	e.silence = 0
	e.buffer = append(e.buffer, window...)

	maxBytes := e.maxUtteranceMs * bytesPerMs(e.sampleRate)
	if maxBytes > 0 && len(e.buffer) >= maxBytes {
		return e.decode(start)
	}
	return nil, nil
}

// Finalize decodes any buffered speech and returns the remaining segments.
func (e *engine) Finalize() ([]recognizer.Segment, error) {
	if e.closed {
		return nil, recognizer.ErrEngineClosed
	}
	return e.decode(e.elapsed)
}

// Reset discards all buffered audio and silence-detection state. The shared
// model is unaffected, so a fresh context on the next decode is all that is
// needed to resume.
func (e *engine) Reset() error {
	if e.closed {
		return recognizer.ErrEngineClosed
	}
	e.buffer = nil
	e.hadSpeech = false
	e.silence = 0
	return nil
}

// Close marks the engine closed. The model is owned by the Provider and is
// not released here. Idempotent.
func (e *engine) Close() error {
	e.closed = true
	e.buffer = nil
	return nil
}

// decode runs whisper.cpp inference over the buffered utterance and resets
// the buffer. A buffer with no detected speech decodes to nothing.
func (e *engine) decode(end time.Duration) ([]recognizer.Segment, error) {
	if len(e.buffer) == 0 || !e.hadSpeech {
		e.buffer = nil
		e.hadSpeech = false
		e.silence = 0
		return nil, nil
	}

	pcm := e.buffer
	e.buffer = nil
	e.hadSpeech = false
	e.silence = 0

	utteranceMs := durationMs(len(pcm), e.sampleRate)
	startAt := end - time.Duration(utteranceMs)*time.Millisecond
	if startAt < 0 {
		startAt = 0
	}

	text, err := e.infer(pcm)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode utterance: %w", err)
	}
	if text == "" {
		return nil, nil
	}

	return []recognizer.Segment{{
		Text:    text,
		IsFinal: true,
		Start:   startAt,
		End:     end,
	}}, nil
}

// infer converts the PCM utterance to float32, runs inference in a fresh
// whisper context, and returns the concatenated segment text. Contexts are
// not thread-safe but the model can be shared across goroutines.
func (e *engine) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", e.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
