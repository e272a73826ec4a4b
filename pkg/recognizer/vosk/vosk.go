// Package vosk provides a recognizer.Provider backed by a vosk-server
// instance speaking the Kaldi websocket protocol.
//
// The protocol is strictly request/response: the client sends a JSON config
// message, then alternates binary PCM chunks with JSON replies. Each reply
// is either {"partial": "..."} for an interim hypothesis or {"text": "...",
// "result": [...]} once the decoder commits an utterance. Sending
// {"eof": 1} flushes the decoder and yields one last committed result.
//
// Because the protocol is lock-step, the Engine maps directly onto the
// recognizer contract: Feed writes one window and reads one reply.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/sentavox/sentavox/pkg/recognizer"
)

const (
	defaultEndpoint = "ws://localhost:2700"

	// ioTimeout bounds every websocket round trip so a wedged server cannot
	// stall the owning session forever.
	ioTimeout = 10 * time.Second
)

// Compile-time assertion that Provider satisfies recognizer.Provider.
var _ recognizer.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithWords requests word-level timing in committed results.
func WithWords() Option {
	return func(p *Provider) { p.words = true }
}

// Provider implements recognizer.Provider by dialing a vosk-server for each
// engine. Safe for concurrent use: every engine owns its own connection.
type Provider struct {
	endpoint string
	words    bool
}

// New creates a Provider that dials the vosk-server at endpoint
// (e.g., "ws://localhost:2700"). An empty endpoint uses the default.
func New(endpoint string, opts ...Option) *Provider {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	p := &Provider{endpoint: endpoint}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Healthy dials the server and immediately disconnects, reporting whether
// the endpoint accepts websocket connections.
func (p *Provider) Healthy(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("vosk: dial %q: %w", p.endpoint, err)
	}
	return conn.Close(websocket.StatusNormalClosure, "health check")
}

// NewEngine dials the server and returns an engine ready for Start.
func (p *Provider) NewEngine(ctx context.Context, cfg recognizer.EngineConfig) (recognizer.Engine, error) {
	conn, _, err := websocket.Dial(ctx, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial %q: %w", p.endpoint, err)
	}
	// Decoder replies are small JSON documents, but raise the limit a bit
	// for word-level results on long utterances.
	conn.SetReadLimit(1 << 20)

	return &engine{
		provider:   p,
		conn:       conn,
		sampleRate: cfg.SampleRate,
	}, nil
}

// engine is a live vosk-server stream. Not safe for concurrent use — the
// owning session worker serializes all calls.
type engine struct {
	provider   *Provider
	conn       *websocket.Conn
	sampleRate int
	elapsed    time.Duration
	closed     bool
}

var _ recognizer.Engine = (*engine)(nil)

// startConfig is the initial JSON config message understood by vosk-server.
type startConfig struct {
	Config struct {
		SampleRate int  `json:"sample_rate"`
		Words      bool `json:"words,omitempty"`
	} `json:"config"`
}

// reply is the JSON structure of a vosk-server response. Exactly one of
// Partial or Text is meaningful per message.
type reply struct {
	Partial string `json:"partial"`
	Text    string `json:"text"`
	Result  []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
}

// Start sends the decoder configuration. Must be called before Feed.
func (e *engine) Start(sampleRateHz int) error {
	if e.closed {
		return recognizer.ErrEngineClosed
	}
	if sampleRateHz > 0 {
		e.sampleRate = sampleRateHz
	}

	var cfg startConfig
	cfg.Config.SampleRate = e.sampleRate
	cfg.Config.Words = e.provider.words

	msg, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("vosk: marshal config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := e.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("vosk: send config: %w", err)
	}
	return nil
}

// Feed writes one PCM window and reads the decoder's reply for it.
func (e *engine) Feed(window []byte) ([]recognizer.Segment, error) {
	if e.closed {
		return nil, recognizer.ErrEngineClosed
	}

	windowDur := pcmDuration(len(window), e.sampleRate)
	start := e.elapsed
	e.elapsed += windowDur

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	if err := e.conn.Write(ctx, websocket.MessageBinary, window); err != nil {
		return nil, fmt.Errorf("vosk: send audio: %w", err)
	}
	_, msg, err := e.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("vosk: read reply: %w", err)
	}

	seg, ok := parseReply(msg, start, e.elapsed)
	if !ok {
		return nil, nil
	}
	return []recognizer.Segment{seg}, nil
}

// Finalize sends the EOF marker and returns the decoder's last committed
// result, if any.
func (e *engine) Finalize() ([]recognizer.Segment, error) {
	if e.closed {
		return nil, recognizer.ErrEngineClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	if err := e.conn.Write(ctx, websocket.MessageText, []byte(`{"eof" : 1}`)); err != nil {
		return nil, fmt.Errorf("vosk: send eof: %w", err)
	}
	_, msg, err := e.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("vosk: read final: %w", err)
	}

	seg, ok := parseReply(msg, e.elapsed, e.elapsed)
	if !ok || !seg.IsFinal {
		return nil, nil
	}
	return []recognizer.Segment{seg}, nil
}

// Reset tears down the current stream and dials a fresh one, discarding all
// decoder state on the server side.
func (e *engine) Reset() error {
	if e.closed {
		return recognizer.ErrEngineClosed
	}

	e.conn.Close(websocket.StatusNormalClosure, "reset")

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.provider.endpoint, nil)
	if err != nil {
		return fmt.Errorf("vosk: redial %q: %w", e.provider.endpoint, err)
	}
	conn.SetReadLimit(1 << 20)
	e.conn = conn
	return e.Start(e.sampleRate)
}

// Close terminates the stream. Idempotent.
func (e *engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.conn.Close(websocket.StatusNormalClosure, "engine closed")
	return nil
}

// parseReply converts one vosk-server reply into a Segment. Empty partials
// and empty committed texts are dropped — vosk emits them constantly during
// silence. When the reply carries word timings those take precedence over
// the caller-supplied window bounds.
func parseReply(msg []byte, start, end time.Duration) (recognizer.Segment, bool) {
	var r reply
	if err := json.Unmarshal(msg, &r); err != nil {
		return recognizer.Segment{}, false
	}

	if text := strings.TrimSpace(r.Text); text != "" {
		seg := recognizer.Segment{Text: text, IsFinal: true, Start: start, End: end}
		if n := len(r.Result); n > 0 {
			seg.Start = time.Duration(r.Result[0].Start * float64(time.Second))
			seg.End = time.Duration(r.Result[n-1].End * float64(time.Second))
		}
		return seg, true
	}
	if partial := strings.TrimSpace(r.Partial); partial != "" {
		return recognizer.Segment{Text: partial, IsFinal: false, Start: start, End: end}, true
	}
	return recognizer.Segment{}, false
}

// pcmDuration returns the play time of a mono 16-bit PCM buffer.
func pcmDuration(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := numBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
