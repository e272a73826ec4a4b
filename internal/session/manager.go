package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentavox/sentavox/internal/alert"
	"github.com/sentavox/sentavox/internal/framebuf"
	"github.com/sentavox/sentavox/internal/observe"
	"github.com/sentavox/sentavox/internal/trend"
	"github.com/sentavox/sentavox/internal/vocab"
	"github.com/sentavox/sentavox/pkg/recognizer"
	"github.com/sentavox/sentavox/pkg/sentiment"
)

// DefaultIdleTimeout closes sessions that receive no audio.
const DefaultIdleTimeout = 60 * time.Second

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Provider creates one recognizer engine per session.
	Provider recognizer.Provider

	// ProviderName labels metrics and logs (e.g., "vosk").
	ProviderName string

	// Scorer scores final transcript segments. Must be safe for concurrent
	// use: all session workers share it.
	Scorer sentiment.Scorer

	// Corrector repairs domain-term mishears in transcripts before scoring.
	// Nil disables.
	Corrector *vocab.Corrector

	// Dispatcher fires and delivers alerts. Shared across sessions.
	Dispatcher *alert.Dispatcher

	// Metrics records pipeline counters. Nil disables.
	Metrics *observe.Metrics

	// Buffer configures per-session frame windowing.
	Buffer framebuf.Config

	// Trend configures per-session negativity tracking.
	Trend trend.Config

	// SampleRate is the inbound PCM sample rate in Hz.
	SampleRate int

	// Language hints the recognizer (BCP-47 or engine-specific).
	Language string

	// IdleTimeout closes sessions with no inbound audio. Zero takes
	// [DefaultIdleTimeout]; negative disables.
	IdleTimeout time.Duration
}

// Manager owns the registry of live sessions and routes inbound audio.
// All exported methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for the given ID, starts its recognizer engine and
// worker, and registers it. sampleRate overrides the configured default when
// positive. Returns [ErrDuplicateSession] if the ID is still active.
func (m *Manager) Open(ctx context.Context, id string, sampleRate int, sink EventSink) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session: empty session id")
	}
	if sampleRate <= 0 {
		sampleRate = m.cfg.SampleRate
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("open %q: %w", id, ErrDuplicateSession)
	}
	// Reserve the slot before the (possibly slow) engine creation so a
	// concurrent Open for the same ID is rejected rather than raced.
	m.sessions[id] = nil
	trendCfg := m.cfg.Trend
	idleTimeout := m.cfg.IdleTimeout
	m.mu.Unlock()

	engine, err := m.cfg.Provider.NewEngine(ctx, recognizer.EngineConfig{
		SampleRate: sampleRate,
		Language:   m.cfg.Language,
	})
	if err != nil {
		m.remove(id)
		return nil, fmt.Errorf("open %q: create engine: %w", id, err)
	}
	if err := engine.Start(sampleRate); err != nil {
		_ = engine.Close()
		m.remove(id)
		return nil, fmt.Errorf("open %q: start engine: %w", id, err)
	}

	now := time.Now()
	s := &Session{
		id:          id,
		provider:    m.cfg.ProviderName,
		engine:      engine,
		scorer:      m.cfg.Scorer,
		corrector:   m.cfg.Corrector,
		tracker:     trend.New(trendCfg),
		buf:         framebuf.New(m.cfg.Buffer, now),
		dispatcher:  m.cfg.Dispatcher,
		metrics:     m.cfg.Metrics,
		idleTimeout: idleTimeout,
		startedAt:   now,
		lastActive:  now,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.sink = &managedSink{inner: sink, m: m, id: id}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session opened",
		"session_id", id,
		"provider", m.cfg.ProviderName,
		"sample_rate", sampleRate,
	)

	go s.run()
	return s, nil
}

// RouteFrame delivers one binary audio frame to its session. Odd-length
// frames cannot be PCM16 and are dropped with [ErrMalformedFrame]; the
// session itself stays healthy.
func (m *Manager) RouteFrame(id string, frame []byte) error {
	s, ok := m.lookup(id)
	if !ok {
		m.recordFrame("unknown_session")
		return fmt.Errorf("route frame to %q: %w", id, ErrUnknownSession)
	}
	if len(frame)%2 != 0 {
		m.recordFrame("malformed")
		return fmt.Errorf("route frame to %q (%d bytes): %w", id, len(frame), ErrMalformedFrame)
	}

	if err := s.pushFrame(frame, time.Now()); err != nil {
		m.recordFrame("closed")
		return fmt.Errorf("route frame to %q: %w", id, err)
	}
	m.recordFrame("ok")
	return nil
}

// Close asks a session to drain and close with the given reason. Closing an
// unknown or already-closed ID is a logged no-op: the session may have
// drained on its own (idle timeout, recognizer failure) before the caller's
// stop arrived, and repeating a close must never surface an error. Unknown
// IDs only error on [Manager.RouteFrame].
func (m *Manager) Close(id, reason string) error {
	s, ok := m.lookup(id)
	if !ok {
		slog.Debug("close for unknown session ignored", "session_id", id, "reason", reason)
		return nil
	}
	s.requestClose(reason)
	return nil
}

// CloseAll drains every session and waits for them to finish or for ctx to
// expire. Used during server shutdown.
func (m *Manager) CloseAll(ctx context.Context, reason string) {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s != nil {
			open = append(open, s)
		}
	}
	m.mu.Unlock()

	for _, s := range open {
		s.requestClose(reason)
	}
	for _, s := range open {
		select {
		case <-s.Done():
		case <-ctx.Done():
			slog.Warn("shutdown: session drain timed out", "session_id", s.ID())
			return
		}
	}
}

// SetTrendConfig updates the negativity tracking settings for sessions
// opened after the call. Live sessions keep the config they started with.
func (m *Manager) SetTrendConfig(cfg trend.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Trend = cfg
}

// SetIdleTimeout updates the idle timeout for sessions opened after the
// call. Zero takes [DefaultIdleTimeout]; negative disables.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	if d == 0 {
		d = DefaultIdleTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.IdleTimeout = d
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	s, existed := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	// The nil placeholder from a failed Open never counted as active.
	if existed && s != nil && m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

func (m *Manager) recordFrame(status string) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.RecordFrame(context.Background(), status)
}

// managedSink deregisters the session before forwarding the close event, so
// the ID becomes reusable the moment the subscriber learns of the close.
type managedSink struct {
	inner EventSink
	m     *Manager
	id    string
}

func (w *managedSink) OnSentiment(u Update)  { w.inner.OnSentiment(u) }
func (w *managedSink) OnAlert(a alert.Alert) { w.inner.OnAlert(a) }

func (w *managedSink) OnClosed(sessionID, reason string) {
	w.m.remove(w.id)
	w.inner.OnClosed(sessionID, reason)
}
