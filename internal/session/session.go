// Package session manages the lifecycle of live monitoring sessions: one
// recognizer engine, frame buffer, trend tracker, and worker goroutine per
// monitored call, plus the Manager that routes inbound audio to them.
//
// Concurrency model: the transport goroutine only touches the session's
// frame buffer (which is internally locked) and a wake channel. Everything
// stateful — the recognizer engine, the sentiment scorer call, the trend
// tracker — is confined to the session's single worker goroutine, so scored
// samples are applied strictly in transcript order.
//
// Lifecycle: opening is synchronous — Manager.Open creates and starts the
// recognizer engine before it returns, so a registered session is streaming
// from the moment it exists. There is no observable starting phase; the
// states are streaming, draining, and closed.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
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

// Close reasons reported through [EventSink.OnClosed].
const (
	ReasonClientStop        = "client-stop"
	ReasonIdleTimeout       = "idle-timeout"
	ReasonRecognizerFailure = "recognizer-unrecoverable"
	ReasonTransportClosed   = "transport-closed"
	ReasonServerShutdown    = "server-shutdown"
)

// pollInterval drives the worker's latency flush and idle check.
const pollInterval = 100 * time.Millisecond

// excerptSegments is how many recent final texts are retained for alert
// context.
const excerptSegments = 3

// Update is one live sentiment sample pushed to the session's subscriber.
type Update struct {
	SessionID string
	Text      string
	Score     sentiment.Score
	Average   float64
	State     trend.State
	At        time.Time
}

// EventSink receives a session's outbound events. Implementations are
// called from the session worker goroutine and must not block for long;
// the transport layer typically bridges these onto its write loop.
type EventSink interface {
	// OnSentiment delivers one scored final segment.
	OnSentiment(u Update)

	// OnAlert delivers a fired sustained-negativity alert.
	OnAlert(a alert.Alert)

	// OnClosed reports that the session has fully drained and closed.
	// It is called exactly once, last.
	OnClosed(sessionID, reason string)
}

// state is the session lifecycle position.
type state int

const (
	stateStreaming state = iota
	stateDraining
	stateClosed
)

// Session is one live monitored call. Created by [Manager.Open]; callers
// interact with it only through the Manager and the EventSink.
type Session struct {
	id       string
	provider string

	engine     recognizer.Engine
	scorer     sentiment.Scorer
	corrector  *vocab.Corrector
	tracker    *trend.Tracker
	buf        *framebuf.Buffer
	dispatcher *alert.Dispatcher
	sink       EventSink
	metrics    *observe.Metrics

	idleTimeout time.Duration
	startedAt   time.Time

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	mu         sync.Mutex
	st         state
	lastActive time.Time
	reason     string
	excerpt    []string

	// consecutive feed failures; one engine reset is attempted before the
	// session escalates to an unrecoverable close.
	feedFailed bool

	// worker-only counters feeding the end-of-session summary.
	scoredCount int
	alertCount  int

	stopOnce sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session was opened.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// pushFrame appends one validated PCM frame. Called by the Manager from the
// transport goroutine.
func (s *Session) pushFrame(frame []byte, now time.Time) error {
	s.mu.Lock()
	if s.st != stateStreaming {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastActive = now
	s.mu.Unlock()

	if s.buf.Push(frame, now) > 0 {
		s.wakeWorker()
	}
	return nil
}

// wakeWorker nudges the worker without ever blocking the transport.
func (s *Session) wakeWorker() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// requestClose asks the worker to drain and close with the given reason.
// The first caller wins; later reasons are ignored. Safe to call from any
// goroutine, repeatedly.
func (s *Session) requestClose(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.st == stateStreaming {
			s.st = stateDraining
			s.reason = reason
		}
		s.mu.Unlock()
		close(s.stop)
	})
}

// Done returns a channel closed once the worker has fully drained and the
// engine is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// run is the worker loop. It owns the engine, scorer calls, and tracker.
func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case <-s.wake:
		case now := <-ticker.C:
			s.buf.FlushStale(now)
			if s.idleExpired(now) {
				s.requestClose(ReasonIdleTimeout)
				continue
			}
		}
		if !s.processQueued() {
			s.drain()
			return
		}
	}
}

func (s *Session) idleExpired(now time.Time) bool {
	if s.idleTimeout <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateStreaming && now.Sub(s.lastActive) >= s.idleTimeout
}

// processQueued feeds every queued window through the engine. Returns false
// when the engine has failed beyond recovery and the session must close.
func (s *Session) processQueued() bool {
	for {
		window, ok := s.buf.Pop()
		if !ok {
			return true
		}
		if !s.feedWindow(window) {
			s.requestClose(ReasonRecognizerFailure)
			return false
		}
	}
}

// feedWindow runs one window through the recognizer and handles resulting
// segments. A failed feed gets one engine reset; a reset failure or a
// second consecutive feed failure is unrecoverable.
func (s *Session) feedWindow(window []byte) bool {
	start := time.Now()
	segs, err := s.engine.Feed(window)
	if s.metrics != nil {
		s.metrics.RecognizeDuration.Record(context.Background(), time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRecognizerError(context.Background(), s.provider)
		}
		if s.feedFailed {
			slog.Error("recognizer failed twice, closing session",
				"session_id", s.id, "provider", s.provider, "err", err)
			return false
		}
		s.feedFailed = true
		if resetErr := s.engine.Reset(); resetErr != nil {
			slog.Error("recognizer reset failed, closing session",
				"session_id", s.id, "provider", s.provider, "err", resetErr)
			return false
		}
		slog.Warn("recognizer feed failed, engine reset",
			"session_id", s.id, "provider", s.provider, "err", err)
		return true
	}

	s.feedFailed = false
	s.handleSegments(segs, time.Now())
	return true
}

// handleSegments scores final segments and advances the trend.
func (s *Session) handleSegments(segs []recognizer.Segment, now time.Time) {
	for _, seg := range segs {
		if !seg.IsFinal {
			continue
		}
		text, ok := sentiment.Normalize(seg.Text)
		if !ok {
			continue
		}
		if s.corrector != nil {
			corrected, corrections := s.corrector.Correct(text)
			for _, c := range corrections {
				slog.Debug("vocabulary correction",
					"session_id", s.id, "from", c.Original, "to", c.Term)
			}
			text = corrected
		}
		if s.metrics != nil {
			s.metrics.RecordSegment(context.Background(), s.provider)
		}

		start := time.Now()
		score, scored := s.scorer.Score(text)
		if s.metrics != nil {
			s.metrics.ScoreDuration.Record(context.Background(), time.Since(start).Seconds())
		}
		if !scored {
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordSample(context.Background(), string(score.Label))
		}

		s.rememberExcerpt(text)
		s.scoredCount++
		res := s.tracker.Add(score.Compound, now)

		s.sink.OnSentiment(Update{
			SessionID: s.id,
			Text:      text,
			Score:     score,
			Average:   res.Average,
			State:     res.State,
			At:        now,
		})

		if a := s.dispatcher.Evaluate(s.id, s.tracker, res, s.excerptText()); a != nil {
			s.alertCount++
			s.sink.OnAlert(*a)
		}
	}
}

// rememberExcerpt keeps the last few final texts for alert context.
func (s *Session) rememberExcerpt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excerpt = append(s.excerpt, text)
	if len(s.excerpt) > excerptSegments {
		s.excerpt = s.excerpt[len(s.excerpt)-excerptSegments:]
	}
}

func (s *Session) excerptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.excerpt, " ")
}

// drain flushes trailing audio through the engine, finalizes any partial
// utterance, releases the engine, and reports the close. Runs exactly once,
// at the end of the worker loop.
func (s *Session) drain() {
	now := time.Now()
	s.buf.Flush(now)
	for {
		window, ok := s.buf.Pop()
		if !ok {
			break
		}
		segs, err := s.engine.Feed(window)
		if err != nil {
			slog.Warn("drain: feed error, discarding trailing audio",
				"session_id", s.id, "err", err)
			break
		}
		s.handleSegments(segs, time.Now())
	}

	if segs, err := s.engine.Finalize(); err != nil {
		slog.Warn("drain: finalize error", "session_id", s.id, "err", err)
	} else {
		s.handleSegments(segs, time.Now())
	}

	if err := s.engine.Close(); err != nil {
		slog.Warn("drain: engine close error", "session_id", s.id, "err", err)
	}

	s.mu.Lock()
	s.st = stateClosed
	reason := s.reason
	if reason == "" {
		reason = ReasonClientStop
	}
	dropped := s.buf.Dropped()
	s.mu.Unlock()

	if s.metrics != nil && dropped > 0 {
		s.metrics.WindowsDropped.Add(context.Background(), int64(dropped))
	}

	slog.Info("session closed",
		"session_id", s.id,
		"reason", reason,
		"duration", time.Since(s.startedAt),
		"windows_dropped", dropped,
	)

	// The end-of-call report rides the same background delivery queue as
	// alerts; a notifier without summary support ignores it.
	s.dispatcher.SubmitSummary(alert.Summary{
		SessionID: s.id,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Reason:    reason,
		Segments:  s.scoredCount,
		Average:   s.tracker.Average(),
		Alerts:    s.alertCount,
	})

	s.sink.OnClosed(s.id, reason)
}

// String implements fmt.Stringer for log-friendly output.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.id)
}
