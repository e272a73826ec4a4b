package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentavox/sentavox/internal/alert"
	"github.com/sentavox/sentavox/internal/framebuf"
	"github.com/sentavox/sentavox/internal/trend"
	"github.com/sentavox/sentavox/internal/vocab"
	"github.com/sentavox/sentavox/pkg/recognizer"
	recmock "github.com/sentavox/sentavox/pkg/recognizer/mock"
	sentmock "github.com/sentavox/sentavox/pkg/sentiment/mock"
)

// chanSink bridges sink callbacks onto channels for test assertions.
type chanSink struct {
	updates chan Update
	alerts  chan alert.Alert
	closed  chan string
}

func newChanSink() *chanSink {
	return &chanSink{
		updates: make(chan Update, 64),
		alerts:  make(chan alert.Alert, 16),
		closed:  make(chan string, 1),
	}
}

func (c *chanSink) OnSentiment(u Update)      { c.updates <- u }
func (c *chanSink) OnAlert(a alert.Alert)     { c.alerts <- a }
func (c *chanSink) OnClosed(_, reason string) { c.closed <- reason }

func waitClosed(t *testing.T, c *chanSink) string {
	t.Helper()
	select {
	case reason := <-c.closed:
		return reason
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session close")
		return ""
	}
}

func waitUpdate(t *testing.T, c *chanSink) Update {
	t.Helper()
	select {
	case u := <-c.updates:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sentiment update")
		return Update{}
	}
}

// testManager builds a Manager around scripted recognizer and scorer mocks.
// Window size is tiny so a single small frame cuts a full window.
func testManager(t *testing.T, p *recmock.Provider, scorer *sentmock.Scorer, trendCfg trend.Config) *Manager {
	t.Helper()
	d := alert.NewDispatcher(alert.DispatcherConfig{Cooldown: time.Minute})
	t.Cleanup(d.Close)

	if trendCfg.NegThreshold == 0 {
		trendCfg = trend.Config{NegThreshold: -0.1, SustainedDuration: time.Minute, Window: time.Minute}
	}
	return NewManager(ManagerConfig{
		Provider:     p,
		ProviderName: "mock",
		Scorer:       scorer,
		Dispatcher:   d,
		Buffer:       framebuf.Config{WindowBytes: 4, MaxLatency: 50 * time.Millisecond, QueueSize: 8},
		Trend:        trendCfg,
		SampleRate:   16000,
		IdleTimeout:  -1,
	})
}

func TestOpen_DuplicateRejected(t *testing.T) {
	t.Parallel()

	m := testManager(t, &recmock.Provider{}, &sentmock.Scorer{}, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open(context.Background(), "s1", 0, newChanSink()); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second Open error = %v, want ErrDuplicateSession", err)
	}

	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitClosed(t, sink)
}

func TestRouteFrame_UnknownSession(t *testing.T) {
	t.Parallel()

	m := testManager(t, &recmock.Provider{}, &sentmock.Scorer{}, trend.Config{})
	if err := m.RouteFrame("nope", []byte{0, 0}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("RouteFrame error = %v, want ErrUnknownSession", err)
	}
}

func TestRouteFrame_MalformedDropped(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{}
	m := testManager(t, p, &sentmock.Scorer{}, trend.Config{})
	sink := newChanSink()
	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Odd byte count cannot be PCM16.
	if err := m.RouteFrame("s1", []byte{1, 2, 3}); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("RouteFrame error = %v, want ErrMalformedFrame", err)
	}

	// The session survives and keeps accepting well-formed frames.
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame after malformed: %v", err)
	}

	_ = m.Close("s1", ReasonClientStop)
	waitClosed(t, sink)
}

func TestPipeline_ScoresFinalSegments(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		Script: [][]recognizer.Segment{
			{
				{Text: "hello there", IsFinal: false},
				{Text: "this is terrible", IsFinal: true},
			},
		},
	}
	scorer := &sentmock.Scorer{ByText: map[string]float64{"this is terrible": -0.6}}
	m := testManager(t, p, scorer, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	u := waitUpdate(t, sink)
	if u.Text != "this is terrible" {
		t.Errorf("update text = %q, want the final segment only", u.Text)
	}
	if u.Score.Compound != -0.6 {
		t.Errorf("compound = %v, want -0.6", u.Score.Compound)
	}
	if u.Average != -0.6 {
		t.Errorf("average = %v, want -0.6", u.Average)
	}
	if u.State != trend.StateNegativeBuilding {
		t.Errorf("state = %q, want negative-building", u.State)
	}

	// Partial segments are never scored.
	if got := scorer.Calls(); len(got) != 1 {
		t.Errorf("scorer calls = %v, want exactly the final segment", got)
	}

	_ = m.Close("s1", ReasonClientStop)
	waitClosed(t, sink)
}

func TestClose_DrainsAndReleasesEngine(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		FinalScript: []recognizer.Segment{{Text: "goodbye forever", IsFinal: true}},
	}
	scorer := &sentmock.Scorer{Default: 0.3}
	m := testManager(t, p, scorer, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// A short frame below the window size must still reach the engine via
	// the drain flush.
	if err := m.RouteFrame("s1", []byte{0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if reason := waitClosed(t, sink); reason != ReasonClientStop {
		t.Errorf("close reason = %q, want %q", reason, ReasonClientStop)
	}

	engines := p.Engines()
	if len(engines) != 1 {
		t.Fatalf("engines created = %d, want 1", len(engines))
	}
	e := engines[0]
	if e.FedBytes() != 2 {
		t.Errorf("fed bytes = %d, want trailing audio flushed", e.FedBytes())
	}
	if !e.Finalized() {
		t.Error("engine was not finalized during drain")
	}
	if e.CloseCalls() != 1 {
		t.Errorf("engine close calls = %d, want 1", e.CloseCalls())
	}

	// Finalize segments are scored too.
	u := waitUpdate(t, sink)
	if u.Text != "goodbye forever" {
		t.Errorf("drain update text = %q", u.Text)
	}

	// The ID is free again after close.
	if m.Len() != 0 {
		t.Errorf("sessions registered = %d, want 0", m.Len())
	}
}

func TestClose_RepeatIsNoOp(t *testing.T) {
	t.Parallel()

	m := testManager(t, &recmock.Provider{}, &sentmock.Scorer{}, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// A second close racing the drain must stay silent.
	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Errorf("Close while draining = %v, want nil", err)
	}
	waitClosed(t, sink)

	// And once the session is fully gone, closing again is still not an
	// error — the caller cannot know whether the drain beat their stop.
	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Errorf("Close after drain = %v, want nil", err)
	}
	if err := m.Close("never-existed", ReasonClientStop); err != nil {
		t.Errorf("Close of unknown id = %v, want nil", err)
	}
}

func TestFeedFailure_ResetThenRecover(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		FeedErrs: map[int]error{0: errors.New("decode blew up")},
		Script: [][]recognizer.Segment{
			nil,
			{{Text: "still alive", IsFinal: true}},
		},
	}
	scorer := &sentmock.Scorer{Default: 0.1}
	m := testManager(t, p, scorer, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	// The second window succeeds after the engine reset.
	u := waitUpdate(t, sink)
	if u.Text != "still alive" {
		t.Errorf("update text = %q", u.Text)
	}
	if got := p.Engines()[0].Resets(); got != 1 {
		t.Errorf("engine resets = %d, want 1", got)
	}

	_ = m.Close("s1", ReasonClientStop)
	waitClosed(t, sink)
}

func TestFeedFailure_EscalatesAfterSecondError(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		FeedErrs: map[int]error{0: errors.New("bad"), 1: errors.New("worse")},
	}
	m := testManager(t, p, &sentmock.Scorer{}, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", make([]byte, 8)); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	if reason := waitClosed(t, sink); reason != ReasonRecognizerFailure {
		t.Errorf("close reason = %q, want %q", reason, ReasonRecognizerFailure)
	}
	if got := p.Engines()[0].CloseCalls(); got != 1 {
		t.Errorf("engine close calls = %d, want 1", got)
	}
}

func TestFeedFailure_ResetErrorEscalatesImmediately(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		FeedErrs: map[int]error{0: errors.New("bad")},
		ResetErr: errors.New("reset refused"),
	}
	m := testManager(t, p, &sentmock.Scorer{}, trend.Config{})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	if reason := waitClosed(t, sink); reason != ReasonRecognizerFailure {
		t.Errorf("close reason = %q, want %q", reason, ReasonRecognizerFailure)
	}
}

func TestSessionIsolation_OneFailureLeavesOthersRunning(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{}
	failing := &recmock.Provider{
		FeedErrs: map[int]error{0: errors.New("bad"), 1: errors.New("worse")},
	}

	scorer := &sentmock.Scorer{Default: 0.2}
	m := testManager(t, p, scorer, trend.Config{})
	mFail := testManager(t, failing, scorer, trend.Config{})

	healthy := newChanSink()
	doomed := newChanSink()
	if _, err := m.Open(context.Background(), "ok", 0, healthy); err != nil {
		t.Fatalf("Open healthy: %v", err)
	}
	if _, err := mFail.Open(context.Background(), "doomed", 0, doomed); err != nil {
		t.Fatalf("Open doomed: %v", err)
	}

	if err := mFail.RouteFrame("doomed", make([]byte, 8)); err != nil {
		t.Fatalf("RouteFrame doomed: %v", err)
	}
	waitClosed(t, doomed)

	// The healthy session still accepts audio.
	if err := m.RouteFrame("ok", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame healthy after peer failure: %v", err)
	}
	_ = m.Close("ok", ReasonClientStop)
	waitClosed(t, healthy)
}

func TestIdleTimeout_ClosesSession(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{}
	d := alert.NewDispatcher(alert.DispatcherConfig{Cooldown: time.Minute})
	t.Cleanup(d.Close)
	m := NewManager(ManagerConfig{
		Provider:     p,
		ProviderName: "mock",
		Scorer:       &sentmock.Scorer{},
		Dispatcher:   d,
		Buffer:       framebuf.Config{WindowBytes: 4},
		Trend:        trend.Config{NegThreshold: -0.1, SustainedDuration: time.Minute, Window: time.Minute},
		SampleRate:   16000,
		IdleTimeout:  50 * time.Millisecond,
	})

	sink := newChanSink()
	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if reason := waitClosed(t, sink); reason != ReasonIdleTimeout {
		t.Errorf("close reason = %q, want %q", reason, ReasonIdleTimeout)
	}
}

func TestCloseAll_DrainsEverySession(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{}
	m := testManager(t, p, &sentmock.Scorer{}, trend.Config{})

	sinks := []*chanSink{newChanSink(), newChanSink(), newChanSink()}
	for i, sink := range sinks {
		id := string(rune('a' + i))
		if _, err := m.Open(context.Background(), id, 0, sink); err != nil {
			t.Fatalf("Open %q: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.CloseAll(ctx, ReasonServerShutdown)

	for _, sink := range sinks {
		if reason := waitClosed(t, sink); reason != ReasonServerShutdown {
			t.Errorf("close reason = %q, want %q", reason, ReasonServerShutdown)
		}
	}
	if m.Len() != 0 {
		t.Errorf("sessions registered = %d, want 0", m.Len())
	}
}

func TestAlertFlow_SustainedNegativityFires(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		Script: [][]recognizer.Segment{
			{{Text: "awful", IsFinal: true}},
			{{Text: "horrible", IsFinal: true}},
		},
	}
	scorer := &sentmock.Scorer{Default: -0.5}
	m := testManager(t, p, scorer, trend.Config{
		NegThreshold:      -0.1,
		SustainedDuration: time.Millisecond,
		Window:            time.Minute,
	})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}
	waitUpdate(t, sink)

	// Let the sustain window elapse before the second negative sample.
	time.Sleep(10 * time.Millisecond)
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}
	waitUpdate(t, sink)

	select {
	case a := <-sink.alerts:
		if a.SessionID != "s1" {
			t.Errorf("alert session = %q, want s1", a.SessionID)
		}
		if a.Average >= -0.1 {
			t.Errorf("alert average = %v, want below threshold", a.Average)
		}
		if a.Excerpt == "" {
			t.Error("alert excerpt is empty")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert")
	}

	_ = m.Close("s1", ReasonClientStop)
	waitClosed(t, sink)
}

// summaryCapture records end-of-session reports delivered by a dispatcher.
type summaryCapture struct {
	mu        sync.Mutex
	summaries []alert.Summary
}

func (n *summaryCapture) Send(context.Context, alert.Alert) error { return nil }

func (n *summaryCapture) SendSummary(_ context.Context, s alert.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func (n *summaryCapture) first(t *testing.T) alert.Summary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		n.mu.Lock()
		if len(n.summaries) > 0 {
			s := n.summaries[0]
			n.mu.Unlock()
			return s
		}
		n.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for session summary delivery")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose_SubmitsSessionSummary(t *testing.T) {
	t.Parallel()

	capture := &summaryCapture{}
	d := alert.NewDispatcher(alert.DispatcherConfig{
		Notifier:    capture,
		Cooldown:    time.Minute,
		MinInterval: time.Millisecond,
	})
	t.Cleanup(d.Close)

	p := &recmock.Provider{
		Script: [][]recognizer.Segment{
			{{Text: "everything is broken", IsFinal: true}},
		},
	}
	m := NewManager(ManagerConfig{
		Provider:     p,
		ProviderName: "mock",
		Scorer:       &sentmock.Scorer{Default: -0.4},
		Dispatcher:   d,
		Buffer:       framebuf.Config{WindowBytes: 4, MaxLatency: 50 * time.Millisecond, QueueSize: 8},
		Trend:        trend.Config{NegThreshold: -0.1, SustainedDuration: time.Minute, Window: time.Minute},
		SampleRate:   16000,
		IdleTimeout:  -1,
	})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}
	waitUpdate(t, sink)

	if err := m.Close("s1", ReasonClientStop); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitClosed(t, sink)

	s := capture.first(t)
	if s.SessionID != "s1" {
		t.Errorf("summary session = %q, want s1", s.SessionID)
	}
	if s.Reason != ReasonClientStop {
		t.Errorf("summary reason = %q, want %q", s.Reason, ReasonClientStop)
	}
	if s.Segments != 1 {
		t.Errorf("summary segments = %d, want 1", s.Segments)
	}
	if s.Average != -0.4 {
		t.Errorf("summary average = %v, want -0.4", s.Average)
	}
	if s.Alerts != 0 {
		t.Errorf("summary alerts = %d, want 0", s.Alerts)
	}
	if !s.EndedAt.After(s.StartedAt) {
		t.Errorf("summary times not ordered: started %v, ended %v", s.StartedAt, s.EndedAt)
	}
}

func TestPipeline_VocabularyCorrectionBeforeScoring(t *testing.T) {
	t.Parallel()

	p := &recmock.Provider{
		Script: [][]recognizer.Segment{
			{{Text: "i want a refunt", IsFinal: true}},
		},
	}
	// The scorer only knows the corrected text; a miss falls back to 0.9 so
	// a failure to correct is visible in the update's compound.
	scorer := &sentmock.Scorer{
		ByText:  map[string]float64{"i want a refund": -0.5},
		Default: 0.9,
	}

	d := alert.NewDispatcher(alert.DispatcherConfig{Cooldown: time.Minute})
	t.Cleanup(d.Close)
	m := NewManager(ManagerConfig{
		Provider:     p,
		ProviderName: "mock",
		Scorer:       scorer,
		Corrector:    vocab.NewCorrector([]string{"refund"}),
		Dispatcher:   d,
		Buffer:       framebuf.Config{WindowBytes: 4, MaxLatency: 50 * time.Millisecond, QueueSize: 8},
		Trend:        trend.Config{NegThreshold: -0.1, SustainedDuration: time.Minute, Window: time.Minute},
		SampleRate:   16000,
		IdleTimeout:  -1,
	})
	sink := newChanSink()

	if _, err := m.Open(context.Background(), "s1", 0, sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.RouteFrame("s1", []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("RouteFrame: %v", err)
	}

	u := waitUpdate(t, sink)
	if u.Text != "i want a refund" {
		t.Errorf("update text = %q, want corrected transcript", u.Text)
	}
	if u.Score.Compound != -0.5 {
		t.Errorf("compound = %v, want -0.5 (scored on corrected text)", u.Score.Compound)
	}

	_ = m.Close("s1", ReasonClientStop)
	waitClosed(t, sink)
}
