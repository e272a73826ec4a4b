package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sentavox/sentavox/internal/observe"
	"github.com/sentavox/sentavox/internal/trend"
)

// Dispatcher defaults.
const (
	defaultCooldown    = 5 * time.Minute
	defaultMinInterval = 5 * time.Minute
	defaultQueueSize   = 32
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
)

// DispatcherConfig holds the dependencies and tuning for a Dispatcher.
type DispatcherConfig struct {
	// Notifier delivers alerts. Nil disables outbound delivery; Evaluate
	// still fires and begins cooldowns so live updates keep working.
	Notifier Notifier

	// Cooldown is how long a session stays alert-suppressed after a fire.
	Cooldown time.Duration

	// MinInterval is the minimum spacing between outbound deliveries
	// across ALL sessions (the shared-transport rate limit).
	MinInterval time.Duration

	// QueueSize bounds the delivery queue. When full, new alerts are
	// logged and dropped rather than blocking the session worker.
	QueueSize int

	// MaxAttempts bounds delivery retries per alert.
	MaxAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// Metrics records fired/delivered/failed counters. Nil disables.
	Metrics *observe.Metrics
}

// envelope is one queued outbound delivery. Exactly one field is set.
type envelope struct {
	alert   *Alert
	summary *Summary
}

// Dispatcher evaluates trend transitions and delivers alerts and session
// summaries in the background. All exported methods are safe for concurrent
// use.
type Dispatcher struct {
	cfg     DispatcherConfig
	queue   chan envelope
	limiter *rate.Limiter

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
// Call Close to drain and stop it.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	d := &Dispatcher{
		cfg:     cfg,
		queue:   make(chan envelope, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.deliverLoop()
	return d
}

// Evaluate inspects the result of one trend update. When the sample carried
// the trend across the sustain boundary it builds an Alert, transitions the
// tracker into cooldown, and enqueues the alert for delivery. Returns the
// fired alert, or nil.
//
// Evaluate must be called from the session worker that owns tr, matching
// the tracker's single-owner contract.
func (d *Dispatcher) Evaluate(sessionID string, tr *trend.Tracker, res trend.Result, excerpt string) *Alert {
	if !res.EnteredSustained {
		return nil
	}

	a := New(sessionID, res.At, res.Average, excerpt)
	tr.BeginCooldown(res.At, d.cfg.Cooldown)

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.AlertsFired.Add(context.Background(), 1)
	}
	slog.Info("alert fired",
		"alert_id", a.ID,
		"session_id", a.SessionID,
		"average", a.Average,
	)

	select {
	case d.queue <- envelope{alert: &a}:
	default:
		// A full queue means the transport is far behind; shedding here is
		// preferable to blocking the audio pipeline.
		slog.Warn("alert delivery queue full, dropping notification",
			"alert_id", a.ID, "session_id", a.SessionID)
		d.recordDelivery("dropped")
	}
	return &a
}

// SubmitSummary enqueues an end-of-session report for background delivery.
// A no-op when the notifier cannot send summaries; a full queue drops the
// report with a log line rather than blocking the session worker.
func (d *Dispatcher) SubmitSummary(s Summary) {
	if _, ok := d.cfg.Notifier.(SummaryNotifier); !ok {
		return
	}
	select {
	case d.queue <- envelope{summary: &s}:
	default:
		slog.Warn("delivery queue full, dropping session summary",
			"session_id", s.SessionID)
		d.recordDelivery("dropped")
	}
}

// Close stops accepting alerts, waits for in-flight delivery to finish, and
// returns. Queued alerts that have not started delivery are abandoned.
// Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// deliverLoop is the single delivery goroutine. It applies the shared rate
// limit, then attempts delivery with bounded exponential backoff.
func (d *Dispatcher) deliverLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case env := <-d.queue:
			d.deliver(env)
		}
	}
}

// deliver sends one queued notification, retrying failed attempts with
// exponential backoff. Final failure is logged and counted, never
// propagated.
func (d *Dispatcher) deliver(env envelope) {
	if d.cfg.Notifier == nil {
		return
	}

	var (
		kind    string
		session string
		send    func(context.Context) error
	)
	switch {
	case env.alert != nil:
		a := *env.alert
		kind, session = "alert", a.SessionID
		send = func(ctx context.Context) error { return d.cfg.Notifier.Send(ctx, a) }
	case env.summary != nil:
		sn, ok := d.cfg.Notifier.(SummaryNotifier)
		if !ok {
			return
		}
		s := *env.summary
		kind, session = "summary", s.SessionID
		send = func(ctx context.Context) error { return sn.SendSummary(ctx, s) }
	default:
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		d.recordDelivery("dropped")
		return
	}

	backoff := d.cfg.BackoffBase
	for attempt := 1; ; attempt++ {
		err := send(ctx)
		if err == nil {
			d.recordDelivery("sent")
			slog.Info("notification delivered",
				"kind", kind, "session_id", session, "attempt", attempt)
			return
		}

		if attempt >= d.cfg.MaxAttempts {
			d.recordDelivery("failed")
			slog.Error("notification delivery failed, giving up",
				"kind", kind, "session_id", session, "attempts", attempt, "err", err)
			return
		}
		slog.Warn("notification delivery failed, retrying",
			"kind", kind, "session_id", session, "attempt", attempt, "err", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-d.done:
			d.recordDelivery("dropped")
			return
		}
	}
}

func (d *Dispatcher) recordDelivery(status string) {
	if d.cfg.Metrics == nil {
		return
	}
	d.cfg.Metrics.RecordAlertDelivery(context.Background(), status)
}
