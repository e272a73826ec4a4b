// Package alert turns sustained-negativity transitions into outbound
// notifications.
//
// The Dispatcher sits between the per-session trend trackers and the shared
// notification transport. Firing is synchronous and cheap (an enqueue);
// delivery runs on a single background goroutine behind a rate limiter so
// that a burst of simultaneous alerts across many sessions cannot overwhelm
// the mail transport, and a slow transport can never stall audio ingestion.
// Delivery is best-effort: failures are retried with bounded backoff and
// then logged, never propagated to the session.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert describes one sustained-negativity event.
type Alert struct {
	// ID uniquely identifies this alert for logging and deduplication.
	ID string

	// SessionID names the monitored call.
	SessionID string

	// TriggeredAt is when the trend crossed the sustain boundary.
	TriggeredAt time.Time

	// Average is the running sentiment average at the moment of trigger.
	Average float64

	// Excerpt quotes the most recent transcript text, for context in the
	// notification body. May be empty.
	Excerpt string

	// Message is a human-readable one-line summary.
	Message string
}

// New builds an Alert with a fresh ID and a standard summary message.
func New(sessionID string, triggeredAt time.Time, average float64, excerpt string) Alert {
	return Alert{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		TriggeredAt: triggeredAt,
		Average:     average,
		Excerpt:     excerpt,
		Message: fmt.Sprintf("sustained negative sentiment in session %s (average %.3f)",
			sessionID, average),
	}
}

// Summary describes one finished session for the end-of-call report.
type Summary struct {
	// SessionID names the monitored call.
	SessionID string

	// StartedAt and EndedAt bound the session lifetime.
	StartedAt time.Time
	EndedAt   time.Time

	// Reason is the close reason reported to the transport.
	Reason string

	// Segments counts the final transcript segments that were scored.
	Segments int

	// Average is the running sentiment average at close.
	Average float64

	// Alerts counts the alerts fired during the session.
	Alerts int
}

// Notifier delivers one alert through an external channel (e.g., email).
// Implementations must respect context cancellation. Errors are treated as
// delivery failures: logged and retried by the dispatcher, never fatal.
type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// SummaryNotifier is implemented by notifiers that can also deliver
// end-of-session reports. Notifiers without it receive alerts only.
type SummaryNotifier interface {
	Notifier
	SendSummary(ctx context.Context, s Summary) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, a Alert) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, a Alert) error { return f(ctx, a) }
