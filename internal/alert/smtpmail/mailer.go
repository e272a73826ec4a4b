// Package smtpmail delivers alerts and session summaries as plain-text
// emails over SMTP.
package smtpmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/sentavox/sentavox/internal/alert"
)

// timeLayout renders timestamps in mail bodies.
const timeLayout = "2006-01-02 15:04:05 MST"

// Config holds SMTP connection and addressing settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the sender address.
	From string

	// To lists the recipient addresses.
	To []string

	// StartTLS enables opportunistic STARTTLS. Mandatory TLS is the
	// default when false is not set explicitly in config validation.
	StartTLS bool
}

// Mailer implements [alert.Notifier] over SMTP. Safe for concurrent use; the
// underlying client dials per send.
type Mailer struct {
	cfg    Config
	client *mail.Client
}

var _ alert.SummaryNotifier = (*Mailer)(nil)

// New creates a Mailer. The SMTP connection is established lazily on the
// first Send, so New never touches the network.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtpmail: host must not be empty")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtpmail: from address must not be empty")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtpmail: at least one recipient is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtpmail: create client: %w", err)
	}
	return &Mailer{cfg: cfg, client: client}, nil
}

// Send delivers one alert email. Returns an error on any SMTP failure; the
// dispatcher handles retries.
func (m *Mailer) Send(ctx context.Context, a alert.Alert) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("smtpmail: set sender: %w", err)
	}
	if err := msg.To(m.cfg.To...); err != nil {
		return fmt.Errorf("smtpmail: set recipients: %w", err)
	}
	msg.Subject(Subject(a))
	msg.SetBodyString(mail.TypeTextPlain, Body(a))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtpmail: send alert %s: %w", a.ID, err)
	}
	return nil
}

// SendSummary delivers the end-of-session report mail.
func (m *Mailer) SendSummary(ctx context.Context, s alert.Summary) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("smtpmail: set sender: %w", err)
	}
	if err := msg.To(m.cfg.To...); err != nil {
		return fmt.Errorf("smtpmail: set recipients: %w", err)
	}
	msg.Subject(SummarySubject(s))
	msg.SetBodyString(mail.TypeTextPlain, SummaryBody(s))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtpmail: send summary for %s: %w", s.SessionID, err)
	}
	return nil
}

// Healthy verifies the SMTP endpoint accepts connections. Dials and
// disconnects without sending mail, so it is safe as a readiness probe.
func (m *Mailer) Healthy(ctx context.Context) error {
	if err := m.client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtpmail: dial %s: %w", m.cfg.Host, err)
	}
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("smtpmail: close: %w", err)
	}
	return nil
}

// Subject renders the email subject line for an alert.
func Subject(a alert.Alert) string {
	return fmt.Sprintf("Negative sentiment alert — session %s", a.SessionID)
}

// Body renders the plain-text email body for an alert.
func Body(a alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sustained negative sentiment detected.\n\n")
	fmt.Fprintf(&b, "Session:   %s\n", a.SessionID)
	fmt.Fprintf(&b, "Alert ID:  %s\n", a.ID)
	fmt.Fprintf(&b, "Time:      %s\n", a.TriggeredAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Average:   %.3f\n", a.Average)
	if a.Excerpt != "" {
		fmt.Fprintf(&b, "\nRecent transcript:\n%s\n", a.Excerpt)
	}
	return b.String()
}

// SummarySubject renders the email subject line for a session summary.
func SummarySubject(s alert.Summary) string {
	return fmt.Sprintf("Session summary — %s", s.SessionID)
}

// SummaryBody renders the plain-text email body for a session summary.
func SummaryBody(s alert.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call monitoring session ended.\n\n")
	fmt.Fprintf(&b, "Session:    %s\n", s.SessionID)
	fmt.Fprintf(&b, "Started:    %s\n", s.StartedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Ended:      %s\n", s.EndedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Duration:   %s\n", s.EndedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Reason:     %s\n", s.Reason)
	fmt.Fprintf(&b, "Segments:   %d\n", s.Segments)
	fmt.Fprintf(&b, "Average:    %.3f\n", s.Average)
	fmt.Fprintf(&b, "Alerts:     %d\n", s.Alerts)
	return b.String()
}
