package server

import (
	"encoding/json"
	"time"

	"github.com/sentavox/sentavox/internal/alert"
	"github.com/sentavox/sentavox/internal/session"
)

// Control message types exchanged over the websocket. Clients send start
// and stop; everything else flows server to client.
const (
	TypeStart = "start"
	TypeStop  = "stop"

	TypeSentimentUpdate = "sentiment_update"
	TypeAlert           = "alert"
	TypeSessionClosed   = "session_closed"
	TypeError           = "error"
)

// Error codes carried in error envelopes.
const (
	CodeBadMessage       = "bad_message"
	CodeDuplicateSession = "duplicate_session"
	CodeUnknownSession   = "unknown_session"
	CodeNoActiveSession  = "no_active_session"
	CodeMalformedFrame   = "malformed_frame"
	CodeStartFailed      = "start_failed"
)

// clientEnvelope is an inbound JSON control message. The type tag selects
// the handler; remaining fields apply per type.
type clientEnvelope struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id,omitempty"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
}

// sentimentUpdateMsg pushes one scored final segment to the client.
type sentimentUpdateMsg struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	Text        string    `json:"text"`
	Label       string    `json:"label"`
	Compound    float64   `json:"compound"`
	AvgCompound float64   `json:"avg_compound"`
	TrendState  string    `json:"trend_state"`
	At          time.Time `json:"at"`
}

// alertMsg notifies the client of a fired sustained-negativity alert.
type alertMsg struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	AlertID     string    `json:"alert_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Average     float64   `json:"average"`
	Message     string    `json:"message"`
}

// sessionClosedMsg reports the end of a session with its reason.
type sessionClosedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// errorMsg reports a protocol-level problem without closing the connection.
type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeUpdate(u session.Update) []byte {
	return mustJSON(sentimentUpdateMsg{
		Type:        TypeSentimentUpdate,
		SessionID:   u.SessionID,
		Text:        u.Text,
		Label:       string(u.Score.Label),
		Compound:    u.Score.Compound,
		AvgCompound: u.Average,
		TrendState:  string(u.State),
		At:          u.At,
	})
}

func encodeAlert(a alert.Alert) []byte {
	return mustJSON(alertMsg{
		Type:        TypeAlert,
		SessionID:   a.SessionID,
		AlertID:     a.ID,
		TriggeredAt: a.TriggeredAt,
		Average:     a.Average,
		Message:     a.Message,
	})
}

func encodeClosed(sessionID, reason string) []byte {
	return mustJSON(sessionClosedMsg{
		Type:      TypeSessionClosed,
		SessionID: sessionID,
		Reason:    reason,
	})
}

func encodeError(code, message string) []byte {
	return mustJSON(errorMsg{Type: TypeError, Code: code, Message: message})
}

// mustJSON marshals outbound messages. All outbound types marshal without
// error by construction.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("server: marshal outbound message: " + err.Error())
	}
	return b
}
