package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/sentavox/sentavox/internal/alert"
	"github.com/sentavox/sentavox/internal/session"
)

// sendQueueSize bounds outbound messages per connection. A client that
// stops reading loses updates rather than stalling the session worker.
const sendQueueSize = 256

// conn is one websocket connection. A connection monitors at most one
// session at a time; a new start is accepted once the previous session has
// reported closed.
type conn struct {
	srv *Server
	ws  *websocket.Conn

	send chan []byte

	mu        sync.Mutex
	sessionID string
}

var _ session.EventSink = (*conn)(nil)

// controlHandlers is the dispatch table for inbound JSON control messages.
var controlHandlers = map[string]func(*conn, context.Context, clientEnvelope){
	TypeStart: (*conn).handleStart,
	TypeStop:  (*conn).handleStop,
}

// serve runs the connection until the client disconnects or ctx ends. It
// owns the read loop; a separate goroutine drains the send queue.
func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)

	// The client is gone; any session it left behind drains in the
	// background.
	if id := c.current(); id != "" {
		_ = c.srv.manager.Close(id, session.ReasonTransportClosed)
	}
	cancel()
	wg.Wait()
	c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		switch typ {
		case websocket.MessageBinary:
			c.handleFrame(data)
		case websocket.MessageText:
			var env clientEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.enqueue(encodeError(CodeBadMessage, "control message is not valid JSON"))
				continue
			}
			h, ok := controlHandlers[env.Type]
			if !ok {
				c.enqueue(encodeError(CodeBadMessage, "unknown message type "+env.Type))
				continue
			}
			h(c, ctx, env)
		}
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// handleFrame routes one binary PCM frame to the connection's session.
// Frame-level problems produce error envelopes but never end the
// connection or the session.
func (c *conn) handleFrame(frame []byte) {
	id := c.current()
	if id == "" {
		c.enqueue(encodeError(CodeNoActiveSession, "binary frame received before start"))
		return
	}

	err := c.srv.manager.RouteFrame(id, frame)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrMalformedFrame):
		c.enqueue(encodeError(CodeMalformedFrame, "odd-length frame dropped"))
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrSessionClosed):
		// The session closed between frames; the close notice is already
		// on its way.
		slog.Debug("frame for finished session dropped", "session_id", id)
	default:
		slog.Warn("route frame failed", "session_id", id, "err", err)
	}
}

func (c *conn) handleStart(ctx context.Context, env clientEnvelope) {
	if env.SessionID == "" {
		c.enqueue(encodeError(CodeBadMessage, "start requires session_id"))
		return
	}
	if cur := c.current(); cur != "" {
		c.enqueue(encodeError(CodeDuplicateSession, "connection already monitors session "+cur))
		return
	}

	_, err := c.srv.manager.Open(ctx, env.SessionID, env.SampleRateHz, c)
	switch {
	case err == nil:
		c.setCurrent(env.SessionID)
	case errors.Is(err, session.ErrDuplicateSession):
		c.enqueue(encodeError(CodeDuplicateSession, "session "+env.SessionID+" is already active"))
	default:
		slog.Error("open session failed", "session_id", env.SessionID, "err", err)
		c.enqueue(encodeError(CodeStartFailed, "could not start session"))
	}
}

func (c *conn) handleStop(_ context.Context, _ clientEnvelope) {
	id := c.current()
	if id == "" {
		c.enqueue(encodeError(CodeNoActiveSession, "no session to stop"))
		return
	}
	// Close is a no-op when the session already drained on its own; the
	// session_closed notice reaches the client either way.
	_ = c.srv.manager.Close(id, session.ReasonClientStop)
}

// --- session.EventSink (called from the session worker goroutine) ---

func (c *conn) OnSentiment(u session.Update) {
	c.enqueue(encodeUpdate(u))
}

func (c *conn) OnAlert(a alert.Alert) {
	c.enqueue(encodeAlert(a))
}

func (c *conn) OnClosed(sessionID, reason string) {
	c.clearCurrent(sessionID)
	c.enqueue(encodeClosed(sessionID, reason))
}

// enqueue never blocks: the session worker must not stall on a slow
// client. Dropped messages are logged.
func (c *conn) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("outbound queue full, dropping message")
	}
}

func (c *conn) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *conn) setCurrent(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *conn) clearCurrent(id string) {
	c.mu.Lock()
	if c.sessionID == id {
		c.sessionID = ""
	}
	c.mu.Unlock()
}
