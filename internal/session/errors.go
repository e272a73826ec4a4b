package session

import "errors"

// Sentinel errors returned by the [Manager]. Callers match with
// [errors.Is] to decide between protocol errors and frame-level drops.
var (
	// ErrUnknownSession means audio was routed to a session ID that has
	// never been opened or has already been removed. Only frame routing
	// reports it; closing an unknown ID is a no-op.
	ErrUnknownSession = errors.New("session: unknown session")

	// ErrDuplicateSession means a start was attempted for an ID that is
	// still active.
	ErrDuplicateSession = errors.New("session: session already active")

	// ErrSessionClosed means the session exists but is draining or closed
	// and accepts no further audio.
	ErrSessionClosed = errors.New("session: session closed")

	// ErrMalformedFrame means a binary frame cannot be PCM16 (odd byte
	// count). The frame is dropped; the session stays healthy.
	ErrMalformedFrame = errors.New("session: malformed audio frame")
)
