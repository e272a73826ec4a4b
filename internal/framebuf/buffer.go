// Package framebuf reassembles a session's inbound PCM byte stream into
// fixed-size windows suitable for the recognizer.
//
// The buffer decouples producer (network) and consumer (recognizer) rates.
// Arriving bytes accumulate until a full window is cut; a max-latency flush
// lets the owning session push out a partial window so quiet periods do not
// stall delivery. Completed windows wait in a bounded queue: when the
// recognizer falls behind and the queue is full, the OLDEST window is
// dropped and counted, never the newest — bounded audio loss is preferable
// to unbounded memory growth.
//
// All methods are safe for concurrent use. Byte order is preserved: windows
// are cut and queued strictly in arrival order.
package framebuf

import (
	"sync"
	"time"
)

// Defaults applied by New for zero config fields.
const (
	// DefaultWindowBytes is 300 ms of 16 kHz mono PCM16.
	DefaultWindowBytes = 9600

	DefaultMaxLatency = 500 * time.Millisecond
	DefaultQueueSize  = 8
)

// Config controls windowing and backpressure behaviour.
type Config struct {
	// WindowBytes is the target window size. A full window is cut as soon
	// as this many bytes have accumulated.
	WindowBytes int

	// MaxLatency bounds how long accumulated bytes may wait before
	// FlushStale cuts them into a (possibly short) window.
	MaxLatency time.Duration

	// QueueSize caps the number of completed windows awaiting consumption.
	QueueSize int
}

// Buffer is a per-session window assembler with a bounded output queue.
type Buffer struct {
	mu  sync.Mutex
	cfg Config

	pending   []byte
	lastFlush time.Time

	queue   [][]byte
	dropped uint64
}

// New creates a Buffer. Zero config fields take the package defaults; now
// seeds the latency-flush clock.
func New(cfg Config, now time.Time) *Buffer {
	if cfg.WindowBytes <= 0 {
		cfg.WindowBytes = DefaultWindowBytes
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = DefaultMaxLatency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Buffer{cfg: cfg, lastFlush: now}
}

// Push appends frame bytes and cuts as many full windows as the new total
// allows. Returns the number of windows cut.
func (b *Buffer) Push(frame []byte, now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, frame...)

	cut := 0
	for len(b.pending) >= b.cfg.WindowBytes {
		window := make([]byte, b.cfg.WindowBytes)
		copy(window, b.pending[:b.cfg.WindowBytes])
		b.pending = b.pending[b.cfg.WindowBytes:]
		b.enqueue(window)
		cut++
		b.lastFlush = now
	}
	return cut
}

// FlushStale cuts the pending bytes into a short window if they have waited
// longer than MaxLatency. Reports whether a window was produced.
func (b *Buffer) FlushStale(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		b.lastFlush = now
		return false
	}
	if now.Sub(b.lastFlush) < b.cfg.MaxLatency {
		return false
	}

	window := make([]byte, len(b.pending))
	copy(window, b.pending)
	b.pending = b.pending[:0]
	b.enqueue(window)
	b.lastFlush = now
	return true
}

// Flush unconditionally cuts any pending bytes into a final window. Used
// during session drain so trailing audio reaches the recognizer.
func (b *Buffer) Flush(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return false
	}
	window := make([]byte, len(b.pending))
	copy(window, b.pending)
	b.pending = b.pending[:0]
	b.enqueue(window)
	b.lastFlush = now
	return true
}

// Pop removes and returns the oldest completed window. ok is false when the
// queue is empty.
func (b *Buffer) Pop() (window []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	window = b.queue[0]
	b.queue = b.queue[1:]
	return window, true
}

// Queued returns the number of completed windows awaiting consumption.
func (b *Buffer) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped returns the total number of windows discarded under backpressure.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// enqueue appends a window, evicting the oldest queued window when the
// queue is at capacity. Must be called with b.mu held.
func (b *Buffer) enqueue(window []byte) {
	if len(b.queue) >= b.cfg.QueueSize {
		// Copy down rather than reslice so evicted windows do not pin the
		// backing array for the session's lifetime.
		copy(b.queue, b.queue[1:])
		b.queue[len(b.queue)-1] = nil
		b.queue = b.queue[:len(b.queue)-1]
		b.dropped++
	}
	b.queue = append(b.queue, window)
}
