package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher backs the server's hot reload: it polls the config file and hands
// every valid edit to a callback, so operators can retune the log level or
// the sentiment thresholds mid-shift without a restart. Invalid edits are
// logged and ignored; the last valid config stays in force.
//
// Polling (mtime first, content hash second) is deliberate: the config file
// changes rarely, a few-second delay is acceptable, and it avoids carrying
// an inotify dependency for one file.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	// last accepted file state, for cheap change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it for edits in a
// background goroutine. The initial load must succeed; after that, only
// valid edits replace the current config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.readConfig()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce checks the file for an edit and, when it parses and validates,
// swaps the current config and notifies the callback.
func (w *Watcher) pollOnce() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config reload: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	// An unchanged mtime means no edit; skip the read and hash entirely.
	if info.ModTime().Equal(mtime) {
		return
	}

	cfg, hash, newMtime, err := w.readConfig()
	if err != nil {
		slog.Warn("config reload: edit rejected, keeping previous config",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		// Touched but byte-identical (editor save, deploy re-push).
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)

	// Notify outside the lock so the callback may call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// readConfig reads, parses, and validates the file, returning the config
// with the content hash and mtime used for change detection.
func (w *Watcher) readConfig() (*Config, [sha256.Size]byte, time.Time, error) {
	var none [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, none, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, none, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, none, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
