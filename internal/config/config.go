// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Sentavox server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Sentavox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level, defaulting to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Sentavox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Recognizer ProviderEntry   `yaml:"recognizer"`
	Audio      AudioConfig     `yaml:"audio"`
	Sentiment  SentimentConfig `yaml:"sentiment"`
	Session    SessionConfig   `yaml:"session"`
	Alerts     AlertsConfig    `yaml:"alerts"`

	// Vocabulary lists domain terms (product names, jargon) used to repair
	// recognizer mishears before sentiment scoring.
	Vocabulary []string `yaml:"vocabulary"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry selects and configures a named recognizer implementation
// registered in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider (e.g., "whisper-native", "vosk").
	Name string `yaml:"name"`

	// Model is a provider-specific model path or identifier (e.g., a
	// ggml model file for whisper-native).
	Model string `yaml:"model"`

	// BaseURL points at a remote recognizer endpoint (e.g., a vosk-server
	// websocket URL). Ignored by in-process providers.
	BaseURL string `yaml:"base_url"`

	// Language hints the recognizer (BCP-47 or engine-specific).
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists recognizers tried in order when this one cannot open
	// an engine. Only honoured on the top-level recognizer entry.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// AudioConfig controls inbound PCM windowing.
type AudioConfig struct {
	// SampleRateHz is the default inbound sample rate. Clients may
	// override it per session in the start message.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// MaxWindowBytes is the recognizer window size in bytes.
	MaxWindowBytes int `yaml:"max_window_bytes"`

	// MaxWindowLatencyMs bounds how long buffered audio may wait before a
	// short window is flushed.
	MaxWindowLatencyMs int `yaml:"max_window_latency_ms"`

	// WindowQueueSize caps queued windows per session before the oldest
	// is dropped.
	WindowQueueSize int `yaml:"window_queue_size"`
}

// SentimentConfig controls scoring and the negativity trend.
type SentimentConfig struct {
	// Scorer selects the registered scorer implementation. Default "vader".
	Scorer string `yaml:"scorer"`

	// NegThreshold is the running-average compound below which the trend
	// counts as negative. Default -0.1.
	NegThreshold float64 `yaml:"neg_threshold"`

	// SustainedDurationSec is how long the average must stay below the
	// threshold before an alert fires. Default 20.
	SustainedDurationSec int `yaml:"sustained_duration_sec"`

	// AlertCooldownSec suppresses further alerts per session after a
	// fire. Default 300.
	AlertCooldownSec int `yaml:"alert_cooldown_sec"`

	// WindowDurationSec bounds how long samples contribute to the
	// running average. Default 60.
	WindowDurationSec int `yaml:"window_duration_sec"`
}

// SessionConfig holds per-session lifecycle settings.
type SessionConfig struct {
	// IdleTimeoutSec closes sessions with no inbound audio. Default 60;
	// negative disables.
	IdleTimeoutSec int `yaml:"idle_timeout_sec"`
}

// AlertsConfig configures outbound alert delivery.
type AlertsConfig struct {
	// SMTP enables email delivery. When nil, alerts are only pushed over
	// the websocket.
	SMTP *SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds SMTP connection and addressing settings.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`

	// MinIntervalSec is the minimum spacing between alert mails across
	// all sessions. Default 300.
	MinIntervalSec int `yaml:"min_interval_sec"`

	// StartTLS enables opportunistic STARTTLS.
	StartTLS bool `yaml:"starttls"`
}

// Configuration defaults.
const (
	DefaultListenAddr         = ":8080"
	DefaultSampleRateHz       = 16000
	DefaultMaxWindowBytes     = 9600
	DefaultMaxWindowLatencyMs = 500
	DefaultWindowQueueSize    = 8
	DefaultScorer             = "vader"
	DefaultNegThreshold       = -0.1
	DefaultSustainedSec       = 20
	DefaultCooldownSec        = 300
	DefaultWindowSec          = 60
	DefaultIdleTimeoutSec     = 60
	DefaultSMTPIntervalSec    = 300
)

// ApplyDefaults fills zero fields with the package defaults. Called by the
// loader after decoding.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Audio.SampleRateHz == 0 {
		c.Audio.SampleRateHz = DefaultSampleRateHz
	}
	if c.Audio.MaxWindowBytes == 0 {
		c.Audio.MaxWindowBytes = DefaultMaxWindowBytes
	}
	if c.Audio.MaxWindowLatencyMs == 0 {
		c.Audio.MaxWindowLatencyMs = DefaultMaxWindowLatencyMs
	}
	if c.Audio.WindowQueueSize == 0 {
		c.Audio.WindowQueueSize = DefaultWindowQueueSize
	}
	if c.Sentiment.Scorer == "" {
		c.Sentiment.Scorer = DefaultScorer
	}
	if c.Sentiment.NegThreshold == 0 {
		c.Sentiment.NegThreshold = DefaultNegThreshold
	}
	if c.Sentiment.SustainedDurationSec == 0 {
		c.Sentiment.SustainedDurationSec = DefaultSustainedSec
	}
	if c.Sentiment.AlertCooldownSec == 0 {
		c.Sentiment.AlertCooldownSec = DefaultCooldownSec
	}
	if c.Sentiment.WindowDurationSec == 0 {
		c.Sentiment.WindowDurationSec = DefaultWindowSec
	}
	if c.Session.IdleTimeoutSec == 0 {
		c.Session.IdleTimeoutSec = DefaultIdleTimeoutSec
	}
	if c.Alerts.SMTP != nil && c.Alerts.SMTP.MinIntervalSec == 0 {
		c.Alerts.SMTP.MinIntervalSec = DefaultSMTPIntervalSec
	}
}

// SustainedDuration returns the sustain threshold as a duration.
func (s SentimentConfig) SustainedDuration() time.Duration {
	return time.Duration(s.SustainedDurationSec) * time.Second
}

// AlertCooldown returns the cooldown as a duration.
func (s SentimentConfig) AlertCooldown() time.Duration {
	return time.Duration(s.AlertCooldownSec) * time.Second
}

// WindowDuration returns the sample window as a duration.
func (s SentimentConfig) WindowDuration() time.Duration {
	return time.Duration(s.WindowDurationSec) * time.Second
}

// IdleTimeout returns the idle timeout as a duration; negative disables.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSec) * time.Second
}

// MinInterval returns the mail spacing as a duration.
func (s SMTPConfig) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalSec) * time.Second
}

// MaxWindowLatency returns the latency flush bound as a duration.
func (a AudioConfig) MaxWindowLatency() time.Duration {
	return time.Duration(a.MaxWindowLatencyMs) * time.Millisecond
}
