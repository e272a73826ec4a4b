package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidRecognizerNames lists known recognizer provider names. [Validate]
// warns about unrecognised names; they may still be third-party
// registrations.
var ValidRecognizerNames = []string{"whisper-native", "vosk", "mock"}

// ValidScorerNames lists known sentiment scorer names.
var ValidScorerNames = []string{"vader", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Recognizer, including any fallback entries.
	errs = append(errs, validateRecognizerEntry("recognizer", cfg.Recognizer)...)
	for i, fb := range cfg.Recognizer.Fallbacks {
		errs = append(errs, validateRecognizerEntry(fmt.Sprintf("recognizer.fallbacks[%d]", i), fb)...)
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("recognizer.fallbacks[%d]: nested fallbacks are not supported", i))
		}
	}

	// Audio
	if cfg.Audio.SampleRateHz < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate_hz %d must be positive", cfg.Audio.SampleRateHz))
	}
	if cfg.Audio.MaxWindowBytes < 0 || cfg.Audio.MaxWindowBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("audio.max_window_bytes %d must be a positive even number", cfg.Audio.MaxWindowBytes))
	}
	if cfg.Audio.MaxWindowLatencyMs < 0 {
		errs = append(errs, fmt.Errorf("audio.max_window_latency_ms %d must be positive", cfg.Audio.MaxWindowLatencyMs))
	}
	if cfg.Audio.WindowQueueSize < 0 {
		errs = append(errs, fmt.Errorf("audio.window_queue_size %d must be positive", cfg.Audio.WindowQueueSize))
	}

	// Sentiment
	if !slices.Contains(ValidScorerNames, cfg.Sentiment.Scorer) {
		slog.Warn("unknown scorer name — may be a typo or third-party scorer",
			"name", cfg.Sentiment.Scorer,
			"known", ValidScorerNames,
		)
	}
	if cfg.Sentiment.NegThreshold < -1 || cfg.Sentiment.NegThreshold >= 0 {
		errs = append(errs, fmt.Errorf("sentiment.neg_threshold %.3f is out of range [-1, 0)", cfg.Sentiment.NegThreshold))
	}
	if cfg.Sentiment.SustainedDurationSec < 0 {
		errs = append(errs, fmt.Errorf("sentiment.sustained_duration_sec %d must be positive", cfg.Sentiment.SustainedDurationSec))
	}
	if cfg.Sentiment.AlertCooldownSec < 0 {
		errs = append(errs, fmt.Errorf("sentiment.alert_cooldown_sec %d must be positive", cfg.Sentiment.AlertCooldownSec))
	}
	if cfg.Sentiment.WindowDurationSec < 0 {
		errs = append(errs, fmt.Errorf("sentiment.window_duration_sec %d must be positive", cfg.Sentiment.WindowDurationSec))
	}

	// Alerts
	if smtp := cfg.Alerts.SMTP; smtp != nil {
		if smtp.Host == "" {
			errs = append(errs, errors.New("alerts.smtp.host is required"))
		}
		if smtp.Port < 0 || smtp.Port > 65535 {
			errs = append(errs, fmt.Errorf("alerts.smtp.port %d is out of range", smtp.Port))
		}
		if smtp.From == "" {
			errs = append(errs, errors.New("alerts.smtp.from is required"))
		}
		if len(smtp.To) == 0 {
			errs = append(errs, errors.New("alerts.smtp.to must list at least one recipient"))
		}
	}

	return errors.Join(errs...)
}

// validateRecognizerEntry checks one recognizer entry; prefix names the YAML
// path in error messages.
func validateRecognizerEntry(prefix string, entry ProviderEntry) []error {
	var errs []error
	if entry.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		return errs
	}
	if !slices.Contains(ValidRecognizerNames, entry.Name) {
		slog.Warn("unknown recognizer name — may be a typo or third-party provider",
			"name", entry.Name,
			"known", ValidRecognizerNames,
		)
	}
	if entry.Name == "whisper-native" && entry.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required for whisper-native", prefix))
	}
	if entry.Name == "vosk" && entry.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for vosk", prefix))
	}
	return errs
}
