package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SentimentChanged reports a change in thresholds, durations, or the
	// scorer. Applied to sessions opened after the reload.
	SentimentChanged bool
	NewSentiment     SentimentConfig

	// IdleTimeoutChanged reports a new session idle timeout, applied to
	// sessions opened after the reload.
	IdleTimeoutChanged bool
	NewIdleTimeout     SessionConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Sentiment != new.Sentiment {
		d.SentimentChanged = true
		d.NewSentiment = new.Sentiment
	}

	if old.Session != new.Session {
		d.IdleTimeoutChanged = true
		d.NewIdleTimeout = new.Session
	}

	return d
}
