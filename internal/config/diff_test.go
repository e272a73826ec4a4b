package config_test

import (
	"testing"

	"github.com/sentavox/sentavox/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Recognizer: config.ProviderEntry{Name: "mock"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.SentimentChanged || d.IdleTimeoutChanged {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.SentimentChanged {
		t.Error("SentimentChanged should be false")
	}
}

func TestDiff_Sentiment(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Sentiment.NegThreshold = -0.3
	new.Sentiment.SustainedDurationSec = 10

	d := config.Diff(old, new)
	if !d.SentimentChanged {
		t.Fatal("SentimentChanged should be true")
	}
	if d.NewSentiment.NegThreshold != -0.3 || d.NewSentiment.SustainedDurationSec != 10 {
		t.Errorf("NewSentiment = %+v", d.NewSentiment)
	}
}

func TestDiff_IdleTimeout(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Session.IdleTimeoutSec = 120

	d := config.Diff(old, new)
	if !d.IdleTimeoutChanged {
		t.Fatal("IdleTimeoutChanged should be true")
	}
	if d.NewIdleTimeout.IdleTimeoutSec != 120 {
		t.Errorf("NewIdleTimeout = %+v", d.NewIdleTimeout)
	}
}
