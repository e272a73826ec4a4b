// Command sentavox is the main entry point for the Sentavox call-sentiment
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentavox/sentavox/internal/alert"
	"github.com/sentavox/sentavox/internal/alert/smtpmail"
	"github.com/sentavox/sentavox/internal/config"
	"github.com/sentavox/sentavox/internal/framebuf"
	"github.com/sentavox/sentavox/internal/health"
	"github.com/sentavox/sentavox/internal/observe"
	"github.com/sentavox/sentavox/internal/resilience"
	"github.com/sentavox/sentavox/internal/server"
	"github.com/sentavox/sentavox/internal/session"
	"github.com/sentavox/sentavox/internal/trend"
	"github.com/sentavox/sentavox/internal/vocab"
	"github.com/sentavox/sentavox/pkg/recognizer"
	recmock "github.com/sentavox/sentavox/pkg/recognizer/mock"
	"github.com/sentavox/sentavox/pkg/recognizer/vosk"
	"github.com/sentavox/sentavox/pkg/recognizer/whisper"
	"github.com/sentavox/sentavox/pkg/sentiment"
	sentmock "github.com/sentavox/sentavox/pkg/sentiment/mock"
	"github.com/sentavox/sentavox/pkg/sentiment/vader"
)

// version is stamped by the build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sentavox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sentavox: %v\n", err)
		}
		return 1
	}

	// The level var lets the config watcher retune verbosity at runtime.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("sentavox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"recognizer", cfg.Recognizer.Name,
		"scorer", cfg.Sentiment.Scorer,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Recognizer and scorer ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildRecognizer(cfg.Recognizer, reg)
	if err != nil {
		slog.Error("failed to create recognizer", "name", cfg.Recognizer.Name, "err", err)
		return 1
	}
	scorer, err := reg.CreateScorer(cfg.Sentiment)
	if err != nil {
		slog.Error("failed to create scorer", "name", cfg.Sentiment.Scorer, "err", err)
		return 1
	}

	// ── Alerting ──────────────────────────────────────────────────────────────
	var probes []health.Probe
	var notifier alert.Notifier
	if smtp := cfg.Alerts.SMTP; smtp != nil {
		mailer, err := smtpmail.New(smtpmail.Config{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			To:       smtp.To,
			StartTLS: smtp.StartTLS,
		})
		if err != nil {
			slog.Error("failed to create smtp mailer", "err", err)
			return 1
		}
		notifier = mailer
		probes = append(probes, health.Probe{Name: "smtp", Check: mailer.Healthy})
		slog.Info("smtp alert delivery enabled", "host", smtp.Host, "recipients", len(smtp.To))
	} else {
		slog.Info("smtp alert delivery disabled — alerts go to subscribers only")
	}

	dispatcherCfg := alert.DispatcherConfig{
		Notifier: notifier,
		Cooldown: cfg.Sentiment.AlertCooldown(),
		Metrics:  metrics,
	}
	if smtp := cfg.Alerts.SMTP; smtp != nil {
		dispatcherCfg.MinInterval = smtp.MinInterval()
	}
	dispatcher := alert.NewDispatcher(dispatcherCfg)
	defer dispatcher.Close()

	var corrector *vocab.Corrector
	if len(cfg.Vocabulary) > 0 {
		corrector = vocab.NewCorrector(cfg.Vocabulary)
		slog.Info("vocabulary correction enabled", "terms", corrector.TermCount())
	}

	// ── Session manager ───────────────────────────────────────────────────────
	manager := session.NewManager(session.ManagerConfig{
		Provider:     provider,
		ProviderName: cfg.Recognizer.Name,
		Scorer:       scorer,
		Corrector:    corrector,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Buffer: framebuf.Config{
			WindowBytes: cfg.Audio.MaxWindowBytes,
			MaxLatency:  cfg.Audio.MaxWindowLatency(),
			QueueSize:   cfg.Audio.WindowQueueSize,
		},
		Trend:       trendConfig(cfg.Sentiment),
		SampleRate:  cfg.Audio.SampleRateHz,
		Language:    cfg.Recognizer.Language,
		IdleTimeout: cfg.Session.IdleTimeout(),
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SentimentChanged {
			manager.SetTrendConfig(trendConfig(d.NewSentiment))
			slog.Info("sentiment thresholds changed — applies to new sessions",
				"neg_threshold", d.NewSentiment.NegThreshold,
				"sustained_sec", d.NewSentiment.SustainedDurationSec,
			)
		}
		if d.IdleTimeoutChanged {
			manager.SetIdleTimeout(d.NewIdleTimeout.IdleTimeout())
			slog.Info("session idle timeout changed — applies to new sessions",
				"idle_timeout_sec", d.NewIdleTimeout.IdleTimeoutSec,
			)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP + websocket server ───────────────────────────────────────────────
	if hc, ok := provider.(recognizer.HealthChecker); ok {
		probes = append(probes, health.Probe{Name: "recognizer", Check: hc.Healthy})
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Manager:    manager,
		Metrics:    metrics,
		Health:     health.New(probes),
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the recognizers and scorers that ship with
// Sentavox into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(entry.Options, "max_utterance_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxUtteranceMs(ms))
		}
		return whisper.New(entry.Model, opts...)
	})

	reg.RegisterRecognizer("vosk", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		var opts []vosk.Option
		if optBool(entry.Options, "words") {
			opts = append(opts, vosk.WithWords())
		}
		return vosk.New(entry.BaseURL, opts...), nil
	})

	// The mock recognizer produces no transcripts; it exists so the full
	// pipeline can be exercised without a model.
	reg.RegisterRecognizer("mock", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		return &recmock.Provider{}, nil
	})

	reg.RegisterScorer("vader", func(cfg config.SentimentConfig) (sentiment.Scorer, error) {
		return vader.New(), nil
	})
	reg.RegisterScorer("mock", func(cfg config.SentimentConfig) (sentiment.Scorer, error) {
		return &sentmock.Scorer{}, nil
	})
}

// buildRecognizer creates the configured recognizer, wrapping it in a
// failover group when fallback backends are configured.
func buildRecognizer(entry config.ProviderEntry, reg *config.Registry) (recognizer.Provider, error) {
	primary, err := reg.CreateRecognizer(entry)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewRecognizerFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateRecognizer(fb)
		if err != nil {
			return nil, fmt.Errorf("create fallback recognizer %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
		slog.Info("fallback recognizer registered", "name", fb.Name)
	}
	return group, nil
}

func trendConfig(s config.SentimentConfig) trend.Config {
	return trend.Config{
		NegThreshold:      s.NegThreshold,
		SustainedDuration: s.SustainedDuration(),
		Window:            s.WindowDuration(),
	}
}

// optInt extracts an int from a provider Options map[string]any. YAML decodes
// small numbers as int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	if v, ok := opts[key].(int); ok {
		return v
	}
	return 0
}

func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	v, _ := opts[key].(bool)
	return v
}
