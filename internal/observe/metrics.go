// Package observe provides application-wide observability primitives for
// Sentavox: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Sentavox metrics.
const meterName = "github.com/sentavox/sentavox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognizeDuration tracks per-window speech recognition latency.
	RecognizeDuration metric.Float64Histogram

	// ScoreDuration tracks per-segment sentiment scoring latency.
	ScoreDuration metric.Float64Histogram

	// --- Counters ---

	// FramesReceived counts inbound binary audio frames. Use with attribute:
	//   attribute.String("status", "ok"|"malformed"|"unknown_session")
	FramesReceived metric.Int64Counter

	// WindowsDropped counts audio windows discarded under backpressure.
	WindowsDropped metric.Int64Counter

	// TranscriptSegments counts final transcript segments. Use with attribute:
	//   attribute.String("provider", ...)
	TranscriptSegments metric.Int64Counter

	// SentimentSamples counts scored samples. Use with attribute:
	//   attribute.String("label", "positive"|"negative"|"neutral")
	SentimentSamples metric.Int64Counter

	// AlertsFired counts sustained-negativity alerts raised.
	AlertsFired metric.Int64Counter

	// AlertDeliveries counts notification outcomes. Use with attribute:
	//   attribute.String("status", "sent"|"failed"|"dropped")
	AlertDeliveries metric.Int64Counter

	// --- Error counters ---

	// RecognizerErrors counts recognizer failures by provider.
	RecognizerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live monitoring sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for audio-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizeDuration, err = m.Float64Histogram("sentavox.recognize.duration",
		metric.WithDescription("Latency of per-window speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoreDuration, err = m.Float64Histogram("sentavox.score.duration",
		metric.WithDescription("Latency of per-segment sentiment scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesReceived, err = m.Int64Counter("sentavox.frames.received",
		metric.WithDescription("Total inbound audio frames by status."),
	); err != nil {
		return nil, err
	}
	if met.WindowsDropped, err = m.Int64Counter("sentavox.windows.dropped",
		metric.WithDescription("Total audio windows discarded under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("sentavox.transcript.segments",
		metric.WithDescription("Total final transcript segments by provider."),
	); err != nil {
		return nil, err
	}
	if met.SentimentSamples, err = m.Int64Counter("sentavox.sentiment.samples",
		metric.WithDescription("Total scored sentiment samples by label."),
	); err != nil {
		return nil, err
	}
	if met.AlertsFired, err = m.Int64Counter("sentavox.alerts.fired",
		metric.WithDescription("Total sustained-negativity alerts raised."),
	); err != nil {
		return nil, err
	}
	if met.AlertDeliveries, err = m.Int64Counter("sentavox.alerts.deliveries",
		metric.WithDescription("Total alert notification outcomes by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RecognizerErrors, err = m.Int64Counter("sentavox.recognizer.errors",
		metric.WithDescription("Total recognizer failures by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sentavox.active_sessions",
		metric.WithDescription("Number of live monitoring sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sentavox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one inbound frame with the standard status attribute.
func (m *Metrics) RecordFrame(ctx context.Context, status string) {
	m.FramesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSegment records one final transcript segment for a provider.
func (m *Metrics) RecordSegment(ctx context.Context, provider string) {
	m.TranscriptSegments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSample records one scored sentiment sample with its label.
func (m *Metrics) RecordSample(ctx context.Context, label string) {
	m.SentimentSamples.Add(ctx, 1,
		metric.WithAttributes(attribute.String("label", label)),
	)
}

// RecordAlertDelivery records one notification outcome.
func (m *Metrics) RecordAlertDelivery(ctx context.Context, status string) {
	m.AlertDeliveries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRecognizerError records one recognizer failure for a provider.
func (m *Metrics) RecordRecognizerError(ctx context.Context, provider string) {
	m.RecognizerErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
