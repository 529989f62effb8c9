// Package observe provides observability primitives for Sotto: OpenTelemetry
// metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Sotto metrics.
const meterName = "github.com/sotto-app/sotto"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// WakeToOverlay tracks the time from wake detection to the overlay-show
	// event. The responsiveness budget for this path is 200 ms.
	WakeToOverlay metric.Float64Histogram

	// SpeechToFirstText tracks the time from the first speech-classified
	// frame of a session to the first emitted transcription fragment.
	SpeechToFirstText metric.Float64Histogram

	// SessionDuration tracks the wall-clock length of dictation sessions.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// Sessions counts completed dictation cycles. Use with attribute:
	//   attribute.String("outcome", "completed"|"cancelled"|"failed")
	Sessions metric.Int64Counter

	// InjectedChars counts characters actually applied to the focus target.
	InjectedChars metric.Int64Counter

	// DroppedFrames counts audio frames evicted from the bounded fan-out
	// under backpressure.
	DroppedFrames metric.Int64Counter

	// StaleFragments counts transcription fragments dropped because they
	// arrived for a closed session or out of sequence order.
	StaleFragments metric.Int64Counter

	// EngineErrors counts reported engine errors. Use with attribute:
	//   attribute.String("kind", ...)
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSession tracks whether a dictation session is live (0 or 1).
	ActiveSession metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the dictation pipeline's sub-second budgets.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.WakeToOverlay, err = m.Float64Histogram("sotto.wake_to_overlay.duration",
		metric.WithDescription("Time from wake detection to overlay-show."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechToFirstText, err = m.Float64Histogram("sotto.speech_to_first_text.duration",
		metric.WithDescription("Time from first speech frame to first transcription fragment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("sotto.session.duration",
		metric.WithDescription("Wall-clock length of dictation sessions."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Sessions, err = m.Int64Counter("sotto.sessions",
		metric.WithDescription("Completed dictation cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.InjectedChars, err = m.Int64Counter("sotto.injected.chars",
		metric.WithDescription("Characters applied to the focused control."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("sotto.audio.dropped_frames",
		metric.WithDescription("Audio frames evicted from the bounded fan-out."),
	); err != nil {
		return nil, err
	}
	if met.StaleFragments, err = m.Int64Counter("sotto.stt.stale_fragments",
		metric.WithDescription("Transcription fragments dropped as stale or out of order."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("sotto.engine.errors",
		metric.WithDescription("Reported engine errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSession, err = m.Int64UpDownCounter("sotto.active_session",
		metric.WithDescription("Whether a dictation session is currently live."),
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

// RecordSession records a completed dictation cycle with its outcome and
// duration in seconds.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, seconds float64) {
	m.Sessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.SessionDuration.Record(ctx, seconds)
}

// RecordEngineError records an engine error counter increment by kind.
func (m *Metrics) RecordEngineError(ctx context.Context, kind string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
