// Package observe holds the daemon's OpenTelemetry instruments, span and
// log helpers, and the diagnostics HTTP middleware. [InitProvider] exports
// the instruments for Prometheus scraping. Tests build [Metrics] on their own
// meter provider with [NewMetrics].
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voice-cli metrics.
const meterName = "github.com/MrWong99/voicecli"

// Session outcomes reported on [Metrics.Sessions].
const (
	OutcomeSuccess   = "success"
	OutcomeEmpty     = "empty"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the daemon.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks one engine's transcription latency. Attributes:
	//   attribute.String("engine", "a"|"b"), attribute.String("provider", ...)
	STTDuration metric.Float64Histogram

	// MergeDuration tracks arbitration latency, short-circuits included.
	MergeDuration metric.Float64Histogram

	// SessionDuration tracks the time from stop to delivered transcript.
	SessionDuration metric.Float64Histogram

	// RecordedAudio tracks the length of captured clips in seconds.
	RecordedAudio metric.Float64Histogram

	// --- Counters ---

	// Sessions counts finished dictation sessions. Attribute:
	//   attribute.String("outcome", Outcome*)
	Sessions metric.Int64Counter

	// EngineErrors counts failed transcription calls. Attributes:
	//   attribute.String("engine", ...), attribute.String("provider", ...)
	EngineErrors metric.Int64Counter

	// BreakerTransitions counts engine circuit breaker state changes.
	//   attribute.String("engine", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// StateTransitions counts daemon status changes. Attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// MergeCalls counts merge resolutions by the rule that decided them.
	//   attribute.String("source", ...)
	MergeCalls metric.Int64Counter

	// IgnoredTriggers counts hotkey presses that arrived while busy.
	IgnoredTriggers metric.Int64Counter

	// --- Gauges ---

	// Recording is 1 while the microphone is open.
	Recording metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics request processing time.
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// Histogram boundaries in seconds. Network round trips use latencyBuckets;
// captured clips use clipBuckets.
var (
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}
	clipBuckets    = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300}
)

// instruments creates instruments on one meter and keeps every creation
// error, so NewMetrics reports all of them at once.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:     b.seconds("voicecli.stt.duration", "Latency of one speech engine transcription.", latencyBuckets),
		MergeDuration:   b.seconds("voicecli.merge.duration", "Latency of transcript arbitration.", latencyBuckets),
		SessionDuration: b.seconds("voicecli.session.duration", "Time from recording stop to delivered transcript.", latencyBuckets),
		RecordedAudio:   b.seconds("voicecli.recording.length", "Length of captured clips.", clipBuckets),

		Sessions:           b.counter("voicecli.sessions", "Finished dictation sessions by outcome."),
		EngineErrors:       b.counter("voicecli.engine.errors", "Failed transcription calls by engine and provider."),
		BreakerTransitions: b.counter("voicecli.engine.breaker.transitions", "Engine circuit breaker state changes."),
		StateTransitions:   b.counter("voicecli.state.transitions", "Daemon status transitions."),
		MergeCalls:         b.counter("voicecli.merge.calls", "Merge resolutions by deciding rule."),
		IgnoredTriggers:    b.counter("voicecli.triggers.ignored", "Triggers dropped because a session was in flight."),

		Recording: b.gauge("voicecli.recording", "1 while the microphone is capturing."),

		HTTPRequestDuration: b.seconds("voicecli.http.request.duration", "Diagnostics HTTP request latency by method and path.", nil),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds [Metrics] on the global meter provider. It is
// the fallback for components constructed without instruments.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordSession increments the session counter for outcome.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEngineError increments the engine error counter.
func (m *Metrics) RecordEngineError(ctx context.Context, engine, provider string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("provider", provider),
		),
	)
}

// RecordTransition increments the state transition counter.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordBreaker counts one circuit breaker state change for engine.
func (m *Metrics) RecordBreaker(ctx context.Context, engine, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("to", to),
		),
	)
}

// RecordMerge records one merge resolution and its latency.
func (m *Metrics) RecordMerge(ctx context.Context, source string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.MergeCalls.Add(ctx, 1, attrs)
	m.MergeDuration.Record(ctx, seconds, attrs)
}
