// Package observe provides application-wide observability primitives for
// Polly: OpenTelemetry metrics with a Prometheus exporter bridge so that
// metrics are scraped via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Polly metrics.
const meterName = "github.com/pollyconnect/polly"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks the time from receiving an utterance to finishing
	// the spoken reply.
	TurnDuration metric.Float64Histogram

	// Intents counts classified intents. Use with attribute:
	//   attribute.String("intent", ...)
	Intents metric.Int64Counter

	// StoriesRecorded counts finalized story recordings.
	StoriesRecorded metric.Int64Counter

	// StoriesDiscarded counts captures dropped below the minimum length.
	StoriesDiscarded metric.Int64Counter

	// DistressRedirects counts gentle redirects triggered by distressing
	// keywords.
	DistressRedirects metric.Int64Counter

	// Notifications counts family notification deliveries. Use with
	// attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	Notifications metric.Int64Counter

	// SpeakFailures counts speech output failures.
	SpeakFailures metric.Int64Counter

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ConnectedDevices tracks the number of devices connected to the
	// websocket gateway.
	ConnectedDevices metric.Int64UpDownCounter
}

// turnBuckets defines histogram bucket boundaries (in seconds) for
// conversation turns, which include deliberately slow speech playback.
var turnBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("polly.turn.duration",
		metric.WithDescription("Time from utterance receipt to completed reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("polly.intents",
		metric.WithDescription("Total classified intents by category."),
	); err != nil {
		return nil, err
	}
	if met.StoriesRecorded, err = m.Int64Counter("polly.stories.recorded",
		metric.WithDescription("Total finalized story recordings."),
	); err != nil {
		return nil, err
	}
	if met.StoriesDiscarded, err = m.Int64Counter("polly.stories.discarded",
		metric.WithDescription("Total captures discarded below the minimum length."),
	); err != nil {
		return nil, err
	}
	if met.DistressRedirects, err = m.Int64Counter("polly.distress.redirects",
		metric.WithDescription("Total gentle redirects triggered by distressing keywords."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("polly.notifications",
		metric.WithDescription("Total family notification deliveries by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.SpeakFailures, err = m.Int64Counter("polly.speak.failures",
		metric.WithDescription("Total speech output failures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("polly.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedDevices, err = m.Int64UpDownCounter("polly.connected_devices",
		metric.WithDescription("Number of devices connected to the gateway."),
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

// RecordIntent records a classified intent counter increment.
func (m *Metrics) RecordIntent(ctx context.Context, intent string) {
	m.Intents.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordNotification records a notification delivery counter increment.
func (m *Metrics) RecordNotification(ctx context.Context, kind, status string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
