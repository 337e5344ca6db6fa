// Package observe provides application-wide observability primitives for
// currybot: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the operations listener.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all currybot metrics.
const meterName = "github.com/MrWong99/currybot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// DispatchDuration tracks the time from a resolved trigger to both the
	// stream start and the stats write having completed.
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// Plays counts dispatched triggers. Use with attributes:
	//   attribute.String("match", "exact"|"soft"), attribute.String("status", ...)
	Plays metric.Int64Counter

	// Misses counts trigger candidates that matched nothing.
	Misses metric.Int64Counter

	// Commands counts administrative commands. Use with attribute:
	//   attribute.String("command", ...)
	Commands metric.Int64Counter

	// CatalogReloads counts reload attempts that read the source. Use with
	// attribute attribute.String("status", ...).
	CatalogReloads metric.Int64Counter

	// --- Error counters ---

	// StatsErrors counts failed stats writes.
	StatsErrors metric.Int64Counter

	// --- Gauges ---

	// CatalogSize is the number of triggers in the published catalog.
	CatalogSize metric.Int64Gauge

	// ActiveSessions tracks the number of live voice connections (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// dispatch latency: a file write plus an ffmpeg start.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DispatchDuration, err = m.Float64Histogram("currybot.dispatch.duration",
		metric.WithDescription("Latency of starting a clip and recording its play."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Plays, err = m.Int64Counter("currybot.plays",
		metric.WithDescription("Total dispatched triggers by match kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Misses, err = m.Int64Counter("currybot.misses",
		metric.WithDescription("Total messages that matched no trigger."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("currybot.commands",
		metric.WithDescription("Total administrative commands by command."),
	); err != nil {
		return nil, err
	}
	if met.CatalogReloads, err = m.Int64Counter("currybot.catalog.reloads",
		metric.WithDescription("Total catalog reload attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.StatsErrors, err = m.Int64Counter("currybot.stats.errors",
		metric.WithDescription("Total failed play counter writes."),
	); err != nil {
		return nil, err
	}

	if met.CatalogSize, err = m.Int64Gauge("currybot.catalog.size",
		metric.WithDescription("Number of triggers in the published catalog."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("currybot.active_sessions",
		metric.WithDescription("Number of live voice connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("currybot.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// status maps an error to the "status" attribute value.
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordPlay records one dispatched trigger. err is the playback outcome.
func (m *Metrics) RecordPlay(ctx context.Context, exact bool, err error) {
	match := "soft"
	if exact {
		match = "exact"
	}
	m.Plays.Add(ctx, 1, metric.WithAttributes(
		attribute.String("match", match),
		attribute.String("status", status(err)),
	))
}

// RecordMiss records a message that resolved to no trigger.
func (m *Metrics) RecordMiss(ctx context.Context) {
	m.Misses.Add(ctx, 1)
}

// RecordCommand records an administrative command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordCatalogReload records a reload attempt and, on success, the new
// catalog size.
func (m *Metrics) RecordCatalogReload(ctx context.Context, size int, err error) {
	m.CatalogReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(err))))
	if err == nil {
		m.CatalogSize.Record(ctx, int64(size))
	}
}

// RecordStatsError records a failed stats write.
func (m *Metrics) RecordStatsError(ctx context.Context) {
	m.StatsErrors.Add(ctx, 1)
}

// RecordDispatch records how long a dispatch fan-out took.
func (m *Metrics) RecordDispatch(ctx context.Context, d time.Duration) {
	m.DispatchDuration.Record(ctx, d.Seconds())
}

// RecordVoiceConnected moves the active session gauge when the voice
// connection comes up or goes down.
func (m *Metrics) RecordVoiceConnected(ctx context.Context, up bool) {
	delta := int64(-1)
	if up {
		delta = 1
	}
	m.ActiveSessions.Add(ctx, delta)
}
