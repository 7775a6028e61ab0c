// Package observe provides application-wide observability primitives for
// Voicebridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Voicebridge metrics.
const meterName = "github.com/searshs/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BridgeSessionDuration is the histogram for the lifetime of a Realtime
	// Bridge call. The Bridge does not record to it.
	BridgeSessionDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool-dispatch latency (scheduling,
	// customer lookup, image intake).
	ToolExecutionDuration metric.Float64Histogram

	// CollaboratorCallDuration tracks latency of individual collaborator
	// calls (scheduler/customer directory/image intake), independent of the
	// tool-dispatch wrapper around them.
	CollaboratorCallDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BridgeSessionsEnded counts completed bridge sessions. Use with
	// attribute: attribute.String("reason", ...)
	BridgeSessionsEnded metric.Int64Counter

	// --- Error counters ---

	// CollaboratorErrors counts collaborator-call failures. Use with
	// attributes: attribute.String("collaborator", ...), attribute.String("op", ...)
	CollaboratorErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live calls currently bridged.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both sub-second tool calls and multi-minute phone calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BridgeSessionDuration, err = m.Float64Histogram("voicebridge.bridge.session.duration",
		metric.WithDescription("Duration of a Realtime Bridge call, from media accept to carrier/model disconnect."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("voicebridge.tool_execution.duration",
		metric.WithDescription("Latency of a tool-dispatch call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorCallDuration, err = m.Float64Histogram("voicebridge.collaborator.call.duration",
		metric.WithDescription("Latency of a collaborator call (scheduler, customer directory, image intake)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("voicebridge.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BridgeSessionsEnded, err = m.Int64Counter("voicebridge.bridge.sessions_ended",
		metric.WithDescription("Total bridge sessions that have ended, by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CollaboratorErrors, err = m.Int64Counter("voicebridge.collaborator.errors",
		metric.WithDescription("Total collaborator call errors by collaborator and operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicebridge.active_sessions",
		metric.WithDescription("Number of calls currently bridged to the model."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicebridge.http.request.duration",
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

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBridgeSessionEnded is a convenience method that records the end of a
// bridge session along with its total duration.
func (m *Metrics) RecordBridgeSessionEnded(ctx context.Context, reason string, duration float64) {
	m.BridgeSessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.BridgeSessionDuration.Record(ctx, duration,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordCollaboratorError is a convenience method that records a collaborator
// error counter increment.
func (m *Metrics) RecordCollaboratorError(ctx context.Context, collaborator, op string) {
	m.CollaboratorErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("collaborator", collaborator),
			attribute.String("op", op),
		),
	)
}
