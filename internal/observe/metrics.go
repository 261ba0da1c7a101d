// Package observe provides toolhub's observability primitives: OpenTelemetry
// metrics and tracing, trace-aware structured logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] uses the global meter
// provider; tests should use [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every toolhub instrument.
const meterName = "github.com/MrWong99/toolhub"

// Metrics holds every OpenTelemetry instrument used by toolhub.
type Metrics struct {
	// QueryDuration tracks ranking query latency including embedding.
	QueryDuration metric.Float64Histogram

	// EmbeddingDuration tracks single backend embedding calls. Attributes:
	//   attribute.String("backend", ...)
	EmbeddingDuration metric.Float64Histogram

	// ToolExecutionDuration tracks invocation latency. Attributes:
	//   attribute.String("tool", ...), attribute.String("mode", ...)
	ToolExecutionDuration metric.Float64Histogram

	// EmbeddingRequests counts backend calls. Attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	EmbeddingRequests metric.Int64Counter

	// EmbeddingCacheLookups counts description-vector lookups. Attributes:
	//   attribute.String("result", "hit"|"store"|"miss")
	EmbeddingCacheLookups metric.Int64Counter

	// ToolCalls counts invocations. Attributes:
	//   attribute.String("tool", ...), attribute.String("status", "ok"|"error"|"timeout")
	ToolCalls metric.Int64Counter

	// ToolRenames counts registry collisions resolved by renaming.
	ToolRenames metric.Int64Counter

	// RegisteredTools tracks the number of tools in all live registries.
	RegisteredTools metric.Int64UpDownCounter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks API request latency. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Embedding and tool
// calls range from sub-millisecond (hashed backend, builtin tools) to the
// 30s invocation default.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.QueryDuration, err = histogram("toolhub.query.duration",
		"Latency of ranking queries."); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = histogram("toolhub.embedding.duration",
		"Latency of embedding backend calls."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("toolhub.tool_execution.duration",
		"Latency of tool invocations."); err != nil {
		return nil, err
	}

	if met.EmbeddingRequests, err = m.Int64Counter("toolhub.embedding.requests",
		metric.WithDescription("Embedding backend calls by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingCacheLookups, err = m.Int64Counter("toolhub.embedding.cache_lookups",
		metric.WithDescription("Description vector lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("toolhub.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolRenames, err = m.Int64Counter("toolhub.registry.renames",
		metric.WithDescription("Tool name collisions resolved by renaming."),
	); err != nil {
		return nil, err
	}
	if met.RegisteredTools, err = m.Int64UpDownCounter("toolhub.registry.tools",
		metric.WithDescription("Number of registered tools."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("toolhub.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("toolhub.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on
// [otel.GetMeterProvider]. It panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall counts one invocation of tool with the given status.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}

// RecordEmbeddingRequest counts one backend call.
func (m *Metrics) RecordEmbeddingRequest(ctx context.Context, backend, status string) {
	m.EmbeddingRequests.Add(ctx, 1, metric.WithAttributes(Attr("backend", backend), Attr("status", status)))
}

// RecordCacheLookup counts one description vector lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.EmbeddingCacheLookups.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}
