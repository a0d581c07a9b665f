// Package observe provides the engine's observability primitives:
// OpenTelemetry metrics, a Prometheus exporter bridge, and structured
// logging helpers. Every instrument here is content-free — no attribute
// ever carries observation text, entity names, or vectors, only operation
// names, outcome labels, and counts.
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

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/karrolcia/hippocampus-go/pkg/engine"

// Operation names used as the "operation" attribute on engine metrics.
const (
	OpRemember    = "remember"
	OpRecall      = "recall"
	OpContext     = "context"
	OpUpdate      = "update"
	OpForget      = "forget"
	OpMerge       = "merge"
	OpConsolidate = "consolidate"
	OpExport      = "export"
)

// Outcome labels used as the "outcome" attribute on [Metrics.EngineOperationTotal].
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Dedup decision labels used as the "decision" attribute on [Metrics.DedupDecisions].
const (
	DecisionInserted = "inserted"
	DecisionSkipped  = "skipped"
	DecisionReplaced = "replaced"
)

// latencyBuckets defines histogram bucket boundaries (in seconds), sized
// for embedder inference and single-file SQLite operations rather than
// network RPCs.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// Metrics holds every instrument the engine emits. All fields are safe for
// concurrent use — the underlying OTel types handle their own
// synchronization.
type Metrics struct {
	// EngineOperationDuration tracks how long each engine operation takes.
	// Use with attribute.String("operation", ...), attribute.String("outcome", ...).
	EngineOperationDuration metric.Float64Histogram

	// EngineOperationTotal counts engine operations by operation and outcome.
	EngineOperationTotal metric.Int64Counter

	// DedupDecisions counts write-path dedup outcomes by decision.
	DedupDecisions metric.Int64Counter

	// EmbedderDuration tracks embedder call latency.
	EmbedderDuration metric.Float64Histogram

	// EmbedderFailures counts failed embedder calls.
	EmbedderFailures metric.Int64Counter
}

// NewMetrics creates a fully initialized [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EngineOperationDuration, err = m.Float64Histogram("hippocampus.engine.operation.duration",
		metric.WithDescription("Duration of an engine operation, in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EngineOperationTotal, err = m.Int64Counter("hippocampus.engine.operation.total",
		metric.WithDescription("Count of engine operations by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DedupDecisions, err = m.Int64Counter("hippocampus.engine.dedup.decisions",
		metric.WithDescription("Count of write-path dedup decisions."),
	); err != nil {
		return nil, err
	}
	if met.EmbedderDuration, err = m.Float64Histogram("hippocampus.embedder.duration",
		metric.WithDescription("Duration of an embedder call, in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedderFailures, err = m.Int64Counter("hippocampus.embedder.failures",
		metric.WithDescription("Count of failed embedder calls."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordOperation records one operation's duration and outcome.
func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("operation", operation), attribute.String("outcome", outcome))
	m.EngineOperationDuration.Record(ctx, seconds, attrs)
	m.EngineOperationTotal.Add(ctx, 1, attrs)
}

// RecordDedupDecision records one write-path dedup outcome.
func (m *Metrics) RecordDedupDecision(ctx context.Context, decision string) {
	m.DedupDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordEmbedderCall records one embedder call's duration and whether it
// failed.
func (m *Metrics) RecordEmbedderCall(ctx context.Context, seconds float64, failed bool) {
	m.EmbedderDuration.Record(ctx, seconds)
	if failed {
		m.EmbedderFailures.Add(ctx, 1)
	}
}
