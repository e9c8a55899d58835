package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records run and stage metrics. Use NewMetricsRecorder for
// OpenTelemetry-backed metrics or NoopMetrics when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one stage execution with duration and
	// error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records the completion of a full run.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordCheckpoint records a saved state snapshot.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

type otelMetrics struct {
	stageRuns    metric.Int64Counter
	stageLatency metric.Float64Histogram
	stageErrors  metric.Int64Counter
	graphRuns    metric.Int64Counter
	graphLatency metric.Float64Histogram
	snapshotSize metric.Int64Histogram
}

var (
	metricsInit sync.Once
	metricsInst *otelMetrics
	metricsErr  error
)

// NewMetricsRecorder returns an OpenTelemetry-backed recorder using the
// global meter provider. Configure the provider first:
//
//	otel.SetMeterProvider(provider)
//
// Falls back to NoopMetrics if instrument creation fails.
func NewMetricsRecorder() MetricsRecorder {
	metricsInit.Do(func() {
		metricsInst, metricsErr = newOtelMetrics()
	})
	if metricsErr != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", metricsErr.Error()))
		return NoopMetrics{}
	}
	return metricsInst
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("clinigraph")

	stageRuns, err := meter.Int64Counter("clinigraph.stage.executions",
		metric.WithDescription("Number of stage executions"))
	if err != nil {
		return nil, err
	}
	stageLatency, err := meter.Float64Histogram("clinigraph.stage.latency_ms",
		metric.WithDescription("Stage execution latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	stageErrors, err := meter.Int64Counter("clinigraph.stage.errors",
		metric.WithDescription("Number of stage execution errors"))
	if err != nil {
		return nil, err
	}
	graphRuns, err := meter.Int64Counter("clinigraph.run.count",
		metric.WithDescription("Number of graph runs"))
	if err != nil {
		return nil, err
	}
	graphLatency, err := meter.Float64Histogram("clinigraph.run.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	snapshotSize, err := meter.Int64Histogram("clinigraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageRuns:    stageRuns,
		stageLatency: stageLatency,
		stageErrors:  stageErrors,
		graphRuns:    graphRuns,
		graphLatency: graphLatency,
		snapshotSize: snapshotSize,
	}, nil
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.stageRuns.Add(ctx, 1, attrs)
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.stageErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.snapshotSize.Record(ctx, sizeBytes,
		metric.WithAttributes(attribute.String("node_id", nodeID)))
}
