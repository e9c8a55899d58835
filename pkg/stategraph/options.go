package stategraph

import (
	"log/slog"

	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
	"github.com/clinigraph/clinigraph/pkg/stategraph/observability"
)

// runConfig collects per-run settings. Zero-value fields fall back to the
// defaults from defaultRunConfig.
type runConfig struct {
	maxSteps int
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	tracing  bool

	checkpointStore checkpoint.Store
	checkpointFatal bool
	runID           string
	sequence        int
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps: 1000,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// WithMaxSteps caps how many stages a run may execute before aborting with
// a MaxStepsError. Default 1000. Guards against routing cycles.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithRunLogger sets the logger used for run- and stage-level log lines.
// When unset, the Context's logger is used.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics for this run, using the global
// meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and each stage, using
// the global tracer provider.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracing = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithCheckpointStore snapshots state to store after every completed stage.
// Requires WithRunID (or a Context built with WithContextRunID).
func WithCheckpointStore(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithRunID keys checkpoints for this run. Overrides the Context run ID for
// checkpointing purposes.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointFatal makes checkpoint failures abort the run instead of
// being logged and skipped.
func WithCheckpointFatal() RunOption {
	return func(c *runConfig) {
		c.checkpointFatal = true
	}
}
