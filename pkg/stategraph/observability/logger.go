// Package observability instruments graph runs: structured logging via
// slog, metrics and tracing via OpenTelemetry. Everything is opt-in; the
// no-op implementations cost nothing when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("run starting", slog.String("run_id", runID))
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, elapsed time.Duration, stages int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.Int("stages_executed", stages),
	)
}

// LogRunError logs run failure with the stage it stopped at.
func LogRunError(logger *slog.Logger, runID string, err error, elapsed time.Duration, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("last_stage", lastStage),
	)
}

// LogNodeStart logs stage execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting", slog.String("node_id", nodeID))
}

// LogNodeComplete logs successful stage completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, elapsed time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("node_id", nodeID),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
}

// LogNodeError logs stage failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs a saved state snapshot.
func LogCheckpoint(logger *slog.Logger, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a non-fatal checkpoint failure.
func LogCheckpointError(logger *slog.Logger, nodeID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
