package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters_FansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("pipeline started", "patient_id", "p1")

	assert.Contains(t, stderr.String(), "pipeline started")
	assert.Contains(t, stderr.String(), "patient_id=p1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "pipeline started", entry["msg"])
	assert.Equal(t, "p1", entry["patient_id"])
}

func TestSetupLoggerWithWriters_RespectsLevel(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Info("suppressed")
	logger.Warn("kept")

	assert.NotContains(t, stderr.String(), "suppressed")
	assert.Contains(t, stderr.String(), "kept")
}

func TestSetupLogger_NoFileConfigured(t *testing.T) {
	logger, cleanup := SetupLogger(Config{LogLevel: slog.LevelInfo})
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
