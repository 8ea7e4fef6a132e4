package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Risk.FrequencySpikePerWeek)
	assert.InDelta(t, 0.5, cfg.Risk.AccuracyFloor, 1e-9)
	assert.InDelta(t, 0.15, cfg.Risk.LatencyTrendCeiling, 1e-9)

	sc := cfg.SessionConfig()
	assert.Equal(t, int64(180_000), sc.MinStage.Encounter)
	assert.Equal(t, int64(360_000), sc.MinStage.Analysis)
	assert.Equal(t, int64(180_000), sc.MinStage.Return)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEARNLOOP_LOG_LEVEL", "debug")
	t.Setenv("LEARNLOOP_STAGE_MIN_ENCOUNTER_S", "60")
	t.Setenv("LEARNLOOP_STAGE_MIN_ANALYSIS_S", "900")
	t.Setenv("LEARNLOOP_RISK_FREQUENCY_SPIKE", "14")
	t.Setenv("LEARNLOOP_RISK_ACCURACY_FLOOR", "0.35")

	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 14, cfg.Risk.FrequencySpikePerWeek)
	assert.InDelta(t, 0.35, cfg.Risk.AccuracyFloor, 1e-9)

	sc := cfg.SessionConfig()
	assert.Equal(t, int64(60_000), sc.MinStage.Encounter)
	assert.Equal(t, int64(900_000), sc.MinStage.Analysis)
	assert.Equal(t, int64(180_000), sc.MinStage.Return)
	// The analysis target lifts to meet the raised minimum.
	assert.Equal(t, int64(900_000), sc.TargetStage.Analysis)
}

func TestFromEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("LEARNLOOP_STAGE_MIN_RETURN_S", "soon")
	t.Setenv("LEARNLOOP_RISK_LATENCY_CEILING", "high")

	cfg := FromEnv()
	assert.Equal(t, 0, cfg.Stage.ReturnMinS)
	assert.InDelta(t, 0.15, cfg.Risk.LatencyTrendCeiling, 1e-9)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := FromEnv()
	cfg.LogLevel = "loud"
	_, err := cfg.NewLogger()
	require.Error(t, err)

	cfg.LogLevel = "warn"
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
