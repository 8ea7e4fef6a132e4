package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abhisek/learnloop/internal/profile"
	"github.com/abhisek/learnloop/internal/session"
)

// Config holds process-level configuration. Everything here is tunable
// through LEARNLOOP_-prefixed environment variables, optionally loaded
// from a .env file in the working directory.
type Config struct {
	// DBPath overrides the database location. Empty means the default
	// XDG resolution applies.
	DBPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Stage holds the minimum per-stage durations in seconds.
	Stage StageLimits

	// Risk parameterizes the burnout heuristic in profile updates.
	Risk profile.RiskThresholds
}

// StageLimits are the minimum stage durations, in seconds. Zero means
// keep the built-in gate for that stage.
type StageLimits struct {
	EncounterMinS int
	AnalysisMinS  int
	ReturnMinS    int
}

// Load reads an optional .env file and then the environment. A missing
// .env file is not an error; a malformed one is.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables alone, falling
// back to defaults for unset or unparsable values.
func FromEnv() Config {
	return Config{
		DBPath:   os.Getenv("LEARNLOOP_DB"),
		LogLevel: envOr("LEARNLOOP_LOG_LEVEL", "info"),
		Stage: StageLimits{
			EncounterMinS: intEnv("LEARNLOOP_STAGE_MIN_ENCOUNTER_S", 0),
			AnalysisMinS:  intEnv("LEARNLOOP_STAGE_MIN_ANALYSIS_S", 0),
			ReturnMinS:    intEnv("LEARNLOOP_STAGE_MIN_RETURN_S", 0),
		},
		Risk: profile.RiskThresholds{
			FrequencySpikePerWeek: intEnv("LEARNLOOP_RISK_FREQUENCY_SPIKE", profile.DefaultRiskThresholds().FrequencySpikePerWeek),
			AccuracyFloor:         floatEnv("LEARNLOOP_RISK_ACCURACY_FLOOR", profile.DefaultRiskThresholds().AccuracyFloor),
			LatencyTrendCeiling:   floatEnv("LEARNLOOP_RISK_LATENCY_CEILING", profile.DefaultRiskThresholds().LatencyTrendCeiling),
		},
	}
}

// SessionConfig projects the stage limits onto the reducer's gates.
// Unset stages keep their defaults; targets scale only when the
// corresponding minimum was overridden.
func (c Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	if c.Stage.EncounterMinS > 0 {
		sc.MinStage.Encounter = int64(c.Stage.EncounterMinS) * 1000
	}
	if c.Stage.AnalysisMinS > 0 {
		sc.MinStage.Analysis = int64(c.Stage.AnalysisMinS) * 1000
	}
	if c.Stage.ReturnMinS > 0 {
		sc.MinStage.Return = int64(c.Stage.ReturnMinS) * 1000
	}
	// Targets never sit below the minimums.
	if sc.TargetStage.Encounter < sc.MinStage.Encounter {
		sc.TargetStage.Encounter = sc.MinStage.Encounter
	}
	if sc.TargetStage.Analysis < sc.MinStage.Analysis {
		sc.TargetStage.Analysis = sc.MinStage.Analysis
	}
	if sc.TargetStage.Return < sc.MinStage.Return {
		sc.TargetStage.Return = sc.MinStage.Return
	}
	return sc
}

// NewLogger builds a production zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.LogLevel, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
