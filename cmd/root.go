package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/learnloop/internal/analytics"
	"github.com/abhisek/learnloop/internal/auth"
	"github.com/abhisek/learnloop/internal/config"
	"github.com/abhisek/learnloop/internal/llm"
	"github.com/abhisek/learnloop/internal/orchestrator"
	"github.com/abhisek/learnloop/internal/scoring"
	"github.com/abhisek/learnloop/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "learnloop",
	Short: "Adaptive spaced-repetition learning engine",
	Long:  "Learnloop plans, runs and scores learning sessions with an FSRS scheduler and an adaptive item selector.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides LEARNLOOP_DB env var)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(tuneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then LEARNLOOP_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

// loadConfig reads the environment config and builds the process logger.
// --verbose forces debug level.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.LogLevel = "debug"
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openStore opens the database at the resolved path.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// buildService wires the orchestrator for CLI use. Free-text scoring is
// LLM-backed when an API key is discoverable; otherwise the heuristic
// fallback grades everything.
func buildService(cmd *cobra.Command, st *store.Store, authn auth.Authenticator, cfg config.Config, logger *zap.Logger) *orchestrator.Service {
	scorer := scoring.NewService(nil, logger)
	if llmCfg, ok := llm.DiscoverConfig(); ok {
		provider, err := llm.NewProvider(cmd.Context(), llmCfg, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "LLM provider not configured:", err)
			fmt.Fprintln(os.Stderr, "Free-text responses will be graded heuristically.")
		} else {
			scorer = scoring.NewService(scoring.NewLLMScorer(provider, scoring.DefaultScorerConfig()), logger)
		}
	}

	sessCfg := cfg.SessionConfig()
	return orchestrator.NewService(st, authn, orchestrator.Options{
		Scorer:         scorer,
		Emitter:        analytics.NewLogEmitter(logger),
		Logger:         logger,
		SessionConfig:  &sessCfg,
		RiskThresholds: &cfg.Risk,
	})
}
