package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/learnloop/internal/auth"
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Recompute per-learner FSRS weights from review history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := buildService(cmd, st, auth.NewTokenAuthenticator(), cfg, logger)

		n, err := svc.TuneAllWeights(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Tuned weights for %d learner(s).\n", n)
		return nil
	},
}
