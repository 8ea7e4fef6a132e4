package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		topicID, _ := cmd.Flags().GetString("topic")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		now := time.Now().UTC()

		total, err := st.CountSessions(ctx, userID)
		if err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}

		rows, err := st.AllMemoryRows(ctx, userID)
		if err != nil {
			return fmt.Errorf("load memory rows: %w", err)
		}
		var due, reviewed int
		for _, r := range rows {
			if r.NextReview != nil && !r.NextReview.After(now) {
				due++
			}
			if r.ReviewCount > 0 {
				reviewed++
			}
		}

		fmt.Printf("Sessions:      %d\n", total)
		fmt.Printf("Memory items:  %d tracked, %d reviewed, %d due now\n", len(rows), reviewed, due)

		if topicID != "" {
			prof, err := st.GetTopicProficiency(ctx, userID, topicID)
			if err != nil {
				return fmt.Errorf("load topic proficiency: %w", err)
			}
			if prof == nil {
				fmt.Printf("Topic %s:      no proficiency recorded yet\n", topicID)
			} else {
				fmt.Printf("Topic %s:      %.0f%% proficient (%d mastered / %d in progress / %d not started)\n",
					topicID, prof.Proficiency*100, prof.KcsMastered, prof.KcsInProgress, prof.KcsNotStarted)
			}
		}

		recent, err := st.RecentSessions(ctx, userID, limit)
		if err != nil {
			return fmt.Errorf("load recent sessions: %w", err)
		}
		if len(recent) == 0 {
			fmt.Println("\nNo sessions recorded yet.")
			return nil
		}

		fmt.Println()
		fmt.Printf("%-36s  %-12s  %-10s  %-12s  %6s  %8s\n",
			"Session", "Topic", "Type", "Status", "Dur s", "Accuracy")
		fmt.Println(strings.Repeat("─", 94))
		for _, s := range recent {
			acc := "-"
			if s.Accuracy != nil {
				acc = fmt.Sprintf("%.0f%%", *s.Accuracy*100)
			}
			fmt.Printf("%-36s  %-12s  %-10s  %-12s  %6d  %8s\n",
				s.ID, truncate(s.TopicID, 12), s.SessionType, s.Status, s.DurationS, acc)
		}
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func init() {
	statsCmd.Flags().StringP("user", "u", "", "User ID")
	statsCmd.Flags().StringP("topic", "t", "", "Also show proficiency for this topic")
	statsCmd.Flags().IntP("limit", "n", 10, "Number of recent sessions to list")
}
