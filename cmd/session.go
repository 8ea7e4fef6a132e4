package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/learnloop/internal/auth"
	"github.com/abhisek/learnloop/internal/orchestrator"
	"github.com/abhisek/learnloop/internal/session"
	"github.com/abhisek/learnloop/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, advance and complete learning sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Plan and start a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		sessType, _ := cmd.Flags().GetString("type")

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

		bearer, authn, err := bearerFor(cmd, st)
		if err != nil {
			return err
		}
		svc := buildService(cmd, st, authn, cfg, logger)

		res, err := svc.StartSession(cmd.Context(), bearer, topic, session.Type(sessType))
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var sessionRespondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Record a response to the current item",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := orchestrator.RespondRequest{}
		req.SessionID, _ = cmd.Flags().GetString("session")
		req.ItemID, _ = cmd.Flags().GetString("item")
		req.ResponseType, _ = cmd.Flags().GetString("response-type")
		req.LatencyMs, _ = cmd.Flags().GetInt64("latency-ms")
		req.HelpRequested, _ = cmd.Flags().GetBool("help-requested")

		if cmd.Flags().Changed("correct") {
			c, _ := cmd.Flags().GetBool("correct")
			req.Correct = &c
		}
		if text, _ := cmd.Flags().GetString("text"); text != "" {
			body, err := json.Marshal(map[string]string{"text": text})
			if err != nil {
				return err
			}
			req.Payload = string(body)
		}
		if cmd.Flags().Changed("confidence") {
			c, _ := cmd.Flags().GetInt("confidence")
			req.ConfidenceRating = &c
		}

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

		bearer, authn, err := bearerFor(cmd, st)
		if err != nil {
			return err
		}
		svc := buildService(cmd, st, authn, cfg, logger)

		res, err := svc.RecordResponse(cmd.Context(), bearer, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Commit a session's learning outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

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

		bearer, authn, err := bearerFor(cmd, st)
		if err != nil {
			return err
		}
		svc := buildService(cmd, st, authn, cfg, logger)

		res, err := svc.CompleteSession(cmd.Context(), bearer, sessionID)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var sessionActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the user's in-progress session, if any",
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

		bearer, authn, err := bearerFor(cmd, st)
		if err != nil {
			return err
		}
		svc := buildService(cmd, st, authn, cfg, logger)

		view, err := svc.GetActive(cmd.Context(), bearer)
		if err != nil {
			return err
		}
		return printJSON(view)
	},
}

// bearerFor resolves the --user flag against the store and mints a
// short-lived token for it. The CLI is a trusted local caller, so the
// user id on the command line stands in for a real credential.
func bearerFor(cmd *cobra.Command, st *store.Store) (string, auth.Authenticator, error) {
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		return "", nil, fmt.Errorf("--user is required")
	}
	u, err := st.GetUser(context.Background(), userID)
	if err != nil {
		return "", nil, fmt.Errorf("look up user %s: %w", userID, err)
	}

	authn := auth.NewTokenAuthenticator()
	bearer := authn.Issue(auth.Identity{UserID: u.ID, Role: u.Role, IsActive: u.IsActive})
	return bearer, authn, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	sessionCmd.PersistentFlags().StringP("user", "u", "", "User ID acting on the session")

	sessionStartCmd.Flags().StringP("topic", "t", "", "Topic to study")
	sessionStartCmd.Flags().String("type", string(session.TypeStandard), "Session type: quick, standard or extended")

	sessionRespondCmd.Flags().StringP("session", "s", "", "Session ID")
	sessionRespondCmd.Flags().StringP("item", "i", "", "Content item being answered")
	sessionRespondCmd.Flags().String("response-type", "answer", "Response type recorded with the event")
	sessionRespondCmd.Flags().Bool("correct", false, "Whether an objectively-gradable answer was correct")
	sessionRespondCmd.Flags().String("text", "", "Free-text answer (scored externally when a provider is configured)")
	sessionRespondCmd.Flags().Int("confidence", 0, "Self-reported confidence 1-5")
	sessionRespondCmd.Flags().Bool("help-requested", false, "Whether the learner asked for help")
	sessionRespondCmd.Flags().Int64("latency-ms", 0, "Time from presentation to response")

	sessionCompleteCmd.Flags().StringP("session", "s", "", "Session ID")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionRespondCmd)
	sessionCmd.AddCommand(sessionCompleteCmd)
	sessionCmd.AddCommand(sessionActiveCmd)
}
