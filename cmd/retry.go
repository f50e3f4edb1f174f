package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/session"
)

func newRetryCmd() *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "retry <subtask-id>",
		Short: "Retry a failed subtask",
		Long:  "Reset a failed or blocked subtask to planned status. Feedback is saved to .forge/state/feedback-<id>.txt; it is not passed to the agents on the next attempt.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(cmd, args[0], feedback)
		},
	}

	cmd.Flags().StringVar(&feedback, "feedback", "", "feedback to save under .forge/state (not sent to the agents)")

	return cmd
}

func runRetry(cmd *cobra.Command, subtaskID, feedback string) error {
	if subtaskID == "" {
		return errors.New("subtask ID is required")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	root := planRoot(workDir, cfg)

	mgr := session.NewManager(root, log)
	sess, err := currentSession(mgr)
	if err != nil {
		return err
	}

	svc := buildTriageService(workDir, root, cfg, sess)
	if err := svc.Retry(subtaskID, feedback); err != nil {
		return fmt.Errorf("retrying %s: %w", subtaskID, err)
	}

	if feedback != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Feedback saved for %s\n", subtaskID)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s reset to planned; run 'forge run' to retry it\n", subtaskID)
	return nil
}
