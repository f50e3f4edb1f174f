package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/session"
)

func newSkipCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "skip <subtask-id>",
		Short: "Skip a subtask",
		Long:  "Mark a subtask blocked or failed as skipped so the orchestrator treats it as resolved without re-running it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkip(cmd, args[0], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason the subtask is being skipped")

	return cmd
}

func runSkip(cmd *cobra.Command, subtaskID, reason string) error {
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
	if err := svc.Skip(subtaskID, reason); err != nil {
		return fmt.Errorf("skipping %s: %w", subtaskID, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s marked as skipped\n", subtaskID)
	return nil
}
