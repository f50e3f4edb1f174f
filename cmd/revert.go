package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/session"
	"github.com/autoforge/autoforge/internal/triage"
)

func newRevertCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "revert <subtask-id>",
		Short: "Revert to before a subtask's commit",
		Long: `Reset the working copy to the commit before the given subtask's PRP Runtime
commit, reopening the subtask as planned if it had completed.

WARNING: this discards uncommitted changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(cmd, args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")

	return cmd
}

func runRevert(cmd *cobra.Command, subtaskID string, force bool) error {
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

	ctx := cmd.Context()
	info, err := svc.RevertInfoFor(ctx, subtaskID)
	if err != nil {
		return fmt.Errorf("resolving revert target: %w", err)
	}

	if !force {
		confirmed, err := confirmRevert(cmd, info)
		if err != nil {
			return err
		}
		if !confirmed {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Revert cancelled.")
			return nil
		}
	}

	if err := svc.Revert(ctx, subtaskID); err != nil {
		return fmt.Errorf("reverting %s: %w", subtaskID, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reverted to commit %s\n", info.CommitToResetTo)
	if info.SubtaskToReopen != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s reopened as planned\n", info.SubtaskToReopen)
	}
	return nil
}

func confirmRevert(cmd *cobra.Command, info *triage.RevertInfo) (bool, error) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "This will reset the working copy to commit %s (before %s)\n",
		info.CommitToResetTo, info.SubtaskID)
	if info.HasUncommittedChanges {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "WARNING: you have uncommitted changes that will be lost!")
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Are you sure? (yes/no): ")

	reader := bufio.NewReader(cmd.InOrStdin())
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes" || response == "y", nil
}
