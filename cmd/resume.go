package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/session"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused session",
		Long:  "Clear the pause marker so 'forge run' can dispatch again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd)
		},
	}
}

func runResume(cmd *cobra.Command) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	root := planRoot(workDir, cfg)

	paused, err := session.IsPaused(root)
	if err != nil {
		return err
	}
	if !paused {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session is not paused")
		return nil
	}

	if err := session.SetPaused(root, false); err != nil {
		return fmt.Errorf("resuming: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session resumed. Use 'forge run' to continue.")
	return nil
}
