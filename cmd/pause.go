package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/session"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the session",
		Long:  "Set a pause marker so 'forge run' refuses to dispatch until 'forge resume' clears it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPause(cmd)
		},
	}
}

func runPause(cmd *cobra.Command) error {
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
	if paused {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session is already paused")
		return nil
	}

	if err := session.SetPaused(root, true); err != nil {
		return fmt.Errorf("pausing: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session paused. Use 'forge resume' to continue.")
	return nil
}
