package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/prp"
	"github.com/autoforge/autoforge/internal/session"
)

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <subtask-id>",
		Short: "Show a subtask's checkpoint history",
		Long:  "Display the retained pipeline checkpoints (pre-execution, coder response, each validation gate) for one subtask.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, args[0])
		},
	}
}

func runLogs(cmd *cobra.Command, subtaskID string) error {
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

	cps := prp.NewCheckpointManager(prp.ArtifactsDirPath(sess.Dir))
	checkpoints, err := cps.Load(subtaskID)
	if err != nil {
		return fmt.Errorf("loading checkpoints for %s: %w", subtaskID, err)
	}
	if len(checkpoints) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No checkpoints recorded for %s\n", subtaskID)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, cp := range checkpoints {
		_, _ = fmt.Fprintf(out, "[%s] %s  stage=%s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.ID, cp.State.Stage)
		if cp.State.CoderResult != "" {
			_, _ = fmt.Fprintf(out, "  coder result: %s\n", cp.State.CoderResult)
		}
		for _, vr := range cp.State.ValidationResults {
			status := "PASS"
			if !vr.Passed {
				status = "FAIL"
			}
			_, _ = fmt.Fprintf(out, "  [%s] %s\n", status, vr.Gate)
			if !vr.Passed && vr.Output != "" {
				for _, line := range strings.Split(strings.TrimRight(vr.Output, "\n"), "\n") {
					_, _ = fmt.Fprintf(out, "      %s\n", line)
				}
			}
		}
		if cp.Error != nil {
			_, _ = fmt.Fprintf(out, "  error: %s\n", cp.Error.Message)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}
