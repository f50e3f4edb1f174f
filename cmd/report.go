package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/history"
	"github.com/autoforge/autoforge/internal/session"
)

func newReportCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the history index",
		Long:  "Report totals across every recorded subtask run: counts by terminal status and total agent cost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the report to a file instead of stdout")

	return cmd
}

func runReport(cmd *cobra.Command, outputFile string) error {
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

	histDB, err := history.Open(filepath.Join(session.StateDirPath(root), "history.db"))
	if err != nil {
		return fmt.Errorf("opening history index: %w", err)
	}
	defer histDB.Close()

	summary, err := histDB.Report(cmd.Context())
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	b := sess.Backlog()
	subtaskTotal, subtaskDone := 0, 0
	for _, item := range b.Items {
		if item.Level == backlog.LevelSubtask {
			subtaskTotal++
			if item.Status == backlog.StatusComplete {
				subtaskDone++
			}
		}
	}

	formatted := formatReport(sess.Meta.RunID, summary, subtaskTotal, subtaskDone)

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
		}
		if err := os.WriteFile(outputFile, []byte(formatted), 0644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Report written to: %s\n", outputFile)
		return nil
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), formatted)
	return nil
}

func formatReport(runID string, summary history.Summary, subtaskTotal, subtaskDone int) string {
	out := fmt.Sprintf("# Session Report: %s\n\n", runID)
	out += fmt.Sprintf("Subtasks: %d/%d complete\n\n", subtaskDone, subtaskTotal)
	out += "## History\n\n"
	out += fmt.Sprintf("- Total recorded runs: %d\n", summary.TotalRuns)
	out += fmt.Sprintf("- Complete: %d\n", summary.CompleteRuns)
	out += fmt.Sprintf("- Failed: %d\n", summary.FailedRuns)
	out += fmt.Sprintf("- Total cost: $%.4f\n", summary.TotalCostUSD)
	return out
}
