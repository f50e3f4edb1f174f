package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	cmdinternal "github.com/autoforge/autoforge/cmd/internal"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/scope"
	"github.com/autoforge/autoforge/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [scope]",
		Short: "Show the current session's backlog status",
		Long:  "Display per-level item counts, completion progress, and any failed or blocked subtasks awaiting triage.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeExpr := ""
			if len(args) == 1 {
				scopeExpr = args[0]
			}
			return runStatus(cmd, scopeExpr)
		},
	}
}

func runStatus(cmd *cobra.Command, scopeExpr string) error {
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

	b := sess.Backlog()
	queue, err := scope.Resolve(b, scopeExpr)
	if err != nil {
		return fmt.Errorf("resolving scope: %w", err)
	}

	paused, _ := session.IsPaused(root)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Session %s (%s)\n", sess.Meta.RunID, sess.Dir)
	if paused {
		_, _ = fmt.Fprintln(out, "Status: PAUSED")
	}

	subtaskTotal, subtaskDone := 0, 0
	byLevel := map[backlog.Level]int{}
	byStatus := map[backlog.Status]int{}
	var failed, blocked []*backlog.Item

	for _, id := range queue {
		item, getErr := b.Get(id)
		if getErr != nil {
			continue
		}
		byLevel[item.Level]++
		byStatus[item.Status]++
		if item.Level == backlog.LevelSubtask {
			subtaskTotal++
			if item.Status == backlog.StatusComplete {
				subtaskDone++
			}
		}
		switch item.Status {
		case backlog.StatusFailed:
			failed = append(failed, item)
		case backlog.StatusBlocked:
			blocked = append(blocked, item)
		}
	}

	percent := 0
	if subtaskTotal > 0 {
		percent = subtaskDone * 100 / subtaskTotal
	}
	_, _ = fmt.Fprintf(out, "Progress: %s %d/%d subtasks complete (%d%%)\n",
		cmdinternal.ProgressBar(percent, 30), subtaskDone, subtaskTotal, percent)

	_, _ = fmt.Fprintln(out, "\nBy level:")
	for _, level := range []backlog.Level{backlog.LevelPhase, backlog.LevelMilestone, backlog.LevelTask, backlog.LevelSubtask} {
		_, _ = fmt.Fprintf(out, "  %-10s %d\n", level, byLevel[level])
	}

	_, _ = fmt.Fprintln(out, "\nBy status:")
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		_, _ = fmt.Fprintf(out, "  %-14s %d\n", s, byStatus[backlog.Status(s)])
	}

	if len(failed) > 0 {
		_, _ = fmt.Fprintln(out, "\nFailed (needs 'forge retry' or 'forge skip'):")
		for _, item := range failed {
			_, _ = fmt.Fprintf(out, "  %s  %s\n", item.ID, item.Title)
		}
	}
	if len(blocked) > 0 {
		_, _ = fmt.Fprintln(out, "\nBlocked:")
		for _, item := range blocked {
			_, _ = fmt.Fprintf(out, "  %s  %s\n", item.ID, item.Title)
		}
	}

	return nil
}
