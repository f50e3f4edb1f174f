package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/architect"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/session"
)

func newInitCmd() *cobra.Command {
	var prdPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a session from a PRD",
		Long:  "Run the Architect agent against a PRD, producing a four-level backlog, and create a new session to hold it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, prdPath)
		},
	}

	cmd.Flags().StringVar(&prdPath, "prd", "", "path to the PRD (default: the configured session.prd)")

	return cmd
}

func runInit(cmd *cobra.Command, prdPath string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}

	if prdPath == "" {
		prdPath = cfg.Session.PRD
	}
	if _, err := os.Stat(prdPath); err != nil {
		return fmt.Errorf("PRD not found at %q: %w", prdPath, err)
	}

	root := planRoot(workDir, cfg)
	mgr := session.NewManager(root, log)
	if err := mgr.EnsureLayout(); err != nil {
		return fmt.Errorf("preparing plan root: %w", err)
	}

	prd, err := os.ReadFile(prdPath)
	if err != nil {
		return fmt.Errorf("reading PRD: %w", err)
	}
	hash := session.HashPRD(prd)

	if existing, err := mgr.FindByHash(hash); err == nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %s already initialized from this PRD at %s\n", existing.Meta.RunID, existing.Dir)
		return nil
	}

	agentLogsDir := session.AgentLogsDirPath(root)
	runner, err := newAgentRunner(cfg.Agents.Researcher, "architect", agentLogsDir, log)
	if err != nil {
		return err
	}

	arch := architect.New(runner)
	result, err := arch.Generate(cmd.Context(), architect.GenerateRequest{PRDPath: prdPath})
	if err != nil {
		return fmt.Errorf("generating backlog: %w", err)
	}

	var sess *session.Session
	if current, err := mgr.Current(); err == nil && current.Meta.PRDHash != hash {
		sess, err = mgr.CreateDelta(current, prdPath)
		if err != nil {
			return fmt.Errorf("creating delta session: %w", err)
		}
		merged, err := mergeNewBacklogItems(sess, result.Backlog)
		if err != nil {
			return fmt.Errorf("merging regenerated backlog into delta session: %w", err)
		}
		if err := sess.FlushUpdates(); err != nil {
			return fmt.Errorf("persisting backlog: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Delta session %s created at %s (parent %s)\n", sess.Meta.RunID, sess.Dir, current.Dir)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Carried forward from parent, %d new item(s) merged\n", merged)
		if result.TotalCostUSD > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Architect cost: $%.4f\n", result.TotalCostUSD)
		}
		return nil
	}

	sess, err = mgr.Create(prdPath)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	if _, err := mergeNewBacklogItems(sess, result.Backlog); err != nil {
		return fmt.Errorf("populating session backlog: %w", err)
	}
	if err := sess.FlushUpdates(); err != nil {
		return fmt.Errorf("persisting backlog: %w", err)
	}

	subtasks := 0
	for _, it := range result.Backlog.Items {
		if it.Level == backlog.LevelSubtask {
			subtasks++
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %s created at %s\n", sess.Meta.RunID, sess.Dir)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backlog: %d item(s), %d subtask(s)\n", len(result.Backlog.Items), subtasks)
	if result.TotalCostUSD > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Architect cost: $%.4f\n", result.TotalCostUSD)
	}
	return nil
}
