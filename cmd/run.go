package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/history"
	"github.com/autoforge/autoforge/internal/memory"
	"github.com/autoforge/autoforge/internal/orchestrator"
	"github.com/autoforge/autoforge/internal/prp"
	"github.com/autoforge/autoforge/internal/session"
	"github.com/autoforge/autoforge/internal/statusserver"
)

func newRunCmd() *cobra.Command {
	var (
		statusAddr string
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "run [scope]",
		Short: "Drive the current session's backlog to completion",
		Long: `Dispatch every ready subtask in scope (or the whole backlog, if scope is
omitted) through the PRP Runtime until the scope is complete, blocked,
budget-exceeded, a gutter is detected, or the run is paused or cancelled.

scope is a dotted backlog ID or ID prefix, e.g. "P1" or "P1.M2.T3".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeExpr := ""
			if len(args) == 1 {
				scopeExpr = args[0]
			}
			return runRun(cmd, scopeExpr, statusAddr, maxRetries)
		},
	}

	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve a read-only status endpoint at this address while running (e.g. :8080)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "override the per-subtask retry budget before it requires triage (default: 2)")

	return cmd
}

func runRun(cmd *cobra.Command, scopeExpr, statusAddr string, maxRetries int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		return fmt.Errorf("checking pause state: %w", err)
	}
	if paused {
		return fmt.Errorf("session is paused: run 'forge resume' first")
	}

	mgr := session.NewManager(root, log)
	sess, err := currentSession(mgr)
	if err != nil {
		return err
	}

	agentLogsDir := session.AgentLogsDirPath(root)
	researcher, err := newAgentRunner(cfg.Agents.Researcher, agent.RoleResearcher, agentLogsDir, log)
	if err != nil {
		return err
	}
	coder, err := newAgentRunner(cfg.Agents.Coder, agent.RoleCoder, agentLogsDir, log)
	if err != nil {
		return err
	}

	gitMgr := buildGitManager(workDir, cfg)
	if err := gitMgr.Init(ctx); err != nil {
		return fmt.Errorf("initializing git: %w", err)
	}
	if err := gitMgr.EnsureBranch(ctx, sess.Meta.RunID); err != nil {
		return fmt.Errorf("ensuring session branch: %w", err)
	}

	progress := memory.NewProgressFile(filepath.Join(session.StateDirPath(root), sess.Meta.RunID+"-progress.md"))
	if err := progress.Init(sess.Meta.RunID, scopeExpr); err != nil {
		return fmt.Errorf("initializing progress file: %w", err)
	}
	cache := prp.NewCache(prp.CacheDirPath(sess.Dir))
	checkpoints := prp.NewCheckpointManager(prp.ArtifactsDirPath(sess.Dir))

	runtime := prp.New(prp.Deps{
		Researcher:  researcher,
		Coder:       coder,
		Verify:      buildVerifyRunner(cfg),
		Git:         gitMgr,
		Progress:    progress,
		Checkpoints: checkpoints,
		Cache:       cache,
		Backlog:     sess.Backlog(),
		Gates:       gateCommands(cfg, workDir),
		Log:         log,
	}, sess.Dir)

	histDB, histErr := history.Open(filepath.Join(session.StateDirPath(root), "history.db"))
	if histErr != nil {
		log.Warn().Err(histErr).Msg("opening history index; forge report will be empty")
		histDB = nil
	} else {
		defer histDB.Close()
	}

	var hub *statusserver.Hub
	if statusAddr != "" {
		hub = statusserver.NewHub(log)
		hubStop := make(chan struct{})
		go hub.Run(hubStop)
		defer close(hubStop)

		srv := statusserver.New(statusAddr, sess, hub, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var exec orchestrator.Executor = &instrumentedExecutor{next: runtime, hist: histDB, hub: hub}

	orch := orchestrator.New(sess, exec, root, log)
	if maxRetries > 0 {
		orch.SetMaxRetries(maxRetries)
	}
	orch.SetParallelism(cfg.Parallelism.Workers)

	result := orch.Run(ctx, scopeExpr)

	if err := sess.FlushUpdates(); err != nil {
		log.Warn().Err(err).Msg("flushing backlog updates")
	}

	printRunResult(cmd, result)

	if result.Outcome == orchestrator.RunOutcomeError {
		return fmt.Errorf("run failed: %s", result.Message)
	}
	return nil
}

func printRunResult(cmd *cobra.Command, result orchestrator.RunResult) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Outcome: %s\n", result.Outcome)
	if result.Message != "" {
		_, _ = fmt.Fprintf(out, "Message: %s\n", result.Message)
	}
	_, _ = fmt.Fprintf(out, "Subtasks completed: %d\n", len(result.CompletedItems))
	if len(result.FailedItems) > 0 {
		_, _ = fmt.Fprintf(out, "Subtasks failed: %d (%v)\n", len(result.FailedItems), result.FailedItems)
	}
	if len(result.BlockedItems) > 0 {
		_, _ = fmt.Fprintf(out, "Subtasks blocked: %d (%v)\n", len(result.BlockedItems), result.BlockedItems)
	}
	_, _ = fmt.Fprintf(out, "Cost: $%.4f\n", result.TotalCostUSD)
	_, _ = fmt.Fprintf(out, "Elapsed: %s\n", result.ElapsedTime.Round(time.Second))
}
