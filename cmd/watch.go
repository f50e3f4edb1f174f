package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/autoforge/autoforge/internal/architect"
	"github.com/autoforge/autoforge/internal/session"
)

func newWatchCmd() *cobra.Command {
	var prdPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the PRD and re-run init on every change",
		Long: `Watch the configured PRD for changes and, on each write, re-run the
Architect agent and merge any new items into the current session's backlog.
The PRD is watched with fsnotify, and bursts of writes are debounced into
a single re-run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, prdPath)
		},
	}

	cmd.Flags().StringVar(&prdPath, "prd", "", "path to the PRD (default: the configured session.prd)")

	return cmd
}

func runWatch(cmd *cobra.Command, prdPath string) error {
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
	prdPath, err = filepath.Abs(prdPath)
	if err != nil {
		return fmt.Errorf("resolving PRD path: %w", err)
	}
	if _, err := os.Stat(prdPath); err != nil {
		return fmt.Errorf("PRD not found at %q: %w", prdPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(prdPath)); err != nil {
		return fmt.Errorf("watching %s: %w", prdPath, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (ctrl-c to stop)\n", prdPath)

	ctx := cmd.Context()
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	runOnce := func() {
		if err := applyPRDDelta(cmd, workDir, prdPath); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "delta failed: %v\n", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != prdPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, runOnce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		}
	}
}

// applyPRDDelta re-runs the Architect against prdPath and merges into the
// current session every item whose id its backlog doesn't already have.
// Items that already exist keep their current state; no delta session is
// created and internal/delta is not consulted.
func applyPRDDelta(cmd *cobra.Command, workDir, prdPath string) error {
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

	agentLogsDir := session.AgentLogsDirPath(root)
	runner, err := newAgentRunner(cfg.Agents.Researcher, "architect", agentLogsDir, log)
	if err != nil {
		return err
	}

	arch := architect.New(runner)
	result, err := arch.Generate(cmd.Context(), architect.GenerateRequest{PRDPath: prdPath})
	if err != nil {
		return fmt.Errorf("re-generating backlog: %w", err)
	}

	added, err := mergeNewBacklogItems(sess, result.Backlog)
	if err != nil {
		return fmt.Errorf("merging delta: %w", err)
	}

	if err := sess.FlushUpdates(); err != nil {
		return fmt.Errorf("persisting delta: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "PRD changed: merged %d new item(s)\n", added)
	return nil
}
