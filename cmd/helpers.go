package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/config"
	"github.com/autoforge/autoforge/internal/gitrepo"
	"github.com/autoforge/autoforge/internal/prp"
	"github.com/autoforge/autoforge/internal/session"
	"github.com/autoforge/autoforge/internal/triage"
	"github.com/autoforge/autoforge/internal/verify"
)

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// defaultAPIModel is used when an api-backend agent has no model configured.
const defaultAPIModel = anthropic.ModelClaudeSonnet4_5

// loadConfig loads the effective config for workDir, honoring --config.
func loadConfig(workDir string) (*config.Config, error) {
	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// planRoot resolves the plan root (the directory containing .forge) from
// workDir and cfg.Session.Root.
func planRoot(workDir string, cfg *config.Config) string {
	return filepath.Join(workDir, cfg.Session.Root)
}

// newAgentRunner is a seam over buildAgentRunner so tests can substitute a
// fake agent.Runner without shelling out to a real CLI or API.
var newAgentRunner = buildAgentRunner

// buildAgentRunner constructs the agent.Runner for one role from its
// configured backend, branching on config.BackendAPI as well as the
// subprocess default, since AgentsConfig lets each role pick its own
// transport.
func buildAgentRunner(backend config.AgentBackend, role agent.Role, logsDir string, log zerolog.Logger) (agent.Runner, error) {
	name, err := config.NormalizeBackend(backend.Backend)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", role, err)
	}

	switch name {
	case config.BackendAPI:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("agent %s: ANTHROPIC_API_KEY is required for the api backend", role)
		}
		model := anthropic.Model(backend.Model)
		if model == "" {
			model = defaultAPIModel
		}
		return agent.NewAPIRunner(apiKey, model, log.With().Str("role", string(role)).Logger()), nil

	default:
		command := backend.Command
		if len(command) == 0 {
			command = []string{"claude"}
		}
		return agent.NewSubprocessRunner(command, logsDir, string(role), log.With().Str("role", string(role)).Logger()), nil
	}
}

// buildVerifyRunner constructs the verify.Runner, honoring the configured
// allowed base-executable list.
func buildVerifyRunner(cfg *config.Config) *verify.Runner {
	return verify.NewRunner(cfg.Safety.AllowedCommands)
}

// gateCommands flattens GatesConfig into the ordered slice prp.Deps.Gates
// expects: syntax, unit, integration, manual. An empty Args leaves a gate
// a no-op pass inside verify.Runner.Run.
func gateCommands(cfg *config.Config, workDir string) []verify.Command {
	build := func(gate verify.Gate, override config.GateOverride) verify.Command {
		timeout := override.TimeoutSecond
		if timeout <= 0 {
			timeout = config.DefaultGateTimeoutSeconds
		}
		return verify.Command{
			Gate:    gate,
			Args:    override.Args,
			WorkDir: workDir,
			Timeout: secondsToDuration(timeout),
		}
	}
	return []verify.Command{
		build(verify.GateSyntax, cfg.Gates.Syntax),
		build(verify.GateUnit, cfg.Gates.Unit),
		build(verify.GateIntegration, cfg.Gates.Integration),
		build(verify.GateManual, cfg.Gates.Manual),
	}
}

// currentSession resolves the session a command should operate on: the
// plan root's current-session pointer. Commands needing a specific session
// directory (e.g. triage operating across an older delta session) would
// load by directory instead, but every CLI command here works against the
// most recent session.
func currentSession(mgr *session.Manager) (*session.Session, error) {
	sess, err := mgr.Current()
	if err != nil {
		return nil, fmt.Errorf("no active session: run 'forge init' first: %w", err)
	}
	return sess, nil
}

// buildGitManager constructs the gitrepo.Manager used by the PRP Runtime
// and triage commands.
func buildGitManager(workDir string, cfg *config.Config) gitrepo.Manager {
	return gitrepo.NewShellManager(workDir, cfg.Session.Branch)
}

// buildTriageService constructs the triage.Service the retry/skip/revert/logs
// commands all share, resolving the same session and checkpoint manager
// 'forge run' uses for that session's directory.
func buildTriageService(workDir, root string, cfg *config.Config, sess *session.Session) *triage.Service {
	gitMgr := buildGitManager(workDir, cfg)
	cps := prp.NewCheckpointManager(prp.ArtifactsDirPath(sess.Dir))
	return triage.NewService(sess, gitMgr, cps, workDir, root)
}

// mergeNewBacklogItems copies every item from src into sess that sess
// doesn't already have, walking src in parent-before-child order so
// backlog.Backlog.Add never sees a child before its parent. Used both by
// 'forge watch' (additive merge into the current session on every PRD
// change) and 'forge init' (merging a re-run of the Architect's output into
// a freshly created delta session, alongside the subtasks CreateDelta
// already carried forward from the parent). Returns the number of items
// added.
func mergeNewBacklogItems(sess *session.Session, src *backlog.Backlog) (int, error) {
	added := 0
	var walk func(id string) error
	walk = func(id string) error {
		item, err := src.Get(id)
		if err != nil {
			return err
		}
		if _, err := sess.Item(id); err != nil {
			var nf *backlog.NotFoundError
			if !errors.As(err, &nf) {
				return err
			}
			if err := sess.AddItem(item); err != nil {
				return err
			}
			added++
		}
		for _, child := range src.ChildrenOf(id) {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range src.Roots() {
		if err := walk(root); err != nil {
			return added, err
		}
	}
	return added, nil
}
