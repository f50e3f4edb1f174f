package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/config"
)

// stubAgentRunner replaces newAgentRunner for the duration of a test,
// returning runner regardless of the requested backend/role, and returns a
// func to restore the original factory.
func stubAgentRunner(runner agent.Runner) func() {
	original := newAgentRunner
	newAgentRunner = func(backend config.AgentBackend, role agent.Role, logsDir string, log zerolog.Logger) (agent.Runner, error) {
		return runner, nil
	}
	return func() { newAgentRunner = original }
}

// bootstrapSession runs 'forge init' against a fake PRD and fake backlog in
// workDir, leaving a current session in place for tests that exercise
// status/pause/retry/skip/revert/logs/report against it.
func bootstrapSession(t *testing.T, workDir, backlogJSON string) {
	t.Helper()

	prdPath := filepath.Join(workDir, "PRD.md")
	require.NoError(t, os.WriteFile(prdPath, []byte("# Feature\n\nDo the thing."), 0644))

	restore := stubAgentRunner(&fakeArchitectRunner{response: backlogJSON})
	defer restore()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"init", "--prd", prdPath})
	require.NoError(t, root.Execute())
}
