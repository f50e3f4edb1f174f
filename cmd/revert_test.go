package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRevertWithoutCheckpointsFails(t *testing.T) {
	workDir := t.TempDir()
	log = zerolog.Nop()

	origDir, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(origDir) }()
	require.NoError(t, os.Chdir(workDir))

	bootstrapSession(t, workDir, fakeBacklogJSON)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"revert", "P1.M1.T1.S1", "--force"})

	// No PRP Runtime commit exists for this subtask (the orchestrator
	// never ran), so resolving a revert target must fail rather than
	// silently resetting to an unrelated commit.
	assert.Error(t, root.Execute())
}
