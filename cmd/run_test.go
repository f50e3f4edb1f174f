package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRunRefusesWhenPaused(t *testing.T) {
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
	root.SetArgs([]string{"pause"})
	require.NoError(t, root.Execute())

	root = NewRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run"})
	assert.Error(t, root.Execute())
}

func TestRunRunCompletesAnAlreadySkippedBacklog(t *testing.T) {
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
	root.SetArgs([]string{"skip", "P1.M1.T1.S1", "--reason", "pre-completed for test"})
	require.NoError(t, root.Execute())

	restore := stubAgentRunner(&fakeArchitectRunner{response: fakeBacklogJSON})
	defer restore()

	root = NewRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Outcome: completed")
}
