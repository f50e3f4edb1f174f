package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogsWithNoCheckpoints(t *testing.T) {
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
	root.SetArgs([]string{"logs", "P1.M1.T1.S1"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "No checkpoints recorded")
}
