package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportWithNoHistory(t *testing.T) {
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
	root.SetArgs([]string{"report"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Session Report")
	assert.Contains(t, out.String(), "Total recorded runs: 0")
}
