package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/session"
)

func TestRunSkipMarksSubtaskComplete(t *testing.T) {
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
	root.SetArgs([]string{"skip", "P1.M1.T1.S1", "--reason", "out of scope"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "marked as skipped")

	mgr := session.NewManager(workDir, zerolog.Nop())
	sess, err := mgr.Current()
	require.NoError(t, err)
	item, err := sess.Item("P1.M1.T1.S1")
	require.NoError(t, err)
	assert.Equal(t, backlog.StatusComplete, item.Status)
}
