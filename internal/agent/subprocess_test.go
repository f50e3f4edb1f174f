package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

// fakeAgentScript emits a minimal NDJSON stream to stdout, standing in for
// a real agent CLI so SubprocessRunner can be exercised without a live
// model.
func fakeAgentScript(t *testing.T) []string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script is POSIX shell only")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-agent.sh")
	body := "#!/bin/sh\n" +
		`echo '{"type":"system","session_id":"sess-1","model":"fake-model"}'` + "\n" +
		`echo '{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}'` + "\n" +
		`echo '{"type":"result","session_id":"sess-1","result":"ok","total_cost_usd":0.01,"usage":{"input_tokens":1,"output_tokens":2}}'` + "\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("writing fake agent script: %v", err)
	}
	return []string{"/bin/sh", script}
}

func TestSubprocessRunnerRun(t *testing.T) {
	cmd := fakeAgentScript(t)
	logsDir := t.TempDir()
	runner := NewSubprocessRunner(cmd, logsDir, "coder", zerolog.Nop())

	resp, err := runner.Run(context.Background(), Request{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", resp.SessionID)
	}
	if resp.FinalText != "ok" {
		t.Errorf("FinalText = %q, want ok", resp.FinalText)
	}
	if _, err := os.Stat(resp.RawEventsPath); err != nil {
		t.Errorf("expected NDJSON log file to exist at %s: %v", resp.RawEventsPath, err)
	}
}
