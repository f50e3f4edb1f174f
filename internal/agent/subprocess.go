package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SubprocessRunner drives an agent CLI (e.g. `claude`) as a subprocess,
// streaming its NDJSON output to a log file while parsing it into a
// Response. This was the only transport
// (internal/claude/exec.go), generalized to the role-agnostic Runner
// interface.
type SubprocessRunner struct {
	Command []string
	LogsDir string
	Label   string // used in generated log filenames, e.g. "researcher" or "coder"
	log     zerolog.Logger
}

// NewSubprocessRunner returns a Runner backed by `command[0] command[1:]...`.
func NewSubprocessRunner(command []string, logsDir, label string, log zerolog.Logger) *SubprocessRunner {
	return &SubprocessRunner{Command: command, LogsDir: logsDir, Label: label, log: log}
}

func (r *SubprocessRunner) buildArgs(req Request) []string {
	args := append([]string{}, r.Command[1:]...)
	args = append(args, "--output-format=stream-json")
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.Continue {
		args = append(args, "--continue")
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, "-p", req.Prompt)
	return args
}

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (r *SubprocessRunner) generateLogFilename(label string) string {
	ts := time.Now().UTC().Format("20060102T150405.000000000")
	safe := invalidFilenameChars.ReplaceAllString(label, "_")
	return fmt.Sprintf("%s-%s.ndjson", ts, safe)
}

// Run executes one agent turn and blocks until it completes, ctx is
// cancelled, or the subprocess exits with an error.
func (r *SubprocessRunner) Run(ctx context.Context, req Request) (*Response, error) {
	if len(r.Command) == 0 {
		return nil, fmt.Errorf("agent: no command configured")
	}
	args := r.buildArgs(req)
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := os.MkdirAll(r.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("agent: creating logs dir: %w", err)
	}
	logPath := filepath.Join(r.LogsDir, r.generateLogFilename(r.Label))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("agent: creating log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	var stdoutBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent: stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agent: starting %s: %w", r.Command[0], err)
	}

	tee := io.TeeReader(stdoutPipe, logFile)
	copyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(&stdoutBuf, tee)
		copyDone <- err
	}()

	waitErr := cmd.Wait()
	copyErr := <-copyDone

	if ctx.Err() != nil {
		return nil, fmt.Errorf("agent: cancelled: %w", ctx.Err())
	}
	if copyErr != nil {
		return nil, fmt.Errorf("agent: reading stdout: %w", copyErr)
	}
	if waitErr != nil {
		r.log.Warn().Err(waitErr).Str("stderr", stderrBuf.String()).Msg("agent subprocess exited non-zero")
		return nil, fmt.Errorf("agent: %s exited: %w: %s", r.Command[0], waitErr, stderrBuf.String())
	}

	parsed, err := parseNDJSON(bytes.NewReader(stdoutBuf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("agent: parsing output: %w", err)
	}

	return &Response{
		SessionID:         parsed.SessionID,
		Model:             parsed.Model,
		FinalText:         parsed.FinalText,
		StreamText:        parsed.StreamText,
		Usage:             parsed.Usage,
		TotalCostUSD:       parsed.TotalCostUSD,
		PermissionDenials: parsed.PermissionDenials,
		RawEventsPath:     logPath,
	}, nil
}
