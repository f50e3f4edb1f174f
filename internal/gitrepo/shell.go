package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ShellManager implements Manager by shelling out to the git binary,
// classifying failures from stderr text the same way the prior
// internal/git/shell.go does.
type ShellManager struct {
	workDir      string
	branchPrefix string
}

// NewShellManager returns a ShellManager rooted at workDir, prefixing
// branch names it creates/switches to with branchPrefix (e.g. "forge/").
func NewShellManager(workDir, branchPrefix string) *ShellManager {
	return &ShellManager{workDir: workDir, branchPrefix: branchPrefix}
}

func (m *ShellManager) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := stderr.String()
		lower := strings.ToLower(stderrStr)

		if strings.Contains(lower, "not a git repository") {
			return "", &Error{Command: "git " + strings.Join(args, " "), Output: stderrStr, Err: ErrNotAGitRepo}
		}
		if strings.Contains(lower, "ambiguous argument 'head'") || strings.Contains(lower, "unknown revision") {
			return "", &Error{Command: "git " + strings.Join(args, " "), Output: stderrStr, Err: ErrNoCommits}
		}
		return "", &Error{Command: "git " + strings.Join(args, " "), Output: stderrStr, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Init initializes a new repository if workDir isn't one already.
func (m *ShellManager) Init(ctx context.Context) error {
	_, err := m.runGit(ctx, "rev-parse", "--git-dir")
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotAGitRepo) {
		return err
	}
	_, err = m.runGit(ctx, "init")
	return err
}

func (m *ShellManager) GetCurrentBranch(ctx context.Context) (string, error) {
	return m.runGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (m *ShellManager) getCurrentBranchSymbolic(ctx context.Context) (string, error) {
	return m.runGit(ctx, "symbolic-ref", "--short", "HEAD")
}

func (m *ShellManager) GetCurrentCommit(ctx context.Context) (string, error) {
	return m.runGit(ctx, "rev-parse", "HEAD")
}

func (m *ShellManager) HasChanges(ctx context.Context) (bool, error) {
	output, err := m.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return output != "", nil
}

func (m *ShellManager) GetDiffStat(ctx context.Context) (string, error) {
	return m.runGit(ctx, "diff", "--stat")
}

func (m *ShellManager) GetChangedFiles(ctx context.Context) ([]string, error) {
	output, err := m.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) <= 3 {
			continue
		}
		file := strings.TrimSpace(line[2:])
		if idx := strings.Index(file, " -> "); idx != -1 {
			file = file[idx+4:]
		}
		files = append(files, file)
	}
	return files, nil
}

func (m *ShellManager) Commit(ctx context.Context, message string) (string, error) {
	hasChanges, err := m.HasChanges(ctx)
	if err != nil {
		return "", err
	}
	if !hasChanges {
		return "", &Error{Command: "git commit", Output: "nothing to commit, working tree clean", Err: ErrNoChanges}
	}
	if _, err := m.runGit(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := m.runGit(ctx, "commit", "-m", message); err != nil {
		return "", &Error{Command: "git commit", Output: err.Error(), Err: ErrCommitFailed}
	}
	return m.GetCurrentCommit(ctx)
}

// CommitSubtask commits with the "<subtaskID>: <title>" message convention
// that FindSubtaskBaseCommit's --grep lookup relies on to locate a
// subtask's commit during revert. Centralizing the format here, rather than
// leaving every caller to build the string itself, keeps that convention
// from drifting out of sync with the grep pattern.
func (m *ShellManager) CommitSubtask(ctx context.Context, subtaskID, title string) (string, error) {
	return m.Commit(ctx, fmt.Sprintf("%s: %s", subtaskID, title))
}

func (m *ShellManager) EnsureBranch(ctx context.Context, branchName string) error {
	full := m.branchPrefix + branchName

	current, err := m.GetCurrentBranch(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCommits) {
			current, err = m.getCurrentBranchSymbolic(ctx)
			if err != nil {
				return err
			}
			if current == full {
				return nil
			}
			_, err = m.runGit(ctx, "checkout", "-b", full)
			return err
		}
		return err
	}
	if current == full {
		return nil
	}

	if _, err := m.runGit(ctx, "rev-parse", "--verify", full); err == nil {
		_, err = m.runGit(ctx, "checkout", full)
		return err
	}
	_, err = m.runGit(ctx, "checkout", "-b", full)
	return err
}

func (m *ShellManager) GetCommitMessage(ctx context.Context, hash string) (string, error) {
	return m.runGit(ctx, "log", "-1", "--format=%B", hash)
}

// ResetToCommit hard-resets the working tree to hash, used by triage's
// revert command to undo a subtask's changes back to the parent of the
// subtask's commit.
func (m *ShellManager) ResetToCommit(ctx context.Context, hash string) error {
	if hash == "" {
		return fmt.Errorf("gitrepo: empty commit hash")
	}
	_, err := m.runGit(ctx, "reset", "--hard", hash)
	return err
}
