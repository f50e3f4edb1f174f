// Package triage provides the operator recovery commands: retry, skip, and
// revert for subtasks that end up failed or blocked, plus feedback capture
// for a retry. Grounded on internal/fix/fix.go, generalized
// from a flat task model to backlog subtask ids and from
// iteration-record base commits to the parent of the subtask's PRP Runtime
// commit, found by searching git log.
package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/gitrepo"
	"github.com/autoforge/autoforge/internal/prp"
	"github.com/autoforge/autoforge/internal/session"
)

// Issue is a fixable subtask (failed or blocked) surfaced to the operator.
type Issue struct {
	SubtaskID string
	Title     string
	Status    backlog.Status
	Attempts  int
}

// RevertInfo is the information an operator needs to confirm a revert
// before it happens.
type RevertInfo struct {
	SubtaskID             string
	CommitToResetTo       string
	SubtaskToReopen       string
	HasUncommittedChanges bool
}

// Service provides the triage operations over one session.
type Service struct {
	sess    *session.Session
	git     gitrepo.Manager
	cps     *prp.CheckpointManager
	workDir string
	root    string
}

// NewService returns a Service operating on sess, using git for working-copy
// state and revert, cps for checkpoint bookkeeping, workDir as the
// repository root FindSubtaskBaseCommit searches, and root as the plan root
// containing .forge/ (for feedback/skip-reason note files).
func NewService(sess *session.Session, git gitrepo.Manager, cps *prp.CheckpointManager, workDir, root string) *Service {
	return &Service{sess: sess, git: git, cps: cps, workDir: workDir, root: root}
}

// Retry resets a failed or blocked subtask back to planned so the
// orchestrator picks it up again. A subtask already planned is a no-op.
// If feedback is non-empty it is written to feedback-<id>.txt under the
// plan root's .forge/state directory; the item itself is not changed
// beyond its status, and the PRP Runtime does not read that file.
func (s *Service) Retry(subtaskID, feedback string) error {
	item, err := s.sess.Item(subtaskID)
	if err != nil {
		var nf *backlog.NotFoundError
		if errors.As(err, &nf) {
			return fmt.Errorf("triage: subtask %q not found", subtaskID)
		}
		return fmt.Errorf("triage: getting subtask: %w", err)
	}

	switch item.Status {
	case backlog.StatusFailed, backlog.StatusBlocked:
		// OK to retry.
	case backlog.StatusPlanned:
		return nil
	case backlog.StatusComplete:
		return fmt.Errorf("triage: cannot retry %q: subtask is complete", subtaskID)
	default:
		return fmt.Errorf("triage: cannot retry %q: status is %q (must be failed or blocked)", subtaskID, item.Status)
	}

	if err := s.sess.UpdateItemStatus(subtaskID, backlog.StatusPlanned); err != nil {
		return fmt.Errorf("triage: updating status: %w", err)
	}
	if err := s.sess.FlushUpdates(); err != nil {
		return fmt.Errorf("triage: flushing status update: %w", err)
	}

	if feedback != "" {
		if err := s.writeFeedback(subtaskID, feedback); err != nil {
			return err
		}
	}
	return nil
}

// IsPlanned reports whether subtaskID is already in the planned state, so
// callers can tell a true no-op retry from one that changed state.
func (s *Service) IsPlanned(subtaskID string) (bool, error) {
	item, err := s.sess.Item(subtaskID)
	if err != nil {
		return false, err
	}
	return item.Status == backlog.StatusPlanned, nil
}

// Skip marks a subtask as complete without executing it, recording reason
// as a feedback note for the audit trail. There is no explicit "skipped"
// status, so skip reuses complete — the subtask is simply never dispatched
// again — and the reason is preserved on disk for operators reviewing the
// session later.
func (s *Service) Skip(subtaskID, reason string) error {
	item, err := s.sess.Item(subtaskID)
	if err != nil {
		var nf *backlog.NotFoundError
		if errors.As(err, &nf) {
			return fmt.Errorf("triage: subtask %q not found", subtaskID)
		}
		return fmt.Errorf("triage: getting subtask: %w", err)
	}

	switch item.Status {
	case backlog.StatusPlanned, backlog.StatusFailed, backlog.StatusBlocked:
		// OK to skip.
	case backlog.StatusComplete:
		return nil
	default:
		return fmt.Errorf("triage: cannot skip %q: status is %q", subtaskID, item.Status)
	}

	if err := s.sess.UpdateItemStatus(subtaskID, backlog.StatusComplete); err != nil {
		return fmt.Errorf("triage: updating status: %w", err)
	}
	if err := s.sess.FlushUpdates(); err != nil {
		return fmt.Errorf("triage: flushing status update: %w", err)
	}

	if reason != "" {
		return s.writeSkipReason(subtaskID, reason)
	}
	return nil
}

// ListIssues returns every failed and blocked subtask in the session, with
// an attempt count derived from how many coder-response checkpoints it
// has retained.
func (s *Service) ListIssues() (failed, blocked []Issue, err error) {
	b := s.sess.Backlog()
	ids := make([]string, 0, len(b.Items))
	for id := range b.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		item := b.Items[id]
		attempts := s.countAttempts(id)
		switch item.Status {
		case backlog.StatusFailed:
			failed = append(failed, Issue{SubtaskID: id, Title: item.Title, Status: item.Status, Attempts: attempts})
		case backlog.StatusBlocked:
			blocked = append(blocked, Issue{SubtaskID: id, Title: item.Title, Status: item.Status, Attempts: attempts})
		}
	}
	return failed, blocked, nil
}

func (s *Service) countAttempts(subtaskID string) int {
	cps, err := s.cps.Load(subtaskID)
	if err != nil {
		return 0
	}
	count := 0
	for _, cp := range cps {
		if cp.State.Stage == prp.StageCoderResponse {
			count++
		}
	}
	return count
}

// RevertInfoFor reports what a Revert of subtaskID would do, without doing
// it: the base commit its PRP Runtime commit would be reset away from, and
// whether it would reopen a completed subtask.
func (s *Service) RevertInfoFor(ctx context.Context, subtaskID string) (*RevertInfo, error) {
	base, err := gitrepo.FindSubtaskBaseCommit(ctx, s.workDir, subtaskID)
	if err != nil {
		return nil, fmt.Errorf("triage: %w", err)
	}

	hasChanges, _ := s.git.HasChanges(ctx)

	subtaskToReopen := ""
	item, err := s.sess.Item(subtaskID)
	if err == nil && item.Status == backlog.StatusComplete {
		subtaskToReopen = subtaskID
	}

	return &RevertInfo{
		SubtaskID:             subtaskID,
		CommitToResetTo:       base,
		SubtaskToReopen:       subtaskToReopen,
		HasUncommittedChanges: hasChanges,
	}, nil
}

// Revert resets the working copy to the commit before subtaskID's PRP
// Runtime commit and, if the subtask had already completed, reopens it as
// planned. A cancelled checkpoint is appended so the revert itself is
// auditable alongside the subtask's other stage snapshots.
func (s *Service) Revert(ctx context.Context, subtaskID string) error {
	base, err := gitrepo.FindSubtaskBaseCommit(ctx, s.workDir, subtaskID)
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}

	if err := s.git.ResetToCommit(ctx, base); err != nil {
		return fmt.Errorf("triage: resetting to commit: %w", err)
	}

	if _, err := s.cps.Append(subtaskID, prp.CheckpointState{Stage: prp.StageCancelled}, &prp.CheckpointError{
		Message: fmt.Sprintf("reverted to commit %s by operator", base),
		Code:    "operator_revert",
	}); err != nil {
		return fmt.Errorf("triage: recording revert checkpoint: %w", err)
	}

	item, err := s.sess.Item(subtaskID)
	if err == nil && item.Status == backlog.StatusComplete {
		if err := s.sess.UpdateItemStatus(subtaskID, backlog.StatusPlanned); err != nil {
			return fmt.Errorf("triage: reopening subtask: %w", err)
		}
		if err := s.sess.FlushUpdates(); err != nil {
			return fmt.Errorf("triage: flushing status update: %w", err)
		}
	}
	return nil
}

func (s *Service) writeFeedback(subtaskID, feedback string) error {
	path := filepath.Join(session.StateDirPath(s.root), fmt.Sprintf("feedback-%s.txt", subtaskID))
	return os.WriteFile(path, []byte(feedback), 0644)
}

func (s *Service) writeSkipReason(subtaskID, reason string) error {
	path := filepath.Join(session.StateDirPath(s.root), fmt.Sprintf("skip-reason-%s.txt", subtaskID))
	return os.WriteFile(path, []byte(reason), 0644)
}

// ParseEditorContent removes comment lines (those starting with '#') and
// trims surrounding whitespace, matching the prior editor-feedback
// convention exactly.
func ParseEditorContent(content string) string {
	var result []byte
	inComment := false
	lineStart := true

	for _, ch := range content {
		if lineStart && ch == '#' {
			inComment = true
		}
		if ch == '\n' {
			if !inComment {
				result = append(result, '\n')
			}
			inComment = false
			lineStart = true
		} else {
			lineStart = false
			if !inComment {
				result = append(result, byte(ch))
			}
		}
	}

	return trimWhitespace(string(result))
}

func trimWhitespace(s string) string {
	start := 0
	end := len(s)
	for start < end && isWhitespace(s[start]) {
		start++
	}
	for end > start && isWhitespace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// OpenEditorForFeedback opens the user's editor ($EDITOR or $VISUAL, falling
// back to a short list of common editors) on a scratch file seeded with
// instructions, and returns the content entered once the editor closes.
func OpenEditorForFeedback(subtaskID string, stdin io.Reader, stdout, stderr io.Writer) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"vim", "vi", "nano", "notepad"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return "", fmt.Errorf("triage: no editor found, set EDITOR or VISUAL")
	}

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("autoforge-feedback-%s-*.txt", sanitizeID(subtaskID)))
	if err != nil {
		return "", fmt.Errorf("triage: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	instructions := fmt.Sprintf("# Enter feedback for subtask %s\n# Lines starting with # will be ignored.\n# Save and close the editor to continue.\n\n", subtaskID)
	if _, err := tmpFile.WriteString(instructions); err != nil {
		_ = tmpFile.Close()
		return "", fmt.Errorf("triage: writing instructions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("triage: closing temp file: %w", err)
	}

	editorCmd := exec.Command(editor, tmpPath)
	editorCmd.Stdin = stdin
	editorCmd.Stdout = stdout
	editorCmd.Stderr = stderr
	if err := editorCmd.Run(); err != nil {
		return "", fmt.Errorf("triage: editor failed: %w", err)
	}

	content, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("triage: reading feedback: %w", err)
	}
	return ParseEditorContent(string(content)), nil
}

func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '.' {
			c = '-'
		}
		out[i] = c
	}
	return string(out)
}
