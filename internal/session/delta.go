package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/delta"
)

// HasChanged reports whether the PRD at prdPath hashes differently than the
// one the session was created from.
func (s *Session) HasChanged(prdPath string) (bool, string, error) {
	prd, err := os.ReadFile(prdPath)
	if err != nil {
		return false, "", fmt.Errorf("session: reading PRD: %w", err)
	}
	hash := HashPRD(prd)
	return hash != s.Meta.PRDHash, hash, nil
}

// CreateDelta builds a new session from a changed PRD, carrying forward the
// parent session's Complete subtasks except where the deterministic section
// diff (internal/delta) shows their anchoring PRD section was removed (drop
// the subtask) or modified (reset to Planned for re-review). A subtask's
// anchoring section is one whose heading its title closely matches.
// Subtasks untouched by the diff carry
// forward unchanged, satisfying the DeltaSpec contract without an LLM
// round-trip (see SPEC_FULL.md §12).
func (m *Manager) CreateDelta(parent *Session, newPRDPath string) (*Session, error) {
	changed, hash, err := parent.HasChanged(newPRDPath)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("session: PRD unchanged, no delta session needed")
	}

	oldPRD, err := os.ReadFile(filepath.Join(parent.Dir, PRDSnapshotFile))
	if err != nil {
		return nil, fmt.Errorf("session: reading parent PRD snapshot: %w", err)
	}
	newPRD, err := os.ReadFile(newPRDPath)
	if err != nil {
		return nil, fmt.Errorf("session: reading new PRD: %w", err)
	}
	changes := delta.CompareSections(string(oldPRD), string(newPRD))

	next, err := m.Create(newPRDPath)
	if err != nil {
		return nil, err
	}
	next.Meta.ParentSession = parent.Dir
	next.Meta.PRDHash = hash
	if err := next.writeMeta(); err != nil {
		return nil, err
	}

	for _, id := range parent.backlog.Roots() {
		carryForward(parent.backlog, next.backlog, id, changes)
	}
	if err := next.FlushUpdates(); err != nil {
		return nil, err
	}
	return next, nil
}

// carryForward recursively copies item id and its descendants from src into
// dst, demoting Complete subtasks to Planned when the diff shows their
// anchoring section was modified, and dropping them entirely when their
// anchoring section was removed.
func carryForward(src, dst *backlog.Backlog, id string, changes []delta.SectionChange) {
	item, err := src.Get(id)
	if err != nil {
		return
	}
	clone := *item
	clone.DependsOn = append([]string{}, item.DependsOn...)

	if item.Level == backlog.LevelSubtask && item.Status == backlog.StatusComplete {
		switch classify(item, changes) {
		case delta.Removed:
			return // dropped entirely
		case delta.Modified:
			clone.Status = backlog.StatusPlanned
		}
	}

	_ = dst.Add(&clone)
	for _, child := range src.ChildrenOf(id) {
		carryForward(src, dst, child, changes)
	}
}

// classify decides which (if any) section change applies to item, by
// fuzzy-matching its title against the headings of removed/modified
// sections. Section bodies are not compared.
func classify(item *backlog.Item, changes []delta.SectionChange) delta.ChangeKind {
	for _, c := range changes {
		if c.Kind != delta.Removed && c.Kind != delta.Modified {
			continue
		}
		if delta.TitleSurvives(item.Title, c.Heading) {
			return c.Kind
		}
	}
	return delta.Unchanged
}
