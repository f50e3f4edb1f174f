package session

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/backlog"
)

func TestCreateDeltaCarriesForwardUnrelatedCompleteSubtask(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Billing\n\nExport invoices.\n\n## Auth\n\nLogin flow.\n")
	m := NewManager(root, zerolog.Nop())
	parent, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mustAdd(t, parent, &backlog.Item{ID: "P1", Level: backlog.LevelPhase, Title: "Phase", Status: backlog.StatusComplete})
	mustAdd(t, parent, &backlog.Item{ID: "P1.M1", Level: backlog.LevelMilestone, ParentID: "P1", Title: "Milestone", Status: backlog.StatusComplete})
	mustAdd(t, parent, &backlog.Item{ID: "P1.M1.T1", Level: backlog.LevelTask, ParentID: "P1.M1", Title: "Task", Status: backlog.StatusComplete})
	mustAdd(t, parent, &backlog.Item{ID: "P1.M1.T1.S1", Level: backlog.LevelSubtask, ParentID: "P1.M1.T1", Title: "Export invoices to CSV", Status: backlog.StatusComplete, StoryPoints: 3})
	if err := parent.FlushUpdates(); err != nil {
		t.Fatalf("FlushUpdates: %v", err)
	}

	newPRDPath := writePRD(t, root, "prd.md", "## Billing\n\nExport invoices.\n\n## Auth\n\nLogin flow with rate limiting.\n")
	next, err := m.CreateDelta(parent, newPRDPath)
	if err != nil {
		t.Fatalf("CreateDelta: %v", err)
	}

	got, err := next.Item("P1.M1.T1.S1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if got.Status != backlog.StatusComplete {
		t.Errorf("expected unrelated subtask to stay complete, got %s", got.Status)
	}
	if next.Meta.ParentSession != parent.Dir {
		t.Errorf("ParentSession = %q, want %q", next.Meta.ParentSession, parent.Dir)
	}
}

func mustAdd(t *testing.T, s *Session, item *backlog.Item) {
	t.Helper()
	if err := s.AddItem(item); err != nil {
		t.Fatalf("AddItem(%s): %v", item.ID, err)
	}
}
