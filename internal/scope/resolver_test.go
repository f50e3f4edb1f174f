package scope

import (
	"testing"

	"github.com/autoforge/autoforge/internal/backlog"
)

func buildSample(t *testing.T) *backlog.Backlog {
	t.Helper()
	b := backlog.New()
	add := func(it *backlog.Item) {
		t.Helper()
		if err := b.Add(it); err != nil {
			t.Fatalf("Add(%s): %v", it.ID, err)
		}
	}
	add(&backlog.Item{ID: "P1", Level: backlog.LevelPhase, Title: "Phase 1", Status: backlog.StatusPlanned})
	add(&backlog.Item{ID: "P1.M1", Level: backlog.LevelMilestone, ParentID: "P1", Title: "M1", Status: backlog.StatusPlanned})
	add(&backlog.Item{ID: "P1.M1.T1", Level: backlog.LevelTask, ParentID: "P1.M1", Title: "T1", Status: backlog.StatusPlanned})
	add(&backlog.Item{ID: "P1.M1.T1.S1", Level: backlog.LevelSubtask, ParentID: "P1.M1.T1", Title: "S1", Status: backlog.StatusPlanned, StoryPoints: 1})
	add(&backlog.Item{ID: "P1.M1.T1.S2", Level: backlog.LevelSubtask, ParentID: "P1.M1.T1", Title: "S2", Status: backlog.StatusPlanned, StoryPoints: 1})
	add(&backlog.Item{ID: "P2", Level: backlog.LevelPhase, Title: "Phase 2", Status: backlog.StatusPlanned})
	add(&backlog.Item{ID: "P2.M1", Level: backlog.LevelMilestone, ParentID: "P2", Title: "M1", Status: backlog.StatusPlanned})
	return b
}

func TestResolveEmptyScope(t *testing.T) {
	b := buildSample(t)
	queue, err := Resolve(b, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2", "P2", "P2.M1"}
	assertEqual(t, queue, want)
}

func TestResolveScopedToMilestone(t *testing.T) {
	b := buildSample(t)
	queue, err := Resolve(b, "P1.M1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2"}
	assertEqual(t, queue, want)
}

func TestResolveScopeOutsideTree(t *testing.T) {
	b := buildSample(t)
	queue, err := Resolve(b, "P2.M1.T3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("expected empty queue for nonexistent scope, got %v", queue)
	}
}

func TestLeaves(t *testing.T) {
	b := buildSample(t)
	queue, _ := Resolve(b, "")
	leaves := Leaves(b, queue)
	want := []string{"P1.M1.T1.S1", "P1.M1.T1.S2"}
	assertEqual(t, leaves, want)
}

func assertEqual(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
