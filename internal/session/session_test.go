package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/backlog"
)

func writePRD(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing PRD: %v", err)
	}
	return path
}

func TestCreateAndLoad(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Goals\n\nBuild the thing.\n")

	m := NewManager(root, zerolog.Nop())
	s, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Meta.Seq != 0 {
		t.Errorf("Seq = %d, want 0", s.Meta.Seq)
	}

	loaded, err := m.Load(s.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Meta.PRDHash != s.Meta.PRDHash {
		t.Errorf("PRDHash mismatch after reload")
	}
}

func TestCreateThenSecondSessionIncrementsSeq(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Goals\n\nv1.\n")
	m := NewManager(root, zerolog.Nop())
	if _, err := m.Create(prdPath); err != nil {
		t.Fatalf("Create: %v", err)
	}

	prdPath2 := writePRD(t, root, "prd2.md", "## Goals\n\nv2.\n")
	s2, err := m.Create(prdPath2)
	if err != nil {
		t.Fatalf("Create #2: %v", err)
	}
	if s2.Meta.Seq != 1 {
		t.Errorf("second session Seq = %d, want 1", s2.Meta.Seq)
	}
}

func TestCurrentPointer(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Goals\n\nBuild.\n")
	m := NewManager(root, zerolog.Nop())
	s, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cur, err := m.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Dir != s.Dir {
		t.Errorf("Current().Dir = %s, want %s", cur.Dir, s.Dir)
	}
}

func TestUpdateItemStatusAndFlush(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Goals\n\nBuild.\n")
	m := NewManager(root, zerolog.Nop())
	s, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	item := &backlog.Item{ID: "P1", Level: backlog.LevelPhase, Title: "Phase", Status: backlog.StatusPlanned}
	if err := s.AddItem(item); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := s.UpdateItemStatus("P1", backlog.StatusImplementing); err != nil {
		t.Fatalf("UpdateItemStatus: %v", err)
	}
	if s.PendingCount() != 2 {
		t.Errorf("PendingCount = %d, want 2", s.PendingCount())
	}
	if err := s.FlushUpdates(); err != nil {
		t.Fatalf("FlushUpdates: %v", err)
	}
	if s.PendingCount() != 0 {
		t.Error("expected pending count reset after flush")
	}

	reloaded, err := m.Load(s.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := reloaded.Item("P1")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if got.Status != backlog.StatusImplementing {
		t.Errorf("Status = %s, want implementing", got.Status)
	}
}

func TestHasChanged(t *testing.T) {
	root := t.TempDir()
	prdPath := writePRD(t, root, "prd.md", "## Goals\n\nv1.\n")
	m := NewManager(root, zerolog.Nop())
	s, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	changed, _, err := s.HasChanged(prdPath)
	if err != nil {
		t.Fatalf("HasChanged: %v", err)
	}
	if changed {
		t.Error("expected no change against the same PRD content")
	}

	writePRD(t, root, "prd.md", "## Goals\n\nv2.\n")
	changed2, _, err := s.HasChanged(prdPath)
	if err != nil {
		t.Fatalf("HasChanged: %v", err)
	}
	if !changed2 {
		t.Error("expected change after editing PRD")
	}
}
