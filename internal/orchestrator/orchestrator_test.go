package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/session"
)

func newTestSession(t *testing.T) (*session.Session, string) {
	t.Helper()
	root := t.TempDir()
	prdPath := filepath.Join(root, "prd.md")
	if err := os.WriteFile(prdPath, []byte("## Goals\n\nBuild it.\n"), 0644); err != nil {
		t.Fatalf("writing PRD: %v", err)
	}
	m := session.NewManager(root, zerolog.Nop())
	s, err := m.Create(prdPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := session.SetPaused(root, false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	return s, root
}

func addChain(t *testing.T, s *session.Session, ids ...string) {
	t.Helper()
	now := time.Now()
	for _, id := range ids {
		lvl, err := backlog.LevelOf(id)
		if err != nil {
			t.Fatalf("LevelOf(%s): %v", id, err)
		}
		item := &backlog.Item{
			ID:        id,
			Level:     lvl,
			ParentID:  backlog.ParentIDOf(id),
			Title:     id,
			Status:    backlog.StatusPlanned,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if lvl == backlog.LevelSubtask {
			item.StoryPoints = 3
		}
		if err := s.AddItem(item); err != nil {
			t.Fatalf("AddItem(%s): %v", id, err)
		}
	}
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeExecutor) ExecuteSubtask(_ context.Context, item *backlog.Item) (*SubtaskOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	f.mu.Unlock()
	if f.fail[item.ID] {
		return &SubtaskOutcome{Success: false, Feedback: "boom"}, nil
	}
	return &SubtaskOutcome{Success: true, CostUSD: 0.01, FilesChanged: []string{"a.go"}}, nil
}

func TestRunCompletesLinearChain(t *testing.T) {
	s, root := newTestSession(t)
	addChain(t, s, "P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2")

	b := s.Backlog()
	s2, _ := b.Get("P1.M1.T1.S2")
	s2.DependsOn = []string{"P1.M1.T1.S1"}

	exec := &fakeExecutor{fail: map[string]bool{}}
	o := New(s, exec, root, zerolog.Nop())

	result := o.Run(context.Background(), "")
	if result.Outcome != RunOutcomeCompleted {
		t.Fatalf("Outcome = %v, want completed (%s)", result.Outcome, result.Message)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("calls = %v, want 2 subtasks executed", exec.calls)
	}
	if exec.calls[0] != "P1.M1.T1.S1" {
		t.Errorf("first dispatched = %s, want P1.M1.T1.S1 (dependency order)", exec.calls[0])
	}

	phase, err := b.Get("P1")
	if err != nil {
		t.Fatalf("Get(P1): %v", err)
	}
	if phase.Status != backlog.StatusComplete {
		t.Errorf("phase rollup status = %s, want complete", phase.Status)
	}
}

func TestRunMarksFailedAfterRetriesExhausted(t *testing.T) {
	s, root := newTestSession(t)
	addChain(t, s, "P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1")

	exec := &fakeExecutor{fail: map[string]bool{"P1.M1.T1.S1": true}}
	o := New(s, exec, root, zerolog.Nop())
	o.SetMaxRetries(1)
	o.SetGutterConfig(GutterConfig{}) // disable gutter so retries run to exhaustion

	result := o.Run(context.Background(), "")
	if result.Outcome != RunOutcomeBlocked {
		t.Fatalf("Outcome = %v, want blocked (%s)", result.Outcome, result.Message)
	}

	it, err := s.Backlog().Get("P1.M1.T1.S1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if it.Status != backlog.StatusFailed {
		t.Errorf("status = %s, want failed after retries exhausted", it.Status)
	}
	if len(exec.calls) != 2 {
		t.Errorf("calls = %d, want 2 (1 initial + 1 retry)", len(exec.calls))
	}
}

func TestRunBlocksDependentsOfFailedSubtask(t *testing.T) {
	s, root := newTestSession(t)
	addChain(t, s, "P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2", "P1.M1.T1.S3")

	b := s.Backlog()
	s2, _ := b.Get("P1.M1.T1.S2")
	s2.DependsOn = []string{"P1.M1.T1.S1"}
	s3, _ := b.Get("P1.M1.T1.S3")
	s3.DependsOn = []string{"P1.M1.T1.S2"}

	exec := &fakeExecutor{fail: map[string]bool{"P1.M1.T1.S1": true}}
	o := New(s, exec, root, zerolog.Nop())
	o.SetMaxRetries(0)
	o.SetGutterConfig(GutterConfig{})

	result := o.Run(context.Background(), "")
	if result.Outcome != RunOutcomeBlocked {
		t.Fatalf("Outcome = %v, want blocked (%s)", result.Outcome, result.Message)
	}
	if len(result.CompletedItems) != 0 {
		t.Errorf("CompletedItems = %v, want none", result.CompletedItems)
	}
	if len(result.FailedItems) != 1 || result.FailedItems[0] != "P1.M1.T1.S1" {
		t.Errorf("FailedItems = %v, want [P1.M1.T1.S1]", result.FailedItems)
	}
	if len(result.BlockedItems) != 2 {
		t.Fatalf("BlockedItems = %v, want S2 and S3 both blocked", result.BlockedItems)
	}

	it1, _ := b.Get("P1.M1.T1.S1")
	if it1.Status != backlog.StatusFailed {
		t.Errorf("S1 status = %s, want failed", it1.Status)
	}
	it2, _ := b.Get("P1.M1.T1.S2")
	if it2.Status != backlog.StatusBlocked {
		t.Errorf("S2 status = %s, want blocked (its dependency failed)", it2.Status)
	}
	it3, _ := b.Get("P1.M1.T1.S3")
	if it3.Status != backlog.StatusBlocked {
		t.Errorf("S3 status = %s, want blocked (transitively, via S2)", it3.Status)
	}

	for _, id := range exec.calls {
		if id == "P1.M1.T1.S2" || id == "P1.M1.T1.S3" {
			t.Errorf("blocked subtask %s was dispatched to the executor", id)
		}
	}
}

func TestRunRespectsBudget(t *testing.T) {
	s, root := newTestSession(t)
	addChain(t, s, "P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2")

	exec := &fakeExecutor{fail: map[string]bool{}}
	o := New(s, exec, root, zerolog.Nop())
	o.SetBudgetLimits(BudgetLimits{MaxIterations: 1})

	result := o.Run(context.Background(), "")
	if result.Outcome != RunOutcomeBudgetExceeded {
		t.Fatalf("Outcome = %v, want budget_exceeded", result.Outcome)
	}
	if result.IterationsRun != 1 {
		t.Errorf("IterationsRun = %d, want 1", result.IterationsRun)
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		children []backlog.Status
		want     backlog.Status
	}{
		{"empty", nil, backlog.StatusPlanned},
		{"all complete", []backlog.Status{backlog.StatusComplete, backlog.StatusComplete}, backlog.StatusComplete},
		{"one blocked wins", []backlog.Status{backlog.StatusComplete, backlog.StatusBlocked}, backlog.StatusBlocked},
		{"active in progress", []backlog.Status{backlog.StatusComplete, backlog.StatusImplementing}, backlog.StatusImplementing},
		{"failed with no active", []backlog.Status{backlog.StatusPlanned, backlog.StatusFailed}, backlog.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveStatus(tc.children); got != tc.want {
				t.Errorf("deriveStatus(%v) = %s, want %s", tc.children, got, tc.want)
			}
		})
	}
}
