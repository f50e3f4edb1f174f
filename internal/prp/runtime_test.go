package prp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/verify"
)

const blueprintJSON = `{"objective":"do it","context":"ctx","implementationSteps":["step1"],"validationGates":["gate1","gate2"],"successCriteria":["works"],"references":[]}`

type scriptedRunner struct {
	responses []agent.Response
	errs      []error
	calls     int
}

func (r *scriptedRunner) Run(_ context.Context, _ agent.Request) (*agent.Response, error) {
	i := r.calls
	r.calls++
	if i >= len(r.errs) {
		i = len(r.errs) - 1
	}
	var err error
	if i >= 0 && i < len(r.errs) {
		err = r.errs[i]
	}
	if err != nil {
		return nil, err
	}
	j := r.calls - 1
	if j >= len(r.responses) {
		j = len(r.responses) - 1
	}
	resp := r.responses[j]
	return &resp, nil
}

type fakeGit struct {
	changed []string
	commits int
}

func (g *fakeGit) Init(context.Context) error                  { return nil }
func (g *fakeGit) EnsureBranch(context.Context, string) error  { return nil }
func (g *fakeGit) GetCurrentBranch(context.Context) (string, error) { return "main", nil }
func (g *fakeGit) GetCurrentCommit(context.Context) (string, error) { return "deadbeef", nil }
func (g *fakeGit) HasChanges(context.Context) (bool, error)    { return len(g.changed) > 0, nil }
func (g *fakeGit) GetDiffStat(context.Context) (string, error) { return "", nil }
func (g *fakeGit) GetChangedFiles(context.Context) ([]string, error) {
	return g.changed, nil
}
func (g *fakeGit) Commit(context.Context, string) (string, error) {
	g.commits++
	return "commit-sha", nil
}
func (g *fakeGit) CommitSubtask(ctx context.Context, subtaskID, title string) (string, error) {
	return g.Commit(ctx, subtaskID+": "+title)
}
func (g *fakeGit) GetCommitMessage(context.Context, string) (string, error) { return "", nil }
func (g *fakeGit) ResetToCommit(context.Context, string) error              { return nil }

func newTestItem() *backlog.Item {
	return &backlog.Item{
		ID: "P1.M1.T1.S1", Level: backlog.LevelSubtask, ParentID: "P1.M1.T1",
		Title: "Widget", StoryPoints: 3,
	}
}

func TestExecuteSubtaskSuccess(t *testing.T) {
	dir := t.TempDir()
	researcher := &scriptedRunner{responses: []agent.Response{{FinalText: blueprintJSON}}}
	coder := &scriptedRunner{responses: []agent.Response{{FinalText: `{"result":"success","message":"did it"}`}}}
	git := &fakeGit{changed: []string{"a.go"}}

	deps := Deps{
		Researcher:  researcher,
		Coder:       coder,
		Verify:      verify.NewRunner([]string{"true"}),
		Git:         git,
		Checkpoints: NewCheckpointManager(filepath.Join(dir, "artifacts")),
		Cache:       NewCache(filepath.Join(dir, "cache")),
		Gates: []verify.Command{
			{Gate: verify.GateSyntax, Args: []string{"true"}},
			{Gate: verify.GateUnit, Args: []string{"true"}},
		},
		Log: zerolog.Nop(),
	}
	rt := New(deps, dir)

	outcome, err := rt.ExecuteSubtask(context.Background(), newTestItem())
	if err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("Success = false, want true (feedback: %s)", outcome.Feedback)
	}
	if len(outcome.GateResults) != 2 {
		t.Errorf("len(GateResults) = %d, want 2", len(outcome.GateResults))
	}
	if git.commits != 1 {
		t.Errorf("commits = %d, want 1", git.commits)
	}
	if len(outcome.FilesChanged) != 1 {
		t.Errorf("FilesChanged = %v, want 1 entry", outcome.FilesChanged)
	}
}

func TestExecuteSubtaskGateFailureExhaustsFixRetries(t *testing.T) {
	dir := t.TempDir()
	researcher := &scriptedRunner{responses: []agent.Response{{FinalText: blueprintJSON}}}
	coder := &scriptedRunner{responses: []agent.Response{{FinalText: `{"result":"success","message":"did it"}`}}}
	git := &fakeGit{}

	deps := Deps{
		Researcher:  researcher,
		Coder:       coder,
		Verify:      verify.NewRunner([]string{"false"}),
		Git:         git,
		Checkpoints: NewCheckpointManager(filepath.Join(dir, "artifacts")),
		Cache:       NewCache(filepath.Join(dir, "cache")),
		Gates:       []verify.Command{{Gate: verify.GateSyntax, Args: []string{"false"}}},
		Log:         zerolog.Nop(),
		MaxFixRetries: 2,
	}
	rt := New(deps, dir)

	outcome, err := rt.ExecuteSubtask(context.Background(), newTestItem())
	if err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if outcome.Success {
		t.Fatal("Success = true, want false after exhausting fix-retries")
	}
	if git.commits != 0 {
		t.Errorf("commits = %d, want 0 (gates never passed)", git.commits)
	}
	// 1 initial coder call + 2 fix-retry coder calls.
	if coder.calls != 3 {
		t.Errorf("coder.calls = %d, want 3", coder.calls)
	}
}

func TestExecuteSubtaskBlueprintSchemaFailureSurfaces(t *testing.T) {
	dir := t.TempDir()
	researcher := &scriptedRunner{responses: []agent.Response{{FinalText: `{"objective":"incomplete"}`}}}
	coder := &scriptedRunner{}

	deps := Deps{
		Researcher:  researcher,
		Coder:       coder,
		Verify:      verify.NewRunner([]string{"true"}),
		Git:         &fakeGit{},
		Checkpoints: NewCheckpointManager(filepath.Join(dir, "artifacts")),
		Cache:       NewCache(filepath.Join(dir, "cache")),
		Log:         zerolog.Nop(),
	}
	rt := New(deps, dir)

	outcome, err := rt.ExecuteSubtask(context.Background(), newTestItem())
	if err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if outcome.Success {
		t.Fatal("Success = true, want false for invalid blueprint schema")
	}
	if outcome.Feedback == "" {
		t.Error("expected feedback describing blueprint generation failure")
	}
}

func TestBlueprintCacheHitSkipsResearcher(t *testing.T) {
	dir := t.TempDir()
	researcher := &scriptedRunner{responses: []agent.Response{{FinalText: blueprintJSON}}}
	coder := &scriptedRunner{responses: []agent.Response{{FinalText: `{"result":"success","message":"ok"}`}}}

	deps := Deps{
		Researcher:  researcher,
		Coder:       coder,
		Verify:      verify.NewRunner([]string{"true"}),
		Git:         &fakeGit{},
		Checkpoints: NewCheckpointManager(filepath.Join(dir, "artifacts")),
		Cache:       NewCache(filepath.Join(dir, "cache")),
		Gates:       []verify.Command{{Gate: verify.GateSyntax, Args: []string{"true"}}},
		Log:         zerolog.Nop(),
	}
	rt := New(deps, dir)
	item := newTestItem()

	if _, err := rt.ExecuteSubtask(context.Background(), item); err != nil {
		t.Fatalf("first ExecuteSubtask: %v", err)
	}
	if researcher.calls != 1 {
		t.Fatalf("researcher.calls after first run = %d, want 1", researcher.calls)
	}

	if _, err := rt.ExecuteSubtask(context.Background(), item); err != nil {
		t.Fatalf("second ExecuteSubtask: %v", err)
	}
	if researcher.calls != 1 {
		t.Errorf("researcher.calls after second run = %d, want 1 (cache hit)", researcher.calls)
	}
}
