// Package orchestrator implements the Task Orchestrator: the component
// that walks a session's backlog in dependency order and drives each ready
// Subtask to completion via the PRP Runtime, while Phase/Milestone/Task
// status is derived bottom-up from their descendants. Grounded on the
// internal/loop/controller.go (RunLoop/RunOnce dispatch loop)
// and internal/selector/ready.go (dependency gating), generalized from a
// flat single-level task model to the four-level backlog hierarchy and
// from a fixed serial loop to a bounded-parallelism worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/graphutil"
	"github.com/autoforge/autoforge/internal/scope"
	"github.com/autoforge/autoforge/internal/session"
)

// RunOutcome is the final disposition of a Run call.
type RunOutcome string

const (
	RunOutcomeCompleted      RunOutcome = "completed"
	RunOutcomeBlocked        RunOutcome = "blocked"
	RunOutcomeBudgetExceeded RunOutcome = "budget_exceeded"
	RunOutcomeGutterDetected RunOutcome = "gutter_detected"
	RunOutcomePaused         RunOutcome = "paused"
	RunOutcomeError          RunOutcome = "error"
)

// SubtaskOutcome is what an Executor reports back for one Subtask attempt.
type SubtaskOutcome struct {
	Success      bool
	CostUSD      float64
	FilesChanged []string
	GateResults  []*GateResult
	Feedback     string
}

// GateResult is the subset of a verify.Result the gutter detector and
// retry-feedback path need; kept independent of internal/verify's import
// so Executor implementations can report gate outcomes without this
// package importing verify directly for the type alone.
type GateResult struct {
	Gate    string
	Passed  bool
	Command string
	Output  string
}

// Executor drives a single Subtask to completion: the PRP Runtime's
// researcher-to-coder-to-verify-to-commit cycle. The orchestrator owns
// queueing, gating, retries, budget, and gutter detection; Executor owns
// everything that happens inside one attempt.
type Executor interface {
	ExecuteSubtask(ctx context.Context, item *backlog.Item) (*SubtaskOutcome, error)
}

// RunResult summarizes one Run call.
type RunResult struct {
	Outcome        RunOutcome
	Message        string
	IterationsRun  int
	CompletedItems []string
	FailedItems    []string
	BlockedItems   []string
	TotalCostUSD   float64
	ElapsedTime    time.Duration
}

// Orchestrator dispatches ready Subtasks from a session's backlog.
type Orchestrator struct {
	sess *session.Session
	exec Executor
	root string
	log  zerolog.Logger

	budget *BudgetTracker
	gutter *GutterDetector

	parallelism int
	maxRetries  int

	mu       sync.Mutex
	attempts map[string]int
}

// New returns an Orchestrator with the prior defaults: serial
// dispatch (parallelism 1, per SPEC_FULL.md §12's Open Question decision),
// two retries per Subtask, and the standard budget/gutter configuration.
func New(sess *session.Session, exec Executor, root string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		sess:        sess,
		exec:        exec,
		root:        root,
		log:         log,
		budget:      NewBudgetTracker(DefaultBudgetLimits()),
		gutter:      NewGutterDetector(DefaultGutterConfig()),
		parallelism: 1,
		maxRetries:  2,
		attempts:    make(map[string]int),
	}
}

// SetBudgetLimits overrides the default budget limits.
func (o *Orchestrator) SetBudgetLimits(limits BudgetLimits) { o.budget = NewBudgetTracker(limits) }

// SetGutterConfig overrides the default gutter detection config.
func (o *Orchestrator) SetGutterConfig(config GutterConfig) { o.gutter = NewGutterDetector(config) }

// SetParallelism sets how many ready Subtasks may run concurrently.
func (o *Orchestrator) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	o.parallelism = n
}

// SetMaxRetries sets how many retries a failing Subtask gets before being
// marked Failed and requiring operator triage.
func (o *Orchestrator) SetMaxRetries(n int) { o.maxRetries = n }

// Run walks the backlog within scopeExpr (empty selects everything) in
// dependency order, dispatching ready Subtasks through Executor until the
// scope is complete, blocked, budget-exceeded, gutter-detected, or the run
// is cancelled or paused.
func (o *Orchestrator) Run(ctx context.Context, scopeExpr string) RunResult {
	start := time.Now()
	result := RunResult{}

	b := o.sess.Backlog()
	queue, err := scope.Resolve(b, scopeExpr)
	if err != nil {
		return o.errResult(start, fmt.Errorf("resolving scope: %w", err))
	}
	leaves := scope.Leaves(b, queue)

	dependsOn := make(map[string][]string, len(leaves))
	for _, id := range leaves {
		it, getErr := b.Get(id)
		if getErr != nil {
			return o.errResult(start, getErr)
		}
		dependsOn[id] = it.DependsOn
	}
	graph, err := graphutil.Build(leaves, dependsOn)
	if err != nil {
		return o.errResult(start, fmt.Errorf("building dependency graph: %w", err))
	}
	if cycle := graph.DetectCycle(); cycle != nil {
		return o.errResult(start, fmt.Errorf("dependency cycle detected: %v", cycle))
	}

	for {
		if ctx.Err() != nil {
			result.Outcome = RunOutcomePaused
			result.Message = "run cancelled"
			break
		}

		paused, pauseErr := session.IsPaused(o.root)
		if pauseErr == nil && paused {
			result.Outcome = RunOutcomePaused
			result.Message = "run paused (use 'forge resume' to continue)"
			break
		}

		if status := o.budget.CheckBudget(); !status.CanContinue {
			result.Outcome = RunOutcomeBudgetExceeded
			result.Message = status.Reason
			break
		}

		if status := o.gutter.Check(); status.InGutter {
			result.Outcome = RunOutcomeGutterDetected
			result.Message = status.Description
			break
		}

		batch := o.nextBatch(b, leaves, graph)
		if len(batch) == 0 {
			result.Outcome, result.Message = o.terminalOutcome(b, leaves)
			break
		}

		outcomes := o.runBatch(ctx, b, batch)
		result.IterationsRun += len(batch)

		for _, id := range batch {
			oc := outcomes[id]
			if oc.err != nil || !oc.outcome.Success {
				result.FailedItems = append(result.FailedItems, id)
			} else {
				result.CompletedItems = append(result.CompletedItems, id)
				result.TotalCostUSD += oc.outcome.CostUSD
			}
		}

		if err := o.sess.FlushUpdates(); err != nil {
			o.log.Warn().Err(err).Msg("orchestrator: flush after batch failed")
		}
	}

	result.BlockedItems = blockedLeaves(b, leaves)
	result.ElapsedTime = time.Since(start)
	return result
}

// blockedLeaves returns every in-scope leaf currently marked Blocked, sorted
// for deterministic reporting.
func blockedLeaves(b *backlog.Backlog, leaves []string) []string {
	var blocked []string
	for _, id := range leaves {
		it, err := b.Get(id)
		if err == nil && it.Status == backlog.StatusBlocked {
			blocked = append(blocked, id)
		}
	}
	sort.Strings(blocked)
	return blocked
}

func (o *Orchestrator) errResult(start time.Time, err error) RunResult {
	return RunResult{Outcome: RunOutcomeError, Message: err.Error(), ElapsedTime: time.Since(start)}
}

// nextBatch selects up to o.parallelism ready, non-terminal Subtask ids
// from leaves (preserving DFS pre-order), skipping anything Blocked (which
// requires operator triage to clear) or already terminal.
func (o *Orchestrator) nextBatch(b *backlog.Backlog, leaves []string, graph *graphutil.Graph) []string {
	done := make(map[string]bool, len(leaves))
	for _, id := range leaves {
		it, err := b.Get(id)
		if err == nil && it.Status == backlog.StatusComplete {
			done[id] = true
		}
	}
	ready := graph.Ready(done)

	var batch []string
	for _, id := range leaves {
		it, err := b.Get(id)
		if err != nil {
			continue
		}
		if it.Status == backlog.StatusComplete || it.Status == backlog.StatusFailed || it.Status == backlog.StatusBlocked {
			continue
		}
		if !ready[id] {
			continue
		}
		batch = append(batch, id)
		if len(batch) >= o.parallelism {
			break
		}
	}
	return batch
}

type batchOutcome struct {
	outcome *SubtaskOutcome
	err     error
}

// runBatch executes batch concurrently, bounded by o.parallelism, updating
// backlog status, budget, gutter history, and ancestor rollups for each
// completed Subtask.
func (o *Orchestrator) runBatch(ctx context.Context, b *backlog.Backlog, batch []string) map[string]batchOutcome {
	results := make(map[string]batchOutcome, len(batch))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	for _, id := range batch {
		id := id
		g.Go(func() error {
			it, err := b.Get(id)
			if err != nil {
				mu.Lock()
				results[id] = batchOutcome{err: err}
				mu.Unlock()
				return nil
			}

			_ = o.sess.UpdateItemStatus(id, backlog.StatusImplementing)
			o.log.Info().Str("item", id).Str("title", it.Title).Msg("orchestrator: dispatching subtask")

			outcome, execErr := o.exec.ExecuteSubtask(gctx, it)

			mu.Lock()
			results[id] = batchOutcome{outcome: outcome, err: execErr}
			mu.Unlock()

			o.finishSubtask(b, id, outcome, execErr)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// finishSubtask records one Subtask's outcome into status, budget, and
// gutter state, then propagates status changes up the ancestor chain.
func (o *Orchestrator) finishSubtask(b *backlog.Backlog, id string, outcome *SubtaskOutcome, execErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	success := execErr == nil && outcome != nil && outcome.Success
	var cost float64
	var files []string
	var gates []*GateResult
	if outcome != nil {
		cost = outcome.CostUSD
		files = outcome.FilesChanged
		gates = outcome.GateResults
	}

	o.budget.RecordIteration(cost)
	o.gutter.RecordIteration(IterationOutcome{
		SubtaskID:    id,
		Failed:       !success,
		FilesChanged: files,
		GateResults:  gates,
	})

	if success {
		_ = o.sess.UpdateItemStatus(id, backlog.StatusComplete)
		delete(o.attempts, id)
		o.gutter.Reset()
	} else {
		o.attempts[id]++
		if o.attempts[id] > o.maxRetries {
			_ = o.sess.UpdateItemStatus(id, backlog.StatusFailed)
			o.cascadeBlocked(b, id)
		} else {
			_ = o.sess.UpdateItemStatus(id, backlog.StatusPlanned)
		}
	}

	o.rollupAncestors(b, id)
}

// cascadeBlocked marks every Subtask that depends, directly or
// transitively, on a terminally Failed Subtask as Blocked: its dependency
// will never complete, so it can never become ready and nextBatch must stop
// offering it. The cascade continues from each newly Blocked id so a chain
// of dependents (S2 depends on S1, S3 depends on S2, ...) is blocked all
// the way down rather than just the immediate dependent.
func (o *Orchestrator) cascadeBlocked(b *backlog.Backlog, terminalID string) {
	queue := []string{terminalID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for id, it := range b.Items {
			if it.Level != backlog.LevelSubtask {
				continue
			}
			if it.Status == backlog.StatusComplete || it.Status == backlog.StatusFailed || it.Status == backlog.StatusBlocked {
				continue
			}
			dependsOnCur := false
			for _, dep := range it.DependsOn {
				if dep == cur {
					dependsOnCur = true
					break
				}
			}
			if !dependsOnCur {
				continue
			}
			_ = o.sess.UpdateItemStatus(id, backlog.StatusBlocked)
			o.rollupAncestors(b, id)
			queue = append(queue, id)
		}
	}
}

// rollupAncestors walks up from id's parent to the root Phase, re-deriving
// each ancestor's status from its children since non-leaf items carry no Agent work
// to Phase/Milestone/Task items, so their status is purely a function of
// Subtask progress underneath them.
func (o *Orchestrator) rollupAncestors(b *backlog.Backlog, id string) {
	it, err := b.Get(id)
	if err != nil {
		return
	}
	parentID := it.ParentID
	for parentID != "" {
		parent, perr := b.Get(parentID)
		if perr != nil {
			return
		}
		children := b.ChildrenOf(parentID)
		statuses := make([]backlog.Status, 0, len(children))
		for _, childID := range children {
			child, cerr := b.Get(childID)
			if cerr == nil {
				statuses = append(statuses, child.Status)
			}
		}
		derived := deriveStatus(statuses)
		if derived != parent.Status {
			_ = o.sess.UpdateItemStatus(parentID, derived)
		}
		parentID = parent.ParentID
	}
}

// deriveStatus rolls up a set of child statuses into their parent's status.
func deriveStatus(children []backlog.Status) backlog.Status {
	if len(children) == 0 {
		return backlog.StatusPlanned
	}
	allComplete := true
	anyBlocked := false
	anyFailed := false
	anyActive := false
	for _, s := range children {
		if s != backlog.StatusComplete {
			allComplete = false
		}
		switch s {
		case backlog.StatusBlocked:
			anyBlocked = true
		case backlog.StatusFailed:
			anyFailed = true
		case backlog.StatusResearching, backlog.StatusImplementing, backlog.StatusValidating:
			anyActive = true
		}
	}
	switch {
	case allComplete:
		return backlog.StatusComplete
	case anyBlocked:
		return backlog.StatusBlocked
	case anyActive:
		return backlog.StatusImplementing
	case anyFailed:
		return backlog.StatusFailed
	default:
		return backlog.StatusPlanned
	}
}

// terminalOutcome decides why nextBatch returned nothing: either every
// Subtask in scope is Complete, or something is blocking forward progress.
func (o *Orchestrator) terminalOutcome(b *backlog.Backlog, leaves []string) (RunOutcome, string) {
	var blocked, failed []string
	complete := 0
	for _, id := range leaves {
		it, err := b.Get(id)
		if err != nil {
			continue
		}
		switch it.Status {
		case backlog.StatusComplete:
			complete++
		case backlog.StatusBlocked:
			blocked = append(blocked, id)
		case backlog.StatusFailed:
			failed = append(failed, id)
		}
	}
	if complete == len(leaves) {
		return RunOutcomeCompleted, "all subtasks in scope completed"
	}
	sort.Strings(blocked)
	sort.Strings(failed)
	msg := "no ready subtasks available"
	if len(blocked) > 0 {
		msg = fmt.Sprintf("%s (blocked: %v)", msg, blocked)
	}
	if len(failed) > 0 {
		msg = fmt.Sprintf("%s (failed: %v)", msg, failed)
	}
	return RunOutcomeBlocked, msg
}
