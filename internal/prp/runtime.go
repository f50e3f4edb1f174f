package prp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/gitrepo"
	"github.com/autoforge/autoforge/internal/memory"
	"github.com/autoforge/autoforge/internal/orchestrator"
	"github.com/autoforge/autoforge/internal/verify"
)

// ancestorContextLevels bounds how many ancestor levels are included in a
// researcher prompt, and ancestorContextChars bounds each one's title
// length. Both limits apply to every researcher prompt; there is no
// compression setting that switches them on or off.
const (
	ancestorContextLevels = 2
	ancestorContextChars  = 100
)

// DefaultMaxExecRetries is the default number of coder-execution attempts
// per execution, the first call included; a transport failure, an
// unparseable reply, or an "error" result uses up one attempt.
const DefaultMaxExecRetries = 3

// DefaultMaxFixRetries is the default fix-retry budget shared across all
// four validation gates for a single subtask.
const DefaultMaxFixRetries = 3

// execBaseDelays are the base backoff delays for coder-execution retries,
// before jitter is applied.
var execBaseDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// BlueprintGenerationError is returned when the researcher agent cannot
// produce a schema-conformant blueprint within its retry budget.
type BlueprintGenerationError struct {
	TaskID string
	Err    error
}

func (e *BlueprintGenerationError) Error() string {
	return fmt.Sprintf("prp: blueprint generation failed for %s: %v", e.TaskID, e.Err)
}

func (e *BlueprintGenerationError) Unwrap() error { return e.Err }

// coderResult is the structured payload the coder agent is expected to
// emit at the end of an execution or fix-retry turn.
type coderResult struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

const (
	coderResultSuccess = "success"
	coderResultError   = "error"
	coderResultIssue   = "issue"
)

// Deps wires the PRP Runtime's collaborators. Backlog is a read-only
// snapshot used to resolve a subtask's ancestor chain for blueprint
// prompting (the cache key and prompt composition both need it); the
// orchestrator, not the runtime, owns write access to the live backlog.
type Deps struct {
	Researcher  agent.Runner
	Coder       agent.Runner
	Verify      *verify.Runner
	Git         gitrepo.Manager
	Progress    *memory.ProgressFile
	Checkpoints *CheckpointManager
	Cache       *Cache
	Backlog     *backlog.Backlog
	Gates       []verify.Command
	Log         zerolog.Logger

	MaxExecRetries int
	MaxFixRetries  int
}

// Runtime implements orchestrator.Executor: the per-subtask lifecycle of
// blueprint generation, execution, progressive validation, and commit.
// Grounded on internal/loop.Controller.runIteration, split
// apart into the stage methods below since that loop had no
// blueprint/cache concept of its own.
type Runtime struct {
	deps       Deps
	sessionDir string
}

// New returns a Runtime rooted at sessionDir (a session's directory, the
// parent of its PRP/ and artifacts/ subdirectories).
func New(deps Deps, sessionDir string) *Runtime {
	if deps.MaxExecRetries <= 0 {
		deps.MaxExecRetries = DefaultMaxExecRetries
	}
	if deps.MaxFixRetries <= 0 {
		deps.MaxFixRetries = DefaultMaxFixRetries
	}
	return &Runtime{deps: deps, sessionDir: sessionDir}
}

// ExecuteSubtask drives one subtask through blueprint generation,
// execution, the four validation gates (with fix-retry), and commit. It
// satisfies orchestrator.Executor.
func (r *Runtime) ExecuteSubtask(ctx context.Context, item *backlog.Item) (*orchestrator.SubtaskOutcome, error) {
	log := r.deps.Log.With().Str("subtask", item.ID).Logger()
	var totalCost float64

	bp, genCost, err := r.generateBlueprint(ctx, item)
	totalCost += genCost
	if err != nil {
		return &orchestrator.SubtaskOutcome{Success: false, CostUSD: totalCost, Feedback: err.Error()}, nil
	}

	prpPath := blueprintPath(r.sessionDir, item.ID)
	if _, err := r.deps.Checkpoints.Append(item.ID, CheckpointState{
		PRPPath: prpPath, Stage: StagePreExecution, Timestamp: time.Now(),
	}, nil); err != nil {
		log.Warn().Err(err).Msg("writing pre-execution checkpoint")
	}

	cr, execCost, feedback, err := r.executeWithRetry(ctx, item, bp, "")
	totalCost += execCost
	if err != nil {
		r.recordCheckpoint(item.ID, StageCoderResponse, nil, &CheckpointError{Message: err.Error()})
		return &orchestrator.SubtaskOutcome{Success: false, CostUSD: totalCost, Feedback: err.Error()}, nil
	}
	if cr.Result == coderResultIssue {
		r.recordCheckpoint(item.ID, StageCoderResponse, nil, &CheckpointError{Message: cr.Message, Code: "issue"})
		return &orchestrator.SubtaskOutcome{Success: false, CostUSD: totalCost, Feedback: cr.Message}, nil
	}
	r.recordCheckpoint(item.ID, StageCoderResponse, nil, nil)
	_ = feedback

	gates, ok, fixCost, err := r.runGatesWithFixRetry(ctx, item, bp)
	totalCost += fixCost
	if err != nil {
		return &orchestrator.SubtaskOutcome{Success: false, CostUSD: totalCost, GateResults: gates, Feedback: err.Error()}, nil
	}
	if !ok {
		return &orchestrator.SubtaskOutcome{Success: false, CostUSD: totalCost, GateResults: gates, Feedback: "validation gates did not pass within the fix-retry budget"}, nil
	}

	changed, commitErr := r.commit(ctx, item)
	if commitErr != nil {
		log.Warn().Err(commitErr).Msg("commit failed; subtask still completes")
	}

	if r.deps.Progress != nil {
		_ = r.deps.Progress.AppendIteration(memory.IterationEntry{
			SubtaskID:    item.ID,
			SubtaskTitle: item.Title,
			BacklogPath:  r.backlogPath(item.ID),
			WhatChanged:  []string{cr.Message},
			FilesTouched: changed,
			Outcome:      "success",
		})
	}

	return &orchestrator.SubtaskOutcome{
		Success:      true,
		CostUSD:      totalCost,
		FilesChanged: changed,
		GateResults:  gates,
	}, nil
}

// generateBlueprint implements the cache-lookup-then-generate flow.
func (r *Runtime) generateBlueprint(ctx context.Context, item *backlog.Item) (*Blueprint, float64, error) {
	ancestors := r.ancestorIDs(item.ID)
	key := ComputeCacheKey(item, ancestors)

	if r.deps.Cache != nil {
		if entry, hit, err := r.deps.Cache.Get(item.ID, key); err == nil && hit {
			r.deps.Log.Debug().Str("subtask", item.ID).Msg("blueprint cache hit")
			return entry.PRP, 0, nil
		}
	}
	r.deps.Log.Debug().Str("subtask", item.ID).Msg("blueprint cache miss")

	prompt := r.blueprintPrompt(item, ancestors)
	var lastErr error
	var totalCost float64
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := r.deps.Researcher.Run(ctx, agent.Request{
			SystemPrompt: blueprintSystemPrompt,
			Prompt:       prompt,
		})
		if err != nil {
			lastErr = err
			continue
		}
		totalCost += resp.TotalCostUSD
		bp, parseErr := parseBlueprint(resp.FinalText)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		if err := r.deps.Cache.Put(item.ID, key, bp); err != nil {
			r.deps.Log.Warn().Err(err).Msg("writing blueprint cache entry")
		}
		if err := writeBlueprintFile(r.sessionDir, item.ID, bp); err != nil {
			r.deps.Log.Warn().Err(err).Msg("writing blueprint file")
		}
		return bp, totalCost, nil
	}
	return nil, totalCost, &BlueprintGenerationError{TaskID: item.ID, Err: lastErr}
}

func parseBlueprint(text string) (*Blueprint, error) {
	var bp Blueprint
	if err := json.Unmarshal([]byte(extractJSON(text)), &bp); err != nil {
		return nil, fmt.Errorf("prp: parsing blueprint response: %w", err)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// extractJSON trims any prose the agent wrapped its JSON response in,
// taking the outermost {...} span.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// ancestorIDs returns item's ancestor chain from nearest parent up to (and
// including) its phase, via repeated ParentID lookups in the read-only
// backlog snapshot.
func (r *Runtime) ancestorIDs(id string) []string {
	var ids []string
	parent := backlog.ParentIDOf(id)
	for parent != "" {
		ids = append(ids, parent)
		parent = backlog.ParentIDOf(parent)
	}
	return ids
}

// backlogPath renders id's ancestor chain, nearest first, as "id: title"
// pairs joined by " > ", for progress.md's per-entry backlog breadcrumb.
// Missing ancestors (e.g. pruned from the snapshot) are skipped rather than
// aborting the whole breadcrumb.
func (r *Runtime) backlogPath(id string) string {
	if r.deps.Backlog == nil {
		return ""
	}
	var parts []string
	for _, aid := range r.ancestorIDs(id) {
		anc, err := r.deps.Backlog.Get(aid)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", anc.ID, anc.Title))
	}
	return strings.Join(parts, " > ")
}

func (r *Runtime) blueprintPrompt(item *backlog.Item, ancestors []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subtask %s: %s\n", item.ID, item.Title)
	if item.ContextScope != nil {
		fmt.Fprintf(&sb, "CONTRACT DEFINITION:\n1. RESEARCH NOTE: %s\n2. INPUT: %s\n3. LOGIC: %s\n4. OUTPUT: %s\n",
			item.ContextScope.ResearchNote,
			strings.Join(item.ContextScope.Input, "; "),
			strings.Join(item.ContextScope.Logic, "; "),
			strings.Join(item.ContextScope.Output, "; "))
	}

	if r.deps.Backlog != nil {
		limit := ancestorContextLevels
		if limit > len(ancestors) {
			limit = len(ancestors)
		}
		for _, aid := range ancestors[:limit] {
			anc, err := r.deps.Backlog.Get(aid)
			if err != nil {
				continue
			}
			title := anc.Title
			if len(title) > ancestorContextChars {
				title = title[:ancestorContextChars]
			}
			fmt.Fprintf(&sb, "Ancestor %s: %s\n", aid, title)
		}
	}

	if r.deps.Progress != nil {
		if patterns, err := r.deps.Progress.GetCodebasePatterns(); err == nil && patterns != "" {
			fmt.Fprintf(&sb, "\nKnown codebase patterns:\n%s\n", patterns)
		}
	}

	sb.WriteString("\nRespond with a JSON object: {objective, context, implementationSteps[], validationGates[1..4], successCriteria[], references[]}.\n")
	return sb.String()
}

const blueprintSystemPrompt = "You are the researcher agent. Produce an implementation blueprint for the given subtask as a single JSON object conforming exactly to the requested schema."

// executeWithRetry invokes the coder agent, retrying transport failures and
// "error" results with exponential backoff; an "issue" result is terminal
// and returned without further retry.
func (r *Runtime) executeWithRetry(ctx context.Context, item *backlog.Item, bp *Blueprint, failureContext string) (*coderResult, float64, string, error) {
	var totalCost float64
	var lastErr error
	prompt := r.executionPrompt(item, bp, failureContext)

	for attempt := 0; attempt < r.deps.MaxExecRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithJitter(ctx, execBaseDelays[min(attempt-1, len(execBaseDelays)-1)]); err != nil {
				return nil, totalCost, "", err
			}
		}
		resp, err := r.deps.Coder.Run(ctx, agent.Request{
			SystemPrompt: coderSystemPrompt,
			Prompt:       prompt,
			Continue:     attempt > 0,
		})
		if err != nil {
			lastErr = err
			continue
		}
		totalCost += resp.TotalCostUSD
		cr, parseErr := parseCoderResult(resp.FinalText)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		if cr.Result == coderResultError {
			lastErr = errors.New(cr.Message)
			continue
		}
		return cr, totalCost, resp.FinalText, nil
	}
	return nil, totalCost, "", fmt.Errorf("prp: coder execution failed for %s: %w", item.ID, lastErr)
}

func parseCoderResult(text string) (*coderResult, error) {
	var cr coderResult
	if err := json.Unmarshal([]byte(extractJSON(text)), &cr); err != nil {
		return nil, fmt.Errorf("prp: parsing coder result: %w", err)
	}
	if cr.Result != coderResultSuccess && cr.Result != coderResultError && cr.Result != coderResultIssue {
		return nil, fmt.Errorf("prp: coder result has unknown result %q", cr.Result)
	}
	return &cr, nil
}

func (r *Runtime) executionPrompt(item *backlog.Item, bp *Blueprint, failureContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Implement subtask %s per the blueprint at %s.\n", item.ID, blueprintPath(r.sessionDir, item.ID))
	fmt.Fprintf(&sb, "Objective: %s\n", bp.Objective)
	if failureContext != "" {
		fmt.Fprintf(&sb, "\nThe previous attempt failed validation:\n%s\n", failureContext)
	}
	sb.WriteString("\nRespond with a JSON object: {result: \"success\"|\"error\"|\"issue\", message}.\n")
	return sb.String()
}

const coderSystemPrompt = "You are the coder agent. Read the blueprint, make the required file-system changes via your tools, then report a structured result."

// runGatesWithFixRetry runs the four validation gates in strict order,
// stopping at the first failure and entering fix-retry (re-prompting the
// coder with the failing gate's output) up to the shared fix-retry budget.
func (r *Runtime) runGatesWithFixRetry(ctx context.Context, item *backlog.Item, bp *Blueprint) ([]*orchestrator.GateResult, bool, float64, error) {
	var totalCost float64
	var results []*orchestrator.GateResult
	fixAttempt := 0

	startGate := 0
	for {
		passed := true
		results = nil
		for i := startGate; i < len(r.deps.Gates); i++ {
			cmd := r.deps.Gates[i]
			res, err := r.deps.Verify.Run(ctx, cmd)
			if err != nil {
				return results, false, totalCost, fmt.Errorf("prp: gate %s: %w", cmd.Gate, err)
			}
			gr := &orchestrator.GateResult{Gate: string(res.Gate), Passed: res.Passed, Command: res.Command, Output: res.Output}
			results = append(results, gr)
			r.recordCheckpoint(item.ID, ValidationGateStage(i+1), results, nil)
			if !res.Passed {
				passed = false
				startGate = i
				break
			}
		}
		if passed {
			return results, true, totalCost, nil
		}
		if fixAttempt >= r.deps.MaxFixRetries {
			return results, false, totalCost, nil
		}
		fixAttempt++

		failureContext := formatGateFailure(results[len(results)-1])
		cr, cost, _, err := r.executeWithRetry(ctx, item, bp, failureContext)
		totalCost += cost
		if err != nil {
			return results, false, totalCost, err
		}
		if cr.Result == coderResultIssue {
			return results, false, totalCost, fmt.Errorf("prp: coder reported unresolvable issue: %s", cr.Message)
		}
		r.recordCheckpoint(item.ID, Stage(fmt.Sprintf("fix-attempt-%d", fixAttempt)), results, nil)
	}
}

func formatGateFailure(gr *orchestrator.GateResult) string {
	return fmt.Sprintf("gate %s failed\ncommand: %s\noutput:\n%s", gr.Gate, gr.Command, gr.Output)
}

func (r *Runtime) recordCheckpoint(taskID string, stage Stage, gates []*orchestrator.GateResult, chkErr *CheckpointError) {
	vr := make([]ValidationResult, 0, len(gates))
	for _, g := range gates {
		vr = append(vr, ValidationResult{Gate: g.Gate, Passed: g.Passed, Command: g.Command, Output: g.Output})
	}
	if _, err := r.deps.Checkpoints.Append(taskID, CheckpointState{
		Stage:             stage,
		ValidationResults: vr,
		Timestamp:         time.Now(),
	}, chkErr); err != nil {
		r.deps.Log.Warn().Err(err).Str("stage", string(stage)).Msg("writing checkpoint")
	}
}

// commit stages and commits changes on successful validation. Commit
// failure is logged by the caller but does not change the subtask's
// outcome.
func (r *Runtime) commit(ctx context.Context, item *backlog.Item) ([]string, error) {
	changed, err := r.deps.Git.GetChangedFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if _, err := r.deps.Git.CommitSubtask(ctx, item.ID, item.Title); err != nil {
		return changed, err
	}
	return changed, nil
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	jitter := time.Duration(float64(base) * (rand.Float64()*0.4 - 0.2))
	d := base + jitter
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

