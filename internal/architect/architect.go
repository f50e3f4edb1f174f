// Package architect is a reference implementation of the Architect agent:
// this is treated as an opaque black box that turns a PRD into a backlog,
// but a working implementation is needed to run the system end to end.
// Grounded on internal/decomposer/decomposer.go, adapted from
// a PRD-to-YAML-then-import two-step to prompting the agent for the
// tasks.json-shaped backlog directly, since the four-level hierarchy
// already has a JSON schema of its own (internal/backlog) with no
// intermediate YAML form to round-trip through.
package architect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/autoforge/autoforge/internal/agent"
	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/graphutil"
)

// levelOrder ranks levels so Add sees parents before children regardless of
// the order the agent emitted items in.
var levelOrder = map[backlog.Level]int{
	backlog.LevelPhase:     0,
	backlog.LevelMilestone: 1,
	backlog.LevelTask:      2,
	backlog.LevelSubtask:   3,
}

// MaxValidationRetries is the maximum number of times the agent is asked to
// fix a backlog that fails validation, mirroring the prior
// maxValidationRetries for its YAML validate-then-fix loop.
const MaxValidationRetries = 2

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	PRDPath string
}

// GenerateResult is the backlog the Architect produced plus the agent
// transport metadata the caller may want to surface or bill against budget.
type GenerateResult struct {
	Backlog      *backlog.Backlog
	SessionID    string
	Model        string
	TotalCostUSD float64
}

// Architect prompts an agent to decompose a PRD into a four-level backlog.
type Architect struct {
	runner agent.Runner
}

// New returns an Architect driven by runner.
func New(runner agent.Runner) *Architect {
	return &Architect{runner: runner}
}

// Generate reads the PRD at req.PRDPath, prompts the agent for a backlog,
// and validates the result — retrying with the agent's help on validation
// failure — up to MaxValidationRetries times.
func (a *Architect) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prd, err := os.ReadFile(req.PRDPath)
	if err != nil {
		return nil, fmt.Errorf("architect: reading PRD: %w", err)
	}

	resp, err := a.runner.Run(ctx, agent.Request{
		SystemPrompt: systemPrompt,
		Prompt:       fmt.Sprintf("Convert the following PRD into a backlog:\n\n%s", prd),
	})
	if err != nil {
		return nil, fmt.Errorf("architect: agent run failed: %w", err)
	}

	raw := extractJSON(responseText(resp))
	if raw == "" {
		return nil, fmt.Errorf("architect: no JSON backlog found in agent response")
	}

	totalCost := resp.TotalCostUSD
	b, validateErr := parseAndValidate(raw)
	for attempt := 0; validateErr != nil; attempt++ {
		if attempt >= MaxValidationRetries {
			return nil, fmt.Errorf("architect: backlog invalid after %d retries: %w", MaxValidationRetries, validateErr)
		}
		fixed, cost, err := a.askToFix(ctx, string(prd), raw, validateErr.Error())
		if err != nil {
			return nil, err
		}
		totalCost += cost
		raw = fixed
		b, validateErr = parseAndValidate(raw)
	}

	return &GenerateResult{
		Backlog:      b,
		SessionID:    resp.SessionID,
		Model:        resp.Model,
		TotalCostUSD: totalCost,
	}, nil
}

func responseText(resp *agent.Response) string {
	if resp.FinalText != "" {
		return resp.FinalText
	}
	return resp.StreamText
}

// jsonBlockRegex matches a fenced ```json ... ``` block, the common way an
// agent wraps structured output in otherwise conversational text.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\n(.+?)\n```")

func extractJSON(text string) string {
	if m := jsonBlockRegex.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// backlogDocument is the shape the agent is prompted to emit: a flat list
// of items carrying their own id/level/parentId, matching
// internal/backlog.Item's JSON tags directly rather than introducing a
// second schema.
type backlogDocument struct {
	Items []backlog.Item `json:"items"`
}

func parseAndValidate(raw string) (*backlog.Backlog, error) {
	var doc backlogDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("architect: parsing backlog JSON: %w", err)
	}

	items := doc.Items
	sort.SliceStable(items, func(i, j int) bool {
		return levelOrder[items[i].Level] < levelOrder[items[j].Level]
	})

	b := backlog.New()
	for i := range items {
		item := items[i]
		if item.Status == "" {
			item.Status = backlog.StatusPlanned
		}
		if err := b.Add(&item); err != nil {
			return nil, err
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := checkNoCycles(b); err != nil {
		return nil, err
	}
	return b, nil
}

// checkNoCycles runs graphutil's cycle detector over every subtask's
// dependsOn edges, the only level that allows dependencies.
func checkNoCycles(b *backlog.Backlog) error {
	var ids []string
	deps := make(map[string][]string)
	for id, item := range b.Items {
		if item.Level != backlog.LevelSubtask {
			continue
		}
		ids = append(ids, id)
		deps[id] = item.DependsOn
	}
	g, err := graphutil.Build(ids, deps)
	if err != nil {
		return fmt.Errorf("architect: %w", err)
	}
	if cycle := g.DetectCycle(); cycle != nil {
		return fmt.Errorf("architect: dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

const fixPromptTemplate = `The following backlog JSON was generated from this PRD but failed validation.
Fix it and output ONLY the corrected JSON (no explanations, no markdown fences).

## Original PRD:
%s

## Failed JSON:
%s

## Validation Error:
%s

Output the corrected JSON only:`

func (a *Architect) askToFix(ctx context.Context, prd, failedJSON, errMsg string) (string, float64, error) {
	resp, err := a.runner.Run(ctx, agent.Request{
		SystemPrompt: systemPrompt,
		Prompt:       fmt.Sprintf(fixPromptTemplate, prd, failedJSON, errMsg),
	})
	if err != nil {
		return "", 0, fmt.Errorf("architect: asking agent to fix backlog: %w", err)
	}
	fixed := extractJSON(responseText(resp))
	if fixed == "" {
		fixed = strings.TrimSpace(responseText(resp))
	}
	return fixed, resp.TotalCostUSD, nil
}

const systemPrompt = `You are the Architect agent, a PRD-to-backlog planner.

GOAL
Convert an input PRD (Markdown) into a single JSON object {"items": [...]}
describing a four-level hierarchical, dependency-aware backlog directly
executable by autonomous coding sessions.

EXECUTION MODEL (CRITICAL)
- Each Subtask will be executed by a separate autonomous coding session.
- That session cannot ask questions or request clarification during execution.
- Subtasks must be fully self-contained with all context needed for implementation.
- If the PRD is ambiguous, YOU must make the decision now, stated in the item's description.

ITEM SCHEMA
Every item has: {id, level, parentId, title, description, status, dependsOn}.
- level is one of "phase", "milestone", "task", "subtask".
- id grammar is strict: a Phase is "P<n>", a Milestone is "P<n>.M<n>", a
  Task is "P<n>.M<n>.T<n>", a Subtask is "P<n>.M<n>.T<n>.S<n>" (1-indexed,
  no gaps).
- parentId must equal the id with its last dotted segment removed ("" for
  a Phase).
- status should be "planned" unless the PRD states otherwise.
- dependsOn (Subtask only) lists other Subtask ids that must complete first;
  no cycles.

SUBTASK-ONLY FIELDS
- storyPoints: integer 1-21 (Fibonacci-like sizing is fine; never 0 or >21).
- contextScope: {researchNote, input: [string], logic: [string], output: [string]}
  — this is the CONTRACT DEFINITION. Every Subtask MUST carry one.
- verify: [[string]], each inner array is argv tokens for a validation command.
- acceptance: [string], 3-5 objectively testable criteria.

STRUCTURE
- Exactly one or more root Phases; every Milestone/Task/Subtask is reachable
  from a Phase through consistent parentId chains.
- Milestones group Tasks; Tasks group Subtasks; only Subtasks carry
  storyPoints/contextScope/verify/acceptance.
- Each Subtask should touch at most 2-3 files; split larger work into
  multiple Subtasks.

FORBIDDEN PATTERNS
- Subtasks that require human decisions, open-ended research, or bundle
  unrelated changes.
- Vague acceptance criteria ("code is clean") or missing file specificity.
- Non-goals stated in the PRD must not generate items.

OUTPUT
Output JSON only: {"items": [...]}. No prose, no markdown fences.`
