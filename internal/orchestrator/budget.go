package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BudgetReasonCode identifies why a budget check failed.
type BudgetReasonCode string

const (
	BudgetReasonNone       BudgetReasonCode = "none"
	BudgetReasonIterations BudgetReasonCode = "iterations"
	BudgetReasonTime       BudgetReasonCode = "time"
	BudgetReasonCost       BudgetReasonCode = "cost"
)

// BudgetLimits bounds how much of a session's run the Task Orchestrator
// will drive before stopping, independent of whether the backlog has
// remaining work.
type BudgetLimits struct {
	MaxIterations          int     `json:"max_iterations"`
	MaxTimeMinutes         int     `json:"max_time_minutes"`
	MaxCostUSD             float64 `json:"max_cost_usd"`
	MaxMinutesPerIteration int     `json:"max_minutes_per_iteration"`
}

// BudgetState tracks budget consumption across a run.
type BudgetState struct {
	Iterations   int       `json:"iterations"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	StartTime    time.Time `json:"start_time"`
}

// BudgetStatus is the outcome of a budget check.
type BudgetStatus struct {
	CanContinue bool
	Reason      string
	ReasonCode  BudgetReasonCode
}

// BudgetTracker enforces BudgetLimits across a sequence of subtask
// iterations. Grounded on internal/loop/budget.go, kept
// nearly as-is — the concept of "iteration budget" translates unchanged
// from a flat task loop to a Subtask-dispatch loop.
type BudgetTracker struct {
	limits BudgetLimits
	state  BudgetState
}

// DefaultBudgetLimits returns the orchestrator's out-of-the-box limits.
func DefaultBudgetLimits() BudgetLimits {
	return BudgetLimits{
		MaxIterations:          50,
		MaxTimeMinutes:         0,
		MaxCostUSD:             0,
		MaxMinutesPerIteration: 20,
	}
}

// NewBudgetTracker returns a tracker enforcing limits.
func NewBudgetTracker(limits BudgetLimits) *BudgetTracker {
	return &BudgetTracker{limits: limits}
}

// RecordIteration records one completed subtask iteration and its cost.
func (bt *BudgetTracker) RecordIteration(costUSD float64) {
	if bt.state.StartTime.IsZero() {
		bt.state.StartTime = time.Now()
	}
	bt.state.Iterations++
	bt.state.TotalCostUSD += costUSD
}

// CheckBudget reports whether the orchestrator may dispatch another
// subtask.
func (bt *BudgetTracker) CheckBudget() BudgetStatus {
	if bt.limits.MaxIterations > 0 && bt.state.Iterations >= bt.limits.MaxIterations {
		return BudgetStatus{
			CanContinue: false,
			Reason:      fmt.Sprintf("max iteration limit reached (%d/%d)", bt.state.Iterations, bt.limits.MaxIterations),
			ReasonCode:  BudgetReasonIterations,
		}
	}
	if bt.limits.MaxTimeMinutes > 0 && !bt.state.StartTime.IsZero() {
		elapsed := time.Since(bt.state.StartTime)
		maxDuration := time.Duration(bt.limits.MaxTimeMinutes) * time.Minute
		if elapsed >= maxDuration {
			return BudgetStatus{
				CanContinue: false,
				Reason:      fmt.Sprintf("max time limit exceeded (%.1f/%.1f minutes)", elapsed.Minutes(), float64(bt.limits.MaxTimeMinutes)),
				ReasonCode:  BudgetReasonTime,
			}
		}
	}
	if bt.limits.MaxCostUSD > 0 && bt.state.TotalCostUSD >= bt.limits.MaxCostUSD {
		return BudgetStatus{
			CanContinue: false,
			Reason:      fmt.Sprintf("max cost limit exceeded ($%.2f/$%.2f)", bt.state.TotalCostUSD, bt.limits.MaxCostUSD),
			ReasonCode:  BudgetReasonCost,
		}
	}
	return BudgetStatus{CanContinue: true, ReasonCode: BudgetReasonNone}
}

// GetState returns a copy of the tracker's state, for persistence across
// pause/resume.
func (bt *BudgetTracker) GetState() BudgetState { return bt.state }

// SetState restores tracker state loaded from disk.
func (bt *BudgetTracker) SetState(state BudgetState) { bt.state = state }

// SaveBudget persists budget state alongside a session.
func SaveBudget(path string, state *BudgetState) error {
	if state == nil {
		return errors.New("orchestrator: budget state cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("orchestrator: creating budget directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling budget state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("orchestrator: writing budget state: %w", err)
	}
	return nil
}

// LoadBudget loads budget state from disk, or an empty state if it has
// never been saved.
func LoadBudget(path string) (*BudgetState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &BudgetState{}, nil
		}
		return nil, fmt.Errorf("orchestrator: reading budget state: %w", err)
	}
	var state BudgetState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("orchestrator: unmarshaling budget state: %w", err)
	}
	return &state, nil
}
