package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBudgetLimits(t *testing.T) {
	limits := DefaultBudgetLimits()
	assert.Equal(t, 50, limits.MaxIterations)
	assert.Equal(t, 0, limits.MaxTimeMinutes)
	assert.Equal(t, float64(0), limits.MaxCostUSD)
	assert.Equal(t, 20, limits.MaxMinutesPerIteration)
}

func TestBudgetTrackerIterationLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxIterations: 2})
	status := bt.CheckBudget()
	assert.True(t, status.CanContinue)

	bt.RecordIteration(0)
	bt.RecordIteration(0)

	status = bt.CheckBudget()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonIterations, status.ReasonCode)
}

func TestBudgetTrackerCostLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxCostUSD: 1.0})
	bt.RecordIteration(0.6)
	assert.True(t, bt.CheckBudget().CanContinue)

	bt.RecordIteration(0.5)
	status := bt.CheckBudget()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonCost, status.ReasonCode)
}

func TestBudgetTrackerTimeLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxTimeMinutes: 0})
	bt.RecordIteration(0)
	state := bt.GetState()
	require.False(t, state.StartTime.IsZero())

	bt.SetState(BudgetState{
		Iterations: 1,
		StartTime:  time.Now().Add(-2 * time.Hour),
	})
	bt2 := NewBudgetTracker(BudgetLimits{MaxTimeMinutes: 1})
	bt2.SetState(BudgetState{StartTime: time.Now().Add(-2 * time.Hour)})
	status := bt2.CheckBudget()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonTime, status.ReasonCode)
}

func TestSaveAndLoadBudget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "budget.json")

	state := &BudgetState{Iterations: 3, TotalCostUSD: 1.5, StartTime: time.Now().Truncate(time.Second)}
	require.NoError(t, SaveBudget(path, state))

	loaded, err := LoadBudget(path)
	require.NoError(t, err)
	assert.Equal(t, state.Iterations, loaded.Iterations)
	assert.Equal(t, state.TotalCostUSD, loaded.TotalCostUSD)
}

func TestLoadBudgetMissingFile(t *testing.T) {
	dir := t.TempDir()
	loaded, err := LoadBudget(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Iterations)
}
