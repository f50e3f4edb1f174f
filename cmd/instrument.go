package cmd

import (
	"context"
	"time"

	"github.com/autoforge/autoforge/internal/backlog"
	"github.com/autoforge/autoforge/internal/history"
	"github.com/autoforge/autoforge/internal/metrics"
	"github.com/autoforge/autoforge/internal/orchestrator"
	"github.com/autoforge/autoforge/internal/statusserver"
)

// instrumentedExecutor wraps an orchestrator.Executor (the PRP Runtime) to
// record prometheus metrics, a history.DB entry, and a status server
// broadcast for every subtask attempt, without either the Orchestrator or
// the Runtime needing to know these concerns exist. Grounded on the pack's
// decorator-style metrics wrapping (kubernaut's instrumented reconcilers).
type instrumentedExecutor struct {
	next orchestrator.Executor
	hist *history.DB
	hub  *statusserver.Hub
}

func (e *instrumentedExecutor) ExecuteSubtask(ctx context.Context, item *backlog.Item) (*orchestrator.SubtaskOutcome, error) {
	start := time.Now()
	outcome, err := e.next.ExecuteSubtask(ctx, item)

	status := "failed"
	if err == nil && outcome != nil && outcome.Success {
		status = "complete"
	}
	metrics.SubtasksDispatched.WithLabelValues(status).Inc()
	metrics.ObserveSubtaskDuration(status, start)

	cost := 0.0
	if outcome != nil {
		cost = outcome.CostUSD
		metrics.AgentCostUSD.WithLabelValues("coder").Add(outcome.CostUSD)
		for _, g := range outcome.GateResults {
			result := "fail"
			if g.Passed {
				result = "pass"
			}
			metrics.GateRuns.WithLabelValues(g.Gate, result).Inc()
		}
	}

	if e.hist != nil {
		_ = e.hist.Record(ctx, history.Entry{
			SubtaskID: item.ID,
			Status:    status,
			Attempt:   1,
			CostUSD:   cost,
			RecordedAt: start,
		})
	}

	if e.hub != nil {
		e.hub.Broadcast(statusserver.Event{Type: "transition", SubtaskID: item.ID, Status: status})
	}

	return outcome, err
}
