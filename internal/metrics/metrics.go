// Package metrics exposes prometheus counters and histograms for subtask
// dispatch, gate outcomes, and agent invocation cost. All metrics register
// against the default prometheus.Registerer via promauto, the same pattern
// the pack's CRS persistence/session managers use for backup and restore
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubtasksDispatched counts Task Orchestrator dispatches by attempt
	// outcome (complete or failed).
	SubtasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoforge_subtasks_dispatched_total",
		Help: "Total subtasks handed to the PRP Runtime, by terminal status",
	}, []string{"status"})

	// SubtaskDuration times a subtask end-to-end, from dispatch to terminal
	// status, including every coder retry and gate run inside it.
	SubtaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoforge_subtask_duration_seconds",
		Help:    "Wall-clock time to carry a subtask to a terminal status",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"status"})

	// GateRuns counts four-gate validation outcomes by gate name and result.
	GateRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoforge_gate_runs_total",
		Help: "Total verification gate runs, by gate and pass/fail outcome",
	}, []string{"gate", "result"})

	// GateDuration times a single gate invocation.
	GateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoforge_gate_duration_seconds",
		Help:    "Time to run a single verification gate",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"gate"})

	// AgentInvocations counts researcher/coder agent calls by role and
	// backend (subprocess or api).
	AgentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoforge_agent_invocations_total",
		Help: "Total agent.Runner invocations, by role and backend",
	}, []string{"role", "backend"})

	// AgentCostUSD accumulates reported API cost per role, for backends that
	// surface it (the api.Runner; subprocess runners report zero).
	AgentCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoforge_agent_cost_usd_total",
		Help: "Total reported agent API cost in USD, by role",
	}, []string{"role"})

	// FixRetries counts coder fix-retry attempts triggered by a failed gate.
	FixRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoforge_fix_retries_total",
		Help: "Total coder fix-retry attempts after a gate failure",
	}, []string{"gate"})
)

// ObserveSubtaskDuration is a convenience wrapper so callers don't reach
// into the histogram directly; it mirrors the Orchestrator's own
// start-time-to-now bookkeeping.
func ObserveSubtaskDuration(status string, start time.Time) {
	SubtaskDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// ObserveGateDuration records a single gate's run time.
func ObserveGateDuration(gate string, start time.Time) {
	GateDuration.WithLabelValues(gate).Observe(time.Since(start).Seconds())
}
