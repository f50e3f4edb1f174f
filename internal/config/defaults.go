package config

// Session defaults.
const (
	DefaultSessionRoot  = "."
	DefaultPRDPath      = "PRD.md"
	DefaultBranchPrefix = "forge/"
)

// Agent defaults.
const (
	DefaultAgentBackend = "subprocess"
)

// Gate defaults.
const (
	DefaultGateTimeoutSeconds = 300
)

// Parallelism default, per SPEC_FULL.md §12's Open Question decision:
// serial dispatch unless an operator opts into concurrency.
const (
	DefaultParallelism = 1
)
