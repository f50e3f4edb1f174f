// Command forge drives the autoforge orchestrator: turn a PRD into a
// four-level backlog via the Architect agent, then walk that backlog to
// completion via the PRP Runtime, one subtask at a time unless
// parallelism.workers allows more.
package main

import "github.com/autoforge/autoforge/cmd"

func main() {
	cmd.Execute()
}
