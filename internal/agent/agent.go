// Package agent defines the opaque interface the PRP Runtime and Architect
// use to prompt LLM-backed agents, plus two concrete transports: a
// subprocess-based CLI transport (the only transport before this split) and a
// direct Anthropic API transport.
package agent

import "context"

// Role distinguishes the two agent personas the PRP Runtime drives: the
// researcher, which produces a blueprint/CONTRACT DEFINITION, and the
// coder, which executes one against the working tree.
type Role string

const (
	RoleResearcher Role = "researcher"
	RoleCoder      Role = "coder"
)

// Request is a single prompt turn. Continue+SessionID resume a prior
// conversation (so the coder agent can be re-prompted with failure context
// without losing earlier context, mirroring claude --continue in the
// teacher).
type Request struct {
	Cwd          string
	SystemPrompt string
	Prompt       string
	AllowedTools []string
	Continue     bool
	SessionID    string
	ExtraArgs    []string
	Env          map[string]string
}

// Usage mirrors the token accounting an agent transport reports back.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// Response is a transport-agnostic summary of one agent turn.
type Response struct {
	SessionID         string
	Model             string
	FinalText         string
	StreamText        string
	Usage             Usage
	TotalCostUSD      float64
	PermissionDenials []string
	RawEventsPath     string
}

// Runner is the opaque agent interface: Prompt in, structured Response out.
// Both the researcher and coder roles are driven through the same
// interface; only the prompts and allowed tool sets differ.
type Runner interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

// Naming convention for MCP tool identifiers passed through AllowedTools:
// "<server>__<tool>", e.g. "git__commit", "fs__write".
func MCPToolName(server, tool string) string {
	return server + "__" + tool
}
