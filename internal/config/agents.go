package config

import (
	"fmt"
	"strings"
)

// Agent backend names, matching internal/agent's two Runner implementations.
const (
	BackendSubprocess = "subprocess"
	BackendAPI        = "api"
)

// NormalizeBackend validates and lowercases a backend name, defaulting to
// DefaultAgentBackend when value is blank.
func NormalizeBackend(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return DefaultAgentBackend, nil
	}

	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case BackendSubprocess, BackendAPI:
		return normalized, nil
	default:
		return "", fmt.Errorf("config: unsupported agent backend %q", value)
	}
}

// ResolveBackend applies CLI-flag-over-config-value precedence: a non-empty
// cliValue always wins over configValue, the same rule
// provider.Resolve enforced for its single claude/opencode selector,
// generalized here to the per-role researcher/coder backend choice.
func ResolveBackend(cliValue, configValue string) (string, error) {
	if strings.TrimSpace(cliValue) != "" {
		return NormalizeBackend(cliValue)
	}
	return NormalizeBackend(configValue)
}
