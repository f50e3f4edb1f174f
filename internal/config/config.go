// Package config loads forge.yaml (project-local) or the XDG global config
// into a Config struct, following the prior internal/config almost
// exactly: viper defaults set in code, a config file layered on top, and
// CLI flags layered on top of that (the flag-over-config-value precedence
// itself lives in internal/config/agents.go, mirroring the selection rule
// the now-deleted internal/provider/provider.go used to own).
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every autoforge setting, split into the same per-concern
// sub-structs (one struct per mapstructure key).
type Config struct {
	Session     SessionConfig     `mapstructure:"session"`
	Agents      AgentsConfig      `mapstructure:"agents"`
	Gates       GatesConfig       `mapstructure:"gates"`
	Parallelism ParallelismConfig `mapstructure:"parallelism"`
	Delta       DeltaConfig       `mapstructure:"delta"`
	Safety      SafetyConfig      `mapstructure:"safety"`
}

// SessionConfig locates the plan root and the PRD that seeds a new session,
// new relative to the prior shape since the Session Manager
// addresses a collection of sessions rather than one working copy.
type SessionConfig struct {
	Root   string `mapstructure:"root"`
	PRD    string `mapstructure:"prd"`
	Branch string `mapstructure:"branch_prefix"`
}

// AgentBackend selects which agent.Runner transport a role uses.
type AgentBackend struct {
	Backend string   `mapstructure:"backend"` // "subprocess" or "api"
	Command []string `mapstructure:"command"` // subprocess only
	Model   string   `mapstructure:"model"`   // api only
}

// AgentsConfig holds the researcher/coder backend selection — new relative
// to a single flat provider string, since the two
// roles use independent transports.
type AgentsConfig struct {
	Researcher AgentBackend `mapstructure:"researcher"`
	Coder      AgentBackend `mapstructure:"coder"`
}

// GatesConfig holds per-gate command overrides and timeouts, new relative
// to a single verification-command list since the four
// gates (syntax/unit/integration/manual) are named and ordered.
type GatesConfig struct {
	Syntax      GateOverride `mapstructure:"syntax"`
	Unit        GateOverride `mapstructure:"unit"`
	Integration GateOverride `mapstructure:"integration"`
	Manual      GateOverride `mapstructure:"manual"`
}

// GateOverride is one gate's command line and timeout. An empty Args
// leaves the gate a no-op manual pass, matching verify.Runner.Run's
// built-in handling of GateManual.
type GateOverride struct {
	Args          []string `mapstructure:"args"`
	TimeoutSecond int      `mapstructure:"timeout_seconds"`
}

// ParallelismConfig holds the bounded worker-pool size, new relative to the
// prior strictly serial loop.
type ParallelismConfig struct {
	Workers int `mapstructure:"workers"`
}

// DeltaConfig toggles deterministic PRD-delta analysis on session reuse,
// new relative to always starting a fresh task list.
type DeltaConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SafetyConfig holds the allowlist of base executables validation gates
// may invoke, carried over almost unchanged (sandbox is
// dropped — gate commands already run through the same allowlist
// internal/verify enforces, so a second sandbox toggle would duplicate it).
type SafetyConfig struct {
	AllowedCommands []string `mapstructure:"allowed_commands"`
}

// LoadConfigWithFile loads configuration from a specific file if provided,
// otherwise falls back to LoadConfig with the working directory, then the
// XDG global config.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}

	localPath := filepath.Join(workDir, "forge.yaml")
	if _, err := os.Stat(localPath); err == nil {
		return LoadConfig(workDir)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	globalPath, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFromPath(globalPath)
}

// LoadConfig loads configuration from forge.yaml in the given directory.
// If no config file exists, sensible defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("forge")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromPath loads configuration from a specific file path.
func LoadConfigFromPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.root", DefaultSessionRoot)
	v.SetDefault("session.prd", DefaultPRDPath)
	v.SetDefault("session.branch_prefix", DefaultBranchPrefix)

	v.SetDefault("agents.researcher.backend", DefaultAgentBackend)
	v.SetDefault("agents.researcher.command", []string{"claude"})
	v.SetDefault("agents.coder.backend", DefaultAgentBackend)
	v.SetDefault("agents.coder.command", []string{"claude"})

	v.SetDefault("gates.syntax.args", []string{})
	v.SetDefault("gates.unit.args", []string{})
	v.SetDefault("gates.integration.args", []string{})
	v.SetDefault("gates.manual.args", []string{})
	v.SetDefault("gates.syntax.timeout_seconds", DefaultGateTimeoutSeconds)
	v.SetDefault("gates.unit.timeout_seconds", DefaultGateTimeoutSeconds)
	v.SetDefault("gates.integration.timeout_seconds", DefaultGateTimeoutSeconds)
	v.SetDefault("gates.manual.timeout_seconds", DefaultGateTimeoutSeconds)

	v.SetDefault("parallelism.workers", DefaultParallelism)

	v.SetDefault("delta.enabled", true)

	v.SetDefault("safety.allowed_commands", []string{"npm", "go", "git"})
}
