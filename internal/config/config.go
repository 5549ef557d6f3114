// Package config loads foreman's config.toml and resolves the default
// agent command from the known-CLI presets when none is configured.
package config

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level foreman configuration.
type Config struct {
	Dashboard DashboardConfig `toml:"dashboard"`
	Health    HealthConfig    `toml:"health"`
	Agent     AgentConfig     `toml:"agent"`
	API       APIConfig       `toml:"api"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
}

// DashboardConfig controls the tick loop and session ownership filter.
type DashboardConfig struct {
	RefreshIntervalSeconds int    `toml:"refresh_interval,omitempty"`
	SessionPrefix          string `toml:"session_prefix"`
}

// HealthConfig controls the activity-timestamp fallback classifier.
type HealthConfig struct {
	IdleThresholdSeconds int `toml:"idle_threshold_seconds,omitempty"`
}

// AgentConfig controls spawn defaults.
type AgentConfig struct {
	DefaultCommand string `toml:"default_command,omitempty"`
	DefaultWorkdir string `toml:"default_workdir,omitempty"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Enabled *bool  `toml:"enabled,omitempty"`
	Host    string `toml:"host,omitempty"`
	Port    int    `toml:"port,omitempty"`
}

// SandboxFilesystem controls container mount policy.
type SandboxFilesystem struct {
	WorkspaceAccess string   `toml:"workspace_access,omitempty"` // "rw" or "ro"
	BindMounts      []string `toml:"bind_mounts,omitempty"`
}

// SandboxLimits controls per-container resource caps.
type SandboxLimits struct {
	Memory    string  `toml:"memory,omitempty"`
	CPUs      float64 `toml:"cpus,omitempty"`
	PidsLimit int     `toml:"pids_limit,omitempty"`
}

// SandboxConfig controls container command-wrapping.
type SandboxConfig struct {
	Enabled    bool              `toml:"enabled,omitempty"`
	Image      string            `toml:"image,omitempty"`
	Network    string            `toml:"network,omitempty"`
	Limits     SandboxLimits     `toml:"limits,omitempty"`
	Filesystem SandboxFilesystem `toml:"filesystem,omitempty"`
}

// Default returns a Config populated with spec-mandated defaults.
func Default() Config {
	enabled := true
	return Config{
		Dashboard: DashboardConfig{
			RefreshIntervalSeconds: 1,
			SessionPrefix:          "omar-agent-",
		},
		Health: HealthConfig{IdleThresholdSeconds: 15},
		Agent:  AgentConfig{DefaultWorkdir: "."},
		API: APIConfig{
			Enabled: &enabled,
			Host:    "127.0.0.1",
			Port:    9876,
		},
		Sandbox: SandboxConfig{
			Image:   "ubuntu:22.04",
			Network: "bridge",
			Limits:  SandboxLimits{Memory: "4g", CPUs: 2.0, PidsLimit: 256},
			Filesystem: SandboxFilesystem{
				WorkspaceAccess: "rw",
				BindMounts:      []string{},
			},
		},
	}
}

// APIEnabled reports whether the HTTP surface is enabled, defaulting to
// true when unset in the loaded file.
func (c *Config) APIEnabled() bool {
	return c.API.Enabled == nil || *c.API.Enabled
}

// Load reads and merges path over [Default]. A missing file is not an
// error — callers get the defaults. lookPath resolves
// agent.default_command via [ResolveDefaultCommand] when unset.
func Load(path string, lookPath LookPathFunc) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finalize(cfg, lookPath), nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return finalize(cfg, lookPath), nil
}

func finalize(cfg Config, lookPath LookPathFunc) Config {
	if cfg.Agent.DefaultCommand == "" {
		cfg.Agent.DefaultCommand = ResolveDefaultCommand(lookPath)
	}
	if cfg.Agent.DefaultWorkdir == "" {
		cfg.Agent.DefaultWorkdir = "."
	}
	cfg.Agent.DefaultWorkdir = expandHome(cfg.Agent.DefaultWorkdir)
	return cfg
}

// expandHome accepts a "~/"-relative workdir shorthand beyond spec's
// bare "." default — "~/projects/x" expands against $HOME, anything
// else passes through unchanged.
func expandHome(workdir string) string {
	if workdir != "~" && !strings.HasPrefix(workdir, "~/") {
		return workdir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return workdir
	}
	if workdir == "~" {
		return home
	}
	return filepath.Join(home, workdir[2:])
}

// LookPathFunc is the signature of exec.LookPath, substitutable in tests.
type LookPathFunc func(string) (string, error)

// DefaultConfigPath returns <config-dir>/foreman/config.toml, honoring
// $XDG_CONFIG_HOME like os.UserConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}
	return filepath.Join(dir, "foreman", "config.toml"), nil
}

// DefaultStateDir returns <home>/.foreman.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home dir: %w", err)
	}
	return filepath.Join(home, ".foreman"), nil
}

// systemLookPath is the production LookPathFunc.
func systemLookPath(name string) (string, error) { return exec.LookPath(name) }

// SystemLookPath is exported for callers wiring up production config.
var SystemLookPath LookPathFunc = systemLookPath
