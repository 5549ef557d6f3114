package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/foreman-hq/foreman/internal/config"
	"github.com/foreman-hq/foreman/internal/fsys"
	"github.com/foreman-hq/foreman/internal/health"
	"github.com/foreman-hq/foreman/internal/sandbox"
	"github.com/foreman-hq/foreman/internal/state"
	"github.com/foreman-hq/foreman/internal/supervisor"
	"github.com/foreman-hq/foreman/internal/tmux"
)

const (
	brand            = "foreman"
	rootSessionName  = "foreman-manager"
	dashboardSuffix  = "-dashboard"
	rootLabel        = "Executive Assistant"
	rootSystemPrompt = "You are the Executive Assistant coordinating a fleet of coding-agent workers."
)

// loadConfig resolves the config path (flag, or the platform default)
// and loads it, tolerating a missing file.
func loadConfig() (config.Config, error) {
	path := configFlag
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	return config.Load(path, config.SystemLookPath)
}

// buildSupervisor wires a production Supervisor: real tmux client,
// frame-diff health classifier, on-disk state store, and sandbox
// provider selected by cfg.Sandbox.Enabled.
func buildSupervisor(cfg config.Config) (*supervisor.Supervisor, error) {
	sup, _, err := buildSupervisorAndStore(cfg)
	return sup, err
}

// buildSupervisorAndStore is buildSupervisor plus the backing
// *state.Store, needed by the HTTP API for project CRUD.
func buildSupervisorAndStore(cfg config.Config) (*supervisor.Supervisor, *state.Store, error) {
	stateDir, err := config.DefaultStateDir()
	if err != nil {
		return nil, nil, err
	}

	tm := tmux.NewClient()
	store := state.NewStore(fsys.OSFS{}, stateDir)

	var sb sandbox.Provider = sandbox.Passthrough{}
	if cfg.Sandbox.Enabled {
		containerized := sandbox.NewContainerized(sandbox.Config{
			NamePrefix: brand,
			Image:      cfg.Sandbox.Image,
			Network:    sandbox.NetworkMode(cfg.Sandbox.Network),
			Limits: sandbox.Limits{
				Memory:    cfg.Sandbox.Limits.Memory,
				CPUs:      strconv.FormatFloat(cfg.Sandbox.Limits.CPUs, 'f', -1, 64),
				PIDsLimit: cfg.Sandbox.Limits.PidsLimit,
			},
			WorkspaceMode: sandbox.MountMode(cfg.Sandbox.Filesystem.WorkspaceAccess),
		})
		if err := containerized.EnsureReady(); err != nil {
			return nil, nil, fmt.Errorf("sandbox: %w", err)
		}
		sb = containerized
	}

	sup := supervisor.New(supervisor.Config{
		RootSessionName:  rootSessionName,
		SessionPrefix:    cfg.Dashboard.SessionPrefix,
		DefaultCommand:   cfg.Agent.DefaultCommand,
		DefaultWorkdir:   cfg.Agent.DefaultWorkdir,
		RootSystemPrompt: rootSystemPrompt,
		RootLabel:        rootLabel,
	}, tm, health.NewFrameDiff(tm), store, sb)

	return sup, store, nil
}

// dashboardSessionName is the reserved session the dashboard runs
// inside, derived from the configured prefix.
func dashboardSessionName(cfg config.Config) string {
	prefix := cfg.Dashboard.SessionPrefix
	if prefix == "" {
		return "foreman" + dashboardSuffix
	}
	return prefix + "dashboard"
}

func printErr(stderr io.Writer, format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...) //nolint:errcheck // best-effort stderr
}
