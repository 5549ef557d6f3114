package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBinaries(string) (string, error) { return "", errors.New("not found") }

func only(name string) LookPathFunc {
	return func(bin string) (string, error) {
		if bin == name {
			return "/usr/bin/" + bin, nil
		}
		return "", errors.New("not found")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), noBinaries)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Dashboard.RefreshIntervalSeconds)
	assert.Equal(t, "omar-agent-", cfg.Dashboard.SessionPrefix)
	assert.Equal(t, 15, cfg.Health.IdleThresholdSeconds)
	assert.Equal(t, ".", cfg.Agent.DefaultWorkdir)
	assert.Equal(t, "bash", cfg.Agent.DefaultCommand)
	assert.True(t, cfg.APIEnabled())
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 9876, cfg.API.Port)
	assert.False(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "ubuntu:22.04", cfg.Sandbox.Image)
}

func TestLoad_PartialFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[dashboard]
session_prefix = "fm-"

[sandbox]
enabled = true
`)

	cfg, err := Load(path, noBinaries)
	require.NoError(t, err)
	assert.Equal(t, "fm-", cfg.Dashboard.SessionPrefix)
	assert.Equal(t, 1, cfg.Dashboard.RefreshIntervalSeconds, "unset keys keep their default")
	assert.True(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "ubuntu:22.04", cfg.Sandbox.Image, "unset keys keep their default")
}

func TestLoad_MalformedTOMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "not = [valid")

	_, err := Load(path, noBinaries)
	assert.Error(t, err)
}

func TestLoad_ExplicitAPIDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[api]\nenabled = false\n")

	cfg, err := Load(path, noBinaries)
	require.NoError(t, err)
	assert.False(t, cfg.APIEnabled())
}

func TestLoad_ExplicitDefaultCommandSkipsAutoDetect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[agent]\ndefault_command = \"mytool --flag\"\n")

	cfg, err := Load(path, only("claude"))
	require.NoError(t, err)
	assert.Equal(t, "mytool --flag", cfg.Agent.DefaultCommand)
}

func TestResolveDefaultCommand_PicksFirstInOrder(t *testing.T) {
	lookup := func(bin string) (string, error) {
		if bin == "gemini" || bin == "amp" {
			return "/usr/bin/" + bin, nil
		}
		return "", errors.New("not found")
	}
	assert.Equal(t, agentPresets["gemini"], ResolveDefaultCommand(lookup))
}

func TestResolveDefaultCommand_NoneFoundFallsBackToBash(t *testing.T) {
	assert.Equal(t, "bash", ResolveDefaultCommand(noBinaries))
}

func TestResolveDefaultCommand_CursorLooksUpCursorAgentBinary(t *testing.T) {
	assert.Equal(t, agentPresets["cursor"], ResolveDefaultCommand(only("cursor-agent")))
}

func TestLoad_TildeWorkdirExpandsAgainstHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[agent]\ndefault_workdir = \"~/projects/x\"\n")

	cfg, err := Load(path, noBinaries)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects/x"), cfg.Agent.DefaultWorkdir)
}

func TestLoad_BareTildeExpandsToHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[agent]\ndefault_workdir = \"~\"\n")

	cfg, err := Load(path, noBinaries)
	require.NoError(t, err)
	assert.Equal(t, home, cfg.Agent.DefaultWorkdir)
}

func TestAgentPresetOrder_MatchesPresetTable(t *testing.T) {
	order := AgentPresetOrder()
	assert.Len(t, order, len(agentPresets))
	for _, name := range order {
		assert.NotEmpty(t, agentPresets[name], "preset order references unknown %q", name)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
