package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough_WrapReturnsCommandUnmodified(t *testing.T) {
	p := Passthrough{}
	assert.Equal(t, "echo hi", p.Wrap("fm-w1", "echo hi", "/tmp"))
	assert.NoError(t, p.Cleanup("fm-w1"))
	assert.NoError(t, p.CleanupAll())
}

func TestShellQuote_SafeCharsUnquoted(t *testing.T) {
	assert.Equal(t, "abc123_./-:=", shellQuote("abc123_./-:="))
}

func TestShellQuote_UnsafeCharsSingleQuoted(t *testing.T) {
	assert.Equal(t, "'hello world'", shellQuote("hello world"))
}

func TestShellQuote_EmbeddedQuoteEscaped(t *testing.T) {
	got := shellQuote("it's here")
	assert.Equal(t, `'it'\''s here'`, got)
}

func TestShellQuote_EmptyStringIsQuoted(t *testing.T) {
	assert.Equal(t, "''", shellQuote(""))
}

func TestJoinShellSafe(t *testing.T) {
	got := JoinShellSafe([]string{"docker", "run", "echo hi"})
	assert.Equal(t, "docker run 'echo hi'", got)
}

func TestContainerized_Wrap_ProducesDockerRunWithPolicyFlags(t *testing.T) {
	c := NewContainerized(Config{NamePrefix: "fm", WorkspaceDest: "/workspace"})
	out := c.Wrap("fm-w1", "echo hi", "/home/u/proj")

	require.Contains(t, out, "docker run")
	assert.Contains(t, out, "fm-sandbox-fm-w1")
	assert.Contains(t, out, "--read-only")
	assert.Contains(t, out, "--cap-drop ALL")
	assert.Contains(t, out, "--network bridge")
	assert.Contains(t, out, "/workspace")
	assert.Contains(t, out, "ubuntu:22.04")
}

func TestContainerized_Wrap_DefaultsApplied(t *testing.T) {
	c := NewContainerized(Config{NamePrefix: "fm"})
	assert.Equal(t, NetworkBridge, c.cfg.Network)
	assert.Equal(t, "4g", c.cfg.Limits.Memory)
	assert.Equal(t, 256, c.cfg.Limits.PIDsLimit)
	assert.Equal(t, "ubuntu:22.04", c.cfg.Image)
}

func TestContainerized_ContainerName(t *testing.T) {
	c := NewContainerized(Config{NamePrefix: "fm"})
	assert.Equal(t, "fm-sandbox-fm-w1", c.containerName("fm-w1"))
}

func TestContainerized_Wrap_QuotesCommandArgumentSafely(t *testing.T) {
	c := NewContainerized(Config{NamePrefix: "fm"})
	out := c.Wrap("fm-w1", "echo 'hi there'", "/tmp")
	// The whole shell -c argument must be present, safely quoted.
	assert.True(t, strings.HasSuffix(out, `sh -c 'echo '\''hi there'\'''`))
}
