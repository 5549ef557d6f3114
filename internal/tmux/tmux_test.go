package tmux

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func TestIsNoServerOrNoSessions(t *testing.T) {
	cases := []struct {
		stderr string
		want   bool
	}{
		{"no server running on /tmp/tmux-0/default", true},
		{"no sessions", true},
		{"can't find session: foo", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isNoServerOrNoSessions(tc.stderr), tc.stderr)
	}
}

func TestClient_Bin_DefaultsToTmux(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "tmux", c.bin())
	c2 := &Client{Bin: "/opt/bin/tmux"}
	assert.Equal(t, "/opt/bin/tmux", c2.bin())
}

func TestClient_ListAll_MissingBinaryIsError(t *testing.T) {
	c := &Client{Bin: "tmux-definitely-not-a-real-binary-xyz"}
	sessions, err := c.ListAll()
	assert.Error(t, err)
	assert.Nil(t, sessions)
}

func TestClient_HasSession_UnknownBinaryIsFalse(t *testing.T) {
	c := &Client{Bin: "tmux-definitely-not-a-real-binary-xyz"}
	assert.False(t, c.HasSession("anything"))
}

// --- integration tests against a real tmux server ---

func TestClient_SessionLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	c := NewClient()
	name := "foreman-test-lifecycle"
	_ = c.KillSession(name)

	if c.HasSession(name) {
		t.Fatal("session should not exist before creation")
	}
	if err := c.NewSession(name, "sleep 300", ""); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() { _ = c.KillSession(name) }()

	if !c.HasSession(name) {
		t.Fatal("session should exist after creation")
	}

	if err := c.NewSession(name, "sleep 300", ""); err == nil {
		t.Fatal("expected ErrSessionExists on duplicate create")
	}

	if err := c.SendTextLiteral(name, "echo hi"); err != nil {
		t.Fatalf("SendTextLiteral: %v", err)
	}
	if err := c.SendKey(name, "Enter"); err != nil {
		t.Fatalf("SendKey: %v", err)
	}

	out, err := c.CapturePane(name, 50)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	assert.Contains(t, out, "echo hi")

	if err := c.KillSession(name); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	if c.HasSession(name) {
		t.Fatal("session should not exist after kill")
	}
}

func TestClient_ListAll_Integration(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	c := NewClient()
	name := "foreman-test-listall"
	_ = c.KillSession(name)
	if err := c.NewSession(name, "sleep 300", ""); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() { _ = c.KillSession(name) }()

	sessions, err := c.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	var found bool
	for _, s := range sessions {
		if s.Name == name {
			found = true
		}
	}
	assert.True(t, found, "expected %q in session list", name)
}
