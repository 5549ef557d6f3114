// Package tmux is a narrow, synchronous shim over the tmux CLI.
//
// Every method shells out to "tmux" and blocks until it returns. Callers
// that need concurrency run these on their own goroutines — the client
// itself holds no state beyond the path to the tmux binary, so it's safe
// to share across goroutines.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors. Use errors.Is against these; callers that tolerate
// "not found" (e.g. kill) check for them explicitly.
var (
	ErrSessionNotFound = errors.New("tmux: session not found")
	ErrNoServer        = errors.New("tmux: no server running")
	ErrSessionExists   = errors.New("tmux: session already exists")
)

// Session is an opaque handle exposed by the multiplexer.
type Session struct {
	Name          string
	LastActivity  time.Time
	Attached      bool
	ForegroundPID int
}

// Client wraps the tmux CLI. The zero value is ready to use.
type Client struct {
	// Bin is the tmux executable name or path. Defaults to "tmux".
	Bin string
}

// NewClient returns a [Client] that shells out to the tmux binary on PATH.
func NewClient() *Client {
	return &Client{Bin: "tmux"}
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "tmux"
	}
	return c.Bin
}

func (c *Client) run(args ...string) (stdout string, err error) {
	cmd := exec.Command(c.bin(), args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		if isNoServerOrNoSessions(stderr.String()) {
			return "", ErrNoServer
		}
		return "", fmt.Errorf("tmux %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// isNoServerOrNoSessions recognizes tmux's "no server running"/"no sessions"
// stderr prefixes. These are not failures — they mean an empty session list.
func isNoServerOrNoSessions(stderr string) bool {
	s := strings.TrimSpace(stderr)
	return strings.HasPrefix(s, "no server running") || strings.HasPrefix(s, "no sessions")
}

// ListAll returns every session known to the tmux server, ordered as
// reported by tmux. A "no server running" condition is treated as an
// empty list, never an error.
func (c *Client) ListAll() ([]Session, error) {
	out, err := c.run("list-sessions", "-F",
		"#{session_name}\t#{session_activity}\t#{session_attached}\t#{pane_pid}")
	if errors.Is(err, ErrNoServer) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sessions []Session
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		epoch, _ := strconv.ParseInt(fields[1], 10, 64)
		pid, _ := strconv.Atoi(fields[3])
		sessions = append(sessions, Session{
			Name:          fields[0],
			LastActivity:  time.Unix(epoch, 0),
			Attached:      fields[2] == "1",
			ForegroundPID: pid,
		})
	}
	return sessions, nil
}

// HasSession reports whether a session with the given name exists.
// Never fails: a non-zero tmux exit is reported as false.
func (c *Client) HasSession(name string) bool {
	cmd := exec.Command(c.bin(), "has-session", "-t", name)
	return cmd.Run() == nil
}

// NewSession creates a detached session running command in workdir.
// An empty command starts the user's default shell. An empty workdir
// uses the caller's current directory.
func (c *Client) NewSession(name, command, workdir string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	if command != "" {
		args = append(args, command)
	}
	_, err := c.run(args...)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate session") {
			return ErrSessionExists
		}
		return err
	}
	return nil
}

// KillSession destroys the named session. Target-not-found is tolerated
// by most callers (the spec treats kill as best-effort idempotent at the
// supervisor layer), but this method itself reports the underlying
// failure so callers can distinguish "gone already" from "tmux broke".
func (c *Client) KillSession(name string) error {
	_, err := c.run("kill-session", "-t", name)
	if err != nil {
		if errors.Is(err, ErrNoServer) || strings.Contains(err.Error(), "can't find session") {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// CapturePane returns the last n lines of the named session's pane,
// including wrapped content. n <= 0 captures the entire scrollback.
func (c *Client) CapturePane(name string, n int) (string, error) {
	args := []string{"capture-pane", "-p", "-t", name}
	if n > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", n))
	} else {
		args = append(args, "-S", "-")
	}
	out, err := c.run(args...)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// SendTextLiteral writes text into the session verbatim — tmux performs
// no metacharacter interpretation on the -l form.
func (c *Client) SendTextLiteral(name, text string) error {
	_, err := c.run("send-keys", "-t", name, "-l", text)
	return err
}

// SendKey sends a single symbolic key (Enter, C-m, BSpace, Up, ...),
// interpreted by tmux's key-name table.
func (c *Client) SendKey(name, key string) error {
	_, err := c.run("send-keys", "-t", name, key)
	return err
}

// SetEnvironment stores a key/value pair in the session's tmux
// environment, used for small bits of out-of-band session metadata.
func (c *Client) SetEnvironment(name, key, value string) error {
	_, err := c.run("set-environment", "-t", name, key, value)
	return err
}

// GetEnvironment retrieves a value set by [Client.SetEnvironment].
// Returns ("", nil) if unset.
func (c *Client) GetEnvironment(name, key string) (string, error) {
	out, err := c.run("show-environment", "-t", name, key)
	if err != nil {
		return "", nil
	}
	if idx := strings.IndexByte(out, '='); idx >= 0 {
		return strings.TrimSpace(out[idx+1:]), nil
	}
	return "", nil
}

// AttachCmd returns the command that attaches the caller's terminal to
// the named session; running it blocks until the user detaches. The
// caller is responsible for wiring stdio.
func (c *Client) AttachCmd(name string) *exec.Cmd {
	return exec.Command(c.bin(), "-u", "attach-session", "-t", name)
}

// AttachPopup opens the session in a tmux popup without blocking the
// caller; the returned *exec.Cmd has already been Started and must be
// Wait()ed by the caller to reap it and observe completion.
func (c *Client) AttachPopup(name string, width, height int) (*exec.Cmd, error) {
	geom := fmt.Sprintf("%d", width)
	if width <= 0 {
		geom = "90%"
	}
	geomH := fmt.Sprintf("%d", height)
	if height <= 0 {
		geomH = "90%"
	}
	cmd := exec.Command(c.bin(), "display-popup", "-E", "-w", geom, "-h", geomH,
		c.bin(), "attach-session", "-t", name)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tmux: starting popup attach for %q: %w", name, err)
	}
	return cmd, nil
}
