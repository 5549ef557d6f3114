// Package sandbox wraps an agent's launch command according to the
// configured isolation policy. Passthrough runs the command as given;
// Containerized wraps it in a `docker run` invocation shelled out as a
// CLI — never the Docker SDK — so the produced command is a single
// string the multiplexer client can hand to new_session unmodified.
package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
)

// Provider wraps a launch command per the configured isolation policy.
type Provider interface {
	// Wrap returns the command to actually execute for session, given
	// the caller's intended command and working directory.
	Wrap(session, command, workdir string) string

	// Cleanup releases any resources associated with session. Must be
	// idempotent: called on kill and tolerant of "already gone".
	Cleanup(session string) error

	// CleanupAll removes every resource this provider has ever created,
	// regardless of which session owns it. Used on supervisor shutdown.
	CleanupAll() error
}

// Passthrough runs the command unmodified. Cleanup is a no-op.
type Passthrough struct{}

var _ Provider = Passthrough{}

func (Passthrough) Wrap(_, command, _ string) string { return command }
func (Passthrough) Cleanup(string) error              { return nil }
func (Passthrough) CleanupAll() error                 { return nil }

// NetworkMode is the container network isolation mode.
type NetworkMode string

const (
	NetworkNone   NetworkMode = "none"
	NetworkBridge NetworkMode = "bridge"
	NetworkHost   NetworkMode = "host"
)

// MountMode is the access mode of a bind mount.
type MountMode string

const (
	MountReadWrite MountMode = "rw"
	MountReadOnly  MountMode = "ro"
)

// Mount is an additional bind mount beyond the workspace and the agent
// binary/config passthrough.
type Mount struct {
	Host      string
	Container string // defaults to Host if empty
	Mode      MountMode
}

// Limits are the per-container resource caps.
type Limits struct {
	Memory    string // human-readable, e.g. "4g"; parsed via go-units
	CPUs      string // e.g. "2.0"
	PIDsLimit int
}

// Config configures [Containerized].
type Config struct {
	NamePrefix    string // container names are {NamePrefix}-sandbox-{session}
	Image         string
	Network       NetworkMode
	Limits        Limits
	TmpfsSize     string // e.g. "512m"
	WorkspaceDest string // interior mount point for the bind-mounted workdir
	WorkspaceMode MountMode
	AgentBinary   string // name resolved on PATH and bind-mounted read-only with its linker
	ConfigDirs    []string // host dirs under $HOME bind-mounted read-only
	ExtraMounts   []Mount
	DockerBin     string // defaults to "docker"
}

// Containerized wraps commands in an ephemeral, locked-down container
// launched via the docker CLI.
type Containerized struct {
	cfg Config
}

// NewContainerized returns a [Containerized] provider. Defaults are
// filled in for any zero-value Config field the spec gives a default.
func NewContainerized(cfg Config) *Containerized {
	if cfg.Network == "" {
		cfg.Network = NetworkBridge
	}
	if cfg.Limits.Memory == "" {
		cfg.Limits.Memory = "4g"
	}
	if cfg.Limits.CPUs == "" {
		cfg.Limits.CPUs = "2.0"
	}
	if cfg.Limits.PIDsLimit == 0 {
		cfg.Limits.PIDsLimit = 256
	}
	if cfg.TmpfsSize == "" {
		cfg.TmpfsSize = "512m"
	}
	if cfg.WorkspaceDest == "" {
		cfg.WorkspaceDest = "/workspace"
	}
	if cfg.WorkspaceMode == "" {
		cfg.WorkspaceMode = MountReadWrite
	}
	if cfg.DockerBin == "" {
		cfg.DockerBin = "docker"
	}
	if cfg.Image == "" {
		cfg.Image = "ubuntu:22.04"
	}
	return &Containerized{cfg: cfg}
}

var _ Provider = (*Containerized)(nil)

// containerName is the fixed per-session container name.
func (c *Containerized) containerName(session string) string {
	return fmt.Sprintf("%s-sandbox-%s", c.cfg.NamePrefix, session)
}

// Wrap returns a single shell command string that launches the
// container and execs command inside it.
func (c *Containerized) Wrap(session, command, workdir string) string {
	name := c.containerName(session)
	args := []string{c.cfg.DockerBin, "run", "--rm", "-i",
		"--name", name,
		"--network", string(c.cfg.Network),
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
		"--read-only",
		"--tmpfs", fmt.Sprintf("/tmp:rw,noexec,nosuid,size=%s", sizeBytes(c.cfg.TmpfsSize)),
		"--memory", sizeBytes(c.cfg.Limits.Memory),
		"--cpus", c.cfg.Limits.CPUs,
		"--pids-limit", fmt.Sprintf("%d", c.cfg.Limits.PIDsLimit),
	}

	if workdir == "" {
		workdir = "."
	}
	absWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		absWorkdir = workdir
	}
	args = append(args, "-v", fmt.Sprintf("%s:%s:%s", absWorkdir, c.cfg.WorkspaceDest, c.cfg.WorkspaceMode))
	args = append(args, "-w", c.cfg.WorkspaceDest)

	if home, err := os.UserHomeDir(); err == nil {
		args = append(args, "-e", "HOME="+home)
		for _, dir := range c.cfg.ConfigDirs {
			hostDir := dir
			if !filepath.IsAbs(hostDir) {
				hostDir = filepath.Join(home, hostDir)
			}
			args = append(args, "-v", fmt.Sprintf("%s:%s:ro", hostDir, hostDir))
		}
	}

	if c.cfg.AgentBinary != "" {
		if binPath, linkerPath, ok := resolveBinaryAndLinker(c.cfg.AgentBinary); ok {
			args = append(args, "-v", fmt.Sprintf("%s:%s:ro", binPath, binPath))
			if linkerPath != "" {
				args = append(args, "-v", fmt.Sprintf("%s:%s:ro", linkerPath, linkerPath))
			}
		}
	}

	for _, m := range c.cfg.ExtraMounts {
		container := m.Container
		if container == "" {
			container = m.Host
		}
		mode := m.Mode
		if mode == "" {
			mode = MountReadWrite
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.Host, container, mode))
	}

	args = append(args, c.cfg.Image, "sh", "-c", command)

	return JoinShellSafe(args)
}

// Cleanup removes the per-session container by name. Tolerates the
// container already being gone.
func (c *Containerized) Cleanup(session string) error {
	cmd := exec.Command(c.cfg.DockerBin, "rm", "-f", c.containerName(session))
	_ = cmd.Run() // best-effort: "no such container" is not an error here
	return nil
}

// CleanupAll removes every container whose name starts with the
// configured sandbox prefix.
func (c *Containerized) CleanupAll() error {
	out, err := exec.Command(c.cfg.DockerBin, "ps", "-a", "--format", "{{.Names}}").Output()
	if err != nil {
		return fmt.Errorf("sandbox: listing containers: %w", err)
	}
	prefix := c.cfg.NamePrefix + "-sandbox-"
	for _, name := range strings.Split(string(out), "\n") {
		name = strings.TrimSpace(name)
		if name == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		_ = exec.Command(c.cfg.DockerBin, "rm", "-f", name).Run()
	}
	return nil
}

// EnsureReady verifies the docker CLI is present and pulls the
// configured image if it is not already cached locally.
func (c *Containerized) EnsureReady() error {
	if _, err := exec.LookPath(c.cfg.DockerBin); err != nil {
		return fmt.Errorf("sandbox: %s not found on PATH: %w", c.cfg.DockerBin, err)
	}
	inspect := exec.Command(c.cfg.DockerBin, "image", "inspect", c.cfg.Image)
	if inspect.Run() == nil {
		return nil
	}
	pull := exec.Command(c.cfg.DockerBin, "pull", c.cfg.Image)
	if err := pull.Run(); err != nil {
		return fmt.Errorf("sandbox: pulling image %q: %w", c.cfg.Image, err)
	}
	return nil
}

// resolveBinaryAndLinker resolves name on PATH, canonicalizes symlinks,
// and best-effort locates its dynamic linker via `ldd`. Returns
// ok=false if the binary cannot be located.
func resolveBinaryAndLinker(name string) (binPath, linkerPath string, ok bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", "", false
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		real = p
	}

	out, err := exec.Command("ldd", real).Output()
	if err != nil {
		return real, "", true // static binary or ldd unavailable: binary only
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "ld-linux") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				candidate := fields[0]
				if !filepath.IsAbs(candidate) && len(fields) >= 3 {
					candidate = fields[2]
				}
				if _, err := os.Stat(candidate); err == nil {
					linkerPath = candidate
				}
			}
			break
		}
	}
	return real, linkerPath, true
}

// sizeBytes normalizes a human-readable size string (e.g. "4g",
// "512m") via go-units so docker always receives a canonical form,
// rather than forwarding whatever the operator typed in config.toml.
func sizeBytes(s string) string {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d", n)
}

// isSafe reports whether r belongs to the character set that needs no
// quoting in the produced shell command.
func isSafe(r byte) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("_./:-=", rune(r)):
		return true
	}
	return false
}

// shellQuote single-quotes arg if it contains any character outside
// the safe set, escaping embedded single quotes as '\''.
func shellQuote(arg string) string {
	needsQuote := arg == ""
	for i := 0; i < len(arg) && !needsQuote; i++ {
		if !isSafe(arg[i]) {
			needsQuote = true
		}
	}
	if !needsQuote {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// JoinShellSafe joins args into a single safely-quoted shell command
// string.
func JoinShellSafe(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}
