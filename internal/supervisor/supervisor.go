// Package supervisor owns all mutable runtime state for foreman: the
// set of owned tmux sessions, their liveness, the parent/child
// hierarchy, persisted projects and worker tasks, and the sandbox
// policy. It exposes the single set of operations consumed by both
// the HTTP API and the dashboard event loop, each guarded by one
// coarse mutex — see spec §5 for the concurrency contract this
// mirrors.
package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foreman-hq/foreman/internal/health"
	"github.com/foreman-hq/foreman/internal/hierarchy"
	"github.com/foreman-hq/foreman/internal/sandbox"
	"github.com/foreman-hq/foreman/internal/state"
	"github.com/foreman-hq/foreman/internal/tmux"
)

// Role is the kind of agent a spawn request targets.
type Role string

const (
	RoleRoot           Role = "root"
	RoleProjectManager Role = "project-manager"
	RoleWorker         Role = "worker"
)

// Errors returned by supervisor operations.
var (
	ErrNameConflict    = errors.New("supervisor: session name already in use")
	ErrNotFound        = errors.New("supervisor: session not owned")
	ErrRootProtected   = errors.New("supervisor: cannot kill the reserved root session")
)

// Timing constants from the ensure-root and spawn protocols. Named, not
// inlined, so tests can reason about them without magic numbers.
const (
	settleDelay       = 2 * time.Second
	promptFlushDelay  = 200 * time.Millisecond
	memorySnapshotGap = 1 * time.Second
	sendFlushDelay    = 100 * time.Millisecond
)

// tmuxClient is the subset of [*tmux.Client] the supervisor needs.
// Declaring it as an interface (rather than depending on the concrete
// type) lets tests substitute a fake multiplexer.
type tmuxClient interface {
	ListAll() ([]tmux.Session, error)
	HasSession(name string) bool
	NewSession(name, command, workdir string) error
	KillSession(name string) error
	CapturePane(name string, n int) (string, error)
	SendTextLiteral(name, text string) error
	SendKey(name, key string) error
	AttachCmd(name string) *exec.Cmd
	AttachPopup(name string, width, height int) (*exec.Cmd, error)
}

var _ tmuxClient = (*tmux.Client)(nil)

// Config configures a [Supervisor] instance.
type Config struct {
	RootSessionName string // reserved, fixed literal e.g. "foreman-manager"
	SessionPrefix   string
	DefaultCommand  string
	DefaultWorkdir  string
	RootSystemPrompt string
	RootLabel       string // display label, e.g. "Executive Assistant"
	IdleThreshold   time.Duration
}

// Agent is the display-ready, derived-each-tick record for one session.
type Agent struct {
	SessionName string
	ShortName   string
	Role        Role
	Health      health.State
	LastOutput  string
}

// PopupHandle tracks a non-blocking popup attach child. ID is a random
// UUID minted per attach, identifying one popup lifetime; nothing in
// this package logs or reads it.
type PopupHandle struct {
	ID      string
	Session string
	cmd     *exec.Cmd
}

// Supervisor is the concurrency-safe core. The zero value is not
// usable; construct with [New].
type Supervisor struct {
	mu sync.Mutex

	cfg     Config
	tm      tmuxClient
	health  health.Classifier
	store   *state.Store
	sandbox sandbox.Provider

	agents      []Agent
	tree        []hierarchy.Node
	groups      []hierarchy.Group
	parents     map[string]string
	workerTasks map[string]string

	selection    selectionState
	popup        *PopupHandle
	needsRedraw  bool
}

type selectionState struct {
	rootSelected bool
	workerIndex  int
	interactive  bool
}

// New constructs a Supervisor. The returned value performs no I/O until
// [Supervisor.Refresh] is called.
func New(cfg Config, tm tmuxClient, cl health.Classifier, store *state.Store, sb sandbox.Provider) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		tm:          tm,
		health:      cl,
		store:       store,
		sandbox:     sb,
		selection:   selectionState{rootSelected: true},
		parents:     make(map[string]string),
		workerTasks: make(map[string]string),
	}
}

// shortName strips the configured session prefix.
func (s *Supervisor) shortName(name string) string {
	return hierarchy.ShortName(name, s.cfg.SessionPrefix)
}

// fullName prepends the configured prefix unless already present.
func (s *Supervisor) fullName(id string) string {
	if id == s.cfg.RootSessionName || strings.HasPrefix(id, s.cfg.SessionPrefix) {
		return id
	}
	return s.cfg.SessionPrefix + id
}

// isOwned reports whether a full session name belongs to foreman: it is
// the root, or it carries the configured prefix.
func (s *Supervisor) isOwned(name string) bool {
	if name == s.cfg.RootSessionName {
		return true
	}
	return s.cfg.SessionPrefix == "" || strings.HasPrefix(name, s.cfg.SessionPrefix)
}

// Refresh ensures the root session exists, enumerates owned sessions,
// classifies each, rebuilds the hierarchy, reloads persisted projects
// and the parent map, purges stale liveness frames, and rewrites the
// memory snapshot. Order is fixed per spec §5.
func (s *Supervisor) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Supervisor) refreshLocked() error {
	if err := s.ensureRootLocked(); err != nil {
		return fmt.Errorf("supervisor: ensure-root: %w", err)
	}

	sessions, err := s.tm.ListAll()
	if err != nil {
		return fmt.Errorf("supervisor: listing sessions: %w", err)
	}

	var live []string
	var agents []Agent
	for _, sess := range sessions {
		if !s.isOwned(sess.Name) {
			continue
		}
		live = append(live, sess.Name)
		info := s.health.CheckDetailed(sess.Name)
		agents = append(agents, Agent{
			SessionName: sess.Name,
			ShortName:   s.shortName(sess.Name),
			Role:        s.roleOf(sess.Name),
			Health:      info.State,
			LastOutput:  info.LastOutputLine,
		})
	}
	s.agents = agents

	s.parents = s.store.LoadParents()
	s.workerTasks = s.store.LoadWorkerTasks()

	hAgents := make([]hierarchy.Agent, 0, len(agents))
	for _, a := range agents {
		hAgents = append(hAgents, hierarchy.Agent{SessionName: a.SessionName, Health: a.Health, LastOutput: a.LastOutput})
	}
	s.tree = hierarchy.BuildTree(hAgents, s.cfg.RootSessionName, s.cfg.SessionPrefix, s.parents)
	s.groups = hierarchy.BuildGroups(hAgents, s.cfg.RootSessionName, s.cfg.SessionPrefix, s.parents)

	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}
	s.health.Purge(live)
	_ = s.store.PruneStaleKeys(liveSet) // best-effort: spec tolerates silent write failure

	s.writeMemorySnapshotLocked()
	return nil
}

// roleOf derives a session's [Role] from its short name.
func (s *Supervisor) roleOf(name string) Role {
	if name == s.cfg.RootSessionName {
		return RoleRoot
	}
	if hierarchy.IsPM(s.shortName(name)) {
		return RoleProjectManager
	}
	return RoleWorker
}

// ensureRootLocked implements the ensure-root protocol. Caller must
// hold s.mu.
func (s *Supervisor) ensureRootLocked() error {
	if s.tm.HasSession(s.cfg.RootSessionName) {
		return nil
	}

	if err := s.tm.NewSession(s.cfg.RootSessionName, s.cfg.DefaultCommand, s.cfg.DefaultWorkdir); err != nil {
		return err
	}

	go s.injectRootStartupSequence()
	return nil
}

// injectRootStartupSequence runs steps 3-6 of the ensure-root protocol
// as a fire-and-forget background sequence, matching the teacher's
// sleep-then-inject idiom: no context, no cancellation, best-effort.
func (s *Supervisor) injectRootStartupSequence() {
	time.Sleep(settleDelay)
	_ = s.tm.SendTextLiteral(s.cfg.RootSessionName, s.cfg.RootSystemPrompt)
	time.Sleep(promptFlushDelay)
	_ = s.tm.SendKey(s.cfg.RootSessionName, "Enter")

	if snapshot, ok := s.store.LoadMemory(); ok && snapshot != "" {
		time.Sleep(memorySnapshotGap)
		header := "Here is your last known state, restored from disk:\n\n"
		_ = s.tm.SendTextLiteral(s.cfg.RootSessionName, header+snapshot)
		time.Sleep(promptFlushDelay)
		_ = s.tm.SendKey(s.cfg.RootSessionName, "Enter")
	}

	s.mu.Lock()
	s.writeMemorySnapshotLocked()
	s.mu.Unlock()
}

// writeMemorySnapshotLocked rewrites memory.md from current state.
// Caller must hold s.mu.
func (s *Supervisor) writeMemorySnapshotLocked() {
	projects := s.store.LoadProjects()

	var workers []state.WorkerSnapshot
	for _, a := range s.agents {
		if a.Role == RoleRoot {
			continue
		}
		workers = append(workers, state.WorkerSnapshot{
			SessionName: a.ShortName,
			HealthLabel: a.Health.String(),
			Task:        s.workerTasks[a.SessionName],
		})
	}

	rootRunning := s.tm.HasSession(s.cfg.RootSessionName)
	var paneLines []string
	if rootRunning {
		if out, err := s.tm.CapturePane(s.cfg.RootSessionName, 50); err == nil {
			for _, l := range strings.Split(health.StripANSI(out), "\n") {
				l = strings.TrimSpace(l)
				if l != "" {
					paneLines = append(paneLines, l)
				}
			}
		}
	}

	_ = s.store.SaveMemory(state.MemoryInput{
		RootLabel:     s.cfg.RootLabel,
		RootName:      s.cfg.RootSessionName,
		Projects:      projects,
		Workers:       workers,
		RootRunning:   rootRunning,
		RootPaneLines: paneLines,
	})
}

// GenerateAgentName returns the lowest `{prefix}{i}` (i >= 1, i < 1000)
// not currently in use. On exhaustion it falls back to
// `{prefix}{unix_seconds}`.
func (s *Supervisor) GenerateAgentName(shortPrefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateAgentNameLocked(shortPrefix)
}

func (s *Supervisor) generateAgentNameLocked(shortPrefix string) string {
	used := make(map[string]bool, len(s.agents))
	for _, a := range s.agents {
		used[a.ShortName] = true
	}
	for i := 1; i < 1000; i++ {
		candidate := shortPrefix + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
	return shortPrefix + strconv.FormatInt(time.Now().Unix(), 10)
}

// SpawnRequest is the input to [Supervisor.Spawn].
type SpawnRequest struct {
	Name    string // short name; auto-generated if empty
	Command string
	Workdir string
	Task    string
	Role    Role
	Parent  string // short or full name; resolved to full before recording
}

// SpawnResult is returned by a successful spawn.
type SpawnResult struct {
	SessionName string
	ShortName   string
}

// Spawn creates a new owned session per spec §4.4.
func (s *Supervisor) Spawn(req SpawnRequest) (SpawnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shortPrefix := "agent-"
	if req.Role == RoleProjectManager {
		shortPrefix = "pm-"
	}

	short := req.Name
	if short == "" {
		short = s.generateAgentNameLocked(shortPrefix)
	}
	full := s.fullName(short)

	if s.tm.HasSession(full) {
		return SpawnResult{}, ErrNameConflict
	}

	command := req.Command
	if command == "" {
		command = s.cfg.DefaultCommand
	}
	workdir := req.Workdir
	if workdir == "" {
		workdir = s.cfg.DefaultWorkdir
	}
	if s.sandbox != nil {
		command = s.sandbox.Wrap(full, command, workdir)
	}

	if err := s.tm.NewSession(full, command, workdir); err != nil {
		return SpawnResult{}, fmt.Errorf("supervisor: spawning %q: %w", full, err)
	}

	s.recordParentLocked(full, req)

	if req.Task != "" {
		s.workerTasks[full] = req.Task
		_ = s.store.SaveWorkerTasks(s.workerTasks)
		go s.injectSpawnTask(full, req.Task, req.Role, short)
	}

	return SpawnResult{SessionName: full, ShortName: short}, nil
}

// recordParentLocked resolves and records the parent for a newly
// spawned session, or auto-infers it when absent. Caller holds s.mu.
func (s *Supervisor) recordParentLocked(full string, req SpawnRequest) {
	if req.Parent != "" {
		s.parents[full] = s.fullName(req.Parent)
		_ = s.store.SaveParents(s.parents)
		return
	}
	if req.Role == RoleProjectManager {
		return
	}

	var pms []string
	for _, a := range s.agents {
		if a.Role == RoleProjectManager {
			pms = append(pms, a.SessionName)
		}
	}
	if len(pms) == 1 {
		s.parents[full] = pms[0]
		_ = s.store.SaveParents(s.parents)
	}
	// zero or >=2 PMs: no parent recorded, agent surfaces as orphan
}

// injectSpawnTask performs the deferred task-injection sequence,
// fire-and-forget, with no ordering guarantee relative to other spawns.
func (s *Supervisor) injectSpawnTask(full, task string, role Role, shortName string) {
	time.Sleep(settleDelay)

	text := task
	if role == RoleRoot {
		text = s.cfg.RootSystemPrompt + "\n\n" + shortName + "\n\n" + task
	}
	_ = s.tm.SendTextLiteral(full, text)
	time.Sleep(promptFlushDelay)
	_ = s.tm.SendKey(full, "Enter")
}

// OutputTail returns the last n lines of an owned session's pane, for
// the HTTP API's agent-detail view.
func (s *Supervisor) OutputTail(name string, n int) (string, error) {
	s.mu.Lock()
	full := s.fullName(name)
	owned := s.isOwned(full)
	s.mu.Unlock()

	if !owned {
		return "", ErrNotFound
	}
	return s.tm.CapturePane(full, n)
}

// Kill destroys an owned session and removes its bookkeeping.
func (s *Supervisor) Kill(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.fullName(name)
	if full == s.cfg.RootSessionName {
		return ErrRootProtected
	}
	if !s.isOwned(full) || !s.tm.HasSession(full) {
		return ErrNotFound
	}

	if err := s.tm.KillSession(full); err != nil && !errors.Is(err, tmux.ErrSessionNotFound) {
		return fmt.Errorf("supervisor: killing %q: %w", full, err)
	}

	delete(s.parents, full)
	_ = s.store.SaveParents(s.parents)

	if s.sandbox != nil {
		_ = s.sandbox.Cleanup(full) // best-effort
	}
	return nil
}

// SendInput sends literal text to an owned, live session, optionally
// followed by Enter after a short flush delay. A session that is not
// owned or does not exist yields ErrNotFound.
func (s *Supervisor) SendInput(name, text string, pressEnter bool) error {
	s.mu.Lock()
	full := s.fullName(name)
	owned := s.isOwned(full) && s.tm.HasSession(full)
	s.mu.Unlock()

	if !owned {
		return ErrNotFound
	}
	if err := s.tm.SendTextLiteral(full, text); err != nil {
		return fmt.Errorf("supervisor: sending input to %q: %w", full, err)
	}
	if pressEnter {
		time.Sleep(sendFlushDelay)
		if err := s.tm.SendKey(full, "Enter"); err != nil {
			return fmt.Errorf("supervisor: sending Enter to %q: %w", full, err)
		}
	}
	return nil
}

// AttachMode selects blocking vs popup attach.
type AttachMode int

const (
	AttachBlocking AttachMode = iota
	AttachPopup
)

// Attach opens an attach to the named session. Blocking attach returns
// the *exec.Cmd for the caller to run/wait; popup attach starts the
// child immediately and tracks its handle for tick-based polling.
func (s *Supervisor) Attach(name string, mode AttachMode) (*exec.Cmd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.fullName(name)
	if !s.isOwned(full) {
		return nil, ErrNotFound
	}

	if mode == AttachBlocking {
		return s.tm.AttachCmd(full), nil
	}

	cmd, err := s.tm.AttachPopup(full, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("supervisor: attaching popup to %q: %w", full, err)
	}
	s.popup = &PopupHandle{ID: uuid.New().String(), Session: full, cmd: cmd}
	return cmd, nil
}

// PollPopup checks whether a tracked popup child has exited. The
// dashboard calls it repeatedly while a popup is open. Returns true if
// a redraw is now warranted.
func (s *Supervisor) PollPopup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.popup == nil {
		return false
	}
	if s.popup.cmd.ProcessState != nil {
		s.popup = nil
		s.needsRedraw = true
		return true
	}
	// Non-blocking check: Wait in a goroutine would race with this
	// poll, so rely on ProcessState only being set once something else
	// (the caller's own Wait) has reaped the child.
	return false
}

// Shutdown kills any live popup child and the reserved root session so
// the next launch starts fresh.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.popup != nil {
		_ = s.popup.cmd.Process.Kill()
		_ = s.popup.cmd.Wait()
		s.popup = nil
	}
	_ = s.tm.KillSession(s.cfg.RootSessionName)
	if s.sandbox != nil {
		_ = s.sandbox.CleanupAll()
	}
}

// --- read-only accessors for the HTTP API and dashboard ---

// Agents returns the last-refreshed agent list.
func (s *Supervisor) Agents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// Tree returns the last-built hierarchy tree.
func (s *Supervisor) Tree() []hierarchy.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hierarchy.Node, len(s.tree))
	copy(out, s.tree)
	return out
}

// Groups returns the last-built worker-grid groups.
func (s *Supervisor) Groups() []hierarchy.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hierarchy.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// Find returns the agent record for a short or full session name.
func (s *Supervisor) Find(name string) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := s.fullName(name)
	for _, a := range s.agents {
		if a.SessionName == full {
			return a, true
		}
	}
	return Agent{}, false
}

// --- selection state, for the dashboard ---

// MoveSelection advances the selection ring by delta (+1/-1),
// wrapping through [root, w0, ..., wn-1, root].
func (s *Supervisor) MoveSelection(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workerCount int
	for _, a := range s.agents {
		if a.Role != RoleRoot {
			workerCount++
		}
	}
	if workerCount == 0 {
		s.selection = selectionState{rootSelected: true, interactive: s.selection.interactive}
		return
	}

	ringLen := workerCount + 1 // root + workers
	pos := 0
	if !s.selection.rootSelected {
		pos = s.selection.workerIndex + 1
	}
	pos = ((pos+delta)%ringLen + ringLen) % ringLen

	if pos == 0 {
		s.selection = selectionState{rootSelected: true, interactive: s.selection.interactive}
	} else {
		s.selection = selectionState{rootSelected: false, workerIndex: pos - 1, interactive: s.selection.interactive}
	}
}

// SetInteractive toggles whether keystrokes forward to the selected
// session instead of being interpreted as dashboard commands.
func (s *Supervisor) SetInteractive(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.interactive = on
}

// Interactive reports the current interactive-mode flag.
func (s *Supervisor) Interactive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.interactive
}

// SelectedSession returns the full session name currently selected.
func (s *Supervisor) SelectedSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection.rootSelected {
		return s.cfg.RootSessionName
	}
	var workers []Agent
	for _, a := range s.agents {
		if a.Role != RoleRoot {
			workers = append(workers, a)
		}
	}
	if s.selection.workerIndex >= len(workers) {
		return s.cfg.RootSessionName
	}
	return workers[s.selection.workerIndex].SessionName
}
