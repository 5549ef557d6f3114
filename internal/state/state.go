// Package state implements foreman's durable, best-effort persistence:
// the parent map, worker task text, the project list, and the markdown
// memory snapshot. Every read tolerates absence (empty defaults); every
// write is best-effort and its failure is reported but never fatal to
// a caller mid-refresh.
package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/foreman-hq/foreman/internal/fsys"
)

const (
	parentsFile     = "parents.json"
	workerTasksFile = "worker_tasks.json"
	projectsFile    = "projects.txt"
	memoryFile      = "memory.md"
	lockFile        = ".state.lock"
)

// Project is one entry of the persisted project list. ID is the
// 1-based position in the file at the time it was loaded or saved;
// it is recomputed on every save.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Store is the persistence boundary, rooted at a single directory
// (typically `<home>/.foreman`). Every write takes an advisory file
// lock (best-effort, see withLock) so a concurrent CLI invocation and
// the running daemon don't interleave writes. Reads take no lock, and
// the load step of AddProject, RemoveProject and PruneStaleKeys runs
// before the lock is taken, so a whole read-modify-write is not
// serialized.
type Store struct {
	fs  fsys.FS
	dir string
}

// NewStore returns a [Store] rooted at dir. The directory is created
// lazily on first write.
func NewStore(fs fsys.FS, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// withLock runs fn while holding an exclusive advisory lock on the
// store's lock file. Lock acquisition failures are tolerated: fn still
// runs, since a stuck lock (e.g. from a killed process holding it on a
// filesystem without proper flock support) must not wedge persistence.
func (s *Store) withLock(fn func() error) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fn() // best-effort: fall through without the lock
	}
	fl := flock.New(s.path(lockFile))
	locked, _ := fl.TryLock()
	if locked {
		defer fl.Unlock() //nolint:errcheck // best-effort unlock
	}
	return fn()
}

// --- parents.json ---

// LoadParents returns the persisted child→parent map, or an empty map
// if the file is absent or unreadable.
func (s *Store) LoadParents() map[string]string {
	return s.loadJSONMap(parentsFile)
}

// SaveParents rewrites parents.json. A write failure is returned but
// callers treat it as non-fatal (silent best-effort snapshot).
func (s *Store) SaveParents(m map[string]string) error {
	return s.saveJSONMap(parentsFile, m)
}

// --- worker_tasks.json ---

// LoadWorkerTasks returns the persisted session→task map, or an empty
// map if the file is absent or unreadable.
func (s *Store) LoadWorkerTasks() map[string]string {
	return s.loadJSONMap(workerTasksFile)
}

// SaveWorkerTasks rewrites worker_tasks.json.
func (s *Store) SaveWorkerTasks(m map[string]string) error {
	return s.saveJSONMap(workerTasksFile, m)
}

func (s *Store) loadJSONMap(name string) map[string]string {
	out := make(map[string]string)
	data, err := s.fs.ReadFile(s.path(name))
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out) // malformed file -> empty defaults
	return out
}

func (s *Store) saveJSONMap(name string, m map[string]string) error {
	return s.withLock(func() error {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("state: marshaling %s: %w", name, err)
		}
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("state: creating %s: %w", s.dir, err)
		}
		if err := s.fs.WriteFile(s.path(name), data, 0o644); err != nil {
			return fmt.Errorf("state: writing %s: %w", name, err)
		}
		return nil
	})
}

// PruneStaleKeys drops entries from parents/worker_tasks whose key is
// not in the current live session set, and rewrites both files. Errors
// from either rewrite are collected but both are always attempted.
func (s *Store) PruneStaleKeys(liveSessions map[string]bool) error {
	parents := s.LoadParents()
	tasks := s.LoadWorkerTasks()

	for k := range parents {
		if !liveSessions[k] {
			delete(parents, k)
		}
	}
	for k := range tasks {
		if !liveSessions[k] {
			delete(tasks, k)
		}
	}

	errP := s.SaveParents(parents)
	errT := s.SaveWorkerTasks(tasks)
	if errP != nil {
		return errP
	}
	return errT
}

// --- projects.txt ---

// LoadProjects parses projects.txt. A line is accepted iff it starts
// with one or more ASCII digits, followed by ". ", followed by a
// non-empty trimmed name; the accepted subsequence's position becomes
// the returned ID (1-based). Unrecognized lines are silently skipped.
// Absence of the file yields an empty list.
func (s *Store) LoadProjects() []Project {
	data, err := s.fs.ReadFile(s.path(projectsFile))
	if err != nil {
		return nil
	}
	var projects []Project
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name, ok := parseProjectLine(scanner.Text())
		if !ok {
			continue
		}
		projects = append(projects, Project{ID: len(projects) + 1, Name: name})
	}
	return projects
}

// parseProjectLine extracts the name from a "N. name" line.
func parseProjectLine(line string) (name string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", false
	}
	rest := line[i:]
	if !strings.HasPrefix(rest, ". ") {
		return "", false
	}
	name = strings.TrimSpace(rest[2:])
	if name == "" {
		return "", false
	}
	return name, true
}

// SaveProjects renumbers projects 1..N by position and rewrites
// projects.txt.
func (s *Store) SaveProjects(projects []Project) error {
	return s.withLock(func() error {
		var buf bytes.Buffer
		for i, p := range projects {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, p.Name)
		}
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("state: creating %s: %w", s.dir, err)
		}
		if err := s.fs.WriteFile(s.path(projectsFile), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("state: writing %s: %w", projectsFile, err)
		}
		return nil
	})
}

// AddProject appends name and renumbers. Returns the new project's ID.
func (s *Store) AddProject(name string) (int, error) {
	projects := s.LoadProjects()
	projects = append(projects, Project{Name: name})
	renumber(projects)
	if err := s.SaveProjects(projects); err != nil {
		return 0, err
	}
	return projects[len(projects)-1].ID, nil
}

// RemoveProject deletes the project with the given ID and renumbers.
// Reports whether a project with that ID was found.
func (s *Store) RemoveProject(id int) (bool, error) {
	projects := s.LoadProjects()
	idx := -1
	for i, p := range projects {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}
	projects = append(projects[:idx], projects[idx+1:]...)
	renumber(projects)
	if err := s.SaveProjects(projects); err != nil {
		return true, err
	}
	return true, nil
}

func renumber(projects []Project) {
	for i := range projects {
		projects[i].ID = i + 1
	}
}

// --- memory.md ---

// WorkerSnapshot is a display-ready worker row for [RenderMemory].
type WorkerSnapshot struct {
	SessionName string
	HealthLabel string
	Task        string // empty -> "(no task assigned)"
}

// MemoryInput collects everything [RenderMemory] needs.
type MemoryInput struct {
	RootLabel      string // e.g. "Executive Assistant"
	RootName       string
	Projects       []Project
	Workers        []WorkerSnapshot
	RootRunning    bool
	RootPaneLines  []string // already ANSI-stripped, non-empty, most-recent-last
}

// maxContextLines caps how many of the root's recent pane lines are
// embedded in the snapshot.
const maxContextLines = 20

// RenderMemory builds the markdown memory snapshot described in the
// persisted-files contract: active projects, active workers with
// tasks, root status, and (only while running) the root's recent
// pane context.
func RenderMemory(in MemoryInput) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s State\n\n", in.RootLabel)

	if len(in.Projects) > 0 {
		buf.WriteString("## Active Projects\n")
		for _, p := range in.Projects {
			fmt.Fprintf(&buf, "%d. %s\n", p.ID, p.Name)
		}
		buf.WriteString("\n")
	}

	if len(in.Workers) > 0 {
		buf.WriteString("## Active Workers\n")
		for _, w := range in.Workers {
			task := w.Task
			if task == "" {
				task = "(no task assigned)"
			}
			fmt.Fprintf(&buf, "- %s (%s): %s\n", w.SessionName, w.HealthLabel, task)
		}
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "## %s\n", in.RootLabel)
	status := "Not running"
	if in.RootRunning {
		status = "Running"
	}
	fmt.Fprintf(&buf, "- Status: %s\n", status)

	if in.RootRunning && len(in.RootPaneLines) > 0 {
		buf.WriteString("\n")
		fmt.Fprintf(&buf, "## %s's Recent Context\n", in.RootLabel)
		lines := in.RootPaneLines
		if len(lines) > maxContextLines {
			lines = lines[len(lines)-maxContextLines:]
		}
		for _, l := range lines {
			fmt.Fprintf(&buf, "> %s\n", l)
		}
	}

	return buf.String()
}

// SaveMemory overwrites memory.md with the rendered snapshot.
func (s *Store) SaveMemory(in MemoryInput) error {
	return s.withLock(func() error {
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("state: creating %s: %w", s.dir, err)
		}
		if err := s.fs.WriteFile(s.path(memoryFile), []byte(RenderMemory(in)), 0o644); err != nil {
			return fmt.Errorf("state: writing %s: %w", memoryFile, err)
		}
		return nil
	})
}

// LoadMemory returns the persisted memory snapshot, or ("", false) if
// it doesn't exist.
func (s *Store) LoadMemory() (string, bool) {
	data, err := s.fs.ReadFile(s.path(memoryFile))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// DefaultStateDir returns `<home>/.foreman` for the current user, or
// "." if the home directory cannot be determined.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".foreman")
}
