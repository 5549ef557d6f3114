// Package dashboard implements foreman's terminal dashboard event loop:
// the tick timer, key dispatch, and popup-attach glue around a
// bubbletea program. It keeps no agent records of its own: the tree it
// draws comes from internal/supervisor's HierarchyTree, the same
// supervisor instance the HTTP API serves from.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/foreman-hq/foreman/internal/supervisor"
)

// tickMsg advances the refresh loop.
type tickMsg time.Time

// popupExitedMsg is sent once a popup attach child process has exited.
type popupExitedMsg struct{}

// statusMsg carries a transient status-bar message, the dashboard's own
// small user-facing channel — separate from internal/logging's
// structured log stream.
type statusMsg string

// reservedChrome is the number of terminal lines the header and footer
// (title, interactive/status lines, key hints) consume around the
// scrollable tree body.
const reservedChrome = 6

// Model is the bubbletea model for foreman's dashboard. It holds no
// agent records of its own; the tree viewport holds only the lines
// rendered from sup at the last sync.
type Model struct {
	sup             *supervisor.Supervisor
	refreshInterval time.Duration

	width, height int
	status        string
	quitting      bool

	// filter is modeled for a future "narrow the tree to a substring"
	// feature but intentionally left unwired to any keystroke.
	filter string

	waitingOnPopup bool

	// tree is the scrollable body, so the hierarchy stays reachable
	// even when it outgrows the terminal — the teacher's orchestration
	// dashboard gives every worker pane its own viewport for the same
	// reason.
	tree      viewport.Model
	treeReady bool
}

// New returns a dashboard Model bound to sup.
func New(sup *supervisor.Supervisor, refreshInterval time.Duration) Model {
	if refreshInterval <= 0 {
		refreshInterval = time.Second
	}
	return Model{sup: sup, refreshInterval: refreshInterval}
}

// Init starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tick(m.refreshInterval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// attachPopupCmd opens a popup attach to name and waits for it to exit,
// reaping the child so that the supervisor's PollPopup (driven by
// waitPopupCmd) can observe the exit.
func attachPopupCmd(sup *supervisor.Supervisor, name string) tea.Cmd {
	return func() tea.Msg {
		cmd, err := sup.Attach(name, supervisor.AttachPopup)
		if err != nil {
			return statusMsg("attach failed: " + err.Error())
		}
		_ = cmd.Wait() // exit status is irrelevant; only completion matters
		return nil
	}
}

// waitPopupCmd polls PollPopup on a short interval until the popup
// child exits, then emits popupExitedMsg.
func waitPopupCmd(sup *supervisor.Supervisor) tea.Cmd {
	return func() tea.Msg {
		for {
			if sup.PollPopup() {
				return popupExitedMsg{}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}
