package dashboard

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Update dispatches bubbletea messages: window resize, key presses,
// the refresh tick, and popup-exit notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		bodyHeight := msg.Height - reservedChrome
		if bodyHeight < 0 {
			bodyHeight = 0
		}
		if !m.treeReady {
			m.tree = viewport.New(msg.Width, bodyHeight)
			m.treeReady = true
		} else {
			m.tree.Width, m.tree.Height = msg.Width, bodyHeight
		}
		m.syncTreeViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if err := m.sup.Refresh(); err != nil {
			m.status = "refresh error: " + err.Error()
		}
		m.syncTreeViewport()
		if !m.waitingOnPopup {
			return m, tick(m.refreshInterval)
		}
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case popupExitedMsg:
		m.waitingOnPopup = false
		m.status = ""
		return m, tick(m.refreshInterval)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.waitingOnPopup {
		// A popup child owns the terminal; ignore keys until it exits.
		return m, nil
	}

	// Interactive mode forwards every keystroke to the selected session
	// instead of interpreting it as a dashboard command. "i" still
	// toggles back out, and ctrl+c still quits, so the user is never
	// stuck forwarding their way out.
	if m.sup.Interactive() {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "i":
			m.sup.SetInteractive(false)
			return m, nil
		}
		return m.forwardKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.sup.MoveSelection(-1)
		m.syncTreeViewport()
		return m, nil

	case "down", "j":
		m.sup.MoveSelection(1)
		m.syncTreeViewport()
		return m, nil

	case "i":
		m.sup.SetInteractive(!m.sup.Interactive())
		return m, nil

	case "enter":
		name := m.sup.SelectedSession()
		if name == "" {
			return m, nil
		}
		m.waitingOnPopup = true
		m.status = "attached: " + name
		return m, tea.Batch(attachPopupCmd(m.sup, name), waitPopupCmd(m.sup))
	}

	// Unrecognized keys (pgup/pgdown/home/end) fall through to the tree
	// viewport's own scrolling.
	if m.treeReady {
		var cmd tea.Cmd
		m.tree, cmd = m.tree.Update(msg)
		return m, cmd
	}
	return m, nil
}

// forwardKey sends one keystroke to the selected session instead of
// treating it as a dashboard command, per interactive mode's contract.
func (m Model) forwardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	name := m.sup.SelectedSession()
	if name == "" {
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		if err := m.sup.SendInput(name, "", true); err != nil {
			m.status = "send failed: " + err.Error()
		}
		return m, nil
	}

	text := string(msg.Runes)
	if text == "" {
		// Non-text control keys (arrows, tab, backspace, ...) have no
		// tmux-send-keys mapping wired yet; ignore rather than guess.
		return m, nil
	}
	if err := m.sup.SendInput(name, text, false); err != nil {
		m.status = "send failed: " + err.Error()
	}
	return m, nil
}
