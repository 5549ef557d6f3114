package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/foreman-hq/foreman/internal/health"
	"github.com/foreman-hq/foreman/internal/hierarchy"
)

var (
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

// View renders the chain-of-command tree plus a status line. Once the
// viewport is sized, the tree body is the content last synced from the
// supervisor by Update (syncTreeViewport); before that, the tree is
// rendered straight from the supervisor.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("foreman"))
	b.WriteString("\n\n")

	if m.treeReady {
		b.WriteString(m.tree.View())
	} else {
		// Before the first WindowSizeMsg the viewport has no size yet;
		// fall back to an unscrolled render.
		lines, _ := renderTreeLines(m)
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n")

	if m.sup.Interactive() {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("[interactive]"))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString("↑/↓ select · enter attach · i toggle interactive · q quit\n")

	return b.String()
}

// renderTreeLines renders every hierarchy node to one styled line each,
// returning the lines and the index of the selected node (-1 if none).
func renderTreeLines(m Model) (lines []string, selectedIdx int) {
	selected := m.sup.SelectedSession()
	selectedIdx = -1
	for i, n := range m.sup.Tree() {
		if n.SessionName == selected {
			selectedIdx = i
		}
		lines = append(lines, renderNode(n, n.SessionName == selected))
	}
	return lines, selectedIdx
}

// syncTreeViewport refreshes the viewport's content from the current
// supervisor tree and scrolls just enough to keep the selected node on
// screen.
func (m *Model) syncTreeViewport() {
	if !m.treeReady {
		return
	}
	lines, selectedIdx := renderTreeLines(*m)
	m.tree.SetContent(strings.Join(lines, "\n"))
	if selectedIdx < 0 {
		return
	}
	if selectedIdx < m.tree.YOffset {
		m.tree.SetYOffset(selectedIdx)
	} else if selectedIdx >= m.tree.YOffset+m.tree.Height {
		m.tree.SetYOffset(selectedIdx - m.tree.Height + 1)
	}
}

// renderNode draws one tree line with box-drawing connectors derived
// from Depth/IsLastSibling/AncestorIsLast, matching the ancestor-chain
// convention standard terminal tree views use (│/└/├ prefixes carried
// down from each non-terminal ancestor level).
func renderNode(n hierarchy.Node, selected bool) string {
	var prefix strings.Builder
	for depth := 1; depth < n.Depth; depth++ {
		if n.AncestorIsLast[depth] {
			prefix.WriteString("    ")
		} else {
			prefix.WriteString("│   ")
		}
	}
	if n.Depth > 0 {
		if n.IsLastSibling {
			prefix.WriteString("└── ")
		} else {
			prefix.WriteString("├── ")
		}
	}

	tag := n.DisplayName + " [" + n.Health.String() + "]"
	if n.Health == health.Running {
		tag = runningStyle.Render(tag)
	} else {
		tag = idleStyle.Render(tag)
	}
	label := prefix.String() + tag

	if selected {
		return selectedStyle.Render(label)
	}
	return label
}
