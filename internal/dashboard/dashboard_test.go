package dashboard

import (
	"os/exec"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreman-hq/foreman/internal/fsys"
	"github.com/foreman-hq/foreman/internal/health"
	"github.com/foreman-hq/foreman/internal/hierarchy"
	"github.com/foreman-hq/foreman/internal/sandbox"
	"github.com/foreman-hq/foreman/internal/state"
	"github.com/foreman-hq/foreman/internal/supervisor"
	"github.com/foreman-hq/foreman/internal/tmux"
)

type fakeTmux struct {
	sessions map[string]bool
	panes    map[string]string
	sent     []string // "name:text" entries from SendTextLiteral
	keys     []string // "name:key" entries from SendKey
}

func newFakeTmux() *fakeTmux {
	return &fakeTmux{sessions: make(map[string]bool), panes: make(map[string]string)}
}

func (f *fakeTmux) ListAll() ([]tmux.Session, error) {
	var out []tmux.Session
	for n := range f.sessions {
		out = append(out, tmux.Session{Name: n})
	}
	return out, nil
}
func (f *fakeTmux) HasSession(name string) bool { return f.sessions[name] }
func (f *fakeTmux) NewSession(name, _, _ string) error {
	if f.sessions[name] {
		return tmux.ErrSessionExists
	}
	f.sessions[name] = true
	return nil
}
func (f *fakeTmux) KillSession(name string) error {
	if !f.sessions[name] {
		return tmux.ErrSessionNotFound
	}
	delete(f.sessions, name)
	return nil
}
func (f *fakeTmux) CapturePane(name string, _ int) (string, error) { return f.panes[name], nil }
func (f *fakeTmux) SendTextLiteral(name, text string) error {
	f.sent = append(f.sent, name+":"+text)
	return nil
}
func (f *fakeTmux) SendKey(name, key string) error {
	f.keys = append(f.keys, name+":"+key)
	return nil
}
func (f *fakeTmux) AttachCmd(string) *exec.Cmd                     { return exec.Command("true") }
func (f *fakeTmux) AttachPopup(string, int, int) (*exec.Cmd, error) {
	return exec.Command("true"), nil
}

type paneCapturerAdapter struct{ tm *fakeTmux }

func (p *paneCapturerAdapter) CapturePane(name string, n int) (string, error) {
	return p.tm.CapturePane(name, n)
}

func newTestModel(t *testing.T) (Model, *supervisor.Supervisor) {
	t.Helper()
	m, sup, _ := newTestModelWithTmux(t)
	return m, sup
}

func newTestModelWithTmux(t *testing.T) (Model, *supervisor.Supervisor, *fakeTmux) {
	t.Helper()
	tm := newFakeTmux()
	store := state.NewStore(fsys.NewFake(), "/home/u/.foreman")
	cl := health.NewFrameDiff(&paneCapturerAdapter{tm})
	sup := supervisor.New(supervisor.Config{
		RootSessionName: "foreman-manager",
		SessionPrefix:   "fm-",
		DefaultCommand:  "bash",
		DefaultWorkdir:  ".",
	}, tm, cl, store, sandbox.Passthrough{})
	require.NoError(t, sup.Refresh())
	return New(sup, 50*time.Millisecond), sup, tm
}

func TestNew_DefaultsShortIntervalToOneSecond(t *testing.T) {
	m := New(nil, 0)
	assert.Equal(t, time.Second, m.refreshInterval)
}

func TestInit_ReturnsATickCommand(t *testing.T) {
	m, _ := newTestModel(t)
	cmd := m.Init()
	assert.NotNil(t, cmd)
}

func TestUpdate_WindowSizeMsgStoresDimensions(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	nm := next.(Model)
	assert.Equal(t, 100, nm.width)
	assert.Equal(t, 40, nm.height)
}

func TestUpdate_QKeyQuits(t *testing.T) {
	m, _ := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	nm := next.(Model)
	assert.True(t, nm.quitting)
	require.NotNil(t, cmd)
}

func TestUpdate_IKeyTogglesInteractive(t *testing.T) {
	m, sup := newTestModel(t)
	require.False(t, sup.Interactive())
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	assert.True(t, sup.Interactive())
}

func TestUpdate_InteractiveModeForwardsKeystrokesToSelectedSession(t *testing.T) {
	m, sup, tm := newTestModelWithTmux(t)
	_, err := sup.Spawn(supervisor.SpawnRequest{Name: "w1"})
	require.NoError(t, err)
	require.NoError(t, sup.Refresh())
	sup.SetInteractive(true)

	selected := sup.SelectedSession()
	require.NotEmpty(t, selected)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	nm := next.(Model)
	assert.Contains(t, tm.sent, selected+":g")
	// "g" is not a dashboard command while interactive, so selection
	// and mode are both left untouched.
	assert.True(t, sup.Interactive())

	_, _ = nm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, tm.keys, selected+":Enter")
}

func TestUpdate_InteractiveModeStillTogglesOffAndQuits(t *testing.T) {
	m, sup := newTestModel(t)
	sup.SetInteractive(true)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	assert.False(t, sup.Interactive())

	sup.SetInteractive(true)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	nm := next.(Model)
	assert.True(t, nm.quitting)
	require.NotNil(t, cmd)
}

func TestUpdate_ArrowKeysMoveSelection(t *testing.T) {
	m, sup := newTestModel(t)
	_, err := sup.Spawn(supervisor.SpawnRequest{Name: "w1"})
	require.NoError(t, err)
	require.NoError(t, sup.Refresh())

	before := sup.SelectedSession()
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	after := sup.SelectedSession()
	assert.NotEqual(t, before, after)
}

func TestUpdate_KeyIgnoredWhileWaitingOnPopup(t *testing.T) {
	m, sup := newTestModel(t)
	m.waitingOnPopup = true
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	nm := next.(Model)
	assert.False(t, nm.quitting)
	assert.Nil(t, cmd)
	_ = sup
}

func TestView_RendersTreeAndFooter(t *testing.T) {
	m, _ := newTestModel(t)
	out := m.View()
	assert.Contains(t, out, "foreman-manager")
	assert.Contains(t, out, "enter attach")
}

func TestView_EmptyWhenQuitting(t *testing.T) {
	m, _ := newTestModel(t)
	m.quitting = true
	assert.Equal(t, "", m.View())
}

func TestRenderNode_RootHasNoPrefix(t *testing.T) {
	n := hierarchy.Node{
		DisplayName:    "foreman-manager",
		SessionName:    "foreman-manager",
		Health:         health.Idle,
		Depth:          0,
		IsLastSibling:  true,
		AncestorIsLast: nil,
	}
	out := renderNode(n, false)
	assert.Contains(t, out, "foreman-manager")
	assert.NotContains(t, out, "└──")
}

func TestRenderNode_ChildHasConnector(t *testing.T) {
	n := hierarchy.Node{
		DisplayName:    "pm-1",
		SessionName:    "fm-pm-1",
		Health:         health.Running,
		Depth:          1,
		IsLastSibling:  true,
		AncestorIsLast: []bool{true},
	}
	out := renderNode(n, false)
	assert.Contains(t, out, "└──")
	assert.Contains(t, out, "pm-1")
}
