package logview

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/olivoil/livewatch/internal/backend"
	"github.com/olivoil/livewatch/internal/ui"
)

// MaxEntries bounds the pane's history; older loglets are discarded.
const MaxEntries = 200

// Model is the log pane shown under the browser.
type Model struct {
	viewport viewport.Model
	entries  []backend.Loglet
	dropped  int64
	width    int
	height   int
	visible  bool
}

// New creates a log pane.
func New() Model {
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(6))
	return Model{viewport: vp}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.SetWidth(w)
	m.viewport.SetHeight(max(h-1, 1)) // border line
	m.setContent()
}

// Append adds loglets, keeping the newest MaxEntries. The view follows new
// entries unless the user scrolled up.
func (m *Model) Append(ls ...backend.Loglet) {
	if len(ls) == 0 {
		return
	}
	m.entries = append(m.entries, ls...)
	if over := len(m.entries) - MaxEntries; over > 0 {
		m.entries = append(m.entries[:0], m.entries[over:]...)
	}
	atBottom := m.viewport.AtBottom()
	m.setContent()
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// SetDropped records how many loglets never reached the pane.
func (m *Model) SetDropped(n int64) {
	if n != m.dropped {
		m.dropped = n
		m.setContent()
	}
}

// Entries returns the retained loglets, oldest first.
func (m *Model) Entries() []backend.Loglet { return m.entries }

// Toggle shows or hides the pane.
func (m *Model) Toggle() bool {
	m.visible = !m.visible
	return m.visible
}

// Visible returns whether the pane is shown.
func (m *Model) Visible() bool { return m.visible }

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the pane.
func (m Model) View() string {
	return ui.StylePane.Width(m.width).Render(m.viewport.View())
}

func (m *Model) setContent() {
	var b strings.Builder
	if len(m.entries) == 0 {
		b.WriteString(ui.StyleDim.Render("(no log entries)"))
	}
	for i, l := range m.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ui.StyleDim.Render(ui.FormatClock(l.Time)))
		b.WriteByte(' ')
		b.WriteString(kindStyle(l.Kind))
		b.WriteByte(' ')
		b.WriteString(ui.Truncate(l.Message, m.width-15))
	}
	if m.dropped > 0 {
		b.WriteString("\n" + ui.StyleWarn.Render(fmt.Sprintf("(%d entries dropped, see log file)", m.dropped)))
	}
	m.viewport.SetContent(b.String())
}

func kindStyle(k backend.LogKind) string {
	label := fmt.Sprintf("%-5s", k)
	switch k {
	case backend.LogError:
		return ui.StyleError.Render(label)
	case backend.LogWarn:
		return ui.StyleWarn.Render(label)
	}
	return ui.StyleInfo.Render(label)
}
