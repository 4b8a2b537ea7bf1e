package command

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/livewatch/internal/ui"
)

const maxShown = 10

// OpenMsg asks the parent to switch the watch root to Path.
type OpenMsg struct {
	Path string
}

// Model is the open-directory prompt with its completion menu.
type Model struct {
	input     textinput.Model
	completer *Completer
	focused   bool
	width     int
	err       error

	candidates []Candidate
	selected   int // index into candidates, -1 = none
}

// New creates a prompt resolving relative input against base.
func New(base string) Model {
	ti := textinput.New()
	ti.Prompt = "open: "
	ti.Placeholder = "directory to watch"
	ti.CharLimit = 1024

	return Model{
		input:     ti,
		completer: NewCompleter(base),
		selected:  -1,
	}
}

// SetBase changes the directory relative input is resolved against.
func (m *Model) SetBase(base string) {
	m.completer.SetBase(base)
}

// SetSize updates dimensions.
func (m *Model) SetSize(w int) {
	m.width = w
	m.input.SetWidth(w - len(m.input.Prompt) - 2)
}

// SetError shows err under the input and reopens the prompt.
func (m *Model) SetError(err error) tea.Cmd {
	cmd := m.Focus()
	m.err = err
	return cmd
}

// Focus opens the prompt.
func (m *Model) Focus() tea.Cmd {
	m.focused = true
	m.err = nil
	m.updateCandidates()
	return m.input.Focus()
}

// Blur closes the prompt.
func (m *Model) Blur() {
	m.focused = false
	m.candidates = nil
	m.selected = -1
	m.input.Blur()
}

// Focused returns whether the prompt has focus.
func (m *Model) Focused() bool {
	return m.focused
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyPressMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	key := keyMsg.String()
	if len(m.candidates) > 0 {
		switch key {
		case "down":
			m.selected = (m.selected + 1) % len(m.candidates)
			return m, nil
		case "up":
			m.selected--
			if m.selected < 0 {
				m.selected = len(m.candidates) - 1
			}
			return m, nil
		case "tab":
			m.acceptCandidate(max(m.selected, 0))
			m.updateCandidates()
			return m, nil
		}
	}

	switch key {
	case "enter":
		if m.selected >= 0 && m.selected < len(m.candidates) {
			m.acceptCandidate(m.selected)
		}
		input := strings.TrimSpace(m.input.Value())
		if input == "" {
			return m, nil
		}
		path := m.completer.Resolve(input)
		m.input.SetValue("")
		m.Blur()
		return m, func() tea.Msg { return OpenMsg{Path: path} }

	case "esc":
		m.input.SetValue("")
		m.Blur()
		return m, nil
	}

	m.err = nil
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.updateCandidates()
	return m, cmd
}

func (m *Model) acceptCandidate(idx int) {
	if idx < 0 || idx >= len(m.candidates) {
		return
	}
	m.input.SetValue(m.candidates[idx].Value)
	m.input.CursorEnd()
	m.selected = -1
}

func (m *Model) updateCandidates() {
	m.candidates = m.completer.Complete(m.input.Value())
	m.selected = -1
}

// MenuHeight returns the lines the completion menu and error line take,
// excluding the input line.
func (m Model) MenuHeight() int {
	if !m.focused {
		return 0
	}
	h := 0
	if m.err != nil {
		h++
	}
	if n := min(len(m.candidates), maxShown); n > 0 {
		h += n + 2 // border
	}
	if len(m.candidates) > maxShown {
		h++
	}
	return h
}

// ViewInput renders the menu, any error, and the input line.
func (m Model) ViewInput() string {
	if !m.focused {
		return ""
	}

	var b strings.Builder
	if len(m.candidates) > 0 {
		b.WriteString(m.renderCandidates())
		b.WriteByte('\n')
	}
	if m.err != nil {
		b.WriteString(ui.StyleError.Render(" " + m.err.Error()))
		b.WriteByte('\n')
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m *Model) renderCandidates() string {
	menuPanel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.ColorBorder).
		PaddingLeft(1).
		PaddingRight(1)
	selectedRow := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ui.T.Header)).
		Background(lipgloss.Color(ui.T.Accent))

	shown := m.candidates
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	panelWidth := max(m.width-4, 40)

	var rows strings.Builder
	for i, c := range shown {
		if i > 0 {
			rows.WriteByte('\n')
		}
		line := ui.TruncateLeft(c.Value, panelWidth-4)
		if i == m.selected {
			rows.WriteString(selectedRow.Render(line))
		} else {
			rows.WriteString(line)
		}
	}
	if more := len(m.candidates) - len(shown); more > 0 {
		rows.WriteString(ui.StyleDim.Render(fmt.Sprintf("\n… %d more", more)))
	}
	return menuPanel.Width(panelWidth).Render(rows.String())
}
