package browser

import (
	"fmt"
	"path/filepath"
	"strings"

	"charm.land/bubbles/v2/table"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/livewatch/internal/files"
	"github.com/olivoil/livewatch/internal/ui"
)

const (
	listWidthFrac = 0.35
	minListWidth  = 24
	sizeColWidth  = 7
)

// Model is the file browser: the selection list on the left, the selected
// file's content on the right.
type Model struct {
	table   table.Model
	preview viewport.Model
	items   files.SelectionList
	width   int
	height  int

	mode     files.ViewMode
	wrap     bool
	tabWidth int

	shownKey     files.Key
	shownContent *files.Content
	shownPresent bool
}

// New creates a browser showing content in mode.
func New(mode files.ViewMode, wrap bool, tabWidth int) Model {
	cols := []table.Column{
		{Title: "path", Width: 20},
		{Title: "size", Width: sizeColWidth},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	vp := viewport.New(viewport.WithWidth(40), viewport.WithHeight(10))

	m := Model{
		table:    t,
		preview:  vp,
		mode:     mode,
		wrap:     wrap,
		tabWidth: tabWidth,
	}
	m.RefreshStyles()
	return m
}

// RefreshStyles reapplies theme colors to the table.
func (m *Model) RefreshStyles() {
	s := table.DefaultStyles()
	s.Header = s.Header.
		Bold(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.ColorBorder)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ui.T.Selection)).
		Bold(true)
	m.table.SetStyles(s)
}

// SetItems rebuilds the rows from list and puts the cursor on selected.
func (m *Model) SetItems(cache *files.Cache, list files.SelectionList) {
	m.items = list
	rows := make([]table.Row, len(list))
	for i, it := range list {
		rows[i] = table.Row{label(it), sizeLabel(cache, it)}
	}
	m.table.SetRows(rows)
	if i := list.Index(cache.Selected()); i >= 0 {
		m.table.SetCursor(i)
	}
}

// SelectedKey returns the key under the cursor.
func (m *Model) SelectedKey() (files.Key, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.items) {
		return "", false
	}
	return m.items[i].Key, true
}

// ShowContent displays c for key. Re-rendering is skipped when nothing the
// preview depends on has changed, so the scroll position survives ticks.
func (m *Model) ShowContent(key files.Key, c *files.Content, present bool) {
	if key == m.shownKey && c == m.shownContent && present == m.shownPresent {
		return
	}
	sameKey := key == m.shownKey
	m.shownKey, m.shownContent, m.shownPresent = key, c, present
	m.render()
	if !sameKey {
		m.preview.GotoTop()
	}
}

// Mode returns the view mode in use.
func (m *Model) Mode() files.ViewMode { return m.mode }

// CycleMode switches to the next view mode.
func (m *Model) CycleMode() files.ViewMode {
	m.mode = m.mode.Next()
	m.render()
	return m.mode
}

// Wrap reports whether long lines are wrapped.
func (m *Model) Wrap() bool { return m.wrap }

// ToggleWrap flips word wrapping.
func (m *Model) ToggleWrap() bool {
	m.wrap = !m.wrap
	m.render()
	return m.wrap
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	if w == m.width && h == m.height {
		return
	}
	m.width = w
	m.height = h

	listW := m.listWidth()
	previewW := w - listW - 3
	if previewW < 10 {
		previewW = 10
	}

	m.table.SetWidth(listW)
	m.table.SetHeight(h)
	m.preview.SetWidth(previewW)
	m.preview.SetHeight(h)

	cols := m.table.Columns()
	if len(cols) == 2 {
		cols[0].Width = max(listW-sizeColWidth-2, 8)
		m.table.SetColumns(cols)
	}
	m.render()
}

// Update handles messages for the browser. Paging and horizontal keys scroll
// the content; everything else moves through the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "pgdown", "pgup", "ctrl+d", "ctrl+u", "left", "right":
			m.preview, cmd = m.preview.Update(msg)
			return m, cmd
		}
	case tea.MouseWheelMsg:
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the list and preview side by side.
func (m Model) View() string {
	previewStyle := ui.StylePreviewBorder.
		Width(m.width - m.listWidth() - 1).
		Height(m.height)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.table.View(), previewStyle.Render(m.preview.View()))
}

func (m *Model) listWidth() int {
	lw := int(float64(m.width) * listWidthFrac)
	if lw < minListWidth {
		lw = minListWidth
	}
	return lw
}

func (m *Model) render() {
	m.preview.SetContent(m.renderPreview())
}

func (m *Model) renderPreview() string {
	if len(m.items) == 0 {
		return ui.StyleDim.Render("Press o to open a directory")
	}
	if m.shownKey == "" {
		return ui.StyleDim.Render("Nothing selected")
	}
	if !m.shownPresent {
		return ui.StyleDim.Render(string(m.shownKey)+" is no longer present")
	}

	var b strings.Builder
	b.WriteString(ui.StyleAccent.Render(string(m.shownKey)))
	b.WriteString("  " + ui.StyleDim.Render(m.mode.String()))
	if m.shownContent != nil {
		b.WriteString("  " + ui.StyleDim.Render(ui.FormatSize(m.shownContent.Size())))
		b.WriteString("  " + ui.StyleDim.Render(ui.FormatClock(m.shownContent.LoadedAt())))
	}
	b.WriteString("\n\n")

	if m.shownContent == nil {
		b.WriteString(ui.StyleDim.Render("(directory or unreadable file)"))
		return b.String()
	}
	segs, ok := m.shownContent.View(m.mode)
	if !ok {
		b.WriteString(ui.StyleDim.Render("(" + m.mode.String() + " view not loaded)"))
		return b.String()
	}
	b.WriteString(m.renderSegments(segs))
	return b.String()
}

// renderSegments lays out the segments of one view. The whole view is the
// text as is; line views get a gutter numbering each segment.
func (m *Model) renderSegments(segs []string) string {
	width := m.preview.Width()
	wrap := func(s string, w int) string {
		s = ui.ExpandTabs(s, m.tabWidth)
		if !m.wrap || w <= 0 {
			return s
		}
		return lipgloss.NewStyle().Width(w).Render(s)
	}

	if m.mode == files.ViewWhole {
		if len(segs) == 0 {
			return ""
		}
		return wrap(segs[0], width)
	}

	gutter := len(fmt.Sprint(len(segs)))
	lines := make([]string, len(segs))
	for i, seg := range segs {
		num := ui.StyleDim.Render(fmt.Sprintf("%*d ", gutter, i+1))
		body := wrap(strings.TrimSuffix(seg, "\n"), width-gutter-1)
		// Continuation lines line up under the text, not the gutter.
		body = strings.ReplaceAll(body, "\n", "\n"+strings.Repeat(" ", gutter+1))
		lines[i] = num + body
	}
	return strings.Join(lines, "\n")
}

func label(it files.Item) string {
	depth := strings.Count(string(it.Key), string(filepath.Separator))
	name := it.Key.Name()
	if it.IsDir {
		name += "/"
	}
	return strings.Repeat("  ", depth) + name
}

func sizeLabel(cache *files.Cache, it files.Item) string {
	if it.IsDir {
		return ""
	}
	c, ok := cache.Get(it.Key)
	if !ok {
		return "-"
	}
	return ui.FormatSize(c.Size())
}
