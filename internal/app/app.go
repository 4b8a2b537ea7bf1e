package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/olivoil/livewatch/internal/backend"
	"github.com/olivoil/livewatch/internal/files"
	"github.com/olivoil/livewatch/internal/ui"
	"github.com/olivoil/livewatch/internal/views/browser"
	"github.com/olivoil/livewatch/internal/views/command"
	"github.com/olivoil/livewatch/internal/views/logview"
)

const logPaneHeight = 8

// Options configures Run.
type Options struct {
	Config backend.Config
	Root   string // empty starts with no directory open
	Logger *zap.Logger
}

// Run starts the watch pipeline and the TUI, and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := backend.NewLogSink(cfg.Watch.LogBuffer, logger)

	theme, err := ui.LoadTheme(cfg.View.Theme)
	if err != nil {
		sink.Post(backend.LogWarn, "%v", err)
	}
	ui.Apply(theme)

	root, err := backend.NewWatchRoot(opts.Root)
	if err != nil {
		return err
	}
	pipeline, err := backend.NewPipeline(backend.PipelineConfig{
		UpdateBuffer: cfg.Watch.UpdateBuffer,
		Workers:      cfg.Watch.Workers,
		RenameWindow: cfg.Watch.RenameWindow,
		Ignore:       cfg.Watch.Ignore,
	}, sink)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	m := newModel(cfg, root, sink, pipeline.Updates())
	pipeline.Start(ctx, root)

	p := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(model); ok && fm.fatal != nil {
		return fm.fatal
	}
	return err
}

// model is the root application model.
type model struct {
	width    int
	height   int
	ready    bool
	showHelp bool
	keys     KeyMap
	cfg      backend.Config

	root     *backend.WatchRoot
	sink     *backend.LogSink
	rec      *backend.Reconciler
	building bool
	fatal    error

	browserView browser.Model
	logView     logview.Model
	promptView  command.Model
}

func newModel(cfg backend.Config, root *backend.WatchRoot, sink *backend.LogSink, updates <-chan backend.Update) model {
	policy := backend.Policy{
		AutoTrack:       cfg.Watch.AutoTrack,
		RebindSelection: cfg.Watch.RebindSelection,
	}
	base, _ := os.Getwd()
	_, hasRoot := root.Path()
	return model{
		building:    hasRoot,
		keys:        DefaultKeyMap(),
		cfg:         cfg,
		root:        root,
		sink:        sink,
		rec:         backend.NewReconciler(nil, root, updates, sink, policy),
		browserView: browser.New(cfg.View.Mode, cfg.View.WordWrap, cfg.View.TabWidth),
		logView:     logview.New(),
		promptView:  command.New(base),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick()}
	if path, ok := m.root.Path(); ok {
		cmds = append(cmds, m.buildWatchList(path))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layoutViews()
		return m, nil

	case TickMsg:
		return m.drain()

	case WatchListBuiltMsg:
		return m.installWatchList(msg), nil

	case command.OpenMsg:
		return m.openRoot(msg.Path)

	case tea.KeyPressMsg:
		if m.promptView.Focused() {
			var cmd tea.Cmd
			m.promptView, cmd = m.promptView.Update(msg)
			m.layoutViews()
			return m, cmd
		}
		return m.handleKey(msg)
	}

	return m.updateBrowser(msg)
}

func (m model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Mode):
		mode := m.browserView.CycleMode()
		m.sink.Post(backend.LogInfo, "view mode %s", mode)
		return m, nil

	case key.Matches(msg, m.keys.Wrap):
		m.browserView.ToggleWrap()
		return m, nil

	case key.Matches(msg, m.keys.Log):
		m.logView.Toggle()
		m.layoutViews()
		return m, nil

	case key.Matches(msg, m.keys.Open):
		cmd := m.promptView.Focus()
		m.layoutViews()
		return m, cmd

	case key.Matches(msg, m.keys.Rebuild):
		path, ok := m.root.Path()
		if !ok {
			return m, nil
		}
		m.building = true
		m.rec.Defer()
		return m, m.buildWatchList(path)
	}

	return m.updateBrowser(msg)
}

// updateBrowser forwards msg to the browser and moves the cache's selection
// to whatever the cursor landed on.
func (m model) updateBrowser(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.browserView, cmd = m.browserView.Update(msg)
	if list := m.rec.WatchList(); list != nil {
		if k, ok := m.browserView.SelectedKey(); ok && k != list.Cache().Selected() {
			list.Cache().Select(k)
		}
	}
	m.syncPreview()
	return m, cmd
}

// drain applies queued updates and loglets. It never waits: whatever is not
// queued yet is picked up on a later tick.
func (m model) drain() (tea.Model, tea.Cmd) {
	n, err := m.rec.Drain()
	if err != nil {
		if errors.Is(err, backend.ErrChannelClosed) {
			m.fatal = err
			return m, tea.Quit
		}
		m.sink.Post(backend.LogError, "%v", err)
	}
	if n > 0 {
		if list := m.rec.WatchList(); list != nil {
			m.browserView.SetItems(list.Cache(), list.Selection())
		}
	}
	m.syncPreview()

	loglets := drainLoglets(m.sink.Loglets(), logview.MaxEntries)
	m.logView.Append(loglets...)
	m.logView.SetDropped(m.sink.Dropped())

	return m, m.tick()
}

func drainLoglets(ch <-chan backend.Loglet, limit int) []backend.Loglet {
	var out []backend.Loglet
	for len(out) < limit {
		select {
		case l := <-ch:
			out = append(out, l)
		default:
			return out
		}
	}
	return out
}

func (m *model) syncPreview() {
	list := m.rec.WatchList()
	if list == nil {
		m.browserView.ShowContent("", nil, false)
		return
	}
	c := list.Cache()
	sel := c.Selected()
	content, _ := c.Get(sel)
	m.browserView.ShowContent(sel, content, c.Has(sel))
}

func (m model) openRoot(path string) (tea.Model, tea.Cmd) {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", path)
	}
	if err != nil {
		cmd := m.promptView.SetError(err)
		m.layoutViews()
		return m, cmd
	}
	if err := m.root.Set(path); err != nil {
		cmd := m.promptView.SetError(err)
		m.layoutViews()
		return m, cmd
	}
	abs, _ := m.root.Path()
	m.promptView.SetBase(abs)
	m.sink.Post(backend.LogInfo, "opening %s", abs)
	m.building = true
	m.layoutViews()
	return m, m.buildWatchList(abs)
}

func (m model) installWatchList(msg WatchListBuiltMsg) model {
	current, _ := m.root.Path()
	if msg.Root != current {
		// Superseded by a later open.
		return m
	}
	m.building = false
	if msg.Err != nil {
		m.sink.Post(backend.LogError, "%v", msg.Err)
		if m.rec.Flush() > 0 {
			if list := m.rec.WatchList(); list != nil {
				m.browserView.SetItems(list.Cache(), list.Selection())
			}
		}
		return m
	}
	for _, w := range msg.Warnings {
		m.sink.Post(backend.LogWarn, "%v", w)
	}
	m.rec.SetWatchList(msg.List)
	m.browserView.SetItems(msg.List.Cache(), msg.List.Selection())
	m.syncPreview()
	m.sink.Post(backend.LogInfo, "loaded %d paths under %s", msg.List.Cache().Len(), msg.Root)
	return m
}

func (m model) View() tea.View {
	var v tea.View
	v.AltScreen = true

	if !m.ready {
		v.SetContent("Loading...")
		return v
	}
	if m.showHelp {
		v.SetContent(m.renderHelpOverlay())
		return v
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.browserView.View())
	if m.logView.Visible() {
		b.WriteByte('\n')
		b.WriteString(m.logView.View())
	}
	b.WriteByte('\n')
	if m.promptView.Focused() {
		b.WriteString(m.promptView.ViewInput())
	} else {
		b.WriteString(m.renderHelpLine())
	}

	v.SetContent(b.String())
	return v
}

func (m *model) renderHeader() string {
	title := ui.StyleHeader.Render(fmt.Sprintf(" %s ", backend.AppName))
	sep := ui.StyleDim.Render("   ")

	rootStr := ui.StyleDim.Render("no directory")
	if path, ok := m.root.Path(); ok {
		rootStr = ui.StyleAccent.Render(ui.TruncateLeft(path, max(m.width/3, 12)))
	}

	var fileStr string
	if list := m.rec.WatchList(); list != nil {
		if sel := list.Cache().Selected(); sel != "" {
			fileStr = sel.Name()
		}
	}

	wrap := "nowrap"
	if m.browserView.Wrap() {
		wrap = "wrap"
	}
	state := ui.StyleDim.Render(fmt.Sprintf("%s  %s", m.browserView.Mode(), wrap))
	if m.building {
		state += sep + ui.StyleWarn.Render("scanning…")
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		title, sep, rootStr, sep, fileStr, sep, state,
	)
	bar := strings.Repeat("━", m.width)
	return header + "\n" + ui.StyleDim.Render(bar)
}

func (m *model) renderHelpLine() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return ui.StyleDim.Render(" " + strings.Join(parts, "  │  "))
}

func (m *model) renderHelpOverlay() string {
	title := ui.StyleHeader.Render(fmt.Sprintf(" %s help ", backend.AppName))

	var b strings.Builder
	b.WriteString("\n")
	for _, kb := range m.keys.FullHelp() {
		h := kb.Help()
		fmt.Fprintf(&b, "    %-12s %s\n", h.Key, h.Desc)
	}
	b.WriteString(`
  View modes
    whole        the file as one block
    lines        one row per line, blank lines skipped
    all-lines    one row per line, blank lines kept

  Open prompt
    tab          complete directory
    enter        watch directory
    esc          cancel

  `)
	b.WriteString(ui.StyleDim.Render("Press any key to close"))
	return title + "\n" + b.String()
}

func (m *model) layoutViews() {
	logH := 0
	if m.logView.Visible() {
		logH = logPaneHeight
	}
	bottom := 1 + m.promptView.MenuHeight()
	viewHeight := max(m.height-2-bottom-logH, 5) // header(2)

	m.browserView.SetSize(m.width, viewHeight)
	m.logView.SetSize(m.width, logH)
	m.promptView.SetSize(m.width)
}

// --- Commands ---

func (m *model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Watch.Tick, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *model) buildWatchList(root string) tea.Cmd {
	opts := files.WatchListOptions{
		Cache: files.CacheOptions{
			Modes:   files.AllModes,
			Workers: m.cfg.Watch.Workers,
		},
		Ignore: m.cfg.Watch.Ignore,
	}
	return func() tea.Msg {
		list, warnings, err := files.NewWatchList(root, opts)
		return WatchListBuiltMsg{Root: root, List: list, Warnings: warnings, Err: err}
	}
}
