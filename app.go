package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type FocusMode int

const (
	FocusSidebar FocusMode = iota
	FocusGrid
)

// SourceOpener builds a TableSource for a configured source.
type SourceOpener func(cfg *SourceConfig, logger *slog.Logger) (TableSource, error)

type AppOptions struct {
	InitialSource string
	InitialTable  string
	OpenSource    SourceOpener
}

// App is the root bubbletea model: a source/table sidebar next to the grid of
// the selected table.
type App struct {
	cfg    *Config
	opts   AppOptions
	logger *slog.Logger

	source   TableSource
	loader   *TableLoader
	sidebar  *Sidebar
	grid     *GridModel
	renderer *GridRenderer
	editor   *CellEditor
	spinner  spinner.Model
	help     help.Model
	styles   AppStyles

	focus    FocusMode
	showHelp bool
	status   string
	err      error
	width    int
	height   int
}

func NewApp(cfg *Config, logger *slog.Logger, opts AppOptions) *App {
	if logger == nil {
		logger = discardLogger()
	}
	if opts.OpenSource == nil {
		opts.OpenSource = NewTableSource
	}

	names := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.SortedSources() {
		names = append(names, src.Name)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := defaultStyles()
	return &App{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		sidebar:  NewSidebar(names),
		grid:     NewGridModel(),
		renderer: NewGridRenderer(styles, logger),
		editor:   NewCellEditor(),
		spinner:  sp,
		help:     help.New(),
		styles:   styles,
		width:    80,
		height:   24,
	}
}

func (a *App) Init() tea.Cmd {
	name := a.opts.InitialSource
	if name == "" {
		if sources := a.cfg.SortedSources(); len(sources) > 0 {
			name = sources[0].Name
		}
	}
	if name == "" {
		return nil
	}

	cmd := a.openSource(name)
	if a.opts.InitialTable != "" && a.loader != nil {
		return tea.Batch(cmd, a.selectTable(a.opts.InitialTable))
	}
	return cmd
}

// Close releases the open source.
func (a *App) Close() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("failed to close source", "source", a.source.Name(), "error", err)
		}
		a.source = nil
	}
}

// openSource starts a new session on the named source. The previous source is
// closed and its loader dropped, so nothing it still has in flight can land.
func (a *App) openSource(name string) tea.Cmd {
	if a.source != nil && a.source.Name() == name {
		return nil
	}
	cfg, ok := a.cfg.Source(name)
	if !ok {
		a.err = fmt.Errorf("unknown source %q", name)
		return nil
	}

	a.editor.Cancel()
	a.Close()
	a.loader = nil
	a.grid.Sync(TableSnapshot{})

	src, err := a.opts.OpenSource(cfg, a.logger)
	if err != nil {
		a.err = err
		a.sidebar.SetActive("")
		a.logger.Error("failed to open source", "source", name, "error", err)
		return nil
	}

	a.source = src
	a.loader = NewTableLoader(src, LoaderOptions{Timeout: a.cfg.Timeout(), PageSize: a.cfg.PageSize}, a.logger)
	a.sidebar.SetActive(name)
	a.err = nil
	a.status = "opened " + name
	a.logger.Info("source opened", "source", name, "type", string(cfg.Type))

	return tea.Batch(listTablesCmd(src, a.sidebar.Session(), a.cfg.Timeout()), a.spinner.Tick)
}

func (a *App) selectTable(tableID string) tea.Cmd {
	if a.loader == nil {
		return nil
	}
	a.editor.Cancel()
	a.err = nil
	a.status = ""
	cmd := a.loader.Select(tableID)
	a.grid.Sync(a.loader.Snapshot())
	a.focus = FocusGrid
	return tea.Batch(cmd, a.spinner.Tick)
}

func (a *App) snapshot() TableSnapshot {
	if a.loader == nil {
		return TableSnapshot{}
	}
	return a.loader.Snapshot()
}

func (a *App) busy() bool {
	return a.sidebar.Listing() || (a.loader != nil && a.loader.State().Loading())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tablesListedMsg:
		if !a.sidebar.Apply(msg) {
			return a, nil
		}
		if msg.err != nil {
			a.logger.Warn("failed to list tables", "source", msg.source, "error", msg.err)
		} else if a.loader != nil && a.loader.TableID() != "" {
			a.sidebar.SelectTable(a.loader.TableID())
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	if a.loader != nil {
		if handled, cmd := a.loader.Update(msg); handled {
			a.grid.Sync(a.loader.Snapshot())
			if committed, ok := msg.(cellCommittedMsg); ok && a.loader.CommitError() == nil && committed.err == nil {
				a.status = fmt.Sprintf("saved %s", committed.column)
			}
			if err := a.loader.CommitError(); err != nil {
				a.err = err
			}
			return a, cmd
		}
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.editor.Active() {
		return a.handleEditKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, keys.Help):
		a.showHelp = !a.showHelp
		return a, nil
	case key.Matches(msg, keys.Focus):
		if a.focus == FocusSidebar {
			a.focus = FocusGrid
		} else {
			a.focus = FocusSidebar
		}
		return a, nil
	}

	if a.focus == FocusSidebar {
		return a.handleSidebarKey(msg)
	}
	return a.handleGridKey(msg)
}

func (a *App) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		a.sidebar.Move(-1)
	case key.Matches(msg, keys.Down):
		a.sidebar.Move(1)
	case key.Matches(msg, keys.Open):
		item, ok := a.sidebar.Selected()
		if !ok {
			return a, nil
		}
		if item.kind == itemSource {
			return a, a.openSource(item.source)
		}
		return a, a.selectTable(item.table.Name)
	case key.Matches(msg, keys.Reload):
		if a.source == nil {
			return a, nil
		}
		a.sidebar.SetActive(a.source.Name())
		return a, tea.Batch(listTablesCmd(a.source, a.sidebar.Session(), a.cfg.Timeout()), a.spinner.Tick)
	}
	return a, nil
}

func (a *App) handleGridKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		a.focus = FocusSidebar
	case key.Matches(msg, keys.Up):
		a.grid.MoveSelection(-1, 0)
	case key.Matches(msg, keys.Down):
		a.grid.MoveSelection(1, 0)
	case key.Matches(msg, keys.Left):
		a.grid.MoveSelection(0, -1)
	case key.Matches(msg, keys.Right):
		a.grid.MoveSelection(0, 1)
	case key.Matches(msg, keys.PageUp):
		a.grid.MoveSelection(-a.grid.ViewportRows(), 0)
	case key.Matches(msg, keys.PageDown):
		a.grid.MoveSelection(a.grid.ViewportRows(), 0)
	case key.Matches(msg, keys.Home):
		a.grid.SetSelection(a.grid.SelectedRow(), 0)
	case key.Matches(msg, keys.End):
		a.grid.SetSelection(a.grid.SelectedRow(), a.grid.LastColumn())
	case key.Matches(msg, keys.Edit):
		a.beginEdit()
	case key.Matches(msg, keys.Reload):
		return a, a.loaderCmd(func(l *TableLoader) tea.Cmd { return l.Reload() })
	case key.Matches(msg, keys.NextPage):
		return a, a.loaderCmd(func(l *TableLoader) tea.Cmd { return l.NextPage() })
	case key.Matches(msg, keys.PrevPage):
		return a, a.loaderCmd(func(l *TableLoader) tea.Cmd { return l.PrevPage() })
	}
	return a, nil
}

func (a *App) loaderCmd(fn func(*TableLoader) tea.Cmd) tea.Cmd {
	if a.loader == nil {
		return nil
	}
	cmd := fn(a.loader)
	a.grid.Sync(a.loader.Snapshot())
	if cmd == nil {
		return nil
	}
	a.err = nil
	a.status = ""
	return tea.Batch(cmd, a.spinner.Tick)
}

func (a *App) beginEdit() {
	snap := a.snapshot()
	if !snap.Renderable() {
		return
	}
	rowIdx, column, ok := a.grid.SelectedCell()
	if !ok {
		return
	}
	cell, err := ResolveCell(column, snap.Rows[rowIdx])
	if err != nil {
		a.err = err
		return
	}
	a.editor.SetWidth(max(a.width-8, 20))
	a.editor.Begin(rowIdx, column, cell.Tag(), cell.Text())
}

func (a *App) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		a.editor.Cancel()
		return a, nil
	case key.Matches(msg, keys.Commit):
		if a.loader == nil {
			a.editor.Cancel()
			return a, nil
		}
		rowIdx, column := a.editor.Target()
		cmd, err := a.loader.CommitCell(rowIdx, column, a.editor.Value())
		if err != nil {
			// keep the editor open so the input can be fixed
			a.err = err
			return a, nil
		}
		a.editor.Cancel()
		a.grid.Sync(a.loader.Snapshot())
		a.err = nil
		if cmd == nil {
			a.status = "no change"
			return a, nil
		}
		a.status = "saving " + column + "..."
		return a, cmd
	}

	a.editor.HandleKey(msg)
	return a, nil
}

func (a *App) View() string {
	width, height := a.width, a.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}

	title := "basable"
	if a.source != nil {
		title += " | " + a.source.Name()
		if id := a.snapshot().TableID; id != "" {
			title += " / " + id
		}
	}
	header := a.styles.Header.Width(width).Render(title)

	var footer []string
	if a.editor.Active() {
		footer = append(footer, a.editor.View(a.styles))
	}
	switch {
	case a.err != nil:
		footer = append(footer, a.styles.Error.Render(truncate(a.err.Error(), width-2)))
	case a.status != "":
		footer = append(footer, a.styles.Success.Render(a.status))
	}
	footer = append(footer, a.helpView())
	footerView := lipgloss.JoinVertical(lipgloss.Left, footer...)

	bodyHeight := height - lipgloss.Height(header) - lipgloss.Height(footerView)
	if bodyHeight < 5 {
		bodyHeight = 5
	}

	sidebarWidth := width / 4
	if sidebarWidth < 20 {
		sidebarWidth = 20
	}
	if sidebarWidth > 40 {
		sidebarWidth = 40
	}
	gridWidth := width - sidebarWidth

	side := a.sidebar.View(a.styles, sidebarWidth-2, bodyHeight-2, a.focus == FocusSidebar)
	snap := a.snapshot()
	page := Page{}
	if a.loader != nil {
		page = a.loader.Page()
	}
	grid := a.renderer.Render(snap, a.grid, page, a.spinner.View(), gridWidth-2, bodyHeight-2, a.focus == FocusGrid)

	body := lipgloss.JoinHorizontal(lipgloss.Top, side, grid)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footerView)
}

func (a *App) helpView() string {
	if a.showHelp {
		return a.help.FullHelpView(keys.fullHelp())
	}
	switch {
	case a.editor.Active():
		return a.help.ShortHelpView(keys.editHelp())
	case a.focus == FocusSidebar:
		return a.help.ShortHelpView(keys.sidebarHelp())
	default:
		return a.help.ShortHelpView(keys.gridHelp())
	}
}
