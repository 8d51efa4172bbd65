package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type sidebarItemKind int

const (
	itemSource sidebarItemKind = iota
	itemTable
)

type sidebarItem struct {
	kind   sidebarItemKind
	source string
	table  TableSummary
}

// tablesListedMsg carries the table list of one source session.
type tablesListedMsg struct {
	source  string
	session uint64
	tables  []TableSummary
	err     error
}

// Sidebar lists the configured sources and, under the open one, its tables.
type Sidebar struct {
	sources    []string
	active     string
	session    uint64
	tables     []TableSummary
	listing    bool
	err        error
	items      []sidebarItem
	selected   int
	offset     int
	viewHeight int
}

func NewSidebar(sources []string) *Sidebar {
	s := &Sidebar{sources: sources, viewHeight: 10}
	s.rebuild()
	return s
}

// SetActive marks source as open and clears the tables of the previous one.
// Every call starts a new listing session, even for the same source.
func (s *Sidebar) SetActive(source string) {
	s.session++
	s.active = source
	s.tables = nil
	s.err = nil
	s.listing = source != ""
	s.rebuild()
}

func (s *Sidebar) Active() string {
	return s.active
}

// Session identifies the listing started by the last SetActive.
func (s *Sidebar) Session() uint64 {
	return s.session
}

func (s *Sidebar) Listing() bool {
	return s.listing
}

func (s *Sidebar) Err() error {
	return s.err
}

func (s *Sidebar) Tables() []TableSummary {
	return s.tables
}

// Apply takes a table listing. Results from any session but the current one
// are ignored, including an earlier session of the same source.
func (s *Sidebar) Apply(msg tablesListedMsg) bool {
	if msg.source != s.active || msg.session != s.session {
		return false
	}
	s.listing = false
	s.err = msg.err
	s.tables = msg.tables
	s.rebuild()
	return true
}

func (s *Sidebar) rebuild() {
	var selectedKey string
	if item, ok := s.Selected(); ok {
		selectedKey = itemKey(item)
	}

	items := make([]sidebarItem, 0, len(s.sources)+len(s.tables))
	for _, name := range s.sources {
		items = append(items, sidebarItem{kind: itemSource, source: name})
		if name != s.active {
			continue
		}
		for _, t := range s.tables {
			items = append(items, sidebarItem{kind: itemTable, source: name, table: t})
		}
	}
	s.items = items

	s.selected = 0
	for i, item := range items {
		if itemKey(item) == selectedKey {
			s.selected = i
			break
		}
	}
	s.ensureVisible()
}

func itemKey(item sidebarItem) string {
	if item.kind == itemSource {
		return "s:" + item.source
	}
	return "t:" + item.source + "/" + item.table.Name
}

func (s *Sidebar) Selected() (sidebarItem, bool) {
	if s.selected < 0 || s.selected >= len(s.items) {
		return sidebarItem{}, false
	}
	return s.items[s.selected], true
}

// SelectTable moves the cursor onto the named table of the open source.
func (s *Sidebar) SelectTable(name string) bool {
	for i, item := range s.items {
		if item.kind == itemTable && item.table.Name == name {
			s.selected = i
			s.ensureVisible()
			return true
		}
	}
	return false
}

func (s *Sidebar) Move(delta int) {
	if len(s.items) == 0 {
		return
	}
	next := s.selected + delta
	if next < 0 {
		next = 0
	}
	if next >= len(s.items) {
		next = len(s.items) - 1
	}
	s.selected = next
	s.ensureVisible()
}

func (s *Sidebar) SetViewport(height int) {
	if height < 1 {
		height = 1
	}
	s.viewHeight = height
	s.ensureVisible()
}

func (s *Sidebar) ensureVisible() {
	if s.selected < s.offset {
		s.offset = s.selected
	} else if s.selected >= s.offset+s.viewHeight {
		s.offset = s.selected - s.viewHeight + 1
	}
	if s.offset < 0 {
		s.offset = 0
	}
}

func (s *Sidebar) View(styles AppStyles, width, height int, focused bool) string {
	s.SetViewport(height - 3)

	title := "Sources"
	header := styles.Header.Render("  " + title)
	if focused {
		header = styles.Header.Render("► " + title)
	}

	var lines []string
	if len(s.items) == 0 {
		lines = append(lines, styles.Muted.Render("  (no sources configured)"))
	}
	end := s.offset + s.viewHeight
	if end > len(s.items) {
		end = len(s.items)
	}
	for i := s.offset; i < end; i++ {
		item := s.items[i]
		var line string
		switch item.kind {
		case itemSource:
			marker := "▸"
			if item.source == s.active {
				marker = "▾"
			}
			line = fmt.Sprintf(" %s %s", marker, item.source)
		case itemTable:
			line = "    " + item.table.Name
			if item.table.RowCount > 0 {
				line += fmt.Sprintf(" (%d)", item.table.RowCount)
			}
		}
		line = truncate(line, width-4)
		if i == s.selected {
			lines = append(lines, styles.Selected.Render(line))
		} else {
			lines = append(lines, styles.Normal.Render(line))
		}
	}

	switch {
	case s.listing:
		lines = append(lines, styles.Muted.Render("    listing tables..."))
	case s.err != nil:
		lines = append(lines, styles.Marker.Render(truncate("    "+s.err.Error(), width-4)))
	case s.active != "" && len(s.tables) == 0:
		lines = append(lines, styles.Muted.Render("    (no tables)"))
	}

	border := styles.Unfocused
	if focused {
		border = styles.Focused
	}
	return border.Width(width).Height(height).Render(header + "\n" + strings.Join(lines, "\n"))
}

func listTablesCmd(source TableSource, session uint64, timeout time.Duration) tea.Cmd {
	name := source.Name()
	return func() tea.Msg {
		ctx, cancel := fetchContext(timeout)
		defer cancel()
		tables, err := source.ListTables(ctx)
		return tablesListedMsg{source: name, session: session, tables: tables, err: err}
	}
}
