package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// CellEditor is the single line input used to edit one grid cell.
type CellEditor struct {
	value  []rune
	cursor int
	width  int

	active   bool
	rowIndex int
	column   string
	tag      string
}

func NewCellEditor() *CellEditor {
	return &CellEditor{width: 60}
}

func (e *CellEditor) SetWidth(width int) {
	if width < 10 {
		width = 10
	}
	e.width = width
}

// Begin seeds the editor with the resolved text of the cell.
func (e *CellEditor) Begin(rowIndex int, column, tag, text string) {
	e.active = true
	e.rowIndex = rowIndex
	e.column = column
	e.tag = tag
	e.value = []rune(text)
	e.cursor = len(e.value)
}

func (e *CellEditor) Cancel() {
	e.active = false
	e.value = nil
	e.cursor = 0
	e.column = ""
	e.tag = ""
	e.rowIndex = -1
}

func (e *CellEditor) Active() bool {
	return e.active
}

func (e *CellEditor) Target() (rowIndex int, column string) {
	return e.rowIndex, e.column
}

func (e *CellEditor) Value() string {
	return string(e.value)
}

func (e *CellEditor) HandleKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyLeft:
		if e.cursor > 0 {
			e.cursor--
		}
		return true
	case tea.KeyRight:
		if e.cursor < len(e.value) {
			e.cursor++
		}
		return true
	case tea.KeyHome, tea.KeyCtrlA:
		e.cursor = 0
		return true
	case tea.KeyEnd, tea.KeyCtrlE:
		e.cursor = len(e.value)
		return true
	case tea.KeyBackspace:
		if e.cursor > 0 {
			e.value = append(e.value[:e.cursor-1], e.value[e.cursor:]...)
			e.cursor--
		}
		return true
	case tea.KeyDelete:
		if e.cursor < len(e.value) {
			e.value = append(e.value[:e.cursor], e.value[e.cursor+1:]...)
		}
		return true
	case tea.KeyCtrlU:
		e.value = e.value[e.cursor:]
		e.cursor = 0
		return true
	case tea.KeySpace:
		e.insert([]rune{' '})
		return true
	}

	if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
		e.insert(msg.Runes)
		return true
	}
	return false
}

func (e *CellEditor) insert(runes []rune) {
	next := make([]rune, 0, len(e.value)+len(runes))
	next = append(next, e.value[:e.cursor]...)
	next = append(next, runes...)
	next = append(next, e.value[e.cursor:]...)
	e.value = next
	e.cursor += len(runes)
}

func (e *CellEditor) View(styles AppStyles) string {
	before := string(e.value[:e.cursor])
	after := string(e.value[e.cursor:])
	display := before + "█" + after
	if r := []rune(display); len(r) > e.width {
		display = string(r[len(r)-e.width:])
	}

	box := lipgloss.NewStyle().
		Width(e.width+2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#00FF00")).
		Padding(0, 1)

	prompt := fmt.Sprintf("Edit %s (row %d, %s)", e.column, e.rowIndex+1, e.tag)
	return lipgloss.JoinVertical(lipgloss.Left, styles.Prompt.Render(prompt), box.Render(display))
}
