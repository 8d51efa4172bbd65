package main

import "github.com/charmbracelet/lipgloss"

const (
	minColumnWidth = 8
	maxColumnWidth = 30
)

// GridModel tracks selection and scrolling over the loader's current rows.
// It never reorders anything: columns and rows are shown exactly as the
// loader stores them.
type GridModel struct {
	tableID       string
	columns       []ColumnDescriptor
	rows          []RowRecord
	widths        []int
	rowOffset     int
	colOffset     int
	viewportRows  int
	viewportWidth int
	selectedRow   int
	selectedCol   int
}

func NewGridModel() *GridModel {
	return &GridModel{
		viewportRows:  10,
		viewportWidth: 80,
	}
}

// Sync takes the loader snapshot. Selection survives while the same table
// stays loaded and is reset when the table changes.
func (g *GridModel) Sync(snap TableSnapshot) {
	if snap.TableID != g.tableID {
		g.tableID = snap.TableID
		g.rowOffset = 0
		g.colOffset = 0
		g.selectedRow = 0
		g.selectedCol = 0
	}
	if !snap.Renderable() {
		g.columns = nil
		g.rows = nil
		g.widths = nil
		return
	}
	g.columns = snap.Columns
	g.rows = snap.Rows
	g.widths = columnWidths(snap.Columns, snap.Rows)
	g.SetSelection(g.selectedRow, g.selectedCol)
}

// columnWidths sizes every column to its name and the widest loaded value,
// clamped, so scrolling does not resize columns.
func columnWidths(columns []ColumnDescriptor, rows []RowRecord) []int {
	widths := make([]int, len(columns))
	for i, col := range columns {
		width := lipgloss.Width(col.Name)
		for _, row := range rows {
			text, err := ResolveText(col.Name, row)
			if err != nil {
				text = cellErrorMarker
			}
			if n := lipgloss.Width(singleLine(text)); n > width {
				width = n
			}
		}
		widths[i] = clampWidth(width)
	}
	return widths
}

// ColumnWidth is the display width of column i, never wider than the viewport.
func (g *GridModel) ColumnWidth(i int) int {
	width := minColumnWidth
	if i >= 0 && i < len(g.widths) {
		width = g.widths[i]
	}
	if vw := g.ViewportWidth(); width > vw {
		width = vw
	}
	return width
}

func (g *GridModel) Columns() []ColumnDescriptor {
	return g.columns
}

func (g *GridModel) Rows() []RowRecord {
	return g.rows
}

func (g *GridModel) SetViewport(bodyHeight int) {
	rows := bodyHeight - 2
	if rows < 1 {
		rows = 1
	}
	g.viewportRows = rows
	g.ensureSelectionVisible()
}

func (g *GridModel) SetViewportWidth(width int) {
	if width < 20 {
		width = 20
	}
	g.viewportWidth = width
	g.ensureSelectionVisible()
}

func (g *GridModel) ViewportRows() int {
	if g.viewportRows < 1 {
		return 1
	}
	return g.viewportRows
}

func (g *GridModel) ViewportWidth() int {
	if g.viewportWidth < 20 {
		return 20
	}
	return g.viewportWidth
}

func (g *GridModel) RowOffset() int {
	return g.rowOffset
}

func (g *GridModel) ColOffset() int {
	return g.colOffset
}

// VisibleColumnCount is how many columns starting at the column offset fit in
// the viewport width. At least one column is always shown.
func (g *GridModel) VisibleColumnCount() int {
	remaining := g.ViewportWidth()
	count := 0
	for i := g.colOffset; i < len(g.columns); i++ {
		width := g.ColumnWidth(i)
		space := 1
		if count == 0 {
			space = 0
		}
		if remaining-width-space < 0 {
			break
		}
		remaining -= width + space
		count++
	}
	if count == 0 && g.colOffset < len(g.columns) {
		return 1
	}
	return count
}

func (g *GridModel) VisibleRowRange() (start, end int) {
	start = g.rowOffset
	end = start + g.ViewportRows()
	if end > len(g.rows) {
		end = len(g.rows)
	}
	if start > end {
		start = end
	}
	return start, end
}

func (g *GridModel) MoveSelection(rowDelta, colDelta int) {
	if len(g.rows) == 0 && len(g.columns) == 0 {
		return
	}
	g.SetSelection(g.selectedRow+rowDelta, g.selectedCol+colDelta)
}

func (g *GridModel) SetSelection(row, col int) {
	if row >= len(g.rows) {
		row = len(g.rows) - 1
	}
	if row < 0 {
		row = 0
	}
	if col >= len(g.columns) {
		col = len(g.columns) - 1
	}
	if col < 0 {
		col = 0
	}
	g.selectedRow = row
	g.selectedCol = col
	g.ensureSelectionVisible()
}

func (g *GridModel) ensureSelectionVisible() {
	visibleRows := g.ViewportRows()
	if g.selectedRow < g.rowOffset {
		g.rowOffset = g.selectedRow
	} else if g.selectedRow >= g.rowOffset+visibleRows {
		g.rowOffset = g.selectedRow - visibleRows + 1
	}

	if g.selectedCol < g.colOffset {
		g.colOffset = g.selectedCol
	}
	for g.colOffset < g.selectedCol && g.selectedCol >= g.colOffset+g.VisibleColumnCount() {
		g.colOffset++
	}

	if g.rowOffset < 0 {
		g.rowOffset = 0
	}
	if g.colOffset < 0 {
		g.colOffset = 0
	}
}

func (g *GridModel) SelectedRow() int {
	return g.selectedRow
}

func (g *GridModel) SelectedCol() int {
	return g.selectedCol
}

func (g *GridModel) LastColumn() int {
	return len(g.columns) - 1
}

// SelectedCell returns the selected row index and column name. ok is false
// when there is nothing to select.
func (g *GridModel) SelectedCell() (row int, column string, ok bool) {
	if len(g.rows) == 0 || len(g.columns) == 0 {
		return 0, "", false
	}
	return g.selectedRow, g.columns[g.selectedCol].Name, true
}

func clampWidth(width int) int {
	if width < minColumnWidth {
		return minColumnWidth
	}
	if width > maxColumnWidth {
		return maxColumnWidth
	}
	return width
}
