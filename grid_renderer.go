package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const cellErrorMarker = "<!err>"

// GridRenderer draws the table pane for whatever phase the loader is in.
type GridRenderer struct {
	styles AppStyles
	logger *slog.Logger

	// resolver failures already logged for the current table, keyed by
	// absolute row and column
	reported map[string]bool
	table    string
}

func NewGridRenderer(styles AppStyles, logger *slog.Logger) *GridRenderer {
	if logger == nil {
		logger = discardLogger()
	}
	return &GridRenderer{
		styles:   styles,
		logger:   logger.With("component", "grid"),
		reported: make(map[string]bool),
	}
}

// Render draws the grid pane: a placeholder while idle, the spinner while a
// phase is loading, an error box on failure and the table once ready.
func (gr *GridRenderer) Render(snap TableSnapshot, grid *GridModel, page Page, spinner string, width, height int, focused bool) string {
	bodyHeight := height - 3
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	grid.SetViewport(bodyHeight)
	grid.SetViewportWidth(width - 4)

	title := "Table"
	if snap.TableID != "" {
		title = "Table " + snap.TableID
	}

	var body, footer string
	switch snap.State.Phase {
	case PhaseIdle:
		body = gr.styles.Muted.Render("  Select a table from the sidebar")
	case PhaseLoadingColumns:
		body = fmt.Sprintf("  %s Loading columns of %s...", spinner, snap.TableID)
	case PhaseLoadingRows:
		body = fmt.Sprintf("  %s Loading rows of %s...", spinner, snap.TableID)
	case PhaseFailed:
		body = gr.renderFailure(snap, width-4)
	case PhaseReady:
		body = gr.renderTable(snap.TableID, grid, page, width-4)
		footer = gr.renderFooter(grid, page)
	}

	header := gr.styles.Header.Render("  " + title)
	if focused {
		header = gr.styles.Header.Render("► " + title)
	}
	content := header + "\n" + body
	if footer != "" {
		content += "\n" + footer
	}

	border := gr.styles.Unfocused
	if focused {
		border = gr.styles.Focused
	}
	return border.Width(width).Height(height).Render(content)
}

func (gr *GridRenderer) renderFailure(snap TableSnapshot, width int) string {
	phase := "table"
	switch snap.State.Reason() {
	case ReasonColumnsFetch:
		phase = "columns"
	case ReasonRowsFetch:
		phase = "rows"
	}
	msg := fmt.Sprintf("Failed to load %s of %s", phase, snap.TableID)
	if snap.State.Err != nil {
		if snap.State.Err.TimedOut() {
			msg += ": request timed out"
		} else {
			msg += ": " + snap.State.Err.Err.Error()
		}
	}
	if width < 20 {
		width = 20
	}
	box := lipgloss.NewStyle().
		Width(width-2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FF0000")).
		Padding(0, 1).
		Render(gr.styles.Marker.Render(msg) + "\n" + gr.styles.Status.Render("ctrl+r to retry"))
	return box
}

// cellText resolves one cell for display. A resolver failure becomes the
// error marker and is logged once per table, row and column. rowIdx counts
// from the start of the table, not the page.
func (gr *GridRenderer) cellText(tableID string, rowIdx int, column string, row RowRecord) (string, bool) {
	text, err := ResolveText(column, row)
	if err == nil {
		return text, true
	}
	key := fmt.Sprintf("%d/%s", rowIdx, column)
	if !gr.reported[key] {
		gr.reported[key] = true
		gr.logger.Error("cell cannot be displayed", "table", tableID, "row", rowIdx, "column", column, "error", err)
	}
	return cellErrorMarker, false
}

func (gr *GridRenderer) renderTable(tableID string, grid *GridModel, page Page, width int) string {
	if tableID != gr.table {
		gr.table = tableID
		gr.reported = make(map[string]bool)
	}

	columns := grid.Columns()
	rows := grid.Rows()
	if len(columns) == 0 {
		return gr.styles.Muted.Render("  (no columns)")
	}

	start, end := grid.VisibleRowRange()
	colStart := grid.ColOffset()
	colEnd := colStart + grid.VisibleColumnCount()
	if colEnd > len(columns) {
		colEnd = len(columns)
	}
	visible := columns[colStart:colEnd]

	// same widths the grid used to decide how many columns fit
	widths := make([]int, len(visible))
	for c := range visible {
		widths[c] = grid.ColumnWidth(colStart + c)
	}
	texts := make([][]string, end-start)
	valid := make([][]bool, end-start)
	for r := start; r < end; r++ {
		texts[r-start] = make([]string, len(visible))
		valid[r-start] = make([]bool, len(visible))
		for c, col := range visible {
			text, ok := gr.cellText(tableID, page.Offset+r, col.Name, rows[r])
			texts[r-start][c] = singleLine(text)
			valid[r-start][c] = ok
		}
	}

	var lines []string
	headerParts := make([]string, len(visible))
	for c, col := range visible {
		headerParts[c] = gr.styles.Column.Width(widths[c]).Render(truncate(col.Name, widths[c]))
	}
	lines = append(lines, strings.Join(headerParts, " "))
	lines = append(lines, gr.styles.Status.Render(strings.Repeat("-", width)))

	selRow, selCol := grid.SelectedRow(), grid.SelectedCol()
	for r := start; r < end; r++ {
		parts := make([]string, len(visible))
		for c := range visible {
			style := gr.styles.Cell
			if !valid[r-start][c] {
				style = gr.styles.Marker
			}
			if r == selRow && colStart+c == selCol {
				style = gr.styles.Selected
			}
			parts[c] = style.Width(widths[c]).Render(truncate(texts[r-start][c], widths[c]))
		}
		lines = append(lines, strings.Join(parts, " "))
	}

	return strings.Join(lines, "\n")
}

func (gr *GridRenderer) renderFooter(grid *GridModel, page Page) string {
	columns := grid.Columns()
	rows := grid.Rows()

	var info string
	if len(rows) == 0 {
		info = "no rows"
	} else {
		start, end := grid.VisibleRowRange()
		info = fmt.Sprintf("rows %d-%d of %d", page.Offset+start+1, page.Offset+end, page.Offset+len(rows))
	}
	if len(columns) > 0 {
		colStart := grid.ColOffset()
		colEnd := colStart + grid.VisibleColumnCount()
		if colEnd > len(columns) {
			colEnd = len(columns)
		}
		info += fmt.Sprintf(" | cols %d-%d of %d", colStart+1, colEnd, len(columns))
	}
	if page.Offset > 0 {
		info += fmt.Sprintf(" | page %d", page.Offset/page.Limit+1)
	}
	return gr.styles.Status.Render(info)
}

// truncate cuts s to width terminal cells.
func truncate(s string, width int) string {
	if width > 3 {
		return runewidth.Truncate(s, width, "...")
	}
	return runewidth.Truncate(s, width, "")
}

func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\t", " ").Replace(s)
}
