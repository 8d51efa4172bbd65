package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type LoadPhase int

const (
	PhaseIdle LoadPhase = iota
	PhaseLoadingColumns
	PhaseLoadingRows
	PhaseReady
	PhaseFailed
)

func (p LoadPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoadingColumns:
		return "loading-columns"
	case PhaseLoadingRows:
		return "loading-rows"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type FailReason string

const (
	ReasonNone         FailReason = ""
	ReasonColumnsFetch FailReason = "columns-fetch-error"
	ReasonRowsFetch    FailReason = "rows-fetch-error"
)

// FetchError is the terminal failure of one load cycle.
type FetchError struct {
	Reason  FailReason
	TableID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s for table %s: %v", e.Reason, e.TableID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) TimedOut() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type LoadState struct {
	Phase LoadPhase
	Err   *FetchError
}

func (s LoadState) Reason() FailReason {
	if s.Err == nil {
		return ReasonNone
	}
	return s.Err.Reason
}

func (s LoadState) Loading() bool {
	return s.Phase == PhaseLoadingColumns || s.Phase == PhaseLoadingRows
}

// TableSnapshot is the loader's committed state as seen by the grid.
// Columns and rows are only meaningful when State.Phase is PhaseReady.
type TableSnapshot struct {
	TableID string
	State   LoadState
	Columns []ColumnDescriptor
	Rows    []RowRecord
}

func (s TableSnapshot) Renderable() bool {
	return s.State.Phase == PhaseReady
}

type columnsFetchedMsg struct {
	generation uint64
	tableID    string
	columns    []ColumnDescriptor
	err        error
}

type rowsFetchedMsg struct {
	generation uint64
	tableID    string
	rows       []RowRecord
	err        error
}

type cellCommittedMsg struct {
	generation uint64
	tableID    string
	rowIndex   int
	column     string
	previous   CellValue
	value      CellValue
	key        string
	err        error
}

// generations is shared by all loaders so a result can never be mistaken for
// one issued by a different loader session.
var generations atomic.Uint64

type LoaderOptions struct {
	Timeout  time.Duration
	PageSize int
}

// TableLoader fetches the columns and then the rows of one table at a time.
// It is driven from a bubbletea Update loop: fetches run as commands and
// their results come back as messages. Every command carries the generation
// it was issued under; results from an older generation are dropped.
type TableLoader struct {
	source  TableSource
	timeout time.Duration
	page    Page
	logger  *slog.Logger

	generation uint64
	tableID    string
	state      LoadState
	columns    []ColumnDescriptor
	rows       []RowRecord
	commitErr  error

	// per "row/column": the value the source last accepted, and how many
	// updates of that cell are still in flight
	confirmed map[string]CellValue
	inFlight  map[string]int
}

func NewTableLoader(source TableSource, opts LoaderOptions, logger *slog.Logger) *TableLoader {
	if logger == nil {
		logger = discardLogger()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &TableLoader{
		source:  source,
		timeout: opts.Timeout,
		page:    Page{Limit: opts.PageSize},
		logger:  logger.With("component", "loader", "source", source.Name()),
	}
}

func (l *TableLoader) Source() TableSource {
	return l.source
}

func (l *TableLoader) TableID() string {
	return l.tableID
}

func (l *TableLoader) State() LoadState {
	return l.state
}

func (l *TableLoader) Snapshot() TableSnapshot {
	return TableSnapshot{
		TableID: l.tableID,
		State:   l.state,
		Columns: l.columns,
		Rows:    l.rows,
	}
}

// CommitError is the last rejected cell update, if any.
func (l *TableLoader) CommitError() error {
	return l.commitErr
}

// Select starts a new load cycle for tableID, discarding everything held for
// the previous one. An empty identifier leaves the loader idle.
func (l *TableLoader) Select(tableID string) tea.Cmd {
	return l.SelectAt(tableID, 0)
}

// SelectAt is Select starting at a row offset.
func (l *TableLoader) SelectAt(tableID string, offset int) tea.Cmd {
	if offset < 0 {
		offset = 0
	}
	l.tableID = tableID
	l.page.Offset = offset
	return l.start()
}

// Reload runs a fresh cycle for the current table and page.
func (l *TableLoader) Reload() tea.Cmd {
	return l.start()
}

// Page is the window of rows requested from the source.
func (l *TableLoader) Page() Page {
	return l.page
}

// NextPage moves the row window forward. It does nothing while the current
// page is not loaded or came back short.
func (l *TableLoader) NextPage() tea.Cmd {
	if l.state.Phase != PhaseReady || len(l.rows) < l.page.Limit {
		return nil
	}
	l.page.Offset += l.page.Limit
	return l.start()
}

func (l *TableLoader) PrevPage() tea.Cmd {
	if l.tableID == "" || l.page.Offset == 0 {
		return nil
	}
	l.page.Offset -= l.page.Limit
	if l.page.Offset < 0 {
		l.page.Offset = 0
	}
	return l.start()
}

func (l *TableLoader) start() tea.Cmd {
	tableID := l.tableID
	l.generation = generations.Add(1)
	l.columns = nil
	l.rows = nil
	l.commitErr = nil
	l.confirmed = make(map[string]CellValue)
	l.inFlight = make(map[string]int)

	if tableID == "" {
		l.state = LoadState{Phase: PhaseIdle}
		l.logger.Debug("loader idle", "generation", l.generation)
		return nil
	}

	l.state = LoadState{Phase: PhaseLoadingColumns}
	l.logger.Debug("loading columns", "table", tableID, "generation", l.generation)
	return l.fetchColumns(l.generation, tableID)
}

func fetchContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

func (l *TableLoader) fetchColumns(generation uint64, tableID string) tea.Cmd {
	source := l.source
	timeout := l.timeout
	return func() tea.Msg {
		ctx, cancel := fetchContext(timeout)
		defer cancel()
		columns, err := source.FetchColumns(ctx, tableID)
		return columnsFetchedMsg{generation: generation, tableID: tableID, columns: columns, err: err}
	}
}

func (l *TableLoader) fetchRows(generation uint64, tableID string) tea.Cmd {
	source := l.source
	page := l.page
	timeout := l.timeout
	return func() tea.Msg {
		ctx, cancel := fetchContext(timeout)
		defer cancel()
		rows, err := source.FetchRows(ctx, tableID, page)
		return rowsFetchedMsg{generation: generation, tableID: tableID, rows: rows, err: err}
	}
}

func (l *TableLoader) current(generation uint64, tableID string) bool {
	return generation == l.generation && tableID == l.tableID
}

// Update applies a loader message. It reports whether msg belonged to the
// loader and returns the follow-up command, if any.
func (l *TableLoader) Update(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case columnsFetchedMsg:
		if !l.current(msg.generation, msg.tableID) || l.state.Phase != PhaseLoadingColumns {
			l.logger.Debug("discarding stale columns", "table", msg.tableID, "generation", msg.generation, "current", l.generation)
			return true, nil
		}
		if msg.err != nil {
			l.fail(ReasonColumnsFetch, msg.err)
			return true, nil
		}
		l.columns = msg.columns
		if l.columns == nil {
			l.columns = []ColumnDescriptor{}
		}
		l.state = LoadState{Phase: PhaseLoadingRows}
		l.logger.Debug("loading rows", "table", l.tableID, "columns", len(l.columns), "generation", l.generation)
		return true, l.fetchRows(l.generation, l.tableID)

	case rowsFetchedMsg:
		if !l.current(msg.generation, msg.tableID) || l.state.Phase != PhaseLoadingRows {
			l.logger.Debug("discarding stale rows", "table", msg.tableID, "generation", msg.generation, "current", l.generation)
			return true, nil
		}
		if msg.err != nil {
			l.fail(ReasonRowsFetch, msg.err)
			return true, nil
		}
		l.rows = msg.rows
		if l.rows == nil {
			l.rows = []RowRecord{}
		}
		l.state = LoadState{Phase: PhaseReady}
		l.logger.Info("table ready", "table", l.tableID, "columns", len(l.columns), "rows", len(l.rows))
		return true, nil

	case cellCommittedMsg:
		l.applyCommitResult(msg)
		return true, nil
	}

	return false, nil
}

func (l *TableLoader) fail(reason FailReason, err error) {
	l.state = LoadState{
		Phase: PhaseFailed,
		Err:   &FetchError{Reason: reason, TableID: l.tableID, Err: err},
	}
	l.logger.Warn("table load failed", "table", l.tableID, "reason", string(reason), "error", err)
}

// CommitCell writes an edited cell. The edited text is wrapped in the cell's
// original tag and applied to the local rows right away; the returned command
// sends the update for exactly this (table, row, column). A rejected update is
// rolled back when its result arrives. A nil command means nothing changed.
func (l *TableLoader) CommitCell(rowIndex int, column, input string) (tea.Cmd, error) {
	if l.state.Phase != PhaseReady {
		return nil, fmt.Errorf("table %s is not loaded", l.tableID)
	}
	if rowIndex < 0 || rowIndex >= len(l.rows) {
		return nil, fmt.Errorf("row %d out of range", rowIndex)
	}
	if !hasColumn(l.columns, column) {
		return nil, &DataIntegrityError{Column: column, Reason: "not a column of " + l.tableID, Err: ErrMissingColumn}
	}

	row := l.rows[rowIndex]
	previous, err := ResolveCell(column, row)
	if err != nil {
		return nil, err
	}
	value, err := previous.Rewrap(input)
	if err != nil {
		return nil, err
	}
	if value.Equal(previous) {
		return nil, nil
	}

	l.rows[rowIndex] = withCell(row, column, value)
	l.commitErr = nil

	ck := commitKey(rowIndex, column)
	if l.inFlight[ck] == 0 {
		l.confirmed[ck] = previous
	}
	l.inFlight[ck]++

	update := CellUpdate{
		RowIndex: rowIndex + l.page.Offset,
		RowKey:   row.Key(),
		Column:   column,
		Value:    value,
	}
	generation := l.generation
	tableID := l.tableID
	source := l.source
	timeout := l.timeout

	l.logger.Debug("committing cell", "table", tableID, "row", rowIndex, "column", column, "tag", value.Tag())
	return func() tea.Msg {
		ctx, cancel := fetchContext(timeout)
		defer cancel()
		key, err := source.UpdateCell(ctx, tableID, update)
		return cellCommittedMsg{
			generation: generation,
			tableID:    tableID,
			rowIndex:   rowIndex,
			column:     column,
			previous:   previous,
			value:      value,
			key:        key,
			err:        err,
		}
	}, nil
}

func commitKey(rowIndex int, column string) string {
	return fmt.Sprintf("%d/%s", rowIndex, column)
}

func (l *TableLoader) applyCommitResult(msg cellCommittedMsg) {
	if !l.current(msg.generation, msg.tableID) {
		l.logger.Debug("discarding stale commit result", "table", msg.tableID, "generation", msg.generation)
		return
	}
	ck := commitKey(msg.rowIndex, msg.column)
	if l.inFlight[ck] > 0 {
		l.inFlight[ck]--
	}
	settled := l.inFlight[ck] == 0
	inRange := msg.rowIndex >= 0 && msg.rowIndex < len(l.rows)

	if msg.err == nil {
		l.logger.Info("cell committed", "table", msg.tableID, "row", msg.rowIndex, "column", msg.column)
		l.confirmed[ck] = msg.value
		if settled {
			delete(l.confirmed, ck)
		}
		if !inRange {
			return
		}
		row := l.rows[msg.rowIndex]
		if msg.key != "" && msg.key != row.Key() {
			l.logger.Debug("row key moved", "table", msg.tableID, "row", msg.rowIndex, "from", row.Key(), "to", msg.key)
			row = withCell(row, RowKeyColumn, rekey(row, msg.key))
		}
		// An earlier rejection may have rolled back past this value.
		if settled {
			if cell, ok := row[msg.column]; !ok || !cell.Equal(msg.value) {
				row = withCell(row, msg.column, msg.value)
			}
		}
		l.rows[msg.rowIndex] = row
		return
	}

	l.commitErr = fmt.Errorf("update of %s row %d failed: %w", msg.column, msg.rowIndex+1, msg.err)
	l.logger.Warn("cell commit rejected", "table", msg.tableID, "row", msg.rowIndex, "column", msg.column, "error", msg.err)

	restore, ok := l.confirmed[ck]
	if !ok {
		restore = msg.previous
	}
	if settled {
		delete(l.confirmed, ck)
	}
	if !inRange {
		return
	}
	row := l.rows[msg.rowIndex]
	// A later edit of the same cell has already replaced this value.
	if cell, ok := row[msg.column]; !ok || !cell.Equal(msg.value) {
		return
	}
	l.rows[msg.rowIndex] = withCell(row, msg.column, restore)
}

// withCell returns a copy of row with column set to value.
func withCell(row RowRecord, column string, value CellValue) RowRecord {
	out := row.Clone()
	out[column] = value
	return out
}

// rekey wraps a new row key the way the row's current key cell is tagged.
func rekey(row RowRecord, key string) CellValue {
	if cell, ok := row[RowKeyColumn]; ok {
		if wrapped, err := cell.Rewrap(key); err == nil {
			return wrapped
		}
	}
	return NewStringCell("String", key)
}
