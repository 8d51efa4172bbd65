package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// fakeSource serves canned tables and records every call in order.
type fakeSource struct {
	mu sync.Mutex

	name      string
	tables    []TableSummary
	columns   map[string][]ColumnDescriptor
	rows      map[string][]RowRecord
	columnErr map[string]error
	rowErr    map[string]error
	updateErr error
	block     bool

	// keys handed out by successive updates; the sent key is echoed once empty
	nextKeys []string

	calls   []string
	pages   []Page
	updates []CellUpdate
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		name:      "fake",
		columns:   make(map[string][]ColumnDescriptor),
		rows:      make(map[string][]RowRecord),
		columnErr: make(map[string]error),
		rowErr:    make(map[string]error),
	}
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) ListTables(ctx context.Context) ([]TableSummary, error) {
	f.record("tables")
	return f.tables, nil
}

func (f *fakeSource) FetchColumns(ctx context.Context, tableID string) ([]ColumnDescriptor, error) {
	f.record("columns:" + tableID)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.columnErr[tableID]; err != nil {
		return nil, err
	}
	cols, ok := f.columns[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	return cols, nil
}

func (f *fakeSource) FetchRows(ctx context.Context, tableID string, page Page) ([]RowRecord, error) {
	f.record("rows:" + tableID)
	f.mu.Lock()
	f.pages = append(f.pages, page)
	f.mu.Unlock()
	if err := f.rowErr[tableID]; err != nil {
		return nil, err
	}
	// hand out copies so edits in the loader never leak back
	src := f.rows[tableID]
	if page.Limit > 0 {
		start := min(page.Offset, len(src))
		src = src[start:min(start+page.Limit, len(src))]
	}
	out := make([]RowRecord, len(src))
	for i, r := range src {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeSource) UpdateCell(ctx context.Context, tableID string, update CellUpdate) (string, error) {
	f.record("update:" + tableID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	if f.updateErr != nil {
		return "", f.updateErr
	}
	key := update.RowKey
	if len(f.nextKeys) > 0 {
		key, f.nextKeys = f.nextKeys[0], f.nextKeys[1:]
	}
	return key, nil
}

func (f *fakeSource) addTable(t *testing.T, tableID string, columns []string, rowsJSON string) {
	t.Helper()
	cols := make([]ColumnDescriptor, len(columns))
	for i, name := range columns {
		cols[i] = ColumnDescriptor{Name: name}
	}
	f.columns[tableID] = cols
	f.rows[tableID] = decodeRows(t, rowsJSON)
	f.tables = append(f.tables, TableSummary{Name: tableID, RowCount: int64(len(f.rows[tableID]))})
}

func decodeRows(t *testing.T, rowsJSON string) []RowRecord {
	t.Helper()
	var rows []RowRecord
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		t.Fatalf("failed to decode rows fixture: %v", err)
	}
	return rows
}
