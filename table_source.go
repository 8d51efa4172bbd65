package main

import (
	"context"
	"errors"
)

// RowKeyColumn is a hidden row entry that identifies the row for updates.
// It is never part of a table's column set.
const RowKeyColumn = "__rowid"

var (
	ErrTableNotFound = errors.New("table not found")
	ErrRowNotFound   = errors.New("row not found")
)

type ColumnDescriptor struct {
	Name string `json:"name"`
}

type RowRecord map[string]CellValue

// Clone copies the record so an edit can be applied without touching the
// loader's committed snapshot.
func (r RowRecord) Clone() RowRecord {
	out := make(RowRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r RowRecord) Key() string {
	if cell, ok := r[RowKeyColumn]; ok {
		return cell.Text()
	}
	return ""
}

type TableSummary struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count,omitempty"`
}

type Page struct {
	Limit  int
	Offset int
}

// CellUpdate is scoped to exactly one (table, row, column) triple. RowKey is
// the hidden row key when the backend provides one; RowIndex is the row's
// position within the fetched page.
type CellUpdate struct {
	RowIndex int       `json:"row"`
	RowKey   string    `json:"key,omitempty"`
	Column   string    `json:"column"`
	Value    CellValue `json:"value"`
}

type TableSource interface {
	Name() string
	ListTables(ctx context.Context) ([]TableSummary, error)
	FetchColumns(ctx context.Context, tableID string) ([]ColumnDescriptor, error)
	FetchRows(ctx context.Context, tableID string, page Page) ([]RowRecord, error)
	// UpdateCell writes one cell and returns the row's key afterwards.
	UpdateCell(ctx context.Context, tableID string, update CellUpdate) (string, error)
	Close() error
}
