package main

import (
	"errors"
	"fmt"
)

var (
	ErrMissingColumn = errors.New("row has no value for column")
	ErrMalformedCell = errors.New("malformed tagged cell")
)

// DataIntegrityError reports a row that does not match its table's column
// set, or a cell whose wrapper does not hold exactly one tag.
type DataIntegrityError struct {
	Column string
	Reason string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("column %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("column %q: %v (%s)", e.Column, e.Err, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// ResolveCell returns the tagged value stored for column in row.
func ResolveCell(column string, row RowRecord) (CellValue, error) {
	cell, ok := row[column]
	if !ok {
		return CellValue{}, &DataIntegrityError{Column: column, Err: ErrMissingColumn}
	}
	if !cell.Valid() {
		return CellValue{}, &DataIntegrityError{Column: column, Reason: cell.problem, Err: ErrMalformedCell}
	}
	return cell, nil
}

// ResolveText strips the tag and returns the display form of the payload.
func ResolveText(column string, row RowRecord) (string, error) {
	cell, err := ResolveCell(column, row)
	if err != nil {
		return "", err
	}
	return cell.Text(), nil
}
