package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

// loadTable runs one full load cycle outside the bubbletea runtime by
// executing the loader's commands in order.
func loadTable(loader *TableLoader, tableID string, offset int) TableSnapshot {
	cmd := loader.SelectAt(tableID, offset)
	for cmd != nil {
		_, cmd = loader.Update(cmd())
	}
	return loader.Snapshot()
}

type dumpOptions struct {
	tableID string
	page    Page
	raw     bool
}

// dumpTable loads a table from source and writes it to out as an aligned text
// grid, or as a spew dump of the snapshot when raw is set.
func dumpTable(out io.Writer, source TableSource, cfg *Config, opts dumpOptions, logger *slog.Logger) error {
	if opts.tableID == "" {
		return fmt.Errorf("a table is required")
	}

	pageSize := opts.page.Limit
	if pageSize <= 0 {
		pageSize = cfg.PageSize
	}
	loader := NewTableLoader(source, LoaderOptions{Timeout: cfg.Timeout(), PageSize: pageSize}, logger)
	snap := loadTable(loader, opts.tableID, opts.page.Offset)

	if opts.raw {
		dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		dumper.Fdump(out, snap)
		if snap.State.Err != nil {
			return snap.State.Err
		}
		return nil
	}

	if !snap.Renderable() {
		if snap.State.Err != nil {
			return snap.State.Err
		}
		return fmt.Errorf("table %s did not load", opts.tableID)
	}
	return writeGrid(out, snap, logger)
}

func writeGrid(out io.Writer, snap TableSnapshot, logger *slog.Logger) error {
	header := color.New(color.FgYellow, color.Bold)
	marker := color.New(color.FgRed)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	names := make([]string, len(snap.Columns))
	for i, col := range snap.Columns {
		names[i] = header.Sprint(col.Name)
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))

	for r, row := range snap.Rows {
		cells := make([]string, len(snap.Columns))
		for c, col := range snap.Columns {
			text, err := ResolveText(col.Name, row)
			if err != nil {
				logger.Error("cell cannot be displayed", "table", snap.TableID, "row", r, "column", col.Name, "error", err)
				cells[c] = marker.Sprint(cellErrorMarker)
				continue
			}
			cells[c] = singleLine(text)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write grid: %w", err)
	}

	fmt.Fprintln(out, color.New(color.Faint).Sprintf("%d rows, %d columns", len(snap.Rows), len(snap.Columns)))
	return nil
}
