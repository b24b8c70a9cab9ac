package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	snapshotSheet = "Snapshot"
	trailSheet    = "Trail"
)

// WriteWorkbook writes view as an xlsx workbook. The Snapshot sheet holds
// one row per property; the Trail sheet lists every trail step on its own row.
func WriteWorkbook(w io.Writer, view SnapshotView) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", snapshotSheet); err != nil {
		return fmt.Errorf("failed to name snapshot sheet: %w", err)
	}
	if _, err := f.NewSheet(trailSheet); err != nil {
		return fmt.Errorf("failed to create trail sheet: %w", err)
	}

	rows := view.Rows()

	if err := setRow(f, snapshotSheet, 1, []any{"Property", "Value at " + view.At.Format(time.RFC3339), "Trail"}); err != nil {
		return err
	}
	for idx, row := range rows {
		if err := setRow(f, snapshotSheet, idx+2, []any{row.Property, row.Value, row.Trail}); err != nil {
			return err
		}
	}

	if err := setRow(f, trailSheet, 1, []any{"Property", "Step", "Value"}); err != nil {
		return err
	}
	next := 2
	for _, row := range rows {
		for step, value := range row.Steps {
			if err := setRow(f, trailSheet, next, []any{row.Property, step, value}); err != nil {
				return err
			}
			next++
		}
	}

	for _, sheet := range []string{snapshotSheet, trailSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header of %s: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(snapshotSheet, "A", "B", 24); err != nil {
		return fmt.Errorf("failed to size snapshot columns: %w", err)
	}
	if err := f.SetColWidth(snapshotSheet, "C", "C", 60); err != nil {
		return fmt.Errorf("failed to size trail column: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
