package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the ledger is written to.
const SheetName = "Ledger"

// xlsxColumnWidths are in characters. Unlisted columns get xlsxDefaultWidth.
var xlsxColumnWidths = map[string]float64{
	"File Name":   24,
	"Payee":       28,
	"Particulars": 48,
	"Remarks":     24,
}

const xlsxDefaultWidth = 14

// WriteXLSX writes t as a single-sheet workbook. The header row is bold and
// frozen; the totals row, when present, is bold.
func WriteXLSX(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("WriteXLSX: table has no columns")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("WriteXLSX: naming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("WriteXLSX: creating style: %w", err)
	}

	if err := setRow(f, 1, t.Columns); err != nil {
		return fmt.Errorf("WriteXLSX: header: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("WriteXLSX: header style: %w", err)
	}

	for i, row := range t.Rows {
		if err := setRow(f, i+2, row); err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i, err)
		}
	}
	if t.TotalRow && len(t.Rows) > 0 {
		last := len(t.Rows) + 1
		if err := f.SetRowStyle(SheetName, last, last, bold); err != nil {
			return fmt.Errorf("WriteXLSX: total style: %w", err)
		}
	}

	for i, col := range t.Columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("WriteXLSX: column %d: %w", i, err)
		}
		width, ok := xlsxColumnWidths[col]
		if !ok {
			width = xlsxDefaultWidth
		}
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			return fmt.Errorf("WriteXLSX: column width: %w", err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("WriteXLSX: freezing header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteXLSX: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(SheetName, cell, &cells)
}
