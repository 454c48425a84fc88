package table

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName    = "OCR Results"
	defaultWidth = 18.0
)

// WriteXLSX returns the grid as an XLSX workbook. Column widths follow the
// user's overrides and fall back to a fixed default.
func WriteXLSX(g Grid) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, c := range g.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, c.Title)

		col, _ := excelize.ColumnNumberToName(i + 1)
		width := c.Width
		if width <= 0 {
			width = defaultWidth
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("xlsx width %s: %w", c.Key, err)
		}
	}
	for r, row := range g.Rows {
		for i, text := range row.Cells {
			if text == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			_ = f.SetCellValue(sheetName, cell, text)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
