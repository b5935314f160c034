package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Sheet1"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	palette   Palette
	sheetName string
}

// NewXLSXExporter constructs an XLSX exporter. An empty sheet name keeps the
// workbook default.
func NewXLSXExporter(palette Palette, sheetName string) *XLSXExporter {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &XLSXExporter{palette: palette, sheetName: sheetName}
}

// Render writes headers to row 1 and the dataset rows below.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := e.sheetName
	if sheet != defaultSheetName {
		if err := f.SetSheetName(defaultSheetName, sheet); err != nil {
			return nil, fmt.Errorf("name sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: e.palette.HeaderText.Hex()},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.palette.HeaderFill.Hex()}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx headers: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(data.Headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("style xlsx headers: %w", err)
	}

	tints := map[RGB]int{}
	for r, row := range data.Rows {
		cells := make([]interface{}, len(row))
		for c, value := range row {
			cells[c] = value
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", r+1, err)
		}
		for c := range row {
			tint, ok := data.cellColor(r, c)
			if !ok {
				continue
			}
			style, seen := tints[tint]
			if !seen {
				style, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Color: tint.Hex()}})
				if err != nil {
					return nil, fmt.Errorf("create cell style: %w", err)
				}
				tints[tint] = style
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return nil, fmt.Errorf("style cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
