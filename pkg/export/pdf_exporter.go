package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 190.0
	pdfRowHeight  = 7.0
	pdfHeadHeight = 8.0
)

// PDFExporter renders datasets into a striped tabular PDF.
type PDFExporter struct {
	palette Palette
}

// NewPDFExporter constructs a PDF exporter using palette for the table chrome.
func NewPDFExporter(palette Palette) *PDFExporter {
	return &PDFExporter{palette: palette}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("pdf"); err != nil {
		return nil, err
	}
	p := e.palette

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.SetTextColor(p.Foreground.R, p.Foreground.G, p.Foreground.B)
		pdf.CellFormat(0, 10, data.Title, "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	colWidth := pdfPageWidth / float64(len(data.Headers))

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(p.HeaderFill.R, p.HeaderFill.G, p.HeaderFill.B)
	pdf.SetTextColor(p.HeaderText.R, p.HeaderText.G, p.HeaderText.B)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, pdfHeadHeight, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for r, row := range data.Rows {
		stripe := p.RowOdd
		if r%2 == 1 {
			stripe = p.RowEven
		}
		for c, value := range row {
			fill := stripe
			text := p.Foreground
			if tint, ok := data.cellColor(r, c); ok {
				text = tint
			}
			pdf.SetFillColor(fill.R, fill.G, fill.B)
			pdf.SetTextColor(text.R, text.G, text.B)
			pdf.CellFormat(colWidth, pdfRowHeight, value, "1", 0, "", true, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
