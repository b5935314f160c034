package export

import "fmt"

// Dataset is a rectangular table with a header row.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	// CellColor optionally tints a body cell; row and col are zero based.
	CellColor func(row, col int) (RGB, bool)
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("%s row %d has %d cells, want %d", format, i+1, len(row), len(d.Headers))
		}
	}
	return nil
}

func (d Dataset) cellColor(row, col int) (RGB, bool) {
	if d.CellColor == nil {
		return RGB{}, false
	}
	return d.CellColor(row, col)
}

// RGB is a colour with 0-255 channels.
type RGB struct {
	R, G, B int
}

// Hex formats the colour as RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// Palette colours the table chrome of rendered documents.
type Palette struct {
	Foreground RGB
	HeaderFill RGB
	HeaderText RGB
	RowOdd     RGB
	RowEven    RGB
}

// DefaultPalette is black on white with a grey header.
var DefaultPalette = Palette{
	Foreground: RGB{0, 0, 0},
	HeaderFill: RGB{220, 220, 220},
	HeaderText: RGB{0, 0, 0},
	RowOdd:     RGB{255, 255, 255},
	RowEven:    RGB{245, 245, 245},
}
