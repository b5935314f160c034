package models

import "time"

// ExportFormat identifies a rendered document type.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatPDF:
		return "application/pdf"
	case ExportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// ExportRequest asks for the current records in a given format.
type ExportRequest struct {
	Format ExportFormat `json:"format" binding:"required"`
	Theme  Theme        `json:"theme"`
}

// ExportResult points at a rendered export.
type ExportResult struct {
	ID        string       `json:"id"`
	Format    ExportFormat `json:"format"`
	Rows      int          `json:"rows"`
	Token     string       `json:"token"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
	Path      string       `json:"-"`
}

// ImportRowError explains why one spreadsheet row was not added.
type ImportRowError struct {
	Row     int    `json:"row"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ImportResult reports the outcome of a spreadsheet import.
type ImportResult struct {
	Sheet    string           `json:"sheet"`
	Added    int              `json:"added"`
	Skipped  int              `json:"skipped"`
	Failures []ImportRowError `json:"failures"`
}
