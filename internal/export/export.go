// Package export writes the ledger table to CSV, XLSX and PDF files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions other than .csv, .xlsx and .pdf.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Table is a header plus rows of cell values. TotalRow marks the last row
// as the totals row.
type Table struct {
	Title    string
	Columns  []string
	Rows     [][]string
	TotalRow bool
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Supported reports whether format can be written.
func Supported(format string) bool {
	switch format {
	case FormatCSV, FormatXLSX, FormatPDF:
		return true
	}
	return false
}

// FormatFromPath maps a file extension to a format.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("FormatFromPath: %q: %w", filepath.Ext(path), ErrUnsupportedFormat)
	}
}

// Write renders t in the given format.
func Write(w io.Writer, format string, t Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatPDF:
		return WritePDF(w, t)
	default:
		return fmt.Errorf("Write: %q: %w", format, ErrUnsupportedFormat)
	}
}

// WriteFile writes t to path, choosing the format by extension.
func WriteFile(path string, t Table) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteFile: create %q: %w", path, err)
	}

	if err := Write(f, format, t); err != nil {
		_ = f.Close()
		return fmt.Errorf("WriteFile: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteFile: close %q: %w", path, err)
	}
	return nil
}

// WriteCSV writes the header and rows as RFC 4180 CSV.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("WriteCSV: rows: %w", err)
	}
	return nil
}
