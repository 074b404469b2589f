package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 7.0
	pdfFontSize   = 8.0
	pdfTitleSize  = 14.0
	pdfCellMargin = 1.0
)

// columnWeights gives wide text columns more room. Unlisted columns weigh 1.
var columnWeights = map[string]float64{
	"File Name":   1.6,
	"Payee":       1.8,
	"Particulars": 3.5,
	"Remarks":     1.6,
}

// WritePDF renders t on landscape letter pages with a grey bold header and
// a full grid. The totals row is bold. Cell text that does not fit is
// truncated.
func WritePDF(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("WritePDF: table has no columns")
	}

	pdf := gofpdf.New("L", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	widths := columnWidths(t.Columns, pageWidth-2*pdfMargin)

	if t.Title != "" {
		pdf.SetFont("Arial", "B", pdfTitleSize)
		pdf.SetTextColor(33, 37, 41)
		pdf.CellFormat(0, 10, t.Title, "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	header := func() {
		pdf.SetFont("Arial", "B", pdfFontSize)
		pdf.SetFillColor(200, 200, 200)
		for i, col := range t.Columns {
			pdf.CellFormat(widths[i], pdfRowHeight, fit(pdf, col, widths[i]), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(pdfRowHeight)
		pdf.SetFont("Arial", "", pdfFontSize)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	header()
	for r, row := range t.Rows {
		if t.TotalRow && r == len(t.Rows)-1 {
			pdf.SetFont("Arial", "B", pdfFontSize)
		}
		for i := range t.Columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(widths[i], pdfRowHeight, fit(pdf, value, widths[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(pdfRowHeight)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("WritePDF: %w", err)
	}
	return nil
}

func columnWidths(columns []string, total float64) []float64 {
	weights := make([]float64, len(columns))
	sum := 0.0
	for i, col := range columns {
		weight, ok := columnWeights[col]
		if !ok {
			weight = 1
		}
		weights[i] = weight
		sum += weight
	}

	widths := make([]float64, len(columns))
	for i, weight := range weights {
		widths[i] = total * weight / sum
	}
	return widths
}

// fit shortens s until it fits in width, marking the cut with "...".
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	s = pdf.UnicodeTranslatorFromDescriptor("")(s)
	avail := width - 2*pdfCellMargin
	if pdf.GetStringWidth(s) <= avail {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if pdf.GetStringWidth(candidate) <= avail {
			return candidate
		}
	}
	return ""
}
