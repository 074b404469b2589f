package ocr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// DefaultDPI is the resolution PDF pages are rendered at.
const DefaultDPI = 300

// Rasterizer renders the first page of a PDF as PNG.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, pdf []byte) ([]byte, error)
}

// PDFToPPM shells out to poppler's pdftoppm.
type PDFToPPM struct {
	path string
	dpi  int
	run  func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// NewPDFToPPM uses the binary at path, or "pdftoppm" from PATH.
func NewPDFToPPM(path string, dpi int) *PDFToPPM {
	if path == "" {
		path = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PDFToPPM{path: path, dpi: dpi, run: runCommand}
}

// RasterizeFirstPage implements Rasterizer. The PDF is read from stdin and
// the PNG written to stdout.
func (p *PDFToPPM) RasterizeFirstPage(ctx context.Context, pdf []byte) ([]byte, error) {
	args := []string{"-png", "-f", "1", "-l", "1", "-r", strconv.Itoa(p.dpi), "-"}
	out, err := p.run(ctx, p.path, args, pdf)
	if err != nil {
		return nil, fmt.Errorf("RasterizeFirstPage: run %s: %w", p.path, err)
	}
	if len(out) == 0 {
		return nil, errors.New("RasterizeFirstPage: no page rendered")
	}
	return out, nil
}
