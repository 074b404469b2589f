package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// ImageDecoder sniffs the content type and decodes PDFs and raster images.
// Only the first page of a PDF carries the obligation request, so a PDF
// yields that page rendered as PNG.
type ImageDecoder struct {
	rasterizer Rasterizer
}

// DecoderOption configures an ImageDecoder.
type DecoderOption func(*ImageDecoder)

// WithRasterizer replaces the pdftoppm rasterizer.
func WithRasterizer(r Rasterizer) DecoderOption {
	return func(d *ImageDecoder) { d.rasterizer = r }
}

// NewImageDecoder creates an ImageDecoder that renders PDFs with pdftoppm
// from PATH unless WithRasterizer is given.
func NewImageDecoder(opts ...DecoderOption) *ImageDecoder {
	d := &ImageDecoder{rasterizer: NewPDFToPPM("", DefaultDPI)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode implements Decoder.
func (d *ImageDecoder) Decode(ctx context.Context, data []byte) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}

	mimeType := DetectMIMEType(data)
	switch mimeType {
	case MIMETypePDF:
		raster, err := d.rasterizer.RasterizeFirstPage(ctx, data)
		if err != nil {
			return nil, &DecodeError{MIMEType: mimeType, Err: err}
		}
		img, _, err := image.Decode(bytes.NewReader(raster))
		if err != nil {
			return nil, &DecodeError{MIMEType: mimeType, Err: fmt.Errorf("decode rendered page: %w", err)}
		}
		return []Page{{Data: raster, MIMEType: MIMETypePNG, Image: img}}, nil

	case MIMETypePNG, MIMETypeJPEG, MIMETypeGIF:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &DecodeError{MIMEType: mimeType, Err: fmt.Errorf("decode image: %w", err)}
		}
		return []Page{{Data: data, MIMEType: mimeType, Image: img}}, nil

	default:
		return nil, &DecodeError{MIMEType: mimeType, Err: ErrUnsupportedFormat}
	}
}

// DetectMIMEType returns the sniffed content type without parameters.
func DetectMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
