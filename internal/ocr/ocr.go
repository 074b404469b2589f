// Package ocr decodes scanned documents into pages and turns pages into text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrUnsupportedFormat is wrapped by DecodeError when the input is not a known document type.
var ErrUnsupportedFormat = errors.New("ocr: unsupported format")

const (
	MIMETypePDF  = "application/pdf"
	MIMETypePNG  = "image/png"
	MIMETypeJPEG = "image/jpeg"
	MIMETypeGIF  = "image/gif"

	DefaultLanguage = "eng"
)

// Mode is a page segmentation mode.
type Mode int

const (
	ModeAuto        Mode = 3
	ModeSingleBlock Mode = 6
	ModeSingleLine  Mode = 7
	ModeSparseText  Mode = 11
)

// DefaultMode treats the page as one uniform block of text.
const DefaultMode = ModeSingleBlock

// Page is one decoded page. Data holds the encoded bytes Image was decoded
// from; a rendered PDF page carries its PNG. Image is nil only for pages
// built by hand from raw PDF bytes.
type Page struct {
	Data     []byte
	MIMEType string
	Image    image.Image
}

// IsPDF reports whether the page carries raw PDF bytes.
func (p Page) IsPDF() bool { return p.MIMEType == MIMETypePDF }

// Decoder turns raw document bytes into pages.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]Page, error)
}

// Recognizer extracts text from a page.
type Recognizer interface {
	RecognizeText(ctx context.Context, page Page, language string, mode Mode) (string, error)
}

// DecodeError reports a document that could not be decoded.
type DecodeError struct {
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.MIMEType == "" {
		return fmt.Sprintf("ocr: decode: %v", e.Err)
	}
	return fmt.Sprintf("ocr: decode %s: %v", e.MIMEType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func normalizeOptions(language string, mode Mode) (string, Mode) {
	if language == "" {
		language = DefaultLanguage
	}
	if mode <= 0 {
		mode = DefaultMode
	}
	return language, mode
}
