package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/ocr"
)

// CellScanner recognizes the text inside a selected region of a document.
// It backs the manual crop-and-OCR fill of a single ledger cell.
type CellScanner struct {
	Source     DocumentSource
	Decoder    ocr.Decoder
	Recognizer ocr.Recognizer
	Language   string
}

// NewCellScanner creates a scanner from the pipeline collaborators.
func NewCellScanner(deps Deps) *CellScanner {
	return &CellScanner{
		Source:     deps.Source,
		Decoder:    deps.Decoder,
		Recognizer: deps.Recognizer,
		Language:   deps.Language,
	}
}

// Scan crops rect out of the first page of doc and returns its trimmed text.
// Lines are joined with single spaces since the result fills one cell.
func (s *CellScanner) Scan(ctx context.Context, doc domain.Document, rect image.Rectangle) (string, error) {
	data, err := s.Source.Open(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("Scan: %w", err)
	}

	pages, err := s.Decoder.Decode(ctx, data)
	if err != nil {
		return "", fmt.Errorf("Scan: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("Scan: %s has no pages", doc.Name)
	}

	region, err := ocr.Crop(pages[0], rect)
	if err != nil {
		return "", fmt.Errorf("Scan: %w", err)
	}

	text, err := s.Recognizer.RecognizeText(ctx, region, s.Language, ocr.DefaultMode)
	if err != nil {
		return "", fmt.Errorf("Scan: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}
