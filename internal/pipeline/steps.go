package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/obr-ledger/internal/extract"
	"github.com/dvloznov/obr-ledger/internal/ocr"
)

// Step 1: FetchDocumentStep reads the document bytes from its source.
type FetchDocumentStep struct {
	Source DocumentSource
}

func (s *FetchDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.Source.Open(ctx, state.Document)
	if err != nil {
		return fmt.Errorf("FetchDocumentStep: %w", err)
	}
	state.Data = data
	return nil
}

// Step 2: DecodePagesStep decodes the bytes into pages.
type DecodePagesStep struct {
	Decoder ocr.Decoder
}

func (s *DecodePagesStep) Execute(ctx context.Context, state *PipelineState) error {
	pages, err := s.Decoder.Decode(ctx, state.Data)
	if err != nil {
		return fmt.Errorf("DecodePagesStep: %w", err)
	}
	if len(pages) == 0 {
		return errors.New("DecodePagesStep: document has no pages")
	}
	state.Pages = pages
	return nil
}

// Step 3: RecognizeTextStep runs OCR on the first page, which holds the
// obligation request. Empty text is valid input for extraction.
type RecognizeTextStep struct {
	Recognizer ocr.Recognizer
	Language   string
	Mode       ocr.Mode
}

func (s *RecognizeTextStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.Recognizer.RecognizeText(ctx, state.Pages[0], s.Language, s.Mode)
	if err != nil {
		return fmt.Errorf("RecognizeTextStep: %w", err)
	}
	state.Text = text
	return nil
}

// Step 4: ExtractFieldsStep builds the record. It cannot fail.
type ExtractFieldsStep struct {
	Extractor *extract.Extractor
}

func (s *ExtractFieldsStep) Execute(ctx context.Context, state *PipelineState) error {
	rec := s.Extractor.ExtractDocument(state.Document.Name, state.Text)
	state.Record = &rec
	return nil
}
