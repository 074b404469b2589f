// Package pipeline turns one document into an extracted record:
// fetch, decode, recognize and extract, one step after another.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/extract"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
)

// PipelineStep represents a single step of document extraction.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Document domain.Document
	Data     []byte
	Pages    []ocr.Page
	Text     string
	Record   *extract.Record
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// DocumentSource opens a document's bytes.
type DocumentSource interface {
	Open(ctx context.Context, doc domain.Document) ([]byte, error)
}

// Deps are the collaborators of the extraction pipeline.
type Deps struct {
	Source     DocumentSource
	Decoder    ocr.Decoder
	Recognizer ocr.Recognizer
	Extractor  *extract.Extractor
	Language   string
	Mode       ocr.Mode
}

// NewExtractionPipeline creates the standard four-step pipeline.
func NewExtractionPipeline(deps Deps) *Pipeline {
	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.New()
	}
	return NewPipeline(
		&FetchDocumentStep{Source: deps.Source},
		&DecodePagesStep{Decoder: deps.Decoder},
		&RecognizeTextStep{Recognizer: deps.Recognizer, Language: deps.Language, Mode: deps.Mode},
		&ExtractFieldsStep{Extractor: extractor},
	)
}

// NewDocumentHandler adapts the extraction pipeline to a job handler.
func NewDocumentHandler(deps Deps) jobs.Handler {
	p := NewExtractionPipeline(deps)
	return func(ctx context.Context, job *jobs.ExtractDocumentJob) (*extract.Record, error) {
		log := logger.FromContextOr(ctx, zerolog.Nop())
		state := &PipelineState{Document: job.Document}
		if err := p.Execute(ctx, state); err != nil {
			log.Debug().Err(err).Msg("Extraction pipeline failed")
			return nil, err
		}
		log.Debug().
			Int("pages", len(state.Pages)).
			Int("text_length", len(state.Text)).
			Msg("Document extracted")
		return state.Record, nil
	}
}
