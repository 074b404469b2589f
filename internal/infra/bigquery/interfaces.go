package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/obr-ledger/internal/bigquery"
)

// Re-export types from the shared package.
type (
	LedgerRepository = bq.LedgerRepository
	LedgerRow        = bq.LedgerRow
	ExtractionRunRow = bq.ExtractionRunRow
	RunResult        = bq.RunResult
)

const (
	ledgerRowsTable     = "ledger_rows"
	extractionRunsTable = "extraction_runs"
)

// Repository is the BigQuery implementation of LedgerRepository. It holds a
// shared client for all operations.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

var _ LedgerRepository = (*Repository)(nil)

// NewRepository creates a repository with its own BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient creates a repository around an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{client: client, dataset: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertLedgerRows delegates to InsertLedgerRowsWithClient.
func (r *Repository) InsertLedgerRows(ctx context.Context, rows []*LedgerRow) error {
	return InsertLedgerRowsWithClient(ctx, r.client, r.dataset, rows)
}

// StartExtractionRun delegates to StartExtractionRunWithClient.
func (r *Repository) StartExtractionRun(ctx context.Context, runID, source string) error {
	return StartExtractionRunWithClient(ctx, r.client, r.dataset, runID, source)
}

// FinishExtractionRun delegates to FinishExtractionRunWithClient.
func (r *Repository) FinishExtractionRun(ctx context.Context, result RunResult) error {
	return FinishExtractionRunWithClient(ctx, r.client, r.dataset, result)
}
