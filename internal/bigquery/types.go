package bigquery

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// Extraction run statuses stored in extraction_runs.status.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSuccess   = "SUCCESS"
	RunStatusPartial   = "PARTIAL"
	RunStatusCancelled = "CANCELLED"
	RunStatusFailed    = "FAILED"
)

// LedgerRepository provides an interface for persisting exported ledgers and
// the extraction runs that produced them.
type LedgerRepository interface {
	// InsertLedgerRows inserts a batch of LedgerRow.
	InsertLedgerRows(ctx context.Context, rows []*LedgerRow) error

	// StartExtractionRun inserts a run with status=RUNNING.
	StartExtractionRun(ctx context.Context, runID, source string) error

	// FinishExtractionRun records the outcome of a run.
	FinishExtractionRun(ctx context.Context, result RunResult) error
}

// LedgerRow represents one exported ledger line in BigQuery.
type LedgerRow struct {
	ExportID string `bigquery:"export_id"` // REQUIRED
	RunID    string `bigquery:"run_id"`    // NULLABLE
	Position int64  `bigquery:"position"`  // REQUIRED

	FileName       string            `bigquery:"file_name"`       // REQUIRED
	Serial         string            `bigquery:"serial"`          // NULLABLE
	ObligationDate bigquery.NullDate `bigquery:"obligation_date"` // NULLABLE
	DateText       string            `bigquery:"date_text"`       // NULLABLE
	Payee          string            `bigquery:"payee"`           // NULLABLE
	Particulars    string            `bigquery:"particulars"`     // NULLABLE

	TotalAmount *big.Rat `bigquery:"total_amount"` // NULLABLE NUMERIC
	Payment     *big.Rat `bigquery:"payment"`      // NULLABLE NUMERIC
	Tax         *big.Rat `bigquery:"tax"`          // NULLABLE NUMERIC
	Balance     *big.Rat `bigquery:"balance"`      // NULLABLE NUMERIC

	Remarks string `bigquery:"remarks"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// MarshalJSON renders NUMERIC columns as two-decimal strings.
func (r LedgerRow) MarshalJSON() ([]byte, error) {
	type Alias LedgerRow
	return json.Marshal(&struct {
		TotalAmount *string `json:"total_amount,omitempty"`
		Payment     *string `json:"payment,omitempty"`
		Tax         *string `json:"tax,omitempty"`
		Balance     *string `json:"balance,omitempty"`
		*Alias
	}{
		TotalAmount: ratString(r.TotalAmount),
		Payment:     ratString(r.Payment),
		Tax:         ratString(r.Tax),
		Balance:     ratString(r.Balance),
		Alias:       (*Alias)(&r),
	})
}

func ratString(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := r.FloatString(2)
	return &s
}

// ExtractionRunRow represents an extraction run record in BigQuery.
type ExtractionRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Source string `bigquery:"source"` // NULLABLE

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // REQUIRED
	Documents    int64  `bigquery:"documents"`     // NULLABLE
	Succeeded    int64  `bigquery:"succeeded"`     // NULLABLE
	Failed       int64  `bigquery:"failed"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE
}

// RunResult is the outcome of a finished extraction run.
type RunResult struct {
	RunID     string
	Documents int
	Succeeded int
	Failed    int
	Cancelled bool
	Err       string
}

// Status maps the outcome onto a run status.
func (r RunResult) Status() string {
	switch {
	case r.Err != "":
		return RunStatusFailed
	case r.Cancelled:
		return RunStatusCancelled
	case r.Failed > 0:
		return RunStatusPartial
	default:
		return RunStatusSuccess
	}
}
