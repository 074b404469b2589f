package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/obr-ledger/internal/bigquery"
)

const maxErrorMessageLen = 2000

// StartExtractionRunWithClient inserts a row into extraction_runs with
// status=RUNNING.
func StartExtractionRunWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID, source string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source,
			@started_ts,
			@status
		)
	`, datasetID, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("StartExtractionRun: %w", err)
	}
	return nil
}

// FinishExtractionRunWithClient sets status, counters, finished_ts and
// error_message of a run.
func FinishExtractionRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, result RunResult) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    documents = @documents,
		    succeeded = @succeeded,
		    failed = @failed,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, datasetID, extractionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: result.Status()},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "documents", Value: int64(result.Documents)},
		{Name: "succeeded", Value: int64(result.Succeeded)},
		{Name: "failed", Value: int64(result.Failed)},
		{Name: "error_message", Value: truncate(result.Err, maxErrorMessageLen)},
		{Name: "run_id", Value: result.RunID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("FinishExtractionRun: %w", err)
	}
	return nil
}

// runQuery runs a DML statement and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
