// Package worker runs unattended batch extractions on a schedule and ships
// the resulting ledger to BigQuery and object storage.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	bq "github.com/dvloznov/obr-ledger/internal/bigquery"
	infraBQ "github.com/dvloznov/obr-ledger/internal/infra/bigquery"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/jobs"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/session"
	"github.com/dvloznov/obr-ledger/internal/storage"
)

// Batch extracts every document of Source into a fresh ledger. Repo and
// Uploader are optional sinks.
type Batch struct {
	Runner     session.Runner
	Source     jobs.Lister
	SourceName string
	Repo       bq.LedgerRepository
	Uploader   storage.Uploader
	Activity   logger.Activity
	Log        zerolog.Logger
	Now        func() time.Time
}

// Result describes one finished batch.
type Result struct {
	Status    session.RunStatus
	Rows      int
	ExportURI string
}

// Run performs one batch. A run that fails systemically is still recorded
// in BigQuery before its error is returned.
func (b *Batch) Run(ctx context.Context) (*Result, error) {
	now := b.Now
	if now == nil {
		now = time.Now
	}
	opts := []session.Option{session.WithLogger(b.Log)}
	if b.Activity != nil {
		opts = append(opts, session.WithActivity(b.Activity))
	}

	sess := session.New(ledger.New(ledger.WithActor("worker")), b.Runner, opts...)
	defer sess.Close()

	ctx = logger.WithContext(ctx, logger.FromContextOr(ctx, b.Log))
	runID, err := sess.StartExtraction(ctx, b.Source)
	if err != nil {
		return nil, fmt.Errorf("Batch.Run: %w", err)
	}
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id": runID,
		"source": b.SourceName,
	})

	if b.Repo != nil {
		if err := b.Repo.StartExtractionRun(ctx, runID, b.SourceName); err != nil {
			log.Warn().Err(err).Msg("Failed to record extraction run start")
		}
	}

	status, err := sess.Wait(ctx, runID)
	if err != nil {
		_ = sess.CancelExtraction(context.WithoutCancel(ctx), runID)
		return nil, fmt.Errorf("Batch.Run: waiting for run: %w", err)
	}

	if b.Repo != nil {
		if err := b.Repo.FinishExtractionRun(ctx, RunResultOf(status)); err != nil {
			log.Warn().Err(err).Msg("Failed to record extraction run outcome")
		}
	}
	if status.Error != "" {
		return &Result{Status: status}, fmt.Errorf("Batch.Run: run %s failed: %s", runID, status.Error)
	}

	table, err := sess.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("Batch.Run: %w", err)
	}
	// The ledger is fresh, so every successful document is one data row.
	result := &Result{Status: status, Rows: status.Succeeded}
	if result.Rows == 0 {
		log.Info().Msg("No rows extracted, nothing to export")
		return result, nil
	}

	exportID := uuid.New().String()
	if b.Repo != nil {
		data, err := sess.DataRows(ctx)
		if err != nil {
			return result, fmt.Errorf("Batch.Run: %w", err)
		}
		rows := infraBQ.ToLedgerRows(exportID, runID, data, now())
		if err := b.Repo.InsertLedgerRows(ctx, rows); err != nil {
			return result, fmt.Errorf("Batch.Run: %w", err)
		}
		log.Info().Int("rows", len(rows)).Str("export_id", exportID).Msg("Ledger rows stored in BigQuery")
	}

	if b.Uploader != nil {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, table); err != nil {
			return result, fmt.Errorf("Batch.Run: %w", err)
		}
		objectName := fmt.Sprintf("exports/%s/ledger-%s.csv", now().Format("2006/01/02"), exportID)
		uri, err := b.Uploader.Upload(ctx, objectName, &buf, int64(buf.Len()), export.ContentType(export.FormatCSV))
		if err != nil {
			return result, fmt.Errorf("Batch.Run: %w", err)
		}
		result.ExportURI = uri
		if b.Activity != nil {
			b.Activity.Log(logger.ActionUploadPerformed, uri)
		}
		log.Info().Str("uri", uri).Msg("Ledger export uploaded")
	}

	return result, nil
}

// RunResultOf converts a session run status into a BigQuery run outcome.
func RunResultOf(status session.RunStatus) bq.RunResult {
	return bq.RunResult{
		RunID:     status.RunID,
		Documents: status.Total,
		Succeeded: status.Succeeded,
		Failed:    len(status.Failures),
		Cancelled: status.Cancelled,
		Err:       status.Error,
	}
}
