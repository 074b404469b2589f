package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/obr-ledger/internal/config"
	infraBQ "github.com/dvloznov/obr-ledger/internal/infra/bigquery"
	"github.com/dvloznov/obr-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
	"github.com/dvloznov/obr-ledger/internal/pipeline"
	"github.com/dvloznov/obr-ledger/internal/storage"
	"github.com/dvloznov/obr-ledger/internal/worker"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to a config file (yaml, json or toml)")
		uploadTo   = flag.String("upload", "", "Upload each export to gcs or minio (empty disables)")
		once       = flag.Bool("once", false, "Run a single batch and exit")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	source, err := storage.NewSource(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document source")
	}

	recognizer, closeRecognizer, err := ocr.NewRecognizerFromConfig(ctx, cfg.OCR, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OCR engine")
	}
	defer closeRecognizer()

	activity, err := logger.NewFileActivity(cfg.Activity.Dir, cfg.User)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open activity log")
	}
	defer activity.Close()

	deps := pipeline.Deps{
		Source:     source,
		Decoder:    ocr.NewDecoderFromConfig(cfg.OCR),
		Recognizer: recognizer,
		Language:   cfg.OCR.Language,
		Mode:       ocr.Mode(cfg.OCR.Mode),
	}

	batch := &worker.Batch{
		Runner:     inmemory.NewRunner(pipeline.NewDocumentHandler(deps), inmemory.NewStore(), log),
		Source:     source,
		SourceName: cfg.Source.Kind,
		Activity:   activity,
		Log:        log,
	}

	if cfg.BigQuery.Project != "" {
		repo, err := infraBQ.NewRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer repo.Close()
		batch.Repo = repo
	} else {
		log.Warn().Msg("bigquery.project not set, ledger rows will not be stored")
	}

	if *uploadTo != "" {
		uploader, err := storage.NewUploader(ctx, cfg, *uploadTo)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create export uploader")
		}
		batch.Uploader = uploader
	}

	if *once {
		result, err := batch.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Batch extraction failed")
		}
		log.Info().
			Str("run_id", result.Status.RunID).
			Int("rows", result.Rows).
			Str("export_uri", result.ExportURI).
			Msg("Batch extraction completed")
		return
	}

	scheduler, err := worker.NewScheduler(batch, cfg.Worker.Interval, true, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create batch scheduler")
	}
	scheduler.Start()

	log.Info().
		Dur("interval", cfg.Worker.Interval).
		Str("source", cfg.Source.Kind).
		Msg("Worker service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler did not stop cleanly")
	}

	log.Info().Msg("Worker service stopped")
}
