package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/obr-ledger/internal/api/handlers"
	"github.com/dvloznov/obr-ledger/internal/config"
	"github.com/dvloznov/obr-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
	"github.com/dvloznov/obr-ledger/internal/pipeline"
	"github.com/dvloznov/obr-ledger/internal/session"
	"github.com/dvloznov/obr-ledger/internal/storage"
)

func main() {
	// Parse command-line flags
	var (
		configFile = flag.String("config", "", "Path to a config file (yaml, json or toml)")
		port       = flag.String("port", "", "HTTP server port (overrides server.port)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
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

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	runner := inmemory.NewRunner(pipeline.NewDocumentHandler(deps), jobStore, log)

	sess := session.New(
		ledger.New(ledger.WithActor(cfg.User)),
		runner,
		session.WithScanner(pipeline.NewCellScanner(deps)),
		session.WithActivity(activity),
		session.WithLogger(log),
	)
	defer sess.Close()

	handler := handlers.NewRouter(handlers.RouterDeps{
		Session: sess,
		Source:  source,
		Store:   jobStore,
		Log:     log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("source", cfg.Source.Kind).
			Str("ocr_engine", cfg.OCR.Engine).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
