package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/obr-ledger/internal/config"
	"github.com/dvloznov/obr-ledger/internal/domain"
	"github.com/dvloznov/obr-ledger/internal/export"
	"github.com/dvloznov/obr-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/logger"
	"github.com/dvloznov/obr-ledger/internal/ocr"
	"github.com/dvloznov/obr-ledger/internal/pipeline"
	"github.com/dvloznov/obr-ledger/internal/session"
	"github.com/dvloznov/obr-ledger/internal/storage"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		runExtract(log)
	case "scan":
		runScan(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Obligation Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Extract every scanned document into a ledger and export it")
	fmt.Println("  scan      Recognize the text inside a region of one document")
	fmt.Println("  upload    Upload an exported ledger to GCS or MinIO")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadConfig loads configuration and applies a folder override.
func loadConfig(log zerolog.Logger, configFile, folder string) *config.Config {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if folder != "" {
		cfg.Source.Kind = config.SourceFolder
		cfg.Source.Folder = folder
	}
	return cfg
}

func pipelineDeps(ctx context.Context, log zerolog.Logger, cfg *config.Config) (storage.Source, pipeline.Deps, func() error) {
	source, err := storage.NewSource(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document source")
	}

	recognizer, closeRecognizer, err := ocr.NewRecognizerFromConfig(ctx, cfg.OCR, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OCR engine")
	}

	return source, pipeline.Deps{
		Source:     source,
		Decoder:    ocr.NewDecoderFromConfig(cfg.OCR),
		Recognizer: recognizer,
		Language:   cfg.OCR.Language,
		Mode:       ocr.Mode(cfg.OCR.Mode),
	}, closeRecognizer
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to a config file")
	folder := fs.String("folder", "", "Folder of scanned documents (overrides source settings)")
	out := fs.String("out", "ledger.csv", "Export path (.csv, .xlsx or .pdf)")
	fs.Parse(os.Args[2:])

	if _, err := export.FormatFromPath(*out); err != nil {
		log.Fatal().Err(err).Str("out", *out).Msg("Error: --out must end in .csv, .xlsx or .pdf")
	}

	cfg := loadConfig(log, *configFile, *folder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	source, deps, closeRecognizer := pipelineDeps(ctx, log, cfg)
	defer closeRecognizer()

	activity, err := logger.NewFileActivity(cfg.Activity.Dir, cfg.User)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open activity log")
	}
	defer activity.Close()

	runner := inmemory.NewRunner(pipeline.NewDocumentHandler(deps), inmemory.NewStore(), log)
	sess := session.New(
		ledger.New(ledger.WithActor(cfg.User)),
		runner,
		session.WithActivity(activity),
		session.WithLogger(log),
	)
	defer sess.Close()

	runID, err := sess.StartExtraction(ctx, source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start extraction")
	}
	log.Info().Str("run_id", runID).Str("source", cfg.Source.Kind).Msg("Extraction started")

	status, err := sess.Wait(ctx, runID)
	if err != nil {
		// Interrupted: cancel the run and keep whatever was extracted.
		if cancelErr := sess.CancelExtraction(context.Background(), runID); cancelErr != nil {
			log.Error().Err(cancelErr).Msg("Failed to cancel extraction")
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		status, err = sess.Wait(waitCtx, runID)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Extraction did not stop")
		}
	}

	if status.Error != "" {
		log.Fatal().Str("error", status.Error).Msg("Extraction failed")
	}

	fmt.Printf("Processed %d of %d documents, %d succeeded.\n", status.Processed, status.Total, status.Succeeded)
	if status.Cancelled {
		fmt.Println("Extraction was cancelled.")
	}
	for _, f := range status.Failures {
		fmt.Printf("  failed: %s: %s\n", f.Name, f.Message)
	}

	if err := sess.Export(context.Background(), *out); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Ledger exported to %s\n", *out)
}

func runScan(log zerolog.Logger) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to a config file")
	filePath := fs.String("file", "", "Path to a scanned document")
	rectFlag := fs.String("rect", "", "Region as x0,y0,x1,y1 in pixels")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *rectFlag == "" {
		log.Fatal().Msg("Usage: cli scan -file PATH -rect x0,y0,x1,y1")
	}

	rect, err := parseRect(*rectFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --rect")
	}

	cfg := loadConfig(log, *configFile, filepath.Dir(*filePath))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	_, deps, closeRecognizer := pipelineDeps(ctx, log, cfg)
	defer closeRecognizer()

	doc := domain.Document{Name: filepath.Base(*filePath), URI: *filePath}
	text, err := pipeline.NewCellScanner(deps).Scan(ctx, doc, rect)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}

	fmt.Println(text)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to a config file")
	filePath := fs.String("file", "", "Path to an exported ledger")
	target := fs.String("target", config.SourceGCS, "Upload target: gcs or minio")
	objectName := fs.String("object", "", "Object name (defaults to filename)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-target gcs|minio] [-object NAME]")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	format, err := export.FormatFromPath(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Only .csv, .xlsx and .pdf exports can be uploaded")
	}

	cfg := loadConfig(log, *configFile, "")

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	uploader, err := storage.NewUploader(ctx, cfg, *target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create uploader")
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to stat file")
	}

	log.Info().
		Str("target", *target).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading export")

	uri, err := uploader.Upload(ctx, *objectName, f, info.Size(), export.ContentType(format))
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	activity, err := logger.NewFileActivity(cfg.Activity.Dir, cfg.User)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open activity log")
	} else {
		activity.Log(logger.ActionUploadPerformed, uri)
		activity.Close()
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

// parseRect parses "x0,y0,x1,y1".
func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("parseRect: want 4 values, got %d", len(parts))
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("parseRect: %w", err)
		}
		v[i] = n
	}
	rect := image.Rect(v[0], v[1], v[2], v[3])
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("parseRect: %q is empty", s)
	}
	return rect, nil
}
