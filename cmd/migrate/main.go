package main

import (
	"context"
	"flag"
	"os"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/obr-ledger/internal/config"
	infraBQ "github.com/dvloznov/obr-ledger/internal/infra/bigquery"
	"github.com/dvloznov/obr-ledger/internal/logger"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to a config file")
		projectID     = flag.String("project", "", "GCP project ID (overrides bigquery.project)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (overrides bigquery.dataset)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Directory of migration files (defaults to the bundled set)")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *projectID != "" {
		cfg.BigQuery.Project = *projectID
	}
	if *datasetID != "" {
		cfg.BigQuery.Dataset = *datasetID
	}
	if cfg.BigQuery.Project == "" || cfg.BigQuery.Dataset == "" {
		log.Fatal().Msg("Error: a BigQuery project and dataset are required")
	}

	fsys, dir := infraBQ.MigrationsFS, "migrations"
	if *migrationsDir != "" {
		fsys, dir = os.DirFS(*migrationsDir), "."
	}

	migrations, err := infraBQ.ReadMigrations(fsys, dir, cfg.BigQuery.Project, cfg.BigQuery.Dataset, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	ctx := context.Background()

	client, err := bigquery.NewClient(ctx, cfg.BigQuery.Project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().
		Str("project", cfg.BigQuery.Project).
		Str("dataset", cfg.BigQuery.Dataset).
		Msg("Connected to BigQuery")

	migrator := infraBQ.NewMigrator(client, cfg.BigQuery.Project, cfg.BigQuery.Dataset, *appliedBy, log)
	applied, err := migrator.Migrate(ctx, migrations)
	if err != nil {
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Migrations applied")
	}
}
