package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler runs a batch at a fixed interval. Overlapping runs are
// rescheduled rather than started concurrently.
type Scheduler struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	log       zerolog.Logger
}

// BatchRunner is satisfied by *Batch.
type BatchRunner interface {
	Run(ctx context.Context) (*Result, error)
}

// NewScheduler registers batch to run every interval. With immediate set the
// first run starts as soon as the scheduler does.
func NewScheduler(batch BatchRunner, interval time.Duration, immediate bool, log zerolog.Logger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("NewScheduler: creating scheduler: %w", err)
	}

	s := &Scheduler{scheduler: scheduler, log: log}

	opts := []gocron.JobOption{
		gocron.WithName("batch-extraction"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	job, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.runBatch(batch) }),
		opts...,
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("NewScheduler: registering batch job: %w", err)
	}
	s.job = job

	return s, nil
}

func (s *Scheduler) runBatch(batch BatchRunner) {
	start := time.Now()
	s.log.Info().Msg("Starting scheduled batch extraction")

	result, err := batch.Run(context.Background())
	if err != nil {
		s.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled batch extraction failed")
		return
	}

	s.log.Info().
		Str("run_id", result.Status.RunID).
		Int("documents", result.Status.Total).
		Int("succeeded", result.Status.Succeeded).
		Int("failed", len(result.Status.Failures)).
		Int("rows", result.Rows).
		Str("export_uri", result.ExportURI).
		Dur("duration", time.Since(start)).
		Msg("Scheduled batch extraction completed")
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.log.Info().Msg("Starting batch scheduler")
	s.scheduler.Start()
}

// NextRun returns when the batch runs next.
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// Stop stops the scheduler and waits for a running batch to finish.
func (s *Scheduler) Stop() error {
	s.log.Info().Msg("Stopping batch scheduler")
	return s.scheduler.Shutdown()
}
