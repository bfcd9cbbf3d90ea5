package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/transfa/ledger-service/internal/config"
)

// Scheduler runs the exchange-rate ingestion on its cron schedule. Overlapping
// runs are skipped and a panicking run is recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{cron: c, jobs: jobs, logger: logger, config: cfg}
}

// Start registers the ingestion job and starts the cron loop. With
// ExchangeRateFetchOnStart set, one run is also triggered immediately, and a
// positive ExchangeRateBackfillDays fills the preceding days in the background.
func (s *Scheduler) Start() error {
	entryID, err := s.cron.AddFunc(s.config.ExchangeRateJobSchedule, s.jobs.IngestExchangeRates)
	if err != nil {
		return fmt.Errorf("schedule exchange rate ingestion %q: %w", s.config.ExchangeRateJobSchedule, err)
	}
	s.logger.Info("scheduled exchange rate ingestion job", "schedule", s.config.ExchangeRateJobSchedule)

	s.cron.Start()

	if s.config.ExchangeRateBackfillDays > 0 {
		go s.jobs.BackfillExchangeRates(s.config.ExchangeRateBackfillDays)
	}
	if s.config.ExchangeRateFetchOnStart {
		// Run through the wrapped entry so the SkipIfStillRunning chain applies.
		go s.cron.Entry(entryID).WrappedJob.Run()
	}
	return nil
}

// Stop halts the cron loop. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
