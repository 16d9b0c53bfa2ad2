// Package scheduler runs the daily ingestion automatically: once the
// configured UTC hour arrives, yesterday's date is ingested unless a
// successful run for it already exists.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tokenledger/tokenledger/internal/ingestion"
	"github.com/tokenledger/tokenledger/internal/models"
)

// DailyScheduler manages automatic execution of the daily ingestion run.
type DailyScheduler struct {
	ingestor      ingestion.DateIngestor
	runs          ingestion.RunLogRepository
	hourUTC       int
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
}

// NewDailyScheduler creates a daily scheduler firing at hourUTC.
func NewDailyScheduler(
	ingestor ingestion.DateIngestor,
	runs ingestion.RunLogRepository,
	hourUTC int,
	logger *slog.Logger,
) *DailyScheduler {
	return &DailyScheduler{
		ingestor:      ingestor,
		runs:          runs,
		hourUTC:       hourUTC,
		logger:        logger,
		stopChan:      make(chan struct{}),
		checkInterval: 1 * time.Minute,
	}
}

// Start begins the scheduler loop.
func (s *DailyScheduler) Start(ctx context.Context) {
	s.logger.Info("starting daily ingestion scheduler",
		"hour_utc", s.hourUTC,
		"check_interval", s.checkInterval,
	)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run once immediately on start so a restart after the scheduled hour
	// still covers yesterday.
	s.runDue(ctx, time.Now().UTC())

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx, time.Now().UTC())
		case <-s.stopChan:
			s.logger.Info("daily scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("daily scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *DailyScheduler) Stop() {
	close(s.stopChan)
}

// runDue ingests yesterday if the scheduled hour has passed and no successful
// run covers it yet. The run log check makes the minute-level ticker safe:
// repeated checks within the hour find the date already done.
func (s *DailyScheduler) runDue(ctx context.Context, now time.Time) {
	if now.Hour() < s.hourUTC {
		return
	}

	yesterday := models.MidnightUTC(now).AddDate(0, 0, -1)

	done, err := s.runs.HasSucceeded(ctx, yesterday)
	if err != nil {
		s.logger.Error("failed to check run log", "date", models.FormatDate(yesterday), "error", err)
		return
	}
	if done {
		return
	}

	s.logger.Info("scheduled ingestion starting", "date", models.FormatDate(yesterday))

	if _, err := s.ingestor.IngestDate(ctx, yesterday); err != nil {
		s.logger.Error("scheduled ingestion failed",
			"date", models.FormatDate(yesterday),
			"error", err,
		)
	}
}
