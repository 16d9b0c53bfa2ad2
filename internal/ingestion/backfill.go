package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tokenledger/tokenledger/internal/models"
)

// DateIngestor runs the full pipeline for one activity date.
type DateIngestor interface {
	IngestDate(ctx context.Context, date time.Time) (RunStats, error)
}

// BackfillResult summarizes a multi-date drive. Failed dates are isolated:
// one bad date never stops the remaining dates from being attempted.
type BackfillResult struct {
	Succeeded []time.Time
	Failed    []time.Time
}

// Summary renders a one-line outcome suitable for the end of a CLI run.
func (r BackfillResult) Summary() string {
	if len(r.Failed) == 0 {
		return fmt.Sprintf("backfill complete: %d dates succeeded", len(r.Succeeded))
	}

	failed := make([]string, 0, len(r.Failed))
	for _, d := range r.Failed {
		failed = append(failed, models.FormatDate(d))
	}
	return fmt.Sprintf("backfill finished with failures: %d succeeded, %d failed (%s)",
		len(r.Succeeded), len(r.Failed), strings.Join(failed, ", "))
}

// Driver walks a list of dates through an ingestor with pacing between dates
// so long backfills do not hammer the vendor APIs.
type Driver struct {
	ingestor DateIngestor
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewDriver creates a backfill driver. pause is the minimum interval between
// consecutive dates; zero disables pacing.
func NewDriver(ingestor DateIngestor, pause time.Duration, logger *slog.Logger) *Driver {
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &Driver{
		ingestor: ingestor,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Run ingests each date in order, collecting per-date outcomes. It returns an
// error only when the context is cancelled; per-date failures land in the
// result instead.
func (d *Driver) Run(ctx context.Context, dates []time.Time) (BackfillResult, error) {
	var result BackfillResult

	for _, date := range dates {
		if err := d.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("backfill interrupted: %w", err)
		}

		if _, err := d.ingestor.IngestDate(ctx, date); err != nil {
			d.logger.Error("date failed, continuing backfill",
				"date", models.FormatDate(date),
				"error", err,
			)
			result.Failed = append(result.Failed, date)
			continue
		}
		result.Succeeded = append(result.Succeeded, date)
	}

	return result, nil
}

// DateRange expands an inclusive [start, end] range into consecutive UTC
// dates. An inverted range yields nil.
func DateRange(start, end time.Time) []time.Time {
	start = models.MidnightUTC(start)
	end = models.MidnightUTC(end)

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// MissingDates returns the dates in the inclusive [start, end] range with no
// cost rows in the warehouse. The cost table is the completeness marker: a
// date with zero cost rows was never ingested (or its run failed).
func MissingDates(ctx context.Context, repo CostRepository, start, end time.Time) ([]time.Time, error) {
	expected := DateRange(start, end)
	if len(expected) == 0 {
		return nil, nil
	}

	present, err := repo.DistinctDates(ctx, expected[0], expected[len(expected)-1].AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to list ingested dates: %w", err)
	}

	have := make(map[time.Time]bool, len(present))
	for _, d := range present {
		have[models.MidnightUTC(d)] = true
	}

	var missing []time.Time
	for _, d := range expected {
		if !have[d] {
			missing = append(missing, d)
		}
	}
	return missing, nil
}
