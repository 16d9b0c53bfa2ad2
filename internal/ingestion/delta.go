package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenledger/tokenledger/internal/cursor"
	"github.com/tokenledger/tokenledger/internal/models"
)

// negativeTolerance absorbs float rounding when differencing cumulative
// totals. Anything more negative is a vendor-side correction and gets
// clamped with a warning.
const negativeTolerance = 0.01

// ComputeSpendDeltas turns the vendor's cumulative-to-date spend snapshot
// into per-day increments for the target date: for each member, the new
// cumulative total minus the sum of deltas already stored for earlier days of
// the same billing cycle. Negative results clamp to zero so a vendor
// correction never produces a negative daily spend row.
func ComputeSpendDeltas(ctx context.Context, repo SpendRepository, spend cursor.TeamSpend, date time.Time, logger *slog.Logger) ([]models.SpendDelta, error) {
	deltas := make([]models.SpendDelta, 0, len(spend.Members))

	for _, member := range spend.Members {
		prior, err := repo.SumDeltasSince(ctx, member.Email, spend.CycleStart, date)
		if err != nil {
			return nil, fmt.Errorf("failed to sum prior deltas for %s: %w", member.Email, err)
		}

		delta := member.CumulativeUSD - prior
		if delta < 0 {
			if delta < -negativeTolerance {
				logger.Warn("cumulative spend went backwards, clamping delta to zero",
					"user", member.Email,
					"date", models.FormatDate(date),
					"cumulative_usd", member.CumulativeUSD,
					"prior_usd", prior,
				)
			}
			delta = 0
		}

		deltas = append(deltas, models.SpendDelta{
			ActivityDate: date,
			UserEmail:    member.Email,
			DeltaUSD:     delta,
			CycleStart:   spend.CycleStart,
		})
	}

	return deltas, nil
}
