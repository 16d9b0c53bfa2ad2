package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// costColumnPattern matches column names that would smuggle spend figures
// into the productivity table. The vendor's productivity endpoint reports an
// estimated cost the cost report already covers, so any such column is a
// double-counting hazard.
var costColumnPattern = regexp.MustCompile(`(?i)(cost|amount|spend|usd|dollar|price)`)

// ValidateCostLoad runs the post-load checks for one activity date. A
// violation aborts the run: a ceiling breach almost always means a cents
// conversion regression, and duplicate keys mean the idempotent replace broke.
func ValidateCostLoad(ctx context.Context, repo CostRepository, date time.Time, ceilingUSD float64) error {
	sum, err := repo.SumForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to sum cost for %s: %w", models.FormatDate(date), err)
	}
	if sum > ceilingUSD {
		return fmt.Errorf("daily cost sum %.2f USD for %s exceeds ceiling %.2f USD; suspect a unit conversion bug",
			sum, models.FormatDate(date), ceilingUSD)
	}

	dupes, err := repo.DuplicateKeyCount(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to count duplicate cost keys for %s: %w", models.FormatDate(date), err)
	}
	if dupes > 0 {
		return fmt.Errorf("found %d duplicated cost key groups for %s", dupes, models.FormatDate(date))
	}

	return nil
}

// ValidateProductivitySchema proves the productivity table carries no
// cost-bearing column.
func ValidateProductivitySchema(ctx context.Context, repo ProductivityRepository) error {
	columns, err := repo.ColumnNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list productivity columns: %w", err)
	}

	for _, col := range columns {
		if costColumnPattern.MatchString(col) {
			return fmt.Errorf("productivity table has cost-bearing column %q; spend belongs in the cost table only", col)
		}
	}
	return nil
}
