package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// SpendRepository stores the IDE vendor's derived daily spend deltas.
type SpendRepository struct {
	db *sql.DB
}

// NewSpendRepository creates a spend repository.
func NewSpendRepository(db *sql.DB) *SpendRepository {
	return &SpendRepository{db: db}
}

// ReplaceForDate deletes all spend deltas for one activity date and inserts
// the batch in the same transaction.
func (r *SpendRepository) ReplaceForDate(ctx context.Context, date time.Time, deltas []models.SpendDelta) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ide_spend_deltas WHERE activity_date = $1`,
		date,
	); err != nil {
		return fmt.Errorf("failed to delete existing spend deltas: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ide_spend_deltas
			(activity_date, user_email, delta_usd, cycle_start, ingested_at)
		VALUES ($1, $2, $3, $4, NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spend insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deltas {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid spend delta: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			d.ActivityDate, d.UserEmail, d.DeltaUSD, d.CycleStart,
		); err != nil {
			return fmt.Errorf("failed to insert spend delta: %w", err)
		}
	}

	return tx.Commit()
}

// SumDeltasSince returns a user's stored spend within the current billing
// cycle: deltas with activity_date on/after cycleStart and before the target
// date. This is the previous cumulative-to-date total the new vendor snapshot
// is differenced against.
func (r *SpendRepository) SumDeltasSince(ctx context.Context, userEmail string, cycleStart, before time.Time) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta_usd), 0)
		FROM ide_spend_deltas
		WHERE user_email = $1 AND activity_date >= $2 AND activity_date < $3
	`, userEmail, cycleStart, before).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum spend deltas: %w", err)
	}
	return sum, nil
}
