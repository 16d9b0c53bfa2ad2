package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// CostRepository stores cost records in the warehouse.
type CostRepository struct {
	db *sql.DB
}

// NewCostRepository creates a cost repository.
func NewCostRepository(db *sql.DB) *CostRepository {
	return &CostRepository{db: db}
}

// ReplaceForRange deletes all cost rows with activity_date in [start, end)
// and inserts the batch in the same transaction, making per-date reloads
// idempotent.
func (r *CostRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.CostRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cost_records WHERE activity_date >= $1 AND activity_date < $2`,
		start, end,
	); err != nil {
		return fmt.Errorf("failed to delete existing cost rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cost_records
			(activity_date, workspace_id, model, token_type, cost_type, amount_usd, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cost insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid cost record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ActivityDate, rec.WorkspaceID, rec.Model, rec.TokenType, rec.CostType, rec.AmountUSD,
		); err != nil {
			return fmt.Errorf("failed to insert cost record: %w", err)
		}
	}

	return tx.Commit()
}

// SumForDate returns the total cost amount for one activity date.
func (r *CostRepository) SumForDate(ctx context.Context, date time.Time) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_usd), 0) FROM cost_records WHERE activity_date = $1`,
		date,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cost for date: %w", err)
	}
	return sum, nil
}

// DuplicateKeyCount returns the number of logical-key groups that appear more
// than once for a date. Anything above zero means a page was double-ingested.
func (r *CostRepository) DuplicateKeyCount(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1
			FROM cost_records
			WHERE activity_date = $1
			GROUP BY activity_date, workspace_id, model, token_type, cost_type
			HAVING COUNT(*) > 1
		) dupes
	`, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count duplicate cost keys: %w", err)
	}
	return count, nil
}

// CountForDate returns the number of cost rows for one activity date.
func (r *CostRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cost_records WHERE activity_date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cost rows: %w", err)
	}
	return count, nil
}

// DistinctDates lists the activity dates present in [start, end), used to
// auto-detect backfill gaps.
func (r *CostRepository) DistinctDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT activity_date
		FROM cost_records
		WHERE activity_date >= $1 AND activity_date < $2
		ORDER BY activity_date
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, models.MidnightUTC(d))
	}

	return dates, rows.Err()
}
