package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// ProductivityRepository stores editor-activity records in the warehouse.
type ProductivityRepository struct {
	db *sql.DB
}

// NewProductivityRepository creates a productivity repository.
func NewProductivityRepository(db *sql.DB) *ProductivityRepository {
	return &ProductivityRepository{db: db}
}

// ReplaceForRange deletes all productivity rows with activity_date in
// [start, end) and inserts the batch in the same transaction.
func (r *ProductivityRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.ProductivityRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM productivity_records WHERE activity_date >= $1 AND activity_date < $2`,
		start, end,
	); err != nil {
		return fmt.Errorf("failed to delete existing productivity rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO productivity_records
			(activity_date, actor, terminal_type,
			 lines_added, lines_removed, commits, pull_requests,
			 suggestions_accepted, suggestions_rejected, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare productivity insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid productivity record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ActivityDate, rec.Actor, rec.TerminalType,
			rec.LinesAdded, rec.LinesRemoved, rec.Commits, rec.PullRequests,
			rec.SuggestionsAccepted, rec.SuggestionsRejected,
		); err != nil {
			return fmt.Errorf("failed to insert productivity record: %w", err)
		}
	}

	return tx.Commit()
}

// ColumnNames lists the productivity table's columns from the catalog. The
// post-load validation uses this to prove the table carries no cost-bearing
// column.
func (r *ProductivityRepository) ColumnNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = 'productivity_records'
		ORDER BY ordinal_position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query productivity columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}

	return columns, rows.Err()
}

// CountForDate returns the number of productivity rows for one activity date.
func (r *ProductivityRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM productivity_records WHERE activity_date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count productivity rows: %w", err)
	}
	return count, nil
}
