package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tokenledger/tokenledger/internal/models"
)

// RunLogRepository stores per-date ingestion run outcomes.
type RunLogRepository struct {
	db *sql.DB
}

// NewRunLogRepository creates a run log repository.
func NewRunLogRepository(db *sql.DB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

// Log stores a new run log entry.
func (r *RunLogRepository) Log(ctx context.Context, log models.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs
			(id, started_at, target_date, status,
			 cost_rows, usage_rows, productivity_rows, spend_rows,
			 duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		log.ID, log.StartedAt, log.TargetDate, log.Status,
		log.CostRows, log.UsageRows, log.ProductivityRows, log.SpendRows,
		log.DurationMs, log.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

// HasSucceeded reports whether any run for the target date succeeded. The
// daily scheduler uses this to avoid re-ingesting a date it already covered.
func (r *RunLogRepository) HasSucceeded(ctx context.Context, targetDate time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ingest_runs WHERE target_date = $1 AND status = $2
		)
	`, targetDate, models.RunStatusSucceeded).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check run status: %w", err)
	}
	return exists, nil
}

// ListRecent retrieves the most recent run logs.
func (r *RunLogRepository) ListRecent(ctx context.Context, limit int) ([]models.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, target_date, status,
		       cost_rows, usage_rows, productivity_rows, spend_rows,
		       duration_ms, error
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer rows.Close()

	logs := []models.RunLog{}
	for rows.Next() {
		var log models.RunLog
		if err := rows.Scan(
			&log.ID, &log.StartedAt, &log.TargetDate, &log.Status,
			&log.CostRows, &log.UsageRows, &log.ProductivityRows, &log.SpendRows,
			&log.DurationMs, &log.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
