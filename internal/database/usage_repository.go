package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// UsageRepository stores per-key usage records in the warehouse.
type UsageRepository struct {
	db *sql.DB
}

// NewUsageRepository creates a usage repository.
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// ReplaceForRange deletes all usage rows with activity_date in [start, end)
// and inserts the batch in the same transaction.
func (r *UsageRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.UsageRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM usage_records WHERE activity_date >= $1 AND activity_date < $2`,
		start, end,
	); err != nil {
		return fmt.Errorf("failed to delete existing usage rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records
			(activity_date, api_key_id, workspace_id, model, surface,
			 uncached_input_tokens, cached_input_tokens, cache_read_tokens, output_tokens,
			 cache_creation_1h_tokens, cache_creation_5m_tokens,
			 web_search_requests, code_execution_requests, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid usage record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ActivityDate, rec.APIKeyID, rec.WorkspaceID, rec.Model, rec.Surface,
			rec.UncachedInputTokens, rec.CachedInputTokens, rec.CacheReadTokens, rec.OutputTokens,
			rec.CacheCreation1hTokens, rec.CacheCreation5mTokens,
			rec.WebSearchRequests, rec.CodeExecutionRequests,
		); err != nil {
			return fmt.Errorf("failed to insert usage record: %w", err)
		}
	}

	return tx.Commit()
}

// CountForDate returns the number of usage rows for one activity date.
func (r *UsageRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE activity_date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage rows: %w", err)
	}
	return count, nil
}
