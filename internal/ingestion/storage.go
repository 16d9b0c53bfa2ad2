package ingestion

import (
	"context"
	"sort"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// CostRepository stores cost records keyed by activity date.
type CostRepository interface {
	// ReplaceForRange atomically replaces all rows with activity_date in
	// [start, end) with the given batch.
	ReplaceForRange(ctx context.Context, start, end time.Time, records []models.CostRecord) error

	// SumForDate returns the total cost amount for one activity date.
	SumForDate(ctx context.Context, date time.Time) (float64, error)

	// DuplicateKeyCount counts logical-key groups appearing more than once.
	DuplicateKeyCount(ctx context.Context, date time.Time) (int, error)

	// CountForDate returns the number of rows for one activity date.
	CountForDate(ctx context.Context, date time.Time) (int, error)

	// DistinctDates lists activity dates present in [start, end).
	DistinctDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// UsageRepository stores per-key usage records.
type UsageRepository interface {
	ReplaceForRange(ctx context.Context, start, end time.Time, records []models.UsageRecord) error
	CountForDate(ctx context.Context, date time.Time) (int, error)
}

// ProductivityRepository stores editor-activity records.
type ProductivityRepository interface {
	ReplaceForRange(ctx context.Context, start, end time.Time, records []models.ProductivityRecord) error

	// ColumnNames lists the destination table's columns for the schema guard.
	ColumnNames(ctx context.Context) ([]string, error)

	CountForDate(ctx context.Context, date time.Time) (int, error)
}

// SpendRepository stores derived IDE daily spend deltas.
type SpendRepository interface {
	ReplaceForDate(ctx context.Context, date time.Time, deltas []models.SpendDelta) error

	// SumDeltasSince sums a user's stored deltas with activity_date in
	// [cycleStart, before).
	SumDeltasSince(ctx context.Context, userEmail string, cycleStart, before time.Time) (float64, error)
}

// RunLogRepository records per-date run outcomes.
type RunLogRepository interface {
	Log(ctx context.Context, log models.RunLog) error
	HasSucceeded(ctx context.Context, targetDate time.Time) (bool, error)
}

// MemoryCostRepository implements an in-memory cost repository for testing.
type MemoryCostRepository struct {
	records []models.CostRecord
}

// NewMemoryCostRepository creates a new in-memory cost repository.
func NewMemoryCostRepository() *MemoryCostRepository {
	return &MemoryCostRepository{}
}

func (r *MemoryCostRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.CostRecord) error {
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.ActivityDate.Before(start) || !rec.ActivityDate.Before(end) {
			kept = append(kept, rec)
		}
	}
	r.records = append(kept, records...)
	return nil
}

func (r *MemoryCostRepository) SumForDate(ctx context.Context, date time.Time) (float64, error) {
	var sum float64
	for _, rec := range r.records {
		if rec.ActivityDate.Equal(date) {
			sum += rec.AmountUSD
		}
	}
	return sum, nil
}

func (r *MemoryCostRepository) DuplicateKeyCount(ctx context.Context, date time.Time) (int, error) {
	counts := make(map[string]int)
	for _, rec := range r.records {
		if rec.ActivityDate.Equal(date) {
			counts[rec.Key()]++
		}
	}

	dupes := 0
	for _, n := range counts {
		if n > 1 {
			dupes++
		}
	}
	return dupes, nil
}

func (r *MemoryCostRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	count := 0
	for _, rec := range r.records {
		if rec.ActivityDate.Equal(date) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryCostRepository) DistinctDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	for _, rec := range r.records {
		if !rec.ActivityDate.Before(start) && rec.ActivityDate.Before(end) {
			seen[rec.ActivityDate] = true
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Insert appends records without deleting, bypassing the idempotent replace.
// Tests use it to simulate double-ingestion bugs.
func (r *MemoryCostRepository) Insert(records ...models.CostRecord) {
	r.records = append(r.records, records...)
}

// MemoryUsageRepository implements an in-memory usage repository for testing.
type MemoryUsageRepository struct {
	records []models.UsageRecord
}

// NewMemoryUsageRepository creates a new in-memory usage repository.
func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

func (r *MemoryUsageRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.UsageRecord) error {
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.ActivityDate.Before(start) || !rec.ActivityDate.Before(end) {
			kept = append(kept, rec)
		}
	}
	r.records = append(kept, records...)
	return nil
}

func (r *MemoryUsageRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	count := 0
	for _, rec := range r.records {
		if rec.ActivityDate.Equal(date) {
			count++
		}
	}
	return count, nil
}

// Records exposes stored rows for assertions.
func (r *MemoryUsageRepository) Records() []models.UsageRecord {
	return r.records
}

// MemoryProductivityRepository implements an in-memory productivity
// repository for testing. Its column list mirrors the real table schema.
type MemoryProductivityRepository struct {
	records []models.ProductivityRecord
	columns []string
}

// NewMemoryProductivityRepository creates a new in-memory productivity repository.
func NewMemoryProductivityRepository() *MemoryProductivityRepository {
	return &MemoryProductivityRepository{
		columns: []string{
			"id", "activity_date", "actor", "terminal_type",
			"lines_added", "lines_removed", "commits", "pull_requests",
			"suggestions_accepted", "suggestions_rejected", "ingested_at",
		},
	}
}

func (r *MemoryProductivityRepository) ReplaceForRange(ctx context.Context, start, end time.Time, records []models.ProductivityRecord) error {
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.ActivityDate.Before(start) || !rec.ActivityDate.Before(end) {
			kept = append(kept, rec)
		}
	}
	r.records = append(kept, records...)
	return nil
}

func (r *MemoryProductivityRepository) ColumnNames(ctx context.Context) ([]string, error) {
	return r.columns, nil
}

func (r *MemoryProductivityRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	count := 0
	for _, rec := range r.records {
		if rec.ActivityDate.Equal(date) {
			count++
		}
	}
	return count, nil
}

// SetColumns overrides the simulated schema; tests use it to model drift.
func (r *MemoryProductivityRepository) SetColumns(columns []string) {
	r.columns = columns
}

// Records exposes stored rows for assertions.
func (r *MemoryProductivityRepository) Records() []models.ProductivityRecord {
	return r.records
}

// MemorySpendRepository implements an in-memory spend repository for testing.
type MemorySpendRepository struct {
	deltas []models.SpendDelta
}

// NewMemorySpendRepository creates a new in-memory spend repository.
func NewMemorySpendRepository() *MemorySpendRepository {
	return &MemorySpendRepository{}
}

func (r *MemorySpendRepository) ReplaceForDate(ctx context.Context, date time.Time, deltas []models.SpendDelta) error {
	kept := r.deltas[:0]
	for _, d := range r.deltas {
		if !d.ActivityDate.Equal(date) {
			kept = append(kept, d)
		}
	}
	r.deltas = append(kept, deltas...)
	return nil
}

func (r *MemorySpendRepository) SumDeltasSince(ctx context.Context, userEmail string, cycleStart, before time.Time) (float64, error) {
	var sum float64
	for _, d := range r.deltas {
		if d.UserEmail == userEmail && !d.ActivityDate.Before(cycleStart) && d.ActivityDate.Before(before) {
			sum += d.DeltaUSD
		}
	}
	return sum, nil
}

// Deltas exposes stored rows for assertions.
func (r *MemorySpendRepository) Deltas() []models.SpendDelta {
	return r.deltas
}

// MemoryRunLogRepository implements an in-memory run log for testing.
type MemoryRunLogRepository struct {
	logs []models.RunLog
}

// NewMemoryRunLogRepository creates a new in-memory run log repository.
func NewMemoryRunLogRepository() *MemoryRunLogRepository {
	return &MemoryRunLogRepository{}
}

func (r *MemoryRunLogRepository) Log(ctx context.Context, log models.RunLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryRunLogRepository) HasSucceeded(ctx context.Context, targetDate time.Time) (bool, error) {
	for _, log := range r.logs {
		if log.TargetDate.Equal(targetDate) && log.Status == models.RunStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// Logs exposes stored entries for assertions.
func (r *MemoryRunLogRepository) Logs() []models.RunLog {
	return r.logs
}
