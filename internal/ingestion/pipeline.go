// Package ingestion orchestrates the per-date ETL run: fetch the vendors'
// reports, normalize and classify, load into the warehouse idempotently, then
// validate what landed. Cost, token usage and editor activity stay in
// separate tables so spend can never be counted twice.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenledger/tokenledger/internal/anthropic"
	"github.com/tokenledger/tokenledger/internal/classify"
	"github.com/tokenledger/tokenledger/internal/cursor"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/models"
)

// Grouping dimensions requested from the reporting API. Cost rows key on the
// full spend breakdown; usage rows key on the caller identity.
var (
	costGroupBy  = []string{"workspace_id", "model", "token_type", "cost_type"}
	usageGroupBy = []string{"api_key_id", "workspace_id", "model"}
)

// ReportClient fetches the model vendor's admin reports for a date range.
// End is exclusive; implementations handle pagination internally.
type ReportClient interface {
	CostReport(ctx context.Context, start, end time.Time, groupBy []string) ([]models.CostRecord, error)
	UsageReport(ctx context.Context, start, end time.Time, groupBy []string) ([]models.UsageRecord, error)
	ProductivityReport(ctx context.Context, start, end time.Time) ([]anthropic.ProductivityRow, error)
}

// IDEClient fetches the IDE vendor's per-user usage events and the
// current-cycle cumulative spend snapshot.
type IDEClient interface {
	DailyUsage(ctx context.Context, start, end time.Time) ([]cursor.DailyUsageRow, error)
	Spend(ctx context.Context) (cursor.TeamSpend, error)
}

// ideTerminalType tags editor-activity rows sourced from the IDE vendor so
// they stay distinguishable from the model vendor's terminal reports.
const ideTerminalType = "cursor"

// RunStats accumulates row counts across one per-date run. It is threaded
// explicitly through the pipeline and returned, never kept as shared state.
type RunStats struct {
	TargetDate       time.Time
	CostRows         int
	UsageRows        int
	ProductivityRows int
	SpendRows        int
	ClampedDeltas    int

	// EstimatedIDECostUSD is requests times the configured flat price. The
	// vendor's pricing is unverified, so this is logged and never stored.
	EstimatedIDECostUSD float64
}

// Config holds pipeline tunables.
type Config struct {
	// DailyCostCeilingUSD aborts a run whose daily cost sum exceeds it.
	DailyCostCeilingUSD float64
	// IDEPerRequestUSD is the optional flat per-request price for the logged
	// cost estimate; 0 disables it.
	IDEPerRequestUSD float64
}

// Pipeline runs per-date ingestion against both vendors.
type Pipeline struct {
	reports      ReportClient
	ide          IDEClient
	costs        CostRepository
	usage        UsageRepository
	productivity ProductivityRepository
	spend        SpendRepository
	runs         RunLogRepository
	classifier   *classify.Classifier
	collector    *metrics.Collector
	config       Config
	logger       *slog.Logger
}

// NewPipeline wires a pipeline. The metrics collector may be nil (the CLI
// runs without a scrape endpoint).
func NewPipeline(
	reports ReportClient,
	ide IDEClient,
	costs CostRepository,
	usage UsageRepository,
	productivity ProductivityRepository,
	spend SpendRepository,
	runs RunLogRepository,
	classifier *classify.Classifier,
	collector *metrics.Collector,
	config Config,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		reports:      reports,
		ide:          ide,
		costs:        costs,
		usage:        usage,
		productivity: productivity,
		spend:        spend,
		runs:         runs,
		classifier:   classifier,
		collector:    collector,
		config:       config,
		logger:       logger,
	}
}

// IngestDate runs the full pipeline for one activity date and records the
// outcome in the run log. The reporting APIs treat the end boundary as
// exclusive, so the fetch window is [date, date+1d).
func (p *Pipeline) IngestDate(ctx context.Context, date time.Time) (RunStats, error) {
	date = models.MidnightUTC(date)
	startedAt := time.Now()

	stats, err := p.ingest(ctx, date)
	stats.TargetDate = date

	duration := time.Since(startedAt)
	durationMs := int(duration.Milliseconds())

	log := models.RunLog{
		StartedAt:        startedAt,
		TargetDate:       date,
		Status:           models.RunStatusSucceeded,
		CostRows:         stats.CostRows,
		UsageRows:        stats.UsageRows,
		ProductivityRows: stats.ProductivityRows,
		SpendRows:        stats.SpendRows,
		DurationMs:       &durationMs,
	}
	if err != nil {
		log.Status = models.RunStatusFailed
		msg := err.Error()
		log.Error = &msg
	}

	if p.collector != nil {
		p.collector.RecordRun(string(log.Status), duration)
	}

	if logErr := p.runs.Log(ctx, log); logErr != nil {
		p.logger.Error("failed to record run log", "date", models.FormatDate(date), "error", logErr)
		if err == nil {
			err = logErr
		}
	}

	if err != nil {
		p.logger.Error("ingestion run failed",
			"date", models.FormatDate(date),
			"duration_ms", durationMs,
			"error", err,
		)
		return stats, fmt.Errorf("ingest %s: %w", models.FormatDate(date), err)
	}

	p.logger.Info("ingestion run succeeded",
		"date", models.FormatDate(date),
		"duration_ms", durationMs,
		"cost_rows", stats.CostRows,
		"usage_rows", stats.UsageRows,
		"productivity_rows", stats.ProductivityRows,
		"spend_rows", stats.SpendRows,
	)
	return stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, date time.Time) (RunStats, error) {
	var stats RunStats
	start, end := date, date.AddDate(0, 0, 1)

	costRecords, err := p.reports.CostReport(ctx, start, end, costGroupBy)
	if err != nil {
		return stats, fmt.Errorf("cost report: %w", err)
	}

	usageRecords, err := p.reports.UsageReport(ctx, start, end, usageGroupBy)
	if err != nil {
		return stats, fmt.Errorf("usage report: %w", err)
	}
	for i := range usageRecords {
		usageRecords[i].Surface = p.classifier.Classify(usageRecords[i].APIKeyID, usageRecords[i].WorkspaceID)
	}

	prodRows, err := p.reports.ProductivityReport(ctx, start, end)
	if err != nil {
		return stats, fmt.Errorf("productivity report: %w", err)
	}

	prodRecords := make([]models.ProductivityRecord, 0, len(prodRows))
	var estimatedCostUSD float64
	for _, row := range prodRows {
		prodRecords = append(prodRecords, row.Record)
		estimatedCostUSD += row.EstimatedCostUSD
	}

	ideRows, err := p.ide.DailyUsage(ctx, start, end)
	if err != nil {
		return stats, fmt.Errorf("ide daily usage: %w", err)
	}
	var ideRequests int64
	for _, row := range ideRows {
		if !row.IsActive {
			continue
		}
		ideRequests += row.Requests()
		prodRecords = append(prodRecords, models.ProductivityRecord{
			ActivityDate:        row.Date,
			Actor:               row.Email,
			TerminalType:        ideTerminalType,
			LinesAdded:          row.LinesAdded,
			LinesRemoved:        row.LinesDeleted,
			SuggestionsAccepted: row.SuggestionsAccepted,
			SuggestionsRejected: row.SuggestionsRejected,
		})
	}

	if err := p.costs.ReplaceForRange(ctx, start, end, costRecords); err != nil {
		return stats, fmt.Errorf("load cost: %w", err)
	}
	stats.CostRows = len(costRecords)

	if err := ValidateCostLoad(ctx, p.costs, date, p.config.DailyCostCeilingUSD); err != nil {
		return stats, fmt.Errorf("cost validation: %w", err)
	}

	if err := p.usage.ReplaceForRange(ctx, start, end, usageRecords); err != nil {
		return stats, fmt.Errorf("load usage: %w", err)
	}
	stats.UsageRows = len(usageRecords)

	if err := p.productivity.ReplaceForRange(ctx, start, end, prodRecords); err != nil {
		return stats, fmt.Errorf("load productivity: %w", err)
	}
	stats.ProductivityRows = len(prodRecords)

	if err := ValidateProductivitySchema(ctx, p.productivity); err != nil {
		return stats, fmt.Errorf("productivity validation: %w", err)
	}

	costSum, err := p.costs.SumForDate(ctx, date)
	if err != nil {
		return stats, fmt.Errorf("failed to read back cost sum: %w", err)
	}
	// The terminal's self-reported estimate should stay inside the billed
	// total; the inverse usually means the cost report lagged the activity.
	if estimatedCostUSD > costSum {
		p.logger.Warn("terminal cost estimate exceeds billed cost",
			"date", models.FormatDate(date),
			"estimated_usd", estimatedCostUSD,
			"billed_usd", costSum,
		)
	}

	if p.config.IDEPerRequestUSD > 0 && ideRequests > 0 {
		stats.EstimatedIDECostUSD = float64(ideRequests) * p.config.IDEPerRequestUSD
		p.logger.Info("ide request cost estimate (not stored)",
			"date", models.FormatDate(date),
			"requests", ideRequests,
			"estimated_usd", stats.EstimatedIDECostUSD,
		)
	}

	spendRows, err := p.ingestSpend(ctx, date)
	if err != nil {
		return stats, err
	}
	stats.SpendRows = spendRows

	if p.collector != nil {
		p.collector.AddRowsLoaded("cost_records", stats.CostRows)
		p.collector.AddRowsLoaded("usage_records", stats.UsageRows)
		p.collector.AddRowsLoaded("productivity_records", stats.ProductivityRows)
		p.collector.AddRowsLoaded("ide_spend_deltas", stats.SpendRows)
	}

	return stats, nil
}

// ingestSpend differences the cumulative spend snapshot into a daily row per
// member. The endpoint only covers the current billing cycle, so dates before
// the cycle start (old backfills) are skipped rather than given bogus deltas.
func (p *Pipeline) ingestSpend(ctx context.Context, date time.Time) (int, error) {
	spend, err := p.ide.Spend(ctx)
	if err != nil {
		return 0, fmt.Errorf("ide spend: %w", err)
	}

	if date.Before(spend.CycleStart) {
		p.logger.Info("target date predates current billing cycle, skipping spend deltas",
			"date", models.FormatDate(date),
			"cycle_start", models.FormatDate(spend.CycleStart),
		)
		return 0, nil
	}

	deltas, err := ComputeSpendDeltas(ctx, p.spend, spend, date, p.logger)
	if err != nil {
		return 0, fmt.Errorf("compute spend deltas: %w", err)
	}

	if err := p.spend.ReplaceForDate(ctx, date, deltas); err != nil {
		return 0, fmt.Errorf("load spend deltas: %w", err)
	}
	return len(deltas), nil
}
