package anthropic

import (
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

// Wire types for the admin reporting endpoints. All three reports share the
// same envelope: day buckets, a has_more flag and an opaque next_page token.

type costReportResponse struct {
	Data     []costBucket `json:"data"`
	HasMore  bool         `json:"has_more"`
	NextPage *string      `json:"next_page"`
}

type costBucket struct {
	StartingAt string       `json:"starting_at"`
	EndingAt   string       `json:"ending_at"`
	Results    []costResult `json:"results"`
}

type costResult struct {
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amount"`
	WorkspaceID string `json:"workspace_id"`
	Model       string `json:"model"`
	TokenType   string `json:"token_type"`
	CostType    string `json:"cost_type"`
}

type usageReportResponse struct {
	Data     []usageBucket `json:"data"`
	HasMore  bool          `json:"has_more"`
	NextPage *string       `json:"next_page"`
}

type usageBucket struct {
	StartingAt string        `json:"starting_at"`
	EndingAt   string        `json:"ending_at"`
	Results    []usageResult `json:"results"`
}

type usageResult struct {
	APIKeyID    string `json:"api_key_id"`
	WorkspaceID string `json:"workspace_id"`
	Model       string `json:"model"`

	UncachedInputTokens  int64 `json:"uncached_input_tokens"`
	CachedInputTokens    int64 `json:"cached_input_tokens"`
	CacheReadInputTokens int64 `json:"cache_read_input_tokens"`
	OutputTokens         int64 `json:"output_tokens"`

	CacheCreation struct {
		Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
		Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
	} `json:"cache_creation"`

	ServerToolUse struct {
		WebSearchRequests     int64 `json:"web_search_requests"`
		CodeExecutionRequests int64 `json:"code_execution_requests"`
	} `json:"server_tool_use"`
}

type productivityReportResponse struct {
	Data     []productivityBucket `json:"data"`
	HasMore  bool                 `json:"has_more"`
	NextPage *string              `json:"next_page"`
}

type productivityBucket struct {
	StartingAt string               `json:"starting_at"`
	EndingAt   string               `json:"ending_at"`
	Results    []productivityResult `json:"results"`
}

type productivityResult struct {
	Actor        string `json:"actor"`
	TerminalType string `json:"terminal_type"`

	CoreMetrics struct {
		LinesOfCode struct {
			Added   int64 `json:"added"`
			Removed int64 `json:"removed"`
		} `json:"lines_of_code"`
		Commits      int64 `json:"commits"`
		PullRequests int64 `json:"pull_requests"`
	} `json:"core_metrics"`

	ToolActions struct {
		Accepted int64 `json:"accepted"`
		Rejected int64 `json:"rejected"`
	} `json:"tool_actions"`

	EstimatedCost struct {
		Currency    string `json:"currency"`
		AmountCents int64  `json:"amount"`
	} `json:"estimated_cost"`
}

// ProductivityRow pairs a normalized productivity record with the endpoint's
// self-reported cost estimate. The estimate is the same spend the cost report
// already covers, so it is surfaced for cross-checking only and never stored.
type ProductivityRow struct {
	Record           models.ProductivityRecord
	EstimatedCostUSD float64
}

// centsToUSD converts a vendor amount in hundredths of a currency unit to
// standard units. Skipping this conversion inflates totals by 100x, so it
// happens exactly once, here.
func centsToUSD(cents int64) float64 {
	return float64(cents) / 100.0
}

// optional trims a vendor string field, mapping "" to an absent value so
// downstream group-bys do not treat empty string and NULL as distinct.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r costResult) toRecord(date time.Time) models.CostRecord {
	return models.CostRecord{
		ActivityDate: date,
		WorkspaceID:  optional(r.WorkspaceID),
		Model:        optional(r.Model),
		TokenType:    optional(r.TokenType),
		CostType:     r.CostType,
		AmountUSD:    centsToUSD(r.AmountCents),
	}
}

func (r usageResult) toRecord(date time.Time) models.UsageRecord {
	return models.UsageRecord{
		ActivityDate:          date,
		APIKeyID:              r.APIKeyID,
		WorkspaceID:           optional(r.WorkspaceID),
		Model:                 r.Model,
		UncachedInputTokens:   r.UncachedInputTokens,
		CachedInputTokens:     r.CachedInputTokens,
		CacheReadTokens:       r.CacheReadInputTokens,
		OutputTokens:          r.OutputTokens,
		CacheCreation1hTokens: r.CacheCreation.Ephemeral1hInputTokens,
		CacheCreation5mTokens: r.CacheCreation.Ephemeral5mInputTokens,
		WebSearchRequests:     r.ServerToolUse.WebSearchRequests,
		CodeExecutionRequests: r.ServerToolUse.CodeExecutionRequests,
	}
}

func (r productivityResult) toRow(date time.Time) ProductivityRow {
	return ProductivityRow{
		Record: models.ProductivityRecord{
			ActivityDate:        date,
			Actor:               r.Actor,
			TerminalType:        r.TerminalType,
			LinesAdded:          r.CoreMetrics.LinesOfCode.Added,
			LinesRemoved:        r.CoreMetrics.LinesOfCode.Removed,
			Commits:             r.CoreMetrics.Commits,
			PullRequests:        r.CoreMetrics.PullRequests,
			SuggestionsAccepted: r.ToolActions.Accepted,
			SuggestionsRejected: r.ToolActions.Rejected,
		},
		EstimatedCostUSD: centsToUSD(r.EstimatedCost.AmountCents),
	}
}
