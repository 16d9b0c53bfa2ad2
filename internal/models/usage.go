package models

import (
	"fmt"
	"time"
)

// Surface identifies which product surface generated a usage row.
type Surface string

const (
	// SurfaceCode marks usage from the code-assistant product.
	SurfaceCode Surface = "code"
	// SurfaceAPI is the default classification for direct API usage.
	SurfaceAPI Surface = "api"
)

// UsageRecord is one row of the per-key usage table: token counts for an
// (activity date, API key, workspace, model) group. It deliberately carries
// no cost fields; costs are stored only as CostRecord rows.
type UsageRecord struct {
	ActivityDate time.Time `json:"activity_date"`
	APIKeyID     string    `json:"api_key_id"`
	WorkspaceID  *string   `json:"workspace_id,omitempty"`
	Model        string    `json:"model"`
	Surface      Surface   `json:"surface"`

	UncachedInputTokens int64 `json:"uncached_input_tokens"`
	CachedInputTokens   int64 `json:"cached_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	OutputTokens        int64 `json:"output_tokens"`

	// Flattened cache-creation breakdown.
	CacheCreation1hTokens int64 `json:"cache_creation_1h_tokens"`
	CacheCreation5mTokens int64 `json:"cache_creation_5m_tokens"`

	// Flattened server-tool-use breakdown.
	WebSearchRequests     int64 `json:"web_search_requests"`
	CodeExecutionRequests int64 `json:"code_execution_requests"`
}

// TotalTokens sums all token counters for reporting.
func (r UsageRecord) TotalTokens() int64 {
	return r.UncachedInputTokens + r.CachedInputTokens + r.CacheReadTokens +
		r.OutputTokens + r.CacheCreation1hTokens + r.CacheCreation5mTokens
}

// Validate checks structural invariants before load.
func (r UsageRecord) Validate() error {
	if r.ActivityDate.IsZero() {
		return fmt.Errorf("usage record missing activity date")
	}
	if r.APIKeyID == "" {
		return fmt.Errorf("usage record missing api key id")
	}
	if r.Surface == "" {
		return fmt.Errorf("usage record missing surface classification")
	}
	return nil
}
