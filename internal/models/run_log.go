package models

import "time"

// RunStatus represents the outcome of a per-date ingestion run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunLog records one per-date ingestion attempt for auditing, gap detection
// and the server's run-status API.
type RunLog struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	TargetDate time.Time `json:"target_date"`
	Status     RunStatus `json:"status"`

	CostRows         int `json:"cost_rows"`
	UsageRows        int `json:"usage_rows"`
	ProductivityRows int `json:"productivity_rows"`
	SpendRows        int `json:"spend_rows"`

	DurationMs *int    `json:"duration_ms,omitempty"`
	Error      *string `json:"error,omitempty"`
}
