package models

import (
	"fmt"
	"time"
)

// ProductivityRecord is one row of the productivity table: editor-activity
// counters per (activity date, actor, terminal type). It must never carry
// cost or token fields; the vendor's productivity endpoint reports the same
// estimated spend as the cost report, and storing both would double-count.
type ProductivityRecord struct {
	ActivityDate time.Time `json:"activity_date"`
	Actor        string    `json:"actor"`
	TerminalType string    `json:"terminal_type"`

	LinesAdded   int64 `json:"lines_added"`
	LinesRemoved int64 `json:"lines_removed"`
	Commits      int64 `json:"commits"`
	PullRequests int64 `json:"pull_requests"`

	SuggestionsAccepted int64 `json:"suggestions_accepted"`
	SuggestionsRejected int64 `json:"suggestions_rejected"`
}

// Validate checks structural invariants before load.
func (r ProductivityRecord) Validate() error {
	if r.ActivityDate.IsZero() {
		return fmt.Errorf("productivity record missing activity date")
	}
	if r.Actor == "" {
		return fmt.Errorf("productivity record missing actor")
	}
	return nil
}
