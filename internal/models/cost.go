package models

import (
	"fmt"
	"strings"
	"time"
)

// CostRecord is one row of the cost table: a dollar amount attributed to an
// activity date, optionally broken down by workspace, model and token type.
// Cost lives only here; the usage and productivity tables never carry amounts,
// so summing tables together cannot double-count spend.
type CostRecord struct {
	ActivityDate time.Time `json:"activity_date"`
	WorkspaceID  *string   `json:"workspace_id,omitempty"`
	Model        *string   `json:"model,omitempty"`
	TokenType    *string   `json:"token_type,omitempty"`
	CostType     string    `json:"cost_type"`
	AmountUSD    float64   `json:"amount_usd"`
}

// Key returns the logical uniqueness key for duplicate detection.
func (r CostRecord) Key() string {
	return strings.Join([]string{
		FormatDate(r.ActivityDate),
		deref(r.WorkspaceID),
		deref(r.Model),
		deref(r.TokenType),
		r.CostType,
	}, "|")
}

// Validate checks structural invariants before load.
func (r CostRecord) Validate() error {
	if r.ActivityDate.IsZero() {
		return fmt.Errorf("cost record missing activity date")
	}
	if r.CostType == "" {
		return fmt.Errorf("cost record missing cost type")
	}
	if r.AmountUSD < 0 {
		return fmt.Errorf("cost record has negative amount %.4f", r.AmountUSD)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
