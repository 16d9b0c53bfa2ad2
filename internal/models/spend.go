package models

import (
	"fmt"
	"time"
)

// SpendDelta is one row of the IDE vendor's daily spend table. The vendor only
// exposes a cumulative-to-date total per billing cycle, so each row stores the
// derived per-day increment. DeltaUSD is never negative: vendor-side
// corrections are clamped to zero at computation time.
type SpendDelta struct {
	ActivityDate time.Time `json:"activity_date"`
	UserEmail    string    `json:"user_email"`
	DeltaUSD     float64   `json:"delta_usd"`
	CycleStart   time.Time `json:"cycle_start"`
}

// Validate checks structural invariants before load.
func (d SpendDelta) Validate() error {
	if d.ActivityDate.IsZero() {
		return fmt.Errorf("spend delta missing activity date")
	}
	if d.UserEmail == "" {
		return fmt.Errorf("spend delta missing user email")
	}
	if d.DeltaUSD < 0 {
		return fmt.Errorf("spend delta is negative (%.4f); deltas must be clamped before storage", d.DeltaUSD)
	}
	return nil
}
