package ingestion

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/tokenledger/tokenledger/internal/cursor"
	"github.com/tokenledger/tokenledger/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComputeSpendDeltasFirstDayOfCycle(t *testing.T) {
	ctx := context.Background()
	cycleStart := testDate(t, "2026-08-01")
	date := testDate(t, "2026-08-01")

	spend := cursor.TeamSpend{
		CycleStart: cycleStart,
		Members: []cursor.MemberSpend{
			{Email: "a@example.com", CumulativeUSD: 12.50},
			{Email: "b@example.com", CumulativeUSD: 0},
		},
	}

	deltas, err := ComputeSpendDeltas(ctx, NewMemorySpendRepository(), spend, date, discardLogger())
	if err != nil {
		t.Fatalf("ComputeSpendDeltas returned error: %v", err)
	}

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if deltas[0].DeltaUSD != 12.50 {
		t.Errorf("first-day delta = %.4f, want 12.50", deltas[0].DeltaUSD)
	}
	if deltas[1].DeltaUSD != 0 {
		t.Errorf("zero-spend delta = %.4f, want 0", deltas[1].DeltaUSD)
	}
}

func TestComputeSpendDeltasDifferencesPriorDays(t *testing.T) {
	ctx := context.Background()
	cycleStart := testDate(t, "2026-08-01")

	repo := NewMemorySpendRepository()
	if err := repo.ReplaceForDate(ctx, testDate(t, "2026-08-01"), []models.SpendDelta{
		{ActivityDate: testDate(t, "2026-08-01"), UserEmail: "a@example.com", DeltaUSD: 10, CycleStart: cycleStart},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := repo.ReplaceForDate(ctx, testDate(t, "2026-08-02"), []models.SpendDelta{
		{ActivityDate: testDate(t, "2026-08-02"), UserEmail: "a@example.com", DeltaUSD: 15, CycleStart: cycleStart},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	spend := cursor.TeamSpend{
		CycleStart: cycleStart,
		Members:    []cursor.MemberSpend{{Email: "a@example.com", CumulativeUSD: 40}},
	}

	deltas, err := ComputeSpendDeltas(ctx, repo, spend, testDate(t, "2026-08-03"), discardLogger())
	if err != nil {
		t.Fatalf("ComputeSpendDeltas returned error: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	// 40 cumulative minus 25 already attributed to earlier days.
	if deltas[0].DeltaUSD != 15 {
		t.Errorf("delta = %.4f, want 15", deltas[0].DeltaUSD)
	}
}

func TestComputeSpendDeltasClampsNegatives(t *testing.T) {
	ctx := context.Background()
	cycleStart := testDate(t, "2026-08-01")

	tests := []struct {
		name       string
		prior      float64
		cumulative float64
	}{
		{name: "rounding jitter within tolerance", prior: 40.00, cumulative: 39.995},
		{name: "vendor correction beyond tolerance", prior: 40.00, cumulative: 30.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemorySpendRepository()
			if err := repo.ReplaceForDate(ctx, testDate(t, "2026-08-01"), []models.SpendDelta{
				{ActivityDate: testDate(t, "2026-08-01"), UserEmail: "a@example.com", DeltaUSD: tt.prior, CycleStart: cycleStart},
			}); err != nil {
				t.Fatalf("seed failed: %v", err)
			}

			spend := cursor.TeamSpend{
				CycleStart: cycleStart,
				Members:    []cursor.MemberSpend{{Email: "a@example.com", CumulativeUSD: tt.cumulative}},
			}

			deltas, err := ComputeSpendDeltas(ctx, repo, spend, testDate(t, "2026-08-02"), discardLogger())
			if err != nil {
				t.Fatalf("ComputeSpendDeltas returned error: %v", err)
			}
			if deltas[0].DeltaUSD != 0 {
				t.Errorf("delta = %.4f, want clamped 0", deltas[0].DeltaUSD)
			}
			if err := deltas[0].Validate(); err != nil {
				t.Errorf("clamped delta failed validation: %v", err)
			}
		})
	}
}

func TestComputeSpendDeltasIgnoresOtherUsersAndCycles(t *testing.T) {
	ctx := context.Background()
	cycleStart := testDate(t, "2026-08-01")

	repo := NewMemorySpendRepository()
	// Another user's spend and a prior cycle's rows must not leak in.
	if err := repo.ReplaceForDate(ctx, testDate(t, "2026-07-28"), []models.SpendDelta{
		{ActivityDate: testDate(t, "2026-07-28"), UserEmail: "a@example.com", DeltaUSD: 99, CycleStart: testDate(t, "2026-07-01")},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := repo.ReplaceForDate(ctx, testDate(t, "2026-08-01"), []models.SpendDelta{
		{ActivityDate: testDate(t, "2026-08-01"), UserEmail: "b@example.com", DeltaUSD: 50, CycleStart: cycleStart},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	spend := cursor.TeamSpend{
		CycleStart: cycleStart,
		Members:    []cursor.MemberSpend{{Email: "a@example.com", CumulativeUSD: 7.25}},
	}

	deltas, err := ComputeSpendDeltas(ctx, repo, spend, testDate(t, "2026-08-02"), discardLogger())
	if err != nil {
		t.Fatalf("ComputeSpendDeltas returned error: %v", err)
	}
	if math.Abs(deltas[0].DeltaUSD-7.25) > 1e-9 {
		t.Errorf("delta = %.4f, want 7.25", deltas[0].DeltaUSD)
	}
}
