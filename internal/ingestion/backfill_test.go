package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tokenledger/tokenledger/internal/models"
)

type scriptedIngestor struct {
	failDates map[string]bool
	calls     []time.Time
}

func (s *scriptedIngestor) IngestDate(ctx context.Context, date time.Time) (RunStats, error) {
	s.calls = append(s.calls, date)
	if s.failDates[models.FormatDate(date)] {
		return RunStats{}, errors.New("vendor api returned status 500")
	}
	return RunStats{TargetDate: date}, nil
}

func TestDriverIsolatesFailedDates(t *testing.T) {
	ctx := context.Background()
	dates := DateRange(testDate(t, "2026-08-01"), testDate(t, "2026-08-03"))

	ingestor := &scriptedIngestor{failDates: map[string]bool{"2026-08-02": true}}
	driver := NewDriver(ingestor, 0, discardLogger())

	result, err := driver.Run(ctx, dates)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(ingestor.calls) != 3 {
		t.Errorf("expected all 3 dates attempted, got %d", len(ingestor.calls))
	}
	if len(result.Succeeded) != 2 {
		t.Errorf("Succeeded = %d, want 2", len(result.Succeeded))
	}
	if len(result.Failed) != 1 || models.FormatDate(result.Failed[0]) != "2026-08-02" {
		t.Errorf("unexpected failed dates: %+v", result.Failed)
	}

	summary := result.Summary()
	if !strings.Contains(summary, "2026-08-02") || !strings.Contains(summary, "2 succeeded") {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestDriverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ingestor := &scriptedIngestor{}
	driver := NewDriver(ingestor, time.Hour, discardLogger())

	dates := DateRange(testDate(t, "2026-08-01"), testDate(t, "2026-08-05"))
	if _, err := driver.Run(ctx, dates); err == nil {
		t.Fatal("expected cancellation error")
	}
	// The first date may slip through before the limiter observes the cancel,
	// but the drive must not finish the range.
	if len(ingestor.calls) == len(dates) {
		t.Errorf("expected drive to stop early, attempted all %d dates", len(ingestor.calls))
	}
}

func TestDateRange(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{name: "single day", start: "2026-08-01", end: "2026-08-01", want: 1},
		{name: "one week", start: "2026-08-01", end: "2026-08-07", want: 7},
		{name: "month boundary", start: "2026-07-30", end: "2026-08-02", want: 4},
		{name: "inverted", start: "2026-08-07", end: "2026-08-01", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := DateRange(testDate(t, tt.start), testDate(t, tt.end))
			if len(dates) != tt.want {
				t.Errorf("DateRange(%s, %s) = %d dates, want %d", tt.start, tt.end, len(dates), tt.want)
			}
		})
	}
}

func TestMissingDates(t *testing.T) {
	ctx := context.Background()

	repo := NewMemoryCostRepository()
	repo.Insert(
		models.CostRecord{ActivityDate: testDate(t, "2026-08-01"), CostType: "tokens", AmountUSD: 1},
		models.CostRecord{ActivityDate: testDate(t, "2026-08-03"), CostType: "tokens", AmountUSD: 1},
	)

	missing, err := MissingDates(ctx, repo, testDate(t, "2026-08-01"), testDate(t, "2026-08-04"))
	if err != nil {
		t.Fatalf("MissingDates returned error: %v", err)
	}

	got := make([]string, 0, len(missing))
	for _, d := range missing {
		got = append(got, models.FormatDate(d))
	}
	want := []string{"2026-08-02", "2026-08-04"}
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("missing[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMissingDatesEmptyWarehouse(t *testing.T) {
	missing, err := MissingDates(context.Background(), NewMemoryCostRepository(),
		testDate(t, "2026-08-01"), testDate(t, "2026-08-03"))
	if err != nil {
		t.Fatalf("MissingDates returned error: %v", err)
	}
	if len(missing) != 3 {
		t.Errorf("expected all 3 dates missing, got %d", len(missing))
	}
}
