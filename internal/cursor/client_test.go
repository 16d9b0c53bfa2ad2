package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tokenledger/tokenledger/internal/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "key_test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.policy = retry.Policy{
		MaxRetries:         3,
		RateLimitBackoff:   time.Millisecond,
		ServerErrorBackoff: time.Millisecond,
		BackoffFactor:      2.0,
	}
	return c
}

func TestDailyUsageSendsEpochMillis(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != "key_test" {
			t.Errorf("expected basic auth with api key as username")
		}

		var req dailyUsageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.StartDate != start.UnixMilli() || req.EndDate != end.UnixMilli() {
			t.Errorf("expected epoch-millis bounds, got %d/%d", req.StartDate, req.EndDate)
		}

		fmt.Fprintf(w, `{"data":[{
			"date": %d,
			"email": "dev@example.com",
			"isActive": true,
			"totalLinesAdded": 450,
			"totalLinesDeleted": 120,
			"totalAccepts": 30,
			"totalRejects": 5,
			"composerRequests": 12,
			"chatRequests": 8,
			"agentRequests": 2
		}]}`, start.UnixMilli())
	})

	rows, err := client.DailyUsage(context.Background(), start, end)
	if err != nil {
		t.Fatalf("DailyUsage returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if !row.Date.Equal(start) {
		t.Errorf("expected date %v, got %v", start, row.Date)
	}
	if row.Requests() != 22 {
		t.Errorf("Requests() = %d, want 22", row.Requests())
	}
	if row.SuggestionsAccepted != 30 || row.SuggestionsRejected != 5 {
		t.Errorf("unexpected suggestion counters: %+v", row)
	}
}

func TestSpendConvertsCentsToDollars(t *testing.T) {
	cycleStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"teamMemberSpend": [
				{"email": "dev@example.com", "spendCents": 4000},
				{"email": "lead@example.com", "spendCents": 12345}
			],
			"subscriptionCycleStart": %d
		}`, cycleStart.UnixMilli())
	})

	spend, err := client.Spend(context.Background())
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}

	if !spend.CycleStart.Equal(cycleStart) {
		t.Errorf("expected cycle start %v, got %v", cycleStart, spend.CycleStart)
	}
	if len(spend.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(spend.Members))
	}
	if spend.Members[0].CumulativeUSD != 40.00 {
		t.Errorf("expected 40.00, got %v", spend.Members[0].CumulativeUSD)
	}
	if spend.Members[1].CumulativeUSD != 123.45 {
		t.Errorf("expected 123.45, got %v", spend.Members[1].CumulativeUSD)
	}
}

func TestSpendRetriesThenFails(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Spend(context.Background())
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if requests != 4 {
		t.Errorf("expected 4 attempts, got %d", requests)
	}
}

func TestDailyUsageDoesNotRetryUnauthorized(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.DailyUsage(context.Background(), start, start.AddDate(0, 0, 1))
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if requests != 1 {
		t.Errorf("expected no retries on 401, got %d requests", requests)
	}
}
