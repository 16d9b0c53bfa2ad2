package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tokenledger/tokenledger/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:         3,
		RateLimitBackoff:   time.Millisecond,
		ServerErrorBackoff: time.Millisecond,
		BackoffFactor:      2.0,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "sk-ant-admin-test", testLogger())
	c.policy = fastPolicy()
	return c
}

func day(s string) string { return s + "T00:00:00Z" }

func TestCostReportMergesAllPages(t *testing.T) {
	pages := map[string]costReportResponse{
		"": {
			Data: []costBucket{{
				StartingAt: day("2026-08-01"),
				Results: []costResult{
					{Currency: "USD", AmountCents: 150000, WorkspaceID: "wrkspc_a", Model: "claude-sonnet-4", TokenType: "input", CostType: "tokens"},
					{Currency: "USD", AmountCents: 2500, WorkspaceID: "wrkspc_a", Model: "claude-sonnet-4", TokenType: "output", CostType: "tokens"},
				},
			}},
			HasMore:  true,
			NextPage: strPtr("page_2"),
		},
		"page_2": {
			Data: []costBucket{{
				StartingAt: day("2026-08-01"),
				Results: []costResult{
					{Currency: "USD", AmountCents: 900, WorkspaceID: "", Model: "", TokenType: "", CostType: "web_search"},
				},
			}},
			HasMore:  true,
			NextPage: strPtr("page_3"),
		},
		"page_3": {
			Data: []costBucket{{
				StartingAt: day("2026-08-02"),
				Results: []costResult{
					{Currency: "USD", AmountCents: 100, WorkspaceID: "wrkspc_b", CostType: "tokens"},
				},
			}},
			HasMore: false,
		},
	}

	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("x-api-key"); got != "sk-ant-admin-test" {
			t.Errorf("missing api key header, got %q", got)
		}
		if got := r.URL.Query()["group_by[]"]; len(got) != 2 {
			t.Errorf("expected 2 group_by[] params, got %v", got)
		}
		resp := pages[r.URL.Query().Get("page")]
		json.NewEncoder(w).Encode(resp)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	records, err := client.CostReport(context.Background(), start, end, []string{"workspace_id", "model"})
	if err != nil {
		t.Fatalf("CostReport returned error: %v", err)
	}

	// Union across all pages: 2 + 1 + 1 rows.
	if len(records) != 4 {
		t.Fatalf("expected 4 records across 3 pages, got %d", len(records))
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}

	// Cents are converted exactly once: 150000 -> 1500.00.
	if records[0].AmountUSD != 1500.00 {
		t.Errorf("expected 1500.00, got %v", records[0].AmountUSD)
	}

	// Blank optional fields arrive as nil, not "".
	websearch := records[2]
	if websearch.WorkspaceID != nil || websearch.Model != nil || websearch.TokenType != nil {
		t.Errorf("expected blank optional fields to be nil: %+v", websearch)
	}
}

func TestCostReportRetriesServerErrors(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(costReportResponse{})
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.CostReport(context.Background(), start, start.AddDate(0, 0, 1), nil)
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
}

func TestCostReportExhaustsRetriesOn500(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.CostReport(context.Background(), start, start.AddDate(0, 0, 1), nil)
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("expected max-retries error, got %v", err)
	}
	if requests != 4 {
		t.Errorf("expected 4 attempts (initial + 3 retries), got %d", requests)
	}
}

func TestCostReportRetriesRateLimits(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(costReportResponse{})
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if _, err := client.CostReport(context.Background(), start, start.AddDate(0, 0, 1), nil); err != nil {
		t.Fatalf("expected recovery after rate limit, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestCostReportFailsImmediatelyOn4xx(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"invalid key"}}`)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.CostReport(context.Background(), start, start.AddDate(0, 0, 1), nil)
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if requests != 1 {
		t.Errorf("expected no retries on 4xx, got %d requests", requests)
	}
}

func TestUsageReportFlattensNestedCounters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [{
				"starting_at": "2026-08-01T00:00:00Z",
				"ending_at": "2026-08-02T00:00:00Z",
				"results": [{
					"api_key_id": "apikey_01",
					"workspace_id": "wrkspc_a",
					"model": "claude-sonnet-4",
					"uncached_input_tokens": 1000,
					"cached_input_tokens": 200,
					"cache_read_input_tokens": 5000,
					"output_tokens": 300,
					"cache_creation": {"ephemeral_1h_input_tokens": 40, "ephemeral_5m_input_tokens": 60},
					"server_tool_use": {"web_search_requests": 3, "code_execution_requests": 1}
				}]
			}],
			"has_more": false,
			"next_page": null
		}`)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.UsageReport(context.Background(), start, start.AddDate(0, 0, 1), []string{"api_key_id"})
	if err != nil {
		t.Fatalf("UsageReport returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.CacheCreation1hTokens != 40 || r.CacheCreation5mTokens != 60 {
		t.Errorf("nested cache-creation counters not flattened: %+v", r)
	}
	if r.WebSearchRequests != 3 || r.CodeExecutionRequests != 1 {
		t.Errorf("nested tool-use counters not flattened: %+v", r)
	}
	if r.TotalTokens() != 6600 {
		t.Errorf("TotalTokens = %d, want 6600", r.TotalTokens())
	}
}

func TestProductivityReportKeepsEstimateOutOfRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [{
				"starting_at": "2026-08-01T00:00:00Z",
				"ending_at": "2026-08-02T00:00:00Z",
				"results": [{
					"actor": "dev@example.com",
					"terminal_type": "vscode",
					"core_metrics": {
						"lines_of_code": {"added": 120, "removed": 30},
						"commits": 4,
						"pull_requests": 1
					},
					"tool_actions": {"accepted": 25, "rejected": 3},
					"estimated_cost": {"currency": "USD", "amount": 1234}
				}]
			}],
			"has_more": false
		}`)
	})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows, err := client.ProductivityReport(context.Background(), start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ProductivityReport returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Record.LinesAdded != 120 || row.Record.SuggestionsAccepted != 25 {
		t.Errorf("unexpected record: %+v", row.Record)
	}
	// The estimate rides alongside the record for cross-checks, in dollars.
	if row.EstimatedCostUSD != 12.34 {
		t.Errorf("EstimatedCostUSD = %v, want 12.34", row.EstimatedCostUSD)
	}
}

func strPtr(s string) *string { return &s }
