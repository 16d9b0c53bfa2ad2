// Package cursor implements a client for the IDE vendor's team admin API:
// per-user-per-day usage events and current-cycle cumulative spend. The spend
// endpoint only reports a cumulative total, so daily figures are derived
// downstream by differencing against previously stored deltas.
package cursor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/tokenledger/tokenledger/internal/models"
	"github.com/tokenledger/tokenledger/internal/retry"
)

const (
	dailyUsagePath = "/teams/daily-usage-data"
	teamSpendPath  = "/teams/spend"
)

// Client calls the IDE vendor's admin API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

// NewClient creates an IDE admin client. The API authenticates with basic
// auth, key as username.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: retry.DefaultPolicy(),
		logger: logger,
	}
}

// DailyUsageRow is one per-user-per-day usage event row.
type DailyUsageRow struct {
	Date     time.Time
	Email    string
	IsActive bool

	LinesAdded   int64
	LinesDeleted int64

	SuggestionsAccepted int64
	SuggestionsRejected int64

	ComposerRequests int64
	ChatRequests     int64
	AgentRequests    int64
}

// Requests returns the total billable request count for the row. Vendor-side
// per-request pricing is unverified, so any cost derived from this stays an
// estimate and is never stored.
func (r DailyUsageRow) Requests() int64 {
	return r.ComposerRequests + r.ChatRequests + r.AgentRequests
}

// MemberSpend is one user's cumulative spend for the current billing cycle.
type MemberSpend struct {
	Email         string
	CumulativeUSD float64
}

// TeamSpend is the spend endpoint's snapshot: cumulative-to-date spend per
// user and the start of the current billing cycle.
type TeamSpend struct {
	Members    []MemberSpend
	CycleStart time.Time
}

type dailyUsageRequest struct {
	StartDate int64 `json:"startDate"`
	EndDate   int64 `json:"endDate"`
}

type dailyUsageResponse struct {
	Data []struct {
		Date                int64  `json:"date"`
		Email               string `json:"email"`
		IsActive            bool   `json:"isActive"`
		TotalLinesAdded     int64  `json:"totalLinesAdded"`
		TotalLinesDeleted   int64  `json:"totalLinesDeleted"`
		TotalAccepts        int64  `json:"totalAccepts"`
		TotalRejects        int64  `json:"totalRejects"`
		ComposerRequests    int64  `json:"composerRequests"`
		ChatRequests        int64  `json:"chatRequests"`
		AgentRequests       int64  `json:"agentRequests"`
	} `json:"data"`
}

type teamSpendResponse struct {
	TeamMemberSpend []struct {
		Email      string `json:"email"`
		SpendCents int64  `json:"spendCents"`
	} `json:"teamMemberSpend"`
	SubscriptionCycleStart int64 `json:"subscriptionCycleStart"`
}

// DailyUsage fetches usage event rows for [start, end). The API takes epoch
// milliseconds in the request body.
func (c *Client) DailyUsage(ctx context.Context, start, end time.Time) ([]DailyUsageRow, error) {
	body := dailyUsageRequest{
		StartDate: start.UTC().UnixMilli(),
		EndDate:   end.UTC().UnixMilli(),
	}

	var resp dailyUsageResponse
	if err := c.postJSON(ctx, dailyUsagePath, body, &resp); err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}

	rows := make([]DailyUsageRow, 0, len(resp.Data))
	for _, d := range resp.Data {
		rows = append(rows, DailyUsageRow{
			Date:                models.MidnightUTC(time.UnixMilli(d.Date)),
			Email:               d.Email,
			IsActive:            d.IsActive,
			LinesAdded:          d.TotalLinesAdded,
			LinesDeleted:        d.TotalLinesDeleted,
			SuggestionsAccepted: d.TotalAccepts,
			SuggestionsRejected: d.TotalRejects,
			ComposerRequests:    d.ComposerRequests,
			ChatRequests:        d.ChatRequests,
			AgentRequests:       d.AgentRequests,
		})
	}

	c.logger.Debug("ide daily usage fetched",
		"start", models.FormatDate(start),
		"end", models.FormatDate(end),
		"rows", len(rows),
	)

	return rows, nil
}

// Spend fetches the current-cycle cumulative spend snapshot. Amounts arrive
// in cents and are converted to dollars here, exactly once.
func (c *Client) Spend(ctx context.Context) (TeamSpend, error) {
	var resp teamSpendResponse
	if err := c.postJSON(ctx, teamSpendPath, struct{}{}, &resp); err != nil {
		return TeamSpend{}, fmt.Errorf("team spend: %w", err)
	}

	spend := TeamSpend{
		CycleStart: models.MidnightUTC(time.UnixMilli(resp.SubscriptionCycleStart)),
	}
	for _, m := range resp.TeamMemberSpend {
		spend.Members = append(spend.Members, MemberSpend{
			Email:         m.Email,
			CumulativeUSD: float64(m.SpendCents) / 100.0,
		})
	}

	return spend, nil
}

// postJSON issues a POST with retry: 429 and 5xx back off and retry, other
// 4xx fail immediately.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + path

	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth(c.apiKey, "")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.ServerError(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return retry.FromStatus(resp.StatusCode,
				fmt.Errorf("ide admin api returned status %d: %s", resp.StatusCode, string(b)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
