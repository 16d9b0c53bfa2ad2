// Package anthropic implements a client for the LLM provider's admin
// reporting API: cost report, per-key usage report and code-assistant
// productivity report. The client handles day-bucket pagination and transient
// failures; it performs no storage writes.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"log/slog"

	"github.com/tokenledger/tokenledger/internal/models"
	"github.com/tokenledger/tokenledger/internal/retry"
)

const (
	apiVersion = "2023-06-01"

	costReportPath         = "/organizations/cost_report"
	usageReportPath        = "/organizations/usage_report/messages"
	productivityReportPath = "/organizations/usage_report/claude_code"

	pageLimit = 100
)

// Client calls the admin reporting API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

// NewClient creates an admin reporting client.
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

// APIError is a non-retryable vendor response (4xx other than 429).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api returned status %d: %s", e.StatusCode, e.Body)
}

// reportParams builds the shared query for a date-bounded report. The API
// treats ending_at as exclusive; callers pass the exclusive end directly.
func reportParams(start, end time.Time, groupBy []string) url.Values {
	params := url.Values{}
	params.Set("starting_at", models.FormatDate(start))
	params.Set("ending_at", models.FormatDate(end))
	params.Set("limit", fmt.Sprintf("%d", pageLimit))
	for _, g := range groupBy {
		params.Add("group_by[]", g)
	}
	return params
}

// CostReport fetches all cost rows for [start, end), merged across every day
// bucket and page.
func (c *Client) CostReport(ctx context.Context, start, end time.Time, groupBy []string) ([]models.CostRecord, error) {
	var records []models.CostRecord

	page := ""
	for {
		var resp costReportResponse
		if err := c.getJSON(ctx, costReportPath, reportParams(start, end, groupBy), page, &resp); err != nil {
			return nil, fmt.Errorf("cost report: %w", err)
		}

		for _, bucket := range resp.Data {
			date, err := parseBucketDate(bucket.StartingAt)
			if err != nil {
				return nil, fmt.Errorf("cost report: %w", err)
			}
			for _, result := range bucket.Results {
				records = append(records, result.toRecord(date))
			}
		}

		// Stopping before has_more clears silently drops rows; loop on the token.
		if !resp.HasMore || resp.NextPage == nil {
			break
		}
		page = *resp.NextPage
	}

	c.logger.Debug("cost report fetched",
		"start", models.FormatDate(start),
		"end", models.FormatDate(end),
		"rows", len(records),
	)

	return records, nil
}

// UsageReport fetches all per-key usage rows for [start, end). Surface
// classification is left to the caller.
func (c *Client) UsageReport(ctx context.Context, start, end time.Time, groupBy []string) ([]models.UsageRecord, error) {
	var records []models.UsageRecord

	page := ""
	for {
		var resp usageReportResponse
		if err := c.getJSON(ctx, usageReportPath, reportParams(start, end, groupBy), page, &resp); err != nil {
			return nil, fmt.Errorf("usage report: %w", err)
		}

		for _, bucket := range resp.Data {
			date, err := parseBucketDate(bucket.StartingAt)
			if err != nil {
				return nil, fmt.Errorf("usage report: %w", err)
			}
			for _, result := range bucket.Results {
				records = append(records, result.toRecord(date))
			}
		}

		if !resp.HasMore || resp.NextPage == nil {
			break
		}
		page = *resp.NextPage
	}

	c.logger.Debug("usage report fetched",
		"start", models.FormatDate(start),
		"end", models.FormatDate(end),
		"rows", len(records),
	)

	return records, nil
}

// ProductivityReport fetches code-assistant activity rows for [start, end).
// The rows carry the endpoint's cost estimate for cross-checking; the
// estimate must not be loaded into any table.
func (c *Client) ProductivityReport(ctx context.Context, start, end time.Time) ([]ProductivityRow, error) {
	var rows []ProductivityRow

	page := ""
	for {
		var resp productivityReportResponse
		if err := c.getJSON(ctx, productivityReportPath, reportParams(start, end, nil), page, &resp); err != nil {
			return nil, fmt.Errorf("productivity report: %w", err)
		}

		for _, bucket := range resp.Data {
			date, err := parseBucketDate(bucket.StartingAt)
			if err != nil {
				return nil, fmt.Errorf("productivity report: %w", err)
			}
			for _, result := range bucket.Results {
				rows = append(rows, result.toRow(date))
			}
		}

		if !resp.HasMore || resp.NextPage == nil {
			break
		}
		page = *resp.NextPage
	}

	c.logger.Debug("productivity report fetched",
		"start", models.FormatDate(start),
		"end", models.FormatDate(end),
		"rows", len(rows),
	)

	return rows, nil
}

// getJSON issues a GET with retry: 429 and 5xx back off and retry, other 4xx
// fail immediately as *APIError.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, page string, out any) error {
	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	if page != "" {
		query.Set("page", page)
	}

	endpoint := c.baseURL + path + "?" + query.Encode()

	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.ServerError(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}

			if retry.IsRetryable(retry.FromStatus(resp.StatusCode, apiErr)) {
				c.logger.Warn("admin api transient failure, will retry",
					"path", path,
					"status", resp.StatusCode,
				)
			}
			return retry.FromStatus(resp.StatusCode, apiErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// parseBucketDate extracts the activity date from a bucket's starting_at,
// which arrives either as RFC3339 or as a bare date.
func parseBucketDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return models.MidnightUTC(t), nil
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable bucket date %q", raw)
	}
	return t, nil
}
