package leaderboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client fetches momentum rankings from the leaderboard API. The endpoint is
// a single POST keyed by index id and momentum anchor date.
type Client struct {
	apiURL     string
	apiToken   string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// RankedSymbol is one leaderboard entry. Rank 1 is the strongest momentum.
type RankedSymbol struct {
	Symbol string
	Rank   int
}

func NewClient(httpClient *http.Client, apiURL, apiToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiToken:   apiToken,
		httpClient: httpClient,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

type rankingRequest struct {
	IndexID string `json:"indexId"`
	AlgoID  string `json:"algoId"`
	MomDay  string `json:"momDay"`
}

// entry tolerates the field-name drift the API has shown over time.
type entry struct {
	Symbol string `json:"symbol"`
	Ticker string `json:"ticker"`
	Stock  string `json:"stock"`
	Code   string `json:"code"`
	Rank   int    `json:"wgdzscorerank"`
}

func (e entry) symbolName() string {
	for _, s := range []string{e.Symbol, e.Ticker, e.Stock, e.Code} {
		if s != "" {
			return strings.ToUpper(s)
		}
	}
	return ""
}

type wrappedResponse struct {
	Data    []entry `json:"data"`
	Results []entry `json:"results"`
	Symbols []entry `json:"symbols"`
	Stocks  []entry `json:"stocks"`
}

func (c *Client) doRequest(ctx context.Context, body rankingRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return data, nil
		}
		lastErr = &APIError{Status: resp.StatusCode, Body: string(data)}
		if !retryable(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// GetSymbolsWithRanks returns the top N ranked symbols for indexID. When
// momDay is empty the most recent Sunday is used as the momentum anchor.
func (c *Client) GetSymbolsWithRanks(ctx context.Context, indexID string, topN int, momDay string) ([]RankedSymbol, error) {
	if indexID == "" {
		return nil, fmt.Errorf("index id is required")
	}
	if momDay == "" {
		momDay = PreviousSunday(time.Now())
	}
	body, err := c.doRequest(ctx, rankingRequest{IndexID: indexID, AlgoID: "1", MomDay: momDay})
	if err != nil {
		return nil, err
	}
	return parseRankings(body, topN)
}

// GetTopSymbols is GetSymbolsWithRanks flattened to the symbol names.
func (c *Client) GetTopSymbols(ctx context.Context, indexID string, topN int, momDay string) ([]string, error) {
	ranked, err := c.GetSymbolsWithRanks(ctx, indexID, topN, momDay)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(ranked))
	for _, r := range ranked {
		symbols = append(symbols, r.Symbol)
	}
	return symbols, nil
}

func parseRankings(body []byte, topN int) ([]RankedSymbol, error) {
	var entries []entry
	if err := json.Unmarshal(body, &entries); err != nil {
		var wrapped wrappedResponse
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("unexpected response format: %w", err)
		}
		for _, list := range [][]entry{wrapped.Data, wrapped.Results, wrapped.Symbols, wrapped.Stocks} {
			if len(list) > 0 {
				entries = list
				break
			}
		}
	}
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	ranked := make([]RankedSymbol, 0, len(entries))
	for i, e := range entries {
		symbol := e.symbolName()
		if symbol == "" {
			continue
		}
		rank := e.Rank
		if rank == 0 {
			rank = i + 1
		}
		ranked = append(ranked, RankedSymbol{Symbol: symbol, Rank: rank})
	}
	return ranked, nil
}

// PreviousSunday returns the date of the Sunday strictly before t, formatted
// YYYY-MM-DD. A Sunday maps to the Sunday a week earlier.
func PreviousSunday(t time.Time) string {
	days := int(t.Weekday())
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, -days).Format("2006-01-02")
}

// PreviousWeekSunday returns the Sunday one week before PreviousSunday(t).
func PreviousWeekSunday(t time.Time) string {
	days := int(t.Weekday())
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, -days-7).Format("2006-01-02")
}
