package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.Client(), server.URL, "test-token")
	client.backoff = time.Millisecond
	return client, server
}

func TestGetSymbolsWithRanks_RequestShape(t *testing.T) {
	var got rankingRequest
	var auth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`[{"symbol":"aapl","wgdzscorerank":1},{"symbol":"msft","wgdzscorerank":2}]`))
	})

	ranked, err := client.GetSymbolsWithRanks(context.Background(), "sp500", 10, "2026-08-23")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if auth != "Bearer test-token" {
		t.Fatalf("authorization=%q want bearer token", auth)
	}
	if got.IndexID != "sp500" || got.AlgoID != "1" || got.MomDay != "2026-08-23" {
		t.Fatalf("request=%+v want indexId=sp500 algoId=1 momDay=2026-08-23", got)
	}
	if len(ranked) != 2 || ranked[0].Symbol != "AAPL" || ranked[0].Rank != 1 {
		t.Fatalf("ranked=%+v want AAPL rank 1 first", ranked)
	}
}

func TestGetSymbolsWithRanks_WrappedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"ticker":"nvda","wgdzscorerank":3},{"code":"amd"}]}`))
	})

	ranked, err := client.GetSymbolsWithRanks(context.Background(), "nasdaq100", 10, "2026-08-23")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked=%+v want 2 entries", ranked)
	}
	if ranked[0].Symbol != "NVDA" || ranked[0].Rank != 3 {
		t.Fatalf("ranked[0]=%+v want NVDA rank 3", ranked[0])
	}
	// Missing rank falls back to position.
	if ranked[1].Symbol != "AMD" || ranked[1].Rank != 2 {
		t.Fatalf("ranked[1]=%+v want AMD rank 2", ranked[1])
	}
}

func TestGetSymbolsWithRanks_TruncatesToTopN(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"a"},{"symbol":"b"},{"symbol":"c"}]`))
	})

	ranked, err := client.GetSymbolsWithRanks(context.Background(), "sp500", 2, "2026-08-23")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked=%d want=2", len(ranked))
	}
}

func TestDoRequest_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"symbol":"aapl"}]`))
	})

	ranked, err := client.GetSymbolsWithRanks(context.Background(), "sp500", 5, "2026-08-23")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts=%d want=3", attempts)
	}
	if len(ranked) != 1 {
		t.Fatalf("ranked=%+v want one entry", ranked)
	}
}

func TestDoRequest_NonRetryableFailsFast(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`bad token`))
	})

	_, err := client.GetSymbolsWithRanks(context.Background(), "sp500", 5, "2026-08-23")
	if err == nil {
		t.Fatalf("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v want APIError 401", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts=%d want=1 (401 is not retryable)", attempts)
	}
}

func TestGetTopSymbols_Flattens(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"aapl","wgdzscorerank":1},{"symbol":"msft","wgdzscorerank":2}]`))
	})

	symbols, err := client.GetTopSymbols(context.Background(), "sp500", 5, "2026-08-23")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Fatalf("symbols=%v want [AAPL MSFT]", symbols)
	}
}

func TestGetSymbolsWithRanks_RequiresIndexID(t *testing.T) {
	client := NewClient(nil, "http://unreachable.invalid", "token")
	if _, err := client.GetSymbolsWithRanks(context.Background(), "", 5, ""); err == nil {
		t.Fatalf("expected error for empty index id")
	}
}

func TestPreviousSunday(t *testing.T) {
	cases := []struct {
		day      time.Time
		want     string
		wantWeek string
	}{
		// Wednesday.
		{time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC), "2026-08-23", "2026-08-16"},
		// Monday.
		{time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), "2026-08-23", "2026-08-16"},
		// Sunday maps a full week back, never to itself.
		{time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC), "2026-08-16", "2026-08-09"},
	}
	for _, tc := range cases {
		if got := PreviousSunday(tc.day); got != tc.want {
			t.Fatalf("PreviousSunday(%s)=%s want=%s", tc.day.Format("2006-01-02"), got, tc.want)
		}
		if got := PreviousWeekSunday(tc.day); got != tc.wantWeek {
			t.Fatalf("PreviousWeekSunday(%s)=%s want=%s", tc.day.Format("2006-01-02"), got, tc.wantWeek)
		}
	}
}
