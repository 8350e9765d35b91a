package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"stockbot/internal/broker"
	"stockbot/internal/service"
)

func TestSummarySubject(t *testing.T) {
	summary := &service.TradeSummary{Portfolio: "growth"}
	if got := summarySubject(summary); got != "Portfolio Rebalancing Summary: growth" {
		t.Fatalf("subject=%q", got)
	}
	summary.DryRun = true
	if got := summarySubject(summary); !strings.HasPrefix(got, "[DRY RUN] ") {
		t.Fatalf("subject=%q want dry run prefix", got)
	}
}

func TestFormatSummaryText_Sections(t *testing.T) {
	summary := &service.TradeSummary{
		Portfolio:     "growth",
		TotalProceeds: decimal.NewFromInt(1000),
		TotalCost:     decimal.NewFromFloat(999.99),
		Sells: []service.TradeLine{
			{Symbol: "BBB", Quantity: decimal.NewFromInt(10), Amount: decimal.NewFromInt(1000)},
		},
		Buys: []service.TradeLine{
			{Symbol: "CCC", Amount: decimal.NewFromFloat(999.99)},
		},
		FailedTrades: []service.FailedTrade{
			{Symbol: "DDD", Side: "BUY", Error: "insufficient funds"},
		},
		FinalAllocations: []broker.Position{
			{Symbol: "AAA", Quantity: decimal.NewFromInt(5), MarketValue: decimal.NewFromInt(500)},
		},
		PortfolioValue: decimal.NewFromInt(500),
	}
	text := formatSummaryText(summary)

	for _, want := range []string{
		"Portfolio: growth",
		"Portfolio value: $500.00",
		"Sells (total $1000.00):",
		"BBB: 10.0000 shares for $1000.00",
		"Buys (total $999.99):",
		"CCC: $999.99",
		"Failed trades:",
		"BUY DDD: insufficient funds",
		"Current allocations:",
		"AAA: 5.0000 shares ($500.00)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary text missing %q:\n%s", want, text)
		}
	}
}

func TestFormatSummaryText_NoTrades(t *testing.T) {
	summary := &service.TradeSummary{Portfolio: "growth"}
	text := formatSummaryText(summary)
	if !strings.Contains(text, "No rebalancing was needed.") {
		t.Fatalf("summary text missing no-op note:\n%s", text)
	}
}

func TestFormatErrorText(t *testing.T) {
	text := formatErrorText("growth", errors.New("leaderboard unreachable"))
	if !strings.Contains(text, "growth") || !strings.Contains(text, "leaderboard unreachable") {
		t.Fatalf("error text=%q", text)
	}
}
