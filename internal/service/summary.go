package service

import (
	"context"

	"github.com/shopspring/decimal"

	"stockbot/internal/broker"
	"stockbot/internal/leaderboard"
)

// RankingSource supplies ranked symbols for an index and momentum anchor day.
type RankingSource interface {
	GetSymbolsWithRanks(ctx context.Context, indexID string, topN int, momDay string) ([]leaderboard.RankedSymbol, error)
}

// Notifier delivers run summaries and errors. Failures are logged by the
// caller and never abort a run.
type Notifier interface {
	SendSummary(ctx context.Context, summary *TradeSummary) error
	SendError(ctx context.Context, portfolio string, err error) error
}

// TradeLine is one buy or sell in a run summary.
type TradeLine struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

type FailedTrade struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Error  string `json:"error"`
}

// TradeSummary is the outcome of one rebalance invocation for a portfolio.
type TradeSummary struct {
	Portfolio        string            `json:"portfolio"`
	InitialCapital   decimal.Decimal   `json:"initial_capital"`
	Buys             []TradeLine       `json:"buys"`
	Sells            []TradeLine       `json:"sells"`
	FailedTrades     []FailedTrade     `json:"failed_trades"`
	TotalCost        decimal.Decimal   `json:"total_cost"`
	TotalProceeds    decimal.Decimal   `json:"total_proceeds"`
	FinalAllocations []broker.Position `json:"final_allocations"`
	PortfolioValue   decimal.Decimal   `json:"portfolio_value"`
	DryRun           bool              `json:"dry_run"`
}

func (s *TradeSummary) totalize() {
	s.TotalCost = decimal.Zero
	s.TotalProceeds = decimal.Zero
	s.PortfolioValue = decimal.Zero
	for _, b := range s.Buys {
		s.TotalCost = s.TotalCost.Add(b.Amount)
	}
	for _, sl := range s.Sells {
		s.TotalProceeds = s.TotalProceeds.Add(sl.Amount)
	}
	for _, a := range s.FinalAllocations {
		s.PortfolioValue = s.PortfolioValue.Add(a.MarketValue)
	}
}

// CheckResult reports one status-polling pass over submitted trades.
type CheckResult struct {
	Checked      int `json:"checked"`
	Filled       int `json:"filled"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
}

func (r CheckResult) AllTerminal() bool {
	return r.StillPending == 0 && r.Checked > 0
}
