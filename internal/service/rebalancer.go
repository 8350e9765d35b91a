package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/broker"
	"stockbot/internal/leaderboard"
	"stockbot/internal/models"
)

// bootstrapThreshold is the cash level that lets an empty portfolio take
// its initial allocation.
var bootstrapThreshold = decimal.NewFromInt(10000)

// PortfolioSpec is the per-portfolio tuning the decision engine needs.
type PortfolioSpec struct {
	Name           string
	IndexID        string
	StockCount     int
	Slack          int
	InitialCapital decimal.Decimal
	Timezone       *time.Location
}

// RebalancerService compares momentum rankings period over period and turns
// the difference into ledger-tracked orders. Holds survive inside a rank
// hysteresis band; exits fund entries; idle cash only funds symbols missing
// outright.
type RebalancerService struct {
	Broker     broker.Broker
	Ranking    RankingSource
	Trades     *TradeLedgerService
	Cash       *CashLedgerService
	Ownership  *OwnershipLedgerService
	Reconciler *ReconcilerService
	Logger     *zap.Logger
}

func (s *RebalancerService) Rebalance(ctx context.Context, spec PortfolioSpec, runID string, dryRun bool) (*TradeSummary, error) {
	if s == nil || s.Broker == nil || s.Ranking == nil {
		return nil, fmt.Errorf("rebalancer is not fully wired")
	}
	summary := &TradeSummary{
		Portfolio:      spec.Name,
		InitialCapital: spec.InitialCapital,
		DryRun:         dryRun,
	}

	now := time.Now()
	// Rankings past the hysteresis band are needed to decide sells, so
	// fetch deeper than the holding count.
	current, err := s.Ranking.GetSymbolsWithRanks(ctx, spec.IndexID, spec.StockCount+spec.Slack, leaderboard.PreviousSunday(now))
	if err != nil {
		return nil, fmt.Errorf("fetch current rankings: %w", err)
	}
	previous, err := s.Ranking.GetSymbolsWithRanks(ctx, spec.IndexID, spec.StockCount, leaderboard.PreviousWeekSunday(now))
	if err != nil {
		return nil, fmt.Errorf("fetch previous rankings: %w", err)
	}

	positions, err := s.Broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker positions: %w", err)
	}
	posBySymbol := make(map[string]broker.Position, len(positions))
	for _, pos := range positions {
		posBySymbol[strings.ToUpper(pos.Symbol)] = pos
	}

	rankBySymbol := make(map[string]int, len(current))
	var topSymbols []string
	for _, r := range current {
		rankBySymbol[r.Symbol] = r.Rank
		if r.Rank <= spec.StockCount {
			topSymbols = append(topSymbols, r.Symbol)
		}
	}

	externalProceeds := decimal.Zero
	if s.Reconciler != nil {
		if _, err := s.Reconciler.DetectExternalSales(ctx, positions, spec.Name); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("external sale detection failed", zap.Error(err))
			}
		}
		externalProceeds, err = s.Reconciler.UnusedExternalSaleProceeds(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
	}

	owned, err := s.Ownership.OwnedSymbols(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	// Bootstrap: nothing from the prior period is held and the cash
	// sleeve can support a fresh allocation.
	holdsPrior := false
	for _, r := range previous {
		if owned[r.Symbol] {
			holdsPrior = true
			break
		}
	}
	balance, err := s.Cash.Balance(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if !holdsPrior && balance.Add(externalProceeds).GreaterThanOrEqual(bootstrapThreshold) {
		capital := spec.InitialCapital.Add(externalProceeds)
		if s.Logger != nil {
			s.Logger.Info("bootstrapping portfolio",
				zap.String("portfolio", spec.Name),
				zap.String("capital", capital.StringFixed(2)))
		}
		if err := s.buyEqually(ctx, spec, runID, topSymbols, capital, dryRun, summary); err != nil {
			return nil, err
		}
		if !dryRun && externalProceeds.GreaterThan(decimal.Zero) && s.Reconciler != nil {
			if err := s.Reconciler.MarkExternalSalesUsed(ctx, externalProceeds, spec.Name); err != nil {
				return nil, err
			}
		}
		return s.finish(ctx, summary)
	}

	// Sells: held symbols whose rank fell out of the hysteresis band.
	// A symbol at exactly stockCount+slack is held; one rank past it goes.
	threshold := spec.StockCount + spec.Slack
	proceeds := decimal.Zero
	for symbol := range owned {
		rank, ranked := rankBySymbol[symbol]
		if ranked && rank <= threshold {
			continue
		}
		amount, ok := s.sellPosition(ctx, spec, runID, symbol, posBySymbol[symbol], dryRun, summary)
		if ok {
			proceeds = proceeds.Add(amount)
		}
	}

	// Entries are funded by exits, not idle cash, which bounds drift.
	available := proceeds.Add(externalProceeds)
	var newEntries []string
	for _, symbol := range topSymbols {
		if !owned[symbol] {
			newEntries = append(newEntries, symbol)
		}
	}
	if len(newEntries) > 0 && available.GreaterThan(decimal.Zero) {
		if err := s.buyEqually(ctx, spec, runID, newEntries, available, dryRun, summary); err != nil {
			return nil, err
		}
		if !dryRun && externalProceeds.GreaterThan(decimal.Zero) && s.Reconciler != nil {
			used := decimal.Min(externalProceeds, available)
			if err := s.Reconciler.MarkExternalSalesUsed(ctx, used, spec.Name); err != nil {
				return nil, err
			}
		}
	} else if len(newEntries) > 0 {
		// No exits this cycle. Missing symbols fall back to the cash
		// sleeve's constrained allocation.
		allocation, err := s.Cash.AllocationPerStock(ctx, spec.Name, spec.InitialCapital, spec.StockCount, len(newEntries))
		if err != nil {
			return nil, err
		}
		if allocation.GreaterThan(decimal.Zero) {
			for _, symbol := range newEntries {
				s.buyOne(ctx, spec, runID, symbol, allocation.Round(2), dryRun, summary)
			}
		} else if s.Logger != nil {
			s.Logger.Warn("skipping purchases, no proceeds and no viable cash allocation",
				zap.String("portfolio", spec.Name),
				zap.Strings("symbols", newEntries))
		}
	}

	if len(summary.Buys) == 0 && len(summary.Sells) == 0 && s.Logger != nil {
		s.Logger.Info("no rebalancing needed", zap.String("portfolio", spec.Name))
	}
	return s.finish(ctx, summary)
}

func (s *RebalancerService) sellPosition(ctx context.Context, spec PortfolioSpec, runID, symbol string, pos broker.Position, dryRun bool, summary *TradeSummary) (decimal.Decimal, bool) {
	if pos.Quantity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	price := decimal.Zero
	if pos.Quantity.GreaterThan(decimal.Zero) {
		price = pos.MarketValue.Div(pos.Quantity)
	}

	// Only this portfolio's share of a multiply-owned position may go.
	quantity := pos.Quantity
	fraction, err := s.Ownership.PortfolioFraction(ctx, symbol, spec.Name)
	if err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideSell, err, summary)
		return decimal.Zero, false
	}
	if fraction.GreaterThan(decimal.Zero) && fraction.LessThan(decimal.NewFromInt(1)) {
		quantity = pos.Quantity.Mul(fraction)
	}
	tracked, err := s.Ownership.TrackedQuantity(ctx, symbol, spec.Name)
	if err == nil && tracked.GreaterThan(decimal.Zero) && tracked.LessThan(quantity) {
		quantity = tracked
	}

	ok, err := s.Ownership.CanSell(ctx, symbol, quantity, spec.Name, &pos.Quantity)
	if err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideSell, err, summary)
		return decimal.Zero, false
	}
	if !ok {
		if s.Logger != nil {
			s.Logger.Warn("sell not authorized",
				zap.String("portfolio", spec.Name),
				zap.String("symbol", symbol),
				zap.String("quantity", quantity.String()))
		}
		return decimal.Zero, false
	}

	amount := price.Mul(quantity)
	if dryRun {
		summary.Sells = append(summary.Sells, TradeLine{Symbol: symbol, Quantity: quantity, Amount: amount})
		if s.Logger != nil {
			s.Logger.Info("dry run: would sell",
				zap.String("portfolio", spec.Name),
				zap.String("symbol", symbol),
				zap.String("quantity", quantity.String()))
		}
		return amount, true
	}

	trade := &models.TradeRecord{
		Symbol:    symbol,
		Side:      models.SideSell,
		Portfolio: spec.Name,
		Quantity:  quantity,
		Price:     price,
		Total:     amount,
		Timestamp: time.Now().UTC(),
	}
	tradeID, err := s.Trades.RecordPlanned(ctx, trade, runID)
	if err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideSell, err, summary)
		return decimal.Zero, false
	}
	// The order is sized in shares so the fill can never exceed the
	// authorized quantity, whatever the price does in between.
	orderID, err := s.Broker.Sell(ctx, symbol, quantity)
	if err != nil {
		_ = s.Trades.MarkFailed(ctx, tradeID, err.Error())
		summary.FailedTrades = append(summary.FailedTrades, FailedTrade{Symbol: symbol, Side: string(models.SideSell), Error: err.Error()})
		if s.Logger != nil {
			s.Logger.Error("sell failed",
				zap.String("portfolio", spec.Name),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		return decimal.Zero, false
	}
	if err := s.Trades.MarkSubmitted(ctx, tradeID, orderID); err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideSell, err, summary)
		return decimal.Zero, false
	}
	summary.Sells = append(summary.Sells, TradeLine{Symbol: symbol, Quantity: quantity, Amount: amount})
	if s.Logger != nil {
		s.Logger.Info("sell submitted",
			zap.String("portfolio", spec.Name),
			zap.String("symbol", symbol),
			zap.String("quantity", quantity.String()),
			zap.String("order_id", orderID))
	}
	return amount, true
}

func (s *RebalancerService) buyEqually(ctx context.Context, spec PortfolioSpec, runID string, symbols []string, capital decimal.Decimal, dryRun bool, summary *TradeSummary) error {
	if len(symbols) == 0 || capital.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	// Notional orders must round to cents.
	perStock := capital.Div(decimal.NewFromInt(int64(len(symbols)))).Round(2)
	if s.Logger != nil {
		s.Logger.Info("buying equal weight",
			zap.String("portfolio", spec.Name),
			zap.Int("symbols", len(symbols)),
			zap.String("per_stock", perStock.StringFixed(2)),
			zap.Bool("dry_run", dryRun))
	}
	for _, symbol := range symbols {
		s.buyOne(ctx, spec, runID, symbol, perStock, dryRun, summary)
	}
	return nil
}

func (s *RebalancerService) buyOne(ctx context.Context, spec PortfolioSpec, runID, symbol string, notional decimal.Decimal, dryRun bool, summary *TradeSummary) {
	if dryRun {
		summary.Buys = append(summary.Buys, TradeLine{Symbol: symbol, Amount: notional})
		if s.Logger != nil {
			s.Logger.Info("dry run: would buy",
				zap.String("portfolio", spec.Name),
				zap.String("symbol", symbol),
				zap.String("amount", notional.StringFixed(2)))
		}
		return
	}
	trade := &models.TradeRecord{
		Symbol:    symbol,
		Side:      models.SideBuy,
		Portfolio: spec.Name,
		Total:     notional,
		Timestamp: time.Now().UTC(),
	}
	tradeID, err := s.Trades.RecordPlanned(ctx, trade, runID)
	if err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideBuy, err, summary)
		return
	}
	orderID, err := s.Broker.Buy(ctx, symbol, notional)
	if err != nil {
		_ = s.Trades.MarkFailed(ctx, tradeID, err.Error())
		summary.FailedTrades = append(summary.FailedTrades, FailedTrade{Symbol: symbol, Side: string(models.SideBuy), Error: err.Error()})
		if s.Logger != nil {
			s.Logger.Error("buy failed",
				zap.String("portfolio", spec.Name),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		return
	}
	if err := s.Trades.MarkSubmitted(ctx, tradeID, orderID); err != nil {
		s.recordFailure(ctx, spec, runID, symbol, models.SideBuy, err, summary)
		return
	}
	summary.Buys = append(summary.Buys, TradeLine{Symbol: symbol, Amount: notional})
	if s.Logger != nil {
		s.Logger.Info("buy submitted",
			zap.String("portfolio", spec.Name),
			zap.String("symbol", symbol),
			zap.String("amount", notional.StringFixed(2)),
			zap.String("order_id", orderID))
	}
}

func (s *RebalancerService) recordFailure(ctx context.Context, spec PortfolioSpec, runID, symbol string, side models.TradeSide, cause error, summary *TradeSummary) {
	summary.FailedTrades = append(summary.FailedTrades, FailedTrade{Symbol: symbol, Side: string(side), Error: cause.Error()})
	if s.Logger != nil {
		s.Logger.Error("trade attempt failed",
			zap.String("portfolio", spec.Name),
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Error(cause))
	}
}

func (s *RebalancerService) finish(ctx context.Context, summary *TradeSummary) (*TradeSummary, error) {
	final, err := s.Broker.GetPositions(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("fetch final allocations failed", zap.Error(err))
		}
		final = nil
	}
	summary.FinalAllocations = final
	summary.totalize()
	return summary, nil
}
