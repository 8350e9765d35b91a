package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/broker"
	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// OwnershipLedgerService tracks what each portfolio believes it holds, as
// distinct from the brokerage's own records. Several portfolios may share
// one brokerage account, so cross-portfolio math is fractional attribution.
type OwnershipLedgerService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// RecordFill applies a filled trade to the ownership ledger. Buys accumulate
// quantity and cost; sells reduce quantity and cost proportionally and remove
// the record once nothing is left.
func (s *OwnershipLedgerService) RecordFill(ctx context.Context, trade *models.TradeRecord) error {
	if s == nil || s.Repo == nil || trade == nil {
		return nil
	}
	symbol := strings.ToUpper(trade.Symbol)
	docID := models.OwnershipDocID(trade.Portfolio, symbol)

	rec, err := s.Repo.GetOwnership(ctx, docID)
	if err != nil {
		return err
	}

	switch trade.Side {
	case models.SideBuy:
		// A broker may confirm a notional order before reporting share
		// quantity. Back-compute from total/price when possible.
		qty := trade.Quantity
		if qty.LessThanOrEqual(decimal.Zero) && trade.Price.GreaterThan(decimal.Zero) {
			qty = trade.Total.Div(trade.Price)
		}
		now := trade.Timestamp
		if rec == nil {
			rec = &models.OwnershipRecord{
				DocID:           docID,
				Portfolio:       trade.Portfolio,
				Symbol:          symbol,
				Quantity:        qty,
				TotalCost:       trade.Total,
				FirstPurchaseAt: now,
				LastPurchaseAt:  now,
				LastUpdatedAt:   now,
			}
		} else {
			rec.Quantity = rec.Quantity.Add(qty)
			rec.TotalCost = rec.TotalCost.Add(trade.Total)
			rec.LastPurchaseAt = now
			rec.LastUpdatedAt = now
		}
		return s.Repo.UpsertOwnership(ctx, rec)

	case models.SideSell:
		if rec == nil {
			if s.Logger != nil {
				s.Logger.Warn("sell fill for untracked position",
					zap.String("portfolio", trade.Portfolio),
					zap.String("symbol", symbol))
			}
			return nil
		}
		if rec.Quantity.GreaterThan(decimal.Zero) {
			costOfSold := rec.TotalCost.Div(rec.Quantity).Mul(trade.Quantity)
			rec.Quantity = rec.Quantity.Sub(trade.Quantity)
			rec.TotalCost = rec.TotalCost.Sub(costOfSold)
		}
		if rec.Quantity.LessThanOrEqual(decimal.Zero) {
			return s.Repo.DeleteOwnership(ctx, docID)
		}
		rec.LastUpdatedAt = trade.Timestamp
		return s.Repo.UpsertOwnership(ctx, rec)
	}
	return nil
}

// OwnedSymbols returns the symbols the portfolio tracks with quantity > 0.
func (s *OwnershipLedgerService) OwnedSymbols(ctx context.Context, portfolio string) (map[string]bool, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	records, err := s.Repo.ListOwnershipByPortfolio(ctx, portfolio)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Quantity.GreaterThan(decimal.Zero) {
			owned[strings.ToUpper(rec.Symbol)] = true
		}
	}
	return owned, nil
}

func (s *OwnershipLedgerService) TrackedQuantity(ctx context.Context, symbol, portfolio string) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil {
		return decimal.Zero, nil
	}
	rec, err := s.Repo.GetOwnership(ctx, models.OwnershipDocID(portfolio, symbol))
	if err != nil {
		return decimal.Zero, err
	}
	if rec == nil {
		return decimal.Zero, nil
	}
	return rec.Quantity, nil
}

func (s *OwnershipLedgerService) totalTracked(ctx context.Context, symbol string) (decimal.Decimal, error) {
	records, err := s.Repo.ListOwnershipBySymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, rec := range records {
		if rec.Quantity.GreaterThan(decimal.Zero) {
			total = total.Add(rec.Quantity)
		}
	}
	return total, nil
}

// PortfolioFraction is the portfolio's share of all tracked holdings of a
// symbol, used to split one brokerage position across portfolios.
func (s *OwnershipLedgerService) PortfolioFraction(ctx context.Context, symbol, portfolio string) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil {
		return decimal.Zero, nil
	}
	mine, err := s.TrackedQuantity(ctx, symbol, portfolio)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := s.totalTracked(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if total.IsZero() {
		return decimal.Zero, nil
	}
	return mine.Div(total), nil
}

// PortfoliosOwning lists every portfolio tracking a positive quantity of symbol.
func (s *OwnershipLedgerService) PortfoliosOwning(ctx context.Context, symbol string) ([]string, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	records, err := s.Repo.ListOwnershipBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var portfolios []string
	for _, rec := range records {
		if rec.Quantity.GreaterThan(decimal.Zero) {
			portfolios = append(portfolios, rec.Portfolio)
		}
	}
	return portfolios, nil
}

// CanSell authorizes a sell. The portfolio must track at least the requested
// quantity; when the broker's account-wide total is known, the portfolio's
// proportional share of that total must also cover the request, so a
// portfolio never sells shares that belong to another sleeve.
func (s *OwnershipLedgerService) CanSell(ctx context.Context, symbol string, quantity decimal.Decimal, portfolio string, brokerTotal *decimal.Decimal) (bool, error) {
	if s == nil || s.Repo == nil {
		return false, nil
	}
	tracked, err := s.TrackedQuantity(ctx, symbol, portfolio)
	if err != nil {
		return false, err
	}
	if tracked.LessThan(quantity) {
		return false, nil
	}
	if brokerTotal == nil {
		return true, nil
	}
	if brokerTotal.LessThan(quantity) {
		return false, nil
	}
	fraction, err := s.PortfolioFraction(ctx, symbol, portfolio)
	if err != nil {
		return false, err
	}
	share := brokerTotal.Mul(fraction)
	return share.GreaterThanOrEqual(quantity), nil
}

// ReconcileWithBroker corrects tracked quantities toward the broker's
// reported figures. Skipped entirely while any trade submitted in the last
// 24h is still unfilled, to avoid clobbering ownership mid-flight.
func (s *OwnershipLedgerService) ReconcileWithBroker(ctx context.Context, positions []broker.Position, portfolio string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	inflight, err := s.hasRecentUnfilled(ctx, portfolio)
	if err != nil {
		return err
	}
	if inflight {
		if s.Logger != nil {
			s.Logger.Info("skipping broker reconciliation, trades in flight",
				zap.String("portfolio", portfolio))
		}
		return nil
	}

	bySymbol := make(map[string]decimal.Decimal, len(positions))
	for _, pos := range positions {
		bySymbol[strings.ToUpper(pos.Symbol)] = pos.Quantity
	}

	records, err := s.Repo.ListOwnershipByPortfolio(ctx, portfolio)
	if err != nil {
		return err
	}
	for i := range records {
		rec := records[i]
		brokerQty := bySymbol[strings.ToUpper(rec.Symbol)]
		fraction, err := s.PortfolioFraction(ctx, rec.Symbol, portfolio)
		if err != nil {
			return err
		}
		attributed := brokerQty.Mul(fraction)
		if attributed.Equal(rec.Quantity) {
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("correcting tracked quantity toward broker",
				zap.String("portfolio", portfolio),
				zap.String("symbol", rec.Symbol),
				zap.String("tracked", rec.Quantity.String()),
				zap.String("broker", attributed.String()))
		}
		rec.Quantity = attributed
		rec.LastUpdatedAt = time.Now().UTC()
		if rec.Quantity.LessThanOrEqual(decimal.Zero) {
			if err := s.Repo.DeleteOwnership(ctx, rec.DocID); err != nil {
				return err
			}
			continue
		}
		if err := s.Repo.UpsertOwnership(ctx, &rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *OwnershipLedgerService) hasRecentUnfilled(ctx context.Context, portfolio string) (bool, error) {
	pending, err := s.Repo.ListTradesByStatus(ctx, portfolio, []models.TradeStatus{models.TradeSubmitted})
	if err != nil {
		return false, err
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, trade := range pending {
		if trade.Timestamp.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// RecalculateFromTradeLog rebuilds every ownership record for a portfolio by
// replaying trades with valid fill data. Cost basis is an average-cost
// approximation: remaining cost scales with the surviving share of bought
// quantity, not FIFO lots.
func (s *OwnershipLedgerService) RecalculateFromTradeLog(ctx context.Context, portfolio string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	trades, err := s.Repo.ListTradesByPortfolio(ctx, portfolio)
	if err != nil {
		return err
	}

	type tally struct {
		boughtQty  decimal.Decimal
		boughtCost decimal.Decimal
		soldQty    decimal.Decimal
		firstBuy   time.Time
		lastBuy    time.Time
	}
	tallies := make(map[string]*tally)
	for _, trade := range trades {
		if !trade.HasValidFill() {
			continue
		}
		symbol := strings.ToUpper(trade.Symbol)
		t := tallies[symbol]
		if t == nil {
			t = &tally{}
			tallies[symbol] = t
		}
		switch trade.Side {
		case models.SideBuy:
			t.boughtQty = t.boughtQty.Add(trade.Quantity)
			t.boughtCost = t.boughtCost.Add(trade.Total)
			if t.firstBuy.IsZero() || trade.Timestamp.Before(t.firstBuy) {
				t.firstBuy = trade.Timestamp
			}
			if trade.Timestamp.After(t.lastBuy) {
				t.lastBuy = trade.Timestamp
			}
		case models.SideSell:
			t.soldQty = t.soldQty.Add(trade.Quantity)
		}
	}

	existing, err := s.Repo.ListOwnershipByPortfolio(ctx, portfolio)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	seen := make(map[string]bool, len(tallies))

	for symbol, t := range tallies {
		seen[symbol] = true
		docID := models.OwnershipDocID(portfolio, symbol)
		net := t.boughtQty.Sub(t.soldQty)
		if net.LessThanOrEqual(decimal.Zero) || t.boughtQty.IsZero() {
			if err := s.Repo.DeleteOwnership(ctx, docID); err != nil {
				return err
			}
			continue
		}
		cost := t.boughtCost.Mul(net.Div(t.boughtQty))
		rec := &models.OwnershipRecord{
			DocID:           docID,
			Portfolio:       portfolio,
			Symbol:          symbol,
			Quantity:        net,
			TotalCost:       cost,
			FirstPurchaseAt: t.firstBuy,
			LastPurchaseAt:  t.lastBuy,
			LastUpdatedAt:   now,
		}
		if err := s.Repo.UpsertOwnership(ctx, rec); err != nil {
			return err
		}
	}

	// Records with no surviving trade evidence are stale.
	for _, rec := range existing {
		if !seen[strings.ToUpper(rec.Symbol)] {
			if err := s.Repo.DeleteOwnership(ctx, rec.DocID); err != nil {
				return err
			}
		}
	}
	return nil
}
