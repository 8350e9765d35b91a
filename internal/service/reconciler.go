package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/broker"
	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// ReconcileResult reports one trade-history reconciliation pass.
type ReconcileResult struct {
	Updated  int `json:"updated"`
	Missing  int `json:"missing"`
	Unfilled int `json:"unfilled"`
}

// ReconcilerService resolves drift between the ledger and the brokerage.
// Drift is expected, not exceptional: shares can be sold manually, orders
// can fill at different figures than planned, and history is the only way
// to find out.
type ReconcilerService struct {
	Repo      repository.Repository
	Ownership *OwnershipLedgerService
	Logger    *zap.Logger
}

// DetectExternalSales compares tracked quantities against the broker's
// positions for a portfolio. Where the ledger tracks more than the broker
// holds, the difference is attributed to a sale this system never issued.
// Proceeds are estimated at average cost, since the real sale price is
// unknown.
func (s *ReconcilerService) DetectExternalSales(ctx context.Context, positions []broker.Position, portfolio string) ([]models.ExternalSaleRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	brokerQty := make(map[string]decimal.Decimal, len(positions))
	for _, pos := range positions {
		brokerQty[strings.ToUpper(pos.Symbol)] = pos.Quantity
	}

	records, err := s.Repo.ListOwnershipByPortfolio(ctx, portfolio)
	if err != nil {
		return nil, err
	}

	var sales []models.ExternalSaleRecord
	now := time.Now().UTC()
	for i := range records {
		rec := records[i]
		if rec.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}
		held := brokerQty[strings.ToUpper(rec.Symbol)]
		if held.GreaterThanOrEqual(rec.Quantity) {
			continue
		}
		soldQty := rec.Quantity.Sub(held)
		costPerShare := decimal.Zero
		if rec.Quantity.GreaterThan(decimal.Zero) {
			costPerShare = rec.TotalCost.Div(rec.Quantity)
		}
		proceeds := costPerShare.Mul(soldQty)

		if held.IsZero() {
			if err := s.Repo.DeleteOwnership(ctx, rec.DocID); err != nil {
				return nil, err
			}
		} else {
			rec.TotalCost = rec.TotalCost.Mul(held.Div(rec.Quantity))
			rec.Quantity = held
			rec.LastUpdatedAt = now
			if err := s.Repo.UpsertOwnership(ctx, &rec); err != nil {
				return nil, err
			}
		}

		sale := models.ExternalSaleRecord{
			DocID:             uuid.NewString(),
			Portfolio:         portfolio,
			Symbol:            strings.ToUpper(rec.Symbol),
			Quantity:          soldQty,
			EstimatedProceeds: proceeds,
			DetectedAt:        now,
		}
		if err := s.Repo.InsertExternalSale(ctx, &sale); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		if s.Logger != nil {
			s.Logger.Warn("external sale detected",
				zap.String("portfolio", portfolio),
				zap.String("symbol", sale.Symbol),
				zap.String("quantity", soldQty.String()),
				zap.String("estimated_proceeds", proceeds.StringFixed(2)))
		}
	}
	return sales, nil
}

// UnusedExternalSaleProceeds totals proceeds not yet spent on buys.
func (s *ReconcilerService) UnusedExternalSaleProceeds(ctx context.Context, portfolio string) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil {
		return decimal.Zero, nil
	}
	sales, err := s.Repo.ListUnusedExternalSales(ctx, portfolio)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.EstimatedProceeds)
	}
	return total, nil
}

// MarkExternalSalesUsed consumes sale records oldest-first until the
// requested amount is covered.
func (s *ReconcilerService) MarkExternalSalesUsed(ctx context.Context, amount decimal.Decimal, portfolio string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	sales, err := s.Repo.ListUnusedExternalSales(ctx, portfolio)
	if err != nil {
		return err
	}
	remaining := amount
	now := time.Now().UTC()
	for i := range sales {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		sale := sales[i]
		sale.UsedForReinvestment = true
		sale.ReinvestedAt = &now
		if err := s.Repo.UpdateExternalSale(ctx, &sale); err != nil {
			return err
		}
		remaining = remaining.Sub(sale.EstimatedProceeds)
	}
	return nil
}

// ReconcileTradeHistory matches broker-confirmed trades against ledger
// records, first by broker order id, then by (symbol, side, within one
// hour). Matched records take the broker's fill figures. Records the broker
// does not confirm within 24h and with no valid fill are flagged unfilled
// for operator visibility; a later valid fill clears the flag. Affected
// portfolios get their ownership rebuilt from the corrected log.
func (s *ReconcilerService) ReconcileTradeHistory(ctx context.Context, brokerTrades []broker.HistoricalTrade, lookback time.Duration) (ReconcileResult, error) {
	var result ReconcileResult
	if s == nil || s.Repo == nil || len(brokerTrades) == 0 {
		return result, nil
	}

	cutoff := time.Now().UTC().Add(-lookback)
	ledgerTrades, err := s.Repo.ListTradesSince(ctx, cutoff)
	if err != nil {
		return result, err
	}

	byOrderID := make(map[string]*models.TradeRecord, len(ledgerTrades))
	matched := make(map[string]bool, len(ledgerTrades))
	for i := range ledgerTrades {
		if ledgerTrades[i].BrokerOrderID != "" {
			byOrderID[ledgerTrades[i].BrokerOrderID] = &ledgerTrades[i]
		}
	}

	touched := make(map[string]bool)
	for _, bt := range brokerTrades {
		var hit *models.TradeRecord
		if bt.OrderID != "" {
			hit = byOrderID[bt.OrderID]
		}
		if hit == nil {
			hit = matchLoose(ledgerTrades, matched, bt)
		}
		if hit == nil {
			result.Missing++
			continue
		}
		matched[hit.DocID] = true

		if fillDiffers(hit, bt) {
			hit.Quantity = bt.Quantity
			hit.Price = bt.Price
			hit.Total = bt.Notional
			if hit.BrokerOrderID == "" {
				hit.BrokerOrderID = bt.OrderID
			}
			now := time.Now().UTC()
			hit.ReconciledAt = &now
			if hit.ReconStatus == models.ReconUnfilled && hit.HasValidFill() {
				hit.ReconStatus = ""
			}
			if err := s.Repo.UpdateTrade(ctx, hit); err != nil {
				return result, err
			}
			touched[hit.Portfolio] = true
			result.Updated++
		}
	}

	// Flag ledger trades the broker never confirmed within a day.
	stale := time.Now().UTC().Add(-24 * time.Hour)
	for i := range ledgerTrades {
		trade := &ledgerTrades[i]
		if matched[trade.DocID] || trade.HasValidFill() {
			continue
		}
		if trade.Timestamp.After(stale) || trade.ReconStatus == models.ReconUnfilled {
			continue
		}
		trade.ReconStatus = models.ReconUnfilled
		now := time.Now().UTC()
		trade.ReconciledAt = &now
		if err := s.Repo.UpdateTrade(ctx, trade); err != nil {
			return result, err
		}
		result.Unfilled++
	}

	if s.Ownership != nil {
		for portfolio := range touched {
			if err := s.Ownership.RecalculateFromTradeLog(ctx, portfolio); err != nil {
				return result, err
			}
		}
	}
	if s.Logger != nil {
		s.Logger.Info("trade history reconciled",
			zap.Int("updated", result.Updated),
			zap.Int("missing", result.Missing),
			zap.Int("unfilled", result.Unfilled))
	}
	return result, nil
}

func matchLoose(trades []models.TradeRecord, matched map[string]bool, bt broker.HistoricalTrade) *models.TradeRecord {
	side := models.TradeSide(broker.NormalizeSide(bt.Side))
	for i := range trades {
		trade := &trades[i]
		if matched[trade.DocID] {
			continue
		}
		if !strings.EqualFold(trade.Symbol, bt.Symbol) || trade.Side != side {
			continue
		}
		diff := trade.Timestamp.Sub(bt.FilledAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < time.Hour {
			return trade
		}
	}
	return nil
}

func fillDiffers(trade *models.TradeRecord, bt broker.HistoricalTrade) bool {
	tolerance := decimal.NewFromFloat(0.01)
	return trade.Quantity.Sub(bt.Quantity).Abs().GreaterThan(tolerance) ||
		trade.Price.Sub(bt.Price).Abs().GreaterThan(tolerance) ||
		trade.Total.Sub(bt.Notional).Abs().GreaterThan(tolerance)
}
