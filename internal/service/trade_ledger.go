package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// TradeLedgerService owns the per-trade state machine. Records move
// planned -> submitted -> filled or failed, never backward, and are never
// deleted: the trade log is the audit trail everything else replays.
type TradeLedgerService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *TradeLedgerService) RecordPlanned(ctx context.Context, trade *models.TradeRecord, runID string) (string, error) {
	if s == nil || s.Repo == nil || trade == nil {
		return "", nil
	}
	if trade.DocID == "" {
		trade.DocID = uuid.NewString()
	}
	trade.Status = models.TradePlanned
	trade.RunID = runID
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	if err := s.Repo.InsertTrade(ctx, trade); err != nil {
		return "", err
	}
	return trade.DocID, nil
}

func (s *TradeLedgerService) MarkSubmitted(ctx context.Context, tradeID, brokerOrderID string) error {
	return s.transition(ctx, tradeID, models.TradeSubmitted, func(trade *models.TradeRecord) {
		now := time.Now().UTC()
		trade.SubmittedAt = &now
		trade.BrokerOrderID = brokerOrderID
	})
}

// MarkFilled replaces the planned estimate with the actual fill figures.
func (s *TradeLedgerService) MarkFilled(ctx context.Context, tradeID string, quantity, price, total decimal.Decimal) error {
	return s.transition(ctx, tradeID, models.TradeFilled, func(trade *models.TradeRecord) {
		now := time.Now().UTC()
		trade.FilledAt = &now
		trade.Quantity = quantity
		trade.Price = price
		trade.Total = total
	})
}

func (s *TradeLedgerService) MarkFailed(ctx context.Context, tradeID, errMsg string) error {
	return s.transition(ctx, tradeID, models.TradeFailed, func(trade *models.TradeRecord) {
		now := time.Now().UTC()
		trade.FailedAt = &now
		trade.ErrorMessage = errMsg
	})
}

func (s *TradeLedgerService) transition(ctx context.Context, tradeID string, next models.TradeStatus, apply func(*models.TradeRecord)) error {
	if s == nil || s.Repo == nil || tradeID == "" {
		return nil
	}
	trade, err := s.Repo.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %s not found", tradeID)
	}
	if !trade.Status.CanTransition(next) {
		return fmt.Errorf("illegal trade transition %s -> %s for %s", trade.Status, next, tradeID)
	}
	trade.Status = next
	apply(trade)
	if err := s.Repo.UpdateTrade(ctx, trade); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("trade transition",
			zap.String("trade_id", tradeID),
			zap.String("status", string(next)))
	}
	return nil
}

// SubmittedTrades lists trades awaiting a terminal status from the broker.
func (s *TradeLedgerService) SubmittedTrades(ctx context.Context, portfolio string) ([]models.TradeRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListTradesByStatus(ctx, portfolio, []models.TradeStatus{models.TradeSubmitted})
}

// PendingTrades lists planned and submitted trades for the idempotency gate.
func (s *TradeLedgerService) PendingTrades(ctx context.Context, portfolio string) ([]models.TradeRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListTradesByStatus(ctx, portfolio, []models.TradeStatus{models.TradePlanned, models.TradeSubmitted})
}
