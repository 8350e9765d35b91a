package service

import (
	"context"

	"go.uber.org/zap"

	"stockbot/internal/broker"
	"stockbot/internal/models"
)

// StatusCheckerService polls the broker for every submitted trade and drives
// each one to a terminal ledger state. Fills also settle the cash sleeve
// and ownership, so the ledgers reflect actual executions, not estimates.
// When Runs is set, the owning run records are kept in step as trades drain,
// which is what lets a completed run turn successful once its last order
// fills.
type StatusCheckerService struct {
	Trades    *TradeLedgerService
	Cash      *CashLedgerService
	Ownership *OwnershipLedgerService
	Runs      *RunTrackerService
	Broker    broker.Broker
	Logger    *zap.Logger
}

// runDelta accumulates per-run outcomes of one polling pass.
type runDelta struct {
	filled  int
	failed  int
	pending int
}

func (s *StatusCheckerService) CheckSubmittedTrades(ctx context.Context, portfolio string) (CheckResult, error) {
	var result CheckResult
	if s == nil || s.Trades == nil || s.Broker == nil {
		return result, nil
	}
	submitted, err := s.Trades.SubmittedTrades(ctx, portfolio)
	if err != nil {
		return result, err
	}
	if len(submitted) == 0 {
		return result, nil
	}

	deltas := make(map[string]runDelta)
	for i := range submitted {
		trade := submitted[i]
		delta := deltas[trade.RunID]
		if trade.BrokerOrderID == "" {
			if s.Logger != nil {
				s.Logger.Warn("submitted trade has no broker order id",
					zap.String("trade_id", trade.DocID),
					zap.String("symbol", trade.Symbol))
			}
			delta.pending++
			deltas[trade.RunID] = delta
			continue
		}
		result.Checked++

		status, err := s.Broker.GetOrderStatus(ctx, trade.BrokerOrderID)
		if err != nil {
			// Leave it submitted; the next pass will look again.
			if s.Logger != nil {
				s.Logger.Error("order status check failed",
					zap.String("trade_id", trade.DocID),
					zap.Error(err))
			}
			result.StillPending++
			delta.pending++
			deltas[trade.RunID] = delta
			continue
		}

		switch status.State {
		case broker.OrderFilled:
			total := status.FilledQty.Mul(status.FilledPrice)
			if err := s.Trades.MarkFilled(ctx, trade.DocID, status.FilledQty, status.FilledPrice, total); err != nil {
				return result, err
			}
			result.Filled++
			delta.filled++
			if err := s.applyFillSideEffects(ctx, portfolio, &trade, status); err != nil && s.Logger != nil {
				s.Logger.Warn("fill side effects failed",
					zap.String("trade_id", trade.DocID),
					zap.Error(err))
			}
			if s.Logger != nil {
				s.Logger.Info("trade filled",
					zap.String("portfolio", portfolio),
					zap.String("symbol", trade.Symbol),
					zap.String("side", string(trade.Side)),
					zap.String("quantity", status.FilledQty.String()),
					zap.String("price", status.FilledPrice.String()))
			}
		case broker.OrderFailed:
			if err := s.Trades.MarkFailed(ctx, trade.DocID, "order "+string(status.State)+" at broker"); err != nil {
				return result, err
			}
			result.Failed++
			delta.failed++
			if s.Logger != nil {
				s.Logger.Warn("trade failed at broker",
					zap.String("portfolio", portfolio),
					zap.String("symbol", trade.Symbol))
			}
		default:
			result.StillPending++
			delta.pending++
		}
		deltas[trade.RunID] = delta
	}

	s.syncRunCounts(ctx, deltas)

	if s.Logger != nil {
		s.Logger.Info("trade status check complete",
			zap.String("portfolio", portfolio),
			zap.Int("checked", result.Checked),
			zap.Int("filled", result.Filled),
			zap.Int("failed", result.Failed),
			zap.Int("still_pending", result.StillPending))
	}
	return result, nil
}

// syncRunCounts folds a polling pass back into the owning run records, so a
// completed run's submitted count reaches zero once its orders settle. Runs
// still being planned are left alone; Complete writes their counts.
func (s *StatusCheckerService) syncRunCounts(ctx context.Context, deltas map[string]runDelta) {
	if s.Runs == nil || s.Runs.Repo == nil {
		return
	}
	for runID, delta := range deltas {
		if runID == "" {
			continue
		}
		run, err := s.Runs.Repo.GetExecutionRun(ctx, runID)
		if err != nil || run == nil || run.Status != models.RunCompleted {
			continue
		}
		counts := RunCounts{
			Planned:   run.TradesPlanned,
			Submitted: delta.pending,
			Filled:    run.TradesFilled + delta.filled,
			Failed:    run.TradesFailed + delta.failed,
		}
		if err := s.Runs.UpdateCounts(ctx, runID, counts); err != nil && s.Logger != nil {
			s.Logger.Warn("run count update failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}
}

func (s *StatusCheckerService) applyFillSideEffects(ctx context.Context, portfolio string, trade *models.TradeRecord, status *broker.OrderStatus) error {
	total := status.FilledQty.Mul(status.FilledPrice)
	filled := *trade
	filled.Quantity = status.FilledQty
	filled.Price = status.FilledPrice
	filled.Total = total

	if s.Ownership != nil {
		if err := s.Ownership.RecordFill(ctx, &filled); err != nil {
			return err
		}
	}
	if s.Cash != nil {
		switch trade.Side {
		case models.SideBuy:
			if _, err := s.Cash.Debit(ctx, portfolio, total); err != nil {
				return err
			}
		case models.SideSell:
			if _, err := s.Cash.Credit(ctx, portfolio, total); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllTradesTerminal reports whether no submitted trade remains.
func (s *StatusCheckerService) AllTradesTerminal(ctx context.Context, portfolio string) (bool, error) {
	if s == nil || s.Trades == nil {
		return true, nil
	}
	submitted, err := s.Trades.SubmittedTrades(ctx, portfolio)
	if err != nil {
		return false, err
	}
	return len(submitted) == 0, nil
}
