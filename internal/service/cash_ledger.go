package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// minViableOrder is the smallest notional worth submitting to the broker.
var minViableOrder = decimal.NewFromInt(1)

// CashLedgerService tracks each portfolio's cash sleeve. Balances move only
// through debit and credit so the ledger stays consistent with fills.
type CashLedgerService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Initialize creates the cash record for a portfolio if it does not exist.
// Repeat calls never reset an existing balance.
func (s *CashLedgerService) Initialize(ctx context.Context, portfolio string, initialCapital decimal.Decimal) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	created, err := s.Repo.CreatePortfolioCashIfAbsent(ctx, &models.PortfolioCashRecord{
		DocID:          portfolio,
		InitialCapital: initialCapital,
		Balance:        initialCapital,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return err
	}
	if created && s.Logger != nil {
		s.Logger.Info("initialized portfolio cash",
			zap.String("portfolio", portfolio),
			zap.String("initial_capital", initialCapital.String()))
	}
	return nil
}

func (s *CashLedgerService) Balance(ctx context.Context, portfolio string) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil {
		return decimal.Zero, nil
	}
	rec, err := s.Repo.GetPortfolioCash(ctx, portfolio)
	if err != nil {
		return decimal.Zero, err
	}
	if rec == nil {
		return decimal.Zero, nil
	}
	return rec.Balance, nil
}

// Debit subtracts amount from the portfolio balance and returns the new
// balance. An uninitialized portfolio logs and reports zero.
func (s *CashLedgerService) Debit(ctx context.Context, portfolio string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, portfolio, amount.Neg())
}

// Credit adds amount to the portfolio balance and returns the new balance.
func (s *CashLedgerService) Credit(ctx context.Context, portfolio string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.adjust(ctx, portfolio, amount)
}

func (s *CashLedgerService) adjust(ctx context.Context, portfolio string, delta decimal.Decimal) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil {
		return decimal.Zero, nil
	}
	rec, err := s.Repo.GetPortfolioCash(ctx, portfolio)
	if err != nil {
		return decimal.Zero, err
	}
	if rec == nil {
		if s.Logger != nil {
			s.Logger.Warn("cash adjustment on uninitialized portfolio",
				zap.String("portfolio", portfolio),
				zap.String("delta", delta.String()))
		}
		return decimal.Zero, nil
	}
	rec.Balance = rec.Balance.Add(delta)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.Repo.UpdatePortfolioCash(ctx, rec); err != nil {
		return decimal.Zero, err
	}
	return rec.Balance, nil
}

func (s *CashLedgerService) CanAfford(ctx context.Context, portfolio string, amount decimal.Decimal) (bool, error) {
	balance, err := s.Balance(ctx, portfolio)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

// AllocationPerStock sizes a purchase of missingCount stocks: equal weight
// against initial capital, capped by what the cash sleeve can cover. Amounts
// under a dollar are rejected rather than submitted as dust orders.
func (s *CashLedgerService) AllocationPerStock(ctx context.Context, portfolio string, initialCapital decimal.Decimal, stockCount, missingCount int) (decimal.Decimal, error) {
	if s == nil || s.Repo == nil || missingCount <= 0 || stockCount <= 0 {
		return decimal.Zero, nil
	}
	available, err := s.Balance(ctx, portfolio)
	if err != nil {
		return decimal.Zero, err
	}
	if available.LessThanOrEqual(decimal.Zero) {
		if s.Logger != nil {
			s.Logger.Warn("no cash available for missing stock purchases",
				zap.String("portfolio", portfolio))
		}
		return decimal.Zero, nil
	}

	target := initialCapital.Div(decimal.NewFromInt(int64(stockCount)))
	cap := available.Div(decimal.NewFromInt(int64(missingCount)))
	allocation := decimal.Min(target, cap)

	if allocation.LessThan(minViableOrder) {
		if s.Logger != nil {
			s.Logger.Warn("allocation per stock below minimum",
				zap.String("portfolio", portfolio),
				zap.String("allocation", allocation.StringFixed(2)),
				zap.String("available", available.StringFixed(2)),
				zap.Int("missing", missingCount))
		}
		return decimal.Zero, nil
	}
	return allocation, nil
}
