package service

import (
	"context"
	"sort"
	"time"

	"stockbot/internal/models"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Getters copy records so tests mutate stored state only through the
// interface, the way a real database would.
type stubRepo struct {
	trades        map[string]*models.TradeRecord
	ownership     map[string]*models.OwnershipRecord
	cash          map[string]*models.PortfolioCashRecord
	runs          map[string]*models.ExecutionRunRecord
	externalSales map[string]*models.ExternalSaleRecord
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		trades:        make(map[string]*models.TradeRecord),
		ownership:     make(map[string]*models.OwnershipRecord),
		cash:          make(map[string]*models.PortfolioCashRecord),
		runs:          make(map[string]*models.ExecutionRunRecord),
		externalSales: make(map[string]*models.ExternalSaleRecord),
	}
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.TradeRecord) error {
	copied := *item
	s.trades[item.DocID] = &copied
	return nil
}

func (s *stubRepo) GetTrade(ctx context.Context, docID string) (*models.TradeRecord, error) {
	rec, ok := s.trades[docID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *stubRepo) UpdateTrade(ctx context.Context, item *models.TradeRecord) error {
	copied := *item
	s.trades[item.DocID] = &copied
	return nil
}

func (s *stubRepo) ListTradesByStatus(ctx context.Context, portfolio string, statuses []models.TradeStatus) ([]models.TradeRecord, error) {
	wanted := make(map[models.TradeStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []models.TradeRecord
	for _, rec := range s.trades {
		if portfolio != "" && rec.Portfolio != portfolio {
			continue
		}
		if !wanted[rec.Status] {
			continue
		}
		out = append(out, *rec)
	}
	sortTradesByTimestamp(out)
	return out, nil
}

func (s *stubRepo) ListTradesByPortfolio(ctx context.Context, portfolio string) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	for _, rec := range s.trades {
		if rec.Portfolio == portfolio {
			out = append(out, *rec)
		}
	}
	sortTradesByTimestamp(out)
	return out, nil
}

func (s *stubRepo) ListTradesSince(ctx context.Context, cutoff time.Time) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	for _, rec := range s.trades {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	sortTradesByTimestamp(out)
	return out, nil
}

func (s *stubRepo) GetOwnership(ctx context.Context, docID string) (*models.OwnershipRecord, error) {
	rec, ok := s.ownership[docID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *stubRepo) UpsertOwnership(ctx context.Context, item *models.OwnershipRecord) error {
	copied := *item
	s.ownership[item.DocID] = &copied
	return nil
}

func (s *stubRepo) DeleteOwnership(ctx context.Context, docID string) error {
	delete(s.ownership, docID)
	return nil
}

func (s *stubRepo) ListOwnershipByPortfolio(ctx context.Context, portfolio string) ([]models.OwnershipRecord, error) {
	var out []models.OwnershipRecord
	for _, rec := range s.ownership {
		if rec.Portfolio == portfolio {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *stubRepo) ListOwnershipBySymbol(ctx context.Context, symbol string) ([]models.OwnershipRecord, error) {
	var out []models.OwnershipRecord
	for _, rec := range s.ownership {
		if rec.Symbol == symbol {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Portfolio < out[j].Portfolio })
	return out, nil
}

func (s *stubRepo) GetPortfolioCash(ctx context.Context, portfolio string) (*models.PortfolioCashRecord, error) {
	rec, ok := s.cash[portfolio]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *stubRepo) CreatePortfolioCashIfAbsent(ctx context.Context, item *models.PortfolioCashRecord) (bool, error) {
	if _, ok := s.cash[item.DocID]; ok {
		return false, nil
	}
	copied := *item
	s.cash[item.DocID] = &copied
	return true, nil
}

func (s *stubRepo) UpdatePortfolioCash(ctx context.Context, item *models.PortfolioCashRecord) error {
	copied := *item
	s.cash[item.DocID] = &copied
	return nil
}

func (s *stubRepo) GetExecutionRun(ctx context.Context, docID string) (*models.ExecutionRunRecord, error) {
	rec, ok := s.runs[docID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *stubRepo) UpsertExecutionRun(ctx context.Context, item *models.ExecutionRunRecord) error {
	copied := *item
	s.runs[item.DocID] = &copied
	return nil
}

func (s *stubRepo) InsertExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error {
	copied := *item
	s.externalSales[item.DocID] = &copied
	return nil
}

func (s *stubRepo) UpdateExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error {
	copied := *item
	s.externalSales[item.DocID] = &copied
	return nil
}

func (s *stubRepo) ListUnusedExternalSales(ctx context.Context, portfolio string) ([]models.ExternalSaleRecord, error) {
	var out []models.ExternalSaleRecord
	for _, rec := range s.externalSales {
		if rec.Portfolio == portfolio && !rec.UsedForReinvestment {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func sortTradesByTimestamp(trades []models.TradeRecord) {
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp.Before(trades[j].Timestamp) })
}
