package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockbot/internal/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTrade(ctx context.Context, docID string) (*models.TradeRecord, error) {
	if s == nil || s.db == nil || docID == "" {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateTrade(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListTradesByStatus(ctx context.Context, portfolio string, statuses []models.TradeStatus) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil || len(statuses) == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{}).Where("status IN ?", statuses)
	if strings.TrimSpace(portfolio) != "" {
		query = query.Where("portfolio = ?", portfolio)
	}
	var items []models.TradeRecord
	if err := query.Order("timestamp asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTradesByPortfolio(ctx context.Context, portfolio string) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil || portfolio == "" {
		return nil, nil
	}
	var items []models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("portfolio = ?", portfolio).
		Order("timestamp asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTradesSince(ctx context.Context, cutoff time.Time) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("timestamp >= ?", cutoff).
		Order("timestamp asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Ownership --------------------------------------------------------------

func (s *Store) GetOwnership(ctx context.Context, docID string) (*models.OwnershipRecord, error) {
	if s == nil || s.db == nil || docID == "" {
		return nil, nil
	}
	var item models.OwnershipRecord
	err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertOwnership(ctx context.Context, item *models.OwnershipRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	if item.DocID == "" {
		item.DocID = models.OwnershipDocID(item.Portfolio, item.Symbol)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity",
			"total_cost",
			"first_purchase_at",
			"last_purchase_at",
			"last_updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteOwnership(ctx context.Context, docID string) error {
	if s == nil || s.db == nil || docID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Where("doc_id = ?", docID).Delete(&models.OwnershipRecord{}).Error
}

func (s *Store) ListOwnershipByPortfolio(ctx context.Context, portfolio string) ([]models.OwnershipRecord, error) {
	if s == nil || s.db == nil || portfolio == "" {
		return nil, nil
	}
	var items []models.OwnershipRecord
	err := s.db.WithContext(ctx).
		Where("portfolio = ?", portfolio).
		Order("symbol asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOwnershipBySymbol(ctx context.Context, symbol string) ([]models.OwnershipRecord, error) {
	if s == nil || s.db == nil || symbol == "" {
		return nil, nil
	}
	var items []models.OwnershipRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Portfolio cash ---------------------------------------------------------

func (s *Store) GetPortfolioCash(ctx context.Context, portfolio string) (*models.PortfolioCashRecord, error) {
	if s == nil || s.db == nil || portfolio == "" {
		return nil, nil
	}
	var item models.PortfolioCashRecord
	err := s.db.WithContext(ctx).Where("doc_id = ?", portfolio).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreatePortfolioCashIfAbsent(ctx context.Context, item *models.PortfolioCashRecord) (bool, error) {
	if s == nil || s.db == nil || item == nil || item.DocID == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdatePortfolioCash(ctx context.Context, item *models.PortfolioCashRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// --- Execution runs ---------------------------------------------------------

func (s *Store) GetExecutionRun(ctx context.Context, docID string) (*models.ExecutionRunRecord, error) {
	if s == nil || s.db == nil || docID == "" {
		return nil, nil
	}
	var item models.ExecutionRunRecord
	err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertExecutionRun(ctx context.Context, item *models.ExecutionRunRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.DocID == "" {
		item.DocID = models.RunDocID(item.Portfolio, item.Date)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"started_at",
			"completed_at",
			"trades_planned",
			"trades_submitted",
			"trades_filled",
			"trades_failed",
			"error_message",
			"final_allocations",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- External sales ---------------------------------------------------------

func (s *Store) InsertExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListUnusedExternalSales(ctx context.Context, portfolio string) ([]models.ExternalSaleRecord, error) {
	if s == nil || s.db == nil || portfolio == "" {
		return nil, nil
	}
	var items []models.ExternalSaleRecord
	err := s.db.WithContext(ctx).
		Where("portfolio = ?", portfolio).
		Where("used_for_reinvestment = ?", false).
		Order("detected_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
