package repository

import (
	"context"
	"time"

	"stockbot/internal/models"
)

// Repository is the narrow persistence surface the ledgers are built on: per-key
// reads and writes plus the equality-filtered scans the services need. Getters
// return (nil, nil) when the document does not exist.
type Repository interface {
	// Trades (append-only audit trail: no delete).
	InsertTrade(ctx context.Context, item *models.TradeRecord) error
	GetTrade(ctx context.Context, docID string) (*models.TradeRecord, error)
	UpdateTrade(ctx context.Context, item *models.TradeRecord) error
	ListTradesByStatus(ctx context.Context, portfolio string, statuses []models.TradeStatus) ([]models.TradeRecord, error)
	ListTradesByPortfolio(ctx context.Context, portfolio string) ([]models.TradeRecord, error)
	ListTradesSince(ctx context.Context, cutoff time.Time) ([]models.TradeRecord, error)

	// Ownership.
	GetOwnership(ctx context.Context, docID string) (*models.OwnershipRecord, error)
	UpsertOwnership(ctx context.Context, item *models.OwnershipRecord) error
	DeleteOwnership(ctx context.Context, docID string) error
	ListOwnershipByPortfolio(ctx context.Context, portfolio string) ([]models.OwnershipRecord, error)
	ListOwnershipBySymbol(ctx context.Context, symbol string) ([]models.OwnershipRecord, error)

	// Portfolio cash.
	GetPortfolioCash(ctx context.Context, portfolio string) (*models.PortfolioCashRecord, error)
	CreatePortfolioCashIfAbsent(ctx context.Context, item *models.PortfolioCashRecord) (created bool, err error)
	UpdatePortfolioCash(ctx context.Context, item *models.PortfolioCashRecord) error

	// Execution runs.
	GetExecutionRun(ctx context.Context, docID string) (*models.ExecutionRunRecord, error)
	UpsertExecutionRun(ctx context.Context, item *models.ExecutionRunRecord) error

	// External sales.
	InsertExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error
	UpdateExternalSale(ctx context.Context, item *models.ExternalSaleRecord) error
	ListUnusedExternalSales(ctx context.Context, portfolio string) ([]models.ExternalSaleRecord, error)
}
