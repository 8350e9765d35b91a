package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioCashRecord is the cash balance of one logical portfolio. It is
// created exactly once: re-initialization never overwrites an existing
// balance.
type PortfolioCashRecord struct {
	// DocID is the portfolio name.
	DocID string `gorm:"primaryKey;type:varchar(50)"`

	InitialCapital decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Balance        decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PortfolioCashRecord) TableName() string {
	return "portfolio_cash"
}
