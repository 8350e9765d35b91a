package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalSaleRecord captures a detected discrepancy where the ledger tracked
// more shares than the broker reports: an inferred sale not issued by this
// system. Proceeds are estimated at the ledger's average cost per share since
// the actual sale price is unknown.
type ExternalSaleRecord struct {
	DocID string `gorm:"primaryKey;type:varchar(64)"`

	Portfolio string `gorm:"type:varchar(50);not null;index"`
	Symbol    string `gorm:"type:varchar(12);not null;index"`

	Quantity          decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	EstimatedProceeds decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	DetectedAt time.Time `gorm:"not null;index"`

	UsedForReinvestment bool `gorm:"not null;default:false;index"`
	ReinvestedAt        *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ExternalSaleRecord) TableName() string {
	return "external_sales"
}
