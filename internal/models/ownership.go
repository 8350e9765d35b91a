package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OwnershipRecord tracks what one portfolio believes it holds of one symbol,
// as distinct from the brokerage's own records. Quantity never goes negative;
// a record whose quantity reaches zero is deleted, not kept at zero.
type OwnershipRecord struct {
	// DocID is the composite key "{portfolio}_{symbol}". The format is part
	// of the durable contract with existing stored data.
	DocID string `gorm:"primaryKey;type:varchar(64)"`

	Portfolio string `gorm:"type:varchar(50);not null;index"`
	Symbol    string `gorm:"type:varchar(12);not null;index"`

	Quantity  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalCost decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	FirstPurchaseAt time.Time `gorm:"not null"`
	LastPurchaseAt  time.Time `gorm:"not null"`
	LastUpdatedAt   time.Time `gorm:"not null"`
}

func (OwnershipRecord) TableName() string {
	return "ownership"
}

// OwnershipDocID builds the composite document key for a portfolio/symbol pair.
func OwnershipDocID(portfolio, symbol string) string {
	return portfolio + "_" + strings.ToUpper(symbol)
}
