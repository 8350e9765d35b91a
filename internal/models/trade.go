package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is one attempted buy or sell. Records are append-only: they are
// created when a trade is planned and mutated by submission, polling and
// reconciliation, but never deleted.
type TradeRecord struct {
	DocID string `gorm:"primaryKey;type:varchar(64)"`

	Symbol    string    `gorm:"type:varchar(12);not null;index"`
	Side      TradeSide `gorm:"type:varchar(4);not null"`
	Portfolio string    `gorm:"type:varchar(50);not null;index"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	Total    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Timestamp time.Time `gorm:"not null;index"`

	Status TradeStatus `gorm:"type:varchar(20);not null;default:'planned';index"`
	RunID  string      `gorm:"type:varchar(80);index"`

	BrokerOrderID string `gorm:"type:varchar(100);index"`

	SubmittedAt  *time.Time
	FilledAt     *time.Time
	FailedAt     *time.Time
	ErrorMessage string `gorm:"type:text"`

	// Set when broker history confirms or disputes the local record.
	ReconStatus  string `gorm:"type:varchar(20)"`
	ReconciledAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TradeRecord) TableName() string {
	return "trades"
}

// HasValidFill reports whether the record carries usable fill data.
func (t *TradeRecord) HasValidFill() bool {
	return t.Quantity.GreaterThan(decimal.Zero) &&
		t.Price.GreaterThan(decimal.Zero) &&
		t.Total.GreaterThan(decimal.Zero)
}
