package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExecutionRunRecord is the idempotency record for one rebalancing attempt:
// one per portfolio per calendar day in the portfolio's operating timezone.
type ExecutionRunRecord struct {
	// DocID is the composite key "{portfolio}_{date}" with the date rendered
	// as YYYY-MM-DD in the portfolio's operating timezone. Part of the
	// durable contract with existing stored data.
	DocID string `gorm:"primaryKey;type:varchar(80)"`

	Portfolio string    `gorm:"type:varchar(50);not null;index"`
	Date      string    `gorm:"type:varchar(10);not null"`
	Status    RunStatus `gorm:"type:varchar(20);not null;default:'started'"`

	StartedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time

	TradesPlanned   int `gorm:"not null;default:0"`
	TradesSubmitted int `gorm:"not null;default:0"`
	TradesFilled    int `gorm:"not null;default:0"`
	TradesFailed    int `gorm:"not null;default:0"`

	ErrorMessage string `gorm:"type:text"`

	// Snapshot of the brokerage allocation at the end of the run, for
	// reporting.
	FinalAllocations datatypes.JSON

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ExecutionRunRecord) TableName() string {
	return "execution_runs"
}

// Successful reports whether the run finished with every trade in a terminal
// state. A completed run with outstanding submitted trades is not "done":
// the day must not be gated off until those resolve.
func (r *ExecutionRunRecord) Successful() bool {
	return r.Status == RunCompleted && r.TradesSubmitted == 0
}

// RunDocID builds the composite document key for a portfolio/date pair.
func RunDocID(portfolio, date string) string {
	return portfolio + "_" + date
}

// RunDate renders the calendar day of t in loc as used in run document keys.
func RunDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
