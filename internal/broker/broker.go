package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the normalized lifecycle state of a broker order.
type OrderState string

const (
	OrderFilled   OrderState = "filled"
	OrderFailed   OrderState = "failed"
	OrderPending  OrderState = "pending"
	OrderNotFound OrderState = "not_found"
)

// Position is a holding as reported by the broker account.
type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	MarketValue decimal.Decimal
}

// OrderStatus is the normalized view of a single order.
type OrderStatus struct {
	OrderID     string
	Symbol      string
	State       OrderState
	FilledQty   decimal.Decimal
	FilledPrice decimal.Decimal
	UpdatedAt   time.Time
}

// HistoricalTrade is one entry from the broker's closed-order history.
type HistoricalTrade struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Notional decimal.Decimal
	FilledAt time.Time
}

// Broker abstracts the trading venue. Buy submits a notional market order;
// Sell submits a share-quantity market order, so a price move between quote
// and execution can never liquidate more shares than were authorized. Both
// return the broker's order id; fills are observed later through
// GetOrderStatus.
type Broker interface {
	GetCash(ctx context.Context) (decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]Position, error)
	Buy(ctx context.Context, symbol string, notional decimal.Decimal) (string, error)
	Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (string, error)
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
	GetTradeHistory(ctx context.Context, since time.Time) ([]HistoricalTrade, error)
}
