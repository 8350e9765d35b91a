package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperBroker is an in-memory venue that fills every market order
// immediately at a fixed per-symbol price. It backs local dry runs and tests.
type PaperBroker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	prices    map[string]decimal.Decimal
	positions map[string]decimal.Decimal
	orders    map[string]*OrderStatus
	history   []HistoricalTrade
}

func NewPaperBroker(cash decimal.Decimal, prices map[string]decimal.Decimal) *PaperBroker {
	p := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		p[symbol] = price
	}
	return &PaperBroker{
		cash:      cash,
		prices:    p,
		positions: make(map[string]decimal.Decimal),
		orders:    make(map[string]*OrderStatus),
	}
}

// SetPrice updates the fill price used for subsequent orders on symbol.
func (b *PaperBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

func (b *PaperBroker) GetCash(ctx context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

func (b *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	positions := make([]Position, 0, len(b.positions))
	for symbol, qty := range b.positions {
		positions = append(positions, Position{
			Symbol:      symbol,
			Quantity:    qty,
			MarketValue: qty.Mul(b.prices[symbol]),
		})
	}
	return positions, nil
}

// Buy fills a notional order at the current price.
func (b *PaperBroker) Buy(ctx context.Context, symbol string, notional decimal.Decimal) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, err := b.priceFor(symbol)
	if err != nil {
		return "", err
	}
	if notional.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("non-positive notional %s for %s", notional, symbol)
	}
	if b.cash.LessThan(notional) {
		return "", fmt.Errorf("insufficient cash: have %s, need %s", b.cash, notional)
	}
	qty := notional.Div(price)
	b.cash = b.cash.Sub(notional)
	b.positions[symbol] = b.positions[symbol].Add(qty)
	return b.record(symbol, "BUY", qty, price, notional), nil
}

// Sell fills exactly quantity shares at the current price.
func (b *PaperBroker) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, err := b.priceFor(symbol)
	if err != nil {
		return "", err
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("non-positive quantity %s for %s", quantity, symbol)
	}
	held := b.positions[symbol]
	if held.LessThan(quantity) {
		return "", fmt.Errorf("insufficient position in %s: have %s, need %s", symbol, held, quantity)
	}
	notional := quantity.Mul(price)
	b.cash = b.cash.Add(notional)
	remaining := held.Sub(quantity)
	if remaining.IsZero() {
		delete(b.positions, symbol)
	} else {
		b.positions[symbol] = remaining
	}
	return b.record(symbol, "SELL", quantity, price, notional), nil
}

func (b *PaperBroker) priceFor(symbol string) (decimal.Decimal, error) {
	price, ok := b.prices[symbol]
	if !ok || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func (b *PaperBroker) record(symbol, side string, qty, price, notional decimal.Decimal) string {
	now := time.Now().UTC()
	orderID := uuid.NewString()
	b.orders[orderID] = &OrderStatus{
		OrderID:     orderID,
		Symbol:      symbol,
		State:       OrderFilled,
		FilledQty:   qty,
		FilledPrice: price,
		UpdatedAt:   now,
	}
	b.history = append(b.history, HistoricalTrade{
		OrderID:  orderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Notional: notional,
		FilledAt: now,
	})
	return orderID
}

func (b *PaperBroker) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.orders[orderID]
	if !ok {
		return &OrderStatus{OrderID: orderID, State: OrderNotFound}, nil
	}
	copied := *status
	return &copied, nil
}

func (b *PaperBroker) GetTradeHistory(ctx context.Context, since time.Time) ([]HistoricalTrade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var trades []HistoricalTrade
	for _, trade := range b.history {
		if !trade.FilledAt.Before(since) {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}
