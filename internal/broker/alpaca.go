package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

// AlpacaBroker trades through the Alpaca REST API using market orders,
// notional on the buy side and share-sized on the sell side. Point BaseURL
// at the paper endpoint for dry runs.
type AlpacaBroker struct {
	client *alpaca.Client
}

func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

func (b *AlpacaBroker) GetCash(ctx context.Context) (decimal.Decimal, error) {
	account, err := b.client.GetAccount()
	if err != nil {
		return decimal.Zero, fmt.Errorf("get account: %w", err)
	}
	return account.Cash, nil
}

func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]Position, error) {
	raw, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := Position{
			Symbol:   p.Symbol,
			Quantity: p.Qty,
		}
		if p.MarketValue != nil {
			pos.MarketValue = *p.MarketValue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (b *AlpacaBroker) Buy(ctx context.Context, symbol string, notional decimal.Decimal) (string, error) {
	if notional.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("non-positive notional %s for %s", notional, symbol)
	}
	return b.placeOrder(alpaca.PlaceOrderRequest{
		Symbol:   symbol,
		Notional: &notional,
		Side:     alpaca.Buy,
	})
}

// Sell is sized in shares, not dollars. Sizing by notional would let the
// venue pick the share count at execution-time prices.
func (b *AlpacaBroker) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (string, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("non-positive quantity %s for %s", quantity, symbol)
	}
	return b.placeOrder(alpaca.PlaceOrderRequest{
		Symbol: symbol,
		Qty:    &quantity,
		Side:   alpaca.Sell,
	})
}

func (b *AlpacaBroker) placeOrder(req alpaca.PlaceOrderRequest) (string, error) {
	req.Type = alpaca.Market
	req.TimeInForce = alpaca.Day
	order, err := b.client.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("place %s order for %s: %w", req.Side, req.Symbol, err)
	}
	return order.ID, nil
}

func (b *AlpacaBroker) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	order, err := b.client.GetOrder(orderID)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return &OrderStatus{OrderID: orderID, State: OrderNotFound}, nil
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	status := &OrderStatus{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		State:     NormalizeState(order.Status),
		FilledQty: order.FilledQty,
		UpdatedAt: order.UpdatedAt,
	}
	if order.FilledAvgPrice != nil {
		status.FilledPrice = *order.FilledAvgPrice
	}
	return status, nil
}

func (b *AlpacaBroker) GetTradeHistory(ctx context.Context, since time.Time) ([]HistoricalTrade, error) {
	orders, err := b.client.GetOrders(alpaca.GetOrdersRequest{
		Status: "closed",
		After:  since,
		Limit:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	trades := make([]HistoricalTrade, 0, len(orders))
	for _, order := range orders {
		if NormalizeState(order.Status) != OrderFilled || order.FilledAt == nil {
			continue
		}
		trade := HistoricalTrade{
			OrderID:  order.ID,
			Symbol:   order.Symbol,
			Side:     NormalizeSide(string(order.Side)),
			Quantity: order.FilledQty,
			FilledAt: *order.FilledAt,
		}
		if order.FilledAvgPrice != nil {
			trade.Price = *order.FilledAvgPrice
			trade.Notional = order.FilledQty.Mul(*order.FilledAvgPrice)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}
