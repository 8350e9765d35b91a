package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestPaper() *PaperBroker {
	return NewPaperBroker(decimal.NewFromInt(10000), map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(200),
		"MSFT": decimal.NewFromInt(400),
	})
}

func TestPaperBuy_FillsImmediately(t *testing.T) {
	paper := newTestPaper()
	ctx := context.Background()

	orderID, err := paper.Buy(ctx, "AAPL", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	status, err := paper.GetOrderStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != OrderFilled {
		t.Fatalf("state=%s want=filled", status.State)
	}
	if status.FilledQty.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("qty=%s want=5", status.FilledQty)
	}

	cash, _ := paper.GetCash(ctx)
	if cash.Cmp(decimal.NewFromInt(9000)) != 0 {
		t.Fatalf("cash=%s want=9000", cash)
	}
	positions, _ := paper.GetPositions(ctx)
	if len(positions) != 1 || positions[0].Symbol != "AAPL" {
		t.Fatalf("positions=%+v want one AAPL position", positions)
	}
	if positions[0].MarketValue.Cmp(decimal.NewFromInt(1000)) != 0 {
		t.Fatalf("market_value=%s want=1000", positions[0].MarketValue)
	}
}

func TestPaperBuy_InsufficientCash(t *testing.T) {
	paper := newTestPaper()
	if _, err := paper.Buy(context.Background(), "AAPL", decimal.NewFromInt(20000)); err == nil {
		t.Fatalf("expected insufficient cash error")
	}
}

func TestPaperSell_RemovesEmptyPosition(t *testing.T) {
	paper := newTestPaper()
	ctx := context.Background()

	if _, err := paper.Buy(ctx, "AAPL", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := paper.Sell(ctx, "AAPL", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	positions, _ := paper.GetPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("positions=%+v want empty after full sell", positions)
	}
	cash, _ := paper.GetCash(ctx)
	if cash.Cmp(decimal.NewFromInt(10000)) != 0 {
		t.Fatalf("cash=%s want=10000 round trip", cash)
	}
}

func TestPaperSell_InsufficientPosition(t *testing.T) {
	paper := newTestPaper()
	if _, err := paper.Sell(context.Background(), "MSFT", decimal.NewFromInt(1)); err == nil {
		t.Fatalf("expected insufficient position error")
	}
}

func TestPaperSell_QuantityFixedUnderRepricing(t *testing.T) {
	paper := newTestPaper()
	ctx := context.Background()

	if _, err := paper.Buy(ctx, "AAPL", decimal.NewFromInt(2000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	paper.SetPrice("AAPL", decimal.NewFromInt(150))

	orderID, err := paper.Sell(ctx, "AAPL", decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	status, _ := paper.GetOrderStatus(ctx, orderID)
	if status.FilledQty.Cmp(decimal.NewFromInt(4)) != 0 {
		t.Fatalf("filled_qty=%s want=4 regardless of the price move", status.FilledQty)
	}
	positions, _ := paper.GetPositions(ctx)
	if len(positions) != 1 || positions[0].Quantity.Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("positions=%+v want 6 AAPL shares left", positions)
	}
	cash, _ := paper.GetCash(ctx)
	// 10000 - 2000 + 4*150
	if cash.Cmp(decimal.NewFromInt(8600)) != 0 {
		t.Fatalf("cash=%s want=8600", cash)
	}
}

func TestPaperOrder_UnknownSymbol(t *testing.T) {
	paper := newTestPaper()
	if _, err := paper.Buy(context.Background(), "ZZZZ", decimal.NewFromInt(100)); err == nil {
		t.Fatalf("expected missing price error")
	}
}

func TestPaperGetOrderStatus_Unknown(t *testing.T) {
	paper := newTestPaper()
	status, err := paper.GetOrderStatus(context.Background(), "no-such-order")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != OrderNotFound {
		t.Fatalf("state=%s want=not_found", status.State)
	}
}

func TestPaperTradeHistory_SinceFilter(t *testing.T) {
	paper := newTestPaper()
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Minute)
	if _, err := paper.Buy(ctx, "AAPL", decimal.NewFromInt(400)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := paper.Buy(ctx, "MSFT", decimal.NewFromInt(800)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	history, err := paper.GetTradeHistory(ctx, before)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history=%d want=2", len(history))
	}
	if history[0].Side != "BUY" || history[0].Symbol != "AAPL" {
		t.Fatalf("history[0]=%+v want AAPL buy", history[0])
	}

	future, err := paper.GetTradeHistory(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("future history=%d want=0", len(future))
	}
}
