package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockbot/internal/broker"
	"stockbot/internal/models"
)

// fakeBroker serves canned order statuses keyed by order id.
type fakeBroker struct {
	statuses map[string]*broker.OrderStatus
}

func (b *fakeBroker) GetCash(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (b *fakeBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	return nil, nil
}

func (b *fakeBroker) Buy(ctx context.Context, symbol string, notional decimal.Decimal) (string, error) {
	return "", nil
}

func (b *fakeBroker) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (string, error) {
	return "", nil
}

func (b *fakeBroker) GetOrderStatus(ctx context.Context, orderID string) (*broker.OrderStatus, error) {
	if status, ok := b.statuses[orderID]; ok {
		copied := *status
		return &copied, nil
	}
	return &broker.OrderStatus{OrderID: orderID, State: broker.OrderNotFound}, nil
}

func (b *fakeBroker) GetTradeHistory(ctx context.Context, since time.Time) ([]broker.HistoricalTrade, error) {
	return nil, nil
}

func newChecker(repo *stubRepo, b broker.Broker) *StatusCheckerService {
	return &StatusCheckerService{
		Trades:    &TradeLedgerService{Repo: repo},
		Cash:      &CashLedgerService{Repo: repo},
		Ownership: &OwnershipLedgerService{Repo: repo},
		Broker:    b,
	}
}

func submitTrade(t *testing.T, repo *stubRepo, symbol string, side models.TradeSide, notional float64, orderID string) string {
	t.Helper()
	svc := &TradeLedgerService{Repo: repo}
	trade := &models.TradeRecord{
		Symbol:    symbol,
		Side:      side,
		Portfolio: "growth",
		Total:     decimal.NewFromFloat(notional),
		Timestamp: time.Now().UTC(),
	}
	tradeID, err := svc.RecordPlanned(context.Background(), trade, "run-1")
	if err != nil {
		t.Fatalf("record planned: %v", err)
	}
	if err := svc.MarkSubmitted(context.Background(), tradeID, orderID); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	return tradeID
}

func TestCheckSubmittedTrades_BuyFillSettlesLedgers(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	cash := &CashLedgerService{Repo: repo}
	if err := cash.Initialize(ctx, "growth", decimal.NewFromInt(10000)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tradeID := submitTrade(t, repo, "AAPL", models.SideBuy, 2000, "order-1")

	fb := &fakeBroker{statuses: map[string]*broker.OrderStatus{
		"order-1": {
			OrderID:     "order-1",
			Symbol:      "AAPL",
			State:       broker.OrderFilled,
			FilledQty:   decimal.NewFromInt(10),
			FilledPrice: decimal.NewFromInt(199),
		},
	}}
	checker := newChecker(repo, fb)

	result, err := checker.CheckSubmittedTrades(ctx, "growth")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Filled != 1 || result.StillPending != 0 {
		t.Fatalf("result=%+v want one fill", result)
	}

	stored, _ := repo.GetTrade(ctx, tradeID)
	if stored.Status != models.TradeFilled {
		t.Fatalf("status=%s want=filled", stored.Status)
	}
	// Actual fill figures win over the planned notional.
	if stored.Total.Cmp(decimal.NewFromInt(1990)) != 0 {
		t.Fatalf("total=%s want=1990", stored.Total)
	}

	balance, _ := cash.Balance(ctx, "growth")
	if balance.Cmp(decimal.NewFromInt(8010)) != 0 {
		t.Fatalf("balance=%s want=8010", balance)
	}
	own, _ := repo.GetOwnership(ctx, models.OwnershipDocID("growth", "AAPL"))
	if own == nil || own.Quantity.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("ownership=%+v want quantity=10", own)
	}
}

func TestCheckSubmittedTrades_SellFillCreditsCash(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	cash := &CashLedgerService{Repo: repo}
	if err := cash.Initialize(ctx, "growth", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	ownership := &OwnershipLedgerService{Repo: repo}
	if err := ownership.RecordFill(ctx, fillTrade("growth", "AAPL", models.SideBuy, 10, 100, time.Now().UTC().Add(-time.Hour))); err != nil {
		t.Fatalf("seed ownership: %v", err)
	}
	submitTrade(t, repo, "AAPL", models.SideSell, 500, "order-2")

	fb := &fakeBroker{statuses: map[string]*broker.OrderStatus{
		"order-2": {
			OrderID:     "order-2",
			Symbol:      "AAPL",
			State:       broker.OrderFilled,
			FilledQty:   decimal.NewFromInt(5),
			FilledPrice: decimal.NewFromInt(101),
		},
	}}
	checker := newChecker(repo, fb)

	result, err := checker.CheckSubmittedTrades(ctx, "growth")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Filled != 1 {
		t.Fatalf("result=%+v want one fill", result)
	}
	balance, _ := cash.Balance(ctx, "growth")
	if balance.Cmp(decimal.NewFromInt(1505)) != 0 {
		t.Fatalf("balance=%s want=1505", balance)
	}
	own, _ := repo.GetOwnership(ctx, models.OwnershipDocID("growth", "AAPL"))
	if own == nil || own.Quantity.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("ownership=%+v want quantity=5", own)
	}
}

func TestCheckSubmittedTrades_FailedAndPending(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	failedID := submitTrade(t, repo, "AAPL", models.SideBuy, 1000, "order-bad")
	pendingID := submitTrade(t, repo, "MSFT", models.SideBuy, 1000, "order-slow")

	fb := &fakeBroker{statuses: map[string]*broker.OrderStatus{
		"order-bad":  {OrderID: "order-bad", Symbol: "AAPL", State: broker.OrderFailed},
		"order-slow": {OrderID: "order-slow", Symbol: "MSFT", State: broker.OrderPending},
	}}
	checker := newChecker(repo, fb)

	result, err := checker.CheckSubmittedTrades(ctx, "growth")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Failed != 1 || result.StillPending != 1 || result.Filled != 0 {
		t.Fatalf("result=%+v want failed=1 pending=1", result)
	}

	failed, _ := repo.GetTrade(ctx, failedID)
	if failed.Status != models.TradeFailed {
		t.Fatalf("status=%s want=failed", failed.Status)
	}
	pending, _ := repo.GetTrade(ctx, pendingID)
	if pending.Status != models.TradeSubmitted {
		t.Fatalf("status=%s want=submitted (still working)", pending.Status)
	}

	done, err := checker.AllTradesTerminal(ctx, "growth")
	if err != nil || done {
		t.Fatalf("AllTradesTerminal=%v,%v want=false,nil", done, err)
	}
}

func TestCheckSubmittedTrades_SyncsCompletedRunCounts(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	runs := &RunTrackerService{Repo: repo}
	runID, err := runs.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	trades := &TradeLedgerService{Repo: repo}
	trade := &models.TradeRecord{
		Symbol:    "AAPL",
		Side:      models.SideBuy,
		Portfolio: "growth",
		Total:     decimal.NewFromInt(1000),
		Timestamp: time.Now().UTC(),
	}
	tradeID, err := trades.RecordPlanned(ctx, trade, runID)
	if err != nil {
		t.Fatalf("record planned: %v", err)
	}
	if err := trades.MarkSubmitted(ctx, tradeID, "order-1"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	// The run completed with the order still working at the broker.
	if err := runs.Complete(ctx, runID, RunCounts{Planned: 1, Submitted: 1}, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, _ := runs.WasSuccessfulToday(ctx, "growth", time.UTC)
	if done {
		t.Fatalf("run successful while an order is still working")
	}

	fb := &fakeBroker{statuses: map[string]*broker.OrderStatus{
		"order-1": {
			OrderID:     "order-1",
			Symbol:      "AAPL",
			State:       broker.OrderFilled,
			FilledQty:   decimal.NewFromInt(10),
			FilledPrice: decimal.NewFromInt(100),
		},
	}}
	checker := newChecker(repo, fb)
	checker.Runs = runs
	if _, err := checker.CheckSubmittedTrades(ctx, "growth"); err != nil {
		t.Fatalf("check: %v", err)
	}

	run, _ := repo.GetExecutionRun(ctx, runID)
	if run.TradesSubmitted != 0 || run.TradesFilled != 1 {
		t.Fatalf("counts submitted=%d filled=%d want 0/1 after the fill settles",
			run.TradesSubmitted, run.TradesFilled)
	}
	done, _ = runs.WasSuccessfulToday(ctx, "growth", time.UTC)
	if !done {
		t.Fatalf("run must turn successful once the last order fills")
	}
}

func TestCheckSubmittedTrades_AgainstPaperBroker(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()

	cash := &CashLedgerService{Repo: repo}
	if err := cash.Initialize(ctx, "growth", decimal.NewFromInt(5000)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	paper := broker.NewPaperBroker(decimal.NewFromInt(5000), map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(200),
	})
	orderID, err := paper.Buy(ctx, "AAPL", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("paper buy: %v", err)
	}
	submitTrade(t, repo, "AAPL", models.SideBuy, 1000, orderID)

	checker := newChecker(repo, paper)
	result, err := checker.CheckSubmittedTrades(ctx, "growth")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Filled != 1 {
		t.Fatalf("result=%+v want one fill", result)
	}
	own, _ := repo.GetOwnership(ctx, models.OwnershipDocID("growth", "AAPL"))
	if own == nil || own.Quantity.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("ownership=%+v want quantity=5", own)
	}
}
