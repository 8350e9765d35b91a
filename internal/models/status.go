package models

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeStatus is the lifecycle state of a trade record. Transitions are
// one-directional: planned -> submitted -> filled | failed.
type TradeStatus string

const (
	TradePlanned   TradeStatus = "planned"
	TradeSubmitted TradeStatus = "submitted"
	TradeFilled    TradeStatus = "filled"
	TradeFailed    TradeStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s TradeStatus) Terminal() bool {
	return s == TradeFilled || s == TradeFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. No state is skipped and terminal states are never re-entered.
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	switch s {
	case TradePlanned:
		return next == TradeSubmitted
	case TradeSubmitted:
		return next == TradeFilled || next == TradeFailed
	default:
		return false
	}
}

// RunStatus is the state of an execution run.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ReconUnfilled marks a trade that stayed without valid fill data for more
// than 24 hours after submission. Cleared once fill data arrives.
const ReconUnfilled = "unfilled"
