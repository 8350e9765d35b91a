package broker

import "strings"

// NormalizeState maps a raw venue order status onto the small set of states
// the trade ledger cares about. Anything not terminal stays pending so the
// status checker will look again.
func NormalizeState(raw string) OrderState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "filled":
		return OrderFilled
	case "canceled", "cancelled", "rejected", "expired":
		return OrderFailed
	case "":
		return OrderNotFound
	default:
		return OrderPending
	}
}

// NormalizeSide maps a venue side string onto the ledger's BUY/SELL pair.
// Short and covering variants collapse onto the plain sides; anything else
// passes through uppercased for the caller to reject.
func NormalizeSide(raw string) string {
	side := strings.ToUpper(strings.TrimSpace(raw))
	switch side {
	case "SELL_SHORT", "SELL_TO_CLOSE", "SELL_TO_OPEN":
		return "SELL"
	case "BUY_TO_COVER", "BUY_TO_OPEN", "BUY_TO_CLOSE":
		return "BUY"
	}
	return side
}
