package notify

import (
	"fmt"
	"strings"

	"stockbot/internal/service"
)

func summarySubject(summary *service.TradeSummary) string {
	if summary.DryRun {
		return fmt.Sprintf("[DRY RUN] Portfolio Rebalancing Summary: %s", summary.Portfolio)
	}
	return fmt.Sprintf("Portfolio Rebalancing Summary: %s", summary.Portfolio)
}

func formatSummaryText(summary *service.TradeSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio: %s\n", summary.Portfolio)
	fmt.Fprintf(&b, "Portfolio value: $%s\n\n", summary.PortfolioValue.StringFixed(2))

	if len(summary.Sells) > 0 {
		fmt.Fprintf(&b, "Sells (total $%s):\n", summary.TotalProceeds.StringFixed(2))
		for _, sell := range summary.Sells {
			fmt.Fprintf(&b, "  %s: %s shares for $%s\n", sell.Symbol, sell.Quantity.StringFixed(4), sell.Amount.StringFixed(2))
		}
		b.WriteString("\n")
	}
	if len(summary.Buys) > 0 {
		fmt.Fprintf(&b, "Buys (total $%s):\n", summary.TotalCost.StringFixed(2))
		for _, buy := range summary.Buys {
			fmt.Fprintf(&b, "  %s: $%s\n", buy.Symbol, buy.Amount.StringFixed(2))
		}
		b.WriteString("\n")
	}
	if len(summary.FailedTrades) > 0 {
		b.WriteString("Failed trades:\n")
		for _, failed := range summary.FailedTrades {
			fmt.Fprintf(&b, "  %s %s: %s\n", failed.Side, failed.Symbol, failed.Error)
		}
		b.WriteString("\n")
	}
	if len(summary.Sells) == 0 && len(summary.Buys) == 0 {
		b.WriteString("No rebalancing was needed.\n\n")
	}

	if len(summary.FinalAllocations) > 0 {
		b.WriteString("Current allocations:\n")
		for _, alloc := range summary.FinalAllocations {
			fmt.Fprintf(&b, "  %s: %s shares ($%s)\n", alloc.Symbol, alloc.Quantity.StringFixed(4), alloc.MarketValue.StringFixed(2))
		}
	}
	return b.String()
}

func formatErrorText(portfolio string, cause error) string {
	return fmt.Sprintf("Rebalancing failed for portfolio %s:\n\n%v\n", portfolio, cause)
}
