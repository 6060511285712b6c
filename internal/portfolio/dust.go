package portfolio

import (
	"github.com/shopspring/decimal"

	"trading-agent/internal/types"
)

// DefaultDustThreshold is the balance below which a holding counts as zero.
var DefaultDustThreshold = decimal.RequireFromString("0.0001")

// Normalize collapses amounts below threshold to exactly zero.
func Normalize(amount, threshold decimal.Decimal) decimal.Decimal {
	if amount.LessThan(threshold) {
		return decimal.Zero
	}
	return amount
}

// NormalizeHoldings applies Normalize to every holding of p. A dusted holding
// also loses its USD value so weights and totals agree with the amounts.
// The returned slice names the assets that were collapsed.
func NormalizeHoldings(p types.Portfolio, threshold decimal.Decimal) (types.Portfolio, []string) {
	var dusted []string
	hs := p.Holdings()
	for i, h := range hs {
		if h.Amount.IsZero() {
			continue
		}
		if Normalize(h.Amount, threshold).IsZero() {
			hs[i].Amount = decimal.Zero
			hs[i].ValueUSD = decimal.Zero
			dusted = append(dusted, h.Asset)
		}
	}
	// holdings came from a valid portfolio, so they are still unique and non-negative
	out, _ := types.NewPortfolio(hs...)
	return out, dusted
}
