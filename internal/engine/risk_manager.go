package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-agent/internal/logger"
	"trading-agent/internal/types"
)

// riskManager checks orders against the portfolio snapshot they were planned on.
type riskManager struct {
	quote string
}

func newRiskManager(quote string) *riskManager {
	return &riskManager{quote: quote}
}

// validateBuy returns a non-empty block reason when spend is not covered by
// the quote balance.
func (rm *riskManager) validateBuy(ctx context.Context, asset string, spend decimal.Decimal, p types.Portfolio) string {
	quote, _ := p.Holding(rm.quote)
	var reason string
	switch {
	case !spend.IsPositive():
		reason = fmt.Sprintf("blocked: trade size %s is not positive", spend.String())
	case spend.GreaterThan(quote.ValueUSD):
		reason = fmt.Sprintf("blocked: trade size %s exceeds %s balance %s", spend.StringFixed(2), rm.quote, quote.ValueUSD.StringFixed(2))
	default:
		return ""
	}
	logger.Risk(ctx, asset, "TRADE_BLOCKED_BALANCE",
		"spend_usd", spend.String(),
		"quote_balance_usd", quote.ValueUSD.String(),
		"reason", reason,
	)
	return reason
}

// validateSell blocks a sale larger than the held amount.
func (rm *riskManager) validateSell(ctx context.Context, asset string, amount decimal.Decimal, p types.Portfolio) string {
	h, _ := p.Holding(asset)
	if amount.IsPositive() && !amount.GreaterThan(h.Amount) {
		return ""
	}
	reason := fmt.Sprintf("blocked: sell size %s exceeds %s holding %s", amount.String(), asset, h.Amount.String())
	logger.Risk(ctx, asset, "TRADE_BLOCKED_HOLDING",
		"amount", amount.String(),
		"held", h.Amount.String(),
	)
	return reason
}

// validate dispatches on the order side.
func (rm *riskManager) validate(ctx context.Context, order types.TradeOrder, p types.Portfolio) string {
	if order.Side(rm.quote) == types.Sell {
		return rm.validateSell(ctx, order.FromAsset, order.Amount, p)
	}
	return rm.validateBuy(ctx, order.ToAsset, order.Amount, p)
}
