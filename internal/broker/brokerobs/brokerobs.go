package brokerobs

import (
	"context"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/trace"
	"trading-agent/internal/types"
)

// observableBroker wraps a Broker with logging and tracing
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) FetchPortfolio(ctx context.Context) (types.Portfolio, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchPortfolio")
	defer span.End()

	p, err := ob.broker.FetchPortfolio(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch portfolio", err)
		return types.Portfolio{}, err
	}
	logger.DebugSkip(ctx, 1, "Portfolio fetched",
		"holdings", len(p.Holdings()),
		"total_usd", p.TotalValueUSD().StringFixed(2),
	)
	return p, nil
}

func (ob *observableBroker) SubmitTrade(ctx context.Context, order types.TradeOrder) (types.TradeResult, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitTrade")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting trade",
		"from", order.FromAsset,
		"to", order.ToAsset,
		"amount", order.Amount.String(),
		"reason", order.Reason,
	)

	res, err := ob.broker.SubmitTrade(ctx, order)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trade failed", err,
			"from", order.FromAsset,
			"to", order.ToAsset,
			"amount", order.Amount.String(),
		)
		return res, err
	}

	logger.Trade(ctx, order.FromAsset, order.ToAsset, order.Amount.String(), res.ID, res.Status,
		"filled", res.FilledAmount.String(),
		"price", res.Price.String(),
	)
	return res, nil
}

func (ob *observableBroker) TokenPrice(ctx context.Context, asset string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.TokenPrice")
	defer span.End()

	price, err := ob.broker.TokenPrice(ctx, asset)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch token price", err, "asset", asset)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "Token price fetched", "asset", asset, "price", price)
	return price, nil
}
