package marketobs

import (
	"context"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/trace"
	"trading-agent/internal/types"
)

type observableMarket struct {
	market interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarket)(nil)

// Wrap wraps a market data source with logging and tracing
func Wrap(market interfaces.MarketData) interfaces.MarketData {
	return &observableMarket{market: market}
}

func (om *observableMarket) FetchPriceSeries(ctx context.Context, assetID string, lookbackDays int) (types.PriceSeries, error) {
	ctx, span := trace.StartSpan(ctx, "market.FetchPriceSeries")
	defer span.End()

	series, err := om.market.FetchPriceSeries(ctx, assetID, lookbackDays)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price series", err, "asset_id", assetID, "days", lookbackDays)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Price series fetched", "asset_id", assetID, "points", len(series), "latest", series.Latest())
	return series, nil
}

func (om *observableMarket) SpotPrice(ctx context.Context, assetID string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "market.SpotPrice")
	defer span.End()

	price, err := om.market.SpotPrice(ctx, assetID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch spot price", err, "asset_id", assetID)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "Spot price fetched", "asset_id", assetID, "price", price)
	return price, nil
}
