package interfaces

import (
	"context"

	"trading-agent/internal/types"
)

// MarketData supplies daily closes and spot prices keyed by CoinGecko id.
type MarketData interface {
	FetchPriceSeries(ctx context.Context, assetID string, lookbackDays int) (types.PriceSeries, error)
	SpotPrice(ctx context.Context, assetID string) (float64, error)
}
