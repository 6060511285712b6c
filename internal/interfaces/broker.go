package interfaces

import (
	"context"

	"trading-agent/internal/types"
)

// Broker is the trade-execution venue. SubmitTrade implementations must
// serialize submissions; callers may run cycles concurrently.
type Broker interface {
	FetchPortfolio(ctx context.Context) (types.Portfolio, error)
	SubmitTrade(ctx context.Context, order types.TradeOrder) (types.TradeResult, error)
	TokenPrice(ctx context.Context, asset string) (float64, error)
}
