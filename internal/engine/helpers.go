package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"trading-agent/internal/types"
)

func newCycleID() string {
	return uuid.NewString()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// describeOrders renders orders for confirmation prompts.
func describeOrders(orders []types.TradeOrder) string {
	var b strings.Builder
	for i, o := range orders {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  %d. %s %s -> %s (%s)", i+1, o.Amount.String(), o.FromAsset, o.ToAsset, o.Reason)
	}
	return b.String()
}

func failedResult(order types.TradeOrder, err error) types.TradeResult {
	return types.TradeResult{
		Status:     statusFailed,
		FromAsset:  order.FromAsset,
		ToAsset:    order.ToAsset,
		FromAmount: order.Amount,
		Message:    err.Error(),
	}
}

func isExecution(err error) bool {
	return errors.Is(err, types.ErrExecutionFailed)
}
