package interfaces

import (
	"context"

	"trading-agent/internal/types"
)

type Engine interface {
	Step(ctx context.Context) (*types.StepResult, error)
	Rebalance(ctx context.Context) (*types.RebalanceResult, error)
	AnalyzeAlert(ctx context.Context, alert types.TradingViewAlert) (*types.AlertPlan, error)
	ExecutePlan(ctx context.Context, plan *types.AlertPlan) (*types.StepResult, error)
}
