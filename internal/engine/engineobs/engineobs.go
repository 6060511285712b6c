package engineobs

import (
	"context"
	"time"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/trace"
	"trading-agent/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Step(ctx context.Context) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting trading cycle")

	result, err := oe.engine.Step(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trading cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Trading cycle completed",
		"cycle_id", result.CycleID,
		"asset", result.Asset,
		"regime", string(result.Regime),
		"action", string(result.Decision.Action),
		"strategy", result.Decision.Strategy,
		"orders", len(result.Orders),
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (oe *observableEngine) Rebalance(ctx context.Context) (*types.RebalanceResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Rebalance")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting rebalance")

	result, err := oe.engine.Rebalance(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Rebalance failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Rebalance completed",
		"cycle_id", result.CycleID,
		"planned", len(result.Planned),
		"orders", len(result.Orders),
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (oe *observableEngine) AnalyzeAlert(ctx context.Context, alert types.TradingViewAlert) (*types.AlertPlan, error) {
	ctx, span := trace.StartSpan(ctx, "engine.AnalyzeAlert")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Analysing alert", "symbol", alert.Symbol, "action", alert.Action, "strategy", alert.Strategy)

	plan, err := oe.engine.AnalyzeAlert(ctx, alert)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Alert analysis failed", err, "symbol", alert.Symbol)
		return nil, err
	}
	logger.InfoSkip(ctx, 1, "Alert plan ready",
		"plan_id", plan.ID,
		"decision", string(plan.Decision.Action),
		"confidence", plan.Confidence,
	)
	return plan, nil
}

func (oe *observableEngine) ExecutePlan(ctx context.Context, plan *types.AlertPlan) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ExecutePlan")
	defer span.End()

	id := ""
	if plan != nil {
		id = plan.ID
	}
	logger.InfoSkip(ctx, 1, "Executing alert plan", "plan_id", id)

	result, err := oe.engine.ExecutePlan(ctx, plan)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Alert plan execution failed", err, "plan_id", id)
		return result, err
	}
	logger.InfoSkip(ctx, 1, "Alert plan executed", "plan_id", id, "orders", len(result.Orders), "reason", result.Reason)
	return result, nil
}
