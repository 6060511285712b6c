package engine

import (
	"context"
	"fmt"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/metrics"
	"trading-agent/internal/tradelog"
	"trading-agent/internal/types"
)

const statusFailed = "FAILED"

// orderExecutor submits orders and records every outcome in the journal and metrics.
type orderExecutor struct {
	broker  interfaces.Broker
	journal *tradelog.Journal
	metrics *metrics.Metrics
	quote   string
}

func newOrderExecutor(broker interfaces.Broker, journal *tradelog.Journal, m *metrics.Metrics, quote string) *orderExecutor {
	return &orderExecutor{broker: broker, journal: journal, metrics: m, quote: quote}
}

// submit sends one order. Failures are journaled too and come back wrapped in
// ErrExecutionFailed.
func (oe *orderExecutor) submit(ctx context.Context, cycleID string, order types.TradeOrder, strategy string) (types.TradeResult, error) {
	res, err := oe.broker.SubmitTrade(ctx, order)
	if err != nil {
		if res.Status == "" {
			res = failedResult(order, err)
		}
		err = fmt.Errorf("submit %s -> %s: %w", order.FromAsset, order.ToAsset, asExecutionError(err))
	}

	if oe.journal != nil {
		if jerr := oe.journal.AppendTrade(cycleID, oe.quote, order, res, strategy); jerr != nil {
			logger.ErrorWithErr(ctx, "Failed to journal trade", jerr, "cycle_id", cycleID, "order_id", res.ID)
		}
	}
	if oe.metrics != nil {
		oe.metrics.Trade(order.FromAsset, order.ToAsset, res.Status)
	}
	return res, err
}

// logDecision journals the evaluation, HOLDs included.
func (oe *orderExecutor) logDecision(ctx context.Context, cycleID string, ev types.Evaluation, dusted []string) {
	d := ev.Decision
	var confidence float64
	if d.Confidence != nil {
		confidence = *d.Confidence
	}
	logger.Decision(ctx, d.Asset, string(d.Action), d.Strategy, confidence, d.Reason,
		"cycle_id", cycleID,
		"regime", string(ev.Regime),
		"price", ev.Price,
	)
	if oe.metrics != nil {
		oe.metrics.Decision(d.Asset, string(d.Action), d.Strategy)
	}
	if oe.journal == nil {
		return
	}
	if err := oe.journal.AppendDecision(cycleID, ev.Price, d, ev.Indicators, dusted); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal decision", err, "cycle_id", cycleID)
	}
}

func asExecutionError(err error) error {
	if isExecution(err) {
		return err
	}
	return fmt.Errorf("%v: %w", err, types.ErrExecutionFailed)
}
