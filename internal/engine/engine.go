// Package engine runs the agent's trading cycles: a strategy step, a
// portfolio rebalance and the analysis and execution of alert plans.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/metrics"
	"trading-agent/internal/portfolio"
	"trading-agent/internal/store"
	"trading-agent/internal/strategy"
	"trading-agent/internal/tradelog"
	"trading-agent/internal/types"
)

// Deps are the engine's collaborators. Journal and Metrics are optional; a nil
// Confirmer approves everything.
type Deps struct {
	Market    interfaces.MarketData
	Broker    interfaces.Broker
	Confirmer interfaces.Confirmer
	Journal   *tradelog.Journal
	Metrics   *metrics.Metrics
}

type Engine struct {
	cfg       *store.Config
	strat     types.StrategyConfig
	target    portfolio.TargetAllocation
	tolerance decimal.Decimal

	market  interfaces.MarketData
	broker  interfaces.Broker
	confirm interfaces.Confirmer
	metrics *metrics.Metrics

	exec  *orderExecutor
	risk  *riskManager
	stops *stopManager

	now func() time.Time

	// one cycle at a time, so every cycle trades on its own snapshot
	mu sync.Mutex
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(cfg *store.Config, deps Deps) (*Engine, error) {
	if deps.Market == nil || deps.Broker == nil {
		return nil, errors.New("engine needs market data and a broker")
	}
	target, err := cfg.TargetAllocation()
	if err != nil {
		return nil, err
	}
	strat := cfg.Strategy()
	return &Engine{
		cfg:       cfg,
		strat:     strat,
		target:    target,
		tolerance: cfg.RebalanceTolerance(),
		market:    deps.Market,
		broker:    deps.Broker,
		confirm:   deps.Confirmer,
		metrics:   deps.Metrics,
		exec:      newOrderExecutor(deps.Broker, deps.Journal, deps.Metrics, strat.QuoteAsset),
		risk:      newRiskManager(strat.QuoteAsset),
		stops:     newStopManager(cfg.Alerts.StopLossPct),
		now:       time.Now,
	}, nil
}

func (e *Engine) observe(kind string, start time.Time, err error) {
	if e.metrics != nil {
		e.metrics.Cycle(kind, start, err)
	}
}

// snapshot fetches the portfolio and one price series for the cycle.
func (e *Engine) snapshot(ctx context.Context, assetID string) (types.Portfolio, types.PriceSeries, error) {
	p, err := e.broker.FetchPortfolio(ctx)
	if err != nil {
		return types.Portfolio{}, nil, fmt.Errorf("fetch portfolio: %w", err)
	}
	series, err := e.market.FetchPriceSeries(ctx, assetID, e.cfg.Market.LookbackDays)
	if err != nil {
		return types.Portfolio{}, nil, fmt.Errorf("fetch prices for %s: %w", assetID, err)
	}
	return p, series, nil
}

// approved asks the confirmer when confirmation is required.
func (e *Engine) approved(ctx context.Context, summary string) (bool, error) {
	if !e.cfg.Confirm.Required || e.confirm == nil {
		return true, nil
	}
	ok, err := e.confirm.Confirm(ctx, summary)
	if err != nil {
		return false, fmt.Errorf("confirmation: %w", err)
	}
	return ok, nil
}

// Step runs one strategy cycle for the configured base asset.
func (e *Engine) Step(ctx context.Context) (res *types.StepResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer func() { e.observe(metrics.KindStep, start, err) }()

	cycleID := newCycleID()
	p, series, err := e.snapshot(ctx, e.strat.BaseAssetID)
	if err != nil {
		return nil, err
	}
	clean, dusted := portfolio.NormalizeHoldings(p, e.strat.DustThreshold)
	if len(dusted) > 0 {
		logger.Debug(ctx, "Dust balances ignored", "cycle_id", cycleID, "assets", dusted)
	}

	ev, err := strategy.Evaluate(series, clean, e.strat)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", e.strat.BaseAsset, err)
	}
	e.exec.logDecision(ctx, cycleID, ev, dusted)

	res = &types.StepResult{
		CycleID:    cycleID,
		Asset:      e.strat.BaseAsset,
		Price:      ev.Price,
		Time:       e.now().Unix(),
		Regime:     ev.Regime,
		Indicators: ev.Indicators,
		Decision:   ev.Decision,
		Dusted:     dusted,
		Orders:     []types.TradeResult{},
		Reason:     ev.Decision.Reason,
	}
	if !ev.Decision.IsTrade() {
		return res, nil
	}

	order, err := ev.Decision.Order(e.strat.QuoteAsset)
	if err != nil {
		return nil, err
	}
	if blocked := e.risk.validate(ctx, order, clean); blocked != "" {
		res.Reason += " | " + blocked
		return res, nil
	}

	ok, err := e.approved(ctx, fmt.Sprintf("%s %s: %s %s -> %s\n%s",
		ev.Decision.Action, e.strat.BaseAsset, order.Amount.String(), order.FromAsset, order.ToAsset, ev.Decision.Reason))
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Reason += " | not confirmed"
		return res, nil
	}

	tr, err := e.exec.submit(ctx, cycleID, order, ev.Decision.Strategy)
	res.Orders = append(res.Orders, tr)
	if err != nil {
		res.Reason += " | order failed: " + tr.Message
		return res, err
	}
	return res, nil
}

// Rebalance trades the portfolio back to the target allocation, sells first.
// A failed sell aborts the batch before any buy is sent.
func (e *Engine) Rebalance(ctx context.Context) (res *types.RebalanceResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer func() { e.observe(metrics.KindRebalance, start, err) }()

	cycleID := newCycleID()
	p, err := e.broker.FetchPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch portfolio: %w", err)
	}
	clean, _ := portfolio.NormalizeHoldings(p, e.strat.DustThreshold)
	planned, err := portfolio.PlanRebalance(clean, e.target, e.tolerance)
	if err != nil {
		return nil, fmt.Errorf("plan rebalance: %w", err)
	}

	res = &types.RebalanceResult{
		CycleID: cycleID,
		Time:    e.now().Unix(),
		Planned: planned,
		Orders:  []types.TradeResult{},
	}
	if len(planned) == 0 {
		res.Reason = "portfolio within tolerance of target allocation"
		return res, nil
	}

	ok, err := e.approved(ctx, fmt.Sprintf("Rebalance with %d trades:\n%s", len(planned), describeOrders(planned)))
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Reason = "rebalance not confirmed"
		return res, nil
	}

	var errs []error
	for _, order := range planned {
		tr, serr := e.exec.submit(ctx, cycleID, order, "rebalance")
		res.Orders = append(res.Orders, tr)
		if serr == nil {
			continue
		}
		if order.Side(e.strat.QuoteAsset) == types.Sell {
			res.Reason = fmt.Sprintf("rebalance aborted: sell of %s failed", order.FromAsset)
			return res, serr
		}
		errs = append(errs, serr)
	}
	if err := errors.Join(errs...); err != nil {
		res.Reason = fmt.Sprintf("rebalance finished with %d failed buys", len(errs))
		return res, err
	}
	res.Reason = fmt.Sprintf("rebalanced with %d trades", len(res.Orders))
	return res, nil
}

func strategyLabel(alert types.TradingViewAlert) string {
	if s := strings.TrimSpace(alert.Strategy); s != "" {
		return s
	}
	return "tradingview"
}
