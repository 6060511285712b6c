package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent/internal/confirm"
	"trading-agent/internal/metrics"
	"trading-agent/internal/store"
	"trading-agent/internal/tradelog"
	"trading-agent/internal/types"
)

const testConfig = `
mode: DRY_RUN
trading_pair: {base_asset: WETH, base_asset_id: ethereum, quote_asset: USDC}
strategy_parameters: {rsi_oversold: 30, rsi_overbought: 70, max_portfolio_risk_percent: 2}
`

type fakeMarket struct {
	series types.PriceSeries
	spot   float64
	err    error
}

func (m *fakeMarket) FetchPriceSeries(context.Context, string, int) (types.PriceSeries, error) {
	return m.series, m.err
}

func (m *fakeMarket) SpotPrice(context.Context, string) (float64, error) {
	if m.spot == 0 {
		return 0, types.ErrDataUnavailable
	}
	return m.spot, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	portfolio types.Portfolio
	err       error
	fail      func(types.TradeOrder) bool
	submitted []types.TradeOrder
}

func (b *fakeBroker) FetchPortfolio(context.Context) (types.Portfolio, error) {
	return b.portfolio, b.err
}

func (b *fakeBroker) SubmitTrade(_ context.Context, o types.TradeOrder) (types.TradeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, o)
	res := types.TradeResult{FromAsset: o.FromAsset, ToAsset: o.ToAsset, FromAmount: o.Amount}
	if b.fail != nil && b.fail(o) {
		res.Status, res.Message = "FAILED", "rejected"
		return res, fmt.Errorf("rejected: %w", types.ErrExecutionFailed)
	}
	res.ID = fmt.Sprintf("ord-%d", len(b.submitted))
	res.Status = "FILLED"
	res.FilledAmount = o.Amount
	return res, nil
}

func (b *fakeBroker) TokenPrice(context.Context, string) (float64, error) { return 1, nil }

func rangingSeries(last float64) types.PriceSeries {
	s := make(types.PriceSeries, 0, 30)
	for i := 0; i < 29; i++ {
		if i%2 == 0 {
			s = append(s, 100)
		} else {
			s = append(s, 102)
		}
	}
	return append(s, last)
}

func usd(asset, amount, value string) types.Holding {
	return types.Holding{Asset: asset, Amount: decimal.RequireFromString(amount), ValueUSD: decimal.RequireFromString(value)}
}

func mustPortfolio(t *testing.T, hs ...types.Holding) types.Portfolio {
	t.Helper()
	p, err := types.NewPortfolio(hs...)
	require.NoError(t, err)
	return p
}

type fixture struct {
	eng     *Engine
	market  *fakeMarket
	broker  *fakeBroker
	journal *tradelog.Journal
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, yaml string, p types.Portfolio, series types.PriceSeries, c ...func(*store.Config)) *fixture {
	t.Helper()
	cfg, err := store.ParseConfig([]byte(yaml))
	require.NoError(t, err)
	for _, f := range c {
		f(cfg)
	}
	f := &fixture{
		market:  &fakeMarket{series: series},
		broker:  &fakeBroker{portfolio: p},
		journal: tradelog.New(t.TempDir()),
		metrics: metrics.New(),
	}
	t.Cleanup(func() { _ = f.journal.Close() })
	f.eng, err = newEngine(cfg, Deps{
		Market:    f.market,
		Broker:    f.broker,
		Confirmer: confirm.Deny{},
		Journal:   f.journal,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	return f
}

func requireConfirmation(c *store.Config) { c.Confirm.Required = true }

func TestStepBuysAtLowerBand(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95))

	res, err := f.eng.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.Ranging, res.Regime)
	assert.Equal(t, types.Buy, res.Decision.Action)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "FILLED", res.Orders[0].Status)

	require.Len(t, f.broker.submitted, 1)
	o := f.broker.submitted[0]
	assert.Equal(t, "USDC", o.FromAsset)
	assert.Equal(t, "WETH", o.ToAsset)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(200)), o.Amount.String())

	trades, err := f.journal.ReadTrades(time.Now())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, res.CycleID, trades[0].CycleID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("WETH", "BUY", "mean_reversion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Trades.WithLabelValues("USDC", "WETH", "FILLED")))
}

func TestStepHoldSubmitsNothing(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(101))

	res, err := f.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Hold, res.Decision.Action)
	assert.Empty(t, res.Orders)
	assert.Empty(t, f.broker.submitted)
}

func TestStepBlockedByQuoteBalance(t *testing.T) {
	p := mustPortfolio(t, usd("USDC", "100", "100"), usd("WBTC", "0.1", "9900"))
	f := newFixture(t, testConfig, p, rangingSeries(95))

	res, err := f.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Buy, res.Decision.Action)
	assert.Contains(t, res.Reason, "exceeds USDC balance")
	assert.Empty(t, f.broker.submitted)
}

func TestStepNotConfirmed(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95), requireConfirmation)

	res, err := f.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Reason, "not confirmed")
	assert.Empty(t, f.broker.submitted)
}

func TestStepSubmitFailure(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95))
	f.broker.fail = func(types.TradeOrder) bool { return true }

	res, err := f.eng.Step(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExecutionFailed))
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "FAILED", res.Orders[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CycleErrors.WithLabelValues(metrics.KindStep)))
}

func TestStepDataUnavailable(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t), nil)
	f.market.err = types.ErrDataUnavailable

	_, err := f.eng.Step(context.Background())
	assert.True(t, errors.Is(err, types.ErrDataUnavailable))

	f.market.err = nil
	f.market.series = rangingSeries(95)[:10]
	_, err = f.eng.Step(context.Background())
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestRebalanceSellsFirst(t *testing.T) {
	p := mustPortfolio(t,
		usd("WETH", "2", "6000"),
		usd("WBTC", "0.025", "1500"),
		usd("USDC", "2500", "2500"),
	)
	f := newFixture(t, testConfig, p, nil)

	res, err := f.eng.Rebalance(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Planned, 2)
	require.Len(t, f.broker.submitted, 2)
	assert.Equal(t, "WETH", f.broker.submitted[0].FromAsset)
	assert.Equal(t, "USDC", f.broker.submitted[0].ToAsset)
	assert.Equal(t, "USDC", f.broker.submitted[1].FromAsset)
	assert.Equal(t, "WBTC", f.broker.submitted[1].ToAsset)
	assert.Contains(t, res.Reason, "rebalanced with 2 trades")
}

func TestRebalanceFailedSellAbortsBuys(t *testing.T) {
	p := mustPortfolio(t,
		usd("WETH", "2", "6000"),
		usd("WBTC", "0.025", "1500"),
		usd("USDC", "2500", "2500"),
	)
	f := newFixture(t, testConfig, p, nil)
	f.broker.fail = func(o types.TradeOrder) bool { return o.ToAsset == "USDC" }

	res, err := f.eng.Rebalance(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExecutionFailed))
	assert.Len(t, f.broker.submitted, 1)
	assert.Contains(t, res.Reason, "aborted")
}

func TestRebalanceWithinTolerance(t *testing.T) {
	p := mustPortfolio(t,
		usd("WETH", "2", "5000"),
		usd("WBTC", "0.04", "2500"),
		usd("USDC", "2500", "2500"),
	)
	f := newFixture(t, testConfig, p, nil)

	res, err := f.eng.Rebalance(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Planned)
	assert.Empty(t, f.broker.submitted)
}

func TestAnalyzeAlertAndExecute(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95))
	f.market.spot = 95

	plan, err := f.eng.AnalyzeAlert(context.Background(), types.TradingViewAlert{
		Symbol: "btcusdt", Price: 95.5, Action: "buy", Strategy: "bb-touch",
	})
	require.NoError(t, err)
	assert.Equal(t, "WBTC", plan.Asset)
	assert.Equal(t, types.PlanPending, plan.Status)
	assert.Equal(t, types.Buy, plan.Decision.Action)
	assert.InDelta(t, 59.07, plan.Confidence, 0.01)
	assert.Equal(t, 95.0, plan.Plan.EntryPrice)
	assert.Equal(t, 90.25, plan.Plan.StopLoss)
	assert.Greater(t, plan.Plan.TargetPrice, 100.0)
	assert.Contains(t, plan.Summary, "bb-touch")
	assert.Contains(t, plan.RiskAssessment, "10%")
	assert.Empty(t, f.broker.submitted)

	res, err := f.eng.ExecutePlan(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, types.PlanExecuted, plan.Status)
	require.Len(t, f.broker.submitted, 1)
	o := f.broker.submitted[0]
	assert.Equal(t, "USDC", o.FromAsset)
	assert.Equal(t, "WBTC", o.ToAsset)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(1000)), o.Amount.String())
	assert.Contains(t, o.Reason, "bb-touch")
	assert.Len(t, res.Orders, 1)

	_, err = f.eng.ExecutePlan(context.Background(), plan)
	assert.True(t, errors.Is(err, types.ErrPlanNotPending))
}

func TestAnalyzeAlertDisagreementHalvesConfidence(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95))
	f.market.spot = 95

	plan, err := f.eng.AnalyzeAlert(context.Background(), types.TradingViewAlert{Symbol: "BTCUSD", Price: 95, Action: "sell"})
	require.NoError(t, err)
	assert.Equal(t, types.Buy, plan.Decision.Action)
	assert.InDelta(t, 59.07/2, plan.Confidence, 0.01)
}

func TestAnalyzeAlertFallsBackToAlertPrice(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t, usd("USDC", "10000", "10000")), rangingSeries(95))

	plan, err := f.eng.AnalyzeAlert(context.Background(), types.TradingViewAlert{Symbol: "ETHUSDT", Price: 95, Action: "alert"})
	require.NoError(t, err)
	assert.Equal(t, "WETH", plan.Asset)
	assert.Equal(t, 95.0, plan.Plan.EntryPrice)
}

func TestAnalyzeAlertRejectsBadInput(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t), rangingSeries(95))
	f.market.spot = 95

	tests := map[string]types.TradingViewAlert{
		"unknown symbol": {Symbol: "DOGEUSDT", Action: "buy"},
		"bad action":     {Symbol: "BTCUSDT", Action: "hodl"},
		"no symbol":      {Action: "buy"},
	}
	for name, alert := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.eng.AnalyzeAlert(context.Background(), alert)
			assert.True(t, errors.Is(err, types.ErrInvalidAlert), err)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestExecutePlanSellsEntireHolding(t *testing.T) {
	p := mustPortfolio(t, usd("USDC", "100", "100"), usd("WETH", "1.5", "165"))
	f := newFixture(t, testConfig, p, nil)
	plan := &types.AlertPlan{
		ID:       "plan-1",
		Asset:    "WETH",
		Alert:    types.TradingViewAlert{Symbol: "ETHUSDT", Action: "sell"},
		Decision: types.Decision{Action: types.Sell, Asset: "WETH", Strategy: "mean_reversion", Reason: "upper band"},
		Status:   types.PlanPending,
	}

	_, err := f.eng.ExecutePlan(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, f.broker.submitted, 1)
	assert.True(t, f.broker.submitted[0].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.Contains(t, f.broker.submitted[0].Reason, "tradingview")
}

func TestExecutePlanHoldIsRejected(t *testing.T) {
	f := newFixture(t, testConfig, mustPortfolio(t), nil)
	plan := &types.AlertPlan{ID: "p", Decision: types.Decision{Action: types.Hold}, Status: types.PlanPending}

	_, err := f.eng.ExecutePlan(context.Background(), plan)
	assert.True(t, errors.Is(err, types.ErrPlanNotPending))
	assert.Equal(t, types.PlanRejected, plan.Status)
}

func TestStopLevels(t *testing.T) {
	sm := newStopManager(5)
	target, stop := sm.levels(types.Buy, 100, &types.Bands{Upper: 110, Middle: 100, Lower: 90})
	assert.Equal(t, 110.0, target)
	assert.Equal(t, 95.0, stop)

	target, stop = sm.levels(types.Sell, 100, nil)
	assert.Equal(t, 90.0, target)
	assert.Equal(t, 105.0, stop)
}
