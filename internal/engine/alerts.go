package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-agent/internal/logger"
	"trading-agent/internal/metrics"
	"trading-agent/internal/portfolio"
	"trading-agent/internal/store"
	"trading-agent/internal/strategy"
	"trading-agent/internal/types"
)

// resolve maps an alert ticker such as BTCUSDT to a configured asset.
func (e *Engine) resolve(symbol string) (store.SymbolMapping, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	m, ok := e.cfg.Alerts.Symbols[key]
	if !ok {
		return store.SymbolMapping{}, fmt.Errorf("unknown symbol %s: %w", symbol, types.ErrInvalidAlert)
	}
	m.Asset = strings.ToUpper(m.Asset)
	return m, nil
}

// AnalyzeAlert evaluates an alert against live market data and the portfolio
// and returns a plan waiting for confirmation. Nothing is traded.
func (e *Engine) AnalyzeAlert(ctx context.Context, alert types.TradingViewAlert) (plan *types.AlertPlan, err error) {
	start := time.Now()
	defer func() { e.observe(metrics.KindAlert, start, err) }()

	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, types.ErrInvalidAlert)
	}
	m, err := e.resolve(alert.Symbol)
	if err != nil {
		return nil, err
	}

	price, err := e.market.SpotPrice(ctx, m.CoinGeckoID)
	if err != nil {
		if alert.Price <= 0 {
			return nil, fmt.Errorf("spot price %s: %w", m.CoinGeckoID, err)
		}
		logger.Warn(ctx, "Spot price unavailable, using alert price", "asset", m.Asset, "alert_price", alert.Price, "error", err)
		price = alert.Price
	}

	p, series, err := e.snapshot(ctx, m.CoinGeckoID)
	if err != nil {
		return nil, err
	}
	// the live price replaces the newest close
	live := make(types.PriceSeries, len(series))
	copy(live, series)
	if len(live) > 0 {
		live[len(live)-1] = price
	}

	cfg := e.strat
	cfg.BaseAsset, cfg.BaseAssetID = m.Asset, m.CoinGeckoID
	clean, _ := portfolio.NormalizeHoldings(p, cfg.DustThreshold)
	ev, err := strategy.Evaluate(live, clean, cfg)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", m.Asset, err)
	}

	quote, _ := clean.Holding(cfg.QuoteAsset)
	d := ev.Decision
	target, stop := e.stops.levels(d.Action, price, ev.Indicators.Bands)
	plan = &types.AlertPlan{
		ID:             uuid.NewString(),
		Alert:          alert,
		Asset:          m.Asset,
		Summary:        alertSummary(alert, m.Asset, price, ev),
		Decision:       d,
		Confidence:     alertConfidence(alert, d),
		Plan:           types.TradingPlan{EntryPrice: round2(price), TargetPrice: target, StopLoss: stop},
		RiskAssessment: e.riskAssessment(d, price, stop, quote, ev.Holding),
		QuoteBalance:   quote.Amount,
		Status:         types.PlanPending,
		CreatedAt:      e.now(),
	}
	logger.Info(ctx, "Alert analysed",
		"plan_id", plan.ID,
		"symbol", alert.Symbol,
		"asset", m.Asset,
		"decision", string(d.Action),
		"confidence", plan.Confidence,
	)
	return plan, nil
}

func alertSummary(alert types.TradingViewAlert, asset string, price float64, ev types.Evaluation) string {
	s := fmt.Sprintf("%s alert %q on %s at %.2f (live %.2f)", strategyLabel(alert), strings.ToLower(alert.Action), asset, alert.Price, price)
	if ev.Regime != "" {
		s += fmt.Sprintf(", market %s", ev.Regime)
	}
	if rsi := ev.Indicators.RSI; rsi != nil {
		s += fmt.Sprintf(", RSI %.2f", *rsi)
	}
	return s + ": " + ev.Decision.Reason
}

// alertConfidence is the decision confidence, halved when the alert points
// the other way. HOLD carries none.
func alertConfidence(alert types.TradingViewAlert, d types.Decision) float64 {
	if d.Confidence == nil {
		return 0
	}
	c := *d.Confidence
	want := types.Action(strings.ToUpper(alert.Action))
	if (want == types.Buy || want == types.Sell) && want != d.Action {
		c /= 2
	}
	return round2(c)
}

func (e *Engine) riskAssessment(d types.Decision, price, stop float64, quote, held types.Holding) string {
	switch d.Action {
	case types.Buy:
		spend := e.alertSpend(quote)
		loss := 0.0
		if price > 0 {
			loss = spend.InexactFloat64() * (price - stop) / price
		}
		return fmt.Sprintf("buy spends %.0f%% of %s balance (%s); a stop at %.2f risks about %.2f USD",
			e.cfg.Alerts.TradePct, quote.Asset, spend.StringFixed(2), stop, loss)
	case types.Sell:
		return fmt.Sprintf("sell closes the entire %s position of %s (%s USD); stop at %.2f if price reverses",
			held.Asset, held.Amount.String(), held.ValueUSD.StringFixed(2), stop)
	}
	return "no trade proposed"
}

// alertSpend is the quote amount an alert BUY uses.
func (e *Engine) alertSpend(quote types.Holding) decimal.Decimal {
	return quote.Amount.Mul(decimal.NewFromFloat(e.cfg.Alerts.TradePct)).Div(decimal.NewFromInt(100)).Truncate(2)
}

// ExecutePlan trades a confirmed plan on a fresh portfolio snapshot.
// BUY spends the configured share of the quote balance, SELL the whole holding.
func (e *Engine) ExecutePlan(ctx context.Context, plan *types.AlertPlan) (res *types.StepResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	defer func() { e.observe(metrics.KindAlert, start, err) }()

	if plan == nil || plan.Status != types.PlanPending {
		return nil, types.ErrPlanNotPending
	}
	d := plan.Decision
	if !d.IsTrade() {
		plan.Status = types.PlanRejected
		return nil, fmt.Errorf("plan %s proposes no trade: %w", plan.ID, types.ErrPlanNotPending)
	}

	p, err := e.broker.FetchPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch portfolio: %w", err)
	}
	clean, _ := portfolio.NormalizeHoldings(p, e.strat.DustThreshold)
	quoteAsset := e.strat.QuoteAsset
	reason := fmt.Sprintf("%s alert on %s: %s", strategyLabel(plan.Alert), plan.Asset, d.Reason)

	var order types.TradeOrder
	switch d.Action {
	case types.Buy:
		quote, _ := clean.Holding(quoteAsset)
		order, err = types.NewTradeOrder(quoteAsset, plan.Asset, e.alertSpend(quote), reason)
	case types.Sell:
		held, _ := clean.Holding(plan.Asset)
		order, err = types.NewTradeOrder(plan.Asset, quoteAsset, held.Amount, reason)
	}

	res = &types.StepResult{
		CycleID:  plan.ID,
		Asset:    plan.Asset,
		Price:    plan.Plan.EntryPrice,
		Time:     e.now().Unix(),
		Regime:   d.Regime,
		Decision: d,
		Orders:   []types.TradeResult{},
		Reason:   reason,
	}
	if err != nil {
		plan.Status = types.PlanFailed
		res.Reason += " | blocked: " + err.Error()
		plan.Result = res
		return res, nil
	}
	if blocked := e.risk.validate(ctx, order, clean); blocked != "" {
		plan.Status = types.PlanFailed
		res.Reason += " | " + blocked
		plan.Result = res
		return res, nil
	}

	tr, err := e.exec.submit(ctx, plan.ID, order, d.Strategy)
	res.Orders = append(res.Orders, tr)
	plan.Result = res
	if err != nil {
		plan.Status = types.PlanFailed
		res.Reason += " | order failed: " + tr.Message
		return res, err
	}
	plan.Status = types.PlanExecuted
	return res, nil
}

// IsClientError reports whether err comes from bad input rather than a collaborator.
func IsClientError(err error) bool {
	return errors.Is(err, types.ErrInvalidAlert) || errors.Is(err, types.ErrPlanNotPending)
}
