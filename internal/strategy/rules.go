package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"trading-agent/internal/types"
)

const (
	unitPrecision = 8
	usdPrecision  = 2

	// trendRSIFloor is the RSI a trend entry has to clear.
	trendRSIFloor = 50.0
)

var hundred = decimal.NewFromInt(100)

type evaluator struct {
	cfg    types.StrategyConfig
	regime types.Regime
	price  float64
	rsi    float64
	bands  types.Bands
	held   decimal.Decimal
	total  decimal.Decimal
	recent []float64
}

// meanReversion buys a touch of the lower band when flat and sells the whole
// position on a touch of the upper band.
func (e evaluator) meanReversion() types.Decision {
	asset := e.cfg.BaseAsset
	switch {
	case e.price <= e.bands.Lower:
		if !e.held.IsZero() {
			return e.hold(NameMeanReversion, fmt.Sprintf("mean reversion: price %.2f at lower band %.2f but %s position already open",
				e.price, e.bands.Lower, asset))
		}
		return e.buy(NameMeanReversion, fmt.Sprintf("mean reversion: price %.2f at or below lower band %.2f in ranging market with no %s position",
			e.price, e.bands.Lower, asset))
	case e.price >= e.bands.Upper:
		if e.held.IsZero() {
			return e.hold(NameMeanReversion, fmt.Sprintf("mean reversion: price %.2f at upper band %.2f with no %s position to sell",
				e.price, e.bands.Upper, asset))
		}
		return e.sell(NameMeanReversion, fmt.Sprintf("mean reversion: price %.2f at or above upper band %.2f, selling entire %s holding",
			e.price, e.bands.Upper, asset))
	}
	return e.hold(NameMeanReversion, fmt.Sprintf("mean reversion: price %.2f inside bands %.2f-%.2f",
		e.price, e.bands.Lower, e.bands.Upper))
}

// trendFollowing only ever enters. An open position is kept for the trend.
func (e evaluator) trendFollowing() types.Decision {
	asset := e.cfg.BaseAsset
	if !e.held.IsZero() {
		if overboughtSuppressed(e.regime, e.rsi, e.cfg.RSIOverbought) {
			return e.hold(NameTrendFollowing, fmt.Sprintf("trend following: RSI %.2f above overbought %.2f is ignored in %s, keeping %s position",
				e.rsi, e.cfg.RSIOverbought, e.regime, asset))
		}
		return e.hold(NameTrendFollowing, fmt.Sprintf("trend following: riding open %s position in %s", asset, e.regime))
	}
	if !retraced(e.price, e.bands.Middle, e.cfg.RetraceTolerancePct) {
		return e.hold(NameTrendFollowing, fmt.Sprintf("trend following: waiting for price %.2f to retrace to middle band %.2f",
			e.price, e.bands.Middle))
	}
	if !momentumConfirmed(e.recent, e.bands.Middle, e.cfg.ConfirmSamples) {
		return e.hold(NameTrendFollowing, fmt.Sprintf("trend following: no upward momentum over last %d closes at middle band %.2f",
			e.cfg.ConfirmSamples, e.bands.Middle))
	}
	if e.rsi <= trendRSIFloor {
		return e.hold(NameTrendFollowing, fmt.Sprintf("trend following: RSI %.2f not above %.0f", e.rsi, trendRSIFloor))
	}
	return e.buy(NameTrendFollowing, fmt.Sprintf("trend following: price %.2f retraced to middle band %.2f with %d rising closes and RSI %.2f",
		e.price, e.bands.Middle, e.cfg.ConfirmSamples, e.rsi))
}

// threshold is the RSI-only strategy used without band data.
func (e evaluator) threshold() types.Decision {
	asset := e.cfg.BaseAsset
	switch {
	case e.rsi < e.cfg.RSIOversold:
		if !e.held.IsZero() {
			return e.hold(NameThreshold, fmt.Sprintf("rsi threshold: RSI %.2f below oversold %.2f but %s position already open",
				e.rsi, e.cfg.RSIOversold, asset))
		}
		return e.buy(NameThreshold, fmt.Sprintf("rsi threshold: RSI %.2f below oversold %.2f with no %s position",
			e.rsi, e.cfg.RSIOversold, asset))
	case e.rsi > e.cfg.RSIOverbought:
		if e.held.IsZero() {
			return e.hold(NameThreshold, fmt.Sprintf("rsi threshold: RSI %.2f above overbought %.2f with no %s position to sell",
				e.rsi, e.cfg.RSIOverbought, asset))
		}
		return e.sell(NameThreshold, fmt.Sprintf("rsi threshold: RSI %.2f above overbought %.2f, selling entire %s holding",
			e.rsi, e.cfg.RSIOverbought, asset))
	}
	return e.hold(NameThreshold, fmt.Sprintf("rsi threshold: RSI %.2f within %.2f-%.2f",
		e.rsi, e.cfg.RSIOversold, e.cfg.RSIOverbought))
}

// overboughtSuppressed reports that an overbought RSI must not trigger a
// sell: inside a trend the overbought threshold is switched off.
func overboughtSuppressed(r types.Regime, rsi, overbought float64) bool {
	return (r == types.TrendingUp || r == types.TrendingDown) && rsi > overbought
}

// retraced reports whether price sits within tolPct percent of the middle band.
func retraced(price, middle, tolPct float64) bool {
	band := middle * tolPct / 100
	return math.Abs(price-middle) <= band
}

// momentumConfirmed requires the last n closes to hold at or above the middle
// band while rising strictly.
func momentumConfirmed(recent []float64, middle float64, n int) bool {
	if n <= 0 || len(recent) < n {
		return false
	}
	last := recent[len(recent)-n:]
	for i, p := range last {
		if p < middle {
			return false
		}
		if i > 0 && p <= last[i-1] {
			return false
		}
	}
	return true
}

// buy sizes the position at MaxPortfolioRiskPercent of the portfolio value.
func (e evaluator) buy(name, reason string) types.Decision {
	notional := e.total.Mul(decimal.NewFromFloat(e.cfg.MaxPortfolioRiskPercent)).Div(hundred).Round(usdPrecision)
	if !notional.IsPositive() {
		return e.hold(name, reason+", but portfolio has no value to size a position")
	}
	units := notional.Div(decimal.NewFromFloat(e.price)).Truncate(unitPrecision)
	conf := round2(100 - e.rsi)
	return types.Decision{
		Action:     types.Buy,
		Asset:      e.cfg.BaseAsset,
		Amount:     units,
		Notional:   notional,
		Reason:     fmt.Sprintf("%s; buying %.2f%% of portfolio", reason, e.cfg.MaxPortfolioRiskPercent),
		Confidence: &conf,
		Strategy:   name,
		Regime:     e.regime,
	}
}

func (e evaluator) sell(name, reason string) types.Decision {
	conf := round2(e.rsi)
	return types.Decision{
		Action:     types.Sell,
		Asset:      e.cfg.BaseAsset,
		Amount:     e.held,
		Notional:   e.held.Mul(decimal.NewFromFloat(e.price)).Round(usdPrecision),
		Reason:     reason,
		Confidence: &conf,
		Strategy:   name,
		Regime:     e.regime,
	}
}

func (e evaluator) hold(name, reason string) types.Decision {
	return types.Decision{
		Action:   types.Hold,
		Asset:    e.cfg.BaseAsset,
		Amount:   decimal.Zero,
		Notional: decimal.Zero,
		Reason:   reason,
		Strategy: name,
		Regime:   e.regime,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
