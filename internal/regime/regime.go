// Package regime labels the market state from price, Bollinger Bands and RSI.
package regime

import "trading-agent/internal/types"

// Default RSI bounds for a ranging market, inclusive.
const (
	DefaultRangingLow  = 35.0
	DefaultRangingHigh = 65.0

	// trendRSI splits bullish from bearish momentum inside the bands.
	trendRSI = 50.0
)

// Bounds is the inclusive RSI window in which a market inside its bands is ranging.
type Bounds struct {
	Low  float64
	High float64
}

// DefaultBounds returns the 35/65 window.
func DefaultBounds() Bounds {
	return Bounds{Low: DefaultRangingLow, High: DefaultRangingHigh}
}

// Classify returns the regime for price against bands with the given RSI.
//
// Rules, first match wins:
//   - price at or above the upper band: TRENDING_UP
//   - price at or below the lower band: TRENDING_DOWN
//   - price strictly inside the bands with RSI in [Low, High]: RANGING
//   - price at or above the middle band with RSI > 50: TRENDING_UP (pullback inside an uptrend)
//   - price at or below the middle band with RSI < 50: TRENDING_DOWN
//   - otherwise UNKNOWN, also for collapsed bands
//
// UNKNOWN is never forced into another regime; callers treat it as a reason to hold.
func Classify(price float64, bands types.Bands, rsi float64, b Bounds) types.Regime {
	// collapsed bands carry no volatility information
	if bands.Upper <= bands.Lower {
		return types.Unknown
	}
	switch {
	case price >= bands.Upper:
		return types.TrendingUp
	case price <= bands.Lower:
		return types.TrendingDown
	case price > bands.Lower && price < bands.Upper && rsi >= b.Low && rsi <= b.High:
		return types.Ranging
	case price >= bands.Middle && rsi > trendRSI:
		return types.TrendingUp
	case price <= bands.Middle && rsi < trendRSI:
		return types.TrendingDown
	}
	return types.Unknown
}
