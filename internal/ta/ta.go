package ta

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"trading-agent/internal/types"
)

const (
	DefaultRSIPeriod = 14
	DefaultBBPeriod  = 20
	DefaultBBStdDev  = 2.0
)

// Config selects the look-backs used by Compute. Bands are skipped when BBPeriod is 0.
type Config struct {
	RSIPeriod int
	BBPeriod  int
	BBStdDev  float64
}

// ComputeRSI returns Wilder's smoothed RSI rounded to 2 decimals.
func ComputeRSI(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(prices) < period+1 {
		return 0, fmt.Errorf("rsi(%d) needs %d prices, got %d: %w", period, period+1, len(prices), types.ErrInsufficientData)
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		g, l := split(prices[i] - prices[i-1])
		gain += g
		loss += l
	}
	n := float64(period)
	avgGain, avgLoss := gain/n, loss/n
	for i := period + 1; i < len(prices); i++ {
		g, l := split(prices[i] - prices[i-1])
		avgGain = (avgGain*(n-1) + g) / n
		avgLoss = (avgLoss*(n-1) + l) / n
	}
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return round2(100 - 100/(1+rs)), nil
}

// split returns the gain and the loss (as a positive magnitude) of a delta.
func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// ComputeBollingerBands uses the last period prices and the population variance.
func ComputeBollingerBands(prices []float64, period int, k float64) (types.Bands, error) {
	if period <= 0 {
		return types.Bands{}, fmt.Errorf("bollinger period must be positive, got %d", period)
	}
	if len(prices) < period {
		return types.Bands{}, fmt.Errorf("bollinger(%d) needs %d prices, got %d: %w", period, period, len(prices), types.ErrInsufficientData)
	}
	window := prices[len(prices)-period:]
	mean, variance := stat.PopMeanVariance(window, nil)
	if variance < 0 {
		// float cancellation on flat windows
		variance = 0
	}
	sd := math.Sqrt(variance)
	return types.Bands{
		Upper:  round2(mean + k*sd),
		Middle: round2(mean),
		Lower:  round2(mean - k*sd),
	}, nil
}

// Mean is the arithmetic mean of prices, rounded like the middle band.
func Mean(prices []float64) float64 {
	if len(prices) == 0 {
		return math.NaN()
	}
	return round2(stat.Mean(prices, nil))
}

// Compute runs every configured indicator over the same snapshot.
func Compute(prices []float64, cfg Config) (types.IndicatorResult, error) {
	var res types.IndicatorResult
	rsi, err := ComputeRSI(prices, cfg.RSIPeriod)
	if err != nil {
		return res, err
	}
	res.RSI = &rsi
	if cfg.BBPeriod > 0 {
		bands, err := ComputeBollingerBands(prices, cfg.BBPeriod, cfg.BBStdDev)
		if err != nil {
			return res, err
		}
		res.Bands = &bands
	}
	return res, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
