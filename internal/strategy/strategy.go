// Package strategy turns indicators, regime and holdings into a bounded trade decision.
//
// Evaluate is deterministic: the same price series, portfolio and configuration
// always produce the same decision. Missing inputs are reported as errors and are
// never folded into a HOLD.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trading-agent/internal/portfolio"
	"trading-agent/internal/regime"
	"trading-agent/internal/ta"
	"trading-agent/internal/types"
)

// Strategy names recorded on every decision.
const (
	NameMeanReversion  = "mean_reversion"
	NameTrendFollowing = "trend_following"
	NameThreshold      = "rsi_threshold"
	NameNone           = "none"
)

const (
	DefaultRSIOversold         = 30.0
	DefaultRSIOverbought       = 70.0
	DefaultRiskPercent         = 2.0
	DefaultRetraceTolerancePct = 1.0
	DefaultConfirmSamples      = 2
	DefaultQuoteAsset          = "USDC"
)

// Inputs is everything Decide reads. Recent holds the newest closes, oldest
// first, ending with Price; trend following uses it to confirm momentum.
type Inputs struct {
	Regime     types.Regime
	Price      float64
	Indicators types.IndicatorResult
	Holding    types.Holding
	TotalValue decimal.Decimal
	Recent     []float64
	Config     types.StrategyConfig
}

// WithDefaults fills unset numeric fields of cfg. The dust threshold is left
// alone because zero is a valid setting.
func WithDefaults(cfg types.StrategyConfig) types.StrategyConfig {
	if cfg.Mode == "" {
		cfg.Mode = types.ModeRegime
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = DefaultQuoteAsset
	}
	if cfg.RSIOversold == 0 {
		cfg.RSIOversold = DefaultRSIOversold
	}
	if cfg.RSIOverbought == 0 {
		cfg.RSIOverbought = DefaultRSIOverbought
	}
	if cfg.MaxPortfolioRiskPercent == 0 {
		cfg.MaxPortfolioRiskPercent = DefaultRiskPercent
	}
	if cfg.RSIPeriod == 0 {
		cfg.RSIPeriod = ta.DefaultRSIPeriod
	}
	if cfg.BBPeriod == 0 {
		cfg.BBPeriod = ta.DefaultBBPeriod
	}
	if cfg.BBStdDev == 0 {
		cfg.BBStdDev = ta.DefaultBBStdDev
	}
	if cfg.RangingRSILow == 0 && cfg.RangingRSIHigh == 0 {
		cfg.RangingRSILow = regime.DefaultRangingLow
		cfg.RangingRSIHigh = regime.DefaultRangingHigh
	}
	if cfg.RetraceTolerancePct == 0 {
		cfg.RetraceTolerancePct = DefaultRetraceTolerancePct
	}
	if cfg.ConfirmSamples == 0 {
		cfg.ConfirmSamples = DefaultConfirmSamples
	}
	return cfg
}

// IndicatorConfig returns the look-backs the configured mode needs.
// Threshold mode computes no bands.
func IndicatorConfig(cfg types.StrategyConfig) ta.Config {
	cfg = WithDefaults(cfg)
	c := ta.Config{RSIPeriod: cfg.RSIPeriod, BBPeriod: cfg.BBPeriod, BBStdDev: cfg.BBStdDev}
	if cfg.Mode == types.ModeThreshold {
		c.BBPeriod = 0
	}
	return c
}

// MinSamples is the shortest series Evaluate accepts for cfg.
func MinSamples(cfg types.StrategyConfig) int {
	cfg = WithDefaults(cfg)
	if cfg.Mode == types.ModeThreshold {
		return cfg.RSIPeriod + 1
	}
	// the regime is read from the series without its newest close
	return max(cfg.RSIPeriod+2, cfg.BBPeriod+1)
}

// Evaluate runs the full pipeline over one snapshot: dust normalization,
// indicators, regime classification and the decision.
func Evaluate(series types.PriceSeries, p types.Portfolio, cfg types.StrategyConfig) (types.Evaluation, error) {
	cfg = WithDefaults(cfg)
	if n := MinSamples(cfg); len(series) < n {
		return types.Evaluation{}, fmt.Errorf("strategy needs %d prices, got %d: %w", n, len(series), types.ErrInsufficientData)
	}
	clean, _ := portfolio.NormalizeHoldings(p, cfg.DustThreshold)
	holding, _ := clean.Holding(cfg.BaseAsset)

	ind, err := ta.Compute(series, IndicatorConfig(cfg))
	if err != nil {
		return types.Evaluation{}, fmt.Errorf("compute indicators: %w", err)
	}

	var reg types.Regime
	if cfg.Mode == types.ModeRegime {
		reg, err = classifyPrior(series, cfg)
		if err != nil {
			return types.Evaluation{}, err
		}
	}

	price := series.Latest()
	dec, err := Decide(Inputs{
		Regime:     reg,
		Price:      price,
		Indicators: ind,
		Holding:    holding,
		TotalValue: clean.TotalValueUSD(),
		Recent:     tail(series, cfg.ConfirmSamples),
		Config:     cfg,
	})
	if err != nil {
		return types.Evaluation{}, err
	}
	return types.Evaluation{
		Decision:   dec,
		Regime:     reg,
		Indicators: ind,
		Price:      price,
		Holding:    holding,
	}, nil
}

// classifyPrior labels the market leading into the newest close, so that a
// ranging market which has just touched a band is seen as ranging.
func classifyPrior(series types.PriceSeries, cfg types.StrategyConfig) (types.Regime, error) {
	prior := series[:len(series)-1]
	ind, err := ta.Compute(prior, IndicatorConfig(cfg))
	if err != nil {
		return types.Unknown, fmt.Errorf("classify regime: %w", err)
	}
	bounds := regime.Bounds{Low: cfg.RangingRSILow, High: cfg.RangingRSIHigh}
	return regime.Classify(prior.Latest(), *ind.Bands, *ind.RSI, bounds), nil
}

// Decide applies the strategy selected by the mode and regime. The mode
// comes from config only: missing bands in REGIME mode is an error.
func Decide(in Inputs) (types.Decision, error) {
	cfg := WithDefaults(in.Config)
	if in.Indicators.RSI == nil {
		return types.Decision{}, fmt.Errorf("rsi: %w", types.ErrMissingIndicator)
	}
	if in.Price <= 0 {
		return types.Decision{}, fmt.Errorf("price %v: %w", in.Price, types.ErrDataUnavailable)
	}
	e := evaluator{
		cfg:    cfg,
		regime: in.Regime,
		price:  in.Price,
		rsi:    *in.Indicators.RSI,
		held:   portfolio.Normalize(in.Holding.Amount, cfg.DustThreshold),
		total:  in.TotalValue,
		recent: in.Recent,
	}
	if cfg.Mode == types.ModeThreshold {
		e.regime = ""
		return e.threshold(), nil
	}
	if in.Indicators.Bands == nil {
		return types.Decision{}, fmt.Errorf("bollinger bands required in %s mode: %w", cfg.Mode, types.ErrMissingIndicator)
	}
	e.bands = *in.Indicators.Bands

	switch in.Regime {
	case types.Ranging:
		return e.meanReversion(), nil
	case types.TrendingUp, types.TrendingDown:
		return e.trendFollowing(), nil
	default:
		return e.hold(NameNone, "regime unclear, no strategy applies"), nil
	}
}

func tail(series types.PriceSeries, n int) []float64 {
	if n > len(series) {
		n = len(series)
	}
	out := make([]float64, n)
	copy(out, series[len(series)-n:])
	return out
}
