package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"trading-agent/internal/portfolio"
	"trading-agent/internal/strategy"
	"trading-agent/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

// Mainnet contract addresses of the default assets.
var defaultTokens = map[string]string{
	"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	"WETH": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	"WBTC": "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
}

// SymbolMapping resolves an exchange ticker from an alert to a tradable asset.
type SymbolMapping struct {
	Asset       string `yaml:"asset"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

// Env holds secrets and endpoints read from the environment.
type Env struct {
	RecallAPIKey     string `envconfig:"RECALL_API_KEY"`
	RecallAPIURL     string `envconfig:"RECALL_API_URL" default:"https://api.competitions.recall.network"`
	CoinGeckoAPIKey  string `envconfig:"COINGECKO_API_KEY"`
	CoinGeckoAPIURL  string `envconfig:"COINGECKO_API_URL" default:"https://api.coingecko.com/api/v3"`
	TraderMode       string `envconfig:"TRADER_MODE"`
	LogRetentionDays int    `envconfig:"TRADER_LOG_RETENTION_DAYS"`
}

type Config struct {
	Mode        string `yaml:"mode"`
	PollSeconds int    `yaml:"poll_seconds"`
	TradingPair struct {
		BaseAsset   string `yaml:"base_asset"`
		BaseAssetID string `yaml:"base_asset_id"`
		QuoteAsset  string `yaml:"quote_asset"`
	} `yaml:"trading_pair"`
	StrategyParameters struct {
		Mode                    string  `yaml:"mode"`
		RSIOversold             float64 `yaml:"rsi_oversold"`
		RSIOverbought           float64 `yaml:"rsi_overbought"`
		MaxPortfolioRiskPercent float64 `yaml:"max_portfolio_risk_percent"`
		DustThreshold           string  `yaml:"dust_threshold"`
		RSIPeriod               int     `yaml:"rsi_period"`
		BBPeriod                int     `yaml:"bb_period"`
		BBStdDev                float64 `yaml:"bb_stddev"`
		RangingRSILow           float64 `yaml:"ranging_rsi_low"`
		RangingRSIHigh          float64 `yaml:"ranging_rsi_high"`
		RetraceTolerancePct     float64 `yaml:"retrace_tolerance_pct"`
		ConfirmSamples          int     `yaml:"confirm_samples"`
	} `yaml:"strategy_parameters"`
	Market struct {
		LookbackDays  int `yaml:"lookback_days"`
		RatePerMinute int `yaml:"rate_per_minute"`
	} `yaml:"market"`
	Recall struct {
		Chain  string            `yaml:"chain"`
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"recall"`
	Rebalance struct {
		TolerancePct float64            `yaml:"tolerance_pct"`
		Target       map[string]float64 `yaml:"target"`
	} `yaml:"rebalance"`
	Alerts struct {
		TradePct       float64                  `yaml:"trade_pct"`
		StopLossPct    float64                  `yaml:"stop_loss_pct"`
		PlanTTLMinutes int                      `yaml:"plan_ttl_minutes"`
		Symbols        map[string]SymbolMapping `yaml:"symbols"`
	} `yaml:"alerts"`
	Confirm struct {
		Required bool   `yaml:"required"`
		Mode     string `yaml:"mode"`
	} `yaml:"confirm"`
	Server struct {
		Addr          string  `yaml:"addr"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"server"`
	Journal struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"journal"`
	EOD struct {
		Dir    string `yaml:"dir"`
		Cutoff string `yaml:"cutoff"`
	} `yaml:"eod"`

	Env Env `yaml:"-"`
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.TradingPair.BaseAsset == "" || c.TradingPair.BaseAssetID == "" {
		return errors.New("trading_pair.base_asset and trading_pair.base_asset_id are required")
	}
	if strings.EqualFold(c.TradingPair.BaseAsset, c.TradingPair.QuoteAsset) {
		return fmt.Errorf("trading_pair base and quote are both %s", c.TradingPair.BaseAsset)
	}
	sp := c.StrategyParameters
	if m := types.StrategyMode(sp.Mode); m != types.ModeRegime && m != types.ModeThreshold {
		return fmt.Errorf("strategy_parameters.mode must be 'REGIME' or 'THRESHOLD', got '%s'", sp.Mode)
	}
	if sp.RSIOversold <= 0 || sp.RSIOversold >= 100 || sp.RSIOverbought <= 0 || sp.RSIOverbought >= 100 {
		return fmt.Errorf("rsi thresholds must be inside 0-100, got %.2f/%.2f", sp.RSIOversold, sp.RSIOverbought)
	}
	if sp.RSIOversold >= sp.RSIOverbought {
		return fmt.Errorf("rsi_oversold %.2f must be below rsi_overbought %.2f", sp.RSIOversold, sp.RSIOverbought)
	}
	if sp.MaxPortfolioRiskPercent <= 0 || sp.MaxPortfolioRiskPercent > 100 {
		return fmt.Errorf("strategy_parameters.max_portfolio_risk_percent must be between 0-100, got %.2f", sp.MaxPortfolioRiskPercent)
	}
	dust, err := decimal.NewFromString(sp.DustThreshold)
	if err != nil || dust.IsNegative() {
		return fmt.Errorf("strategy_parameters.dust_threshold must be a non-negative number, got '%s'", sp.DustThreshold)
	}
	if sp.RangingRSILow > sp.RangingRSIHigh {
		return fmt.Errorf("ranging rsi bounds inverted: %.2f > %.2f", sp.RangingRSILow, sp.RangingRSIHigh)
	}
	if c.Rebalance.TolerancePct < 0 {
		return fmt.Errorf("rebalance.tolerance_pct must not be negative, got %.2f", c.Rebalance.TolerancePct)
	}
	if _, err := c.TargetAllocation(); err != nil {
		return fmt.Errorf("rebalance.target: %w", err)
	}
	if c.Alerts.TradePct <= 0 || c.Alerts.TradePct > 100 {
		return fmt.Errorf("alerts.trade_pct must be between 0-100, got %.2f", c.Alerts.TradePct)
	}
	switch c.Confirm.Mode {
	case "auto", "terminal", "deny":
	default:
		return fmt.Errorf("confirm.mode must be 'auto', 'terminal' or 'deny', got '%s'", c.Confirm.Mode)
	}
	if _, err := time.Parse("15:04", c.EOD.Cutoff); err != nil {
		return fmt.Errorf("eod.cutoff must be HH:MM, got '%s'", c.EOD.Cutoff)
	}
	return nil
}

// Strategy returns the immutable strategy settings for the run.
func (c *Config) Strategy() types.StrategyConfig {
	sp := c.StrategyParameters
	dust, err := decimal.NewFromString(sp.DustThreshold)
	if err != nil {
		dust = portfolio.DefaultDustThreshold
	}
	return strategy.WithDefaults(types.StrategyConfig{
		Mode:                    types.StrategyMode(sp.Mode),
		BaseAsset:               strings.ToUpper(c.TradingPair.BaseAsset),
		BaseAssetID:             c.TradingPair.BaseAssetID,
		QuoteAsset:              strings.ToUpper(c.TradingPair.QuoteAsset),
		RSIOversold:             sp.RSIOversold,
		RSIOverbought:           sp.RSIOverbought,
		MaxPortfolioRiskPercent: sp.MaxPortfolioRiskPercent,
		DustThreshold:           dust,
		RSIPeriod:               sp.RSIPeriod,
		BBPeriod:                sp.BBPeriod,
		BBStdDev:                sp.BBStdDev,
		RangingRSILow:           sp.RangingRSILow,
		RangingRSIHigh:          sp.RangingRSIHigh,
		RetraceTolerancePct:     sp.RetraceTolerancePct,
		ConfirmSamples:          sp.ConfirmSamples,
	})
}

// TargetAllocation builds the rebalance target settled in the quote asset.
func (c *Config) TargetAllocation() (portfolio.TargetAllocation, error) {
	weights := make(map[string]decimal.Decimal, len(c.Rebalance.Target))
	for asset, w := range c.Rebalance.Target {
		weights[asset] = decimal.NewFromFloat(w)
	}
	return portfolio.NewTargetAllocation(c.TradingPair.QuoteAsset, weights)
}

// RebalanceTolerance is the drift tolerance as a fraction.
func (c *Config) RebalanceTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.Rebalance.TolerancePct).Div(decimal.NewFromInt(100))
}

func (c *Config) PlanTTL() time.Duration {
	return time.Duration(c.Alerts.PlanTTLMinutes) * time.Minute
}

// DryRun reports whether orders are simulated.
func (c *Config) DryRun() bool {
	return c.Mode != ModeLive
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML (or JSON, which YAML accepts), overlays the
// environment and validates the result.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &c.Env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if c.Env.TraderMode != "" {
		c.Mode = c.Env.TraderMode
	}
	if c.Env.LogRetentionDays > 0 {
		c.Journal.RetentionDays = c.Env.LogRetentionDays
	}
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 300
	}
	if c.TradingPair.QuoteAsset == "" {
		c.TradingPair.QuoteAsset = strategy.DefaultQuoteAsset
	}

	sp := &c.StrategyParameters
	sp.Mode = strings.ToUpper(sp.Mode)
	if sp.Mode == "" {
		sp.Mode = string(types.ModeRegime)
	}
	if sp.RSIOversold == 0 {
		sp.RSIOversold = strategy.DefaultRSIOversold
	}
	if sp.RSIOverbought == 0 {
		sp.RSIOverbought = strategy.DefaultRSIOverbought
	}
	if sp.MaxPortfolioRiskPercent == 0 {
		sp.MaxPortfolioRiskPercent = strategy.DefaultRiskPercent
	}
	if sp.DustThreshold == "" {
		sp.DustThreshold = portfolio.DefaultDustThreshold.String()
	}

	if c.Market.LookbackDays == 0 {
		c.Market.LookbackDays = 90
	}
	if c.Market.RatePerMinute == 0 {
		c.Market.RatePerMinute = 30
	}
	if c.Recall.Chain == "" {
		c.Recall.Chain = "evm"
	}
	tokens := make(map[string]string, len(defaultTokens)+len(c.Recall.Tokens))
	for k, v := range defaultTokens {
		tokens[k] = v
	}
	for k, v := range c.Recall.Tokens {
		tokens[strings.ToUpper(k)] = v
	}
	c.Recall.Tokens = tokens

	if c.Rebalance.TolerancePct == 0 {
		c.Rebalance.TolerancePct = 1
	}
	if len(c.Rebalance.Target) == 0 {
		c.Rebalance.Target = map[string]float64{"WETH": 50, "WBTC": 25, "USDC": 25}
	}

	if c.Alerts.TradePct == 0 {
		c.Alerts.TradePct = 10
	}
	if c.Alerts.StopLossPct == 0 {
		c.Alerts.StopLossPct = 5
	}
	if c.Alerts.PlanTTLMinutes == 0 {
		c.Alerts.PlanTTLMinutes = 60
	}
	if len(c.Alerts.Symbols) == 0 {
		c.Alerts.Symbols = map[string]SymbolMapping{
			"BTCUSDT": {Asset: "WBTC", CoinGeckoID: "bitcoin"},
			"BTCUSD":  {Asset: "WBTC", CoinGeckoID: "bitcoin"},
			"ETHUSDT": {Asset: "WETH", CoinGeckoID: "ethereum"},
			"ETHUSD":  {Asset: "WETH", CoinGeckoID: "ethereum"},
		}
	}

	c.Confirm.Mode = strings.ToLower(c.Confirm.Mode)
	if c.Confirm.Mode == "" {
		c.Confirm.Mode = "auto"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RatePerSecond == 0 {
		c.Server.RatePerSecond = 5
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 10
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "logs"
	}
	if c.EOD.Dir == "" {
		c.EOD.Dir = "reports"
	}
	if c.EOD.Cutoff == "" {
		c.EOD.Cutoff = "23:55"
	}
}
