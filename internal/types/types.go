package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceSeries is an ordered sequence of closing prices, oldest first.
type PriceSeries []float64

// Latest returns the newest price, or 0 for an empty series.
func (s PriceSeries) Latest() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorResult holds the indicators computed for one evaluation cycle.
// A nil field means the indicator was not computed.
type IndicatorResult struct {
	RSI   *float64 `json:"rsi,omitempty"`
	Bands *Bands   `json:"bands,omitempty"`
}

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

type Regime string

const (
	Ranging      Regime = "RANGING"
	TrendingUp   Regime = "TRENDING_UP"
	TrendingDown Regime = "TRENDING_DOWN"
	Unknown      Regime = "UNKNOWN"
)

// StrategyMode selects how the evaluator reads the indicators.
type StrategyMode string

const (
	// ModeRegime classifies the market and routes to mean reversion or trend following.
	ModeRegime StrategyMode = "REGIME"
	// ModeThreshold is the RSI-only strategy; no band data is needed.
	ModeThreshold StrategyMode = "THRESHOLD"
)

// Decision is the bounded output of one evaluation.
// Amount is expressed in base asset units, Notional in USD.
type Decision struct {
	Action     Action          `json:"action"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	Notional   decimal.Decimal `json:"notional_usd"`
	Reason     string          `json:"reason"`
	Confidence *float64        `json:"confidence,omitempty"`
	Strategy   string          `json:"strategy"`
	Regime     Regime          `json:"regime,omitempty"`
}

// IsTrade reports whether the decision asks for an order.
func (d Decision) IsTrade() bool {
	return d.Action == Buy || d.Action == Sell
}

// Order converts a trade decision into an order against the quote asset.
// BUY spends Notional of the quote asset, SELL sells Amount of the base asset.
func (d Decision) Order(quote string) (TradeOrder, error) {
	switch d.Action {
	case Buy:
		return NewTradeOrder(quote, d.Asset, d.Notional, d.Reason)
	case Sell:
		return NewTradeOrder(d.Asset, quote, d.Amount, d.Reason)
	default:
		return TradeOrder{}, fmt.Errorf("decision %s does not produce an order", d.Action)
	}
}

// TradeOrder moves Amount of FromAsset into ToAsset.
type TradeOrder struct {
	FromAsset string          `json:"from_asset"`
	ToAsset   string          `json:"to_asset"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func NewTradeOrder(from, to string, amount decimal.Decimal, reason string) (TradeOrder, error) {
	if from == "" || to == "" || strings.EqualFold(from, to) {
		return TradeOrder{}, fmt.Errorf("invalid order pair %q -> %q", from, to)
	}
	if !amount.IsPositive() {
		return TradeOrder{}, fmt.Errorf("order amount must be positive, got %s", amount)
	}
	return TradeOrder{FromAsset: from, ToAsset: to, Amount: amount, Reason: reason}, nil
}

// Side reports SELL when the order leaves the asset for the quote asset.
func (o TradeOrder) Side(quote string) Action {
	if strings.EqualFold(o.ToAsset, quote) {
		return Sell
	}
	return Buy
}

type TradeResult struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	FromAsset    string          `json:"from_asset"`
	ToAsset      string          `json:"to_asset"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	Price        decimal.Decimal `json:"price"`
	Message      string          `json:"message,omitempty"`
}

type Holding struct {
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	ValueUSD decimal.Decimal `json:"value_usd"`
}

// Price is the USD price implied by the holding, zero for an empty holding.
func (h Holding) Price() decimal.Decimal {
	if h.Amount.IsZero() {
		return decimal.Zero
	}
	return h.ValueUSD.Div(h.Amount)
}

// Portfolio is a point in time snapshot of holdings. Build it with NewPortfolio.
type Portfolio struct {
	holdings []Holding
	total    decimal.Decimal
}

// NewPortfolio validates holdings and computes the total value.
// Assets are matched case-insensitively and must be unique.
func NewPortfolio(holdings ...Holding) (Portfolio, error) {
	seen := make(map[string]struct{}, len(holdings))
	hs := make([]Holding, 0, len(holdings))
	total := decimal.Zero
	for _, h := range holdings {
		key := strings.ToUpper(h.Asset)
		if key == "" {
			return Portfolio{}, fmt.Errorf("holding without asset: %w", ErrInvalidPortfolio)
		}
		if _, dup := seen[key]; dup {
			return Portfolio{}, fmt.Errorf("duplicate holding %s: %w", h.Asset, ErrInvalidPortfolio)
		}
		if h.Amount.IsNegative() || h.ValueUSD.IsNegative() {
			return Portfolio{}, fmt.Errorf("negative holding %s: %w", h.Asset, ErrInvalidPortfolio)
		}
		seen[key] = struct{}{}
		h.Asset = key
		hs = append(hs, h)
		total = total.Add(h.ValueUSD)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Asset < hs[j].Asset })
	return Portfolio{holdings: hs, total: total}, nil
}

// Holdings returns a copy of the holdings sorted by asset.
func (p Portfolio) Holdings() []Holding {
	out := make([]Holding, len(p.holdings))
	copy(out, p.holdings)
	return out
}

// Holding returns the holding for asset. A missing asset is an empty holding.
func (p Portfolio) Holding(asset string) (Holding, bool) {
	key := strings.ToUpper(asset)
	for _, h := range p.holdings {
		if h.Asset == key {
			return h, true
		}
	}
	return Holding{Asset: key, Amount: decimal.Zero, ValueUSD: decimal.Zero}, false
}

func (p Portfolio) TotalValueUSD() decimal.Decimal {
	return p.total
}

// StrategyConfig is loaded once at start and passed by value.
type StrategyConfig struct {
	Mode                    StrategyMode    `json:"mode"`
	BaseAsset               string          `json:"base_asset"`
	BaseAssetID             string          `json:"base_asset_id"`
	QuoteAsset              string          `json:"quote_asset"`
	RSIOversold             float64         `json:"rsi_oversold"`
	RSIOverbought           float64         `json:"rsi_overbought"`
	MaxPortfolioRiskPercent float64         `json:"max_portfolio_risk_percent"`
	DustThreshold           decimal.Decimal `json:"dust_threshold"`
	RSIPeriod               int             `json:"rsi_period"`
	BBPeriod                int             `json:"bb_period"`
	BBStdDev                float64         `json:"bb_stddev"`
	RangingRSILow           float64         `json:"ranging_rsi_low"`
	RangingRSIHigh          float64         `json:"ranging_rsi_high"`
	RetraceTolerancePct     float64         `json:"retrace_tolerance_pct"`
	ConfirmSamples          int             `json:"confirm_samples"`
}

// Evaluation bundles the decision with the inputs that produced it.
type Evaluation struct {
	Decision   Decision        `json:"decision"`
	Regime     Regime          `json:"regime"`
	Indicators IndicatorResult `json:"indicators"`
	Price      float64         `json:"price"`
	Holding    Holding         `json:"holding"`
}

type StepResult struct {
	CycleID    string          `json:"cycle_id"`
	Asset      string          `json:"asset"`
	Price      float64         `json:"price"`
	Time       int64           `json:"time"`
	Regime     Regime          `json:"regime"`
	Indicators IndicatorResult `json:"indicators"`
	Decision   Decision        `json:"decision"`
	Dusted     []string        `json:"dusted,omitempty"`
	Orders     []TradeResult   `json:"orders"`
	Reason     string          `json:"reason"`
}

type RebalanceResult struct {
	CycleID string        `json:"cycle_id"`
	Time    int64         `json:"time"`
	Planned []TradeOrder  `json:"planned"`
	Orders  []TradeResult `json:"orders"`
	Reason  string        `json:"reason"`
}
