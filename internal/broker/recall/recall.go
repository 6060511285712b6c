// Package recall talks to the Recall competition trading API.
package recall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-agent/internal/api"
	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/types"
)

const (
	StatusFilled    = "FILLED"
	StatusSimulated = "SIMULATED"
	StatusFailed    = "FAILED"

	modeDryRun = "DRY_RUN"
)

type Params struct {
	Mode    string
	APIKey  string
	BaseURL string
	Chain   string
	// Tokens maps asset symbols to contract addresses.
	Tokens  map[string]string
	Timeout time.Duration
	// Retry applies to reads only. Nil uses api.DefaultRetryConfig.
	Retry *api.RetryConfig
}

type Client struct {
	p       Params
	api     *api.Client
	symbols map[string]string // lower-case address -> symbol

	// one trade in flight at a time
	submitMu sync.Mutex
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params, opts ...api.ClientOption) *Client {
	if p.Timeout == 0 {
		p.Timeout = 30 * time.Second
	}
	if p.Chain == "" {
		p.Chain = "evm"
	}
	tokens := make(map[string]string, len(p.Tokens))
	symbols := make(map[string]string, len(p.Tokens))
	for sym, addr := range p.Tokens {
		tokens[strings.ToUpper(sym)] = addr
		symbols[strings.ToLower(addr)] = strings.ToUpper(sym)
	}
	p.Tokens = tokens

	base := []api.ClientOption{
		api.WithBaseURL(p.BaseURL),
		api.WithBearerToken(p.APIKey),
		api.WithTimeout(p.Timeout),
		api.WithLogging(true),
	}
	return &Client{
		p:       p,
		api:     api.NewClient(append(base, opts...)...),
		symbols: symbols,
	}
}

func (c *Client) DryRun() bool {
	return c.p.Mode == modeDryRun
}

// Address resolves an asset symbol to its contract address. Addresses pass through.
func (c *Client) Address(asset string) (string, error) {
	if strings.HasPrefix(asset, "0x") {
		return asset, nil
	}
	addr, ok := c.p.Tokens[strings.ToUpper(asset)]
	if !ok {
		return "", fmt.Errorf("no token address for %s", asset)
	}
	return addr, nil
}

type portfolioToken struct {
	Token  string  `json:"token"`
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
	Value  float64 `json:"value"`
	Chain  string  `json:"chain"`
}

type portfolioResponse struct {
	Success    bool             `json:"success"`
	TotalValue float64          `json:"totalValue"`
	Tokens     []portfolioToken `json:"tokens"`
}

func (c *Client) FetchPortfolio(ctx context.Context) (types.Portfolio, error) {
	resp, err := c.api.DoWithRetry(api.NewRequest(http.MethodGet, "/api/agent/portfolio").WithContext(ctx), c.p.Retry)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("fetch portfolio: %v: %w", err, types.ErrDataUnavailable)
	}
	var body portfolioResponse
	if err := resp.ParseJSON(&body); err != nil {
		return types.Portfolio{}, fmt.Errorf("fetch portfolio: %v: %w", err, types.ErrDataUnavailable)
	}

	// the same symbol can appear on several chains
	merged := map[string]*types.Holding{}
	var order []string
	for _, t := range body.Tokens {
		sym := c.symbolFor(t)
		if sym == "" {
			continue
		}
		h, ok := merged[sym]
		if !ok {
			h = &types.Holding{Asset: sym}
			merged[sym] = h
			order = append(order, sym)
		}
		h.Amount = h.Amount.Add(decimal.NewFromFloat(t.Amount))
		h.ValueUSD = h.ValueUSD.Add(decimal.NewFromFloat(t.Value))
	}
	holdings := make([]types.Holding, 0, len(order))
	for _, sym := range order {
		holdings = append(holdings, *merged[sym])
	}
	p, err := types.NewPortfolio(holdings...)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("fetch portfolio: %v: %w", err, types.ErrDataUnavailable)
	}
	return p, nil
}

func (c *Client) symbolFor(t portfolioToken) string {
	if t.Symbol != "" {
		return strings.ToUpper(t.Symbol)
	}
	if sym, ok := c.symbols[strings.ToLower(t.Token)]; ok {
		return sym
	}
	return strings.ToUpper(t.Token)
}

type priceResponse struct {
	Success bool    `json:"success"`
	Price   float64 `json:"price"`
}

func (c *Client) TokenPrice(ctx context.Context, asset string) (float64, error) {
	addr, err := c.Address(asset)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, types.ErrDataUnavailable)
	}
	req := api.NewRequest(http.MethodGet, "/api/price").WithContext(ctx).
		WithQuery("token", addr).
		WithQuery("chain", c.p.Chain)
	resp, err := c.api.DoWithRetry(req, c.p.Retry)
	if err != nil {
		return 0, fmt.Errorf("price %s: %v: %w", asset, err, types.ErrDataUnavailable)
	}
	var body priceResponse
	if err := resp.ParseJSON(&body); err != nil {
		return 0, fmt.Errorf("price %s: %v: %w", asset, err, types.ErrDataUnavailable)
	}
	if body.Price <= 0 {
		return 0, fmt.Errorf("price %s: no price: %w", asset, types.ErrDataUnavailable)
	}
	return body.Price, nil
}

type tradeRequest struct {
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type tradeResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Transaction struct {
		ID         string  `json:"id"`
		FromAmount float64 `json:"fromAmount"`
		ToAmount   float64 `json:"toAmount"`
		Price      float64 `json:"price"`
		Success    bool    `json:"success"`
		Error      string  `json:"error"`
	} `json:"transaction"`
}

// SubmitTrade executes one order. Trade requests are never retried.
func (c *Client) SubmitTrade(ctx context.Context, order types.TradeOrder) (types.TradeResult, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	result := types.TradeResult{
		FromAsset:  order.FromAsset,
		ToAsset:    order.ToAsset,
		FromAmount: order.Amount,
	}
	if c.DryRun() {
		return c.simulate(ctx, order, result), nil
	}

	from, err := c.Address(order.FromAsset)
	if err != nil {
		return failed(result, err)
	}
	to, err := c.Address(order.ToAsset)
	if err != nil {
		return failed(result, err)
	}

	resp, err := c.api.POST(ctx, "/api/trade/execute", tradeRequest{
		FromToken: from,
		ToToken:   to,
		Amount:    order.Amount.String(),
		Reason:    order.Reason,
	})
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) {
			return failed(result, fmt.Errorf("trade rejected: %s", se.Body))
		}
		return failed(result, err)
	}

	var body tradeResponse
	if err := resp.ParseJSON(&body); err != nil {
		return failed(result, err)
	}
	tx := body.Transaction
	if !body.Success || (tx.ID != "" && !tx.Success && tx.Error != "") {
		msg := body.Error
		if msg == "" {
			msg = tx.Error
		}
		return failed(result, fmt.Errorf("trade rejected: %s", msg))
	}

	result.ID = tx.ID
	result.Status = StatusFilled
	if tx.FromAmount > 0 {
		result.FromAmount = decimal.NewFromFloat(tx.FromAmount)
	}
	result.FilledAmount = decimal.NewFromFloat(tx.ToAmount)
	result.Price = decimal.NewFromFloat(tx.Price)
	return result, nil
}

// simulate fills the order at current prices without touching the account.
func (c *Client) simulate(ctx context.Context, order types.TradeOrder, result types.TradeResult) types.TradeResult {
	result.ID = "SIM-" + uuid.NewString()
	result.Status = StatusSimulated
	result.Message = "dry-run"

	fromPx, err1 := c.TokenPrice(ctx, order.FromAsset)
	toPx, err2 := c.TokenPrice(ctx, order.ToAsset)
	if err := errors.Join(err1, err2); err != nil {
		logger.WarnSkip(ctx, 1, "Simulated fill without prices", "from", order.FromAsset, "to", order.ToAsset, "error", err)
		result.Message = "dry-run: prices unavailable"
		return result
	}
	rate := decimal.NewFromFloat(fromPx).Div(decimal.NewFromFloat(toPx))
	result.FilledAmount = order.Amount.Mul(rate).Truncate(8)
	result.Price = rate
	return result
}

func failed(result types.TradeResult, err error) (types.TradeResult, error) {
	result.Status = StatusFailed
	result.Message = err.Error()
	return result, fmt.Errorf("%v: %w", err, types.ErrExecutionFailed)
}
