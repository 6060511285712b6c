// Package coingecko fetches daily closes and spot prices from the CoinGecko API.
package coingecko

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"trading-agent/internal/api"
	"trading-agent/internal/interfaces"
	"trading-agent/internal/types"
)

const (
	DefaultBaseURL      = "https://api.coingecko.com/api/v3"
	DefaultLookbackDays = 90
	vsCurrency          = "usd"
)

type Params struct {
	BaseURL string
	APIKey  string
	// RatePerMinute caps outgoing requests. Zero disables the limiter.
	RatePerMinute int
	Retry         *api.RetryConfig
}

type Client struct {
	api   *api.Client
	retry *api.RetryConfig
}

var _ interfaces.MarketData = (*Client)(nil)

func New(p Params, opts ...api.ClientOption) *Client {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	base := []api.ClientOption{
		api.WithBaseURL(p.BaseURL),
		api.WithHeader("x-cg-demo-api-key", p.APIKey),
		api.WithLogging(true),
	}
	if p.RatePerMinute > 0 {
		base = append(base, api.WithRateLimit(rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.RatePerMinute)), 1)))
	}
	return &Client{api: api.NewClient(append(base, opts...)...), retry: p.Retry}
}

type marketChart struct {
	Prices [][]float64 `json:"prices"`
}

// FetchPriceSeries returns daily closes, oldest first, rounded to 4 decimals.
func (c *Client) FetchPriceSeries(ctx context.Context, assetID string, lookbackDays int) (types.PriceSeries, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	req := api.NewRequest(http.MethodGet, "/coins/"+assetID+"/market_chart").WithContext(ctx).
		WithQuery("vs_currency", vsCurrency).
		WithQuery("days", strconv.Itoa(lookbackDays)).
		WithQuery("interval", "daily")
	resp, err := c.api.DoWithRetry(req, c.retry)
	if err != nil {
		return nil, fmt.Errorf("market chart %s: %v: %w", assetID, err, types.ErrDataUnavailable)
	}
	var chart marketChart
	if err := resp.ParseJSON(&chart); err != nil {
		return nil, fmt.Errorf("market chart %s: %v: %w", assetID, err, types.ErrDataUnavailable)
	}
	if len(chart.Prices) == 0 {
		return nil, fmt.Errorf("market chart %s: no prices: %w", assetID, types.ErrDataUnavailable)
	}

	series := make(types.PriceSeries, 0, len(chart.Prices))
	for i, point := range chart.Prices {
		// each point is [timestamp_ms, price]
		if len(point) < 2 || point[1] < 0 || math.IsNaN(point[1]) || math.IsInf(point[1], 0) {
			return nil, fmt.Errorf("market chart %s: bad point %d: %w", assetID, i, types.ErrDataUnavailable)
		}
		series = append(series, round4(point[1]))
	}
	return series, nil
}

type marketRow struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"current_price"`
}

func (c *Client) SpotPrice(ctx context.Context, assetID string) (float64, error) {
	req := api.NewRequest(http.MethodGet, "/coins/markets").WithContext(ctx).
		WithQuery("vs_currency", vsCurrency).
		WithQuery("ids", assetID)
	resp, err := c.api.DoWithRetry(req, c.retry)
	if err != nil {
		return 0, fmt.Errorf("spot price %s: %v: %w", assetID, err, types.ErrDataUnavailable)
	}
	var rows []marketRow
	if err := resp.ParseJSON(&rows); err != nil {
		return 0, fmt.Errorf("spot price %s: %v: %w", assetID, err, types.ErrDataUnavailable)
	}
	if len(rows) == 0 || rows[0].CurrentPrice <= 0 {
		return 0, fmt.Errorf("spot price %s: coin not found: %w", assetID, types.ErrDataUnavailable)
	}
	return rows[0].CurrentPrice, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
