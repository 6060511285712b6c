package tradelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent/internal/types"
)

func fixedJournal(t *testing.T, at time.Time) *Journal {
	t.Helper()
	j := New(t.TempDir())
	j.now = func() time.Time { return at }
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndReadTrades(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	j := fixedJournal(t, at)

	sell, err := types.NewTradeOrder("WETH", "USDC", decimal.RequireFromString("0.5"), "mean reversion: upper band")
	require.NoError(t, err)
	res := types.TradeResult{ID: "SIM-1", Status: "FILLED", FilledAmount: decimal.RequireFromString("1500"), Price: decimal.RequireFromString("3000")}
	require.NoError(t, j.AppendTrade("c1", "USDC", sell, res, "mean_reversion"))

	buy, err := types.NewTradeOrder("USDC", "WBTC", decimal.RequireFromString("1000"), "rebalance")
	require.NoError(t, err)
	require.NoError(t, j.AppendTrade("c2", "USDC", buy, types.TradeResult{ID: "SIM-2", Status: "FILLED"}, ""))

	entries, err := j.ReadTrades(at)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "SELL", entries[0].Side)
	assert.Equal(t, "WETH", entries[0].Asset)
	assert.Equal(t, "0.5", entries[0].Amount)
	assert.Equal(t, "3000", entries[0].Price)
	assert.True(t, entries[0].Time.Equal(at))
	assert.Equal(t, "BUY", entries[1].Side)
	assert.Equal(t, "WBTC", entries[1].Asset)

	assert.FileExists(t, filepath.Join(j.Dir(), "2026-03-04.jsonl"))
}

func TestReadTradesMissingDay(t *testing.T) {
	j := fixedJournal(t, time.Now())
	entries, err := j.ReadTrades(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendDecision(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	j := fixedJournal(t, at)
	rsi := 28.5
	conf := 71.5
	d := types.Decision{Action: types.Buy, Asset: "WETH", Amount: decimal.RequireFromString("0.1"), Notional: decimal.NewFromInt(300),
		Reason: "rsi threshold", Confidence: &conf, Strategy: "rsi_threshold"}
	require.NoError(t, j.AppendDecision("c1", 3000, d, types.IndicatorResult{RSI: &rsi}, []string{"WBTC"}))

	b, err := os.ReadFile(filepath.Join(j.Dir(), "decisions", "2026-03-04.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"action":"BUY"`)
	assert.Contains(t, string(b), `"rsi":28.5`)
	assert.Contains(t, string(b), `"dusted":["WBTC"]`)
}

func TestRotatesAtMidnight(t *testing.T) {
	at := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	j := fixedJournal(t, at)
	order, err := types.NewTradeOrder("USDC", "WETH", decimal.NewFromInt(10), "x")
	require.NoError(t, err)
	require.NoError(t, j.AppendTrade("a", "USDC", order, types.TradeResult{}, ""))

	next := at.Add(2 * time.Minute)
	j.now = func() time.Time { return next }
	require.NoError(t, j.AppendTrade("b", "USDC", order, types.TradeResult{}, ""))

	first, err := j.ReadTrades(at)
	require.NoError(t, err)
	second, err := j.ReadTrades(next)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
}

func TestCompressOlder(t *testing.T) {
	j := fixedJournal(t, time.Now())
	old := filepath.Join(j.Dir(), "2020-01-01.jsonl")
	fresh := filepath.Join(j.Dir(), "2099-01-01.jsonl")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("{}\n"), 0o644))
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))

	require.NoError(t, j.CompressOlder(7))
	assert.NoFileExists(t, old)
	assert.FileExists(t, old+".gz")
	assert.FileExists(t, fresh)

	require.NoError(t, j.CompressOlder(0))
}
