// Package eod writes end-of-day CSV summaries of the trade journal.
package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/tradelog"
)

// Statuses that count as executed trades.
var executed = map[string]bool{"FILLED": true, "SIMULATED": true}

// aggRow aggregates the executed trades of one asset.
type aggRow struct {
	Asset      string
	Trades     int
	BuyUnits   decimal.Decimal // asset units received
	BuyValue   decimal.Decimal // quote spent
	SellUnits  decimal.Decimal // asset units sold
	SellValue  decimal.Decimal // quote received
	Realized   decimal.Decimal
	BuyAverage decimal.Decimal
	SellAvg    decimal.Decimal
}

type Summarizer struct {
	journal *tradelog.Journal
	outDir  string
	cutoff  time.Duration // since midnight
	loc     *time.Location
	now     func() time.Time
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// NewSummarizer reads journal and writes to outDir once the clock passes cutoff (HH:MM, UTC).
func NewSummarizer(journal *tradelog.Journal, outDir, cutoff string) (*Summarizer, error) {
	c, err := time.Parse("15:04", cutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid eod cutoff %q: %w", cutoff, err)
	}
	return &Summarizer{
		journal: journal,
		outDir:  outDir,
		cutoff:  time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute,
		loc:     time.UTC,
		now:     time.Now,
	}, nil
}

func (s *Summarizer) csvPath(t time.Time) string {
	return filepath.Join(s.outDir, t.In(s.loc).Format("2006-01-02")+".csv")
}

func (s *Summarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	entries, err := s.journal.ReadTrades(t)
	if err != nil {
		return "", err
	}
	rows := aggregate(entries)
	if len(rows) == 0 {
		return "", nil
	}

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"asset", "trades", "buy_units", "buy_avg", "sell_units", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	totalBuy, totalSell, totalPnL := decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range rows {
		rec := []string{
			r.Asset,
			strconv.Itoa(r.Trades),
			r.BuyUnits.String(),
			r.BuyAverage.StringFixed(4),
			r.SellUnits.String(),
			r.SellAvg.StringFixed(4),
			r.Realized.StringFixed(2),
			r.BuyValue.StringFixed(2),
			r.SellValue.StringFixed(2),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(r.Realized)
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2)}); err != nil {
		return "", err
	}
	w.Flush()
	return outPath, w.Error()
}

func (s *Summarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow is true after the cutoff until today's summary exists.
func (s *Summarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	outPath := s.csvPath(now)
	if now.Before(midnight.Add(s.cutoff)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}

func aggregate(entries []tradelog.TradeEntry) []*aggRow {
	aggs := map[string]*aggRow{}
	for _, e := range entries {
		if !executed[e.Status] {
			continue
		}
		amount, err1 := decimal.NewFromString(e.Amount)
		filled, err2 := decimal.NewFromString(e.Filled)
		if err1 != nil || err2 != nil {
			continue
		}
		row := aggs[e.Asset]
		if row == nil {
			row = &aggRow{Asset: e.Asset}
			aggs[e.Asset] = row
		}
		row.Trades++
		switch e.Side {
		case "BUY":
			row.BuyValue = row.BuyValue.Add(amount)
			row.BuyUnits = row.BuyUnits.Add(filled)
		case "SELL":
			row.SellUnits = row.SellUnits.Add(amount)
			row.SellValue = row.SellValue.Add(filled)
		}
	}

	out := make([]*aggRow, 0, len(aggs))
	for _, r := range aggs {
		if r.BuyUnits.IsPositive() {
			r.BuyAverage = r.BuyValue.Div(r.BuyUnits)
		}
		if r.SellUnits.IsPositive() {
			r.SellAvg = r.SellValue.Div(r.SellUnits)
		}
		matched := decimal.Min(r.BuyUnits, r.SellUnits)
		if matched.IsPositive() {
			r.Realized = matched.Mul(r.SellAvg.Sub(r.BuyAverage))
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}
