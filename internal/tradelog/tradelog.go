// Package tradelog keeps the daily JSONL journals of decisions and trades.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trading-agent/internal/types"
)

const (
	dayLayout    = "2006-01-02"
	decisionsDir = "decisions"
	fileExt      = ".jsonl"
)

// TradeEntry is one line of the trade journal.
type TradeEntry struct {
	Time     time.Time `json:"time"`
	CycleID  string    `json:"cycle_id"`
	Side     string    `json:"side"`
	Asset    string    `json:"asset"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Amount   string    `json:"amount"`
	Filled   string    `json:"filled"`
	Price    string    `json:"price"`
	OrderID  string    `json:"order_id"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
	Strategy string    `json:"strategy,omitempty"`
}

// Journal appends entries to <dir>/<day>.jsonl and <dir>/decisions/<day>.jsonl.
// Files roll over at midnight in the journal's location.
type Journal struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu        sync.Mutex
	day       string
	trades    *zap.Logger
	decisions *zap.Logger
	files     []*os.File
}

func New(dir string) *Journal {
	return &Journal{dir: dir, loc: time.UTC, now: time.Now}
}

// Dir is the journal root directory.
func (j *Journal) Dir() string {
	return j.dir
}

// TradeFile returns the trade journal path for the day of t.
func (j *Journal) TradeFile(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format(dayLayout)+fileExt)
}

func (j *Journal) decisionFile(t time.Time) string {
	return filepath.Join(j.dir, decisionsDir, t.In(j.loc).Format(dayLayout)+fileExt)
}

func encoderConfig() zapcore.EncoderConfig {
	// time comes from the journal clock as a regular field
	return zapcore.EncoderConfig{
		MessageKey:     "event",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}
}

func (j *Journal) open(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	j.files = append(j.files, f)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(f), zapcore.InfoLevel)
	return zap.New(core), nil
}

// rotate opens the files for the current day. Caller holds mu.
func (j *Journal) rotate(now time.Time) error {
	day := now.In(j.loc).Format(dayLayout)
	if day == j.day && j.trades != nil {
		return nil
	}
	j.closeFiles()
	trades, err := j.open(j.TradeFile(now))
	if err != nil {
		return err
	}
	decisions, err := j.open(j.decisionFile(now))
	if err != nil {
		j.closeFiles()
		return err
	}
	j.day, j.trades, j.decisions = day, trades, decisions
	return nil
}

func (j *Journal) closeFiles() {
	for _, f := range j.files {
		_ = f.Close()
	}
	j.files = nil
	j.trades, j.decisions = nil, nil
}

// AppendTrade journals a submitted order and its result.
func (j *Journal) AppendTrade(cycleID, quote string, order types.TradeOrder, res types.TradeResult, strategy string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	if err := j.rotate(now); err != nil {
		return err
	}
	side := order.Side(quote)
	asset := order.ToAsset
	if side == types.Sell {
		asset = order.FromAsset
	}
	j.trades.Info("trade",
		zap.Time("time", now),
		zap.String("cycle_id", cycleID),
		zap.String("side", string(side)),
		zap.String("asset", strings.ToUpper(asset)),
		zap.String("from", order.FromAsset),
		zap.String("to", order.ToAsset),
		zap.String("amount", order.Amount.String()),
		zap.String("filled", res.FilledAmount.String()),
		zap.String("price", res.Price.String()),
		zap.String("order_id", res.ID),
		zap.String("status", res.Status),
		zap.String("reason", order.Reason),
		zap.String("strategy", strategy),
	)
	return j.trades.Sync()
}

// AppendDecision journals an evaluation, HOLDs included.
func (j *Journal) AppendDecision(cycleID string, price float64, d types.Decision, ind types.IndicatorResult, dusted []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	if err := j.rotate(now); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.Time("time", now),
		zap.String("cycle_id", cycleID),
		zap.String("asset", d.Asset),
		zap.String("action", string(d.Action)),
		zap.String("strategy", d.Strategy),
		zap.String("regime", string(d.Regime)),
		zap.Float64("price", price),
		zap.String("amount", d.Amount.String()),
		zap.String("notional", d.Notional.String()),
		zap.String("reason", d.Reason),
	}
	if d.Confidence != nil {
		fields = append(fields, zap.Float64("confidence", *d.Confidence))
	}
	if ind.RSI != nil {
		fields = append(fields, zap.Float64("rsi", *ind.RSI))
	}
	if ind.Bands != nil {
		fields = append(fields,
			zap.Float64("bb_upper", ind.Bands.Upper),
			zap.Float64("bb_middle", ind.Bands.Middle),
			zap.Float64("bb_lower", ind.Bands.Lower),
		)
	}
	if len(dusted) > 0 {
		fields = append(fields, zap.Strings("dusted", dusted))
	}
	j.decisions.Info("decision", fields...)
	return j.decisions.Sync()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closeFiles()
	j.day = ""
	return nil
}

// ReadTrades returns the trade journal of the day of t. A missing file is an
// empty journal; malformed lines are skipped.
func (j *Journal) ReadTrades(t time.Time) ([]TradeEntry, error) {
	f, err := os.Open(j.TradeFile(t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []TradeEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e TradeEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips journal files last modified more than retentionDays ago.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != fileExt {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		return compressFile(p)
	})
}

func compressFile(p string) error {
	gz := p + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}
	in, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	closeErr := gw.Close()
	if err := out.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(gz)
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}
	return os.Remove(p)
}
