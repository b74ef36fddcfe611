package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// fetchProgressCeiling is the share of overall progress the data-loading
// phase owns; the scanning phase takes over above it.
const fetchProgressCeiling = 20

// MonthCache stores candles on disk as one JSON file per calendar month,
// laid out as <dir>/<SYMBOL>/<interval>/<YYYY-MM>.json. Only closed months
// are ever written, so a cache hit never needs revalidation.
type MonthCache struct {
	dir string
}

func NewMonthCache(dir string) *MonthCache {
	return &MonthCache{dir: dir}
}

func (mc *MonthCache) path(symbol, interval string, month time.Time) string {
	return filepath.Join(mc.dir, symbol, interval, month.Format("2006-01")+".json")
}

func (mc *MonthCache) Load(symbol, interval string, month time.Time) ([]model.Candle, bool) {
	data, err := os.ReadFile(mc.path(symbol, interval, month))
	if err != nil {
		return nil, false
	}
	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, false
	}
	return candles, true
}

func (mc *MonthCache) Save(symbol, interval string, month time.Time, candles []model.Candle) error {
	p := mc.path(symbol, interval, month)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("encode cached month: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cached month: %w", err)
	}
	return os.Rename(tmp, p)
}

// CachedSource serves candle ranges month by month: closed months come from
// the disk cache when present, the current month is always refetched because
// it is still growing. It satisfies the backtester's candle source contract.
type CachedSource struct {
	client *BinanceClient
	cache  *MonthCache
	logger *zap.Logger
	now    func() time.Time
}

func NewCachedSource(client *BinanceClient, cache *MonthCache, logger *zap.Logger) *CachedSource {
	return &CachedSource{
		client: client,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// FetchRange returns candles with OpenTime inside [startMs, endMs], oldest
// first. Months that fail to download are logged and skipped rather than
// failing the whole range: a backtest over a gappy series is still useful.
func (cs *CachedSource) FetchRange(ctx context.Context, symbol, interval string, startMs, endMs int64, progress func(current, total int, message string)) ([]model.Candle, error) {
	if startMs > endMs {
		return nil, fmt.Errorf("invalid range: start %d after end %d", startMs, endMs)
	}

	months := monthsCovering(startMs, endMs)
	currentMonth := monthStart(cs.now().UTC())

	var out []model.Candle
	for i, month := range months {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candles, err := cs.loadMonth(ctx, symbol, interval, month, month.Equal(currentMonth) || month.After(currentMonth))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cs.logger.Warn("skipping month after fetch failure",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.String("month", month.Format("2006-01")),
				zap.Error(err))
			continue
		}

		for _, candle := range candles {
			if candle.OpenTime >= startMs && candle.OpenTime <= endMs {
				out = append(out, candle)
			}
		}

		if progress != nil {
			pct := (i + 1) * fetchProgressCeiling / len(months)
			progress(pct, 100, fmt.Sprintf("loaded %s", month.Format("2006-01")))
		}
	}

	sortCandles(out)
	return out, nil
}

// loadMonth returns every candle of a single month. Closed months are served
// from cache when possible and written back after a successful download.
func (cs *CachedSource) loadMonth(ctx context.Context, symbol, interval string, month time.Time, open bool) ([]model.Candle, error) {
	if !open {
		if candles, ok := cs.cache.Load(symbol, interval, month); ok {
			infrastructure.CacheHits.WithLabelValues(symbol).Inc()
			return candles, nil
		}
	}

	fromMs := month.UnixMilli()
	toMs := month.AddDate(0, 1, 0).UnixMilli() - 1
	if open {
		nowMs := cs.now().UTC().UnixMilli()
		if nowMs < toMs {
			toMs = nowMs
		}
	}

	candles, err := cs.client.FetchRangeChunked(ctx, symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, err
	}

	if !open && len(candles) > 0 {
		if err := cs.cache.Save(symbol, interval, month, candles); err != nil {
			cs.logger.Warn("failed to persist month cache",
				zap.String("symbol", symbol),
				zap.String("month", month.Format("2006-01")),
				zap.Error(err))
		}
	}
	return candles, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthsCovering lists the first day of every month touched by the range.
func monthsCovering(startMs, endMs int64) []time.Time {
	start := monthStart(time.UnixMilli(startMs).UTC())
	end := time.UnixMilli(endMs).UTC()

	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
