package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

func TestMonthCache_RoundTrip(t *testing.T) {
	cache := NewMonthCache(t.TempDir())
	month := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	candles := []model.Candle{
		{OpenTime: month.UnixMilli(), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
	}
	require.NoError(t, cache.Save("BTCUSDT", "1h", month, candles))

	loaded, ok := cache.Load("BTCUSDT", "1h", month)
	require.True(t, ok)
	assert.Equal(t, candles, loaded)
}

func TestMonthCache_Miss(t *testing.T) {
	cache := NewMonthCache(t.TempDir())
	_, ok := cache.Load("BTCUSDT", "1h", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestMonthCache_IgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	cache := NewMonthCache(dir)
	month := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := filepath.Join(dir, "BTCUSDT", "1h", "2024-01.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))

	_, ok := cache.Load("BTCUSDT", "1h", month)
	assert.False(t, ok)
}

func newTestSource(t *testing.T, calls *int32, now time.Time) *CachedSource {
	t.Helper()
	server := klineServer(1000, calls)
	t.Cleanup(server.Close)

	src := NewCachedSource(
		NewBinanceClient(server.URL, zap.NewNop()),
		NewMonthCache(t.TempDir()),
		zap.NewNop(),
	)
	src.now = func() time.Time { return now }
	return src
}

func TestCachedSource_ClosedMonthsServedFromCache(t *testing.T) {
	var calls int32
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	src := newTestSource(t, &calls, now)

	startMs := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	endMs := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC).UnixMilli()

	var lastPercent int
	candles, err := src.FetchRange(context.Background(), "BTCUSDT", "1h", startMs, endMs,
		func(current, total int, message string) { lastPercent = current })
	require.NoError(t, err)
	require.NotEmpty(t, candles)

	// The loading phase tops out at 20 percent.
	assert.Equal(t, 20, lastPercent)

	assert.GreaterOrEqual(t, candles[0].OpenTime, startMs)
	assert.LessOrEqual(t, candles[len(candles)-1].OpenTime, endMs)
	for i := 1; i < len(candles); i++ {
		assert.Greater(t, candles[i].OpenTime, candles[i-1].OpenTime)
	}

	fetchedFirst := atomic.LoadInt32(&calls)
	require.Greater(t, fetchedFirst, int32(0))

	// Second pass over the same closed months must not touch the exchange.
	again, err := src.FetchRange(context.Background(), "BTCUSDT", "1h", startMs, endMs, nil)
	require.NoError(t, err)
	assert.Equal(t, fetchedFirst, atomic.LoadInt32(&calls))
	assert.Equal(t, len(candles), len(again))
}

func TestCachedSource_CurrentMonthAlwaysRefetched(t *testing.T) {
	var calls int32
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	src := newTestSource(t, &calls, now)

	startMs := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	endMs := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	_, err := src.FetchRange(context.Background(), "BTCUSDT", "1h", startMs, endMs, nil)
	require.NoError(t, err)
	first := atomic.LoadInt32(&calls)

	_, err = src.FetchRange(context.Background(), "BTCUSDT", "1h", startMs, endMs, nil)
	require.NoError(t, err)

	assert.Greater(t, atomic.LoadInt32(&calls), first)
}

func TestCachedSource_RejectsInvertedRange(t *testing.T) {
	src := newTestSource(t, new(int32), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	_, err := src.FetchRange(context.Background(), "BTCUSDT", "1h", 100, 50, nil)
	assert.Error(t, err)
}
