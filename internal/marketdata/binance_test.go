package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

const hourMs = int64(3_600_000)

func klineRow(openTime, span int64) []interface{} {
	return []interface{}{
		openTime, "100.1", "101.2", "99.3", "100.6", "12.5",
		openTime + span - 1, "1250.75", 42, "6.25", "625.5", "0",
	}
}

// klineServer answers like the exchange: up to pageSize hourly candles
// oldest-first, ending at the requested endTime.
func klineServer(pageSize int, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		endTime, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		end := endTime - endTime%hourMs

		rows := make([][]interface{}, 0, pageSize)
		for ot := end - int64(pageSize-1)*hourMs; ot <= end; ot += hourMs {
			if ot < 0 {
				continue
			}
			rows = append(rows, klineRow(ot, hourMs))
		}
		json.NewEncoder(w).Encode(rows)
	}))
}

func TestBinanceClient_FetchRangeChunked(t *testing.T) {
	var calls int32
	server := klineServer(1000, &calls)
	defer server.Close()

	client := NewBinanceClient(server.URL, zap.NewNop())

	startMs := 100 * hourMs
	endMs := 150*hourMs - 1
	candles, err := client.FetchRangeChunked(context.Background(), "BTCUSDT", "1h", startMs, endMs)
	require.NoError(t, err)

	// Hours 100..149 inclusive.
	require.Len(t, candles, 50)
	assert.Equal(t, startMs, candles[0].OpenTime)
	for i := 1; i < len(candles); i++ {
		assert.Greater(t, candles[i].OpenTime, candles[i-1].OpenTime)
	}
	assert.Equal(t, 100.1, candles[0].Open)
	assert.Equal(t, 101.2, candles[0].High)
	assert.Equal(t, 99.3, candles[0].Low)
	assert.Equal(t, 100.6, candles[0].Close)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, int64(42), candles[0].TradeCount)
	assert.Equal(t, 1250.75, candles[0].QuoteVolume)
}

func TestBinanceClient_PagesBackwards(t *testing.T) {
	var calls int32
	server := klineServer(100, &calls) // small pages force paging
	defer server.Close()

	client := NewBinanceClient(server.URL, zap.NewNop())

	startMs := int64(0)
	endMs := 250*hourMs - 1
	candles, err := client.FetchRangeChunked(context.Background(), "BTCUSDT", "1h", startMs, endMs)
	require.NoError(t, err)

	assert.Len(t, candles, 250)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestBinanceClient_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([][]interface{}{klineRow(0, hourMs)})
	}))
	defer server.Close()

	client := NewBinanceClient(server.URL, zap.NewNop())

	candles, err := client.FetchRangeChunked(context.Background(), "BTCUSDT", "1h", 0, hourMs-1)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBinanceClient_RejectsMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{
			{int64(0), "not-a-number", "1", "1", "1", "1", int64(1), "1", 1, "1", "1", "0"},
		})
	}))
	defer server.Close()

	client := NewBinanceClient(server.URL, zap.NewNop())

	_, err := client.FetchRangeChunked(context.Background(), "BTCUSDT", "1h", 0, hourMs-1)
	assert.Error(t, err)
}

func TestBinanceClient_ContextCancel(t *testing.T) {
	server := klineServer(1000, new(int32))
	defer server.Close()

	client := NewBinanceClient(server.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := client.FetchRangeChunked(ctx, "BTCUSDT", "1h", 0, 100*hourMs)
	assert.Error(t, err)
}

func TestParseKline_RejectsShortRow(t *testing.T) {
	raw := make([]json.RawMessage, 3)
	for i := range raw {
		raw[i] = json.RawMessage("0")
	}
	_, err := parseKline(raw)
	assert.Error(t, err)
}
