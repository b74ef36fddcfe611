package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

const (
	klinesPath     = "/api/v3/klines"
	chunkLimit     = 1000
	maxRetries     = 5
	baseBackoff    = 2 * time.Second
	maxBackoff     = 60 * time.Second
	minJitterMs    = 100
	jitterSpreadMs = 400
)

var (
	errRateLimited = errors.New("binance: rate limited")
	// errBadPayload marks responses that will not get better on retry.
	errBadPayload = errors.New("binance: malformed payload")
)

// BinanceClient pulls historical klines over the public REST API. It pages
// backwards by endTime in chunks of 1000, which is the exchange maximum.
type BinanceClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewBinanceClient(baseURL string, logger *zap.Logger) *BinanceClient {
	return &BinanceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// FetchRangeChunked loads candles with OpenTime inside [startMs, endMs],
// oldest first. Individual chunks that keep failing after retries abort the
// whole request; the caller decides whether the surrounding range is usable.
func (c *BinanceClient) FetchRangeChunked(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]model.Candle, error) {
	var out []model.Candle
	end := endMs

	for end >= startMs {
		if err := sleepJitter(ctx); err != nil {
			return nil, err
		}

		chunk, err := c.fetchChunk(ctx, symbol, interval, end)
		if err != nil {
			infrastructure.FetchErrors.WithLabelValues(symbol).Inc()
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		infrastructure.CandlesFetched.WithLabelValues(symbol, interval).Add(float64(len(chunk)))

		// Chunks arrive oldest-first; keep only what falls inside the range.
		kept := 0
		for _, candle := range chunk {
			if candle.OpenTime >= startMs && candle.OpenTime <= endMs {
				out = append(out, candle)
				kept++
			}
		}
		c.logger.Debug("fetched kline chunk",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int("received", len(chunk)),
			zap.Int("kept", kept))

		oldest := chunk[0].OpenTime
		if oldest <= startMs {
			break
		}
		end = oldest - 1
	}

	sortCandles(out)
	return out, nil
}

// fetchChunk performs one klines request with bounded retries. A 429 answer
// honours Retry-After when present, otherwise the exponential schedule applies.
func (c *BinanceClient) fetchChunk(ctx context.Context, symbol, interval string, endTime int64) ([]model.Candle, error) {
	backoff := baseBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		candles, retryAfter, err := c.doRequest(ctx, symbol, interval, endTime)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, errBadPayload) {
			return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
		}

		wait := backoff
		if errors.Is(err, errRateLimited) && retryAfter > 0 {
			// The exchange told us exactly how long to stay away.
			wait = retryAfter
		} else {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		c.logger.Warn("kline request failed",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		if attempt < maxRetries-1 {
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, lastErr)
}

func (c *BinanceClient) doRequest(ctx context.Context, symbol, interval string, endTime int64) ([]model.Candle, time.Duration, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(chunkLimit))
	q.Set("endTime", strconv.FormatInt(endTime, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, retryAfter, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("%w: decode: %v", errBadPayload, err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKline(row)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		candles = append(candles, candle)
	}
	return candles, 0, nil
}

// parseKline converts one raw kline array. Prices and volumes come back as
// strings and go through decimal so mangled payloads fail loudly instead of
// silently producing zeros.
func parseKline(row []json.RawMessage) (model.Candle, error) {
	var candle model.Candle
	if len(row) < 11 {
		return candle, fmt.Errorf("kline row has %d fields", len(row))
	}

	if err := json.Unmarshal(row[0], &candle.OpenTime); err != nil {
		return candle, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &candle.CloseTime); err != nil {
		return candle, fmt.Errorf("close time: %w", err)
	}
	if err := json.Unmarshal(row[8], &candle.TradeCount); err != nil {
		return candle, fmt.Errorf("trade count: %w", err)
	}

	fields := []struct {
		idx  int
		dest *float64
	}{
		{1, &candle.Open},
		{2, &candle.High},
		{3, &candle.Low},
		{4, &candle.Close},
		{5, &candle.Volume},
		{7, &candle.QuoteVolume},
		{9, &candle.TakerBuyBase},
		{10, &candle.TakerBuyQuote},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(row[f.idx], &s); err != nil {
			return candle, fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return candle, fmt.Errorf("kline field %d %q: %w", f.idx, s, err)
		}
		*f.dest = d.InexactFloat64()
	}
	return candle, nil
}

func sortCandles(candles []model.Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime < candles[j].OpenTime
	})
}

// sleepJitter spaces requests 100-500ms apart so sustained backfills stay
// under the exchange request-weight limits.
func sleepJitter(ctx context.Context) error {
	d := time.Duration(minJitterMs+rand.Intn(jitterSpreadMs)) * time.Millisecond
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
