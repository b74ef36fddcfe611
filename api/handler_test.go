package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

func newBacktestRouter(start StartBacktest) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, start, zap.NewNop())
	r := gin.New()
	r.POST("/api/v1/backtest", h.RunBacktest)
	return r
}

func postBacktest(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRunBacktest_Accepted(t *testing.T) {
	var got model.BacktestParams
	r := newBacktestRouter(func(params model.BacktestParams) (string, bool) {
		got = params
		return "abcd1234", true
	})

	w := postBacktest(r, `{
		"symbol": "btc-usdt",
		"timeframe": "15m",
		"threshold": 65,
		"start_date": "2024-01-01T00:00:00Z",
		"end_date": "2024-02-01T00:00:00Z"
	}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "abcd1234")
	assert.Contains(t, w.Body.String(), "backtest.progress.abcd1234")

	// Symbol arrives normalized.
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, "15m", got.Timeframe)
	assert.Equal(t, 65.0, got.Threshold)
}

func TestRunBacktest_Validation(t *testing.T) {
	r := newBacktestRouter(func(model.BacktestParams) (string, bool) {
		t.Fatal("must not enqueue an invalid request")
		return "", false
	})

	cases := map[string]string{
		"missing symbol":    `{"timeframe":"1h","start_date":"2024-01-01T00:00:00Z","end_date":"2024-02-01T00:00:00Z"}`,
		"bad timeframe":     `{"symbol":"BTCUSDT","timeframe":"2m","start_date":"2024-01-01T00:00:00Z","end_date":"2024-02-01T00:00:00Z"}`,
		"inverted range":    `{"symbol":"BTCUSDT","timeframe":"1h","start_date":"2024-02-01T00:00:00Z","end_date":"2024-01-01T00:00:00Z"}`,
		"silly threshold":   `{"symbol":"BTCUSDT","timeframe":"1h","threshold":150,"start_date":"2024-01-01T00:00:00Z","end_date":"2024-02-01T00:00:00Z"}`,
		"not even json":     `{`,
	}

	for name, body := range cases {
		w := postBacktest(r, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestRunBacktest_QueueFull(t *testing.T) {
	r := newBacktestRouter(func(model.BacktestParams) (string, bool) {
		return "", false
	})

	w := postBacktest(r, `{
		"symbol": "BTCUSDT",
		"timeframe": "1h",
		"start_date": "2024-01-01T00:00:00Z",
		"end_date": "2024-02-01T00:00:00Z"
	}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
