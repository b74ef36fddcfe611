package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandlesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "candles_fetched_total",
		Help: "Total number of candles fetched from the exchange",
	}, []string{"symbol", "interval"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "candle_fetch_errors_total",
		Help: "Total number of failed candle fetch requests",
	}, []string{"symbol"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "candle_cache_hits_total",
		Help: "Total number of month-cache hits",
	}, []string{"symbol"})

	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_generated_total",
		Help: "Total number of aggregated signals by direction",
	}, []string{"direction"})

	TradesSimulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_simulated_total",
		Help: "Total number of simulated trades by terminal state",
	}, []string{"result"})

	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_duration_seconds",
		Help:    "Wall time of a full backtest run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})
)
