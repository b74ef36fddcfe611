package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
	"github.com/ShodmonX/trading-signals-bot/internal/processor"
	"github.com/ShodmonX/trading-signals-bot/internal/strategy"
)

// ProgressFunc reports backtest milestones. Best-effort: callbacks may be nil,
// may block briefly, and must never break the pipeline.
type ProgressFunc func(current, total int, message string)

// CandleSource supplies ordered candles for a symbol/interval range. The
// production implementation is the month-cached Binance fetcher.
type CandleSource interface {
	FetchRange(ctx context.Context, symbol, interval string, startMs, endMs int64, progress func(current, total int, message string)) ([]model.Candle, error)
}

// Execution always happens on the finest available granularity.
const executionTimeframe = "1m"

// Warm-up candles required before the first signal is generated.
const warmupCandles = 100

const ensembleStream = "ensemble"

// Backtester replays a date range: it regenerates the ensemble signal and each
// strategy's standalone signal candle by candle and simulates every resulting
// trade. One Backtester serves exactly one run and is not safe for reuse.
type Backtester struct {
	params    model.BacktestParams
	sessionID string

	source     CandleSource
	strategies []strategy.Strategy
	perfWeight map[string]float64
	aggCfg     strategy.AggregatorConfig
	logger     *zap.Logger

	executionCandles []model.Candle
	signalCandles    []model.Candle
}

func NewBacktester(
	params model.BacktestParams,
	source CandleSource,
	strategies []strategy.Strategy,
	perfWeights map[string]float64,
	aggCfg strategy.AggregatorConfig,
	logger *zap.Logger,
) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Threshold > 0 {
		aggCfg.Threshold = params.Threshold
	}
	return &Backtester{
		params:     params,
		sessionID:  uuid.NewString()[:8],
		source:     source,
		strategies: strategies,
		perfWeight: perfWeights,
		aggCfg:     aggCfg,
		logger:     logger,
	}
}

func (b *Backtester) SessionID() string { return b.sessionID }

// Run executes the full pipeline. It never returns an error: data problems
// shrink the run (down to an empty summary) instead of failing it.
func (b *Backtester) Run(ctx context.Context, progress ProgressFunc) model.BacktestSummary {
	started := time.Now()
	report := safeProgress(progress, b.logger)

	summary := model.BacktestSummary{
		SessionID:           b.sessionID,
		Symbol:              b.params.Symbol,
		SignalTimeframe:     b.params.Timeframe,
		ExecutionTimeframe:  executionTimeframe,
		PeriodStart:         b.params.StartDate,
		PeriodEnd:           b.params.EndDate,
		Trades:              []model.TradeResult{},
		StrategyPerformance: []model.StrategyPerformance{},
		CreatedAt:           time.Now(),
	}

	startMs := b.params.StartDate.UnixMilli()
	endMs := b.params.EndDate.UnixMilli()

	report(0, 100, "loading execution candles")

	candles, err := b.source.FetchRange(ctx, b.params.Symbol, executionTimeframe, startMs, endMs, report)
	if err != nil {
		b.logger.Error("failed to fetch execution candles",
			zap.String("symbol", b.params.Symbol), zap.Error(err))
		return summary
	}
	b.executionCandles = candles
	if len(b.executionCandles) == 0 {
		b.logger.Error("no execution candles fetched", zap.String("symbol", b.params.Symbol))
		return summary
	}

	report(20, 100, "execution candles loaded")

	report(22, 100, "resampling to signal timeframe")
	b.signalCandles, err = processor.Resample(b.executionCandles, executionTimeframe, b.params.Timeframe)
	if err != nil {
		b.logger.Error("resample failed", zap.Error(err))
		return summary
	}

	if len(b.signalCandles) < warmupCandles {
		b.logger.Warn("not enough signal candles for a walk",
			zap.Int("candles", len(b.signalCandles)),
			zap.String("timeframe", b.params.Timeframe))
		return summary
	}

	report(25, 100, "scanning for signals")

	tradesByCode := make(map[string][]model.TradeResult, len(b.strategies))
	finalADX := b.walk(ctx, &summary, tradesByCode, report)

	report(95, 100, "computing statistics")

	calculateStatistics(&summary)
	summary.StrategyPerformance = buildStrategyPerformance(b.strategies, b.perfWeight, tradesByCode, finalADX)

	infrastructure.BacktestDuration.Observe(time.Since(started).Seconds())
	report(100, 100, "backtest finished")

	return summary
}

// walk moves forward over the signal candles, keeping at most one open
// position per stream (the ensemble plus one stream per strategy). It returns
// the last shared ADX measurement for the post-run regime factor.
func (b *Backtester) walk(
	ctx context.Context,
	summary *model.BacktestSummary,
	tradesByCode map[string][]model.TradeResult,
	report ProgressFunc,
) float64 {
	total := len(b.signalCandles)
	signalMinutes := model.TimeframeMinutes[b.params.Timeframe]
	execMinutes := model.TimeframeMinutes[executionTimeframe]
	maxExecCandles := 24 * (signalMinutes / execMinutes)

	byCode := make(map[string]strategy.Strategy, len(b.strategies))
	for _, s := range b.strategies {
		byCode[s.Code()] = s
	}

	// Index of the first candle on which a stream may signal again.
	freeAt := make(map[string]int, len(b.strategies)+1)

	var finalADX float64

	for i := warmupCandles; i < total; i++ {
		if ctx.Err() != nil {
			b.logger.Warn("backtest interrupted", zap.Error(ctx.Err()))
			break
		}

		if i%20 == 0 {
			percent := 25 + (i-warmupCandles)*70/(total-warmupCandles)
			report(percent, 100, "scanning for signals")
		}

		window := b.signalCandles[:i+1]
		agg := strategy.NewSignalAggregator(window, b.params.Symbol, b.strategies, b.aggCfg, b.logger)
		agg.SetPerformanceWeights(b.perfWeight)

		// One ATR/ADX measurement per step, shared by the ensemble and
		// every standalone projection.
		atr := agg.ATR()
		finalADX = agg.ADX()

		results := agg.RunAll()
		signalTime := b.signalCandles[i].CloseTime

		ensemble := agg.Aggregate(results)
		infrastructure.SignalsGenerated.WithLabelValues(string(ensemble.Direction)).Inc()
		if ensemble.Direction != model.DirectionNeutral && i >= freeAt[ensembleStream] {
			trade := SimulateTrade(SetupFromSignal(ensemble), signalTime, b.executionCandles, maxExecCandles)
			infrastructure.TradesSimulated.WithLabelValues(string(trade.Result)).Inc()
			summary.Trades = append(summary.Trades, trade)
			freeAt[ensembleStream] = b.nextFreeIndex(i, trade.ExitTime)
		}

		for _, result := range results {
			s, ok := byCode[result.Code]
			if !ok || result.Direction == model.DirectionNeutral {
				continue
			}
			if i < freeAt[result.Code] {
				continue
			}
			setup := SetupFromLevels(result, ensemble.EntryPrice, atr, s.StopMultiplier(), s.ProfitMultipliers())
			trade := SimulateTrade(setup, signalTime, b.executionCandles, maxExecCandles)
			tradesByCode[result.Code] = append(tradesByCode[result.Code], trade)
			freeAt[result.Code] = b.nextFreeIndex(i, trade.ExitTime)
		}
	}

	return finalADX
}

// nextFreeIndex finds the first signal candle at or after the simulated exit
// time; a trade with no exit blocks the stream for 25 candles.
func (b *Backtester) nextFreeIndex(i int, exitTime *time.Time) int {
	total := len(b.signalCandles)
	if exitTime == nil {
		return min(i+25, total)
	}
	exitMs := exitTime.UnixMilli()
	for j := i + 1; j < min(i+30, total); j++ {
		if b.signalCandles[j].OpenTime >= exitMs {
			return j
		}
	}
	return min(i+25, total)
}

// safeProgress wraps a caller-supplied callback so that a nil callback or a
// panicking one never affects the run.
func safeProgress(progress ProgressFunc, logger *zap.Logger) ProgressFunc {
	return func(current, total int, message string) {
		if progress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("progress callback panicked", zap.Any("panic", r))
			}
		}()
		progress(current, total, message)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
