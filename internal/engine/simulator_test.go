package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

const execMinuteMs = int64(60_000)

// execCandle builds one execution candle starting at minute m past time 0.
func execCandle(m int, open, high, low, close float64) model.Candle {
	start := int64(m) * execMinuteMs
	return model.Candle{
		OpenTime:  start,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		CloseTime: start + execMinuteMs - 1,
	}
}

func longSetup() TradeSetup {
	return TradeSetup{
		Direction:   model.DirectionLong,
		Confidence:  70,
		EntryPrice:  100,
		StopLoss:    95,
		TakeProfit1: 103,
		TakeProfit2: 106,
		TakeProfit3: 109,
	}
}

func TestSimulateTrade_StopLoss(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 101, 99, 100),
		execCandle(2, 100, 100, 94, 95), // breaches 95
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomeSL, trade.Result)
	assert.True(t, trade.SLHit)
	assert.Equal(t, model.StopOriginal, trade.SLHitAt)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 95.0, *trade.ExitPrice)
	// Whole position out at the stop: (95-100)/100 = -5%.
	assert.InDelta(t, -5.0, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_StopCheckedBeforeTargets(t *testing.T) {
	// One candle spans both the stop and TP1; the conservative order loses.
	candles := []model.Candle{
		execCandle(1, 100, 104, 94, 100),
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomeSL, trade.Result)
	assert.False(t, trade.TP1Hit)
}

func TestSimulateTrade_TP1ThenBreakevenStop(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 103.5, 99, 103), // touches TP1, stop moves to entry
		execCandle(2, 103, 104, 99.5, 100), // falls back through entry
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomePartial, trade.Result)
	assert.True(t, trade.TP1Hit)
	assert.True(t, trade.SLHit)
	assert.Equal(t, model.StopBreakeven, trade.SLHitAt)
	// 40% banked at TP1 (+3%), the remaining 60% closed flat at entry.
	assert.InDelta(t, 3.0*0.4, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_FullTP3(t *testing.T) {
	// A single wide candle sweeps all three targets without touching the stop.
	candles := []model.Candle{
		execCandle(1, 100, 110, 99, 109),
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomeTP3, trade.Result)
	assert.True(t, trade.TP1Hit)
	assert.True(t, trade.TP2Hit)
	assert.True(t, trade.TP3Hit)
	assert.False(t, trade.SLHit)
	// 3%*0.4 + 6%*0.3 + 9%*0.3 = 5.7%
	assert.InDelta(t, 5.7, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_TP2ThenStopAtTP1(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 106.5, 99, 106), // TP1 and TP2, stop moves to TP1
		execCandle(2, 106, 107, 102.5, 103),
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomePartial, trade.Result)
	assert.Equal(t, model.StopTP1, trade.SLHitAt)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 103.0, *trade.ExitPrice)
	// 3%*0.4 + 6%*0.3, remaining 30% out at the TP1 price (+3%).
	assert.InDelta(t, 1.2+1.8+3.0*0.3, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_Timeout(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 101, 99, 100.5),
		execCandle(2, 100.5, 102, 100, 101),
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	assert.Equal(t, model.OutcomeTimeout, trade.Result)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 101.0, *trade.ExitPrice)
	// Timeout marks the whole position at the last close.
	assert.InDelta(t, 1.0, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_TimeoutAfterTP1BanksTranche(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 103.5, 99, 103),
		execCandle(2, 103, 104, 101, 102),
	}

	trade := SimulateTrade(longSetup(), 0, candles, 10)

	// TP1 was banked and nothing else terminated the trade.
	assert.Equal(t, model.OutcomePartial, trade.Result)
	assert.False(t, trade.SLHit)
	assert.InDelta(t, 3.0*0.4, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_ShortMirror(t *testing.T) {
	setup := TradeSetup{
		Direction:   model.DirectionShort,
		EntryPrice:  100,
		StopLoss:    105,
		TakeProfit1: 97,
		TakeProfit2: 94,
		TakeProfit3: 91,
	}

	candles := []model.Candle{
		execCandle(1, 100, 106, 99, 105), // short stop is above entry
	}
	trade := SimulateTrade(setup, 0, candles, 10)
	assert.Equal(t, model.OutcomeSL, trade.Result)
	assert.InDelta(t, -5.0, trade.TotalProfitPercent, 1e-9)

	candles = []model.Candle{
		execCandle(1, 100, 101, 90, 91), // sweeps every short target
	}
	trade = SimulateTrade(setup, 0, candles, 10)
	assert.Equal(t, model.OutcomeTP3, trade.Result)
	assert.InDelta(t, 5.7, trade.TotalProfitPercent, 1e-9)
}

func TestSimulateTrade_OnlyFutureCandles(t *testing.T) {
	signalTime := int64(5) * execMinuteMs
	candles := []model.Candle{
		execCandle(3, 100, 120, 80, 100), // before the signal, must be ignored
		execCandle(6, 100, 101, 99, 100.5),
	}

	trade := SimulateTrade(longSetup(), signalTime, candles, 10)

	assert.Equal(t, model.OutcomeTimeout, trade.Result)
	assert.False(t, trade.TP1Hit)
	assert.False(t, trade.SLHit)
}

func TestSimulateTrade_MaxCandlesCap(t *testing.T) {
	candles := []model.Candle{
		execCandle(1, 100, 101, 99, 100),
		execCandle(2, 100, 101, 99, 102),
		execCandle(3, 102, 110, 99, 109), // beyond the cap, must not count
	}

	trade := SimulateTrade(longSetup(), 0, candles, 2)

	assert.Equal(t, model.OutcomeTimeout, trade.Result)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 102.0, *trade.ExitPrice)
}

func TestSimulateTrade_NoCandles(t *testing.T) {
	trade := SimulateTrade(longSetup(), 0, nil, 10)

	assert.Equal(t, model.OutcomeTimeout, trade.Result)
	assert.Nil(t, trade.ExitPrice)
	assert.Zero(t, trade.TotalProfitPercent)
}

func TestSimulateTrade_NoLevelsRidesToTimeout(t *testing.T) {
	setup := TradeSetup{Direction: model.DirectionLong, EntryPrice: 100}
	candles := []model.Candle{
		execCandle(1, 100, 150, 50, 104), // would sweep any level if one existed
	}

	trade := SimulateTrade(setup, 0, candles, 10)

	assert.Equal(t, model.OutcomeTimeout, trade.Result)
	assert.False(t, trade.TP1Hit)
	assert.InDelta(t, 4.0, trade.TotalProfitPercent, 1e-9)
}

func TestSetupFromLevels(t *testing.T) {
	result := model.StrategyResult{Direction: model.DirectionShort, Confidence: 60}

	setup := SetupFromLevels(result, 100, 2, 1.5, [3]float64{1.5, 3, 4.5})
	assert.Equal(t, 103.0, setup.StopLoss)
	assert.Equal(t, 97.0, setup.TakeProfit1)
	assert.Equal(t, 94.0, setup.TakeProfit2)
	assert.Equal(t, 91.0, setup.TakeProfit3)

	// No volatility measurement leaves the levels unset.
	setup = SetupFromLevels(result, 100, 0, 1.5, [3]float64{1.5, 3, 4.5})
	assert.Zero(t, setup.StopLoss)
	assert.Zero(t, setup.TakeProfit1)
}
