package engine

import (
	"time"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Partial close allocation across the three profit targets.
const (
	tp1Tranche = 0.40
	tp2Tranche = 0.30
	tp3Tranche = 0.30
)

// TradeSetup is the entry plan handed to the simulator: direction, entry and
// the projected levels. Built either from an ensemble signal or from a single
// strategy's standalone vote.
type TradeSetup struct {
	Direction   model.Direction
	Confidence  float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	TakeProfit3 float64
}

// SetupFromSignal flattens an aggregated signal into a TradeSetup.
func SetupFromSignal(signal model.AggregatedSignal) TradeSetup {
	setup := TradeSetup{
		Direction:  signal.Direction,
		Confidence: signal.Confidence,
		EntryPrice: signal.EntryPrice,
	}
	if signal.StopLoss != nil {
		setup.StopLoss = *signal.StopLoss
	}
	if signal.TakeProfit1 != nil {
		setup.TakeProfit1 = *signal.TakeProfit1
	}
	if signal.TakeProfit2 != nil {
		setup.TakeProfit2 = *signal.TakeProfit2
	}
	if signal.TakeProfit3 != nil {
		setup.TakeProfit3 = *signal.TakeProfit3
	}
	return setup
}

// SetupFromLevels builds a strategy's standalone entry plan from its own
// direction/confidence and the shared volatility measure. With no volatility
// measurement the levels stay zero and the stop can never be breached below
// entry, which matches an unset projection.
func SetupFromLevels(result model.StrategyResult, entryPrice, atr, stopMul float64, tpMuls [3]float64) TradeSetup {
	setup := TradeSetup{
		Direction:  result.Direction,
		Confidence: result.Confidence,
		EntryPrice: entryPrice,
	}
	if atr <= 0 {
		return setup
	}
	side := 1.0
	if result.Direction == model.DirectionShort {
		side = -1.0
	}
	setup.StopLoss = entryPrice - side*stopMul*atr
	setup.TakeProfit1 = entryPrice + side*tpMuls[0]*atr
	setup.TakeProfit2 = entryPrice + side*tpMuls[1]*atr
	setup.TakeProfit3 = entryPrice + side*tpMuls[2]*atr
	return setup
}

// SimulateTrade walks a position through the execution candles that follow
// the signal until a terminal state.
//
// Per candle, the stop is checked first (a candle can touch both the stop and
// a target; the conservative order loses the tie), then TP1→TP2→TP3 in
// sequence. TP1 relocates the stop to breakeven, TP2 to the TP1 price. A stop
// breach closes the remainder at the current stop: PARTIAL when TP1 already
// banked a tranche, SL otherwise. TP3 closes the position in full. Exhausting
// the candles yields PARTIAL at the last close when TP1 was hit, else TIMEOUT
// with the profit taken directly from the last close.
func SimulateTrade(setup TradeSetup, signalTime int64, executionCandles []model.Candle, maxCandles int) model.TradeResult {
	trade := model.TradeResult{
		SignalTime:  time.UnixMilli(signalTime),
		Direction:   setup.Direction,
		Confidence:  setup.Confidence,
		EntryPrice:  setup.EntryPrice,
		StopLoss:    setup.StopLoss,
		TakeProfit1: setup.TakeProfit1,
		TakeProfit2: setup.TakeProfit2,
		TakeProfit3: setup.TakeProfit3,
		Result:      model.OutcomeTimeout,
	}

	future := make([]model.Candle, 0, maxCandles)
	for _, c := range executionCandles {
		if c.OpenTime > signalTime {
			future = append(future, c)
			if len(future) == maxCandles {
				break
			}
		}
	}
	if len(future) == 0 {
		return trade
	}

	long := setup.Direction == model.DirectionLong
	currentSL := trade.StopLoss
	currentTier := model.StopOriginal

	// A setup without projected levels (no volatility measurement) cannot
	// touch anything; it rides straight to the timeout exit.
	hasLevels := setup.StopLoss != 0 || setup.TakeProfit1 != 0

	for _, candle := range future {
		if !hasLevels {
			break
		}
		closeTime := time.UnixMilli(candle.CloseTime)

		stopBreached := candle.Low <= currentSL
		tpTouched := func(level float64) bool { return candle.High >= level }
		if !long {
			stopBreached = candle.High >= currentSL
			tpTouched = func(level float64) bool { return candle.Low <= level }
		}

		if stopBreached {
			trade.SLHit = true
			trade.SLHitAt = currentTier
			trade.ExitTime = &closeTime
			exit := currentSL
			trade.ExitPrice = &exit
			if trade.TP1Hit {
				trade.Result = model.OutcomePartial
			} else {
				trade.Result = model.OutcomeSL
			}
			break
		}

		if !trade.TP1Hit && tpTouched(trade.TakeProfit1) {
			trade.TP1Hit = true
			currentSL = trade.EntryPrice
			currentTier = model.StopBreakeven
		}
		if trade.TP1Hit && !trade.TP2Hit && tpTouched(trade.TakeProfit2) {
			trade.TP2Hit = true
			currentSL = trade.TakeProfit1
			currentTier = model.StopTP1
		}
		if trade.TP2Hit && !trade.TP3Hit && tpTouched(trade.TakeProfit3) {
			trade.TP3Hit = true
			trade.ExitTime = &closeTime
			exit := trade.TakeProfit3
			trade.ExitPrice = &exit
			trade.Result = model.OutcomeTP3
			break
		}
	}

	if trade.Result == model.OutcomeTimeout {
		last := future[len(future)-1]
		closeTime := time.UnixMilli(last.CloseTime)
		lastClose := last.Close

		if trade.TP1Hit {
			// Targets were reached but the position never closed; the
			// remainder is marked out at the final close.
			trade.Result = model.OutcomePartial
			trade.ExitTime = &closeTime
			trade.ExitPrice = &lastClose
		} else {
			trade.ExitTime = &closeTime
			trade.ExitPrice = &lastClose
			// TIMEOUT bypasses the tiered formula: the whole position is
			// assumed closed at the last observed price.
			if long {
				trade.TotalProfitPercent = (lastClose - trade.EntryPrice) / trade.EntryPrice * 100
			} else {
				trade.TotalProfitPercent = (trade.EntryPrice - lastClose) / trade.EntryPrice * 100
			}
			return trade
		}
	}

	calculateProfit(&trade)
	return trade
}

// calculateProfit sums the tranche profits of a terminal trade. Every tranche
// is priced against the entry, never a prior exit; a breakeven-tier stop
// contributes exactly 0 for the remainder.
func calculateProfit(trade *model.TradeResult) {
	side := 1.0
	if trade.Direction == model.DirectionShort {
		side = -1.0
	}

	move := func(level float64) float64 {
		return side * (level - trade.EntryPrice) / trade.EntryPrice * 100
	}

	profit := 0.0
	if trade.TP1Hit {
		profit += move(trade.TakeProfit1) * tp1Tranche
	}
	if trade.TP2Hit {
		profit += move(trade.TakeProfit2) * tp2Tranche
	}
	if trade.TP3Hit {
		profit += move(trade.TakeProfit3) * tp3Tranche
	}

	if trade.SLHit {
		remaining := 1.0
		if trade.TP1Hit {
			remaining -= tp1Tranche
		}
		if trade.TP2Hit {
			remaining -= tp2Tranche
		}
		if trade.TP3Hit {
			remaining -= tp3Tranche
		}
		if remaining > 0 {
			switch trade.SLHitAt {
			case model.StopOriginal:
				profit += move(trade.StopLoss) * remaining
			case model.StopBreakeven:
				// Closed at entry: exactly zero.
			case model.StopTP1:
				profit += move(trade.TakeProfit1) * remaining
			}
		}
	}

	trade.TotalProfitPercent = profit
}
