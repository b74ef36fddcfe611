package strategy

import (
	"fmt"
	"math"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// TrendFollow trades pullbacks and fresh EMA21/EMA100 crossovers in the
// direction of the prevailing trend, filtered by ADX strength and RSI zone.
type TrendFollow struct{}

func NewTrendFollow() TrendFollow { return TrendFollow{} }

func (TrendFollow) Name() string                   { return "TrendFollowStrategy" }
func (TrendFollow) Code() string                   { return "trendfollowstrategy" }
func (TrendFollow) Kind() Kind                     { return KindTrend }
func (TrendFollow) BaseWeight() float64            { return 1.2 }
func (TrendFollow) StopMultiplier() float64        { return 1.5 }
func (TrendFollow) ProfitMultipliers() [3]float64  { return [3]float64{1.5, 3, 4.5} }
func (TrendFollow) MinCandles() int                { return 102 }

func (s TrendFollow) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	highs := model.Highs(candles)
	lows := model.Lows(candles)

	ema21 := indicator.EMA(closes, 21)
	ema100 := indicator.EMA(closes, 100)
	rsi := indicator.Last(indicator.RSI(closes, 14))
	adx := indicator.ADX(highs, lows, closes, 14)

	close := indicator.Last(closes)
	prevClose := indicator.Prev(closes)
	e21 := indicator.Last(ema21)
	e100 := indicator.Last(ema100)

	bullishCross := indicator.CrossedAbove(ema21, ema100)
	bearishCross := indicator.CrossedBelow(ema21, ema100)
	pullback := prevClose < indicator.Prev(ema21) && close > e21
	rally := prevClose > indicator.Prev(ema21) && close < e21

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"ema21":  e21,
			"ema100": e100,
			"rsi":    rsi,
			"adx":    adx,
			"close":  close,
		},
	}

	long := e21 > e100 && close > e21 && (bullishCross || pullback) && adx > 25 && rsi >= 50 && rsi <= 70
	short := e21 < e100 && close < e21 && (bearishCross || rally) && adx > 25 && rsi >= 30 && rsi <= 50

	switch {
	case long:
		crossBonus := 5.0
		if bullishCross {
			crossBonus = 10
		}
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + math.Min(20, adx-25) + crossBonus + clamp(10-math.Abs(rsi-60)/2, 0, 10))
	case short:
		crossBonus := 5.0
		if bearishCross {
			crossBonus = 10
		}
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + math.Min(20, adx-25) + crossBonus + clamp(10-math.Abs(rsi-40)/2, 0, 10))
	}

	return result, nil
}
