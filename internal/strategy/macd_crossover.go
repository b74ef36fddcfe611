package strategy

import (
	"fmt"
	"math"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// MACDCrossover trades MACD/signal-line crossovers that fire inside an
// established EMA20/EMA200 trend with sufficient ADX strength.
type MACDCrossover struct{}

func NewMACDCrossover() MACDCrossover { return MACDCrossover{} }

func (MACDCrossover) Name() string                  { return "MACDCrossoverStrategy" }
func (MACDCrossover) Code() string                  { return "macdcrossoverstrategy" }
func (MACDCrossover) Kind() Kind                    { return KindTrend }
func (MACDCrossover) BaseWeight() float64           { return 1.1 }
func (MACDCrossover) StopMultiplier() float64       { return 2 }
func (MACDCrossover) ProfitMultipliers() [3]float64 { return [3]float64{2, 4, 6} }
func (MACDCrossover) MinCandles() int               { return 202 }

func (s MACDCrossover) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	highs := model.Highs(candles)
	lows := model.Lows(candles)

	macd, signal, _ := indicator.MACD(closes, 12, 26, 9)
	ema20 := indicator.Last(indicator.EMA(closes, 20))
	ema200 := indicator.Last(indicator.EMA(closes, 200))
	adx := indicator.ADX(highs, lows, closes, 14)

	close := indicator.Last(closes)
	macdLast := indicator.Last(macd)
	signalLast := indicator.Last(signal)

	longTrend := close > ema20 && ema20 > ema200 && adx > 25
	shortTrend := close < ema20 && ema20 < ema200 && adx > 25

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"macd":        macdLast,
			"macd_signal": signalLast,
			"ema20":       ema20,
			"ema200":      ema200,
			"adx":         adx,
			"close":       close,
		},
	}

	// Crossover strength in basis points of price keeps the score
	// comparable across symbols of any magnitude.
	strengthBps := 0.0
	if close > 0 {
		strengthBps = math.Abs(macdLast-signalLast) / close * 10000
	}

	switch {
	case indicator.CrossedAbove(macd, signal) && longTrend:
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + math.Min(20, adx-25) + math.Min(15, strengthBps) + 10)
	case indicator.CrossedBelow(macd, signal) && shortTrend:
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + math.Min(20, adx-25) + math.Min(15, strengthBps) + 10)
	}

	return result, nil
}
