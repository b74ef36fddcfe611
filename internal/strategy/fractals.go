package strategy

import (
	"fmt"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// WilliamsFractals trades confirmed 2-bar fractals in the direction of a
// stacked EMA20/EMA50/EMA100 trend. A fractal needs two candles on each side,
// so the entry candle looks two bars back for the confirmation.
type WilliamsFractals struct{}

func NewWilliamsFractals() WilliamsFractals { return WilliamsFractals{} }

func (WilliamsFractals) Name() string                  { return "WilliamsFractalsStrategy" }
func (WilliamsFractals) Code() string                  { return "williamsfractalsstrategy" }
func (WilliamsFractals) Kind() Kind                    { return KindTrend }
func (WilliamsFractals) BaseWeight() float64           { return 1.1 }
func (WilliamsFractals) StopMultiplier() float64       { return 1.5 }
func (WilliamsFractals) ProfitMultipliers() [3]float64 { return [3]float64{1.5, 3, 4.5} }
func (WilliamsFractals) MinCandles() int               { return 105 }

const fractalWindow = 2

func (s WilliamsFractals) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	highs := model.Highs(candles)
	lows := model.Lows(candles)

	ema20 := indicator.Last(indicator.EMA(closes, 20))
	ema50 := indicator.Last(indicator.EMA(closes, 50))
	ema100 := indicator.Last(indicator.EMA(closes, 100))

	fractalUp := indicator.BullishFractals(lows, fractalWindow)
	fractalDown := indicator.BearishFractals(highs, fractalWindow)

	last := len(candles) - 1
	high := highs[last]
	low := lows[last]

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"ema20":  ema20,
			"ema50":  ema50,
			"ema100": ema100,
		},
	}

	spreadFastBps := 0.0
	spreadSlowBps := 0.0
	if ema50 > 0 && ema100 > 0 {
		spreadFastBps = (ema20 - ema50) / ema50 * 10000
		spreadSlowBps = (ema50 - ema100) / ema100 * 10000
	}

	long := low > ema100 && ema20 > ema50 && ema50 > ema100 && fractalUp[last-fractalWindow]
	short := high < ema100 && ema20 < ema50 && ema50 < ema100 && fractalDown[last-fractalWindow]

	switch {
	case long:
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + 10 + clamp(spreadFastBps/10, 0, 15) + clamp(spreadSlowBps/10, 0, 15))
	case short:
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + 10 + clamp(-spreadFastBps/10, 0, 15) + clamp(-spreadSlowBps/10, 0, 15))
	}

	return result, nil
}
