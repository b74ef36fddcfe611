package strategy

import (
	"fmt"
	"math"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Stochastic trades %K/%D crossovers inside the oversold (<20) and
// overbought (>80) zones; deeper zones score higher.
type Stochastic struct{}

func NewStochastic() Stochastic { return Stochastic{} }

func (Stochastic) Name() string                  { return "StochasticOscillatorStrategy" }
func (Stochastic) Code() string                  { return "stochasticoscillatorstrategy" }
func (Stochastic) Kind() Kind                    { return KindRange }
func (Stochastic) BaseWeight() float64           { return 0.9 }
func (Stochastic) StopMultiplier() float64       { return 1 }
func (Stochastic) ProfitMultipliers() [3]float64 { return [3]float64{1, 2, 4} }
func (Stochastic) MinCandles() int               { return 100 }

func (s Stochastic) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	highs := model.Highs(candles)
	lows := model.Lows(candles)

	kSeries, dSeries := indicator.Stochastic(highs, lows, closes, 14, 3, 3)
	k := indicator.Last(kSeries)
	d := indicator.Last(dSeries)

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"stoch_k": k,
			"stoch_d": d,
		},
	}

	switch {
	case k < 20 && indicator.CrossedAbove(kSeries, dSeries):
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + clamp((20-k)*1.5, 0, 30) + math.Min(10, (k-d)*2))
	case k > 80 && indicator.CrossedBelow(kSeries, dSeries):
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + clamp((k-80)*1.5, 0, 30) + math.Min(10, (d-k)*2))
	}

	return result, nil
}
