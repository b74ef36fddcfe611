package strategy

import (
	"fmt"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// BollingerBreakout fires when the close crosses the upper band: a fresh
// break above is a long, falling back under it is a short.
type BollingerBreakout struct{}

func NewBollingerBreakout() BollingerBreakout { return BollingerBreakout{} }

func (BollingerBreakout) Name() string                  { return "BollingerBandSqueezeStrategy" }
func (BollingerBreakout) Code() string                  { return "bollingerbandsqueezestrategy" }
func (BollingerBreakout) Kind() Kind                    { return KindRange }
func (BollingerBreakout) BaseWeight() float64           { return 1.0 }
func (BollingerBreakout) StopMultiplier() float64       { return 2 }
func (BollingerBreakout) ProfitMultipliers() [3]float64 { return [3]float64{2, 3, 4.5} }
func (BollingerBreakout) MinCandles() int               { return 100 }

func (s BollingerBreakout) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	upper, _, lower := indicator.BollingerBands(closes, 20, 2, 2)

	close := indicator.Last(closes)
	up := indicator.Last(upper)
	prevUp := indicator.Prev(upper)
	lo := indicator.Last(lower)

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"bollinger_upper": up,
			"bollinger_lower": lo,
			"close":           close,
		},
	}

	width := up - lo
	if width <= 0 {
		return result, nil
	}

	switch {
	case up < close && prevUp >= close:
		// Penetration depth relative to band width scores the breakout.
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + clamp((close-up)/width*100, 0, 30))
	case up > close && prevUp <= close:
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + clamp((up-close)/width*100, 0, 30))
	}

	return result, nil
}
