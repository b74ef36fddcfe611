package strategy

import (
	"fmt"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// SMACrossover trades the SMA50/SMA200 golden and death crosses.
type SMACrossover struct{}

func NewSMACrossover() SMACrossover { return SMACrossover{} }

func (SMACrossover) Name() string                  { return "SMACrossoverStrategy" }
func (SMACrossover) Code() string                  { return "smacrossoverstrategy" }
func (SMACrossover) Kind() Kind                    { return KindTrend }
func (SMACrossover) BaseWeight() float64           { return 1.0 }
func (SMACrossover) StopMultiplier() float64       { return 1.5 }
func (SMACrossover) ProfitMultipliers() [3]float64 { return [3]float64{1.5, 3, 4.5} }
func (SMACrossover) MinCandles() int               { return 202 }

func (s SMACrossover) Evaluate(candles []model.Candle) (model.StrategyResult, error) {
	if len(candles) < s.MinCandles() {
		return model.StrategyResult{}, fmt.Errorf("%s: need %d candles, got %d", s.Name(), s.MinCandles(), len(candles))
	}

	closes := model.Closes(candles)
	sma50 := indicator.SMA(closes, 50)
	sma200 := indicator.SMA(closes, 200)

	fast := indicator.Last(sma50)
	slow := indicator.Last(sma200)

	result := model.StrategyResult{
		Direction:  model.DirectionNeutral,
		Confidence: neutralConfidence,
		Weight:     s.BaseWeight(),
		Name:       s.Name(),
		Code:       s.Code(),
		Indicators: map[string]float64{
			"sma50":  fast,
			"sma200": slow,
		},
	}

	// The separation at the cross itself is near zero, so momentum of the
	// fast average carries most of the score.
	slopeBps := 0.0
	if prev := indicator.Prev(sma50); prev > 0 {
		slopeBps = (fast - prev) / prev * 10000
	}
	separationBps := 0.0
	if slow > 0 {
		separationBps = (fast - slow) / slow * 10000
	}

	switch {
	case indicator.CrossedAbove(sma50, sma200):
		result.Direction = model.DirectionLong
		result.Confidence = clampConfidence(50 + clamp(separationBps, 0, 15) + clamp(slopeBps*4, 0, 20))
	case indicator.CrossedBelow(sma50, sma200):
		result.Direction = model.DirectionShort
		result.Confidence = clampConfidence(50 + clamp(-separationBps, 0, 15) + clamp(-slopeBps*4, 0, 20))
	}

	return result, nil
}
