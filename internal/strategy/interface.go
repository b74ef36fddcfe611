package strategy

import (
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Kind tags a strategy for the regime filter: trend strategies get boosted in
// trending markets and dampened in ranging ones, range strategies the inverse.
type Kind string

const (
	KindTrend Kind = "trend"
	KindRange Kind = "range"
	KindNone  Kind = ""
)

// Strategy produces exactly one StrategyResult from a candle window.
type Strategy interface {
	Name() string
	Code() string
	Kind() Kind
	BaseWeight() float64
	// StopMultiplier and ProfitMultipliers size the ATR-based levels for
	// this strategy's standalone signals.
	StopMultiplier() float64
	ProfitMultipliers() [3]float64
	// MinCandles is the method-specific minimum window length.
	MinCandles() int
	Evaluate(candles []model.Candle) (model.StrategyResult, error)
}

const (
	minConfidence = 5.0
	maxConfidence = 95.0

	// Confidence reported on windows where no directional setup fired.
	neutralConfidence = 20.0
)

func clampConfidence(v float64) float64 {
	if v < minConfidence {
		return minConfidence
	}
	if v > maxConfidence {
		return maxConfidence
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
