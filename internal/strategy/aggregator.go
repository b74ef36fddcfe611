package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/indicator"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Aggregator defaults, tuned to cut down false signals.
const (
	MinVoteConfidenceDefault = 30.0
	MinVoteRatioDefault      = 0.66
	MinAvgConfidence         = 35.0
	VoteBonus                = 5.0
	MaxConsensusConfidence   = 95.0

	// Regime filter (ADX based).
	ADXTrendThreshold = 25.0
	ADXRangeThreshold = 20.0
	TrendBoost        = 1.15
	TrendDampen       = 0.6
	RangeBoost        = 1.1
	RangeDampen       = 0.5

	MinActualWeight = 0.1
	MaxActualWeight = 3.0

	volatilityLookback = 14
)

// RegimeMultiplier adjusts a strategy's influence for the detected market
// regime: trend strategies are boosted above the trend threshold and dampened
// below the ranging threshold, range strategies the inverse.
func RegimeMultiplier(kind Kind, adx float64) float64 {
	switch {
	case adx >= ADXTrendThreshold:
		if kind == KindTrend {
			return TrendBoost
		}
		if kind == KindRange {
			return TrendDampen
		}
	case adx <= ADXRangeThreshold:
		if kind == KindRange {
			return RangeBoost
		}
		if kind == KindTrend {
			return RangeDampen
		}
	}
	return 1.0
}

// ClampActualWeight bounds the final per-strategy multiplier.
func ClampActualWeight(w float64) float64 {
	return clamp(w, MinActualWeight, MaxActualWeight)
}

// AggregatorConfig tunes the consensus rules and the SL/TP projection.
type AggregatorConfig struct {
	Threshold         float64
	StopMultiplier    float64
	TPMultipliers     [3]float64
	MinVoteConfidence float64
	MinVoteRatio      float64
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Threshold:         60,
		StopMultiplier:    1.5,
		TPMultipliers:     [3]float64{1.5, 3, 4.5},
		MinVoteConfidence: MinVoteConfidenceDefault,
		MinVoteRatio:      MinVoteRatioDefault,
	}
}

// SignalAggregator merges the votes of all active strategies over one candle
// window into a single consensus signal with projected levels.
type SignalAggregator struct {
	candles    []model.Candle
	symbol     string
	strategies []Strategy
	cfg        AggregatorConfig
	logger     *zap.Logger

	perfWeights          map[string]float64
	stabilityWeights     map[string]float64
	correlationPenalties map[string]float64

	kinds map[string]Kind

	atr, adx       float64
	atrSet, adxSet bool
}

func NewSignalAggregator(candles []model.Candle, symbol string, strategies []Strategy, cfg AggregatorConfig, logger *zap.Logger) *SignalAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.MinVoteConfidence = clamp(cfg.MinVoteConfidence, 0, 100)
	cfg.MinVoteRatio = clamp(cfg.MinVoteRatio, 0, 1)

	kinds := make(map[string]Kind, len(strategies))
	for _, s := range strategies {
		kinds[s.Name()] = s.Kind()
	}

	return &SignalAggregator{
		candles:    candles,
		symbol:     symbol,
		strategies: strategies,
		cfg:        cfg,
		logger:     logger,
		kinds:      kinds,
	}
}

// SetPerformanceWeights installs the per-strategy runtime multipliers loaded
// from persistence, keyed by strategy name. Missing entries default to 1.0.
func (a *SignalAggregator) SetPerformanceWeights(w map[string]float64) { a.perfWeights = w }

func (a *SignalAggregator) SetStabilityWeights(w map[string]float64) { a.stabilityWeights = w }

func (a *SignalAggregator) SetCorrelationPenalties(w map[string]float64) { a.correlationPenalties = w }

// SetMeasures injects pre-computed volatility (ATR) and trend strength (ADX)
// so a backtest step can share one computation between the ensemble and the
// per-strategy level projection.
func (a *SignalAggregator) SetMeasures(atr, adx float64) {
	a.atr, a.atrSet = atr, true
	a.adx, a.adxSet = adx, true
}

// ATR returns the 14-period average true range of the window, 0 when the
// window is too short.
func (a *SignalAggregator) ATR() float64 {
	if !a.atrSet {
		a.atr = indicator.ATR(model.Highs(a.candles), model.Lows(a.candles), model.Closes(a.candles), volatilityLookback)
		a.atrSet = true
	}
	return a.atr
}

// ADX returns the 14-period trend strength of the window, 0 when the window
// is too short.
func (a *SignalAggregator) ADX() float64 {
	if !a.adxSet {
		a.adx = indicator.ADX(model.Highs(a.candles), model.Lows(a.candles), model.Closes(a.candles), volatilityLookback)
		a.adxSet = true
	}
	return a.adx
}

// RunAll evaluates every strategy. A failing strategy never aborts the batch:
// its error becomes a NEUTRAL, zero-confidence, zero-weight vote.
func (a *SignalAggregator) RunAll() []model.StrategyResult {
	results := make([]model.StrategyResult, 0, len(a.strategies))
	for _, s := range a.strategies {
		result, err := a.evaluate(s)
		if err != nil {
			a.logger.Debug("strategy evaluation failed",
				zap.String("strategy", s.Name()),
				zap.String("symbol", a.symbol),
				zap.Error(err),
			)
			result = model.StrategyResult{
				Direction: model.DirectionNeutral,
				Name:      s.Name(),
				Code:      s.Code(),
				Error:     err.Error(),
			}
		}
		results = append(results, result)
	}
	return results
}

func (a *SignalAggregator) evaluate(s Strategy) (result model.StrategyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Evaluate(a.candles)
}

func (a *SignalAggregator) actualWeight(result model.StrategyResult) float64 {
	perf := 1.0
	if w, ok := a.perfWeights[result.Name]; ok {
		perf = w
	}
	stability := 1.0
	if w, ok := a.stabilityWeights[result.Name]; ok {
		stability = w
	}
	corr := 1.0
	if w, ok := a.correlationPenalties[result.Name]; ok {
		corr = w
	}
	regime := RegimeMultiplier(a.kinds[result.Name], a.ADX())
	return ClampActualWeight(result.Weight * perf * regime * stability * corr)
}

// Aggregate merges strategy votes into the final signal.
//
// A vote counts only when its confidence reaches the vote floor; a direction
// becomes eligible when it collects ceil(n×ratio) votes with a weighted
// average confidence above the floor, and earns +5 points per extra vote
// (capped at 95). The winner needs strictly more votes AND a strictly higher
// consensus score than the other side, otherwise the result is NEUTRAL.
func (a *SignalAggregator) Aggregate(results []model.StrategyResult) model.AggregatedSignal {
	var (
		longVotes, shortVotes, neutralVotes, filteredVotes int
		longConfidenceSum, shortConfidenceSum              float64
		longWeightSum, shortWeightSum                      float64
	)

	for _, result := range results {
		weight := a.actualWeight(result)
		switch result.Direction {
		case model.DirectionLong:
			if result.Confidence >= a.cfg.MinVoteConfidence {
				longVotes++
				longConfidenceSum += result.Confidence * weight
				longWeightSum += weight
			} else {
				filteredVotes++
			}
		case model.DirectionShort:
			if result.Confidence >= a.cfg.MinVoteConfidence {
				shortVotes++
				shortConfidenceSum += result.Confidence * weight
				shortWeightSum += weight
			} else {
				filteredVotes++
			}
		default:
			neutralVotes++
		}
	}

	avgLong := 0.0
	if longWeightSum > 0 {
		avgLong = longConfidenceSum / longWeightSum
	}
	avgShort := 0.0
	if shortWeightSum > 0 {
		avgShort = shortConfidenceSum / shortWeightSum
	}

	entryPrice := 0.0
	if len(a.candles) > 0 {
		entryPrice = a.candles[len(a.candles)-1].Close
	}

	minVotes := int(math.Ceil(float64(len(results)) * a.cfg.MinVoteRatio))
	if minVotes < 1 {
		minVotes = 1
	}

	consensusLong := avgLong
	if longVotes >= minVotes && avgLong >= MinAvgConfidence {
		bonus := float64(longVotes-minVotes) * VoteBonus
		consensusLong = math.Min(MaxConsensusConfidence, avgLong+bonus)
	}
	consensusShort := avgShort
	if shortVotes >= minVotes && avgShort >= MinAvgConfidence {
		bonus := float64(shortVotes-minVotes) * VoteBonus
		consensusShort = math.Min(MaxConsensusConfidence, avgShort+bonus)
	}

	direction := model.DirectionNeutral
	confidence := math.Max(consensusLong, consensusShort)

	longEligible := longVotes >= minVotes && avgLong >= MinAvgConfidence && consensusLong >= a.cfg.Threshold
	shortEligible := shortVotes >= minVotes && avgShort >= MinAvgConfidence && consensusShort >= a.cfg.Threshold

	// A tie on either votes or consensus resolves to NEUTRAL.
	if longEligible && longVotes > shortVotes && consensusLong > consensusShort {
		direction = model.DirectionLong
		confidence = consensusLong
	} else if shortEligible && shortVotes > longVotes && consensusShort > consensusLong {
		direction = model.DirectionShort
		confidence = consensusShort
	}

	signal := model.AggregatedSignal{
		Direction:               direction,
		Confidence:              confidence,
		EntryPrice:              entryPrice,
		StrategyResults:         results,
		LongVotes:               longVotes,
		ShortVotes:              shortVotes,
		NeutralVotes:            neutralVotes,
		FilteredVotes:           filteredVotes,
		LongWeightSum:           longWeightSum,
		ShortWeightSum:          shortWeightSum,
		WeightedLongConfidence:  avgLong,
		WeightedShortConfidence: avgShort,
	}

	if direction != model.DirectionNeutral {
		a.projectLevels(&signal)
	}

	return signal
}

// projectLevels fills the ATR-based stop loss and take profits. With no
// volatility measurement (window shorter than the lookback) levels stay unset.
func (a *SignalAggregator) projectLevels(signal *model.AggregatedSignal) {
	atr := a.ATR()
	if atr <= 0 {
		return
	}

	side := 1.0
	if signal.Direction == model.DirectionShort {
		side = -1.0
	}

	sl := signal.EntryPrice - side*a.cfg.StopMultiplier*atr
	signal.StopLoss = &sl

	tps := make([]float64, 3)
	for i, mul := range a.cfg.TPMultipliers {
		tps[i] = signal.EntryPrice + side*mul*atr
	}
	signal.TakeProfit1 = &tps[0]
	signal.TakeProfit2 = &tps[1]
	signal.TakeProfit3 = &tps[2]
}

// Run executes every strategy and aggregates the votes. It never fails: with
// zero strategies or a degenerate window it returns a NEUTRAL signal.
func (a *SignalAggregator) Run() model.AggregatedSignal {
	return a.Aggregate(a.RunAll())
}
