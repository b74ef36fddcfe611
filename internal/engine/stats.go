package engine

import (
	"math"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
	"github.com/ShodmonX/trading-signals-bot/internal/strategy"
)

// Sample size at which the performance-based weight is trusted in full.
const fullConfidenceTrades = 30

// Minimum number of time-aligned trades two strategies must share before
// their return correlation is counted.
const minOverlappingTrades = 5

// calculateStatistics fills the run-level counters of a finished walk.
func calculateStatistics(summary *model.BacktestSummary) {
	trades := summary.Trades
	if len(trades) == 0 {
		return
	}

	summary.TotalSignals = len(trades)
	var profits, losses []float64

	for _, t := range trades {
		if t.Direction == model.DirectionLong {
			summary.LongSignals++
		} else {
			summary.ShortSignals++
		}
		if t.TP1Hit {
			summary.TP1Hits++
		}
		if t.TP2Hit {
			summary.TP2Hits++
		}
		if t.TP3Hit {
			summary.TP3Hits++
		}
		switch {
		case t.TP1Hit && !t.SLHit:
			summary.Wins++
		case t.SLHit && !t.TP1Hit:
			summary.Losses++
		case t.TP1Hit && t.SLHit:
			summary.PartialWins++
		}
		if t.Result == model.OutcomeTimeout {
			summary.Timeouts++
		}

		summary.TotalProfitPercent += t.TotalProfitPercent
		if t.TotalProfitPercent > 0 {
			profits = append(profits, t.TotalProfitPercent)
		} else if t.TotalProfitPercent < 0 {
			losses = append(losses, t.TotalProfitPercent)
		}
	}

	if len(profits) > 0 {
		summary.AverageProfit = mean(profits)
		summary.MaxProfit = maxOf(profits)
	}
	if len(losses) > 0 {
		summary.AverageLoss = math.Abs(mean(losses))
		summary.MaxLoss = math.Abs(minOf(losses))
	}

	grossProfit := sum(profits)
	grossLoss := math.Abs(sum(losses))
	if grossLoss > 0 {
		summary.ProfitFactor = grossProfit / grossLoss
	}

	totalClosed := summary.Wins + summary.Losses + summary.PartialWins
	if totalClosed > 0 {
		summary.WinRate = float64(summary.Wins+summary.PartialWins) / float64(totalClosed) * 100
	}
}

// buildStrategyPerformance derives per-strategy statistics and the adaptive
// weighting factors from each strategy's standalone trades.
func buildStrategyPerformance(
	strategies []strategy.Strategy,
	perfWeights map[string]float64,
	tradesByCode map[string][]model.TradeResult,
	finalADX float64,
) []model.StrategyPerformance {
	performances := make([]model.StrategyPerformance, 0, len(strategies))

	for _, s := range strategies {
		trades := tradesByCode[s.Code()]

		perf := model.StrategyPerformance{
			Code:              s.Code(),
			Name:              s.Name(),
			BaseWeight:        s.BaseWeight(),
			PerformanceWeight: 1.0,
			RegimeMultiplier:  strategy.RegimeMultiplier(s.Kind(), finalADX),
		}
		if w, ok := perfWeights[s.Name()]; ok {
			perf.PerformanceWeight = w
		}

		var profits, losses, returns []float64
		for _, t := range trades {
			perf.TotalSignals++
			switch {
			case t.TP1Hit && !t.SLHit:
				perf.Wins++
			case t.SLHit && !t.TP1Hit:
				perf.Losses++
			case t.TP1Hit && t.SLHit:
				perf.PartialWins++
			}
			if t.Result == model.OutcomeTimeout {
				perf.Timeouts++
			}
			perf.TotalProfitPercent += t.TotalProfitPercent
			returns = append(returns, t.TotalProfitPercent)
			if t.TotalProfitPercent > 0 {
				profits = append(profits, t.TotalProfitPercent)
			} else if t.TotalProfitPercent < 0 {
				losses = append(losses, t.TotalProfitPercent)
			}
		}

		if len(profits) > 0 {
			perf.AverageProfit = mean(profits)
		}
		if len(losses) > 0 {
			perf.AverageLoss = math.Abs(mean(losses))
		}
		if grossLoss := math.Abs(sum(losses)); grossLoss > 0 {
			perf.ProfitFactor = sum(profits) / grossLoss
		}
		totalClosed := perf.Wins + perf.Losses + perf.PartialWins
		if totalClosed > 0 {
			perf.WinRate = float64(perf.Wins+perf.PartialWins) / float64(totalClosed) * 100
		}

		perf.SuggestedWeight = suggestedWeight(perf.ProfitFactor, perf.WinRate, perf.TotalSignals)
		perf.StabilityWeight = stabilityWeight(returns)
		perf.CorrelationPenalty = correlationPenalty(s.Code(), tradesByCode)
		perf.ActualWeight = strategy.ClampActualWeight(
			perf.BaseWeight * perf.PerformanceWeight * perf.RegimeMultiplier * perf.StabilityWeight * perf.CorrelationPenalty,
		)

		performances = append(performances, perf)
	}

	return performances
}

// suggestedWeight blends profit factor and win rate into a raw score (1.0 at
// PF 1.0 / 50% win rate), clamps it to [0.3,2.5], then shrinks it toward 1.0
// in proportion to the sample size. With no trades it is exactly 1.0.
func suggestedWeight(profitFactor, winRate float64, totalSignals int) float64 {
	raw := (math.Min(profitFactor, 2.5) + winRate/50) / 2
	raw = clampF(raw, 0.3, 2.5)

	confidence := math.Min(1, float64(totalSignals)/fullConfidenceTrades)
	return 1 + (raw-1)*confidence
}

// stabilityWeight penalizes erratic trade returns: an inverse function of the
// return standard deviation, clamped to [0.5,1.5].
func stabilityWeight(returns []float64) float64 {
	if len(returns) < 2 {
		return 1.0
	}
	return clampF(1.5/(1+stdDev(returns)), 0.5, 1.5)
}

// correlationPenalty dampens strategies whose returns move together:
// 1 − 0.5×mean(|pairwise correlation|) over strategies sharing at least five
// time-aligned trades, clamped to [0.5,1.0].
func correlationPenalty(code string, tradesByCode map[string][]model.TradeResult) float64 {
	own := returnsByTime(tradesByCode[code])
	if len(own) < minOverlappingTrades {
		return 1.0
	}

	var corrSum float64
	var pairs int
	for otherCode, otherTrades := range tradesByCode {
		if otherCode == code {
			continue
		}
		other := returnsByTime(otherTrades)

		var a, b []float64
		for ts, r := range own {
			if or, ok := other[ts]; ok {
				a = append(a, r)
				b = append(b, or)
			}
		}
		if len(a) < minOverlappingTrades {
			continue
		}
		corrSum += math.Abs(pearson(a, b))
		pairs++
	}

	if pairs == 0 {
		return 1.0
	}
	return clampF(1-0.5*(corrSum/float64(pairs)), 0.5, 1.0)
}

func returnsByTime(trades []model.TradeResult) map[int64]float64 {
	out := make(map[int64]float64, len(trades))
	for _, t := range trades {
		out[t.SignalTime.UnixMilli()] = t.TotalProfitPercent
	}
	return out
}

func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n < 2 {
		return 0
	}
	meanA, meanB := mean(a), mean(b)

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func stdDev(values []float64) float64 {
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
