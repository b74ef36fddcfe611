// Package indicator wraps go-talib with the handful of series helpers the
// strategies need: guarded last-value accessors, crossover detection and
// Williams fractals (which talib does not provide).
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

func EMA(values []float64, period int) []float64 {
	if len(values) < period {
		return make([]float64, len(values))
	}
	return talib.Ema(values, period)
}

func SMA(values []float64, period int) []float64 {
	if len(values) < period {
		return make([]float64, len(values))
	}
	return talib.Sma(values, period)
}

func RSI(values []float64, period int) []float64 {
	if len(values) <= period {
		return make([]float64, len(values))
	}
	return talib.Rsi(values, period)
}

func MACD(values []float64, fast, slow, signal int) (macd, macdSignal, hist []float64) {
	if len(values) < slow+signal {
		zero := make([]float64, len(values))
		return zero, zero, zero
	}
	return talib.Macd(values, fast, slow, signal)
}

func BollingerBands(values []float64, period int, devUp, devDown float64) (upper, middle, lower []float64) {
	if len(values) < period {
		zero := make([]float64, len(values))
		return zero, zero, zero
	}
	return talib.BBands(values, period, devUp, devDown, talib.SMA)
}

func Stochastic(high, low, close []float64, fastK, slowK, slowD int) (k, d []float64) {
	if len(close) < fastK+slowK+slowD {
		zero := make([]float64, len(close))
		return zero, zero
	}
	return talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
}

// ATR returns the last Average True Range value, or 0 when the window is
// shorter than the lookback.
func ATR(high, low, close []float64, period int) float64 {
	if len(close) <= period {
		return 0
	}
	series := talib.Atr(high, low, close, period)
	return Last(series)
}

// ADX returns the last Average Directional Index value, or 0 when the window
// is shorter than the 2×period lookback ADX needs.
func ADX(high, low, close []float64, period int) float64 {
	if len(close) < 2*period {
		return 0
	}
	series := talib.Adx(high, low, close, period)
	return Last(series)
}

// Last returns the final value of a series, mapping NaN/Inf to 0 so that a
// not-yet-warmed-up indicator reads as "no measurement".
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Prev returns the next-to-last value of a series, with the same NaN mapping.
func Prev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	v := series[len(series)-2]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// CrossedAbove reports whether a crossed above b on the last step.
func CrossedAbove(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return Prev(a) <= Prev(b) && Last(a) > Last(b)
}

// CrossedBelow reports whether a crossed below b on the last step.
func CrossedBelow(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return Prev(a) >= Prev(b) && Last(a) < Last(b)
}

// BullishFractals marks candles whose low is strictly the lowest within
// `window` candles on both sides.
func BullishFractals(low []float64, window int) []bool {
	out := make([]bool, len(low))
	if len(low) < 2*window+1 {
		return out
	}
	for i := window; i < len(low)-window; i++ {
		isFractal := true
		for j := 1; j <= window; j++ {
			if low[i-j] <= low[i] || low[i+j] <= low[i] {
				isFractal = false
				break
			}
		}
		out[i] = isFractal
	}
	return out
}

// BearishFractals marks candles whose high is strictly the highest within
// `window` candles on both sides.
func BearishFractals(high []float64, window int) []bool {
	out := make([]bool, len(high))
	if len(high) < 2*window+1 {
		return out
	}
	for i := window; i < len(high)-window; i++ {
		isFractal := true
		for j := 1; j <= window; j++ {
			if high[i-j] >= high[i] || high[i+j] >= high[i] {
				isFractal = false
				break
			}
		}
		out[i] = isFractal
	}
	return out
}
