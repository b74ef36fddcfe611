// Package processor turns fine-grained execution candles into the coarser
// signal timeframe the strategies run on.
package processor

import (
	"fmt"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Resample groups consecutive source candles into target-timeframe candles:
// open/open_time from the first of a group, close/close_time from the last,
// high=max, low=min, volumes and trade counts summed. An incomplete trailing
// group is dropped, so the output length is always floor(N/ratio).
func Resample(candles []model.Candle, sourceTF, targetTF string) ([]model.Candle, error) {
	sourceMinutes, ok := model.TimeframeMinutes[sourceTF]
	if !ok {
		return nil, fmt.Errorf("unknown source timeframe: %s", sourceTF)
	}
	targetMinutes, ok := model.TimeframeMinutes[targetTF]
	if !ok {
		return nil, fmt.Errorf("unknown target timeframe: %s", targetTF)
	}
	if targetMinutes%sourceMinutes != 0 {
		return nil, fmt.Errorf("timeframe %s is not a multiple of %s", targetTF, sourceTF)
	}

	ratio := targetMinutes / sourceMinutes
	if ratio <= 1 {
		return candles, nil
	}

	aggregated := make([]model.Candle, 0, len(candles)/ratio)

	for i := 0; i+ratio <= len(candles); i += ratio {
		group := candles[i : i+ratio]

		out := model.Candle{
			OpenTime:  group[0].OpenTime,
			Open:      group[0].Open,
			High:      group[0].High,
			Low:       group[0].Low,
			Close:     group[len(group)-1].Close,
			CloseTime: group[len(group)-1].CloseTime,
		}
		for _, c := range group {
			if c.High > out.High {
				out.High = c.High
			}
			if c.Low < out.Low {
				out.Low = c.Low
			}
			out.Volume += c.Volume
			out.QuoteVolume += c.QuoteVolume
			out.TradeCount += c.TradeCount
			out.TakerBuyBase += c.TakerBuyBase
			out.TakerBuyQuote += c.TakerBuyQuote
		}

		aggregated = append(aggregated, out)
	}

	return aggregated, nil
}
