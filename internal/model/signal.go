package model

type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// StrategyResult is a single strategy's vote over one candle window.
// Produced once per evaluation and never mutated afterwards.
type StrategyResult struct {
	Direction  Direction          `json:"direction"`
	Confidence float64            `json:"confidence"`
	Weight     float64            `json:"weight"`
	Name       string             `json:"name"`
	Code       string             `json:"code"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// AggregatedSignal is the ensemble consensus over all strategy votes.
// SL/TP levels are set only when Direction is not NEUTRAL.
type AggregatedSignal struct {
	Direction   Direction `json:"signal"`
	Confidence  float64   `json:"confidence"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    *float64  `json:"stop_loss"`
	TakeProfit1 *float64  `json:"take_profit_1"`
	TakeProfit2 *float64  `json:"take_profit_2"`
	TakeProfit3 *float64  `json:"take_profit_3"`

	StrategyResults []StrategyResult `json:"strategy_results,omitempty"`

	LongVotes     int `json:"long_votes"`
	ShortVotes    int `json:"short_votes"`
	NeutralVotes  int `json:"neutral_votes"`
	FilteredVotes int `json:"filtered_votes"`

	LongWeightSum           float64 `json:"long_weight_sum"`
	ShortWeightSum          float64 `json:"short_weight_sum"`
	WeightedLongConfidence  float64 `json:"weighted_long_confidence"`
	WeightedShortConfidence float64 `json:"weighted_short_confidence"`
}
