package model

import "time"

// TradeOutcome is the terminal state of one simulated trade.
type TradeOutcome string

const (
	OutcomeSL      TradeOutcome = "SL"
	OutcomeTP1     TradeOutcome = "TP1"
	OutcomeTP2     TradeOutcome = "TP2"
	OutcomeTP3     TradeOutcome = "TP3"
	OutcomePartial TradeOutcome = "PARTIAL"
	OutcomeTimeout TradeOutcome = "TIMEOUT"
)

// StopTier tells at which level the stop sat when it was finally hit.
// TP1 moves the stop to breakeven, TP2 moves it to the TP1 price.
type StopTier string

const (
	StopOriginal  StopTier = "ORIGINAL"
	StopBreakeven StopTier = "BREAKEVEN"
	StopTP1       StopTier = "TP1"
)

// TradeResult is the lifecycle of one simulated partial-close position.
// It is mutated by the simulator and finalized at a terminal state.
type TradeResult struct {
	SignalTime  time.Time `json:"signal_time"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit1 float64   `json:"take_profit_1"`
	TakeProfit2 float64   `json:"take_profit_2"`
	TakeProfit3 float64   `json:"take_profit_3"`

	Result    TradeOutcome `json:"result"`
	ExitTime  *time.Time   `json:"exit_time"`
	ExitPrice *float64     `json:"exit_price"`

	TP1Hit bool `json:"tp1_hit"`
	TP2Hit bool `json:"tp2_hit"`
	TP3Hit bool `json:"tp3_hit"`
	SLHit  bool `json:"sl_hit"`

	SLHitAt StopTier `json:"sl_hit_at,omitempty"`

	TotalProfitPercent float64 `json:"total_profit_percent"`
}

// StrategyConfig is the externally supplied, read-only per-run strategy setup.
type StrategyConfig struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Implementation    string  `json:"implementation"`
	PerformanceWeight float64 `json:"performance_weight"`
	Active            bool    `json:"is_active"`
}

// StrategyPerformance holds one strategy's standalone backtest statistics
// and the multiplicative weighting factors derived from them.
type StrategyPerformance struct {
	Code string `json:"code"`
	Name string `json:"name"`

	TotalSignals int `json:"total_signals"`
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	PartialWins  int `json:"partial_wins"`
	Timeouts     int `json:"timeouts"`

	WinRate            float64 `json:"win_rate"`
	ProfitFactor       float64 `json:"profit_factor"`
	TotalProfitPercent float64 `json:"total_profit_percent"`
	AverageProfit      float64 `json:"average_profit"`
	AverageLoss        float64 `json:"average_loss"`

	BaseWeight         float64 `json:"base_weight"`
	PerformanceWeight  float64 `json:"performance_weight"`
	RegimeMultiplier   float64 `json:"regime_multiplier"`
	StabilityWeight    float64 `json:"stability_weight"`
	CorrelationPenalty float64 `json:"correlation_penalty"`
	ActualWeight       float64 `json:"actual_weight"`
	SuggestedWeight    float64 `json:"suggested_weight"`
}

// BacktestParams identifies one backtest run.
type BacktestParams struct {
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Threshold float64   `json:"threshold"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// BacktestSummary aggregates a whole run. Built incrementally during the
// forward walk, finalized by the statistics pass.
type BacktestSummary struct {
	SessionID          string    `json:"session_id"`
	Symbol             string    `json:"symbol"`
	SignalTimeframe    string    `json:"signal_timeframe"`
	ExecutionTimeframe string    `json:"execution_timeframe"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`

	TotalSignals int `json:"total_signals"`
	LongSignals  int `json:"long_signals"`
	ShortSignals int `json:"short_signals"`

	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	PartialWins int `json:"partial_wins"`
	Timeouts    int `json:"timeouts"`

	TP1Hits int `json:"tp1_hits"`
	TP2Hits int `json:"tp2_hits"`
	TP3Hits int `json:"tp3_hits"`

	TotalProfitPercent float64 `json:"total_profit_percent"`
	AverageProfit      float64 `json:"average_profit"`
	AverageLoss        float64 `json:"average_loss"`
	MaxProfit          float64 `json:"max_profit"`
	MaxLoss            float64 `json:"max_loss"`
	ProfitFactor       float64 `json:"profit_factor"`
	WinRate            float64 `json:"win_rate"`

	Trades              []TradeResult         `json:"trades"`
	StrategyPerformance []StrategyPerformance `json:"strategy_performance"`

	CreatedAt time.Time `json:"created_at"`
}
