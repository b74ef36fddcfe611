package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// Repository owns all database access: strategy activation flags tuned by
// operators and persisted backtest runs.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// LoadActiveStrategyConfigs returns the strategies currently enabled for
// aggregation, with their operator-tuned performance weights.
func (r *Repository) LoadActiveStrategyConfigs(ctx context.Context) ([]model.StrategyConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, name, performance_weight, is_active
		FROM strategies
		WHERE is_active = TRUE
		ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var configs []model.StrategyConfig
	for rows.Next() {
		var cfg model.StrategyConfig
		if err := rows.Scan(&cfg.Code, &cfg.Name, &cfg.PerformanceWeight, &cfg.Active); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SaveBacktestResult persists a finished run. Trades and per-strategy
// performance go into jsonb columns so the API can return them verbatim.
func (r *Repository) SaveBacktestResult(ctx context.Context, params model.BacktestParams, summary model.BacktestSummary) error {
	tradesJSON, err := json.Marshal(summary.Trades)
	if err != nil {
		return fmt.Errorf("encode trades: %w", err)
	}
	perfJSON, err := json.Marshal(summary.StrategyPerformance)
	if err != nil {
		return fmt.Errorf("encode strategy performance: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO backtest_results (
			session_id, user_id, symbol, signal_timeframe, execution_timeframe,
			threshold, period_start, period_end,
			total_signals, long_signals, short_signals,
			wins, losses, partial_wins, timeouts,
			tp1_hits, tp2_hits, tp3_hits,
			total_profit_percent, average_profit, average_loss,
			max_profit, max_loss, profit_factor, win_rate,
			trades, strategy_performance, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25,
			$26, $27, $28
		)`,
		summary.SessionID, params.UserID, summary.Symbol,
		summary.SignalTimeframe, summary.ExecutionTimeframe,
		params.Threshold, summary.PeriodStart, summary.PeriodEnd,
		summary.TotalSignals, summary.LongSignals, summary.ShortSignals,
		summary.Wins, summary.Losses, summary.PartialWins, summary.Timeouts,
		summary.TP1Hits, summary.TP2Hits, summary.TP3Hits,
		summary.TotalProfitPercent, summary.AverageProfit, summary.AverageLoss,
		summary.MaxProfit, summary.MaxLoss, summary.ProfitFactor, summary.WinRate,
		tradesJSON, perfJSON, summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert backtest result: %w", err)
	}

	r.logger.Info("backtest result persisted",
		zap.String("session", summary.SessionID),
		zap.String("symbol", summary.Symbol),
		zap.Int("trades", len(summary.Trades)))
	return nil
}

// ErrNotFound is returned when no run matches the requested session.
var ErrNotFound = errors.New("storage: not found")

// GetBacktestBySession reconstructs a persisted run for the read API.
func (r *Repository) GetBacktestBySession(ctx context.Context, sessionID string) (model.BacktestSummary, error) {
	var (
		summary    model.BacktestSummary
		tradesJSON []byte
		perfJSON   []byte
	)

	err := r.pool.QueryRow(ctx, `
		SELECT session_id, symbol, signal_timeframe, execution_timeframe,
			period_start, period_end,
			total_signals, long_signals, short_signals,
			wins, losses, partial_wins, timeouts,
			tp1_hits, tp2_hits, tp3_hits,
			total_profit_percent, average_profit, average_loss,
			max_profit, max_loss, profit_factor, win_rate,
			trades, strategy_performance, created_at
		FROM backtest_results
		WHERE session_id = $1`,
		sessionID).Scan(
		&summary.SessionID, &summary.Symbol,
		&summary.SignalTimeframe, &summary.ExecutionTimeframe,
		&summary.PeriodStart, &summary.PeriodEnd,
		&summary.TotalSignals, &summary.LongSignals, &summary.ShortSignals,
		&summary.Wins, &summary.Losses, &summary.PartialWins, &summary.Timeouts,
		&summary.TP1Hits, &summary.TP2Hits, &summary.TP3Hits,
		&summary.TotalProfitPercent, &summary.AverageProfit, &summary.AverageLoss,
		&summary.MaxProfit, &summary.MaxLoss, &summary.ProfitFactor, &summary.WinRate,
		&tradesJSON, &perfJSON, &summary.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return summary, ErrNotFound
		}
		return summary, fmt.Errorf("query backtest result: %w", err)
	}

	if err := json.Unmarshal(tradesJSON, &summary.Trades); err != nil {
		return summary, fmt.Errorf("decode trades: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &summary.StrategyPerformance); err != nil {
		return summary, fmt.Errorf("decode strategy performance: %w", err)
	}
	return summary, nil
}
