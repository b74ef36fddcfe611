package strategy

import (
	"fmt"

	"github.com/ShodmonX/trading-signals-bot/internal/model"
)

// registry is the ordered list of known strategies. Adding a strategy means
// adding one entry here; aggregation logic never changes.
var registry = []Strategy{
	NewTrendFollow(),
	NewMACDCrossover(),
	NewBollingerBreakout(),
	NewStochastic(),
	NewSMACrossover(),
	NewWilliamsFractals(),
}

// All returns every registered strategy in registry order.
func All() []Strategy {
	out := make([]Strategy, len(registry))
	copy(out, registry)
	return out
}

// ByCode resolves a strategy by its registry code.
func ByCode(code string) (Strategy, error) {
	for _, s := range registry {
		if s.Code() == code {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown strategy code: %s", code)
}

// DefaultConfigs is the static fallback used when the strategy table cannot
// be loaded: every strategy active with performance weight 1.0.
func DefaultConfigs() []model.StrategyConfig {
	configs := make([]model.StrategyConfig, 0, len(registry))
	for _, s := range registry {
		configs = append(configs, model.StrategyConfig{
			Code:              s.Code(),
			Name:              s.Name(),
			Implementation:    s.Code(),
			PerformanceWeight: 1.0,
			Active:            true,
		})
	}
	return configs
}

// FromConfigs resolves the active strategies and their runtime performance
// weights (keyed by strategy name, as the aggregator looks them up). Configs
// referencing unknown implementations are skipped.
func FromConfigs(configs []model.StrategyConfig) ([]Strategy, map[string]float64) {
	strategies := make([]Strategy, 0, len(configs))
	weights := make(map[string]float64, len(configs))
	for _, cfg := range configs {
		if !cfg.Active {
			continue
		}
		impl := cfg.Implementation
		if impl == "" {
			impl = cfg.Code
		}
		s, err := ByCode(impl)
		if err != nil {
			continue
		}
		strategies = append(strategies, s)
		weights[s.Name()] = cfg.PerformanceWeight
	}
	return strategies, weights
}
