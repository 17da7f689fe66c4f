// Package strategy implements the pluggable market-analysis strategies and
// the trade-frequency gating shared between them. Strategies only decide
// entries; exits are owned by the risk policy.
package strategy

import (
	"fmt"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/trader"

	"go.uber.org/zap"
)

type constructor func(cfg *config.Config, logger *zap.Logger) trader.Strategy

var registry = map[string]constructor{
	"momentum":        newMomentum,
	"mean_reversion":  newMeanReversion,
	"trend_following": newTrendFollowing,
}

// New builds the named strategy, or errors with the list of known names.
func New(name string, cfg *config.Config, logger *zap.Logger) (trader.Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, names)
	}
	return ctor(cfg, logger), nil
}

// closes extracts the close series from candles.
func closes(candles []hyperliquid.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highs(candles []hyperliquid.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lows(candles []hyperliquid.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
