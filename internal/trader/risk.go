package trader

import (
	"fmt"
	"time"

	"hyperliquid-trade-bot-go/internal/config"

	"github.com/shopspring/decimal"
)

// Close reason codes produced by EvaluateExits.
const (
	ReasonDynamicStopLoss   = "Dynamic stop-loss"
	ReasonFixedStopLoss     = "Fixed stop-loss"
	ReasonDynamicTakeProfit = "Dynamic take-profit"
	ReasonFixedTakeProfit   = "Fixed take-profit"
	ReasonTrailingStop      = "Trailing stop"
	ReasonTimeStop          = "Time stop-loss"
	ReasonReverseSignal     = "Reverse signal stop-loss"
)

// RiskConfig holds the layered exit thresholds, immutable for the lifetime of
// the run. Percentages are fractions, e.g. 0.03 for 3%.
type RiskConfig struct {
	FixedStopLossPercent      decimal.Decimal
	FixedTakeProfitPercent    decimal.Decimal
	TrailingStopPercent       decimal.Decimal
	TrailingActivationPercent decimal.Decimal
	MaxHoldingHours           float64
	TimeStopLossPercent       decimal.Decimal // negative; "still losing" threshold
	ReverseStrengthThreshold  float64
}

// NewRiskConfig builds an immutable RiskConfig from the loaded configuration.
func NewRiskConfig(cfg config.Risk) RiskConfig {
	return RiskConfig{
		FixedStopLossPercent:      decimal.NewFromFloat(cfg.StopLossPercent),
		FixedTakeProfitPercent:    decimal.NewFromFloat(cfg.TakeProfitPercent),
		TrailingStopPercent:       decimal.NewFromFloat(cfg.TrailingStopPercent),
		TrailingActivationPercent: decimal.NewFromFloat(cfg.TrailingActivationPercent),
		MaxHoldingHours:           cfg.MaxHoldingHours,
		TimeStopLossPercent:       decimal.NewFromFloat(cfg.TimeStopLossPercent),
		ReverseStrengthThreshold:  cfg.ReverseStrengthThreshold,
	}
}

var hundred = decimal.NewFromInt(100)

// EvaluateExits runs the layered exit checks against an open position and
// returns a close decision, or nil when the position should be kept.
//
// The checks run as one chain where a later match overwrites an earlier one,
// so the reverse-signal check, evaluated last, overrides any stop or target
// decision made in the same pass. Order: stop-loss (dynamic distance when the
// signal provides one, else the fixed percentage), take-profit (same
// fallback), trailing stop, time stop, reverse signal.
//
// Side effect: the position's high-water pnl mark is raised to the current
// pnl when exceeded, regardless of whether anything triggers.
func EvaluateExits(pos *Position, price decimal.Decimal, sig Signal, cfg RiskConfig, now time.Time) *CloseDecision {
	pnl := pos.PnlPercent(price)
	if pnl.GreaterThan(pos.HighWaterPnl) {
		pos.HighWaterPnl = pnl
	}

	var decision *CloseDecision
	trigger := func(reason, detail string) {
		decision = &CloseDecision{Reason: reason, Detail: detail, PnlPercent: pnl}
	}

	// 1. Stop-loss: a dynamic distance from the signal overrides the fixed
	// percentage entirely, even when the fixed threshold would have fired.
	if sig.DynamicStops != nil && sig.DynamicStops.StopLossDistance.IsPositive() {
		threshold := sig.DynamicStops.StopLossDistance.Div(price)
		if pnl.LessThanOrEqual(threshold.Neg()) {
			trigger(ReasonDynamicStopLoss, fmt.Sprintf("distance %s at price %s", sig.DynamicStops.StopLossDistance, price))
		}
	} else if pnl.LessThanOrEqual(cfg.FixedStopLossPercent.Neg()) {
		trigger(ReasonFixedStopLoss, fmt.Sprintf("%s%%", cfg.FixedStopLossPercent.Mul(hundred)))
	}

	// 2. Take-profit, symmetric to the stop-loss.
	if sig.DynamicStops != nil && sig.DynamicStops.TakeProfitDistance.IsPositive() {
		threshold := sig.DynamicStops.TakeProfitDistance.Div(price)
		if pnl.GreaterThanOrEqual(threshold) {
			trigger(ReasonDynamicTakeProfit, fmt.Sprintf("distance %s at price %s", sig.DynamicStops.TakeProfitDistance, price))
		}
	} else if pnl.GreaterThanOrEqual(cfg.FixedTakeProfitPercent) {
		trigger(ReasonFixedTakeProfit, fmt.Sprintf("%s%%", cfg.FixedTakeProfitPercent.Mul(hundred)))
	}

	// 3. Trailing stop: armed once the high-water mark has strictly exceeded
	// the activation threshold, fires when pnl retraces below
	// high-water minus the trailing distance.
	if pos.HighWaterPnl.GreaterThan(cfg.TrailingActivationPercent) &&
		pnl.LessThan(pos.HighWaterPnl.Sub(cfg.TrailingStopPercent)) {
		trigger(ReasonTrailingStop, fmt.Sprintf("protecting profit %s%% -> %s%%",
			pos.HighWaterPnl.Mul(hundred), pnl.Mul(hundred)))
	}

	// 4. Time stop: positions held past the limit and still losing are closed.
	holdingHours := pos.HoldingHours(now)
	if holdingHours > cfg.MaxHoldingHours && pnl.LessThan(cfg.TimeStopLossPercent) {
		trigger(ReasonTimeStop, fmt.Sprintf("holding %.1fh", holdingHours))
	}

	// 5. Reverse signal: a strong opposing signal closes the position and
	// overrides every earlier check in this pass.
	if pos.Side == SideLong && sig.Kind == SignalSell && sig.Strength > cfg.ReverseStrengthThreshold {
		trigger(ReasonReverseSignal, fmt.Sprintf("SELL signal strength %.0f%%", sig.Strength*100))
	} else if pos.Side == SideShort && sig.Kind == SignalBuy && sig.Strength > cfg.ReverseStrengthThreshold {
		trigger(ReasonReverseSignal, fmt.Sprintf("BUY signal strength %.0f%%", sig.Strength*100))
	}

	return decision
}
