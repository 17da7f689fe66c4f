// Package notify delivers push notifications about trading activity. All
// sends are fire-and-forget: failures are logged and swallowed, never
// surfaced to the trading loop.
package notify

import (
	"hyperliquid-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Notifier is the notification surface the trading core talks to.
type Notifier interface {
	NotifyStartup(strategy, symbol string, dryRun bool)
	NotifyTradeSignal(symbol, kind string, strength float64, price decimal.Decimal)
	NotifyTradeExecuted(symbol, kind string, size, price decimal.Decimal, dryRun bool)
	NotifyPositionClosed(symbol string, entryPrice, exitPrice, pnl, pnlPercent decimal.Decimal, reason string)
	NotifyError(msg string)
	NotifyShutdown(stats models.TradeStats)
}

// NopNotifier discards every notification. Used when telegram is not
// configured.
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) NotifyStartup(string, string, bool)                         {}
func (NopNotifier) NotifyTradeSignal(string, string, float64, decimal.Decimal) {}
func (NopNotifier) NotifyTradeExecuted(string, string, decimal.Decimal, decimal.Decimal, bool) {}
func (NopNotifier) NotifyPositionClosed(string, decimal.Decimal, decimal.Decimal, decimal.Decimal, decimal.Decimal, string) {
}
func (NopNotifier) NotifyError(string)               {}
func (NopNotifier) NotifyShutdown(models.TradeStats) {}
