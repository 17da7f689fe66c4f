package notify

import (
	"fmt"
	"time"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends notifications through the Telegram Bot API.
type TelegramNotifier struct {
	cfg    config.Telegram
	client *resty.Client
	logger *zap.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for the configured bot and chat.
func NewTelegramNotifier(cfg config.Telegram, logger *zap.Logger) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(telegramAPIBase).
		SetTimeout(10 * time.Second)

	return &TelegramNotifier{
		cfg:    cfg,
		client: client,
		logger: logger.Named("telegram"),
	}
}

// NewNotifier returns a TelegramNotifier when telegram is enabled and
// configured, and a NopNotifier otherwise.
func NewNotifier(cfg config.Telegram, logger *zap.Logger) Notifier {
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == "" {
		logger.Info("Telegram notifications disabled")
		return NopNotifier{}
	}
	return NewTelegramNotifier(cfg, logger)
}

// send posts one message to the configured chat. Errors are logged, never
// returned: notification failure must not disturb trading.
func (t *TelegramNotifier) send(text string) {
	resp, err := t.client.R().
		SetBody(map[string]string{
			"chat_id":    t.cfg.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.cfg.BotToken))

	if err != nil {
		t.logger.Warn("Failed to send telegram message", zap.Error(err))
		return
	}
	if resp.IsError() {
		t.logger.Warn("Telegram API returned an error",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
	}
}

func (t *TelegramNotifier) NotifyStartup(strategy, symbol string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	t.send(fmt.Sprintf("🤖 <b>Bot started</b>\nStrategy: %s\nSymbol: %s\nMode: %s", strategy, symbol, mode))
}

func (t *TelegramNotifier) NotifyTradeSignal(symbol, kind string, strength float64, price decimal.Decimal) {
	if !t.cfg.NotifySignals {
		return
	}
	t.send(fmt.Sprintf("📈 <b>Signal</b> %s %s\nStrength: %.0f%%\nPrice: %s", kind, symbol, strength*100, price))
}

func (t *TelegramNotifier) NotifyTradeExecuted(symbol, kind string, size, price decimal.Decimal, dryRun bool) {
	if !t.cfg.NotifyTrades {
		return
	}
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	t.send(fmt.Sprintf("📤 <b>%sTrade executed</b>\n%s %s\nSize: %s\nPrice: %s", prefix, kind, symbol, size, price))
}

func (t *TelegramNotifier) NotifyPositionClosed(symbol string, entryPrice, exitPrice, pnl, pnlPercent decimal.Decimal, reason string) {
	if !t.cfg.NotifyClosures {
		return
	}
	t.send(fmt.Sprintf("✅ <b>Position closed</b> %s\nEntry: %s\nExit: %s\nPnL: %s (%s%%)\nReason: %s",
		symbol, entryPrice, exitPrice, pnl, pnlPercent.Mul(decimal.NewFromInt(100)), reason))
}

func (t *TelegramNotifier) NotifyError(msg string) {
	t.send(fmt.Sprintf("❌ <b>Error</b>\n%s", msg))
}

func (t *TelegramNotifier) NotifyShutdown(stats models.TradeStats) {
	t.send(fmt.Sprintf("👋 <b>Bot shut down</b>\nTrades: %d\nClosed: %d\nWin rate: %.0f%%\nTotal PnL: %.2f",
		stats.TotalTrades, stats.ClosedTrades, stats.WinRate*100, stats.TotalPnl))
}
