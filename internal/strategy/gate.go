package strategy

import (
	"sync"
	"time"

	"hyperliquid-trade-bot-go/internal/config"

	"go.uber.org/zap"
)

// Gate enforces the trade-frequency limits: a cooldown between entries, a
// cap on entries per day, and a daily loss cap. Counters reset at the first
// call on a new calendar day (UTC).
type Gate struct {
	logger *zap.Logger

	cooldown     time.Duration
	maxPerDay    int
	maxDailyLoss float64

	mu         sync.Mutex
	lastTrade  time.Time
	tradeCount int
	dailyPnl   float64
	day        time.Time

	now func() time.Time
}

// NewGate builds a Gate from the trading configuration.
func NewGate(cfg config.Trading, logger *zap.Logger) *Gate {
	return &Gate{
		logger:       logger.Named("gate"),
		cooldown:     time.Duration(cfg.CooldownSeconds) * time.Second,
		maxPerDay:    cfg.MaxTradesPerDay,
		maxDailyLoss: cfg.MaxDailyLoss,
		now:          time.Now,
	}
}

// ShouldTrade reports whether a new entry is currently allowed.
func (g *Gate) ShouldTrade() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()

	if !g.lastTrade.IsZero() && g.now().Sub(g.lastTrade) < g.cooldown {
		g.logger.Debug("In cooldown, trading blocked")
		return false
	}
	if g.maxPerDay > 0 && g.tradeCount >= g.maxPerDay {
		g.logger.Debug("Daily trade cap reached", zap.Int("count", g.tradeCount))
		return false
	}
	if g.maxDailyLoss > 0 && g.dailyPnl < -g.maxDailyLoss {
		g.logger.Debug("Daily loss cap reached", zap.Float64("daily_pnl", g.dailyPnl))
		return false
	}
	return true
}

// MarkTrade records a completed entry for cooldown and daily-cap purposes.
func (g *Gate) MarkTrade(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	g.lastTrade = at
	g.tradeCount++
}

// RecordPnl adds a realized pnl fraction to the running daily total.
func (g *Gate) RecordPnl(pnlPercent float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked()
	g.dailyPnl += pnlPercent
}

func (g *Gate) rollDayLocked() {
	today := g.now().UTC().Truncate(24 * time.Hour)
	if g.day.Equal(today) {
		return
	}
	if !g.day.IsZero() {
		g.logger.Info("Resetting daily trade counters",
			zap.Int("trades_yesterday", g.tradeCount),
			zap.Float64("pnl_yesterday", g.dailyPnl),
		)
	}
	g.day = today
	g.tradeCount = 0
	g.dailyPnl = 0
}
