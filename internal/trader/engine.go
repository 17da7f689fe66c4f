package trader

import (
	"context"
	"time"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/notify"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Strategy analyzes market data and produces a trade signal. All entry
// decisions flow through it; exit decisions belong to the risk policy.
type Strategy interface {
	Name() string
	Analyze(candles []hyperliquid.Candle) Signal
}

// SignalBroadcaster publishes the bot's own signals to the relay network.
type SignalBroadcaster interface {
	PublishTradeSignal(symbol string, sig Signal, strategy string)
	PublishHeartbeat(status string, balance float64, openPositions int)
}

// heartbeatInterval is how often a liveness ping goes out on the relay.
const heartbeatInterval = time.Minute

// Engine is the market-driven trading loop. Each tick it fetches candles,
// runs the strategy, and hands the result to the coordinator. Copy-trade
// events arriving from the relay are drained on the same goroutine, so both
// flows are serialized before they even reach the coordinator's lock.
type Engine struct {
	logger      *zap.Logger
	cfg         *config.Config
	client      hyperliquid.RestClientInterface
	coordinator *Coordinator
	strategy    Strategy
	broadcaster SignalBroadcaster
	notifier    notify.Notifier
	db          *gorm.DB
	copyCh      <-chan CopySignalEvent
}

// NewEngine creates a new trading engine. broadcaster, db, and copyCh may be
// nil when the corresponding feature is disabled.
func NewEngine(logger *zap.Logger, cfg *config.Config, client hyperliquid.RestClientInterface, coordinator *Coordinator, strategy Strategy, broadcaster SignalBroadcaster, notifier notify.Notifier, db *gorm.DB, copyCh <-chan CopySignalEvent) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{
		logger:      logger,
		cfg:         cfg,
		client:      client,
		coordinator: coordinator,
		strategy:    strategy,
		broadcaster: broadcaster,
		notifier:    notifier,
		db:          db,
		copyCh:      copyCh,
	}
}

// Run starts the trading engine's main loop and blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	symbol := e.cfg.Trading.Symbol
	e.logger.Info("Initializing trading engine...",
		zap.String("symbol", symbol),
		zap.String("strategy", e.strategy.Name()),
		zap.Bool("dry_run", e.cfg.Trading.DryRun),
	)

	e.coordinator.Reconcile(symbol)
	e.notifier.NotifyStartup(e.strategy.Name(), symbol, e.cfg.Trading.DryRun)

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	e.logger.Info("Starting trading loop", zap.Duration("interval", interval))

	// Run one cycle immediately instead of waiting out the first tick.
	e.cycle(symbol)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			e.shutdown()
			return
		case ev, ok := <-e.copyCh:
			if !ok {
				e.copyCh = nil
				continue
			}
			e.coordinator.HandleCopySignal(ev)
		case <-heartbeat.C:
			e.heartbeat()
		case <-ticker.C:
			e.cycle(symbol)
		}
	}
}

// cycle runs a single fetch-analyze-evaluate pass. Errors are logged, not
// returned: a failed cycle must never stop the loop.
func (e *Engine) cycle(symbol string) {
	candles, err := e.client.GetCandles(symbol, e.cfg.Trading.Interval, e.cfg.Trading.CandleLimit)
	if err != nil {
		e.logger.Error("Failed to fetch candles", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if len(candles) == 0 {
		e.logger.Warn("No candle data returned, skipping cycle", zap.String("symbol", symbol))
		return
	}

	price := decimal.NewFromFloat(candles[len(candles)-1].Close)
	sig := e.strategy.Analyze(candles)

	e.logger.Info("Strategy evaluated",
		zap.String("symbol", symbol),
		zap.String("signal", string(sig.Kind)),
		zap.Float64("strength", sig.Strength),
		zap.String("price", price.String()),
		zap.Any("indicators", sig.Indicators),
	)

	if sig.Kind != SignalHold {
		e.notifier.NotifyTradeSignal(symbol, string(sig.Kind), sig.Strength, price)
		if e.broadcaster != nil {
			e.broadcaster.PublishTradeSignal(symbol, sig, e.strategy.Name())
		}
	}

	if err := e.coordinator.EvaluateCycle(symbol, price, sig); err != nil {
		e.logger.Error("Evaluation cycle failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// heartbeat publishes a liveness ping with the current balance and open
// position count. A failed balance fetch skips the ping; the next tick
// retries.
func (e *Engine) heartbeat() {
	if e.broadcaster == nil {
		return
	}
	balance, err := e.client.GetBalance()
	if err != nil {
		e.logger.Warn("Heartbeat skipped, balance fetch failed", zap.Error(err))
		return
	}
	e.broadcaster.PublishHeartbeat("running", balance.InexactFloat64(), e.coordinator.Store().Len())
}

// shutdown summarizes the session and persists the trade journal.
func (e *Engine) shutdown() {
	stats := e.coordinator.Journal().Stats()
	e.logger.Info("Session summary",
		zap.Int("total_trades", stats.TotalTrades),
		zap.Int("closed_trades", stats.ClosedTrades),
		zap.Int("winning_trades", stats.WinningTrades),
		zap.Float64("total_pnl", stats.TotalPnl),
		zap.Float64("win_rate", stats.WinRate),
	)
	e.notifier.NotifyShutdown(stats)

	if e.db != nil {
		if err := e.coordinator.Journal().FlushTo(e.db); err != nil {
			e.logger.Error("Failed to persist trade journal", zap.Error(err))
		} else {
			e.logger.Info("Trade journal persisted")
		}
	}
}
