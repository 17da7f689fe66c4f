package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/database"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/logger"
	"hyperliquid-trade-bot-go/internal/nostr"
	"hyperliquid-trade-bot-go/internal/notify"
	"hyperliquid-trade-bot-go/internal/relay"
	"hyperliquid-trade-bot-go/internal/settlement"
	"hyperliquid-trade-bot-go/internal/strategy"
	"hyperliquid-trade-bot-go/internal/trader"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize Hyperliquid REST client
	restClient := hyperliquid.NewRestClient(&cfg.Exchange, log)
	if _, err := restClient.GetBalance(); err != nil {
		log.Fatal("Failed to connect to Hyperliquid API", zap.Error(err))
	}
	log.Info("Successfully connected to Hyperliquid API.")

	// Strategy and trade gating
	strat, err := strategy.New(cfg.Trading.Strategy, &cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize strategy", zap.Error(err))
	}
	gate := strategy.NewGate(cfg.Trading, log)

	// Notifications and settlement reporting
	notifier := notify.NewNotifier(cfg.Telegram, log)
	reporter := settlement.NewReporter(cfg.Settlement, cfg.Nostr.PublicKey, log)

	// Nostr signal channel: shared relay pool, copy-trade listener and
	// broadcaster
	pool := nostr.NewRelayPool(cfg.Nostr.Relays, log)
	listener := relay.NewListener(cfg.Nostr, cfg.CopyTrade, pool, log)
	broadcaster, err := relay.NewBroadcaster(cfg.Nostr, pool, cfg.Trading.DryRun, log)
	if err != nil {
		log.Fatal("Failed to initialize signal broadcaster", zap.Error(err))
	}

	coordinator := trader.NewCoordinator(log, restClient, trader.CoordinatorConfig{
		DryRun:        cfg.Trading.DryRun,
		MinOrderValue: decimal.NewFromFloat(cfg.Trading.MinOrderValue),
		Risk:          trader.NewRiskConfig(cfg.Risk),
		Copy: trader.CopyPolicy{
			Enabled:        cfg.CopyTrade.Enabled,
			AllowedSymbols: cfg.CopyTrade.Symbols,
			FollowPubkeys:  cfg.CopyTrade.FollowPubkeys,
			SizePercent:    decimal.NewFromFloat(cfg.CopyTrade.SizePercent),
			MinOrderValue:  decimal.NewFromFloat(cfg.CopyTrade.MinOrderValue),
		},
	}, trader.Collaborators{
		Gate:       gate,
		Notifier:   notifier,
		Publisher:  broadcaster,
		Settlement: reporter,
	})

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := listener.Start(ctx); err != nil {
		log.Fatal("Failed to start copy-trade listener", zap.Error(err))
	}

	// Initialize and run the trading engine
	tradeEngine := trader.NewEngine(log, &cfg, restClient, coordinator, strat, broadcaster, notifier, db, listener.Signals())

	apiServer := trader.NewAPIServer(cfg.Server.Port, tradeEngine, coordinator, log)
	apiServer.Start()

	tradeEngine.Run(ctx)

	listener.Stop()
	pool.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
