package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/models"
	"hyperliquid-trade-bot-go/internal/nostr"
	"hyperliquid-trade-bot-go/internal/trader"

	"go.uber.org/zap"
)

// Broadcaster publishes the bot's own activity to the signal network:
// sealed trade signals, sealed execution reports and plaintext heartbeats.
// A broadcaster without credentials is disabled and publishes nothing.
type Broadcaster struct {
	logger   *zap.Logger
	cfg      config.Nostr
	bus      EventBus
	codec    *nostr.Codec
	secret   []byte
	testMode bool
	enabled  bool
}

// NewBroadcaster creates a Broadcaster. An error is returned only for
// malformed credentials; missing credentials yield a disabled instance.
func NewBroadcaster(cfg config.Nostr, bus EventBus, testMode bool, logger *zap.Logger) (*Broadcaster, error) {
	b := &Broadcaster{
		logger:   logger.Named("broadcaster"),
		cfg:      cfg,
		bus:      bus,
		testMode: testMode,
	}
	if cfg.SecretKey == "" || cfg.PublicKey == "" || cfg.PlatformSharedKey == "" {
		b.logger.Warn("Nostr credentials not configured, signal broadcasting disabled")
		return b, nil
	}

	codec, err := nostr.NewCodec(cfg.SecretKey, cfg.PlatformSharedKey)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	b.codec = codec
	b.secret = secret
	b.enabled = true
	return b, nil
}

var _ trader.SignalBroadcaster = (*Broadcaster)(nil)
var _ trader.SignalPublisher = (*Broadcaster)(nil)

// PublishTradeSignal seals and broadcasts a strategy signal.
func (b *Broadcaster) PublishTradeSignal(symbol string, sig trader.Signal, strategy string) {
	if !b.enabled {
		return
	}

	payload := nostr.TradeSignalPayload{
		Symbol:     symbol,
		Signal:     string(sig.Kind),
		Strength:   sig.Strength,
		Price:      sig.Price.InexactFloat64(),
		Size:       sig.SizeFraction.InexactFloat64(),
		Strategy:   strategy,
		TestMode:   b.testMode,
		Indicators: sig.Indicators,
	}

	testTag := "0"
	if b.testMode {
		testTag = "1"
	}
	b.publish(nostr.KindTradeSignal, payload,
		[]string{"op", "trade_signal"},
		[]string{"symbol", symbol},
		[]string{"strategy", strategy},
		[]string{"signal", string(sig.Kind)},
		[]string{"test", testTag},
	)
}

// PublishExecutionReport seals and broadcasts a fill or simulated execution.
func (b *Broadcaster) PublishExecutionReport(rec models.TradeRecord, status string) {
	if !b.enabled {
		return
	}

	payload := nostr.ExecutionReportPayload{
		Symbol:     rec.Symbol,
		Side:       rec.Side,
		Size:       rec.Size,
		Price:      rec.EntryPrice,
		Status:     status,
		TxHash:     rec.OrderID,
		Pnl:        rec.Pnl,
		PnlPercent: rec.PnlPercent,
		TestMode:   rec.IsSimulation,
	}
	if rec.Action == models.ActionClose {
		payload.Price = rec.ExitPrice
	}

	testTag := "0"
	if rec.IsSimulation {
		testTag = "1"
	}
	b.publish(nostr.KindExecutionReport, payload,
		[]string{"op", "execution_report"},
		[]string{"symbol", rec.Symbol},
		[]string{"side", rec.Side},
		[]string{"status", status},
		[]string{"test", testTag},
	)
}

// PublishHeartbeat broadcasts a plaintext liveness ping.
func (b *Broadcaster) PublishHeartbeat(status string, balance float64, openPositions int) {
	if !b.enabled {
		return
	}

	raw, err := json.Marshal(nostr.HeartbeatPayload{
		Status:        status,
		Balance:       balance,
		OpenPositions: openPositions,
	})
	if err != nil {
		b.logger.Error("Failed to encode heartbeat", zap.Error(err))
		return
	}

	ev := nostr.NewBotEvent(nostr.KindHeartbeat, string(raw), b.cfg.Sid,
		[]string{"op", "heartbeat"},
		[]string{"status", status},
	)
	b.send(ev)
}

// publish seals the payload for the platform and broadcasts it.
func (b *Broadcaster) publish(kind int, payload interface{}, tags ...[]string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to encode payload", zap.Int("kind", kind), zap.Error(err))
		return
	}
	sealed, err := b.codec.Seal(raw, b.cfg.PublicKey, b.cfg.PlatformSharedKey)
	if err != nil {
		b.logger.Error("Failed to seal payload", zap.Int("kind", kind), zap.Error(err))
		return
	}
	b.send(nostr.NewBotEvent(kind, sealed, b.cfg.Sid, tags...))
}

func (b *Broadcaster) send(ev nostr.Event) {
	ev.PubKey = b.cfg.PublicKey
	if err := ev.Finalize(b.secret); err != nil {
		b.logger.Error("Failed to finalize event", zap.Int("kind", ev.Kind), zap.Error(err))
		return
	}
	sent := b.bus.Publish(ev)
	b.logger.Debug("Broadcast event",
		zap.Int("kind", ev.Kind),
		zap.Int("relays", sent),
	)
}
