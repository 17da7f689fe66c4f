// Package relay bridges the trading core and the nostr signal network: the
// Listener turns incoming encrypted events into copy-trade signals, and the
// Broadcaster publishes the bot's own signals and execution reports.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/nostr"
	"hyperliquid-trade-bot-go/internal/trader"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventBus is the relay transport the listener and broadcaster run on.
type EventBus interface {
	Subscribe(ctx context.Context, kinds []int, out chan<- nostr.Event)
	Publish(ev nostr.Event) int
	Close()
}

// stopTimeout bounds how long Stop waits for the worker to drain.
const stopTimeout = 1500 * time.Millisecond

// eventBuffer is the bound on queued relay events awaiting decryption.
const eventBuffer = 64

// copySignalPayload is the decrypted content of an incoming trade signal.
type copySignalPayload struct {
	Symbol string  `json:"symbol"`
	Signal string  `json:"signal"`
	Price  float64 `json:"price"`
}

// Listener subscribes to trade-signal events, decrypts and validates them,
// and forwards them as copy-trade signals on a bounded channel. When the
// consumer falls behind, the newest event is dropped rather than blocking
// the relay read path.
type Listener struct {
	logger  *zap.Logger
	cfg     config.Nostr
	copyCfg config.CopyTrade
	bus     EventBus
	codec   *nostr.Codec

	out chan trader.CopySignalEvent

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener creates a Listener. The bus is not dialed until Start. The
// copy-trade config supplies the queue bound and the symbol and sender
// allow-lists; an empty allow-list permits everything.
func NewListener(cfg config.Nostr, copyCfg config.CopyTrade, bus EventBus, logger *zap.Logger) *Listener {
	queueSize := copyCfg.QueueSize
	if queueSize <= 0 {
		queueSize = eventBuffer
	}
	return &Listener{
		logger: logger.Named("copytrade"),
		cfg:    cfg,
		copyCfg: copyCfg,
		bus:    bus,
		out:    make(chan trader.CopySignalEvent, queueSize),
	}
}

// Signals is the channel the trading engine drains.
func (l *Listener) Signals() <-chan trader.CopySignalEvent {
	return l.out
}

// Start subscribes to the configured relays and launches the worker. It is
// idempotent, and a listener without credentials or with copy trading
// disabled stays dormant.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}
	if !l.copyCfg.Enabled {
		l.logger.Info("Copy trading disabled, listener not started")
		return nil
	}
	if l.cfg.SecretKey == "" || l.cfg.PublicKey == "" || l.cfg.PlatformSharedKey == "" {
		l.logger.Warn("Nostr credentials not configured, copy-trade listener disabled")
		return nil
	}

	codec, err := nostr.NewCodec(l.cfg.SecretKey, l.cfg.PlatformSharedKey)
	if err != nil {
		return err
	}
	l.codec = codec

	kinds := l.cfg.ListenKinds
	if len(kinds) == 0 {
		kinds = []int{nostr.KindTradeSignal}
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	events := make(chan nostr.Event, eventBuffer)
	l.bus.Subscribe(ctx, kinds, events)
	go l.worker(ctx, kinds, events)

	l.started = true
	l.logger.Info("Copy-trade listener started",
		zap.Ints("kinds", kinds),
		zap.Strings("relays", l.cfg.Relays),
	)
	return nil
}

// worker decrypts and validates incoming events. Anything that fails wire
// validation is dropped at debug level so a noisy relay cannot spam the log.
func (l *Listener) worker(ctx context.Context, kinds []int, events <-chan nostr.Event) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			l.handle(kinds, ev)
		}
	}
}

func (l *Listener) handle(kinds []int, ev nostr.Event) {
	match := false
	for _, k := range kinds {
		if ev.Kind == k {
			match = true
			break
		}
	}
	if !match {
		return
	}
	if ev.PubKey == l.cfg.PublicKey {
		return // our own broadcast echoed back
	}

	plaintext, err := l.codec.Open(ev.Content, l.cfg.PlatformSharedKey, l.cfg.PublicKey)
	if err != nil {
		l.logger.Debug("Failed to decrypt signal", zap.String("sender", ev.PubKey), zap.Error(err))
		return
	}

	var payload copySignalPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		l.logger.Debug("Ignoring malformed signal payload", zap.Error(err))
		return
	}

	kind := trader.SignalKind(payload.Signal)
	if kind != trader.SignalBuy && kind != trader.SignalSell {
		l.logger.Debug("Ignoring non-actionable signal", zap.String("signal", payload.Signal))
		return
	}
	if payload.Price <= 0 {
		l.logger.Debug("Ignoring signal with non-positive price", zap.String("symbol", payload.Symbol))
		return
	}
	if !allowed(l.copyCfg.Symbols, payload.Symbol) {
		l.logger.Debug("Ignoring signal for symbol outside allow-list", zap.String("symbol", payload.Symbol))
		return
	}
	if !allowed(l.copyCfg.FollowPubkeys, ev.PubKey) {
		l.logger.Debug("Ignoring signal from unauthorized sender", zap.String("sender", ev.PubKey))
		return
	}

	sig := trader.CopySignalEvent{
		SenderPubkey: ev.PubKey,
		Symbol:       payload.Symbol,
		Kind:         kind,
		Price:        decimal.NewFromFloat(payload.Price),
	}

	select {
	case l.out <- sig:
	default:
		l.logger.Warn("Copy-trade queue full, dropping signal",
			zap.String("symbol", sig.Symbol),
			zap.String("sender", sig.SenderPubkey),
		)
	}
}

// allowed reports whether v is on the list; an empty list permits everything.
func allowed(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Stop cancels the worker and waits briefly for it to exit. Calling Stop on
// a listener that never started is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return
	}
	l.cancel()

	select {
	case <-l.done:
	case <-time.After(stopTimeout):
		l.logger.Warn("Copy-trade worker did not stop in time")
	}
	l.started = false
}
