package trader

import (
	"fmt"
	"sync"
	"time"

	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/models"
	"hyperliquid-trade-bot-go/internal/notify"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// symbolState is the per-symbol lifecycle tracked by the coordinator.
type symbolState int

const (
	stateFlat symbolState = iota
	stateOpening
	stateOpen
	stateClosing
)

func (s symbolState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	default:
		return "flat"
	}
}

// TradeGate is the strategy-level gating collaborator: cooldowns, daily trade
// caps and daily loss caps live behind it.
type TradeGate interface {
	ShouldTrade() bool
	MarkTrade(now time.Time)
	RecordPnl(pnlPercent float64)
}

// SignalPublisher broadcasts execution reports to the signal channel.
type SignalPublisher interface {
	PublishExecutionReport(rec models.TradeRecord, status string)
}

// SettlementReporter posts trade records to the relayer settlement API.
type SettlementReporter interface {
	Report(rec models.TradeRecord, txHash string)
}

// CopyPolicy is the fixed sizing and allow-list policy applied to mirrored
// third-party signals. Copy entries bypass strategy gating entirely.
type CopyPolicy struct {
	Enabled        bool
	AllowedSymbols []string
	FollowPubkeys  []string
	SizePercent    decimal.Decimal
	MinOrderValue  decimal.Decimal
}

// AllowsSymbol reports whether the symbol passes the allow-list. An empty
// list allows everything.
func (p CopyPolicy) AllowsSymbol(symbol string) bool {
	if len(p.AllowedSymbols) == 0 {
		return true
	}
	for _, s := range p.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// AllowsSender reports whether the sender pubkey passes the allow-list.
func (p CopyPolicy) AllowsSender(pubkey string) bool {
	if len(p.FollowPubkeys) == 0 {
		return true
	}
	for _, k := range p.FollowPubkeys {
		if k == pubkey {
			return true
		}
	}
	return false
}

// CoordinatorConfig holds the coordinator's immutable runtime settings.
type CoordinatorConfig struct {
	DryRun        bool
	MinOrderValue decimal.Decimal
	Risk          RiskConfig
	Copy          CopyPolicy
}

// Collaborators are the external surfaces the coordinator reports to. Any
// field may be nil except Notifier, which defaults to a NopNotifier.
type Collaborators struct {
	Gate       TradeGate
	Notifier   notify.Notifier
	Publisher  SignalPublisher
	Settlement SettlementReporter
}

// Coordinator is the single owner of trading decisions. It orchestrates
// reconciliation, risk evaluation, order execution and position-store
// mutation. EvaluateCycle (market loop) and HandleCopySignal (relay) are its
// only entry points; a mutex serializes them so their get-decide-mutate
// sequences on the position store never interleave.
type Coordinator struct {
	logger  *zap.Logger
	client  hyperliquid.RestClientInterface
	cfg     CoordinatorConfig
	store   *PositionStore
	journal *Journal
	collab  Collaborators

	mu     sync.Mutex
	states map[string]symbolState

	now func() time.Time
}

// NewCoordinator creates a Coordinator with an empty position store and journal.
func NewCoordinator(logger *zap.Logger, client hyperliquid.RestClientInterface, cfg CoordinatorConfig, collab Collaborators) *Coordinator {
	if collab.Notifier == nil {
		collab.Notifier = notify.NopNotifier{}
	}
	return &Coordinator{
		logger:  logger.Named("coordinator"),
		client:  client,
		cfg:     cfg,
		store:   NewPositionStore(),
		journal: NewJournal(),
		collab:  collab,
		states:  make(map[string]symbolState),
		now:     time.Now,
	}
}

// Store exposes the position store for read-only status reporting.
func (c *Coordinator) Store() *PositionStore {
	return c.store
}

// Journal exposes the trade journal for status reporting and shutdown flush.
func (c *Coordinator) Journal() *Journal {
	return c.journal
}

func (c *Coordinator) setState(symbol string, s symbolState) {
	prev := c.states[symbol]
	if prev == s {
		return
	}
	c.states[symbol] = s
	c.logger.Debug("Symbol state changed",
		zap.String("symbol", symbol),
		zap.Stringer("from", prev),
		zap.Stringer("to", s),
	)
}

// State returns the lifecycle state name for a symbol.
func (c *Coordinator) State(symbol string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[symbol].String()
}

// Reconcile overwrites the local position record for symbol with the
// exchange's reported state.
func (c *Coordinator) Reconcile(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked(symbol)
}

func (c *Coordinator) reconcileLocked(symbol string) {
	positions, err := c.client.GetPositions()
	if err != nil {
		c.logger.Warn("Failed to sync positions from exchange", zap.Error(err))
		return
	}

	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		pos, ok := c.store.ReconcileFromExchange(symbol, p.Size, p.EntryPrice, Side(p.Side))
		if ok {
			c.setState(symbol, stateOpen)
			c.logger.Info("Synchronized position",
				zap.String("symbol", symbol),
				zap.String("side", string(pos.Side)),
				zap.String("size", pos.Size.String()),
				zap.String("entry_price", pos.EntryPrice.String()),
			)
		}
		return
	}

	// Not reported by the exchange: the exchange wins over local bookkeeping.
	if _, tracked := c.store.Get(symbol); tracked {
		c.store.ReconcileFromExchange(symbol, decimal.Zero, decimal.Zero, SideLong)
		c.setState(symbol, stateFlat)
		c.logger.Info("Cleared position tracker", zap.String("symbol", symbol))
	}
}

// EvaluateCycle runs one evaluation cycle for symbol: reconcile against the
// exchange, apply the risk-exit policy to any open position, then consider a
// new entry for a non-hold signal. Collaborator failures are logged and
// reported; they never abort the loop.
func (c *Coordinator) EvaluateCycle(symbol string, price decimal.Decimal, sig Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconcileLocked(symbol)

	if pos, ok := c.store.Get(symbol); ok {
		c.checkRiskLocked(symbol, pos, price, sig)
	}

	if sig.Kind == SignalHold {
		return nil
	}
	return c.tryEntryLocked(symbol, price, sig)
}

// checkRiskLocked evaluates the layered exits and closes the position when
// one triggers. A failed close keeps the position tracked for the next cycle.
func (c *Coordinator) checkRiskLocked(symbol string, pos Position, price decimal.Decimal, sig Signal) {
	decision := EvaluateExits(&pos, price, sig, c.cfg.Risk, c.now())
	c.store.Upsert(symbol, pos) // persist the high-water mark

	if decision == nil {
		return
	}

	reason := fmt.Sprintf("%s (%s)", decision.Reason, decision.Detail)
	c.logger.Warn("Triggered close",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.String("pnl_percent", decision.PnlPercent.Mul(hundred).StringFixed(2)),
	)

	c.setState(symbol, stateClosing)
	res, err := c.closeLocked(symbol, pos)
	if err != nil {
		c.logger.Error("Close failed, keeping position for next cycle", zap.Error(err))
		c.collab.Notifier.NotifyError(fmt.Sprintf("Close failed (%s): %v", symbol, err))
		c.setState(symbol, stateOpen)
		return
	}
	c.setState(symbol, stateFlat)

	c.recordClose(symbol, pos, price, decision.PnlPercent, reason, res)
}

// closeLocked issues the close order, or simulates it in dry-run mode, and
// removes the position from the store on success.
func (c *Coordinator) closeLocked(symbol string, pos Position) (*hyperliquid.OrderResult, error) {
	if c.cfg.DryRun {
		c.logger.Warn("[Dry Run] Simulating position close",
			zap.String("symbol", symbol),
			zap.String("size", pos.Size.String()),
		)
		c.store.Remove(symbol)
		return nil, nil
	}

	res, err := c.client.ClosePosition(symbol, pos.Size)
	if err != nil {
		return nil, fmt.Errorf("could not close %s position: %w", symbol, err)
	}
	c.store.Remove(symbol)
	return res, nil
}

// recordClose journals a close, feeds the gate's daily pnl, and fans out to
// the notification, broadcast and settlement collaborators.
func (c *Coordinator) recordClose(symbol string, pos Position, price, pnlPercent decimal.Decimal, reason string, res *hyperliquid.OrderResult) {
	pnl := price.Sub(pos.EntryPrice).Mul(pos.Size)
	if pos.Side == SideShort {
		pnl = pnl.Neg()
	}

	rec := models.TradeRecord{
		Timestamp:    c.now(),
		Symbol:       symbol,
		Action:       models.ActionClose,
		Side:         string(pos.Side),
		EntryPrice:   pos.EntryPrice.InexactFloat64(),
		ExitPrice:    price.InexactFloat64(),
		Size:         pos.Size.InexactFloat64(),
		Pnl:          pnl.InexactFloat64(),
		PnlPercent:   pnlPercent.InexactFloat64(),
		Reason:       reason,
		HoldingHours: pos.HoldingHours(c.now()),
		IsSimulation: c.cfg.DryRun,
	}
	if res != nil {
		rec.OrderID = res.OrderID
	}
	c.journal.Append(rec)

	if c.collab.Gate != nil {
		c.collab.Gate.RecordPnl(pnlPercent.InexactFloat64())
	}
	c.collab.Notifier.NotifyPositionClosed(symbol, pos.EntryPrice, price, pnl, pnlPercent, reason)
	if c.collab.Publisher != nil {
		c.collab.Publisher.PublishExecutionReport(rec, orderStatus(res, c.cfg.DryRun))
	}
	if c.collab.Settlement != nil {
		c.collab.Settlement.Report(rec, orderID(res))
	}
}

// tryEntryLocked considers opening a position for a buy/sell signal. A
// position on the opposite side is closed first, and the close must succeed
// before any entry order is issued.
func (c *Coordinator) tryEntryLocked(symbol string, price decimal.Decimal, sig Signal) error {
	if c.collab.Gate != nil && !c.collab.Gate.ShouldTrade() {
		c.logger.Warn("Risk control: trading paused", zap.String("symbol", symbol))
		return nil
	}

	side := sig.Kind.Side()
	if pos, ok := c.store.Get(symbol); ok {
		if pos.Side == side {
			c.logger.Info("Already holding position in signal direction, skipping",
				zap.String("symbol", symbol),
				zap.String("side", string(side)),
			)
			return nil
		}

		// Reversal: close synchronously; entry only proceeds once the close
		// is confirmed (or accepted in dry-run mode).
		c.logger.Info("Signal reversed, closing current position first",
			zap.String("symbol", symbol),
			zap.String("current_side", string(pos.Side)),
		)
		c.setState(symbol, stateClosing)
		res, err := c.closeLocked(symbol, pos)
		if err != nil {
			c.collab.Notifier.NotifyError(fmt.Sprintf("Reversal close failed (%s): %v", symbol, err))
			c.setState(symbol, stateOpen)
			return err
		}
		c.setState(symbol, stateFlat)
		c.recordClose(symbol, pos, price, pos.PnlPercent(price), fmt.Sprintf("Reversed signal: %s", sig.Kind), res)
	}

	return c.openLocked(symbol, side, price, sig.SizeFraction, models.ActionOpen, "")
}

// openLocked sizes and issues an entry order. A failed entry leaves no
// position behind.
func (c *Coordinator) openLocked(symbol string, side Side, price, sizeFraction decimal.Decimal, action, sourcePubkey string) error {
	balance, err := c.client.GetBalance()
	if err != nil {
		c.logger.Error("Failed to fetch account balance", zap.Error(err))
		c.collab.Notifier.NotifyError(fmt.Sprintf("Balance query failed: %v", err))
		return err
	}

	minValue := c.cfg.MinOrderValue
	if action == models.ActionCopyOpen {
		minValue = c.cfg.Copy.MinOrderValue
	}
	positionValue := sizeFraction.Mul(balance)
	if positionValue.LessThan(minValue) {
		positionValue = minValue
	}
	if !price.IsPositive() {
		return fmt.Errorf("invalid entry price %s for %s", price, symbol)
	}
	size := positionValue.Div(price)
	if !size.IsPositive() {
		c.logger.Debug("Computed order size is not positive, skipping entry",
			zap.String("symbol", symbol))
		return nil
	}

	c.logger.Info("Calculated entry order",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("value", positionValue.StringFixed(2)),
		zap.String("price", price.String()),
		zap.String("size", size.String()),
	)

	c.setState(symbol, stateOpening)

	var res *hyperliquid.OrderResult
	if c.cfg.DryRun {
		c.logger.Warn("[Dry Run] Simulating entry order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
		)
	} else {
		res, err = c.client.PlaceOrder(symbol, side == SideLong, size, price, hyperliquid.OrderTypeLimit)
		if err != nil {
			c.logger.Error("Entry order failed", zap.Error(err))
			c.collab.Notifier.NotifyError(fmt.Sprintf("Trade execution failed (%s): %v", symbol, err))
			c.setState(symbol, stateFlat)
			return err
		}
	}

	// Strategy entries are tracked immediately; mirrored copy entries join
	// risk tracking only if a later reconciliation reports them.
	if action == models.ActionOpen {
		c.store.Upsert(symbol, Position{
			Symbol:     symbol,
			Side:       side,
			EntryPrice: price,
			Size:       size,
			EntryTime:  c.now(),
		})
		c.setState(symbol, stateOpen)
	} else {
		c.setState(symbol, stateFlat)
	}

	rec := models.TradeRecord{
		Timestamp:    c.now(),
		Symbol:       symbol,
		Action:       action,
		Side:         string(side),
		EntryPrice:   price.InexactFloat64(),
		Size:         size.InexactFloat64(),
		SourcePubkey: sourcePubkey,
		IsSimulation: c.cfg.DryRun,
	}
	if res != nil {
		rec.OrderID = res.OrderID
	}
	c.journal.Append(rec)

	if action == models.ActionOpen && c.collab.Gate != nil {
		c.collab.Gate.MarkTrade(c.now())
	}
	kind := SignalSell
	if side == SideLong {
		kind = SignalBuy
	}
	c.collab.Notifier.NotifyTradeExecuted(symbol, string(kind), size, price, c.cfg.DryRun)
	if c.collab.Publisher != nil {
		c.collab.Publisher.PublishExecutionReport(rec, orderStatus(res, c.cfg.DryRun))
	}
	if c.collab.Settlement != nil {
		c.collab.Settlement.Report(rec, orderID(res))
	}
	return nil
}

// HandleCopySignal mirrors a validated third-party trade intent as a local
// entry order. It applies only the copy allow-lists and the fixed sizing
// policy; strategy gating and the exit chain do not apply.
func (c *Coordinator) HandleCopySignal(ev CopySignalEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Copy.Enabled {
		return
	}
	if ev.Kind != SignalBuy && ev.Kind != SignalSell {
		c.logger.Debug("Copy-trade: invalid signal kind", zap.String("kind", string(ev.Kind)))
		return
	}
	if !ev.Price.IsPositive() {
		c.logger.Debug("Copy-trade: non-positive price", zap.String("symbol", ev.Symbol))
		return
	}
	if !c.cfg.Copy.AllowsSymbol(ev.Symbol) {
		c.logger.Debug("Copy-trade: symbol not allowed", zap.String("symbol", ev.Symbol))
		return
	}
	if !c.cfg.Copy.AllowsSender(ev.SenderPubkey) {
		c.logger.Debug("Copy-trade: sender not allowed", zap.String("sender", ev.SenderPubkey))
		return
	}

	c.logger.Info("Mirroring copy-trade signal",
		zap.String("sender", shortKey(ev.SenderPubkey)),
		zap.String("kind", string(ev.Kind)),
		zap.String("symbol", ev.Symbol),
		zap.String("price", ev.Price.String()),
	)

	// Failures are non-fatal: the order attempt is single-shot and the next
	// signal stands on its own.
	if err := c.openLocked(ev.Symbol, ev.Kind.Side(), ev.Price, c.cfg.Copy.SizePercent, models.ActionCopyOpen, ev.SenderPubkey); err != nil {
		c.logger.Warn("Copy-trade order failed", zap.Error(err))
	}
}

func orderStatus(res *hyperliquid.OrderResult, dryRun bool) string {
	if dryRun {
		return "simulated"
	}
	if res != nil && res.Status != "" {
		return res.Status
	}
	return "submitted"
}

func orderID(res *hyperliquid.OrderResult) string {
	if res == nil {
		return ""
	}
	return res.OrderID
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
