package trader

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open exposure to one symbol. HighWaterPnl is the running
// maximum pnl fraction observed while the position is open; it never
// decreases until the position is closed.
type Position struct {
	Symbol       string
	Side         Side
	EntryPrice   decimal.Decimal
	Size         decimal.Decimal
	EntryTime    time.Time
	HighWaterPnl decimal.Decimal
}

// PnlPercent returns the directional profit fraction at the given price:
// (price-entry)/entry for longs, negated for shorts.
func (p *Position) PnlPercent(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	pnl := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.Side == SideShort {
		pnl = pnl.Neg()
	}
	return pnl
}

// HoldingHours returns how long the position has been open, in hours.
func (p *Position) HoldingHours(now time.Time) float64 {
	return now.Sub(p.EntryTime).Hours()
}

// PositionStore is the authoritative in-memory record of open positions, one
// per symbol. Callers performing get-decide-mutate sequences must serialize
// themselves (the coordinator holds its own lock around them); the store's
// mutex only keeps individual operations safe against the relay worker.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]Position)}
}

// Get returns a copy of the position for symbol, if one is tracked.
func (s *PositionStore) Get(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[symbol]
	return pos, ok
}

// Upsert stores the position under its symbol, replacing any previous entry.
func (s *PositionStore) Upsert(symbol string, pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.Symbol = symbol
	s.positions[symbol] = pos
}

// Remove drops the tracked position for symbol, if any.
func (s *PositionStore) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
}

// Symbols returns the symbols with an open position.
func (s *PositionStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	return symbols
}

// Len returns the number of open positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// ReconcileFromExchange overwrites local bookkeeping with the exchange's
// reported state, which always wins. A non-positive reported size removes the
// entry even if no local close fired. When the side is unchanged, the entry
// time and high-water mark survive so trailing stops keep their history; a
// flipped side is a new position.
func (s *PositionStore) ReconcileFromExchange(symbol string, size, entryPrice decimal.Decimal, side Side) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !size.IsPositive() {
		delete(s.positions, symbol)
		return Position{}, false
	}

	pos, ok := s.positions[symbol]
	if !ok || pos.Side != side {
		pos = Position{
			Symbol:    symbol,
			Side:      side,
			EntryTime: time.Now(),
		}
	}
	pos.Size = size
	pos.EntryPrice = entryPrice
	s.positions[symbol] = pos
	return pos, true
}
