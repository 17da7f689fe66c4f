package trader

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the reverse side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// SignalKind is a strategy's directional recommendation for one cycle.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
)

// Side maps a buy/sell signal to the position side it would open.
func (k SignalKind) Side() Side {
	if k == SignalBuy {
		return SideLong
	}
	return SideShort
}

// DynamicStops carries strategy-computed stop distances in price units
// (typically ATR multiples). A non-positive distance means "not provided" and
// the fixed percentage from RiskConfig applies instead.
type DynamicStops struct {
	StopLossDistance   decimal.Decimal
	TakeProfitDistance decimal.Decimal
}

// Signal is the output of one strategy analysis cycle. It is transient and
// never persisted.
type Signal struct {
	Kind         SignalKind
	Strength     float64 // confidence in [0, 1]
	Price        decimal.Decimal
	SizeFraction decimal.Decimal // fraction of the account balance to commit
	Indicators   map[string]float64
	DynamicStops *DynamicStops
}

// CloseDecision is the outcome of a risk evaluation that requires closing a
// position. It is consumed exactly once by the coordinator.
type CloseDecision struct {
	Reason     string
	Detail     string
	PnlPercent decimal.Decimal
}

// CopySignalEvent is a validated third-party trade intent forwarded by the
// signal relay. Invalid or unauthorized payloads are dropped before this
// type is ever constructed.
type CopySignalEvent struct {
	SenderPubkey string
	Symbol       string
	Kind         SignalKind
	Price        decimal.Decimal
}
