package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade record actions.
const (
	ActionOpen     = "open"
	ActionClose    = "close"
	ActionCopyOpen = "copy_open"
)

// TradeRecord is one entry of the append-only trade journal. Records are
// collected in memory for the lifetime of the process and flushed to the
// database on shutdown.
type TradeRecord struct {
	gorm.Model
	Timestamp    time.Time `json:"timestamp"`
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"` // "open", "close" or "copy_open"
	Side         string    `json:"side"`   // "long" or "short"
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price,omitempty"`
	Size         float64   `json:"size"`
	Pnl          float64   `json:"pnl,omitempty"`
	PnlPercent   float64   `json:"pnl_percent,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	HoldingHours float64   `json:"holding_hours,omitempty"`
	SourcePubkey string    `json:"source_pubkey,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	IsSimulation bool      `json:"is_simulation"`
}

// TradeStats summarizes the journal for shutdown reporting.
type TradeStats struct {
	TotalTrades   int     `json:"total_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	WinningTrades int     `json:"winning_trades"`
	TotalPnl      float64 `json:"total_pnl"`
	WinRate       float64 `json:"win_rate"`
}
