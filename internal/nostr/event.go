// Package nostr implements the event model, payload encryption and relay
// transport for the copy-trade signal channel. Event kinds and tags are kept
// stable so the platform side can parse them without guessing.
package nostr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Kind reservations for trading bot events.
const (
	KindTradeSignal     = 30931
	KindCopyTradeIntent = 30932
	KindExecutionReport = 30933
	KindHeartbeat       = 30934
)

const Version = "v1"

// Event is a nostr event as carried on the wire.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Tag returns the first value of the named tag, or "".
func (e *Event) Tag(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// NewBotEvent builds an event carrying the common routing tags every bot
// event shares, plus any event-specific extras.
func NewBotEvent(kind int, content, sid string, extra ...[]string) Event {
	tags := [][]string{
		{"d", "subspace_op"},
		{"sid", sid},
		{"ver", Version},
	}
	tags = append(tags, extra...)
	return Event{
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
}

// Finalize computes the event ID over the canonical serialization and signs
// it with the given secret key. It must be called after PubKey is set.
func (e *Event) Finalize(secretKey []byte) error {
	canonical := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	e.ID = hex.EncodeToString(sum[:])

	mac := hmac.New(sha256.New, secretKey)
	mac.Write(sum[:])
	e.Sig = hex.EncodeToString(mac.Sum(nil))
	return nil
}

// TradeSignalPayload is the encrypted body of a trade signal event.
type TradeSignalPayload struct {
	Symbol     string             `json:"symbol"`
	Signal     string             `json:"signal"`
	Strength   float64            `json:"strength"`
	Price      float64            `json:"price"`
	Size       float64            `json:"size"`
	Strategy   string             `json:"strategy"`
	TestMode   bool               `json:"test_mode"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// ExecutionReportPayload is the encrypted body of an execution report event.
type ExecutionReportPayload struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	Price      float64 `json:"price"`
	Status     string  `json:"status"`
	TxHash     string  `json:"tx_hash,omitempty"`
	Pnl        float64 `json:"pnl,omitempty"`
	PnlPercent float64 `json:"pnl_percent,omitempty"`
	TestMode   bool    `json:"test_mode"`
}

// HeartbeatPayload is the plaintext body of a heartbeat event.
type HeartbeatPayload struct {
	Status        string  `json:"status"`
	Balance       float64 `json:"balance,omitempty"`
	OpenPositions int     `json:"open_positions,omitempty"`
}
