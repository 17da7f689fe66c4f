// Package settlement reports executed trades to the relayer's settlement API.
// Reporting is best-effort: a failed or non-2xx response is logged and never
// interrupts trading.
package settlement

import (
	"time"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// recordRequest is the body of POST /api/trades/record.
type recordRequest struct {
	BotPubkey      string  `json:"bot_pubkey"`
	FollowerPubkey string  `json:"follower_pubkey,omitempty"`
	Role           string  `json:"role"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Size           float64 `json:"size"`
	Price          float64 `json:"price"`
	TxHash         string  `json:"tx_hash,omitempty"`
}

// Reporter posts trade records to the relayer.
type Reporter struct {
	client    *resty.Client
	token     string
	botPubkey string
	enabled   bool
	logger    *zap.Logger
}

// NewReporter creates a Reporter. When no API URL is configured the reporter
// is disabled and Report becomes a no-op.
func NewReporter(cfg config.Settlement, botPubkey string, logger *zap.Logger) *Reporter {
	r := &Reporter{
		token:     cfg.Token,
		botPubkey: botPubkey,
		enabled:   cfg.ApiURL != "",
		logger:    logger.Named("settlement"),
	}
	if r.enabled {
		r.client = resty.New().
			SetBaseURL(cfg.ApiURL).
			SetTimeout(10 * time.Second)
	} else {
		logger.Info("Settlement reporting disabled: no API URL configured")
	}
	return r
}

// Report posts one trade record. The role is "bot" for strategy-driven trades
// and "follower" for mirrored copy trades.
func (r *Reporter) Report(rec models.TradeRecord, txHash string) {
	if !r.enabled {
		return
	}

	role := "bot"
	if rec.Action == models.ActionCopyOpen {
		role = "follower"
	}
	price := rec.EntryPrice
	if rec.Action == models.ActionClose {
		price = rec.ExitPrice
	}

	body := recordRequest{
		BotPubkey:      r.botPubkey,
		FollowerPubkey: rec.SourcePubkey,
		Role:           role,
		Symbol:         rec.Symbol,
		Side:           rec.Side,
		Size:           rec.Size,
		Price:          price,
		TxHash:         txHash,
	}

	req := r.client.R().SetBody(body)
	if r.token != "" {
		req.SetAuthToken(r.token)
	}

	resp, err := req.Post("/api/trades/record")
	if err != nil {
		r.logger.Warn("Failed to report trade record", zap.Error(err))
		return
	}
	if resp.IsError() {
		r.logger.Warn("Settlement API rejected trade record",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
	}
}
