package hyperliquid

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"hyperliquid-trade-bot-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.hyperliquid.xyz"
	testnetBaseURL = "https://api.hyperliquid-testnet.xyz"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Position is one position as reported by the exchange clearinghouse. Size is
// always positive; the direction is carried by Side.
type Position struct {
	Symbol     string
	Side       string // "long" or "short"
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

// Candle is one OHLCV bar. Values are float64 because they feed indicator
// math, not order placement.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderResult is the response to a successful order placement or close.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        string
	FilledSize    decimal.Decimal
	AvgPrice      decimal.Decimal
}

// RestClientInterface defines the exchange operations the trading core
// depends on. The coordinator never retries these calls itself; transient
// failure handling lives inside the client.
type RestClientInterface interface {
	GetPositions() ([]Position, error)
	GetBalance() (decimal.Decimal, error)
	GetCandles(symbol, interval string, limit int) ([]Candle, error)
	PlaceOrder(symbol string, isBuy bool, size, price decimal.Decimal, orderType string) (*OrderResult, error)
	ClosePosition(symbol string, size decimal.Decimal) (*OrderResult, error)
}

// RestClient is a client for the Hyperliquid REST API.
type RestClient struct {
	client        *resty.Client
	apiKey        string
	secretKey     string
	walletAddress string
	logger        *zap.Logger
	limiter       *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Hyperliquid REST API client.
func NewRestClient(cfg *config.Exchange, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Hyperliquid Testnet")
	} else {
		url = baseURL
		logger.Info("Using Hyperliquid Production API")
	}

	client := resty.New().SetBaseURL(url)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:        client,
		apiKey:        cfg.ApiKey,
		secretKey:     cfg.SecretKey,
		walletAddress: cfg.WalletAddress,
		logger:        logger,
		limiter:       limiter,
	}
}

// sign creates a HMAC-SHA256 signature over the request body.
func (c *RestClient) sign(data []byte) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// info posts a query to the /info endpoint and unmarshals the response into out.
func (c *RestClient) info(body map[string]interface{}, out interface{}) error {
	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out)

	ctx := context.Background()
	if _, err := c.doRequest(ctx, "POST", "/info", req); err != nil {
		return err
	}
	return nil
}

// clearinghouseState mirrors the subset of the clearinghouse response the bot
// reads: open positions and the account value.
type clearinghouseState struct {
	AssetPositions []struct {
		Position struct {
			Coin    string `json:"coin"`
			Szi     string `json:"szi"`
			EntryPx string `json:"entryPx"`
		} `json:"position"`
	} `json:"assetPositions"`
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
}

// GetPositions fetches the open positions reported by the clearinghouse. The
// signed size (szi) is split into an absolute size and a side.
func (c *RestClient) GetPositions() ([]Position, error) {
	var state clearinghouseState
	err := c.info(map[string]interface{}{
		"type": "clearinghouseState",
		"user": c.walletAddress,
	}, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to get clearinghouse state: %w", err)
	}

	positions := make([]Position, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		size, err := decimal.NewFromString(ap.Position.Szi)
		if err != nil {
			c.logger.Warn("Skipping position with unparsable size",
				zap.String("coin", ap.Position.Coin),
				zap.String("szi", ap.Position.Szi))
			continue
		}
		if size.IsZero() {
			continue
		}
		entry, err := decimal.NewFromString(ap.Position.EntryPx)
		if err != nil {
			entry = decimal.Zero
		}

		side := "long"
		if size.IsNegative() {
			side = "short"
		}
		positions = append(positions, Position{
			Symbol:     ap.Position.Coin,
			Side:       side,
			Size:       size.Abs(),
			EntryPrice: entry,
		})
	}
	return positions, nil
}

// GetBalance fetches the account value from the clearinghouse margin summary.
func (c *RestClient) GetBalance() (decimal.Decimal, error) {
	var state clearinghouseState
	err := c.info(map[string]interface{}{
		"type": "clearinghouseState",
		"user": c.walletAddress,
	}, &state)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account balance: %w", err)
	}

	balance, err := decimal.NewFromString(state.MarginSummary.AccountValue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse account value %q: %w", state.MarginSummary.AccountValue, err)
	}
	return balance, nil
}

// rawCandle is the wire format of one candle snapshot entry.
type rawCandle struct {
	T int64  `json:"t"`
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
}

// GetCandles fetches up to limit most recent OHLCV bars for the symbol.
func (c *RestClient) GetCandles(symbol, interval string, limit int) ([]Candle, error) {
	end := time.Now()
	dur, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}
	start := end.Add(-dur * time.Duration(limit))

	var raw []rawCandle
	err = c.info(map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      symbol,
			"interval":  interval,
			"startTime": start.UnixMilli(),
			"endTime":   end.UnixMilli(),
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, rc := range raw {
		open, err1 := strconv.ParseFloat(rc.O, 64)
		high, err2 := strconv.ParseFloat(rc.H, 64)
		low, err3 := strconv.ParseFloat(rc.L, 64)
		cls, err4 := strconv.ParseFloat(rc.C, 64)
		vol, err5 := strconv.ParseFloat(rc.V, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			c.logger.Warn("Skipping unparsable candle", zap.Int64("t", rc.T))
			continue
		}
		candles = append(candles, Candle{
			Timestamp: rc.T,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    vol,
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// orderRequest is the body sent to the /exchange endpoint.
type orderRequest struct {
	Symbol        string `json:"symbol"`
	IsBuy         bool   `json:"is_buy"`
	Size          string `json:"size"`
	Price         string `json:"price,omitempty"`
	OrderType     string `json:"order_type"`
	ReduceOnly    bool   `json:"reduce_only"`
	ClientOrderID string `json:"cloid"`
	Nonce         int64  `json:"nonce"`
}

// orderResponse is the exchange's acknowledgement of an order.
type orderResponse struct {
	Status string `json:"status"`
	Data   struct {
		OrderID  string `json:"oid"`
		Filled   string `json:"filled"`
		AvgPrice string `json:"avgPx"`
	} `json:"data"`
}

// submitOrder signs and posts one order to the exchange endpoint.
func (c *RestClient) submitOrder(order orderRequest) (*OrderResult, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	var result orderResponse
	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-HL-APIKEY", c.apiKey).
		SetHeader("X-HL-SIGNATURE", c.sign(body)).
		SetBody(body).
		SetResult(&result)

	ctx := context.Background()
	if _, err := c.doRequest(ctx, "POST", "/exchange", req); err != nil {
		c.logger.Error("Failed to submit order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
		)
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}

	filled, _ := decimal.NewFromString(result.Data.Filled)
	avgPx, _ := decimal.NewFromString(result.Data.AvgPrice)

	res := &OrderResult{
		OrderID:       result.Data.OrderID,
		ClientOrderID: order.ClientOrderID,
		Status:        result.Status,
		FilledSize:    filled,
		AvgPrice:      avgPx,
	}
	c.logger.Info("Successfully submitted order",
		zap.String("symbol", order.Symbol),
		zap.Bool("is_buy", order.IsBuy),
		zap.String("size", order.Size),
		zap.String("status", res.Status),
	)
	return res, nil
}

// PlaceOrder places a new order for the given symbol.
func (c *RestClient) PlaceOrder(symbol string, isBuy bool, size, price decimal.Decimal, orderType string) (*OrderResult, error) {
	return c.submitOrder(orderRequest{
		Symbol:        symbol,
		IsBuy:         isBuy,
		Size:          size.String(),
		Price:         price.String(),
		OrderType:     orderType,
		ClientOrderID: uuid.NewString(),
		Nonce:         time.Now().UnixMilli(),
	})
}

// ClosePosition submits a reduce-only market order for the full tracked size.
// The buy/sell direction is resolved by the exchange from the open position.
func (c *RestClient) ClosePosition(symbol string, size decimal.Decimal) (*OrderResult, error) {
	return c.submitOrder(orderRequest{
		Symbol:        symbol,
		Size:          size.String(),
		OrderType:     OrderTypeMarket,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
		Nonce:         time.Now().UnixMilli(),
	})
}

// intervalDuration converts a candle interval like "15m" or "1h" to a duration.
func intervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}
	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}
}
