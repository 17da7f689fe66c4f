package hyperliquid

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:        client,
		apiKey:        "test_api_key",
		secretKey:     "test_secret_key",
		walletAddress: "0xwallet",
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetPositions(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := `{
			"assetPositions": [
				{"position": {"coin": "BTC", "szi": "0.5", "entryPx": "50000"}},
				{"position": {"coin": "ETH", "szi": "-2", "entryPx": "3000"}},
				{"position": {"coin": "SOL", "szi": "0", "entryPx": "150"}}
			],
			"marginSummary": {"accountValue": "12345.6"}
		}`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/info", r.URL.Path)

			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "clearinghouseState", body["type"])
			assert.Equal(t, "0xwallet", body["user"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		positions, err := rc.GetPositions()

		// Assert
		assert.NoError(t, err)
		// The zero-size SOL entry is skipped.
		assert.Len(t, positions, 2)
		assert.Equal(t, "BTC", positions[0].Symbol)
		assert.Equal(t, "long", positions[0].Side)
		assert.True(t, positions[0].Size.Equal(decimal.NewFromFloat(0.5)))
		// Negative szi becomes an absolute size on the short side.
		assert.Equal(t, "short", positions[1].Side)
		assert.True(t, positions[1].Size.Equal(decimal.NewFromInt(2)))
		assert.True(t, positions[1].EntryPrice.Equal(decimal.NewFromInt(3000)))
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error": "unknown user"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		positions, err := rc.GetPositions()

		assert.Error(t, err)
		assert.Nil(t, positions)
	})
}

func TestGetBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assetPositions": [], "marginSummary": {"accountValue": "999.25"}}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	balance, err := rc.GetBalance()

	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(999.25)))
}

func TestGetCandles(t *testing.T) {
	mockResponse := `[
		{"t": 1700000000000, "o": "100", "h": "110", "l": "95", "c": "105", "v": "1200"},
		{"t": 1700003600000, "o": "105", "h": "112", "l": "104", "c": "111", "v": "800"}
	]`
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mockResponse))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	candles, err := rc.GetCandles("BTC", "1h", 100)

	assert.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 111.0, candles[1].Close)
	assert.Equal(t, int64(1700000000000), candles[0].Timestamp)
}

func TestGetCandles_InvalidInterval(t *testing.T) {
	rc, server := setupTestServer(http.NotFoundHandler())
	defer server.Close()

	_, err := rc.GetCandles("BTC", "fortnight", 100)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid candle interval")
}

func TestPlaceOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchange", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-HL-APIKEY"))
		assert.NotEmpty(t, r.Header.Get("X-HL-SIGNATURE"))

		var order map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "BTC", order["symbol"])
		assert.Equal(t, true, order["is_buy"])
		assert.Equal(t, "0.5", order["size"])
		assert.NotEmpty(t, order["cloid"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "filled", "data": {"oid": "12345", "filled": "0.5", "avgPx": "50010"}}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	res, err := rc.PlaceOrder("BTC", true, decimal.NewFromFloat(0.5), decimal.NewFromInt(50000), OrderTypeLimit)

	assert.NoError(t, err)
	assert.Equal(t, "12345", res.OrderID)
	assert.Equal(t, "filled", res.Status)
	assert.True(t, res.FilledSize.Equal(decimal.NewFromFloat(0.5)))
	assert.NotEmpty(t, res.ClientOrderID)
}

func TestClosePosition_IsReduceOnlyMarket(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var order map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, OrderTypeMarket, order["order_type"])
		assert.Equal(t, true, order["reduce_only"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "filled", "data": {"oid": "9", "filled": "1", "avgPx": "100"}}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	res, err := rc.ClosePosition("BTC", decimal.NewFromInt(1))

	assert.NoError(t, err)
	assert.Equal(t, "9", res.OrderID)
}

func TestDoRequest_RetriesOnServerError(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assetPositions": [], "marginSummary": {"accountValue": "1"}}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	start := time.Now()
	balance, err := rc.GetBalance()

	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 2, attempts)
	// The first retry backs off for about a second.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestDoRequest_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad request"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	_, err := rc.GetBalance()

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		interval string
		want     time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := intervalDuration(tc.interval)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"", "h", "0m", "-5m", "10x"} {
		_, err := intervalDuration(bad)
		assert.Error(t, err, bad)
	}
}
