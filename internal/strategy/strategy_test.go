package strategy

import (
	"testing"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/trader"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.Trading{PositionSize: 0.1},
	}
}

// trendingCandles produces n candles whose close moves by step each bar.
func trendingCandles(n int, start, step float64) []hyperliquid.Candle {
	candles := make([]hyperliquid.Candle, n)
	price := start
	for i := range candles {
		candles[i] = hyperliquid.Candle{
			Open:  price,
			High:  price + 1,
			Low:   price - 1,
			Close: price,
		}
		price += step
	}
	return candles
}

func TestNew_KnownAndUnknownStrategies(t *testing.T) {
	for _, name := range []string{"momentum", "mean_reversion", "trend_following"} {
		s, err := New(name, testConfig(), zap.NewNop())
		assert.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := New("martingale", testConfig(), zap.NewNop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestMomentum_ShortSeriesHolds(t *testing.T) {
	s, _ := New("momentum", testConfig(), zap.NewNop())

	sig := s.Analyze(trendingCandles(10, 100, 1))

	assert.Equal(t, trader.SignalHold, sig.Kind)
	assert.Zero(t, sig.Strength)
}

func TestMomentum_OversoldProducesBuy(t *testing.T) {
	s, _ := New("momentum", testConfig(), zap.NewNop())

	// 60 bars of steady selling drives RSI to the floor.
	sig := s.Analyze(trendingCandles(60, 500, -2))

	assert.Equal(t, trader.SignalBuy, sig.Kind)
	assert.Greater(t, sig.Strength, 0.0)
	assert.True(t, sig.SizeFraction.IsPositive())
	if assert.NotNil(t, sig.DynamicStops) {
		assert.True(t, sig.DynamicStops.StopLossDistance.IsPositive())
		assert.True(t, sig.DynamicStops.TakeProfitDistance.GreaterThan(sig.DynamicStops.StopLossDistance))
	}
}

func TestMomentum_OverboughtProducesSell(t *testing.T) {
	s, _ := New("momentum", testConfig(), zap.NewNop())

	sig := s.Analyze(trendingCandles(60, 100, 2))

	assert.Equal(t, trader.SignalSell, sig.Kind)
	assert.Greater(t, sig.Strength, 0.0)
}

func TestMeanReversion_ShortSeriesHolds(t *testing.T) {
	s, _ := New("mean_reversion", testConfig(), zap.NewNop())

	sig := s.Analyze(trendingCandles(10, 100, 0))

	assert.Equal(t, trader.SignalHold, sig.Kind)
}

func TestMeanReversion_RangingMarketHolds(t *testing.T) {
	s, _ := New("mean_reversion", testConfig(), zap.NewNop())

	// Price oscillating inside the bands keeps RSI near 50: no signal.
	candles := make([]hyperliquid.Candle, 60)
	for i := range candles {
		price := 100.0
		if i%2 == 0 {
			price = 101.0
		}
		candles[i] = hyperliquid.Candle{Open: price, High: price + 1, Low: price - 1, Close: price}
	}

	sig := s.Analyze(candles)

	assert.Equal(t, trader.SignalHold, sig.Kind)
}

func TestTrendFollowing_ShortSeriesHolds(t *testing.T) {
	s, _ := New("trend_following", testConfig(), zap.NewNop())

	sig := s.Analyze(trendingCandles(150, 100, 1))

	assert.Equal(t, trader.SignalHold, sig.Kind)
}

func TestTrendFollowing_StrongUptrendProducesBuy(t *testing.T) {
	s, _ := New("trend_following", testConfig(), zap.NewNop())

	// 250 bars of persistent buying aligns all EMAs with a strong ADX.
	sig := s.Analyze(trendingCandles(250, 100, 2))

	assert.Equal(t, trader.SignalBuy, sig.Kind)
	assert.Equal(t, 0.9, sig.Strength)
}
