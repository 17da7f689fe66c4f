package strategy

import (
	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/trader"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	trendMinCandles = 200
	emaFastPeriod   = 20
	emaMidPeriod    = 50
	emaSlowPeriod   = 200
	adxPeriod       = 14
	adxThreshold    = 30.0
)

// TrendFollowing only trades when three EMAs align with a strong ADX reading
// and MACD confirms. It fires rarely and with high conviction.
type TrendFollowing struct {
	logger       *zap.Logger
	positionSize decimal.Decimal
}

func newTrendFollowing(cfg *config.Config, logger *zap.Logger) trader.Strategy {
	return &TrendFollowing{
		logger:       logger.Named("trend_following"),
		positionSize: decimal.NewFromFloat(cfg.Trading.PositionSize),
	}
}

func (s *TrendFollowing) Name() string { return "trend_following" }

func (s *TrendFollowing) Analyze(candles []hyperliquid.Candle) trader.Signal {
	if len(candles) < trendMinCandles {
		return trader.Signal{Kind: trader.SignalHold}
	}

	close := closes(candles)
	high := highs(candles)
	low := lows(candles)

	emaFast := last(talib.Ema(close, emaFastPeriod))
	emaMid := last(talib.Ema(close, emaMidPeriod))
	emaSlow := last(talib.Ema(close, emaSlowPeriod))
	adx := last(talib.Adx(high, low, close, adxPeriod))
	diPlus := last(talib.PlusDI(high, low, close, adxPeriod))
	diMinus := last(talib.MinusDI(high, low, close, adxPeriod))
	macdLine, _, _ := talib.Macd(close, macdFast, macdSlow, macdSignal)
	macd := last(macdLine)
	price := last(close)

	kind := trader.SignalHold
	strength := 0.0

	switch {
	case emaFast > emaMid && emaMid > emaSlow &&
		adx > adxThreshold && diPlus > diMinus &&
		macd > 0 && price > emaFast:
		kind = trader.SignalBuy
		strength = 0.9
	case emaFast < emaMid && emaMid < emaSlow &&
		adx > adxThreshold && diMinus > diPlus &&
		macd < 0 && price < emaFast:
		kind = trader.SignalSell
		strength = 0.9
	}

	return trader.Signal{
		Kind:         kind,
		Strength:     strength,
		Price:        decimal.NewFromFloat(price),
		SizeFraction: s.positionSize.Mul(decimal.NewFromFloat(strength)),
		Indicators: map[string]float64{
			"ema_fast": emaFast,
			"ema_mid":  emaMid,
			"ema_slow": emaSlow,
			"adx":      adx,
			"macd":     macd,
		},
	}
}
