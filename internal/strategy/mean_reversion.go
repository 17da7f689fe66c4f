package strategy

import (
	"math"

	"hyperliquid-trade-bot-go/internal/config"
	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/trader"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	meanRevMinCandles = 30
	bollingerPeriod   = 20
	bollingerStd      = 2.0
)

// MeanReversion fades Bollinger Band breaches confirmed by RSI.
type MeanReversion struct {
	logger       *zap.Logger
	positionSize decimal.Decimal
}

func newMeanReversion(cfg *config.Config, logger *zap.Logger) trader.Strategy {
	return &MeanReversion{
		logger:       logger.Named("mean_reversion"),
		positionSize: decimal.NewFromFloat(cfg.Trading.PositionSize),
	}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Analyze(candles []hyperliquid.Candle) trader.Signal {
	if len(candles) < meanRevMinCandles {
		return trader.Signal{Kind: trader.SignalHold}
	}

	close := closes(candles)
	upperBand, middleBand, lowerBand := talib.BBands(close, bollingerPeriod, bollingerStd, bollingerStd, talib.SMA)
	rsi := last(talib.Rsi(close, rsiPeriod))

	price := last(close)
	upper := last(upperBand)
	middle := last(middleBand)
	lower := last(lowerBand)

	kind := trader.SignalHold
	strength := 0.0

	switch {
	case price <= lower && rsi < 40:
		kind = trader.SignalBuy
		if lower > 0 {
			strength = math.Min((lower-price)/lower*10, 1.0)
		}
	case price >= upper && rsi > 60:
		kind = trader.SignalSell
		if upper > 0 {
			strength = math.Min((price-upper)/upper*10, 1.0)
		}
	}

	return trader.Signal{
		Kind:         kind,
		Strength:     strength,
		Price:        decimal.NewFromFloat(price),
		SizeFraction: s.positionSize.Mul(decimal.NewFromFloat(strength)),
		Indicators: map[string]float64{
			"upper_band":  upper,
			"middle_band": middle,
			"lower_band":  lower,
			"rsi":         rsi,
		},
	}
}
