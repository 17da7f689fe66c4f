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
	momentumMinCandles = 50
	rsiPeriod          = 14
	rsiOversold        = 30.0
	rsiOverbought      = 70.0
	macdFast           = 12
	macdSlow           = 26
	macdSignal         = 9
	atrPeriod          = 14

	// ATR multiples for the volatility-scaled exit distances.
	atrStopMultiple   = 2.0
	atrProfitMultiple = 3.0
)

// Momentum trades RSI extremes and MACD crossovers. It also attaches
// ATR-scaled stop distances to its signals so exits widen with volatility.
type Momentum struct {
	logger       *zap.Logger
	positionSize decimal.Decimal
}

func newMomentum(cfg *config.Config, logger *zap.Logger) trader.Strategy {
	return &Momentum{
		logger:       logger.Named("momentum"),
		positionSize: decimal.NewFromFloat(cfg.Trading.PositionSize),
	}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Analyze(candles []hyperliquid.Candle) trader.Signal {
	if len(candles) < momentumMinCandles {
		return trader.Signal{Kind: trader.SignalHold}
	}

	close := closes(candles)
	rsi := last(talib.Rsi(close, rsiPeriod))
	macdLine, signalLine, _ := talib.Macd(close, macdFast, macdSlow, macdSignal)
	macd := last(macdLine)
	macdSig := last(signalLine)
	atr := last(talib.Atr(highs(candles), lows(candles), close, atrPeriod))
	price := last(close)

	kind := trader.SignalHold
	strength := 0.0

	switch {
	// RSI oversold or a golden cross below the midline.
	case rsi < rsiOversold || (macd > macdSig && rsi < 50):
		kind = trader.SignalBuy
		strength = 0.6
		if rsi < rsiOversold {
			strength = math.Min((rsiOversold-rsi)/rsiOversold, 0.8)
		}
	// RSI overbought or a death cross above the midline.
	case rsi > rsiOverbought || (macd < macdSig && rsi > 50):
		kind = trader.SignalSell
		strength = 0.6
		if rsi > rsiOverbought {
			strength = math.Min((rsi-rsiOverbought)/(100-rsiOverbought), 0.8)
		}
	}

	sig := trader.Signal{
		Kind:         kind,
		Strength:     strength,
		Price:        decimal.NewFromFloat(price),
		SizeFraction: s.positionSize.Mul(decimal.NewFromFloat(strength)),
		Indicators: map[string]float64{
			"rsi":         rsi,
			"macd":        macd,
			"macd_signal": macdSig,
			"atr":         atr,
		},
	}
	if kind != trader.SignalHold && atr > 0 {
		sig.DynamicStops = &trader.DynamicStops{
			StopLossDistance:   decimal.NewFromFloat(atr * atrStopMultiple),
			TakeProfitDistance: decimal.NewFromFloat(atr * atrProfitMultiple),
		}
	}
	return sig
}
