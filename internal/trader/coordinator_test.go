package trader

import (
	"errors"
	"testing"
	"time"

	"hyperliquid-trade-bot-go/internal/hyperliquid"
	"hyperliquid-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetPositions() ([]hyperliquid.Position, error) {
	args := m.Called()
	return args.Get(0).([]hyperliquid.Position), args.Error(1)
}

func (m *MockRestClient) GetBalance() (decimal.Decimal, error) {
	args := m.Called()
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRestClient) GetCandles(symbol, interval string, limit int) ([]hyperliquid.Candle, error) {
	args := m.Called(symbol, interval, limit)
	return args.Get(0).([]hyperliquid.Candle), args.Error(1)
}

func (m *MockRestClient) PlaceOrder(symbol string, isBuy bool, size, price decimal.Decimal, orderType string) (*hyperliquid.OrderResult, error) {
	args := m.Called(symbol, isBuy, size, price, orderType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*hyperliquid.OrderResult), args.Error(1)
}

func (m *MockRestClient) ClosePosition(symbol string, size decimal.Decimal) (*hyperliquid.OrderResult, error) {
	args := m.Called(symbol, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*hyperliquid.OrderResult), args.Error(1)
}

// openGate allows every trade and counts the marks it receives.
type openGate struct {
	marks int
	pnls  []float64
}

func (g *openGate) ShouldTrade() bool     { return true }
func (g *openGate) MarkTrade(time.Time)   { g.marks++ }
func (g *openGate) RecordPnl(pnl float64) { g.pnls = append(g.pnls, pnl) }

// closedGate blocks every trade.
type closedGate struct{}

func (closedGate) ShouldTrade() bool   { return false }
func (closedGate) MarkTrade(time.Time) {}
func (closedGate) RecordPnl(float64)   {}

func testCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MinOrderValue: decimal.NewFromInt(10),
		Risk:          testRiskConfig(),
		Copy: CopyPolicy{
			Enabled:       true,
			SizePercent:   decimal.NewFromFloat(0.05),
			MinOrderValue: decimal.NewFromInt(10),
		},
	}
}

func newTestCoordinator(client *MockRestClient, cfg CoordinatorConfig, gate TradeGate) *Coordinator {
	return NewCoordinator(zap.NewNop(), client, cfg, Collaborators{Gate: gate})
}

func TestEvaluateCycle_BuySignalOpensPosition(t *testing.T) {
	// Arrange
	mockClient := new(MockRestClient)
	gate := &openGate{}
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), gate)

	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil)
	mockClient.On("GetBalance").Return(decimal.NewFromInt(1000), nil)
	mockClient.On("PlaceOrder", "BTC", true, mock.Anything, mock.Anything, mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "1", Status: "filled"}, nil)

	// Act
	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.7,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	// Assert
	assert.NoError(t, err)
	pos, ok := c.Store().Get("BTC")
	assert.True(t, ok)
	assert.Equal(t, SideLong, pos.Side)
	// 10% of 1000 at price 100 = 1 unit
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, gate.marks)
	assert.Equal(t, "open", c.State("BTC"))

	records := c.Journal().Records()
	assert.Len(t, records, 1)
	assert.Equal(t, models.ActionOpen, records[0].Action)
	mockClient.AssertExpectations(t)
}

func TestEvaluateCycle_GateBlocksEntry(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), closedGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil)

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.7,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())
	mockClient.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluateCycle_SameSideSignalSkipped(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	// Exchange reports an existing long.
	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "long", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}, nil)

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.5,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.NoError(t, err)
	mockClient.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockClient.AssertNotCalled(t, "GetBalance")
}

func TestEvaluateCycle_StopLossClosesPosition(t *testing.T) {
	mockClient := new(MockRestClient)
	gate := &openGate{}
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), gate)

	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "long", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}, nil)
	mockClient.On("ClosePosition", "BTC", mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "2", Status: "filled"}, nil)

	// 4% down, past the 3% fixed stop.
	err := c.EvaluateCycle("BTC", decimal.NewFromInt(96), Signal{Kind: SignalHold})

	assert.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())
	assert.Equal(t, "flat", c.State("BTC"))

	records := c.Journal().Records()
	assert.Len(t, records, 1)
	assert.Equal(t, models.ActionClose, records[0].Action)
	assert.Contains(t, records[0].Reason, ReasonFixedStopLoss)
	// Realized pnl fed back to the gate for the daily loss cap.
	assert.Len(t, gate.pnls, 1)
	assert.InDelta(t, -0.04, gate.pnls[0], 1e-9)
	mockClient.AssertExpectations(t)
}

func TestEvaluateCycle_CloseFailureKeepsPosition(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "long", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}, nil)
	mockClient.On("ClosePosition", "BTC", mock.Anything).
		Return(nil, errors.New("exchange rejected"))

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(96), Signal{Kind: SignalHold})

	// The failed close is absorbed; the position stays tracked for the next
	// cycle and nothing is journaled.
	assert.NoError(t, err)
	assert.Equal(t, 1, c.Store().Len())
	assert.Equal(t, "open", c.State("BTC"))
	assert.Empty(t, c.Journal().Records())
}

func TestEvaluateCycle_ReversalClosesBeforeEntry(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "long", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}, nil)
	mockClient.On("ClosePosition", "BTC", mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "3", Status: "filled"}, nil)
	mockClient.On("GetBalance").Return(decimal.NewFromInt(1000), nil)
	mockClient.On("PlaceOrder", "BTC", false, mock.Anything, mock.Anything, mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "4", Status: "filled"}, nil)

	// Weak sell signal: no reverse-signal exit, but a reversal entry.
	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalSell,
		Strength:     0.5,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.NoError(t, err)
	pos, ok := c.Store().Get("BTC")
	assert.True(t, ok)
	assert.Equal(t, SideShort, pos.Side)

	records := c.Journal().Records()
	assert.Len(t, records, 2)
	assert.Equal(t, models.ActionClose, records[0].Action)
	assert.Equal(t, models.ActionOpen, records[1].Action)
	mockClient.AssertExpectations(t)
}

func TestEvaluateCycle_ReversalCloseFailureAbortsEntry(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "long", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}, nil)
	mockClient.On("ClosePosition", "BTC", mock.Anything).
		Return(nil, errors.New("exchange rejected"))

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalSell,
		Strength:     0.5,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.Error(t, err)
	pos, _ := c.Store().Get("BTC")
	assert.Equal(t, SideLong, pos.Side)
	mockClient.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluateCycle_EntryFailureLeavesNoPosition(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil)
	mockClient.On("GetBalance").Return(decimal.NewFromInt(1000), nil)
	mockClient.On("PlaceOrder", "BTC", true, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("insufficient margin"))

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.7,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.Error(t, err)
	assert.Equal(t, 0, c.Store().Len())
	assert.Equal(t, "flat", c.State("BTC"))
	assert.Empty(t, c.Journal().Records())
}

func TestEvaluateCycle_MinOrderValueFloor(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil)
	// Tiny balance: 10% of 20 is 2, below the 10 minimum.
	mockClient.On("GetBalance").Return(decimal.NewFromInt(20), nil)
	mockClient.On("PlaceOrder", "BTC", true, mock.MatchedBy(func(size decimal.Decimal) bool {
		// Floored to the 10 minimum: 10 / 100 = 0.1 units.
		return size.Equal(decimal.NewFromFloat(0.1))
	}), mock.Anything, mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "5"}, nil)

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.7,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestEvaluateCycle_DryRunSimulatesFills(t *testing.T) {
	mockClient := new(MockRestClient)
	cfg := testCoordinatorConfig()
	cfg.DryRun = true
	c := newTestCoordinator(mockClient, cfg, &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil)
	mockClient.On("GetBalance").Return(decimal.NewFromInt(1000), nil)

	err := c.EvaluateCycle("BTC", decimal.NewFromInt(100), Signal{
		Kind:         SignalBuy,
		Strength:     0.7,
		SizeFraction: decimal.NewFromFloat(0.1),
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, c.Store().Len())
	records := c.Journal().Records()
	assert.Len(t, records, 1)
	assert.True(t, records[0].IsSimulation)
	mockClient.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCopySignal_MirrorsEntry(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetBalance").Return(decimal.NewFromInt(1000), nil)
	// 5% of 1000 = 50, at price 100 = 0.5 units.
	mockClient.On("PlaceOrder", "ETH", true, mock.MatchedBy(func(size decimal.Decimal) bool {
		return size.Equal(decimal.NewFromFloat(0.5))
	}), mock.Anything, mock.Anything).
		Return(&hyperliquid.OrderResult{OrderID: "6", Status: "filled"}, nil)

	c.HandleCopySignal(CopySignalEvent{
		SenderPubkey: "abcdef",
		Symbol:       "ETH",
		Kind:         SignalBuy,
		Price:        decimal.NewFromInt(100),
	})

	// Copy entries are journaled with their source but not risk-tracked.
	assert.Equal(t, 0, c.Store().Len())
	records := c.Journal().Records()
	assert.Len(t, records, 1)
	assert.Equal(t, models.ActionCopyOpen, records[0].Action)
	assert.Equal(t, "abcdef", records[0].SourcePubkey)
	mockClient.AssertExpectations(t)
}

func TestHandleCopySignal_DisabledDoesNothing(t *testing.T) {
	mockClient := new(MockRestClient)
	cfg := testCoordinatorConfig()
	cfg.Copy.Enabled = false
	c := newTestCoordinator(mockClient, cfg, &openGate{})

	c.HandleCopySignal(CopySignalEvent{
		SenderPubkey: "abcdef",
		Symbol:       "ETH",
		Kind:         SignalBuy,
		Price:        decimal.NewFromInt(100),
	})

	mockClient.AssertNotCalled(t, "GetBalance")
	assert.Empty(t, c.Journal().Records())
}

func TestHandleCopySignal_AllowListsEnforced(t *testing.T) {
	mockClient := new(MockRestClient)
	cfg := testCoordinatorConfig()
	cfg.Copy.AllowedSymbols = []string{"BTC"}
	cfg.Copy.FollowPubkeys = []string{"trusted"}
	c := newTestCoordinator(mockClient, cfg, &openGate{})

	// Wrong symbol.
	c.HandleCopySignal(CopySignalEvent{
		SenderPubkey: "trusted", Symbol: "ETH", Kind: SignalBuy, Price: decimal.NewFromInt(100),
	})
	// Wrong sender.
	c.HandleCopySignal(CopySignalEvent{
		SenderPubkey: "stranger", Symbol: "BTC", Kind: SignalBuy, Price: decimal.NewFromInt(100),
	})
	// Non-positive price.
	c.HandleCopySignal(CopySignalEvent{
		SenderPubkey: "trusted", Symbol: "BTC", Kind: SignalBuy, Price: decimal.Zero,
	})

	mockClient.AssertNotCalled(t, "GetBalance")
	assert.Empty(t, c.Journal().Records())
}

func TestReconcile_AdoptsExchangeState(t *testing.T) {
	mockClient := new(MockRestClient)
	c := newTestCoordinator(mockClient, testCoordinatorConfig(), &openGate{})

	mockClient.On("GetPositions").Return([]hyperliquid.Position{
		{Symbol: "BTC", Side: "short", Size: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(95)},
	}, nil).Once()

	c.Reconcile("BTC")

	pos, ok := c.Store().Get("BTC")
	assert.True(t, ok)
	assert.Equal(t, SideShort, pos.Side)
	assert.Equal(t, "open", c.State("BTC"))

	// Exchange now reports flat: local tracking is cleared.
	mockClient.On("GetPositions").Return([]hyperliquid.Position{}, nil).Once()
	c.Reconcile("BTC")

	assert.Equal(t, 0, c.Store().Len())
	assert.Equal(t, "flat", c.State("BTC"))
}
