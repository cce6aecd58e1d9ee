package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/repository"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Position{}, &model.Trade{}, &model.PriceOrder{}, &model.PositionCloseEvent{}, &model.InconsistentState{}))

	cfg := Config{
		ATRPeriod: 14, ATRMultiplier: 1.5, MinStopDistancePct: 0.005, MaxStopDistancePct: 0.03,
		RMultiple: 5, TrailLookback: 20, PeakDrawdownFraction: 0.4, EmergencyScoreFloor: 70, HardTimeCapHours: 36,
	}
	engine := NewEngine(cfg,
		repository.NewPositionRepository().WithDB(db),
		repository.NewTradeRepository().WithDB(db),
		repository.NewPriceOrderRepository().WithDB(db),
		repository.NewInconsistentStateRepository().WithDB(db),
	)
	return engine, db
}

type fakeExchange struct {
	exchange.Exchange
	placeOrderCalls  int
	cancelCalls      int
	triggerCalls     int
	placeOrderErr    error
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (exchange.OrderResult, error) {
	f.placeOrderCalls++
	if f.placeOrderErr != nil {
		return exchange.OrderResult{}, f.placeOrderErr
	}
	return exchange.OrderResult{ID: "ord-1", Status: "filled"}, nil
}

func (f *fakeExchange) PlaceTriggerOrder(ctx context.Context, req exchange.TriggerOrderRequest) (string, error) {
	f.triggerCalls++
	return "trig-1", nil
}

func (f *fakeExchange) CancelTriggerOrders(ctx context.Context, symbol string) error {
	f.cancelCalls++
	return nil
}

func (f *fakeExchange) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	return exchange.CalculatePnLFor(model.ContractLinear, entry, exit, qty, side, contract)
}

func sampleCandles() []model.Candle {
	base := time.Now().Add(-30 * time.Minute)
	var candles []model.Candle
	price := decimal.NewFromInt(50000)
	for i := 0; i < 20; i++ {
		candles = append(candles, model.Candle{
			Symbol: "BTC", Interval: "5m", Datetime: base.Add(time.Duration(i) * time.Minute),
			Open: price, High: price.Add(decimal.NewFromInt(50)), Low: price.Sub(decimal.NewFromInt(50)), Close: price, Volume: decimal.NewFromInt(1),
		})
	}
	return candles
}

func TestOpenPositionPersistsTradeAndTriggers(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC", OrderPriceRound: decimal.NewFromFloat(0.01)}

	err := engine.OpenPosition(context.Background(), ex, contract, model.PositionSideLong, "open-1",
		decimal.NewFromInt(50000), decimal.NewFromFloat(0.1), decimal.NewFromInt(3), sampleCandles())
	require.NoError(t, err)
	assert.Equal(t, 2, ex.triggerCalls)

	var position model.Position
	require.NoError(t, db.First(&position).Error)
	assert.Equal(t, "BTC", position.Symbol)

	var triggers []model.PriceOrder
	require.NoError(t, db.Find(&triggers).Error)
	assert.Len(t, triggers, 2)
}

func TestEvaluatePositionEmergencyCloseOnHighWarningScore(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC"}

	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromFloat(0.1),
		Leverage: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now(),
		StopLoss: &stopLoss, Metadata: model.PositionMetadata{WarningScore: 80},
	}
	require.NoError(t, db.Create(position).Error)
	openTrade := &model.Trade{Symbol: "BTC", Side: model.PositionSideLong, Type: model.TradeTypeOpen, Price: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.1), Leverage: decimal.NewFromInt(3), Status: model.TradeStatusFilled, Timestamp: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, db.Create(openTrade).Error)

	outcome, err := engine.EvaluatePosition(context.Background(), ex, contract, position, decimal.NewFromInt(50500), sampleCandles())
	require.NoError(t, err)
	assert.True(t, outcome.EmergencyClosed)
	assert.True(t, outcome.FullyClosed)

	var count int64
	db.Model(&model.Position{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestEvaluatePositionHardTimeCapCloses(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC"}

	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromFloat(0.1),
		Leverage: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now().Add(-37 * time.Hour),
		StopLoss: &stopLoss,
	}
	require.NoError(t, db.Create(position).Error)
	openTrade := &model.Trade{Symbol: "BTC", Side: model.PositionSideLong, Type: model.TradeTypeOpen, Price: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.1), Leverage: decimal.NewFromInt(3), Status: model.TradeStatusFilled, Timestamp: time.Now().UTC().Add(-37 * time.Hour)}
	require.NoError(t, db.Create(openTrade).Error)

	outcome, err := engine.EvaluatePosition(context.Background(), ex, contract, position, decimal.NewFromInt(50500), sampleCandles())
	require.NoError(t, err)
	assert.Equal(t, model.CloseReasonHardTimeCap, outcome.CloseReason)
}

func TestExecutePartialTakeProfitAdvancesStateAndQuantity(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC"}

	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromFloat(0.1), OpenedQuantity: decimal.NewFromFloat(0.1),
		Leverage: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now(),
		StopLoss: &stopLoss,
	}
	require.NoError(t, db.Create(position).Error)

	executed, err := engine.ExecutePartialTakeProfit(context.Background(), ex, contract, position, decimal.NewFromInt(52000), sampleCandles())
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, 1, position.Metadata.PartialsExecuted)
	assert.True(t, position.Quantity.Equal(decimal.NewFromFloat(0.067)))

	var events []model.PositionCloseEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, model.CloseReasonPartialClose, events[0].CloseReason)
	assert.True(t, events[0].Quantity.Equal(decimal.NewFromFloat(0.033)))

	var stillOpen model.Position
	require.NoError(t, db.First(&stillOpen).Error)
	assert.True(t, stillOpen.Quantity.Equal(decimal.NewFromFloat(0.067)))
}

func TestEvaluatePositionFinalPartialTierClosesFullRemainderInOneOrder(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC"}

	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromFloat(0.034), OpenedQuantity: decimal.NewFromFloat(0.1),
		Leverage: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now(),
		StopLoss: &stopLoss, Metadata: model.PositionMetadata{PartialsExecuted: 2},
	}
	require.NoError(t, db.Create(position).Error)
	openTrade := &model.Trade{Symbol: "BTC", Side: model.PositionSideLong, Type: model.TradeTypeOpen, Price: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.1), Leverage: decimal.NewFromInt(3), Status: model.TradeStatusFilled, Timestamp: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, db.Create(openTrade).Error)

	outcome, err := engine.EvaluatePosition(context.Background(), ex, contract, position, decimal.NewFromInt(54000), sampleCandles())
	require.NoError(t, err)
	assert.True(t, outcome.FullyClosed)
	assert.Equal(t, model.CloseReasonTakeProfitTriggered, outcome.CloseReason)
	assert.Equal(t, 1, ex.placeOrderCalls)

	var count int64
	db.Model(&model.Position{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestCheckPartialTakeProfitReportsWithoutMutating(t *testing.T) {
	engine, _ := newTestEngine(t)
	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Side: model.PositionSideLong, EntryPrice: decimal.NewFromInt(50000), StopLoss: &stopLoss,
	}
	_, ok := engine.CheckPartialTakeProfit(position, decimal.NewFromInt(50100))
	assert.False(t, ok)
	assert.Equal(t, 0, position.Metadata.PartialsExecuted)
}

func TestUpdateTrailingStopSkippedDuringReversalWarning(t *testing.T) {
	engine, db := newTestEngine(t)
	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, EntryPrice: decimal.NewFromInt(50000),
		StopLoss: &stopLoss, Metadata: model.PositionMetadata{ReversalWarning: true},
	}
	require.NoError(t, db.Create(position).Error)

	moved, err := engine.UpdateTrailingStop(context.Background(), position, decimal.NewFromInt(52000))
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestUpdateTrailingStopAdvancesOnProfit(t *testing.T) {
	engine, db := newTestEngine(t)
	stopLoss := decimal.NewFromInt(49000)
	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, EntryPrice: decimal.NewFromInt(50000), StopLoss: &stopLoss,
	}
	require.NoError(t, db.Create(position).Error)

	moved, err := engine.UpdateTrailingStop(context.Background(), position, decimal.NewFromInt(52000))
	require.NoError(t, err)
	assert.True(t, moved)
	assert.True(t, position.StopLoss.GreaterThan(stopLoss))
}

func TestClosePositionWithoutPrecedingOpenRecordsInconsistency(t *testing.T) {
	engine, db := newTestEngine(t)
	ex := &fakeExchange{}
	contract := model.Contract{Symbol: "BTC"}

	position := &model.Position{
		Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromFloat(0.1),
		Leverage: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now(),
	}
	require.NoError(t, db.Create(position).Error)

	err := engine.ClosePosition(context.Background(), ex, contract, position, decimal.NewFromInt(51000), model.CloseReasonManual)
	assert.Error(t, err)

	var inconsistentCount int64
	db.Model(&model.InconsistentState{}).Count(&inconsistentCount)
	assert.EqualValues(t, 1, inconsistentCount)
}
