package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/notifier"
	"perpagent/src/repository"
)

type fakeReconcilerExchange struct {
	exchange.Exchange
	positions         []exchange.PositionSnapshot
	fills             []exchange.Fill
	cancelledSymbols  []string
	getPositionsErr   error
	getMyTradesErr    error
}

func (f *fakeReconcilerExchange) GetPositions(ctx context.Context) ([]exchange.PositionSnapshot, error) {
	return f.positions, f.getPositionsErr
}

func (f *fakeReconcilerExchange) GetMyTrades(ctx context.Context, symbol string, limit int, startTime *time.Time) ([]exchange.Fill, error) {
	return f.fills, f.getMyTradesErr
}

func (f *fakeReconcilerExchange) GetContract(ctx context.Context, symbol string) (model.Contract, error) {
	return model.Contract{Symbol: symbol, Type: model.ContractLinear}, nil
}

func (f *fakeReconcilerExchange) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	return exit.Sub(entry).Mul(qty)
}

func (f *fakeReconcilerExchange) CancelTriggerOrders(ctx context.Context, symbol string) error {
	f.cancelledSymbols = append(f.cancelledSymbols, symbol)
	return nil
}

type countingTransport struct{ sent []notifier.Alert }

func (c *countingTransport) Send(alert notifier.Alert) error {
	c.sent = append(c.sent, alert)
	return nil
}

func newTestReconciler(t *testing.T, ex exchange.Exchange) (*Reconciler, *gorm.DB, *countingTransport) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Position{}, &model.Trade{}, &model.PriceOrder{},
		&model.PositionCloseEvent{}, &model.InconsistentState{},
	))

	transport := &countingTransport{}
	notify := notifier.New(notifier.Config{Cooldown: time.Minute}, transport)

	cfg := Config{
		Interval: time.Minute, LegacyTakerFeeRate: 0.0005,
		WarningFailureThreshold: 5, CriticalFailureThreshold: 10, TradeLookbackLimit: 50,
	}
	r := NewReconciler(
		cfg, ex,
		repository.NewInconsistentStateRepository().WithDB(db),
		repository.NewPositionRepository().WithDB(db),
		repository.NewPriceOrderRepository().WithDB(db),
		repository.NewTradeRepository().WithDB(db),
		notify,
	)
	return r, db, transport
}

func TestResolveSynthesizesCloseOnMatchingFill(t *testing.T) {
	ex := &fakeReconcilerExchange{
		positions: nil,
		fills: []exchange.Fill{
			{OrderID: "ex-order-1", Symbol: "BTC", Side: model.PositionSideLong, Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(1), Fee: decimal.NewFromFloat(0.5), Timestamp: time.Now()},
		},
	}
	r, db, _ := newTestReconciler(t, ex)

	openTrade := &model.Trade{Symbol: "BTC", Side: model.PositionSideLong, Type: model.TradeTypeOpen, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), Status: model.TradeStatusFilled, Timestamp: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(openTrade).Error)
	position := &model.Position{Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100), OpenedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(position).Error)
	inconsistent := &model.InconsistentState{Operation: "close", Symbol: "BTC", Side: model.PositionSideLong, ExchangeOrderID: "ex-order-1"}
	require.NoError(t, db.Create(inconsistent).Error)

	require.NoError(t, r.Run(context.Background()))

	var resolvedCount int64
	require.NoError(t, db.Model(&model.InconsistentState{}).Where("resolved = ?", true).Count(&resolvedCount).Error)
	require.Equal(t, int64(1), resolvedCount)

	var positionCount int64
	require.NoError(t, db.Model(&model.Position{}).Count(&positionCount).Error)
	require.Equal(t, int64(0), positionCount)

	var closeTrade model.Trade
	require.NoError(t, db.Where("type = ?", model.TradeTypeClose).First(&closeTrade).Error)
	require.Equal(t, "ex-order-1", closeTrade.OrderID)
}

func TestResolveIncrementsFailureWhenNoMatchingFill(t *testing.T) {
	ex := &fakeReconcilerExchange{positions: nil, fills: nil}
	r, db, _ := newTestReconciler(t, ex)

	inconsistent := &model.InconsistentState{Operation: "close", Symbol: "ETH", Side: model.PositionSideShort, ExchangeOrderID: "ex-order-2"}
	require.NoError(t, db.Create(inconsistent).Error)

	require.NoError(t, r.Run(context.Background()))

	var reloaded model.InconsistentState
	require.NoError(t, db.First(&reloaded, inconsistent.ID).Error)
	require.False(t, reloaded.Resolved)
	require.Equal(t, 1, reloaded.FailureCount)
}

func TestResolveFiresWarningAtFailureThreshold(t *testing.T) {
	ex := &fakeReconcilerExchange{positions: nil, fills: nil}
	r, db, transport := newTestReconciler(t, ex)

	inconsistent := &model.InconsistentState{
		Operation: "close", Symbol: "ETH", Side: model.PositionSideShort,
		ExchangeOrderID: "ex-order-3", FailureCount: 4,
	}
	require.NoError(t, db.Create(inconsistent).Error)

	require.NoError(t, r.Run(context.Background()))

	require.NotEmpty(t, transport.sent)
	require.Equal(t, notifier.SeverityWarning, transport.sent[0].Severity)
}

func TestSweepCancelsOrphanTriggers(t *testing.T) {
	ex := &fakeReconcilerExchange{positions: nil}
	r, db, _ := newTestReconciler(t, ex)

	trigger := &model.PriceOrder{Symbol: "SOL", Side: model.PositionSideLong, Type: model.PriceOrderTypeStopLoss, TriggerPrice: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1), Status: model.PriceOrderStatusActive}
	require.NoError(t, db.Create(trigger).Error)

	require.NoError(t, r.Run(context.Background()))

	require.Contains(t, ex.cancelledSymbols, "SOL")

	var reloaded model.PriceOrder
	require.NoError(t, db.First(&reloaded, trigger.ID).Error)
	require.Equal(t, model.PriceOrderStatusCancelled, reloaded.Status)
}

func TestSweepLeavesTriggerWithLivePosition(t *testing.T) {
	ex := &fakeReconcilerExchange{positions: nil}
	r, db, _ := newTestReconciler(t, ex)

	position := &model.Position{Symbol: "SOL", Side: model.PositionSideLong, Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(10), OpenedAt: time.Now()}
	require.NoError(t, db.Create(position).Error)
	trigger := &model.PriceOrder{Symbol: "SOL", Side: model.PositionSideLong, Type: model.PriceOrderTypeStopLoss, TriggerPrice: decimal.NewFromInt(9), Quantity: decimal.NewFromInt(1), Status: model.PriceOrderStatusActive}
	require.NoError(t, db.Create(trigger).Error)

	require.NoError(t, r.Run(context.Background()))

	require.Empty(t, ex.cancelledSymbols)
	var reloaded model.PriceOrder
	require.NoError(t, db.First(&reloaded, trigger.ID).Error)
	require.Equal(t, model.PriceOrderStatusActive, reloaded.Status)
}
