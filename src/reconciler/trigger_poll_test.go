package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"perpagent/src/exchange"
	"perpagent/src/model"
)

func TestPollTriggersClosesPositionOnFiredStopLoss(t *testing.T) {
	ex := &fakeReconcilerExchange{
		positions: nil, // the exchange no longer shows this position: the stop fired
		fills: []exchange.Fill{
			{OrderID: "trig-1", Symbol: "BTC", Side: model.PositionSideLong, Price: decimal.NewFromInt(49000), Quantity: decimal.NewFromInt(1), Timestamp: time.Now()},
		},
	}
	r, db, _ := newTestReconciler(t, ex)

	openTrade := &model.Trade{Symbol: "BTC", Side: model.PositionSideLong, Type: model.TradeTypeOpen, Price: decimal.NewFromInt(50000), Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), Status: model.TradeStatusFilled, Timestamp: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, db.Create(openTrade).Error)
	position := &model.Position{Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(position).Error)
	trigger := &model.PriceOrder{
		Symbol: "BTC", Side: model.PositionSideLong, Type: model.PriceOrderTypeStopLoss,
		TriggerPrice: decimal.NewFromInt(49000), Quantity: decimal.NewFromInt(1),
		Status: model.PriceOrderStatusActive, ExchangeTriggerID: "trig-1",
	}
	require.NoError(t, db.Create(trigger).Error)

	require.NoError(t, r.PollTriggers(context.Background()))

	var positionCount int64
	require.NoError(t, db.Model(&model.Position{}).Count(&positionCount).Error)
	require.Equal(t, int64(0), positionCount)

	var reloadedTrigger model.PriceOrder
	require.NoError(t, db.First(&reloadedTrigger, trigger.ID).Error)
	require.Equal(t, model.PriceOrderStatusTriggered, reloadedTrigger.Status)

	var event model.PositionCloseEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, model.CloseReasonStopLossTriggered, event.CloseReason)
	require.True(t, event.ClosePrice.Equal(decimal.NewFromInt(49000)))

	var closeTrade model.Trade
	require.NoError(t, db.Where("type = ?", model.TradeTypeClose).First(&closeTrade).Error)
	require.Equal(t, "trig-1", closeTrade.OrderID)
}

func TestPollTriggersIgnoresTriggerWithLiveExchangePosition(t *testing.T) {
	ex := &fakeReconcilerExchange{
		positions: []exchange.PositionSnapshot{{Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromInt(1)}},
	}
	r, db, _ := newTestReconciler(t, ex)

	position := &model.Position{Symbol: "BTC", Side: model.PositionSideLong, Quantity: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(50000), OpenedAt: time.Now()}
	require.NoError(t, db.Create(position).Error)
	trigger := &model.PriceOrder{
		Symbol: "BTC", Side: model.PositionSideLong, Type: model.PriceOrderTypeStopLoss,
		TriggerPrice: decimal.NewFromInt(49000), Quantity: decimal.NewFromInt(1),
		Status: model.PriceOrderStatusActive, ExchangeTriggerID: "trig-1",
	}
	require.NoError(t, db.Create(trigger).Error)

	require.NoError(t, r.PollTriggers(context.Background()))

	var positionCount int64
	require.NoError(t, db.Model(&model.Position{}).Count(&positionCount).Error)
	require.Equal(t, int64(1), positionCount)

	var reloadedTrigger model.PriceOrder
	require.NoError(t, db.First(&reloadedTrigger, trigger.ID).Error)
	require.Equal(t, model.PriceOrderStatusActive, reloadedTrigger.Status)
}

func TestPollTriggersSkipsOrphanTriggerWithNoLocalPosition(t *testing.T) {
	ex := &fakeReconcilerExchange{positions: nil, fills: nil}
	r, db, _ := newTestReconciler(t, ex)

	trigger := &model.PriceOrder{
		Symbol: "SOL", Side: model.PositionSideLong, Type: model.PriceOrderTypeStopLoss,
		TriggerPrice: decimal.NewFromInt(9), Quantity: decimal.NewFromInt(1),
		Status: model.PriceOrderStatusActive, ExchangeTriggerID: "trig-9",
	}
	require.NoError(t, db.Create(trigger).Error)

	require.NoError(t, r.PollTriggers(context.Background()))

	var reloadedTrigger model.PriceOrder
	require.NoError(t, db.First(&reloadedTrigger, trigger.ID).Error)
	require.Equal(t, model.PriceOrderStatusActive, reloadedTrigger.Status)
}
