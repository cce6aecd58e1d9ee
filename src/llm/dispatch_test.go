package llm

import (
	"context"
	"encoding/json"
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
	"perpagent/src/risk"
)

type fakeExchange struct {
	exchange.Exchange
	candles        []model.Candle
	placeOrderErr  error
	placeOrderCalls int
}

func (f *fakeExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return f.candles, nil
}

func (f *fakeExchange) GetContract(ctx context.Context, symbol string) (model.Contract, error) {
	return model.Contract{Symbol: symbol, OrderPriceRound: decimal.NewFromFloat(0.01)}, nil
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string, includeMark bool) (exchange.Ticker, error) {
	return exchange.Ticker{Last: decimal.NewFromInt(50000), MarkPrice: decimal.NewFromInt(50000)}, nil
}

func (f *fakeExchange) CalculateQuantity(usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal {
	return usdt.Mul(leverage).Div(price)
}

func (f *fakeExchange) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	if side == model.PositionSideShort {
		return entry.Sub(exit).Mul(qty)
	}
	return exit.Sub(entry).Mul(qty)
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (exchange.OrderResult, error) {
	f.placeOrderCalls++
	if f.placeOrderErr != nil {
		return exchange.OrderResult{}, f.placeOrderErr
	}
	return exchange.OrderResult{ID: "ord-1", Status: "filled"}, nil
}

func (f *fakeExchange) PlaceTriggerOrder(ctx context.Context, req exchange.TriggerOrderRequest) (string, error) {
	return "trig-1", nil
}

func (f *fakeExchange) CancelTriggerOrders(ctx context.Context, symbol string) error { return nil }

func trendingCandles() []model.Candle {
	base := time.Now().Add(-30 * time.Minute)
	var out []model.Candle
	price := decimal.NewFromInt(100)
	for i := 0; i < 20; i++ {
		price = price.Add(decimal.NewFromInt(5))
		out = append(out, model.Candle{
			Datetime: base.Add(time.Duration(i) * time.Minute),
			Open:     price.Sub(decimal.NewFromInt(5)), High: price.Add(decimal.NewFromInt(1)),
			Low: price.Sub(decimal.NewFromInt(6)), Close: price,
		})
	}
	return out
}

func newTestDispatcher(t *testing.T, ex *fakeExchange) (*Dispatcher, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Position{}, &model.Trade{}, &model.PriceOrder{}, &model.PositionCloseEvent{}, &model.InconsistentState{}))

	riskCfg := risk.Config{
		ATRPeriod: 14, ATRMultiplier: 1.5, MinStopDistancePct: 0.005, MaxStopDistancePct: 0.03,
		RMultiple: 5, TrailLookback: 20, PeakDrawdownFraction: 0.4, EmergencyScoreFloor: 70, HardTimeCapHours: 36,
	}
	engine := risk.NewEngine(riskCfg,
		repository.NewPositionRepository().WithDB(db),
		repository.NewTradeRepository().WithDB(db),
		repository.NewPriceOrderRepository().WithDB(db),
		repository.NewInconsistentStateRepository().WithDB(db),
	)
	dispatcher := NewDispatcher(Config{OpeningScoreFloor: 70, MaxToolCallsPerTick: 20}, ex, engine, repository.NewPositionRepository().WithDB(db))
	return dispatcher, db
}

func marshalArgs(t *testing.T, v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestOpenPositionRefusedWithoutPrecedingAnalysis(t *testing.T) {
	ex := &fakeExchange{candles: trendingCandles()}
	dispatcher, _ := newTestDispatcher(t, ex)

	calls := []ToolCall{
		{Name: ToolOpenPosition, Arguments: marshalArgs(t, OpenPositionArgs{Symbol: "BTC", Side: model.PositionSideLong, NotionalUSDT: decimal.NewFromInt(300), Leverage: decimal.NewFromInt(3)})},
	}
	result := dispatcher.Dispatch(context.Background(), calls)
	assert.Empty(t, result.Executed)
	assert.Len(t, result.PolicyViolations, 1)
	assert.Equal(t, 0, ex.placeOrderCalls)
}

func TestOpenPositionExecutedAfterQualifyingAnalysis(t *testing.T) {
	ex := &fakeExchange{candles: trendingCandles()}
	dispatcher, db := newTestDispatcher(t, ex)

	calls := []ToolCall{
		{Name: ToolAnalyzeOpeningOpportunities, Arguments: marshalArgs(t, AnalyzeOpeningOpportunitiesArgs{Symbols: []string{"BTC"}})},
		{Name: ToolOpenPosition, Arguments: marshalArgs(t, OpenPositionArgs{Symbol: "BTC", Side: model.PositionSideLong, NotionalUSDT: decimal.NewFromInt(300), Leverage: decimal.NewFromInt(3)})},
	}
	result := dispatcher.Dispatch(context.Background(), calls)
	assert.Empty(t, result.PolicyViolations)
	assert.Len(t, result.Executed, 2)

	var count int64
	db.Model(&model.Position{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestClosePositionWithNoOpenPositionIsPolicyViolation(t *testing.T) {
	ex := &fakeExchange{candles: trendingCandles()}
	dispatcher, _ := newTestDispatcher(t, ex)

	calls := []ToolCall{
		{Name: ToolClosePosition, Arguments: marshalArgs(t, ClosePositionArgs{Symbol: "BTC", Side: model.PositionSideLong})},
	}
	result := dispatcher.Dispatch(context.Background(), calls)
	assert.Empty(t, result.Executed)
	assert.Len(t, result.PolicyViolations, 1)
}

func TestUnknownToolNameIsPolicyViolation(t *testing.T) {
	ex := &fakeExchange{}
	dispatcher, _ := newTestDispatcher(t, ex)

	result := dispatcher.Dispatch(context.Background(), []ToolCall{{Name: ToolName("doSomethingElse")}})
	assert.Len(t, result.PolicyViolations, 1)
}

func TestOversizedToolCallSequenceIsTruncated(t *testing.T) {
	ex := &fakeExchange{}
	dispatcher, _ := newTestDispatcher(t, ex)
	dispatcher.cfg.MaxToolCallsPerTick = 2

	calls := []ToolCall{
		{Name: ToolName("x")}, {Name: ToolName("x")}, {Name: ToolName("x")}, {Name: ToolName("x")},
	}
	result := dispatcher.Dispatch(context.Background(), calls)
	assert.Len(t, result.PolicyViolations, 2)
}
