package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"perpagent/src/exchange"
	"perpagent/src/model"
)

type fakeAccountSource struct {
	account exchange.Account
	err     error
}

func (f *fakeAccountSource) GetAccount(ctx context.Context) (exchange.Account, error) {
	return f.account, f.err
}

type fakeAccountHistorySource struct {
	initial model.AccountHistorySnapshot
}

func (f *fakeAccountHistorySource) InitialBalance(ctx context.Context) (model.AccountHistorySnapshot, error) {
	return f.initial, nil
}

func TestAccountHandlerComputesReturnPercent(t *testing.T) {
	ex := &fakeAccountSource{account: exchange.Account{Total: decimal.NewFromInt(1100), Available: decimal.NewFromInt(900), PositionMargin: decimal.NewFromInt(200), UnrealizedPnl: decimal.NewFromInt(50)}}
	history := &fakeAccountHistorySource{initial: model.AccountHistorySnapshot{TotalValue: decimal.NewFromInt(1000)}}

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	AccountHandler(ex, history)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "10", resp.ReturnPercent)
}

type fakePositionSource struct {
	positions []model.Position
}

func (f *fakePositionSource) FindAllOpen(ctx context.Context) ([]model.Position, error) {
	return f.positions, nil
}

func TestPositionsHandlerReturnsCount(t *testing.T) {
	src := &fakePositionSource{positions: []model.Position{{Symbol: "BTC", Side: "long"}, {Symbol: "ETH", Side: "short"}}}

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	PositionsHandler(src)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp positionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
}

type fakeTickerSource struct {
	calls int
}

func (f *fakeTickerSource) GetTicker(ctx context.Context, symbol string, includeMark bool) (exchange.Ticker, error) {
	f.calls++
	return exchange.Ticker{Last: decimal.NewFromInt(100)}, nil
}

func TestPricesHandlerCachesWithinWindow(t *testing.T) {
	ex := &fakeTickerSource{}
	handlerFunc := PricesHandler(ex)

	req := httptest.NewRequest(http.MethodGet, "/api/prices?symbols=BTC,ETH", nil)
	rec1 := httptest.NewRecorder()
	handlerFunc(rec1, req)
	rec2 := httptest.NewRecorder()
	handlerFunc(rec2, req)

	require.Equal(t, 2, ex.calls) // one fetch per symbol, once
	var resp pricesResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	require.True(t, resp.Prices["BTC"].Equal(decimal.NewFromInt(100)))
}

type fakeCloseEventAllSource struct {
	events []model.PositionCloseEvent
}

func (f *fakeCloseEventAllSource) FindAll(ctx context.Context) ([]model.PositionCloseEvent, error) {
	return f.events, nil
}

func TestStatsHandlerComputesWinRateAndTotals(t *testing.T) {
	src := &fakeCloseEventAllSource{events: []model.PositionCloseEvent{
		{Pnl: decimal.NewFromInt(100)},
		{Pnl: decimal.NewFromInt(-40)},
		{Pnl: decimal.NewFromInt(20)},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	StatsHandler(src)(rec, req)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Totals)
	require.True(t, resp.TotalPnl.Equal(decimal.NewFromInt(80)))
	require.True(t, resp.MaxWin.Equal(decimal.NewFromInt(100)))
	require.True(t, resp.MaxLoss.Equal(decimal.NewFromInt(-40)))
}

type fakeCloseEventRecentSource struct {
	events []model.PositionCloseEvent
}

func (f *fakeCloseEventRecentSource) FindRecent(ctx context.Context, limit int) ([]model.PositionCloseEvent, error) {
	return f.events, nil
}

type fakeOpenTradeSource struct {
	trade *model.Trade
}

func (f *fakeOpenTradeSource) FindOpenBefore(ctx context.Context, symbol, side string, before time.Time) (*model.Trade, error) {
	return f.trade, nil
}

func TestCompletedTradesHandlerJoinsOpeningTrade(t *testing.T) {
	closedAt := time.Now()
	openedAt := closedAt.Add(-time.Hour)
	events := &fakeCloseEventRecentSource{events: []model.PositionCloseEvent{
		{Symbol: "BTC", Side: "long", Pnl: decimal.NewFromInt(10), Fee: decimal.NewFromInt(1), CreatedAt: closedAt, CloseReason: model.CloseReasonStopLossTriggered},
	}}
	trades := &fakeOpenTradeSource{trade: &model.Trade{Timestamp: openedAt, Fee: decimal.NewFromFloat(0.5)}}

	req := httptest.NewRequest(http.MethodGet, "/api/completed-trades", nil)
	rec := httptest.NewRecorder()
	CompletedTradesHandler(events, trades)(rec, req)

	var resp []completedTrade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.InDelta(t, 3600, resp[0].HoldingSeconds, 1)
	require.True(t, resp[0].TotalFee.Equal(decimal.NewFromFloat(1.5)))
}
