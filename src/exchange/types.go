// Package exchange defines the uniform capability contract the rest of
// the trading control plane depends on (spec §4.1), plus two concrete
// adapters. Every exchange-specific wire shape (field naming, symbol
// format) is confined to adapter.go/linear.go/inverse.go/restclient.go; nothing
// outside this package ever sees raw JSON.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"perpagent/src/model"
)

// TimeInForce mirrors the handful of values the capability interface
// needs; market orders always use TIFImmediateOrCancel per spec §4.1.
type TimeInForce string

const (
	TIFImmediateOrCancel TimeInForce = "ioc"
	TIFGoodTillCancel    TimeInForce = "gtc"
)

// TriggerRule encodes the relative-to-mark condition a trigger order
// fires on.
type TriggerRule string

const (
	TriggerRuleGTE TriggerRule = "gte"
	TriggerRuleLTE TriggerRule = "lte"
)

type Account struct {
	Total          decimal.Decimal
	Available      decimal.Decimal
	PositionMargin decimal.Decimal
	UnrealizedPnl  decimal.Decimal
}

type PositionSnapshot struct {
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
	Leverage   decimal.Decimal
}

type Ticker struct {
	Last      decimal.Decimal
	MarkPrice decimal.Decimal
	IndexPrice decimal.Decimal
}

type OrderResult struct {
	ID     string
	Status string
}

type Fill struct {
	OrderID   string
	Symbol    string
	Side      string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// ErrInsufficientAvailable is returned, unwrapped, by PlaceOrder when the
// venue rejects an order for insufficient margin — spec §4.1 requires
// this to "fail loudly ... with a typed error".
type ErrInsufficientAvailable struct {
	Symbol string
}

func (e *ErrInsufficientAvailable) Error() string {
	return "insufficient available balance for " + e.Symbol
}

// ErrPermission is returned, unwrapped, on HTTP 401 — non-retriable per
// spec §4.1/§7.
type ErrPermission struct{ Detail string }

func (e *ErrPermission) Error() string { return "permission denied: " + e.Detail }

// Exchange is the single abstraction the two concrete adapters satisfy.
// Every operation is independently retriable with exponential backoff
// for transient failures (handled inside restclient.go via resty's retry
// condition); 401/permission errors are never retried.
type Exchange interface {
	GetTicker(ctx context.Context, symbol string, includeMark bool) (Ticker, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]PositionSnapshot, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error)
	PlaceTriggerOrder(ctx context.Context, req TriggerOrderRequest) (string, error)
	CancelTriggerOrders(ctx context.Context, symbol string) error
	GetMyTrades(ctx context.Context, symbol string, limit int, startTime *time.Time) ([]Fill, error)
	SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error
	ContractType() model.ContractType
	CalculateQuantity(usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal
	CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal
	GetContract(ctx context.Context, symbol string) (model.Contract, error)
}

type PlaceOrderRequest struct {
	Contract    model.Contract
	Side        string // long or short
	Size        decimal.Decimal
	Price       *decimal.Decimal
	TIF         TimeInForce
	ReduceOnly  bool
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
}

type TriggerOrderRequest struct {
	Contract     model.Contract
	Side         string
	TriggerPrice decimal.Decimal
	CloseSize    decimal.Decimal
	Rule         TriggerRule
	Mark         decimal.Decimal
}
