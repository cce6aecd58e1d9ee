package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/cache"
	"perpagent/src/coordinator"
	"perpagent/src/model"
)

// GuardedExchange decorates a concrete adapter with the Request
// Coordinator's admission control and the category-TTL cache, per spec
// §4.2/§4.3. It is the Exchange instance actually wired into the
// scheduler, risk engine, and LLM dispatcher — callers never talk to a
// LinearAdapter/InverseAdapter directly.
type GuardedExchange struct {
	inner Exchange
	coord *coordinator.Coordinator
	cache *cache.Cache
}

func NewGuarded(inner Exchange, coord *coordinator.Coordinator, c *cache.Cache) *GuardedExchange {
	return &GuardedExchange{inner: inner, coord: coord, cache: c}
}

func isRateLimited(err error) bool  { return err != nil && strings.Contains(err.Error(), "HTTP 429") }
func isIPBanned(err error) bool     { return err != nil && strings.Contains(err.Error(), "HTTP 418") }

// admit runs the coordinator's admission protocol and, on success,
// records the outcome. On rejection (backoff/ban/circuit open) it
// reports the block back to the caller so degraded-serving fallback can
// decide whether a last-known-good cache entry stands in.
func (g *GuardedExchange) admit(ctx context.Context, endpoint string) error {
	return g.coord.Admit(ctx, endpoint)
}

func (g *GuardedExchange) observe(err error) {
	if err == nil {
		g.coord.RecordSuccess()
		return
	}
	if isRateLimited(err) {
		g.coord.Handle429()
		return
	}
	if isIPBanned(err) {
		g.coord.Handle418(nil)
		return
	}
	g.coord.RecordFailure()
}

func (g *GuardedExchange) GetTicker(ctx context.Context, symbol string, includeMark bool) (Ticker, error) {
	if v, ok := g.cache.Fresh(cache.CategoryTicker, symbol); ok {
		return v.(Ticker), nil
	}
	if err := g.admit(ctx, "GetTicker"); err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryTicker, symbol); ok {
			logger.WithField("symbol", symbol).Warn("serving degraded ticker, coordinator rejected live call")
			return v.(Ticker), nil
		}
		return Ticker{}, err
	}
	t, err := g.inner.GetTicker(ctx, symbol, includeMark)
	g.observe(err)
	if err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryTicker, symbol); ok {
			logger.WithError(err).WithField("symbol", symbol).Warn("serving degraded ticker after live call failure")
			return v.(Ticker), nil
		}
		return Ticker{}, err
	}
	g.cache.Set(cache.CategoryTicker, symbol, t)
	return t, nil
}

func (g *GuardedExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	key := symbol + ":" + interval
	if v, ok := g.cache.Fresh(cache.CategoryCandles, key); ok {
		return v.([]model.Candle), nil
	}
	if err := g.admit(ctx, "GetCandles"); err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryCandles, key); ok {
			return v.([]model.Candle), nil
		}
		return nil, err
	}
	candles, err := g.inner.GetCandles(ctx, symbol, interval, limit)
	g.observe(err)
	if err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryCandles, key); ok {
			logger.WithError(err).WithField("symbol", symbol).Warn("serving degraded candles after live call failure")
			return v.([]model.Candle), nil
		}
		return nil, err
	}
	g.cache.Set(cache.CategoryCandles, key, candles)
	return candles, nil
}

func (g *GuardedExchange) GetAccount(ctx context.Context) (Account, error) {
	const key = "account"
	if v, ok := g.cache.Fresh(cache.CategoryAccount, key); ok {
		return v.(Account), nil
	}
	if err := g.admit(ctx, "GetAccount"); err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryAccount, key); ok {
			logger.Warn("serving degraded account snapshot, coordinator rejected live call")
			return v.(Account), nil
		}
		return Account{}, err
	}
	acct, err := g.inner.GetAccount(ctx)
	g.observe(err)
	if err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryAccount, key); ok {
			return v.(Account), nil
		}
		return Account{}, err
	}
	g.cache.Set(cache.CategoryAccount, key, acct)
	return acct, nil
}

func (g *GuardedExchange) GetPositions(ctx context.Context) ([]PositionSnapshot, error) {
	const key = "positions"
	if v, ok := g.cache.Fresh(cache.CategoryPosition, key); ok {
		return v.([]PositionSnapshot), nil
	}
	if err := g.admit(ctx, "GetPositions"); err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryPosition, key); ok {
			return v.([]PositionSnapshot), nil
		}
		return nil, err
	}
	positions, err := g.inner.GetPositions(ctx)
	g.observe(err)
	if err != nil {
		if v, ok := g.cache.LastKnownGood(cache.CategoryPosition, key); ok {
			return v.([]PositionSnapshot), nil
		}
		return nil, err
	}
	g.cache.Set(cache.CategoryPosition, key, positions)
	return positions, nil
}

func (g *GuardedExchange) GetContract(ctx context.Context, symbol string) (model.Contract, error) {
	if v, ok := g.cache.Fresh(cache.CategoryContract, symbol); ok {
		return v.(model.Contract), nil
	}
	if err := g.admit(ctx, "GetContract"); err != nil {
		return model.Contract{}, err
	}
	contract, err := g.inner.GetContract(ctx, symbol)
	g.observe(err)
	if err != nil {
		return model.Contract{}, err
	}
	g.cache.Set(cache.CategoryContract, symbol, contract)
	return contract, nil
}

func (g *GuardedExchange) GetMyTrades(ctx context.Context, symbol string, limit int, startTime *time.Time) ([]Fill, error) {
	if err := g.admit(ctx, "GetMyTrades"); err != nil {
		return nil, err
	}
	fills, err := g.inner.GetMyTrades(ctx, symbol, limit, startTime)
	g.observe(err)
	return fills, err
}

func (g *GuardedExchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error) {
	if err := g.admit(ctx, "PlaceOrder"); err != nil {
		return OrderResult{}, err
	}
	result, err := g.inner.PlaceOrder(ctx, req)
	g.observe(err)
	return result, err
}

func (g *GuardedExchange) PlaceTriggerOrder(ctx context.Context, req TriggerOrderRequest) (string, error) {
	if err := g.admit(ctx, "PlaceTriggerOrder"); err != nil {
		return "", err
	}
	id, err := g.inner.PlaceTriggerOrder(ctx, req)
	g.observe(err)
	return id, err
}

func (g *GuardedExchange) CancelTriggerOrders(ctx context.Context, symbol string) error {
	if err := g.admit(ctx, "CancelTriggerOrders"); err != nil {
		return err
	}
	err := g.inner.CancelTriggerOrders(ctx, symbol)
	g.observe(err)
	return err
}

func (g *GuardedExchange) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error {
	if err := g.admit(ctx, "SetLeverage"); err != nil {
		return err
	}
	err := g.inner.SetLeverage(ctx, symbol, leverage)
	g.observe(err)
	return err
}

func (g *GuardedExchange) ContractType() model.ContractType { return g.inner.ContractType() }

func (g *GuardedExchange) CalculateQuantity(usdt, price, leverage decimal.Decimal, contract model.Contract) decimal.Decimal {
	return g.inner.CalculateQuantity(usdt, price, leverage, contract)
}

func (g *GuardedExchange) CalculatePnL(entry, exit, qty decimal.Decimal, side string, contract model.Contract) decimal.Decimal {
	return g.inner.CalculatePnL(entry, exit, qty, side, contract)
}
