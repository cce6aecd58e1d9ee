// Package risk implements the multi-layer stop-management engine of
// spec §4.4: ATR/structural stop sizing on open, staged partial
// take-profit, peak-drawdown protection, trailing-stop advancement,
// reversal/warning emergency closes, and the hard time cap — all
// serialized per (symbol, side) the way a single Position's mutations
// are serialized across exchange and DB phases per spec §5.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/repository"
)

const (
	StopStateOpen           = "open"
	StopStateArmed          = "armed"
	StopStateTrailing       = "trailing"
	StopStatePartial1       = "partial1"
	StopStatePartial2       = "partial2"
	StopStatePartial3       = "partial3"
	StopStateClosed         = "closed"
	StopStateEmergencyClose = "emergency_close"
)

type Engine struct {
	cfg Config

	positions    *repository.PositionRepository
	trades       *repository.TradeRepository
	triggers     *repository.PriceOrderRepository
	inconsistent *repository.InconsistentStateRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(cfg Config, positions *repository.PositionRepository, trades *repository.TradeRepository, triggers *repository.PriceOrderRepository, inconsistent *repository.InconsistentStateRepository) *Engine {
	return &Engine{
		cfg: cfg, positions: positions, trades: trades, triggers: triggers,
		inconsistent: inconsistent, locks: map[string]*sync.Mutex{},
	}
}

func (e *Engine) lockFor(symbol, side string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := symbol + ":" + side
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// recordInconsistency is the split-state-failure fallback of spec §7:
// the exchange mutation already happened, so a store write failure is
// captured as an unresolved row for the reconciler rather than lost.
func (e *Engine) recordInconsistency(ctx context.Context, operation, symbol, side, exchangeOrderID string, err error) {
	logger.WithFields(map[string]interface{}{
		"operation": operation, "symbol": symbol, "side": side, "exchange_order_id": exchangeOrderID,
	}).WithError(err).Error("store write failed after exchange mutation succeeded")

	state := &model.InconsistentState{
		Operation:       operation,
		Symbol:          symbol,
		Side:            side,
		ExchangeOrderID: exchangeOrderID,
		LastError:       err.Error(),
	}
	if createErr := e.inconsistent.Create(ctx, state); createErr != nil {
		logger.WithError(createErr).Error("failed to persist inconsistent state row")
	}
}

// OpenPosition implements spec §4.4's on-open sequence: size the stop,
// place both trigger orders, then persist the open Trade, Position, and
// PriceOrder rows atomically.
func (e *Engine) OpenPosition(ctx context.Context, ex exchange.Exchange, contract model.Contract, side string, orderID string, entryPrice, quantity, leverage decimal.Decimal, candles []model.Candle) error {
	lock := e.lockFor(contract.Symbol, side)
	lock.Lock()
	defer lock.Unlock()

	plan := PlanStops(e.cfg, side, entryPrice, candles)

	slRule := exchange.TriggerRuleLTE
	tpRule := exchange.TriggerRuleGTE
	if side == model.PositionSideShort {
		slRule = exchange.TriggerRuleGTE
		tpRule = exchange.TriggerRuleLTE
	}

	slID, err := ex.PlaceTriggerOrder(ctx, exchange.TriggerOrderRequest{
		Contract: contract, Side: side, TriggerPrice: plan.StopLoss, CloseSize: quantity, Rule: slRule, Mark: entryPrice,
	})
	if err != nil {
		return fmt.Errorf("place stop-loss trigger: %w", err)
	}
	tpID, err := ex.PlaceTriggerOrder(ctx, exchange.TriggerOrderRequest{
		Contract: contract, Side: side, TriggerPrice: plan.TakeProfit, CloseSize: quantity, Rule: tpRule, Mark: entryPrice,
	})
	if err != nil {
		return fmt.Errorf("place extreme take-profit trigger: %w", err)
	}

	now := time.Now().UTC()
	trade := &model.Trade{
		OrderID: orderID, Symbol: contract.Symbol, Side: side, Type: model.TradeTypeOpen,
		Price: entryPrice, Quantity: quantity, Leverage: leverage, Status: model.TradeStatusFilled, Timestamp: now,
	}
	position := &model.Position{
		Symbol: contract.Symbol, Side: side, Quantity: quantity, OpenedQuantity: quantity, Leverage: leverage,
		EntryPrice: entryPrice, OpenedAt: now, StopLoss: &plan.StopLoss, TakeProfit: &plan.TakeProfit,
		Metadata: model.PositionMetadata{StopState: StopStateArmed, LastEvaluatedTick: now},
	}
	triggerRows := []model.PriceOrder{
		{OrderID: orderID, Symbol: contract.Symbol, Side: side, Type: model.PriceOrderTypeStopLoss, TriggerPrice: plan.StopLoss, Quantity: quantity, Status: model.PriceOrderStatusActive, ExchangeTriggerID: slID},
		{OrderID: orderID, Symbol: contract.Symbol, Side: side, Type: model.PriceOrderTypeExtremeTakeProfit, TriggerPrice: plan.TakeProfit, Quantity: quantity, Status: model.PriceOrderStatusActive, ExchangeTriggerID: tpID},
	}

	if err := e.trades.CreateOpen(ctx, trade, position, triggerRows); err != nil {
		e.recordInconsistency(ctx, "open_position", contract.Symbol, side, orderID, err)
		return err
	}
	return nil
}

// TickOutcome describes what EvaluatePosition did for a position on one
// call. Neither the scheduler nor the reversal monitor calls
// EvaluatePosition; within this module only the tests do.
type TickOutcome struct {
	EmergencyClosed bool
	PartialExecuted bool
	FullyClosed     bool
	CloseReason     string
}

// EvaluatePosition runs spec §4.4's during-life checks in this order:
// emergency close first (and exclusively), then the hard time cap, then
// partial staging, peak drawdown, and trailing advancement (only if
// nothing else fired this tick).
func (e *Engine) EvaluatePosition(ctx context.Context, ex exchange.Exchange, contract model.Contract, position *model.Position, mark decimal.Decimal, candles []model.Candle) (TickOutcome, error) {
	lock := e.lockFor(position.Symbol, position.Side)
	lock.Lock()
	defer lock.Unlock()

	meta := position.Metadata
	pnlPct := PnlPercent(position.Side, position.EntryPrice, mark)

	if meta.WarningScore >= e.cfg.EmergencyScoreFloor || meta.ReversalScore >= e.cfg.EmergencyScoreFloor {
		reason := model.CloseReasonPeakDrawdown
		if meta.ReversalScore >= e.cfg.EmergencyScoreFloor {
			reason = model.CloseReasonTrendReversal
		}
		if err := e.closeLocked(ctx, ex, contract, position, mark, reason, ""); err != nil {
			return TickOutcome{}, err
		}
		return TickOutcome{EmergencyClosed: true, FullyClosed: true, CloseReason: reason}, nil
	}

	if time.Since(position.OpenedAt) > time.Duration(e.cfg.HardTimeCapHours)*time.Hour {
		if err := e.closeLocked(ctx, ex, contract, position, mark, model.CloseReasonHardTimeCap, ""); err != nil {
			return TickOutcome{}, err
		}
		return TickOutcome{FullyClosed: true, CloseReason: model.CloseReasonHardTimeCap}, nil
	}

	if pnlPct.GreaterThan(meta.PeakPnlPercent) {
		meta.PeakPnlPercent = pnlPct
	}

	distance := decimal.Zero
	if position.StopLoss != nil {
		distance = position.EntryPrice.Sub(*position.StopLoss).Abs()
	}
	if tier, ok := NextPartialTier(DefaultPartialTiers(), meta.PartialsExecuted, position.Side, position.EntryPrice, distance, mark); ok {
		if tier.Final {
			// The last tier closes whatever remains in a single market
			// order, not a partial-then-full pair — closeLocked already
			// sizes the order from position.Quantity.
			if err := e.closeLocked(ctx, ex, contract, position, mark, model.CloseReasonTakeProfitTriggered, "extreme_take_profit"); err != nil {
				return TickOutcome{}, err
			}
			return TickOutcome{PartialExecuted: true, FullyClosed: true, CloseReason: model.CloseReasonTakeProfitTriggered}, nil
		}

		closeSize := position.OpenedQuantity.Mul(decimal.NewFromFloat(tier.Fraction))
		if err := ex.CancelTriggerOrders(ctx, contract.Symbol); err != nil {
			logger.WithError(err).Warn("failed to cancel sibling triggers before partial close")
		}
		partialResult, err := ex.PlaceOrder(ctx, exchange.PlaceOrderRequest{Contract: contract, Side: oppositeSide(position.Side), Size: closeSize, ReduceOnly: true, TIF: exchange.TIFImmediateOrCancel})
		if err != nil {
			return TickOutcome{}, fmt.Errorf("execute partial take-profit: %w", err)
		}

		pnl := ex.CalculatePnL(position.EntryPrice, mark, closeSize, position.Side, contract)
		partialTrade := &model.Trade{
			OrderID: partialResult.ID, Symbol: position.Symbol, Side: position.Side, Type: model.TradeTypeClose,
			Price: mark, Quantity: closeSize, Leverage: position.Leverage, Pnl: &pnl,
			Status: model.TradeStatusFilled, Timestamp: time.Now().UTC(),
		}
		partialEvent := &model.PositionCloseEvent{
			Symbol: position.Symbol, Side: position.Side, EntryPrice: position.EntryPrice, ClosePrice: mark,
			Quantity: closeSize, Leverage: position.Leverage, Pnl: pnl, PnlPercent: PnlPercent(position.Side, position.EntryPrice, mark),
			CloseReason: model.CloseReasonPartialClose, OrderID: partialResult.ID,
		}

		meta.PartialsExecuted++
		position.Metadata = meta
		position.Quantity = position.Quantity.Sub(closeSize)
		position.PartialCloseFraction = position.PartialCloseFraction.Add(decimal.NewFromFloat(tier.Fraction))
		position.Metadata.StopState = partialStateFor(meta.PartialsExecuted)

		if advanced, moved := ComputeNextStopLossDirectional(position.Side, valueOrZero(position.StopLoss), candles, e.cfg.TrailLookback); moved {
			position.StopLoss = &advanced
		}
		if err := e.trades.CreatePartialClose(ctx, partialTrade, partialEvent, position); err != nil {
			e.recordInconsistency(ctx, "partial_close", position.Symbol, position.Side, partialResult.ID, err)
			return TickOutcome{}, err
		}
		logger.WithFields(map[string]interface{}{
			"symbol": position.Symbol, "side": position.Side, "fraction": tier.Fraction, "order_id": partialResult.ID,
		}).Info("partial take-profit executed")
		return TickOutcome{PartialExecuted: true}, nil
	}

	if PeakDrawdownBreached(e.cfg, meta.PeakPnlPercent, pnlPct) {
		if err := e.closeLocked(ctx, ex, contract, position, mark, model.CloseReasonPeakDrawdown, ""); err != nil {
			return TickOutcome{}, err
		}
		return TickOutcome{FullyClosed: true, CloseReason: model.CloseReasonPeakDrawdown}, nil
	}

	if !meta.ReversalWarning && meta.WarningScore < e.cfg.EmergencyScoreFloor {
		if newSL, moved := TierStop(DefaultTrailTiers(), position.Side, position.EntryPrice, pnlPct, valueOrZero(position.StopLoss)); moved {
			position.StopLoss = &newSL
			position.Metadata.StopState = StopStateTrailing
		}
	}

	position.Metadata.LastEvaluatedTick = time.Now().UTC()
	if err := e.positions.Update(ctx, position); err != nil {
		e.recordInconsistency(ctx, "evaluate_tick", position.Symbol, position.Side, fmt.Sprintf("%d", position.OrderID), err)
		return TickOutcome{}, err
	}
	return TickOutcome{}, nil
}

// ClosePosition is the public, unlocked-entry variant of the on-close
// sequence for callers (scheduler tool dispatch) that haven't already
// taken the per-(symbol,side) lock.
func (e *Engine) ClosePosition(ctx context.Context, ex exchange.Exchange, contract model.Contract, position *model.Position, closePrice decimal.Decimal, reason string) error {
	lock := e.lockFor(position.Symbol, position.Side)
	lock.Lock()
	defer lock.Unlock()
	return e.closeLocked(ctx, ex, contract, position, closePrice, reason, "")
}

// CheckPartialTakeProfit reports, without executing anything, whether
// the next unfired partial tier has been reached — backs the
// checkPartialTakeProfitOpportunity tool call.
func (e *Engine) CheckPartialTakeProfit(position *model.Position, mark decimal.Decimal) (PartialTier, bool) {
	distance := decimal.Zero
	if position.StopLoss != nil {
		distance = position.EntryPrice.Sub(*position.StopLoss).Abs()
	}
	return NextPartialTier(DefaultPartialTiers(), position.Metadata.PartialsExecuted, position.Side, position.EntryPrice, distance, mark)
}

// ExecutePartialTakeProfit fires the next qualifying partial tier on
// explicit LLM instruction — the executePartialTakeProfit tool call.
// Re-entry within the same tick is prevented by the caller tracking
// which positions have already had a partial executed this pass, per
// spec §4.5 step 6.
func (e *Engine) ExecutePartialTakeProfit(ctx context.Context, ex exchange.Exchange, contract model.Contract, position *model.Position, mark decimal.Decimal, candles []model.Candle) (bool, error) {
	lock := e.lockFor(position.Symbol, position.Side)
	lock.Lock()
	defer lock.Unlock()

	tier, ok := e.CheckPartialTakeProfit(position, mark)
	if !ok {
		return false, nil
	}

	if tier.Final {
		// Close whatever remains in one order rather than a partial-
		// then-full pair.
		return true, e.closeLocked(ctx, ex, contract, position, mark, model.CloseReasonTakeProfitTriggered, "extreme_take_profit")
	}

	closeSize := position.OpenedQuantity.Mul(decimal.NewFromFloat(tier.Fraction))
	if err := ex.CancelTriggerOrders(ctx, contract.Symbol); err != nil {
		logger.WithError(err).Warn("failed to cancel sibling triggers before partial close")
	}
	result, err := ex.PlaceOrder(ctx, exchange.PlaceOrderRequest{Contract: contract, Side: oppositeSide(position.Side), Size: closeSize, ReduceOnly: true, TIF: exchange.TIFImmediateOrCancel})
	if err != nil {
		return false, fmt.Errorf("execute partial take-profit: %w", err)
	}

	pnl := ex.CalculatePnL(position.EntryPrice, mark, closeSize, position.Side, contract)
	partialTrade := &model.Trade{
		OrderID: result.ID, Symbol: position.Symbol, Side: position.Side, Type: model.TradeTypeClose,
		Price: mark, Quantity: closeSize, Leverage: position.Leverage, Pnl: &pnl,
		Status: model.TradeStatusFilled, Timestamp: time.Now().UTC(),
	}
	partialEvent := &model.PositionCloseEvent{
		Symbol: position.Symbol, Side: position.Side, EntryPrice: position.EntryPrice, ClosePrice: mark,
		Quantity: closeSize, Leverage: position.Leverage, Pnl: pnl, PnlPercent: PnlPercent(position.Side, position.EntryPrice, mark),
		CloseReason: model.CloseReasonPartialClose, OrderID: result.ID,
	}

	position.Metadata.PartialsExecuted++
	position.Quantity = position.Quantity.Sub(closeSize)
	position.PartialCloseFraction = position.PartialCloseFraction.Add(decimal.NewFromFloat(tier.Fraction))
	position.Metadata.StopState = partialStateFor(position.Metadata.PartialsExecuted)

	if advanced, moved := ComputeNextStopLossDirectional(position.Side, valueOrZero(position.StopLoss), candles, e.cfg.TrailLookback); moved {
		position.StopLoss = &advanced
	}
	if err := e.trades.CreatePartialClose(ctx, partialTrade, partialEvent, position); err != nil {
		e.recordInconsistency(ctx, "execute_partial_take_profit", position.Symbol, position.Side, result.ID, err)
		return false, err
	}
	return true, nil
}

// UpdateTrailingStop advances the stop per the tier table on explicit
// LLM instruction — the updateTrailingStop tool call. No-op (and not an
// error) when no tier is reached or a reversal/early warning is active,
// per spec §4.4's "only when no partial has executed this tick, no
// reversal/early warning" gate.
func (e *Engine) UpdateTrailingStop(ctx context.Context, position *model.Position, mark decimal.Decimal) (bool, error) {
	lock := e.lockFor(position.Symbol, position.Side)
	lock.Lock()
	defer lock.Unlock()

	if position.Metadata.ReversalWarning || position.Metadata.WarningScore >= e.cfg.EmergencyScoreFloor {
		return false, nil
	}

	pnlPct := PnlPercent(position.Side, position.EntryPrice, mark)
	newSL, moved := TierStop(DefaultTrailTiers(), position.Side, position.EntryPrice, pnlPct, valueOrZero(position.StopLoss))
	if !moved {
		return false, nil
	}
	position.StopLoss = &newSL
	position.Metadata.StopState = StopStateTrailing
	if err := e.positions.Update(ctx, position); err != nil {
		e.recordInconsistency(ctx, "update_trailing_stop", position.Symbol, position.Side, fmt.Sprintf("%d", position.OrderID), err)
		return false, err
	}
	return true, nil
}

func (e *Engine) closeLocked(ctx context.Context, ex exchange.Exchange, contract model.Contract, position *model.Position, closePrice decimal.Decimal, reason, triggerType string) error {
	if err := ex.CancelTriggerOrders(ctx, contract.Symbol); err != nil {
		logger.WithError(err).Warn("failed to cancel sibling triggers on close")
	}

	closeResult, err := ex.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Contract: contract, Side: oppositeSide(position.Side), Size: position.Quantity, ReduceOnly: true, TIF: exchange.TIFImmediateOrCancel,
	})
	if err != nil {
		return fmt.Errorf("close position market order: %w", err)
	}

	pnl := ex.CalculatePnL(position.EntryPrice, closePrice, position.Quantity, position.Side, contract)
	pnlPercent := PnlPercent(position.Side, position.EntryPrice, closePrice)

	closeTrade := &model.Trade{
		OrderID: closeResult.ID, Symbol: position.Symbol, Side: position.Side, Type: model.TradeTypeClose,
		Price: closePrice, Quantity: position.Quantity, Leverage: position.Leverage, Pnl: &pnl,
		Status: model.TradeStatusFilled, Timestamp: time.Now().UTC(),
	}
	event := &model.PositionCloseEvent{
		Symbol: position.Symbol, Side: position.Side, EntryPrice: position.EntryPrice, ClosePrice: closePrice,
		Quantity: position.Quantity, Leverage: position.Leverage, Pnl: pnl, PnlPercent: pnlPercent,
		CloseReason: reason, TriggerType: triggerType, OrderID: closeResult.ID,
	}

	if err := e.trades.CreateClose(ctx, closeTrade, event, position.ID); err != nil {
		e.recordInconsistency(ctx, "close_position", position.Symbol, position.Side, closeResult.ID, err)
		return err
	}
	return nil
}

func oppositeSide(side string) string {
	if side == model.PositionSideShort {
		return model.PositionSideLong
	}
	return model.PositionSideShort
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func partialStateFor(count int) string {
	switch count {
	case 1:
		return StopStatePartial1
	case 2:
		return StopStatePartial2
	default:
		return StopStatePartial3
	}
}
