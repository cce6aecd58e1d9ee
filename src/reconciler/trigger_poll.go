package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

// StartTriggerPollLoop runs PollTriggers on its own, faster ticker,
// separate from the resolve-pass loop in StartLoop: spec §4.7 treats
// detecting an autonomous exchange-side trigger fill as a different,
// tighter-latency concern than resolving a failed store write.
func (r *Reconciler) StartTriggerPollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PriceOrderCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("trigger poller stopped")
			return
		case <-ticker.C:
			if err := r.PollTriggers(ctx); err != nil {
				logger.WithError(err).Error("trigger poll pass failed")
			}
		}
	}
}

// PollTriggers detects a server-side stop-loss/take-profit trigger that
// fired on its own: the exchange no longer reports a position for
// (symbol, side), a local PriceOrder is still marked active for it, and
// — unlike the split-state gap resolveOne handles — no local write ever
// failed, because the agent never attempted the close itself. Left
// alone this permanently violates spec §8's "open local positions ⇔
// non-zero exchange positions" invariant for every position that
// actually gets stopped out, since sweepOrphanTriggers deliberately
// skips any key with a surviving local Position row.
func (r *Reconciler) PollTriggers(ctx context.Context) error {
	active, err := r.triggers.FindAllActive(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	exchangePositions, err := r.exchange.GetPositions(ctx)
	if err != nil {
		return err
	}
	live := map[string]bool{}
	for _, p := range exchangePositions {
		live[p.Symbol+":"+p.Side] = true
	}

	handled := map[string]bool{}
	for _, trigger := range active {
		key := trigger.Symbol + ":" + trigger.Side
		if handled[key] || live[key] {
			continue
		}

		position, err := r.positions.FindBySymbolSide(ctx, trigger.Symbol, trigger.Side)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": trigger.Symbol, "side": trigger.Side,
			}).Warn("trigger poller failed to check local position")
			continue
		}
		if position == nil {
			// nothing local to close; sweepOrphanTriggers owns cleaning
			// up the trigger row itself.
			continue
		}

		handled[key] = true
		if err := r.closeFiredTrigger(ctx, trigger, position); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": trigger.Symbol, "side": trigger.Side,
			}).Warn("trigger poller failed to close position for fired exchange trigger")
		}
	}
	return nil
}

// closeFiredTrigger writes the same close Trade/PositionCloseEvent/
// Position-delete that closeLocked writes for an app-initiated close,
// except the exchange order was never placed here — it already
// happened on the venue. It looks up the realized fill by the trigger's
// own exchange order id so the recorded close price reflects what
// actually executed rather than the trigger's nominal price.
func (r *Reconciler) closeFiredTrigger(ctx context.Context, trigger model.PriceOrder, position *model.Position) error {
	if err := r.triggers.MarkStatus(ctx, trigger.ID, model.PriceOrderStatusTriggered); err != nil {
		return err
	}

	fills, err := r.exchange.GetMyTrades(ctx, trigger.Symbol, r.cfg.TradeLookbackLimit, nil)
	if err != nil {
		return err
	}
	closePrice := trigger.TriggerPrice
	orderID := trigger.ExchangeTriggerID
	fee := decimal.Zero
	for i := range fills {
		if fills[i].OrderID == trigger.ExchangeTriggerID {
			closePrice = fills[i].Price
			orderID = fills[i].OrderID
			fee = fills[i].Fee
			break
		}
	}

	contract, err := r.exchange.GetContract(ctx, trigger.Symbol)
	if err != nil {
		return err
	}

	pnl := r.exchange.CalculatePnL(position.EntryPrice, closePrice, position.Quantity, position.Side, contract)
	notional := closePrice.Mul(position.Quantity)
	pnlPercent := pnl
	if !notional.IsZero() {
		pnlPercent = pnl.Div(notional).Mul(position.Leverage)
	}
	if fee.IsZero() {
		fee = notional.Mul(decimal.NewFromFloat(r.cfg.LegacyTakerFeeRate))
	}

	reason := model.CloseReasonStopLossTriggered
	if trigger.Type == model.PriceOrderTypeExtremeTakeProfit {
		reason = model.CloseReasonTakeProfitTriggered
	}

	closeTrade := &model.Trade{
		OrderID:   orderID,
		Symbol:    trigger.Symbol,
		Side:      trigger.Side,
		Type:      model.TradeTypeClose,
		Price:     closePrice,
		Quantity:  position.Quantity,
		Leverage:  position.Leverage,
		Pnl:       &pnl,
		Fee:       fee,
		Status:    model.TradeStatusFilled,
		Timestamp: time.Now().UTC(),
	}
	event := &model.PositionCloseEvent{
		Symbol:      trigger.Symbol,
		Side:        trigger.Side,
		EntryPrice:  position.EntryPrice,
		ClosePrice:  closePrice,
		Quantity:    position.Quantity,
		Leverage:    position.Leverage,
		Pnl:         pnl,
		PnlPercent:  pnlPercent,
		Fee:         fee,
		CloseReason: reason,
		TriggerType: trigger.Type,
		OrderID:     orderID,
	}

	if err := r.trades.CreateClose(ctx, closeTrade, event, position.ID); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"symbol": trigger.Symbol, "side": trigger.Side, "type": trigger.Type,
	}).Info("detected exchange-side trigger fill and closed local position")
	return nil
}
