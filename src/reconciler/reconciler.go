// Package reconciler implements the reconciler of spec §4.7: an
// independent ticker loop that resolves InconsistentState rows left
// behind when a store write failed after an exchange mutation already
// succeeded, and sweeps orphaned trigger orders that outlived their
// position. Grounded on executors/start_loop.go's ticker idiom for the
// loop itself, and on the teacher's ExceptionRepository/Exception
// lifecycle (create, increment, resolve) for the resolution bookkeeping.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/notifier"
	"perpagent/src/repository"
)

type Reconciler struct {
	cfg       Config
	exchange  exchange.Exchange
	states    *repository.InconsistentStateRepository
	positions *repository.PositionRepository
	triggers  *repository.PriceOrderRepository
	trades    *repository.TradeRepository
	notify    *notifier.Notifier

	mu        sync.Mutex
	lastRunAt time.Time
	lastErr   error
}

func NewReconciler(
	cfg Config,
	ex exchange.Exchange,
	states *repository.InconsistentStateRepository,
	positions *repository.PositionRepository,
	triggers *repository.PriceOrderRepository,
	trades *repository.TradeRepository,
	notify *notifier.Notifier,
) *Reconciler {
	return &Reconciler{cfg: cfg, exchange: ex, states: states, positions: positions, triggers: triggers, trades: trades, notify: notify}
}

func (r *Reconciler) StartLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				logger.WithError(err).Error("reconciler pass failed")
			}
		}
	}
}

// Run performs one full pass: resolve unresolved InconsistentState rows,
// then sweep orphaned triggers. It never returns an error for a single
// row's resolution failure — those are recorded per-row and alerted on
// via the notifier — only for failures that prevent the pass itself
// from proceeding (e.g. listing rows).
func (r *Reconciler) Run(ctx context.Context) error {
	err := r.resolveInconsistentStates(ctx)
	if err == nil {
		r.sweepOrphanTriggers(ctx)
	}

	r.mu.Lock()
	r.lastRunAt = time.Now().UTC()
	r.lastErr = err
	r.mu.Unlock()

	return err
}

// LastRunStatus reports when the reconciler last completed a pass and
// whether that pass errored, for the health aggregator's "reconciler
// last-run outcome" field.
func (r *Reconciler) LastRunStatus() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRunAt, r.lastErr
}

func (r *Reconciler) resolveInconsistentStates(ctx context.Context) error {
	rows, err := r.states.FindUnresolved(ctx)
	if err != nil {
		return err
	}

	failedThisPass := 0
	for i := range rows {
		row := rows[i]
		resolved, err := r.resolveOne(ctx, row)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"id": row.ID, "symbol": row.Symbol, "side": row.Side,
			}).Warn("reconciler failed to resolve inconsistent state row")
		}
		if resolved {
			continue
		}

		failedThisPass++
		lastErr := ""
		if err != nil {
			lastErr = err.Error()
		}
		if incErr := r.states.IncrementFailure(ctx, row.ID, lastErr); incErr != nil {
			logger.WithError(incErr).WithField("id", row.ID).Error("reconciler failed to record failure on inconsistent state row")
		}

		if row.FailureCount+1 >= r.cfg.WarningFailureThreshold {
			r.notify.Notify(notifier.Alert{
				Key:      fmt.Sprintf("reconciler:stuck:%d", row.ID),
				Severity: notifier.SeverityWarning,
				Message:  "inconsistent state row has failed to resolve for multiple passes",
				Fields: map[string]interface{}{
					"id": row.ID, "symbol": row.Symbol, "side": row.Side, "failure_count": row.FailureCount + 1,
				},
			})
		}
	}

	if failedThisPass >= r.cfg.CriticalFailureThreshold {
		r.notify.Notify(notifier.Alert{
			Key:      "reconciler:pass_failure_rate",
			Severity: notifier.SeverityCritical,
			Message:  "reconciler pass failed to resolve a large number of inconsistent state rows",
			Fields:   map[string]interface{}{"failed_rows": failedThisPass},
		})
	}

	return nil
}

// resolveOne returns (true, nil) if the row is now resolved, (false, err)
// if a transient failure prevented resolution this pass.
func (r *Reconciler) resolveOne(ctx context.Context, row model.InconsistentState) (bool, error) {
	exchangePositions, err := r.exchange.GetPositions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range exchangePositions {
		if p.Symbol == row.Symbol && p.Side == row.Side {
			// the exchange still shows an open position for this key;
			// nothing to synthesize yet, try again next pass.
			return false, nil
		}
	}

	fills, err := r.exchange.GetMyTrades(ctx, row.Symbol, r.cfg.TradeLookbackLimit, nil)
	if err != nil {
		return false, err
	}
	var matched *exchange.Fill
	for i := range fills {
		if fills[i].OrderID == row.ExchangeOrderID {
			matched = &fills[i]
			break
		}
	}
	if matched == nil {
		return false, fmt.Errorf("no matching fill found for exchange order %s", row.ExchangeOrderID)
	}

	position, err := r.positions.FindBySymbolSide(ctx, row.Symbol, row.Side)
	if err != nil {
		return false, err
	}
	if position == nil {
		// no local Position row at all; the split-state gap was on the
		// open side, so there is nothing left locally to close. Treat as
		// resolved — the exchange and local stores already agree.
		return true, nil
	}

	openTrade, err := r.trades.FindLastOpen(ctx, row.Symbol, row.Side)
	if err != nil {
		return false, err
	}
	entryPrice := position.EntryPrice
	if openTrade != nil {
		entryPrice = openTrade.Price
	}

	contract, err := r.exchange.GetContract(ctx, row.Symbol)
	if err != nil {
		return false, err
	}

	pnl := r.exchange.CalculatePnL(entryPrice, matched.Price, position.Quantity, row.Side, contract)
	notional := matched.Price.Mul(position.Quantity)
	pnlPercent := pnl
	if !notional.IsZero() {
		pnlPercent = pnl.Div(notional).Mul(position.Leverage)
	}

	fee := matched.Fee
	if fee.IsZero() {
		fee = notional.Mul(decimal.NewFromFloat(r.cfg.LegacyTakerFeeRate))
	}

	closeTrade := &model.Trade{
		OrderID:   matched.OrderID,
		Symbol:    row.Symbol,
		Side:      row.Side,
		Type:      model.TradeTypeClose,
		Price:     matched.Price,
		Quantity:  position.Quantity,
		Leverage:  position.Leverage,
		Pnl:       &pnl,
		Fee:       fee,
		Status:    model.TradeStatusFilled,
		Timestamp: matched.Timestamp,
	}
	event := &model.PositionCloseEvent{
		Symbol:      row.Symbol,
		Side:        row.Side,
		EntryPrice:  entryPrice,
		ClosePrice:  matched.Price,
		Quantity:    position.Quantity,
		Leverage:    position.Leverage,
		Pnl:         pnl,
		PnlPercent:  pnlPercent,
		Fee:         fee,
		CloseReason: model.CloseReasonSystemRecovered,
		OrderID:     matched.OrderID,
	}

	if err := r.trades.CreateClose(ctx, closeTrade, event, position.ID); err != nil {
		return false, err
	}

	if err := r.states.MarkResolved(ctx, row.ID, "auto"); err != nil {
		return false, err
	}

	logger.WithFields(map[string]interface{}{
		"id": row.ID, "symbol": row.Symbol, "side": row.Side,
	}).Info("reconciler synthesized close and resolved inconsistent state row")
	return true, nil
}

// sweepOrphanTriggers cancels active trigger orders that outlived their
// position — e.g. the position closed but the store write that should
// have cancelled its triggers itself failed.
func (r *Reconciler) sweepOrphanTriggers(ctx context.Context) {
	active, err := r.triggers.FindAllActive(ctx)
	if err != nil {
		logger.WithError(err).Error("reconciler failed to list active triggers for orphan sweep")
		return
	}

	seen := map[string]bool{}
	for _, trigger := range active {
		key := trigger.Symbol + ":" + trigger.Side
		if seen[key] {
			continue
		}

		position, err := r.positions.FindBySymbolSide(ctx, trigger.Symbol, trigger.Side)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": trigger.Symbol, "side": trigger.Side,
			}).Warn("reconciler failed to check position during orphan trigger sweep")
			continue
		}
		if position != nil {
			continue
		}

		exchangePositions, err := r.exchange.GetPositions(ctx)
		if err != nil {
			logger.WithError(err).Warn("reconciler failed to list exchange positions during orphan trigger sweep")
			continue
		}
		orphan := true
		for _, p := range exchangePositions {
			if p.Symbol == trigger.Symbol && p.Side == trigger.Side {
				orphan = false
				break
			}
		}
		if !orphan {
			continue
		}

		seen[key] = true
		if err := r.exchange.CancelTriggerOrders(ctx, trigger.Symbol); err != nil {
			logger.WithError(err).WithField("symbol", trigger.Symbol).Warn("reconciler failed to cancel orphan triggers on exchange")
			continue
		}
		if err := r.triggers.CancelAllActive(ctx, trigger.Symbol, trigger.Side); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": trigger.Symbol, "side": trigger.Side,
			}).Warn("reconciler failed to cancel orphan triggers locally")
			continue
		}
		logger.WithFields(map[string]interface{}{
			"symbol": trigger.Symbol, "side": trigger.Side,
		}).Warn("reconciler cancelled orphaned trigger orders")
	}
}
