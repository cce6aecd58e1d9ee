// Package reversal implements the Reversal Monitor of spec §4.6: a
// second, higher-frequency ticker loop (grounded on
// executors/start_loop.go's ticker-loop idiom) that scores open
// positions for early-warning and reversal signals, writes the result
// into Position.Metadata for the scheduler's next tick to read, and
// independently posts an emergency close to the Risk Engine's close
// queue when the reversal score crosses the configured floor — per
// spec §9's message-passing resolution of the Risk Engine ↔ Scheduler
// cyclic ownership. It never opens new positions.
package reversal

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
	"perpagent/src/repository"
	"perpagent/src/risk"
)

type Monitor struct {
	cfg       Config
	exchange  exchange.Exchange
	positions *repository.PositionRepository
	closeQ    *risk.CloseQueue
}

func NewMonitor(cfg Config, ex exchange.Exchange, positions *repository.PositionRepository, closeQ *risk.CloseQueue) *Monitor {
	return &Monitor{cfg: cfg, exchange: ex, positions: positions, closeQ: closeQ}
}

// StartLoop runs until ctx is cancelled. Unlike the Decision Loop
// Scheduler, overlapping ticks are not a concern here — each tick is a
// read-then-write over independent positions rather than a single
// exchange mutation sequence — so no drop-on-overlap guard is needed.
func (m *Monitor) StartLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reversal monitor stopped")
			return
		case <-ticker.C:
			if err := m.runTick(ctx); err != nil {
				logger.WithError(err).Error("reversal monitor tick failed")
			}
		}
	}
}

func (m *Monitor) runTick(ctx context.Context) error {
	positions, err := m.positions.FindAllOpen(ctx)
	if err != nil {
		return err
	}

	for i := range positions {
		position := positions[i]
		if err := m.evaluate(ctx, &position); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": position.Symbol, "side": position.Side,
			}).Warn("reversal monitor failed to evaluate position")
		}
	}
	return nil
}

func (m *Monitor) evaluate(ctx context.Context, position *model.Position) error {
	candles, err := m.exchange.GetCandles(ctx, position.Symbol, "5m", m.cfg.CandleLimit)
	if err != nil {
		return err
	}

	score := Compute(position.Side, candles)
	position.Metadata.WarningScore = score.WarningScore
	position.Metadata.ReversalScore = score.ReversalScore
	position.Metadata.ReversalWarning = score.ReversalScore >= m.cfg.ScoreFloor
	position.Metadata.LastEvaluatedTick = time.Now().UTC()

	if position.Metadata.ReversalScore >= m.cfg.ScoreFloor {
		ticker, tickerErr := m.exchange.GetTicker(ctx, position.Symbol, true)
		if tickerErr != nil {
			logger.WithError(tickerErr).WithField("symbol", position.Symbol).Warn("reversal monitor failed to fetch mark price for emergency close")
		} else {
			contract, contractErr := m.exchange.GetContract(ctx, position.Symbol)
			if contractErr != nil {
				logger.WithError(contractErr).WithField("symbol", position.Symbol).Warn("reversal monitor failed to fetch contract for emergency close")
			} else {
				position.Metadata.StopState = risk.StopStateEmergencyClose
				logger.WithFields(map[string]interface{}{
					"symbol": position.Symbol, "side": position.Side, "reversal_score": score.ReversalScore,
				}).Warn("reversal monitor posting emergency close")
				m.closeQ.Post(risk.CloseRequest{
					Contract: contract, Position: position, ClosePrice: ticker.MarkPrice, Reason: model.CloseReasonTrendReversal,
				})
			}
		}
	}

	return m.positions.Update(ctx, position)
}
