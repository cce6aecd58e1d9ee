package risk

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/model"
)

// CloseRequest is one emergency-close instruction posted by an
// independent authority (the Reversal Monitor) rather than executed
// inline, breaking the cyclic Risk Engine ↔ Scheduler ownership per
// spec §9: "emergency closes are posted to a shared close queue
// consumed by a single close-worker holding the per-(symbol, side)
// mutex."
type CloseRequest struct {
	Contract   model.Contract
	Position   *model.Position
	ClosePrice decimal.Decimal
	Reason     string
}

// CloseQueue decouples emergency-close producers from the single
// close-worker that actually takes the Engine's per-(symbol, side) lock
// and executes the close, the same message-passing shape
// executors/start_loop.go's ticker → controller hand-off uses, applied
// to a channel instead of a ticker.
type CloseQueue struct {
	engine *Engine
	ch     chan CloseRequest
}

func NewCloseQueue(engine *Engine, buffer int) *CloseQueue {
	if buffer <= 0 {
		buffer = 32
	}
	return &CloseQueue{engine: engine, ch: make(chan CloseRequest, buffer)}
}

// Post enqueues a close request without blocking the caller. A full
// queue drops the request with an error log rather than blocking the
// Reversal Monitor's tick — spec §9 treats the monitor and close-worker
// as independent tasks.
func (q *CloseQueue) Post(req CloseRequest) {
	select {
	case q.ch <- req:
	default:
		logger.WithFields(map[string]interface{}{
			"symbol": req.Position.Symbol, "side": req.Position.Side, "reason": req.Reason,
		}).Error("close queue full, dropping emergency close request")
	}
}

// StartWorker runs until ctx is cancelled, draining the queue one
// request at a time. Engine.ClosePosition takes the per-(symbol, side)
// mutex itself, so concurrent scheduler-driven closes for a different
// position are never blocked by this worker.
func (q *CloseQueue) StartWorker(ctx context.Context, ex exchange.Exchange) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q.ch:
			if err := q.engine.ClosePosition(ctx, ex, req.Contract, req.Position, req.ClosePrice, req.Reason); err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"symbol": req.Position.Symbol, "side": req.Position.Side, "reason": req.Reason,
				}).Error("close queue worker failed to execute emergency close")
			}
		}
	}
}
