package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type closeEventSource interface {
	FindRecent(ctx context.Context, limit int) ([]model.PositionCloseEvent, error)
}

type openTradeSource interface {
	FindOpenBefore(ctx context.Context, symbol, side string, before time.Time) (*model.Trade, error)
}

// completedTrade is the open/close join spec §6's /api/completed-trades
// describes: holding time, total fee, and close reason alongside the
// raw entry/exit prices.
type completedTrade struct {
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	EntryPrice     decimal.Decimal `json:"entryPrice"`
	ClosePrice     decimal.Decimal `json:"closePrice"`
	Quantity       decimal.Decimal `json:"quantity"`
	Pnl            decimal.Decimal `json:"pnl"`
	PnlPercent     decimal.Decimal `json:"pnlPercent"`
	TotalFee       decimal.Decimal `json:"totalFee"`
	CloseReason    string          `json:"closeReason"`
	OpenedAt       *time.Time      `json:"openedAt,omitempty"`
	ClosedAt       time.Time       `json:"closedAt"`
	HoldingSeconds float64         `json:"holdingSeconds"`
}

// CompletedTradesHandler serves GET /api/completed-trades?limit.
func CompletedTradesHandler(events closeEventSource, trades openTradeSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 100)
		ctx := r.Context()

		closeEvents, err := events.FindRecent(ctx, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list close events for /api/completed-trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		out := make([]completedTrade, 0, len(closeEvents))
		for _, event := range closeEvents {
			ct := completedTrade{
				Symbol:      event.Symbol,
				Side:        event.Side,
				EntryPrice:  event.EntryPrice,
				ClosePrice:  event.ClosePrice,
				Quantity:    event.Quantity,
				Pnl:         event.Pnl,
				PnlPercent:  event.PnlPercent,
				TotalFee:    event.Fee,
				CloseReason: event.CloseReason,
				ClosedAt:    event.CreatedAt,
			}

			openTrade, err := trades.FindOpenBefore(ctx, event.Symbol, event.Side, event.CreatedAt)
			if err != nil {
				logger.WithError(err).WithField("symbol", event.Symbol).Warn("failed to pair close event with opening trade")
			} else if openTrade != nil {
				ct.OpenedAt = &openTrade.Timestamp
				ct.TotalFee = ct.TotalFee.Add(openTrade.Fee)
				ct.HoldingSeconds = event.CreatedAt.Sub(openTrade.Timestamp).Seconds()
			}

			out = append(out, ct)
		}

		writeJSON(w, out)
	}
}
