package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type statsSource interface {
	FindAll(ctx context.Context) ([]model.PositionCloseEvent, error)
}

type statsResponse struct {
	Totals   int             `json:"totals"`
	WinRate  decimal.Decimal `json:"winRate"`
	MaxWin   decimal.Decimal `json:"maxWin"`
	MaxLoss  decimal.Decimal `json:"maxLoss"`
	TotalPnl decimal.Decimal `json:"totalPnl"`
}

// StatsHandler serves GET /api/stats, aggregating every recorded close
// event rather than a capped window — the dashboard's totals must
// reflect the whole trading history, not a recent slice.
func StatsHandler(events statsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		closeEvents, err := events.FindAll(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list close events for /api/stats")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		resp := statsResponse{MaxWin: decimal.Zero, MaxLoss: decimal.Zero, TotalPnl: decimal.Zero}
		wins := 0
		for _, event := range closeEvents {
			resp.Totals++
			resp.TotalPnl = resp.TotalPnl.Add(event.Pnl)
			if event.Pnl.GreaterThan(resp.MaxWin) {
				resp.MaxWin = event.Pnl
			}
			if event.Pnl.LessThan(resp.MaxLoss) {
				resp.MaxLoss = event.Pnl
			}
			if event.Pnl.IsPositive() {
				wins++
			}
		}
		if resp.Totals > 0 {
			resp.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(resp.Totals))).Mul(decimal100)
		} else {
			resp.WinRate = decimal.Zero
		}

		writeJSON(w, resp)
	}
}
