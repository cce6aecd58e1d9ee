package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type tradeSource interface {
	FindRecent(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
}

// TradesHandler serves GET /api/trades?limit&symbol.
func TradesHandler(trades tradeSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 100)
		symbol := r.URL.Query().Get("symbol")

		rows, err := trades.FindRecent(r.Context(), symbol, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list trades for /api/trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
	}
}
