package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type priceOrderSource interface {
	FindAllActive(ctx context.Context) ([]model.PriceOrder, error)
}

// PriceOrdersHandler serves GET /api/price-orders, active triggers only.
func PriceOrdersHandler(triggers priceOrderSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := triggers.FindAllActive(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list active triggers for /api/price-orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
	}
}
