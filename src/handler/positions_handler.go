package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type positionSource interface {
	FindAllOpen(ctx context.Context) ([]model.Position, error)
}

type positionsResponse struct {
	Positions []model.Position `json:"positions"`
	Count     int              `json:"count"`
}

// PositionsHandler serves GET /api/positions.
func PositionsHandler(positions positionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := positions.FindAllOpen(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list positions for /api/positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, positionsResponse{Positions: rows, Count: len(rows)})
	}
}
