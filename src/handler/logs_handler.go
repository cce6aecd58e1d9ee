package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"perpagent/src/model"
)

type decisionSource interface {
	FindRecent(ctx context.Context, limit int) ([]model.AgentDecision, error)
}

// LogsHandler serves GET /api/logs?limit, the decision log spec §6
// calls for.
func LogsHandler(decisions decisionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 50)

		rows, err := decisions.FindRecent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list decisions for /api/logs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
	}
}
